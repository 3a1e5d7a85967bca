// Package main provides the shelf CLI entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/config"
	"github.com/matsen/bibshelf/internal/logging"
	"github.com/matsen/bibshelf/internal/session"
	"github.com/matsen/bibshelf/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	libraryFlag string
	configFlag  string
	logFlag     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shelf",
	Short: "Personal reference library",
	Long: `shelf manages a personal reference library: documents with
bibliographic metadata and attached PDFs, organized in folders and stored
in a local SQLite file.

All commands output JSON by default; pass --human for readable text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVarP(&libraryFlag, "library", "l", "", "Library name or path (default: saving.current_lib_folder or \"library\")")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Settings file (default: $XDG_CONFIG_HOME/bibshelf/config.yml)")
	rootCmd.PersistentFlags().StringVar(&logFlag, "log", "", "Log mode: dev, prod or quiet (default: log.mode)")
	rootCmd.Version = Version
}

// configPath returns the settings file in use.
func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	return config.Path()
}

// loadSettings reads the settings, exiting on failure.
func loadSettings() *config.Settings {
	s, err := config.Load(configPath())
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return s
}

// newLogger builds the logger selected by --log or log.mode.
func newLogger(s *config.Settings) *logging.Logger {
	mode := s.Log.Mode
	if logFlag != "" {
		mode = logFlag
	}
	log, err := logging.New(mode)
	if err != nil {
		exitWithError(ExitConfigError, "creating logger: %v", err)
	}
	return log
}

// libraryPath resolves --library, falling back to the last opened library
// and then to "library" in the storage folder.
func libraryPath(s *config.Settings) string {
	name := libraryFlag
	if name == "" {
		name = os.Getenv(config.EnvPrefix + "_LIBRARY")
	}
	if name == "" && s.Saving.CurrentLibFolder != "" {
		if p := lastLibrary(s.Saving.CurrentLibFolder); p != "" {
			return p
		}
	}
	if name == "" {
		name = "library"
	}
	return session.LibraryPath(name, s)
}

// lastLibrary returns the only library file in dir, or "" when there is
// none or more than one.
func lastLibrary(dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+storage.FileSuffix))
	if err != nil || len(matches) != 1 {
		return ""
	}
	return matches[0]
}

// openSession opens the selected library without the periodic flush, which
// a short-lived command never needs. Close flushes.
func openSession() (*session.Session, *logging.Logger) {
	s := loadSettings()
	log := newLogger(s)
	ss, err := session.Open(libraryPath(s), s, session.WithLogger(log), session.WithoutAutoSave())
	if err != nil {
		exitWithError(exitCodeFor(err), "opening library: %v", err)
	}
	return ss, log
}

// closeSession flushes and closes, exiting on failure.
func closeSession(ss *session.Session, log *logging.Logger) {
	defer log.Sync()
	if err := ss.Close(); err != nil {
		exitWithError(exitCodeFor(err), "saving library: %v", err)
	}
}

// fail reports err under what and exits with the code of its kind.
func fail(err error, what string) {
	exitWithError(exitCodeFor(err), "%s: %v", what, err)
}

// batchContext is canceled on interrupt, which also aborts the batch jobs
// still queued on the session's worker pool.
func batchContext(ss *session.Session) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		defer signal.Stop(sig)
		select {
		case <-sig:
			ss.Pool().Abort()
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
