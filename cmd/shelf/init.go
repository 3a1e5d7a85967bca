package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/config"
	"github.com/matsen/bibshelf/internal/session"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new library",
	Long: `Create a new library file. A bare name is placed in the storage
folder (saving.storage_folder) with the .sqlite suffix. The new library
becomes the current one.

Examples:
  shelf init
  shelf init papers
  shelf init ~/thesis/refs.sqlite`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	s := loadSettings()
	log := newLogger(s)
	if len(args) == 1 {
		libraryFlag = args[0]
	}
	name := libraryFlag
	if name == "" {
		name = "library"
	}
	path := session.LibraryPath(name, s)

	ss, err := session.Create(path, s, session.WithLogger(log), session.WithoutAutoSave())
	if err != nil {
		fail(err, "creating library")
	}
	closeSession(ss, log)

	// Remember the library folder for later commands. The file is reread so
	// environment overrides are not written back.
	if err := rememberLibrary(filepath.Dir(path)); err != nil {
		log.Warn("could not record current library", "error", err)
	}

	if humanOutput {
		outputHuman("Created library %s\n", path)
		return nil
	}
	return outputJSON(StatusResponse{Status: "created", Path: path})
}

func rememberLibrary(dir string) error {
	fs, err := config.LoadFile(configPath())
	if err != nil {
		return err
	}
	fs.Saving.CurrentLibFolder = dir
	return fs.Save(configPath())
}
