package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

const (
	// AppDir is the directory name under XDG_CONFIG_HOME.
	AppDir = "bibshelf"
	// ConfigFile is the settings file name.
	ConfigFile = "config.yml"
)

// Path returns the settings file path. Respects XDG_CONFIG_HOME, defaults
// to ~/.config/bibshelf/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, AppDir, ConfigFile)
}

// DefaultStorageFolder is ~/bibshelf, or ./bibshelf without a home directory.
func DefaultStorageFolder() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return AppDir
	}
	return filepath.Join(home, AppDir)
}

// ExpandPath expands a leading ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}

func ensureDir(file string) error {
	return os.MkdirAll(filepath.Dir(file), 0o755)
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
