// Package config handles the settings consumed by the library core.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// BIBSHELF_SAVING_AUTO_SAVE_MIN.
const EnvPrefix = "BIBSHELF"

// ErrInvalid is returned for out-of-range or malformed settings.
var ErrInvalid = errors.New("invalid setting")

// Settings is the full configuration, stored as YAML.
type Settings struct {
	Saving    Saving    `yaml:"saving"`
	Duplicate Duplicate `yaml:"duplicate"`
	Search    Search    `yaml:"search"`
	Export    Export    `yaml:"export"`
	DOI       DOI       `yaml:"doi"`
	Worker    Worker    `yaml:"worker"`
	Log       Log       `yaml:"log"`
}

// Saving controls write-back and the file store.
type Saving struct {
	AutoSaveMin            int    `yaml:"auto_save_min" envconfig:"AUTO_SAVE_MIN"`
	RenameFiles            bool   `yaml:"rename_files" envconfig:"RENAME_FILES"`
	RenameFileReplaceSpace bool   `yaml:"rename_file_replace_space" envconfig:"RENAME_FILE_REPLACE_SPACE"`
	StorageFolder          string `yaml:"storage_folder" envconfig:"STORAGE_FOLDER"`
	CurrentLibFolder       string `yaml:"current_lib_folder,omitempty" envconfig:"CURRENT_LIB_FOLDER"`
}

// Duplicate controls the duplicate engine.
type Duplicate struct {
	MinScore int `yaml:"min_score" envconfig:"MIN_SCORE"`
}

// Search controls full-text search defaults.
type Search struct {
	DescendFolder bool `yaml:"descend_folder" envconfig:"DESCEND_FOLDER"`
}

// Export controls bibliographic export.
type Export struct {
	Bib BibExport `yaml:"bib"`
}

// BibExport holds BibTeX export options.
type BibExport struct {
	OmitFields []string `yaml:"omit_fields,omitempty" envconfig:"OMIT_FIELDS"`
}

// DOI controls the metadata resolver client.
type DOI struct {
	Mailto     string `yaml:"mailto,omitempty" envconfig:"MAILTO"`
	TimeoutSec int    `yaml:"timeout_sec" envconfig:"TIMEOUT_SEC"`
}

// Worker sizes the batch worker pool.
type Worker struct {
	Size int `yaml:"size" envconfig:"SIZE"`
}

// Log selects the logger mode: dev, prod or quiet.
type Log struct {
	Mode string `yaml:"mode" envconfig:"MODE"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Saving: Saving{
			AutoSaveMin:   5,
			StorageFolder: DefaultStorageFolder(),
		},
		Duplicate: Duplicate{MinScore: 60},
		Search:    Search{DescendFolder: true},
		DOI:       DOI{TimeoutSec: 10},
		Worker:    Worker{Size: runtime.NumCPU()},
		Log:       Log{Mode: "quiet"},
	}
}

// AutoSaveInterval returns the periodic flush interval.
func (s *Settings) AutoSaveInterval() time.Duration {
	return time.Duration(s.Saving.AutoSaveMin) * time.Minute
}

// DOITimeout returns the DOI lookup deadline.
func (s *Settings) DOITimeout() time.Duration {
	return time.Duration(s.DOI.TimeoutSec) * time.Second
}

// Validate checks ranges and fills unset sizes.
func (s *Settings) Validate() error {
	if s.Saving.AutoSaveMin < 1 {
		return fmt.Errorf("%w: saving.auto_save_min must be at least 1, got %d", ErrInvalid, s.Saving.AutoSaveMin)
	}
	if s.Duplicate.MinScore < 1 || s.Duplicate.MinScore > 100 {
		return fmt.Errorf("%w: duplicate.min_score must be in 1-100, got %d", ErrInvalid, s.Duplicate.MinScore)
	}
	if s.DOI.TimeoutSec < 1 {
		return fmt.Errorf("%w: doi.timeout_sec must be at least 1, got %d", ErrInvalid, s.DOI.TimeoutSec)
	}
	if s.Saving.StorageFolder == "" {
		return fmt.Errorf("%w: saving.storage_folder is empty", ErrInvalid)
	}
	if s.Worker.Size < 1 {
		s.Worker.Size = runtime.NumCPU()
	}
	return nil
}

// Load reads settings from path over the defaults. A missing file yields the
// defaults. Values from a .env file in the working directory and BIBSHELF_*
// environment variables override the file.
func Load(path string) (*Settings, error) {
	s, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(s); err != nil {
		return nil, err
	}
	s.Saving.StorageFolder = ExpandPath(s.Saving.StorageFolder)
	s.Saving.CurrentLibFolder = ExpandPath(s.Saving.CurrentLibFolder)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile reads settings from path over the defaults without consulting
// the environment.
func LoadFile(path string) (*Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return s, nil
}

// ApplyEnv overlays BIBSHELF_* variables (after loading .env if present).
// Unset variables leave the current value alone.
func ApplyEnv(s *Settings) error {
	_ = godotenv.Load()
	if err := envconfig.Process(EnvPrefix, s); err != nil {
		return fmt.Errorf("%w: environment: %v", ErrInvalid, err)
	}
	return nil
}

// Save writes the settings to path atomically, creating the directory.
func (s *Settings) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := atomic.WriteFile(path, bytesReader(data)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// EnsureStorage creates the storage folder when absent.
func (s *Settings) EnsureStorage() error {
	if err := os.MkdirAll(s.Saving.StorageFolder, 0o755); err != nil {
		return fmt.Errorf("creating storage folder: %w", err)
	}
	return nil
}
