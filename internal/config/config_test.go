package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := Path(), "/custom/config/bibshelf/config.yml"; got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	if got, want := Path(), filepath.Join(home, ".config", "bibshelf", "config.yml"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	s, err := LoadFile(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if diff := cmp.Diff(Default(), s); diff != "" {
		t.Errorf("LoadFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile_PartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `saving:
  auto_save_min: 2
  rename_files: true
duplicate:
  min_score: 75
export:
  bib:
    omit_fields: [abstract, file]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if s.Saving.AutoSaveMin != 2 || !s.Saving.RenameFiles {
		t.Errorf("Saving = %+v", s.Saving)
	}
	if s.Duplicate.MinScore != 75 {
		t.Errorf("MinScore = %d, want 75", s.Duplicate.MinScore)
	}
	if diff := cmp.Diff([]string{"abstract", "file"}, s.Export.Bib.OmitFields); diff != "" {
		t.Errorf("OmitFields mismatch (-want +got):\n%s", diff)
	}
	// Untouched sections keep their defaults.
	if s.DOI.TimeoutSec != 10 {
		t.Errorf("TimeoutSec = %d, want default 10", s.DOI.TimeoutSec)
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("saving: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() expected error for malformed YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BIBSHELF_SAVING_AUTO_SAVE_MIN", "9")
	t.Setenv("BIBSHELF_DUPLICATE_MIN_SCORE", "42")
	t.Setenv("BIBSHELF_EXPORT_BIB_OMIT_FIELDS", "abstract,notes")

	s := Default()
	s.Search.DescendFolder = false
	if err := ApplyEnv(s); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if s.Saving.AutoSaveMin != 9 {
		t.Errorf("AutoSaveMin = %d, want 9", s.Saving.AutoSaveMin)
	}
	if s.Duplicate.MinScore != 42 {
		t.Errorf("MinScore = %d, want 42", s.Duplicate.MinScore)
	}
	if diff := cmp.Diff([]string{"abstract", "notes"}, s.Export.Bib.OmitFields); diff != "" {
		t.Errorf("OmitFields mismatch (-want +got):\n%s", diff)
	}
	if s.Search.DescendFolder {
		t.Error("unset variable overwrote DescendFolder")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
	}{
		{"auto save zero", func(s *Settings) { s.Saving.AutoSaveMin = 0 }},
		{"min score zero", func(s *Settings) { s.Duplicate.MinScore = 0 }},
		{"min score over 100", func(s *Settings) { s.Duplicate.MinScore = 101 }},
		{"timeout zero", func(s *Settings) { s.DOI.TimeoutSec = 0 }},
		{"no storage", func(s *Settings) { s.Saving.StorageFolder = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(s)
			if err := s.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	s := Default()
	s.Saving.StorageFolder = "/data/library"
	s.Saving.RenameFileReplaceSpace = true
	s.Export.Bib.OmitFields = []string{"abstract"}

	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestGetSet(t *testing.T) {
	s := Default()

	if err := s.Set("duplicate.min_score", "80"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, _ := s.Get("duplicate.min_score"); v != "80" {
		t.Errorf("Get() = %q, want 80", v)
	}

	if err := s.Set("duplicate.min_score", "500"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Set(500) error = %v, want ErrInvalid", err)
	}
	if s.Duplicate.MinScore != 80 {
		t.Errorf("rejected Set() changed value to %d", s.Duplicate.MinScore)
	}

	if err := s.Set("saving.rename_files", "yes"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Set(bool) error = %v, want ErrInvalid", err)
	}
	if err := s.Set("export.bib.omit_fields", "abstract, tags,"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if diff := cmp.Diff([]string{"abstract", "tags"}, s.Export.Bib.OmitFields); diff != "" {
		t.Errorf("OmitFields mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Get("no.such"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Get(unknown) error = %v, want ErrInvalid", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	if got := ExpandPath("~/lib"); got != filepath.Join(home, "lib") {
		t.Errorf("ExpandPath(~/lib) = %q", got)
	}
	if got := ExpandPath("/abs"); got != "/abs" {
		t.Errorf("ExpandPath(/abs) = %q", got)
	}
}
