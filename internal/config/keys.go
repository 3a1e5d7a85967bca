package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type setting struct {
	get func(*Settings) string
	set func(*Settings, string) error
}

func intSetting(p func(*Settings) *int) setting {
	return setting{
		get: func(s *Settings) string { return strconv.Itoa(*p(s)) },
		set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: want an integer, got %q", ErrInvalid, v)
			}
			*p(s) = n
			return nil
		},
	}
}

func boolSetting(p func(*Settings) *bool) setting {
	return setting{
		get: func(s *Settings) string { return strconv.FormatBool(*p(s)) },
		set: func(s *Settings, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: want true or false, got %q", ErrInvalid, v)
			}
			*p(s) = b
			return nil
		},
	}
}

func stringSetting(p func(*Settings) *string) setting {
	return setting{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error {
			*p(s) = strings.TrimSpace(v)
			return nil
		},
	}
}

var settings = map[string]setting{
	"saving.auto_save_min":             intSetting(func(s *Settings) *int { return &s.Saving.AutoSaveMin }),
	"saving.rename_files":              boolSetting(func(s *Settings) *bool { return &s.Saving.RenameFiles }),
	"saving.rename_file_replace_space": boolSetting(func(s *Settings) *bool { return &s.Saving.RenameFileReplaceSpace }),
	"saving.storage_folder":            stringSetting(func(s *Settings) *string { return &s.Saving.StorageFolder }),
	"saving.current_lib_folder":        stringSetting(func(s *Settings) *string { return &s.Saving.CurrentLibFolder }),
	"duplicate.min_score":              intSetting(func(s *Settings) *int { return &s.Duplicate.MinScore }),
	"search.descend_folder":            boolSetting(func(s *Settings) *bool { return &s.Search.DescendFolder }),
	"doi.mailto":                       stringSetting(func(s *Settings) *string { return &s.DOI.Mailto }),
	"doi.timeout_sec":                  intSetting(func(s *Settings) *int { return &s.DOI.TimeoutSec }),
	"worker.size":                      intSetting(func(s *Settings) *int { return &s.Worker.Size }),
	"log.mode":                         stringSetting(func(s *Settings) *string { return &s.Log.Mode }),
	"export.bib.omit_fields": {
		get: func(s *Settings) string { return strings.Join(s.Export.Bib.OmitFields, ",") },
		set: func(s *Settings, v string) error {
			var fields []string
			for _, f := range strings.Split(v, ",") {
				if f = strings.TrimSpace(f); f != "" {
					fields = append(fields, f)
				}
			}
			s.Export.Bib.OmitFields = fields
			return nil
		},
	},
}

// Keys returns every dotted setting key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get returns the string form of a dotted key such as "duplicate.min_score".
func (s *Settings) Get(key string) (string, error) {
	st, ok := settings[key]
	if !ok {
		return "", fmt.Errorf("%w: unknown key %q", ErrInvalid, key)
	}
	return st.get(s), nil
}

// Set assigns a dotted key from its string form and revalidates. On a
// validation failure the previous value is kept.
func (s *Settings) Set(key, value string) error {
	st, ok := settings[key]
	if !ok {
		return fmt.Errorf("%w: unknown key %q", ErrInvalid, key)
	}
	prev := st.get(s)
	if err := st.set(s, value); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		_ = st.set(s, prev)
		return err
	}
	return nil
}
