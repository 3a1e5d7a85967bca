package main

import (
	"fmt"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
)

// applyAssignments sets key=value pairs on m and returns the schema keys
// touched. List fields take ";"-separated values; authors are "Last, First".
func applyAssignments(m *docmeta.Meta, pairs []string) ([]string, error) {
	var keys []string
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		key := docmeta.CanonicalKey(name)
		if key == "" {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		kind, _ := docmeta.KindOf(key)
		var err error
		if kind == docmeta.KindList {
			err = m.SetList(key, splitValues(value))
		} else {
			err = m.SetScalar(key, strings.TrimSpace(value))
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// splitValues splits a ";"-separated list, dropping blanks.
func splitValues(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ";") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
