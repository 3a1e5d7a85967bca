package filestore

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/matsen/bibshelf/internal/docmeta"
)

// maxTitleRunes caps the title part of a generated name.
const maxTitleRunes = 100

// Sanitize replaces characters that are invalid in file names on common
// filesystems (<>:"|?* path separators and control characters) with '_'.
func Sanitize(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`<>:"|?*/\`, r):
			return '_'
		case unicode.IsControl(r):
			return '_'
		}
		return r
	}, name)
	out = strings.TrimSpace(out)
	if out == "" || out == "." || out == ".." {
		return "_"
	}
	return out
}

// FileName applies the rename policy to m: "{lastName0}_{year}_{title}",
// "-{index}" when index > 0, then ext. Empty parts are left out; it returns
// "" when m has none of them.
func FileName(m *docmeta.Meta, ext string, index int, replaceSpace bool) string {
	var parts []string
	if len(m.LastNames) > 0 {
		if last := strings.TrimSpace(m.LastNames[0]); last != "" {
			parts = append(parts, last)
		}
	}
	if y := strings.TrimSpace(m.Year); y != "" {
		parts = append(parts, y)
	}
	if t := truncate(strings.Join(strings.Fields(m.Title), " "), maxTitleRunes); t != "" {
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return ""
	}

	name := strings.Join(parts, "_")
	if index > 0 {
		name += "-" + strconv.Itoa(index)
	}
	if replaceSpace {
		name = strings.ReplaceAll(name, " ", "-")
	}
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return Sanitize(name) + ext
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
