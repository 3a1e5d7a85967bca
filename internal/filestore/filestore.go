// Package filestore manages the attachment area of a library: the
// _collections directory holding document files and optional per-folder
// mirrors beside it.
package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/crypto/blake2b"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

// CollectionsDir is the canonical attachment directory under the root.
const CollectionsDir = "_collections"

// Options selects the naming policy of attached files.
type Options struct {
	// Rename names files "{lastName0}_{year}_{title}{-index}.{ext}" instead
	// of keeping the source file name.
	Rename bool
	// ReplaceSpace turns spaces in generated names into '-'.
	ReplaceSpace bool
}

// Store is an attachment area rooted at a library's storage folder.
type Store struct {
	root string
	opts Options
}

// New opens the attachment area under root, creating _collections when
// absent.
func New(root string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, liberr.New(liberr.ErrIO, "open file store", root, err)
	}
	if err := os.MkdirAll(filepath.Join(abs, CollectionsDir), 0o755); err != nil {
		return nil, liberr.New(liberr.ErrIO, "open file store", root, err)
	}
	return &Store{root: abs, opts: opts}, nil
}

// Root returns the absolute storage folder.
func (s *Store) Root() string {
	return s.root
}

// SetOptions replaces the naming policy.
func (s *Store) SetOptions(opts Options) {
	s.opts = opts
}

// Attach copies src into _collections and returns its library-relative
// path. A file with identical content already at the target name is reused
// only when m already lists it; any other occupied name gets a "_2", "_3"...
// suffix, so no two documents share an attachment.
func (s *Store) Attach(src string, m *docmeta.Meta) (string, error) {
	const op = "attach"
	st, err := os.Stat(src)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", liberr.New(liberr.ErrNotFound, op, src, err)
	case err != nil:
		return "", liberr.New(liberr.ErrIO, op, src, err)
	case st.IsDir():
		return "", liberr.New(liberr.ErrIO, op, src, errors.New("is a directory"))
	}

	name := Sanitize(filepath.Base(src))
	if s.opts.Rename && m != nil {
		index := 0
		if m.HasFile() {
			index = len(m.Files) + 1
		}
		if generated := FileName(m, filepath.Ext(src), index, s.opts.ReplaceSpace); generated != "" {
			name = generated
		}
	}

	owned := func(rel string) bool { return m != nil && slices.Contains(m.Files, rel) }
	rel, err := s.place(src, CollectionsDir, name, owned)
	if err != nil {
		return "", liberr.New(liberr.ErrIO, op, src, err)
	}
	return rel, nil
}

// place copies src into dir (relative to the root) under name, applying
// the collision policy, and returns the relative path used. An existing
// file with the same content is returned instead of copied when reuse
// accepts its path.
func (s *Store) place(src, dir, name string, reuse func(rel string) bool) (string, error) {
	digest, err := Digest(src)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := name
		if n > 1 {
			candidate = stem + "_" + strconv.Itoa(n) + ext
		}
		rel := filepath.ToSlash(filepath.Join(dir, candidate))
		target := filepath.Join(s.root, dir, candidate)

		existing, err := Digest(target)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if err := copyFile(src, target); err != nil {
				return "", err
			}
			return rel, nil
		case err != nil:
			return "", err
		case bytes.Equal(existing, digest) && reuse(rel):
			return rel, nil
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return atomic.WriteFile(dst, in)
}

// Detach deletes an attached file. A missing file reports
// liberr.ErrNotFound.
func (s *Store) Detach(rel string) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return liberr.New(liberr.ErrNotFound, "detach", rel, err)
		}
		return liberr.New(liberr.ErrIO, "detach", rel, err)
	}
	return nil
}

// Resolve returns the absolute path of a library-relative path. Paths
// that leave the root are rejected.
func (s *Store) Resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", liberr.New(liberr.ErrIO, "resolve", rel, errors.New("not a library-relative path"))
	}
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	back, err := filepath.Rel(s.root, abs)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", liberr.New(liberr.ErrIO, "resolve", rel, errors.New("path leaves the library"))
	}
	return abs, nil
}

// Exists reports whether rel names an existing regular file.
func (s *Store) Exists(rel string) bool {
	abs, err := s.Resolve(rel)
	if err != nil {
		return false
	}
	st, err := os.Stat(abs)
	return err == nil && st.Mode().IsRegular()
}

// Mirror copies attached files into <root>/<folderPath>/ under their
// current names and returns the relative paths of the copies. Missing
// sources are skipped and reported together.
func (s *Store) Mirror(folderPath string, rels []string) ([]string, error) {
	var segments []string
	for _, seg := range strings.Split(folderPath, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, Sanitize(seg))
		}
	}
	if len(segments) == 0 {
		return nil, liberr.New(liberr.ErrIO, "mirror", folderPath, errors.New("empty folder path"))
	}
	if segments[0] == CollectionsDir {
		return nil, liberr.New(liberr.ErrIO, "mirror", folderPath, errors.New("folder path collides with "+CollectionsDir))
	}
	dir := filepath.Join(segments...)

	var out []string
	var errs []error
	for _, rel := range rels {
		src, err := s.Resolve(rel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		copied, err := s.place(src, dir, filepath.Base(src), func(string) bool { return true })
		if err != nil {
			kind := liberr.ErrIO
			if errors.Is(err, os.ErrNotExist) {
				kind = liberr.ErrNotFound
			}
			errs = append(errs, liberr.New(kind, "mirror", rel, err))
			continue
		}
		out = append(out, copied)
	}
	return out, errors.Join(errs...)
}

// Digest returns the BLAKE2b-256 digest of a file's content.
func Digest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
