// Package session opens a library and wires its store, file store, search,
// duplicate engine, import, export and write-back around one editor lock.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/matsen/bibshelf/internal/config"
	"github.com/matsen/bibshelf/internal/dedupe"
	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/doi"
	"github.com/matsen/bibshelf/internal/filestore"
	"github.com/matsen/bibshelf/internal/importer"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/library"
	"github.com/matsen/bibshelf/internal/logging"
	"github.com/matsen/bibshelf/internal/search"
	"github.com/matsen/bibshelf/internal/storage"
	"github.com/matsen/bibshelf/internal/worker"
	"github.com/matsen/bibshelf/internal/writeback"
)

// ErrClosed is returned by every operation on a closed session.
var ErrClosed = errors.New("session closed")

// Session is one open library. Library state is only touched while the
// editor lock is held; Edit and View take it for the caller.
type Session struct {
	editor sync.Mutex

	settings *config.Settings
	log      *logging.Logger

	db     *storage.DB
	lib    *library.Library
	files  *filestore.Store
	search *search.Engine
	pool   *worker.Pool
	finder *dedupe.Finder
	doi    *doi.Client
	im     *importer.Importer
	wb     *writeback.Coordinator

	closed bool
}

type options struct {
	log      *logging.Logger
	now      func() time.Time
	doi      []doi.ClientOption
	autoSave bool
}

// Option configures Open and Create.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock sets the time source for document stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithDOIOptions adds options to the DOI client, e.g. a test server URL.
func WithDOIOptions(opts ...doi.ClientOption) Option {
	return func(o *options) { o.doi = append(o.doi, opts...) }
}

// WithoutAutoSave disables the periodic flush. Close still flushes.
func WithoutAutoSave() Option {
	return func(o *options) { o.autoSave = false }
}

// LibraryPath resolves a library name or path. Bare names are placed in the
// storage folder and get the .sqlite suffix.
func LibraryPath(name string, s *config.Settings) string {
	name = config.ExpandPath(name)
	if !strings.HasSuffix(name, storage.FileSuffix) {
		name += storage.FileSuffix
	}
	if !strings.ContainsRune(name, os.PathSeparator) {
		name = filepath.Join(s.Saving.StorageFolder, name)
	}
	return name
}

// Open opens the library at path.
func Open(path string, s *config.Settings, opts ...Option) (*Session, error) {
	if err := s.EnsureStorage(); err != nil {
		return nil, liberr.New(liberr.ErrIO, "open library", s.Saving.StorageFolder, err)
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	return start(db, s, opts)
}

// Create creates a library at path and opens it. An existing file is
// never overwritten.
func Create(path string, s *config.Settings, opts ...Option) (*Session, error) {
	if err := s.EnsureStorage(); err != nil {
		return nil, liberr.New(liberr.ErrIO, "create library", s.Saving.StorageFolder, err)
	}
	db, err := storage.CreateNew(path)
	if err != nil {
		return nil, err
	}
	return start(db, s, opts)
}

func start(db *storage.DB, s *config.Settings, optList []Option) (*Session, error) {
	o := options{autoSave: true}
	for _, opt := range optList {
		opt(&o)
	}
	log := logging.OrNop(o.log).With("library", db.Path())

	snap, err := db.ReadAll()
	if err != nil {
		db.Close()
		return nil, err
	}
	var libOpts []library.Option
	if o.now != nil {
		libOpts = append(libOpts, library.WithClock(o.now))
	}
	lib := library.New(libOpts...)
	lib.Load(snap)

	// Attachments live next to the library file.
	libDir := filepath.Dir(db.Path())
	files, err := filestore.New(libDir, filestore.Options{
		Rename:       s.Saving.RenameFiles,
		ReplaceSpace: s.Saving.RenameFileReplaceSpace,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s.Saving.CurrentLibFolder = files.Root()

	doiOpts := []doi.ClientOption{doi.WithTimeout(s.DOITimeout())}
	if s.DOI.Mailto != "" {
		doiOpts = append(doiOpts, doi.WithMailto(s.DOI.Mailto))
	}
	doiOpts = append(doiOpts, o.doi...)

	ss := &Session{
		settings: s,
		log:      log,
		db:       db,
		lib:      lib,
		files:    files,
		pool:     worker.NewPool(s.Worker.Size, log),
		doi:      doi.NewClient(doiOpts...),
	}
	ss.search = search.New(db, lib)
	ss.finder = dedupe.NewFinder(ss.pool, s.Duplicate.MinScore)
	ss.im = importer.New(ss.pool, importer.WithResolver(ss.doi), importer.WithLogger(log))
	ss.wb = writeback.New(lib, &ss.editor, db, files, log)
	ss.wb.Prime()

	if o.autoSave {
		if err := ss.wb.Start(s.AutoSaveInterval()); err != nil {
			db.Close()
			return nil, err
		}
	}
	log.Info("library opened", "documents", lib.Len(), "folders", len(lib.Folders()))
	return ss, nil
}

// Close stops the periodic flush, flushes what is dirty and closes the
// store. The store is closed even when the flush fails.
func (s *Session) Close() error {
	s.editor.Lock()
	if s.closed {
		s.editor.Unlock()
		return nil
	}
	s.closed = true
	s.editor.Unlock()

	s.wb.Stop()
	_, flushErr := s.wb.Flush()
	closeErr := s.db.Close()
	if flushErr != nil {
		s.log.Error("final flush failed", "error", flushErr)
	}
	s.log.Debug("library closed")
	return errors.Join(flushErr, closeErr)
}

// Err returns the fatal error that poisoned the session, if any. A
// poisoned session rejects edits and must be reopened.
func (s *Session) Err() error {
	return s.wb.Err()
}

func (s *Session) usable() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.wb.Err(); err != nil {
		return fmt.Errorf("library must be reopened: %w", err)
	}
	return nil
}

// Edit runs fn with the editor lock held.
func (s *Session) Edit(fn func(lib *library.Library) error) error {
	s.editor.Lock()
	defer s.editor.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	return fn(s.lib)
}

// View runs fn with the editor lock held. fn must not mutate the library.
func (s *Session) View(fn func(lib *library.Library)) error {
	s.editor.Lock()
	defer s.editor.Unlock()
	if s.closed {
		return ErrClosed
	}
	fn(s.lib)
	return nil
}

// Save flushes every dirty folder and document now.
func (s *Session) Save() (writeback.Report, error) {
	if err := s.Edit(func(*library.Library) error { return nil }); err != nil {
		return writeback.Report{}, err
	}
	return s.wb.Flush()
}

// Settings returns the settings the session was opened with.
func (s *Session) Settings() *config.Settings {
	return s.settings
}

// Files returns the attachment area.
func (s *Session) Files() *filestore.Store {
	return s.files
}

// Pool returns the batch worker pool, e.g. to abort a running batch.
func (s *Session) Pool() *worker.Pool {
	return s.pool
}

// Path returns the library file path.
func (s *Session) Path() string {
	return s.db.Path()
}

// Check verifies the in-memory invariants and the database integrity.
func (s *Session) Check() error {
	var libErr error
	if err := s.View(func(lib *library.Library) { libErr = lib.Check() }); err != nil {
		return err
	}
	return errors.Join(libErr, s.db.IntegrityCheck())
}

// Info describes an open library.
type Info struct {
	Path      string `json:"path"`
	Files     string `json:"files"`
	Documents int    `json:"documents"`
	Folders   int    `json:"folders"`
	Review    int    `json:"needs_review"`
	Trash     int    `json:"trash"`
	Dirty     int    `json:"dirty"`
}

// Info returns counts for the open library.
func (s *Session) Info() (Info, error) {
	info := Info{Path: s.db.Path(), Files: s.files.Root()}
	err := s.View(func(lib *library.Library) {
		info.Documents = lib.Len()
		info.Folders = len(lib.Folders())
		info.Review = len(lib.FolderScope(docmeta.FolderReview, false))
		info.Trash = len(lib.FolderScope(docmeta.FolderTrash, false))
		info.Dirty = lib.DirtyCount()
	})
	return info, err
}
