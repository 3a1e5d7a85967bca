// Package writeback drains the library's dirty sets into the store and the
// file store, periodically and on demand.
package writeback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/library"
	"github.com/matsen/bibshelf/internal/logging"
)

// Store is the persistence the coordinator writes to. *storage.DB implements it.
type Store interface {
	WriteDocument(m *docmeta.Meta) error
	DeleteDocument(id int64) ([]string, error)
	WriteFolder(id int64, name string, parentID int64) error
	DeleteFolder(id int64) error
}

// Files deletes attachments of destroyed documents. *filestore.Store implements it.
type Files interface {
	Detach(rel string) error
}

// Report summarizes one call to Flush.
type Report struct {
	Passes    int     `json:"passes"`    // drain-and-write rounds run
	Coalesced bool    `json:"coalesced"` // a running flush will pick up the request
	Folders   []int64 `json:"folders,omitempty"`
	Written   []int64 `json:"written,omitempty"`
	Deleted   []int64 `json:"deleted,omitempty"`
	Skipped   []int64 `json:"skipped,omitempty"` // dirty but equal to the committed copy
	Failed    []int64 `json:"failed,omitempty"`

	FailedFolders []int64 `json:"failed_folders,omitempty"`
}

func (r *Report) merge(o Report) {
	r.Passes += o.Passes
	r.Folders = append(r.Folders, o.Folders...)
	r.Written = append(r.Written, o.Written...)
	r.Deleted = append(r.Deleted, o.Deleted...)
	r.Skipped = append(r.Skipped, o.Skipped...)
	r.Failed = append(r.Failed, o.Failed...)
	r.FailedFolders = append(r.FailedFolders, o.FailedFolders...)
}

// Coordinator flushes one library. At most one flush runs at a time; a
// flush requested while another runs is coalesced into a single follow-up
// pass over whatever was dirtied meanwhile.
type Coordinator struct {
	lib    *library.Library
	editor sync.Locker // guards lib
	store  Store
	files  Files
	log    *logging.Logger

	state   sync.Mutex
	running bool
	pending bool
	fatal   error

	// Owned by the running flush.
	committed map[int64]*docmeta.Meta
	failures  map[failureKey]int
	surfaced  map[failureKey]bool

	cron *cron.Cron
}

// New returns a coordinator. editor must be held by every goroutine that
// touches lib.
func New(lib *library.Library, editor sync.Locker, store Store, files Files, log *logging.Logger) *Coordinator {
	return &Coordinator{
		lib:       lib,
		editor:    editor,
		store:     store,
		files:     files,
		log:       logging.OrNop(log),
		committed: make(map[int64]*docmeta.Meta),
		failures:  make(map[failureKey]int),
		surfaced:  make(map[failureKey]bool),
	}
}

// Prime records the current library contents as committed, so that later
// dirty marks which leave a document unchanged are not rewritten.
func (c *Coordinator) Prime() {
	c.editor.Lock()
	defer c.editor.Unlock()
	for _, id := range c.lib.IDs() {
		m, _ := c.lib.Document(id)
		c.committed[id] = m
	}
}

// Start runs Flush every interval until Stop.
func (c *Coordinator) Start(interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("auto-save interval %s is below one second", interval)
	}
	c.cron = cron.New()
	_, err := c.cron.AddFunc("@every "+interval.String(), func() {
		if _, err := c.Flush(); err != nil {
			c.log.Error("periodic flush failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling auto-save: %w", err)
	}
	c.cron.Start()
	c.log.Debug("auto-save started", "interval", interval)
	return nil
}

// Stop halts the periodic flush and waits for a running one to finish.
func (c *Coordinator) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.cron = nil
}

// Err returns the fatal error that ended the session, if any.
func (c *Coordinator) Err() error {
	c.state.Lock()
	defer c.state.Unlock()
	return c.fatal
}

// Flush writes every dirty folder and document. When another flush is
// running it only schedules a follow-up pass and returns a Coalesced report.
// Ids that fail to write stay dirty for the next flush.
func (c *Coordinator) Flush() (Report, error) {
	c.state.Lock()
	if c.fatal != nil {
		c.state.Unlock()
		return Report{}, c.fatal
	}
	if c.running {
		c.pending = true
		c.state.Unlock()
		return Report{Coalesced: true}, nil
	}
	c.running = true
	c.state.Unlock()

	var total Report
	var retry library.Dirty
	var err error
	for {
		var r Report
		var failed library.Dirty
		r, failed, err = c.pass()
		total.merge(r)
		retry = mergeDirty(retry, failed)

		c.state.Lock()
		if err != nil || !c.pending {
			c.running, c.pending = false, false
			if liberr.IsFatal(err) {
				c.fatal = err
			}
			c.state.Unlock()
			break
		}
		c.pending = false
		c.state.Unlock()
	}

	if len(retry.Docs) > 0 || len(retry.Folders) > 0 {
		c.editor.Lock()
		c.lib.MarkDirty(retry)
		c.editor.Unlock()
	}
	return total, err
}

type failureKey struct {
	what string
	id   int64
}

type folderOp struct {
	id     int64
	folder docmeta.Folder
	live   bool
}

type docOp struct {
	id    int64
	doc   *docmeta.Meta   // nil when destroyed
	files []string        // files referenced at destruction
	inUse map[string]bool // files still listed by live documents
}

// snapshot drains the dirty sets and copies what must be written.
func (c *Coordinator) snapshot() ([]folderOp, []docOp) {
	c.editor.Lock()
	defer c.editor.Unlock()

	d := c.lib.DrainDirty()
	folders := make([]folderOp, 0, len(d.Folders))
	for _, id := range d.Folders {
		f, ok := c.lib.Folder(id)
		folders = append(folders, folderOp{id: id, folder: f, live: ok})
	}
	docs := make([]docOp, 0, len(d.Docs))
	var inUse map[string]bool
	for _, id := range d.Docs {
		m, ok := c.lib.Document(id)
		if !ok {
			if inUse == nil {
				inUse = c.lib.ReferencedFiles()
			}
			docs = append(docs, docOp{id: id, files: d.Destroyed[id], inUse: inUse})
			continue
		}
		docs = append(docs, docOp{id: id, doc: m})
	}
	return folders, docs
}

// pass runs one drain-and-write round: live folders, then documents in
// ascending id order, then deleted folders.
func (c *Coordinator) pass() (Report, library.Dirty, error) {
	folders, docs := c.snapshot()
	r := Report{Passes: 1}
	var failed library.Dirty
	if len(folders) == 0 && len(docs) == 0 {
		return r, failed, nil
	}

	failDoc := func(op docOp) {
		failed.Docs = append(failed.Docs, op.id)
		if op.doc == nil {
			if failed.Destroyed == nil {
				failed.Destroyed = make(map[int64][]string)
			}
			failed.Destroyed[op.id] = op.files
		}
	}
	remainingDocs := func(from int) {
		for _, op := range docs[from:] {
			failDoc(op)
		}
	}

	for i, op := range folders {
		if !op.live {
			continue
		}
		if err := c.store.WriteFolder(op.id, op.folder.Name, op.folder.ParentID); err != nil {
			failed.Folders = append(failed.Folders, op.id)
			if liberr.IsFatal(err) {
				for _, rest := range folders[i+1:] {
					failed.Folders = append(failed.Folders, rest.id)
				}
				remainingDocs(0)
				return r, failed, err
			}
			c.fail(op.id, "folder", err)
			r.FailedFolders = append(r.FailedFolders, op.id)
			continue
		}
		delete(c.failures, failureKey{"folder", op.id})
		r.Folders = append(r.Folders, op.id)
	}

	for i, op := range docs {
		var err error
		switch {
		case op.doc == nil:
			err = c.destroy(op)
			if err == nil {
				r.Deleted = append(r.Deleted, op.id)
			}
		case docmeta.Equal(c.committed[op.id], op.doc):
			r.Skipped = append(r.Skipped, op.id)
			continue
		default:
			err = c.store.WriteDocument(op.doc)
			if err == nil {
				c.committed[op.id] = op.doc
				r.Written = append(r.Written, op.id)
			}
		}
		if err == nil {
			delete(c.failures, failureKey{"document", op.id})
			continue
		}
		if liberr.IsFatal(err) {
			remainingDocs(i)
			return r, failed, err
		}
		failDoc(op)
		c.fail(op.id, "document", err)
		r.Failed = append(r.Failed, op.id)
	}

	for _, op := range folders {
		if op.live {
			continue
		}
		if err := c.store.DeleteFolder(op.id); err != nil {
			failed.Folders = append(failed.Folders, op.id)
			if liberr.IsFatal(err) {
				return r, failed, err
			}
			c.fail(op.id, "folder", err)
			r.FailedFolders = append(r.FailedFolders, op.id)
			continue
		}
		r.Folders = append(r.Folders, op.id)
	}

	if len(r.Failed)+len(r.FailedFolders) > 0 {
		c.log.Warn("flush incomplete", "failed_docs", len(r.Failed), "failed_folders", len(r.FailedFolders))
	} else {
		c.log.Debug("flushed", "folders", len(r.Folders), "written", len(r.Written), "deleted", len(r.Deleted))
	}
	return r, failed, nil
}

// destroy deletes the stored document and every file it referenced, in the
// store or in memory, unless a live document still lists the file. Missing
// files are ignored.
func (c *Coordinator) destroy(op docOp) error {
	stored, err := c.store.DeleteDocument(op.id)
	if err != nil {
		return err
	}
	delete(c.committed, op.id)

	seen := make(map[string]bool)
	for _, rel := range append(stored, op.files...) {
		if rel == "" || seen[rel] {
			continue
		}
		seen[rel] = true
		if op.inUse[rel] {
			c.log.Warn("keeping attachment still in use", "doc", op.id, "file", rel)
			continue
		}
		if err := c.files.Detach(rel); err != nil && !errors.Is(err, liberr.ErrNotFound) {
			c.log.Warn("could not delete attachment", "doc", op.id, "file", rel, "error", err)
		}
	}
	return nil
}

// fail counts a write failure. The second consecutive failure of an id is
// reported once per session; later ones only at debug level.
func (c *Coordinator) fail(id int64, what string, err error) {
	key := failureKey{what, id}
	c.failures[key]++
	if c.failures[key] >= 2 && !c.surfaced[key] {
		c.surfaced[key] = true
		c.log.Error("write keeps failing", what, id, "attempts", c.failures[key], "error", err)
		return
	}
	c.log.Debug("write failed, will retry", what, id, "error", err)
}

func mergeDirty(a, b library.Dirty) library.Dirty {
	a.Docs = append(a.Docs, b.Docs...)
	a.Folders = append(a.Folders, b.Folders...)
	for id, files := range b.Destroyed {
		if a.Destroyed == nil {
			a.Destroyed = make(map[int64][]string)
		}
		a.Destroyed[id] = files
	}
	return a
}
