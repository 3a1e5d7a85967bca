// Package library holds the in-memory aggregate of one open library: the
// documents, the folder tree and the folder membership index. It is not
// safe for concurrent use; callers serialize access through one editor.
package library

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/storage"
)

var (
	// ErrNotInTrash is returned when destroying a document that is not pending deletion.
	ErrNotInTrash = errors.New("document is not in the trash")

	// ErrNoLiveFolder is returned when restoring a document that has no folder outside the trash.
	ErrNoLiveFolder = errors.New("document has no folder outside the trash")

	// ErrManagedField is returned when an update names a field the library maintains.
	ErrManagedField = errors.New("field is maintained by the library")

	// ErrCycle is returned when a move would make a folder its own ancestor.
	ErrCycle = errors.New("folder cannot be moved under itself")

	// ErrReservedFolder is returned for operations a reserved or Default folder does not allow.
	ErrReservedFolder = errors.New("operation not allowed on this folder")

	// ErrFolderInTrash is returned when placing a document into a trashed folder.
	ErrFolderInTrash = errors.New("folder is in the trash")
)

type idSet map[int64]struct{}

func (s idSet) sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Library is the aggregate of documents, folders and memberships.
type Library struct {
	docs       map[int64]*docmeta.Meta
	folders    map[int64]docmeta.Folder
	folderDocs map[int64]idSet // includes FolderReview and FolderTrash

	dirtyDocs    idSet
	dirtyFolders idSet
	destroyed    map[int64][]string // destroyed doc id -> files it referenced

	maxDocID    int64
	maxFolderID int64
	active      int64

	now func() time.Time
}

// Option configures a Library.
type Option func(*Library)

// WithClock sets the time source used for added/lastUpdate stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// New returns an empty library holding only the Default folder.
func New(opts ...Option) *Library {
	l := &Library{
		docs:         make(map[int64]*docmeta.Meta),
		folders:      make(map[int64]docmeta.Folder),
		folderDocs:   make(map[int64]idSet),
		dirtyDocs:    make(idSet),
		dirtyFolders: make(idSet),
		destroyed:    make(map[int64][]string),
		active:       docmeta.FolderDefault,
		now:          time.Now,
	}
	l.folders[docmeta.FolderDefault] = docmeta.Folder{
		ID:       docmeta.FolderDefault,
		Name:     docmeta.DefaultFolderName,
		ParentID: docmeta.FolderAll,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the library contents with a committed snapshot and clears
// the dirty sets.
func (l *Library) Load(snap *storage.Snapshot) {
	l.docs = make(map[int64]*docmeta.Meta, len(snap.Docs))
	l.folders = make(map[int64]docmeta.Folder, len(snap.Folders))
	l.folderDocs = make(map[int64]idSet)
	l.dirtyDocs = make(idSet)
	l.dirtyFolders = make(idSet)
	l.destroyed = make(map[int64][]string)
	l.maxDocID = snap.MaxDocID
	l.maxFolderID = snap.MaxFolderID

	for id, f := range snap.Folders {
		l.folders[id] = f
		l.maxFolderID = max(l.maxFolderID, id)
	}
	for id, m := range snap.Docs {
		c := m.Clone()
		c.Folders = nil
		l.docs[id] = c
		l.maxDocID = max(l.maxDocID, id)
		l.syncReserved(c)
	}
	for fid, ids := range snap.FolderDocs {
		f, ok := l.folders[fid]
		if !ok {
			continue
		}
		for _, id := range ids {
			if m, ok := l.docs[id]; ok {
				l.member(fid)[id] = struct{}{}
				m.Folders = append(m.Folders, docmeta.FolderRef{ID: fid, Name: f.Name})
			}
		}
	}
	for _, m := range l.docs {
		sortRefs(m.Folders)
	}
	if _, ok := l.folders[l.active]; !ok || l.InTrash(l.active) {
		l.active = docmeta.FolderDefault
	}
}

func (l *Library) member(fid int64) idSet {
	s, ok := l.folderDocs[fid]
	if !ok {
		s = make(idSet)
		l.folderDocs[fid] = s
	}
	return s
}

// syncReserved makes the Needs Review and Trash memberships follow the flags.
func (l *Library) syncReserved(m *docmeta.Meta) {
	if m.Confirmed {
		delete(l.folderDocs[docmeta.FolderReview], m.ID)
	} else {
		l.member(docmeta.FolderReview)[m.ID] = struct{}{}
	}
	if m.DeletionPending {
		l.member(docmeta.FolderTrash)[m.ID] = struct{}{}
	} else {
		delete(l.folderDocs[docmeta.FolderTrash], m.ID)
	}
}

func sortRefs(refs []docmeta.FolderRef) {
	slices.SortFunc(refs, func(a, b docmeta.FolderRef) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func (l *Library) doc(op string, id int64) (*docmeta.Meta, error) {
	m, ok := l.docs[id]
	if !ok {
		return nil, liberr.New(liberr.ErrNotFound, op, fmt.Sprintf("document %d", id), nil)
	}
	return m, nil
}

// Len returns the number of documents.
func (l *Library) Len() int {
	return len(l.docs)
}

// IDs returns every document id in ascending order.
func (l *Library) IDs() []int64 {
	ids := make([]int64, 0, len(l.docs))
	for id := range l.docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Document returns a copy of one document.
func (l *Library) Document(id int64) (*docmeta.Meta, bool) {
	m, ok := l.docs[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Has reports whether id is a live document.
func (l *Library) Has(id int64) bool {
	_, ok := l.docs[id]
	return ok
}

// ActiveFolder returns the folder new documents land in by default.
func (l *Library) ActiveFolder() int64 {
	return l.active
}

// SetActiveFolder selects the folder new documents land in by default.
func (l *Library) SetActiveFolder(fid int64) error {
	if _, ok := l.folders[fid]; !ok {
		return liberr.New(liberr.ErrNotFound, "set active folder", fmt.Sprintf("folder %d", fid), nil)
	}
	if l.InTrash(fid) {
		return ErrFolderInTrash
	}
	l.active = fid
	return nil
}

// AddDocument inserts a copy of m with a fresh id into target, or into the
// active folder when target is reserved. Unconfirmed documents also join
// Needs Review. The new id is returned.
func (l *Library) AddDocument(m *docmeta.Meta, target int64) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, fmt.Errorf("add document: %w", err)
	}
	if docmeta.IsReserved(target) {
		target = l.active
	}
	f, ok := l.folders[target]
	if !ok {
		return 0, liberr.New(liberr.ErrNotFound, "add document", fmt.Sprintf("folder %d", target), nil)
	}
	if l.InTrash(target) {
		return 0, ErrFolderInTrash
	}

	c := m.Clone()
	c.Normalize()
	l.maxDocID++
	c.ID = l.maxDocID
	now := l.now().Unix()
	if c.Added == 0 {
		c.Added = now
	}
	c.LastUpdate = now
	c.CitationKey = c.CiteKey()
	c.DeletionPending = false
	c.Folders = []docmeta.FolderRef{{ID: target, Name: f.Name}}

	l.docs[c.ID] = c
	l.member(target)[c.ID] = struct{}{}
	l.syncReserved(c)
	l.dirtyDocs[c.ID] = struct{}{}
	return c.ID, nil
}

// UpdateDocument copies the listed fields from patch into document id.
// authors_l replaces both name lists. Unknown keys are ignored; the
// library-maintained folders_l and deletionPending are rejected.
// An update that changes nothing leaves the document clean.
func (l *Library) UpdateDocument(id int64, patch *docmeta.Meta, fields []string) error {
	m, err := l.doc("update document", id)
	if err != nil {
		return err
	}

	next := m.Clone()
	stamped := false
	for _, key := range fields {
		switch key {
		case docmeta.FieldFolders, docmeta.FieldDeletionPending:
			return fmt.Errorf("update document %d: %w: %s", id, ErrManagedField, key)
		case docmeta.FieldLastUpdate:
			stamped = true
		}
		if !docmeta.IsField(key) {
			continue
		}
		if err := next.CopyField(patch, key); err != nil {
			return fmt.Errorf("update document %d: %w", id, err)
		}
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("update document %d: %w", id, err)
	}
	next.Normalize()
	if docmeta.Equal(m, next) {
		return nil
	}
	if !stamped {
		next.LastUpdate = l.now().Unix()
	}

	l.docs[id] = next
	l.syncReserved(next)
	l.dirtyDocs[id] = struct{}{}
	return nil
}

// liveFolders returns the document's memberships outside the trash subtree.
func (l *Library) liveFolders(m *docmeta.Meta) []int64 {
	var out []int64
	for _, ref := range m.Folders {
		if !l.InTrash(ref.ID) {
			out = append(out, ref.ID)
		}
	}
	return out
}

// IsOrphan reports whether a document has no folder outside the trash.
func (l *Library) IsOrphan(id int64) bool {
	m, ok := l.docs[id]
	return ok && len(l.liveFolders(m)) == 0
}

// applyOrphanRule marks a document with no live membership as pending deletion.
func (l *Library) applyOrphanRule(m *docmeta.Meta) {
	if m.DeletionPending || len(l.liveFolders(m)) > 0 {
		return
	}
	m.DeletionPending = true
	l.syncReserved(m)
	l.dirtyDocs[m.ID] = struct{}{}
}

func (l *Library) setPending(m *docmeta.Meta, pending bool) {
	if m.DeletionPending == pending {
		return
	}
	m.DeletionPending = pending
	l.syncReserved(m)
	l.dirtyDocs[m.ID] = struct{}{}
}

func (l *Library) removeMembership(m *docmeta.Meta, fid int64) bool {
	i := slices.IndexFunc(m.Folders, func(r docmeta.FolderRef) bool { return r.ID == fid })
	if i < 0 {
		return false
	}
	m.Folders = slices.Delete(m.Folders, i, i+1)
	delete(l.folderDocs[fid], m.ID)
	if len(l.folderDocs[fid]) == 0 {
		delete(l.folderDocs, fid)
	}
	l.dirtyDocs[m.ID] = struct{}{}
	return true
}

// AddToFolder adds document id to folder fid. Adding an existing
// membership is a no-op. Joining a live folder takes a pending document
// out of the trash.
func (l *Library) AddToFolder(id, fid int64) error {
	m, err := l.doc("add to folder", id)
	if err != nil {
		return err
	}
	f, ok := l.folders[fid]
	if !ok {
		return liberr.New(liberr.ErrNotFound, "add to folder", fmt.Sprintf("folder %d", fid), nil)
	}
	if m.InFolder(fid) {
		return nil
	}
	m.Folders = append(m.Folders, docmeta.FolderRef{ID: fid, Name: f.Name})
	sortRefs(m.Folders)
	l.member(fid)[id] = struct{}{}
	l.dirtyDocs[id] = struct{}{}
	if !l.InTrash(fid) {
		l.setPending(m, false)
	}
	return nil
}

// SoftDeleteFromFolder removes document id from folder fid. A document left
// without a live folder goes to the trash.
func (l *Library) SoftDeleteFromFolder(id, fid int64) error {
	m, err := l.doc("remove from folder", id)
	if err != nil {
		return err
	}
	if docmeta.IsReserved(fid) {
		return fmt.Errorf("remove from folder %d: %w", fid, ErrReservedFolder)
	}
	if l.removeMembership(m, fid) {
		l.applyOrphanRule(m)
	}
	return nil
}

// SoftDeleteFromLibrary removes every live membership of document id and
// moves it to the trash. Memberships in trashed folders are kept.
func (l *Library) SoftDeleteFromLibrary(id int64) error {
	m, err := l.doc("remove from library", id)
	if err != nil {
		return err
	}
	for _, fid := range l.liveFolders(m) {
		l.removeMembership(m, fid)
	}
	l.applyOrphanRule(m)
	return nil
}

// RestoreFromTrash clears the pending-deletion flag. The document must still
// belong to a folder outside the trash.
func (l *Library) RestoreFromTrash(id int64) error {
	m, err := l.doc("restore document", id)
	if err != nil {
		return err
	}
	if !m.DeletionPending {
		return nil
	}
	if len(l.liveFolders(m)) == 0 {
		return fmt.Errorf("restore document %d: %w", id, ErrNoLiveFolder)
	}
	l.setPending(m, false)
	return nil
}

// RestoreToFolder puts a trashed document into a live folder and restores it.
func (l *Library) RestoreToFolder(id, fid int64) error {
	if _, ok := l.folders[fid]; !ok {
		return liberr.New(liberr.ErrNotFound, "restore document", fmt.Sprintf("folder %d", fid), nil)
	}
	if l.InTrash(fid) {
		return fmt.Errorf("restore document %d: %w", id, ErrFolderInTrash)
	}
	return l.AddToFolder(id, fid)
}

// DestroyDocument permanently removes a pending document. Its files are
// queued for deletion with the next flush. A document that is not pending
// deletion is left untouched.
func (l *Library) DestroyDocument(id int64) error {
	m, err := l.doc("destroy document", id)
	if err != nil {
		return err
	}
	if !m.DeletionPending {
		return fmt.Errorf("destroy document %d: %w", id, ErrNotInTrash)
	}
	for _, ref := range m.Folders {
		delete(l.folderDocs[ref.ID], id)
		if len(l.folderDocs[ref.ID]) == 0 {
			delete(l.folderDocs, ref.ID)
		}
	}
	delete(l.folderDocs[docmeta.FolderReview], id)
	delete(l.folderDocs[docmeta.FolderTrash], id)
	delete(l.docs, id)
	l.destroyed[id] = slices.Clone(m.Files)
	l.dirtyDocs[id] = struct{}{}
	return nil
}

// SetFiles replaces the attachment list of a document.
func (l *Library) SetFiles(id int64, files []string) error {
	patch := &docmeta.Meta{Files: files}
	return l.UpdateDocument(id, patch, []string{docmeta.FieldFiles})
}
