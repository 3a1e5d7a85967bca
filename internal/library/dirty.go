package library

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/matsen/bibshelf/internal/docmeta"
)

// Dirty is a drained batch of ids whose memory state differs from the store.
// A document id absent from the library has been destroyed; Destroyed holds
// the files it referenced. A folder id absent from the library was deleted.
type Dirty struct {
	Docs      []int64
	Folders   []int64
	Destroyed map[int64][]string
}

// Empty reports whether the batch has nothing to write.
func (d Dirty) Empty() bool {
	return len(d.Docs) == 0 && len(d.Folders) == 0
}

// DrainDirty returns and clears the dirty sets.
func (l *Library) DrainDirty() Dirty {
	d := Dirty{
		Docs:      l.dirtyDocs.sorted(),
		Folders:   l.dirtyFolders.sorted(),
		Destroyed: l.destroyed,
	}
	l.dirtyDocs = make(idSet)
	l.dirtyFolders = make(idSet)
	l.destroyed = make(map[int64][]string)
	return d
}

// ReferencedFiles returns the attachment paths listed by any document,
// including documents pending deletion.
func (l *Library) ReferencedFiles() map[string]bool {
	refs := make(map[string]bool)
	for _, m := range l.docs {
		for _, rel := range m.Files {
			refs[rel] = true
		}
	}
	return refs
}

// MarkDirty puts ids back into the dirty sets, typically after a failed write.
func (l *Library) MarkDirty(d Dirty) {
	for _, id := range d.Docs {
		l.dirtyDocs[id] = struct{}{}
		if files, ok := d.Destroyed[id]; ok && !l.Has(id) {
			l.destroyed[id] = files
		}
	}
	for _, id := range d.Folders {
		l.dirtyFolders[id] = struct{}{}
	}
}

// DirtyCount returns the number of dirty documents and folders.
func (l *Library) DirtyCount() int {
	return len(l.dirtyDocs) + len(l.dirtyFolders)
}

// MarkAllDirty queues every document and folder for writing.
func (l *Library) MarkAllDirty() {
	for id := range l.docs {
		l.dirtyDocs[id] = struct{}{}
	}
	for id := range l.folders {
		l.dirtyFolders[id] = struct{}{}
	}
}

// Check verifies the library invariants and reports every violation found.
func (l *Library) Check() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	for _, id := range l.IDs() {
		m := l.docs[id]
		if err := m.Validate(); err != nil {
			bad("document %d: %v", id, err)
		}
		for _, ref := range m.Folders {
			f, ok := l.folders[ref.ID]
			switch {
			case !ok:
				bad("document %d: mirrors unknown folder %d", id, ref.ID)
			case f.Name != ref.Name:
				bad("document %d: mirrors folder %d as %q, folder is named %q", id, ref.ID, ref.Name, f.Name)
			}
			if _, ok := l.folderDocs[ref.ID][id]; !ok {
				bad("document %d: folder %d does not list it", id, ref.ID)
			}
		}
		_, review := l.folderDocs[docmeta.FolderReview][id]
		if review == m.Confirmed {
			bad("document %d: Needs Review membership disagrees with confirmed=%t", id, m.Confirmed)
		}
		_, trash := l.folderDocs[docmeta.FolderTrash][id]
		if trash != m.DeletionPending {
			bad("document %d: Trash membership disagrees with deletionPending=%t", id, m.DeletionPending)
		}
	}

	for _, fid := range slices.Sorted(maps.Keys(l.folderDocs)) {
		for id := range l.folderDocs[fid] {
			m, ok := l.docs[id]
			if !ok {
				bad("folder %d: lists unknown document %d", fid, id)
				continue
			}
			if !docmeta.IsReserved(fid) && !m.InFolder(fid) {
				bad("folder %d: document %d does not mirror it", fid, id)
			}
		}
	}

	type sibling struct {
		parent int64
		name   string
	}
	seen := make(map[sibling]int64)
	for _, f := range l.Folders() {
		if f.ID < 0 {
			bad("folder %d: reserved id stored as a user folder", f.ID)
		}
		if f.ParentID == docmeta.FolderReview {
			bad("folder %d: parented by Needs Review", f.ID)
		}
		if !l.reachesRoot(f.ID) {
			bad("folder %d: parent chain does not reach the root", f.ID)
		}
		key := sibling{f.ParentID, f.Name}
		if other, ok := seen[key]; ok {
			bad("folders %d and %d: sibling name %q", other, f.ID, f.Name)
		}
		seen[key] = f.ID
	}

	return errors.Join(errs...)
}

// reachesRoot walks the parent chain to All or Trash without revisiting a folder.
func (l *Library) reachesRoot(fid int64) bool {
	visited := make(map[int64]bool)
	for {
		if fid == docmeta.FolderAll || fid == docmeta.FolderTrash {
			return true
		}
		f, ok := l.folders[fid]
		if !ok || visited[fid] {
			return false
		}
		visited[fid] = true
		fid = f.ParentID
	}
}
