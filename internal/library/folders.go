package library

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

// TreeNode is one entry of a pre-order folder listing.
type TreeNode struct {
	docmeta.Folder
	Depth int `json:"depth"`
}

// Folder returns a folder by id. Reserved ids resolve to their virtual folder.
func (l *Library) Folder(id int64) (docmeta.Folder, bool) {
	if docmeta.IsReserved(id) {
		return docmeta.Folder{ID: id, Name: docmeta.ReservedName(id), ParentID: docmeta.FolderAll}, true
	}
	f, ok := l.folders[id]
	return f, ok
}

// Folders returns every user folder ordered by id.
func (l *Library) Folders() []docmeta.Folder {
	out := make([]docmeta.Folder, 0, len(l.folders))
	for _, f := range l.folders {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b docmeta.Folder) int { return cmpID(a.ID, b.ID) })
	return out
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// FolderDocs returns the member ids of a folder in ascending order.
func (l *Library) FolderDocs(fid int64) []int64 {
	return l.folderDocs[fid].sorted()
}

// InTrash reports whether folder fid is the Trash or lies beneath it.
func (l *Library) InTrash(fid int64) bool {
	for range len(l.folders) + 1 {
		if fid == docmeta.FolderTrash {
			return true
		}
		f, ok := l.folders[fid]
		if !ok {
			return false
		}
		fid = f.ParentID
	}
	return false
}

// FolderPath returns the slash-separated names from the top level down to fid.
func (l *Library) FolderPath(fid int64) string {
	var parts []string
	for range len(l.folders) {
		f, ok := l.folders[fid]
		if !ok {
			break
		}
		parts = append(parts, f.Name)
		fid = f.ParentID
	}
	slices.Reverse(parts)
	return strings.Join(parts, "/")
}

func (l *Library) validParent(op string, parentID int64) error {
	if parentID == docmeta.FolderAll || parentID == docmeta.FolderTrash {
		return nil
	}
	if parentID == docmeta.FolderReview {
		return fmt.Errorf("%s: %w: Needs Review cannot hold folders", op, ErrReservedFolder)
	}
	if _, ok := l.folders[parentID]; !ok {
		return liberr.New(liberr.ErrNotFound, op, fmt.Sprintf("folder %d", parentID), nil)
	}
	return nil
}

// siblingConflict reports whether a folder other than self named name sits under parentID.
func (l *Library) siblingConflict(name string, parentID, self int64) bool {
	for id, f := range l.folders {
		if id != self && f.ParentID == parentID && f.Name == name {
			return true
		}
	}
	return false
}

func checkName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%s: folder name is empty", op)
	}
	if strings.Contains(name, "/") {
		return "", fmt.Errorf("%s: folder name %q contains '/'", op, name)
	}
	return name, nil
}

// CreateFolder adds a folder under parentID and returns its id. A sibling
// with the same name fails with ErrNameConflict and changes nothing.
func (l *Library) CreateFolder(name string, parentID int64) (int64, error) {
	name, err := checkName("create folder", name)
	if err != nil {
		return 0, err
	}
	if err := l.validParent("create folder", parentID); err != nil {
		return 0, err
	}
	if l.siblingConflict(name, parentID, -1) {
		return 0, liberr.New(liberr.ErrNameConflict, "create folder", name, nil)
	}
	l.maxFolderID++
	id := l.maxFolderID
	l.folders[id] = docmeta.Folder{ID: id, Name: name, ParentID: parentID}
	l.dirtyFolders[id] = struct{}{}
	return id, nil
}

// RenameFolder renames a folder, re-checking sibling uniqueness, and
// refreshes the folder name mirrored in every member document.
func (l *Library) RenameFolder(id int64, name string) error {
	f, ok := l.folders[id]
	if !ok {
		return liberr.New(liberr.ErrNotFound, "rename folder", fmt.Sprintf("folder %d", id), nil)
	}
	name, err := checkName("rename folder", name)
	if err != nil {
		return err
	}
	if name == f.Name {
		return nil
	}
	if l.siblingConflict(name, f.ParentID, id) {
		return liberr.New(liberr.ErrNameConflict, "rename folder", name, nil)
	}
	f.Name = name
	l.folders[id] = f
	for docID := range l.folderDocs[id] {
		m := l.docs[docID]
		for i := range m.Folders {
			if m.Folders[i].ID == id {
				m.Folders[i].Name = name
			}
		}
	}
	l.dirtyFolders[id] = struct{}{}
	return nil
}

// isAncestor reports whether anc is fid or one of its ancestors.
func (l *Library) isAncestor(anc, fid int64) bool {
	for range len(l.folders) + 1 {
		if fid == anc {
			return true
		}
		f, ok := l.folders[fid]
		if !ok {
			return false
		}
		fid = f.ParentID
	}
	return false
}

// subtree returns fid and all of its transitive descendants.
func (l *Library) subtree(fid int64) []int64 {
	children := make(map[int64][]int64)
	for id, f := range l.folders {
		children[f.ParentID] = append(children[f.ParentID], id)
	}
	var out []int64
	stack := []int64{fid}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := l.folders[cur]; ok {
			out = append(out, cur)
		}
		stack = append(stack, children[cur]...)
	}
	slices.Sort(out)
	return out
}

// subtreeDocs returns the ids of documents in fid or any descendant.
func (l *Library) subtreeDocs(fid int64) idSet {
	docs := make(idSet)
	for _, id := range l.subtree(fid) {
		for docID := range l.folderDocs[id] {
			docs[docID] = struct{}{}
		}
	}
	return docs
}

// MoveFolder re-parents a folder. Leaving the trash restores every document
// the folder transitively contains; entering it sends orphaned documents to
// the trash.
func (l *Library) MoveFolder(id, newParent int64) error {
	f, ok := l.folders[id]
	if !ok {
		return liberr.New(liberr.ErrNotFound, "move folder", fmt.Sprintf("folder %d", id), nil)
	}
	if err := l.validParent("move folder", newParent); err != nil {
		return err
	}
	if !docmeta.IsReserved(newParent) && l.isAncestor(id, newParent) {
		return fmt.Errorf("move folder %d: %w", id, ErrCycle)
	}
	if id == docmeta.FolderDefault && l.isAncestor(docmeta.FolderTrash, newParent) {
		return fmt.Errorf("move folder %d: %w: Default cannot be trashed", id, ErrReservedFolder)
	}
	if f.ParentID == newParent {
		return nil
	}
	if l.siblingConflict(f.Name, newParent, id) {
		return liberr.New(liberr.ErrNameConflict, "move folder", f.Name, nil)
	}
	l.reparent(id, newParent)
	return nil
}

func (l *Library) reparent(id, newParent int64) {
	wasTrashed := l.InTrash(id)
	f := l.folders[id]
	f.ParentID = newParent
	l.folders[id] = f
	l.dirtyFolders[id] = struct{}{}
	nowTrashed := l.InTrash(id)

	switch {
	case wasTrashed && !nowTrashed:
		for docID := range l.subtreeDocs(id) {
			l.setPending(l.docs[docID], false)
		}
	case !wasTrashed && nowTrashed:
		for docID := range l.subtreeDocs(id) {
			l.applyOrphanRule(l.docs[docID])
		}
	}
	if l.InTrash(l.active) {
		l.active = docmeta.FolderDefault
	}
}

// TrashFolder moves a folder under the Trash and sends every transitively
// contained orphan document to the trash. A name clash with another trashed
// folder is resolved by suffixing " (n)".
func (l *Library) TrashFolder(id int64) error {
	f, ok := l.folders[id]
	if !ok {
		return liberr.New(liberr.ErrNotFound, "trash folder", fmt.Sprintf("folder %d", id), nil)
	}
	if id == docmeta.FolderDefault {
		return fmt.Errorf("trash folder %d: %w: Default cannot be trashed", id, ErrReservedFolder)
	}
	if f.ParentID == docmeta.FolderTrash {
		return nil
	}
	name := f.Name
	for n := 2; l.siblingConflict(name, docmeta.FolderTrash, id); n++ {
		name = fmt.Sprintf("%s (%d)", f.Name, n)
	}
	if name != f.Name {
		if err := l.RenameFolder(id, name); err != nil {
			return err
		}
	}
	l.reparent(id, docmeta.FolderTrash)
	return nil
}

// EmptyResult lists what EmptyTrash removed.
type EmptyResult struct {
	Documents []int64 `json:"documents"`
	Folders   []int64 `json:"folders"`
}

// EmptyTrash destroys every pending document and deletes every trashed
// folder. Documents that still have a live folder only lose their
// membership in the deleted folders.
func (l *Library) EmptyTrash() EmptyResult {
	var res EmptyResult
	for _, id := range l.folderDocs[docmeta.FolderTrash].sorted() {
		if err := l.DestroyDocument(id); err == nil {
			res.Documents = append(res.Documents, id)
		}
	}

	var trashed []int64
	for id := range l.folders {
		if l.InTrash(id) {
			trashed = append(trashed, id)
		}
	}
	slices.Sort(trashed)
	for _, fid := range trashed {
		for _, docID := range l.folderDocs[fid].sorted() {
			l.removeMembership(l.docs[docID], fid)
		}
		delete(l.folders, fid)
		delete(l.folderDocs, fid)
		l.dirtyFolders[fid] = struct{}{}
	}
	res.Folders = trashed
	return res
}

// ListFolderTree returns fromID (unless reserved) followed by its
// descendants in pre-order. Children are ordered by name.
func (l *Library) ListFolderTree(fromID int64) []TreeNode {
	children := make(map[int64][]docmeta.Folder)
	for _, f := range l.folders {
		children[f.ParentID] = append(children[f.ParentID], f)
	}
	for _, list := range children {
		slices.SortFunc(list, func(a, b docmeta.Folder) int {
			if c := strings.Compare(a.Name, b.Name); c != 0 {
				return c
			}
			return cmpID(a.ID, b.ID)
		})
	}

	var out []TreeNode
	var walk func(fid int64, depth int)
	walk = func(fid int64, depth int) {
		for _, c := range children[fid] {
			out = append(out, TreeNode{Folder: c, Depth: depth})
			walk(c.ID, depth+1)
		}
	}

	if docmeta.IsReserved(fromID) {
		walk(fromID, 0)
		return out
	}
	f, ok := l.folders[fromID]
	if !ok {
		return nil
	}
	out = append(out, TreeNode{Folder: f, Depth: 0})
	walk(fromID, 1)
	return out
}

// FolderByPath resolves a slash-separated path of names from the top level.
func (l *Library) FolderByPath(path string) (int64, bool) {
	parent := docmeta.FolderAll
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		found := false
		for id, f := range l.folders {
			if f.ParentID == parent && f.Name == name {
				parent, found = id, true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return parent, parent != docmeta.FolderAll
}
