package library

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
)

// PredicateKind selects the field a Predicate compares.
type PredicateKind int

const (
	ByAuthor PredicateKind = iota
	ByKeyword
	ByTag
	ByPublication
)

// ParsePredicateKind maps "author", "keyword", "tag" or "publication" to a kind.
func ParsePredicateKind(s string) (PredicateKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "author":
		return ByAuthor, nil
	case "keyword":
		return ByKeyword, nil
	case "tag":
		return ByTag, nil
	case "publication", "journal":
		return ByPublication, nil
	}
	return 0, fmt.Errorf("unknown filter field %q", s)
}

// Predicate is an equality test against one field.
type Predicate struct {
	Kind  PredicateKind
	Value string
}

// Match reports whether m satisfies p. Author values match either the
// "Last, First" form or the last name alone.
func (p Predicate) Match(m *docmeta.Meta) bool {
	switch p.Kind {
	case ByAuthor:
		for i, last := range m.LastNames {
			if last == p.Value || docmeta.FormatName(m.FirstNames[i], last) == p.Value {
				return true
			}
		}
		return false
	case ByKeyword:
		return slices.Contains(m.Keywords, p.Value)
	case ByTag:
		return slices.Contains(m.Tags, p.Value)
	case ByPublication:
		return m.Publication == p.Value
	}
	return false
}

// FolderScope returns the ids visible in folder fid, ascending. All returns
// every document; Needs Review and Trash return their flag-derived members;
// with descend a user folder includes its transitive descendants.
func (l *Library) FolderScope(fid int64, descend bool) []int64 {
	switch {
	case fid == docmeta.FolderAll:
		return l.IDs()
	case docmeta.IsReserved(fid):
		return l.folderDocs[fid].sorted()
	case descend:
		return l.subtreeDocs(fid).sorted()
	default:
		return l.folderDocs[fid].sorted()
	}
}

// FilterInFolder returns the ids in the folder scope that satisfy p.
func (l *Library) FilterInFolder(fid int64, descend bool, p Predicate) []int64 {
	var out []int64
	for _, id := range l.FolderScope(fid, descend) {
		if p.Match(l.docs[id]) {
			out = append(out, id)
		}
	}
	return out
}
