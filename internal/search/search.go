// Package search answers full-text queries against the committed store
// and scopes the hits to the live folder view of the library.
//
// The index only sees documents as of the last flush. Documents created
// since are invisible; documents destroyed or moved since are filtered out
// here.
package search

import (
	"fmt"

	"github.com/matsen/bibshelf/internal/storage"
)

// Index runs ranked full-text queries. *storage.DB implements it.
type Index interface {
	Search(term string, fields []storage.Field, folderID int64, descend bool) ([]storage.Hit, error)
}

// Scope resolves the ids visible in a folder. *library.Library implements it.
type Scope interface {
	FolderScope(fid int64, descend bool) []int64
}

// Engine combines an index with the in-memory scope.
type Engine struct {
	index Index
	scope Scope
}

// New returns an engine over index and scope.
func New(index Index, scope Scope) *Engine {
	return &Engine{index: index, scope: scope}
}

// Query is one search request.
type Query struct {
	Term     string
	Fields   []storage.Field // empty means every field
	FolderID int64
	Descend  bool
	Limit    int // 0 means no limit
}

// Search returns hits in rank order that lie inside the folder scope.
// Each hit lists the fields any query token matched.
func (e *Engine) Search(q Query) ([]storage.Hit, error) {
	// The store is queried unscoped: its memberships may be stale.
	hits, err := e.index.Search(q.Term, q.Fields, -1, false)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q.Term, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	visible := make(map[int64]bool)
	for _, id := range e.scope.FolderScope(q.FolderID, q.Descend) {
		visible[id] = true
	}

	out := hits[:0]
	for _, h := range hits {
		if !visible[h.DocID] {
			continue
		}
		out = append(out, h)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// ParseFields maps field names to search fields. Empty input selects all.
func ParseFields(names []string) ([]storage.Field, error) {
	fields := make([]storage.Field, 0, len(names))
	for _, n := range names {
		f, err := storage.ParseField(n)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}
