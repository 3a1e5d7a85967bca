package dedupe

import (
	"context"
	"fmt"
	"slices"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/worker"
)

// ScoreFunc scores a pair of comparison keys on [0,100].
type ScoreFunc func(a, b Key) float64

// Member is one document of a duplicate group with its score against the
// group head (or against the target in 1-to-many mode).
type Member struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Group is one equivalence class of likely duplicates. Head is the lowest
// id; Members hold the rest, best match first.
type Group struct {
	Head    int64    `json:"head"`
	Members []Member `json:"members"`
}

// IDs returns the head followed by the members.
func (g Group) IDs() []int64 {
	ids := make([]int64, 0, len(g.Members)+1)
	ids = append(ids, g.Head)
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// Finder scores candidate pairs on a worker pool.
type Finder struct {
	pool      *worker.Pool
	threshold float64
	score     ScoreFunc
}

// Option configures a Finder.
type Option func(*Finder)

// WithScore replaces the pair scorer.
func WithScore(fn ScoreFunc) Option {
	return func(f *Finder) { f.score = fn }
}

// NewFinder returns a finder using pool. threshold outside 1-100 falls back
// to DefaultThreshold.
func NewFinder(pool *worker.Pool, threshold int, opts ...Option) *Finder {
	if threshold < 1 || threshold > 100 {
		threshold = DefaultThreshold
	}
	f := &Finder{pool: pool, threshold: float64(threshold), score: ScoreKeys}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type pair struct{ a, b int }

type edge struct {
	a, b  int64
	score float64
}

// Group scores every pair of docs and returns the connected components of
// the graph whose edges score at least the threshold. Singletons are not
// returned. Groups are ordered by head id.
func (f *Finder) Group(ctx context.Context, docs []*docmeta.Meta) ([]Group, error) {
	keys := keysOf(docs)
	var pairs []pair
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	batch := worker.Run(ctx, f.pool, pairs, func(_ context.Context, p pair) (edge, error) {
		return edge{a: keys[p.a].ID, b: keys[p.b].ID, score: f.score(keys[p.a], keys[p.b])}, nil
	})
	if n := batch.Count(worker.StatusCanceled); n > 0 {
		return nil, liberr.New(liberr.ErrCanceled, "find duplicates", batch.ID, fmt.Errorf("%d of %d comparisons skipped", n, len(pairs)))
	}

	uf := newUnionFind()
	scores := make(map[[2]int64]float64, len(pairs))
	for _, r := range batch.Results {
		e := r.Value
		scores[[2]int64{e.a, e.b}] = e.score
		scores[[2]int64{e.b, e.a}] = e.score
		if e.score >= f.threshold {
			uf.union(e.a, e.b)
		}
	}

	components := make(map[int64][]int64)
	for _, k := range keys {
		if uf.has(k.ID) {
			root := uf.find(k.ID)
			components[root] = append(components[root], k.ID)
		}
	}

	groups := make([]Group, 0, len(components))
	for _, ids := range components {
		slices.Sort(ids)
		g := Group{Head: ids[0]}
		for _, id := range ids[1:] {
			g.Members = append(g.Members, Member{ID: id, Score: scores[[2]int64{g.Head, id}]})
		}
		sortMembers(g.Members)
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(x, y Group) int { return cmpInt64(x.Head, y.Head) })
	return groups, nil
}

// Similar scores target against every other doc and returns those at or
// above the threshold, best first.
func (f *Finder) Similar(ctx context.Context, target *docmeta.Meta, docs []*docmeta.Meta) ([]Member, error) {
	pk := KeyOf(target)
	var cands []Key
	for _, k := range keysOf(docs) {
		if k.ID != pk.ID {
			cands = append(cands, k)
		}
	}

	batch := worker.Run(ctx, f.pool, cands, func(_ context.Context, k Key) (Member, error) {
		return Member{ID: k.ID, Score: f.score(pk, k)}, nil
	})
	if n := batch.Count(worker.StatusCanceled); n > 0 {
		return nil, liberr.New(liberr.ErrCanceled, "find similar", batch.ID, fmt.Errorf("%d of %d comparisons skipped", n, len(cands)))
	}

	var out []Member
	for _, r := range batch.Results {
		if r.Value.Score >= f.threshold {
			out = append(out, r.Value)
		}
	}
	sortMembers(out)
	return out, nil
}

func keysOf(docs []*docmeta.Meta) []Key {
	keys := make([]Key, len(docs))
	for i, m := range docs {
		keys[i] = KeyOf(m)
	}
	return keys
}

func sortMembers(ms []Member) {
	slices.SortFunc(ms, func(x, y Member) int {
		switch {
		case x.Score > y.Score:
			return -1
		case x.Score < y.Score:
			return 1
		}
		return cmpInt64(x.ID, y.ID)
	})
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type unionFind struct {
	parent map[int64]int64
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int64]int64)}
}

func (u *unionFind) has(x int64) bool {
	_, ok := u.parent[x]
	return ok
}

func (u *unionFind) find(x int64) int64 {
	p, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		return x
	}
	if p == x {
		return x
	}
	root := u.find(p)
	u.parent[x] = root
	return root
}

func (u *unionFind) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
