package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matsen/bibshelf/internal/config"
	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/library"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", errors.New("boom"), ExitError},
		{"config", fmt.Errorf("%w: worker.size", config.ErrInvalid), ExitConfigError},
		{"arity", fmt.Errorf("add document: %w", docmeta.ErrNameArity), ExitDataError},
		{"not found", liberr.New(liberr.ErrNotFound, "get", "document 3", nil), ExitNotFound},
		{"conflict", liberr.New(liberr.ErrNameConflict, "create folder", "A", nil), ExitConflict},
		{"exists", liberr.New(liberr.ErrAlreadyExists, "create", "lib.sqlite", nil), ExitConflict},
		{"io", liberr.New(liberr.ErrIO, "attach", "a.pdf", errors.New("denied")), ExitIOError},
		{"parse", liberr.New(liberr.ErrParse, "import", "a.bib", nil), ExitDataError},
		{"network", liberr.New(liberr.ErrNetwork, "resolve", "10.1/x", nil), ExitNetworkError},
		{"corrupt", liberr.New(liberr.ErrCorrupt, "open", "lib.sqlite", nil), ExitCorrupt},
		{"version", liberr.New(liberr.ErrVersionMismatch, "open", "lib.sqlite", nil), ExitCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		args    []string
		want    []int64
		wantErr bool
	}{
		{[]string{"1", "2"}, []int64{1, 2}, false},
		{[]string{"1,2", "3"}, []int64{1, 2, 3}, false},
		{[]string{"4,"}, []int64{4}, false},
		{nil, nil, false},
		{[]string{"0"}, nil, true},
		{[]string{"x"}, nil, true},
		{[]string{"1,-2"}, nil, true},
	}
	for _, tt := range tests {
		got, err := parseIDs(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDs(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("parseIDs(%q) mismatch (-want +got):\n%s", tt.args, diff)
		}
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a longer title here", 10, "a longe..."},
		{"Émile Zola écrit", 8, "Émile..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFormatAuthorsShort(t *testing.T) {
	authors := []string{"Hopper, Grace", "Lovelace, Ada", "Turing, Alan", "Knuth, Donald"}
	tests := []struct {
		authors []string
		max     int
		want    string
	}{
		{nil, 3, ""},
		{authors[:1], 3, "Hopper"},
		{authors[:3], 3, "Hopper, Lovelace, Turing"},
		{authors, 3, "Hopper, Lovelace, Turing, et al."},
		{[]string{"Plato"}, 3, "Plato"},
	}
	for _, tt := range tests {
		if got := formatAuthorsShort(tt.authors, tt.max); got != tt.want {
			t.Errorf("formatAuthorsShort(%q) = %q, want %q", tt.authors, got, tt.want)
		}
	}
}

func TestApplyAssignments(t *testing.T) {
	m := docmeta.New()
	keys, err := applyAssignments(m, []string{
		"year=2021",
		"journal=Nature",
		"authors=Hopper, Grace; Lovelace, Ada",
		"tags=a;b; ;a",
		"read=true",
	})
	if err != nil {
		t.Fatalf("applyAssignments: %v", err)
	}
	wantKeys := []string{docmeta.FieldYear, docmeta.FieldPublication, docmeta.FieldAuthors, docmeta.FieldTags, docmeta.FieldRead}
	if diff := cmp.Diff(wantKeys, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if m.Year != "2021" || m.Publication != "Nature" || !m.Read {
		t.Errorf("scalars = %q %q %v", m.Year, m.Publication, m.Read)
	}
	if diff := cmp.Diff([]string{"Hopper, Grace", "Lovelace, Ada"}, m.Authors()); diff != "" {
		t.Errorf("authors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, m.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"year", "nosuchfield=1", "read=maybe"} {
		if _, err := applyAssignments(docmeta.New(), []string{bad}); err == nil {
			t.Errorf("applyAssignments(%q) succeeded, want error", bad)
		}
	}
}

func TestParsePredicate(t *testing.T) {
	p, err := parsePredicate("author=Hopper, Grace")
	if err != nil {
		t.Fatalf("parsePredicate: %v", err)
	}
	if p.Kind != library.ByAuthor || p.Value != "Hopper, Grace" {
		t.Errorf("parsePredicate = %+v", p)
	}
	for _, bad := range []string{"author", "color=red"} {
		if _, err := parsePredicate(bad); err == nil {
			t.Errorf("parsePredicate(%q) succeeded, want error", bad)
		}
	}
}

func TestResolveFolder(t *testing.T) {
	lib := library.New()
	thesis, err := lib.CreateFolder("Thesis", docmeta.FolderAll)
	if err != nil {
		t.Fatal(err)
	}
	intro, err := lib.CreateFolder("Intro", thesis)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   string
		want int64
	}{
		{"all", docmeta.FolderAll},
		{"Trash", docmeta.FolderTrash},
		{"review", docmeta.FolderReview},
		{"Thesis", thesis},
		{"Thesis/Intro", intro},
		{fmt.Sprint(intro), intro},
	}
	for _, tt := range tests {
		got, err := resolveFolder(lib, tt.in)
		if err != nil {
			t.Errorf("resolveFolder(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveFolder(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"Intro", "999", "Thesis/Nope"} {
		_, err := resolveFolder(lib, bad)
		if !errors.Is(err, liberr.ErrNotFound) {
			t.Errorf("resolveFolder(%q) error = %v, want not found", bad, err)
		}
	}
}
