package storage

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/matsen/bibshelf/internal/docmeta"
)

func setupSearchDB(t *testing.T) *DB {
	t.Helper()
	db := setupTestDB(t)

	for _, f := range []docmeta.Folder{
		{ID: 10, Name: "Climate", ParentID: docmeta.FolderAll},
		{ID: 11, Name: "Oceans", ParentID: 10},
	} {
		if err := db.WriteFolder(f.ID, f.Name, f.ParentID); err != nil {
			t.Fatal(err)
		}
	}

	docs := []*docmeta.Meta{
		{
			ID: 1, Type: docmeta.TypeArticle, Title: "Climate sensitivity revisited",
			FirstNames: []string{"Jule"}, LastNames: []string{"Charney"},
			Confirmed: true,
			Folders:   []docmeta.FolderRef{{ID: 10, Name: "Climate"}},
		},
		{
			ID: 2, Type: docmeta.TypeArticle, Title: "Regional climate downscaling",
			Abstract:   "Statistical methods.",
			FirstNames: []string{"Ann"}, LastNames: []string{"Henderson"},
			Confirmed: true,
			Folders:   []docmeta.FolderRef{{ID: 10, Name: "Climate"}},
		},
		{
			ID: 3, Type: docmeta.TypeArticle, Title: "Ocean heat uptake under climate change",
			FirstNames: []string{"Syukuro"}, LastNames: []string{"Manabe"},
			Tags:    []string{"climate"},
			Folders: []docmeta.FolderRef{{ID: 11, Name: "Oceans"}},
		},
	}
	for _, d := range docs {
		if err := db.WriteDocument(d); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func hitIDs(hits []Hit) []int64 {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	return ids
}

func TestDB_Search_FolderScope(t *testing.T) {
	db := setupSearchDB(t)

	hits, err := db.Search("climate", []Field{FieldTitle}, 10, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Search() returned %d hits, want 2: %v", len(hits), hits)
	}
	for _, h := range hits {
		if h.DocID != 1 && h.DocID != 2 {
			t.Errorf("Search() returned doc %d outside folder 10", h.DocID)
		}
	}
	if hits[0].Rank > hits[1].Rank {
		t.Errorf("hits not ordered by rank: %v", hits)
	}
}

func TestDB_Search_Scopes(t *testing.T) {
	db := setupSearchDB(t)

	tests := []struct {
		name     string
		folderID int64
		descend  bool
		want     []int64
	}{
		{"all", docmeta.FolderAll, false, []int64{1, 2, 3}},
		{"folder only", 10, false, []int64{1, 2}},
		{"folder and descendants", 10, true, []int64{1, 2, 3}},
		{"child folder", 11, false, []int64{3}},
		{"needs review", docmeta.FolderReview, false, []int64{3}},
		{"trash", docmeta.FolderTrash, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := db.Search("climate", []Field{FieldTitle}, tt.folderID, tt.descend)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			got := hitIDs(hits)
			slices.Sort(got)
			if len(got) == 0 {
				got = nil
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Search() ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDB_Search_PrefixAndFields(t *testing.T) {
	db := setupSearchDB(t)

	// Prefix match on author last name.
	hits, err := db.Search("hend", []Field{FieldAuthors}, docmeta.FolderAll, false)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{2}, hitIDs(hits)); diff != "" {
		t.Errorf("author prefix search mismatch (-want +got):\n%s", diff)
	}

	// Every token must match.
	hits, err = db.Search("climate ocean", nil, docmeta.FolderAll, false)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{3}, hitIDs(hits)); diff != "" {
		t.Errorf("two-token search mismatch (-want +got):\n%s", diff)
	}

	// Matched fields are reported.
	if diff := cmp.Diff([]Field{FieldTitle, FieldTags}, hits[0].MatchedFields); diff != "" {
		t.Errorf("MatchedFields mismatch (-want +got):\n%s", diff)
	}

	// Abstract is not searched when only titles are requested.
	hits, err = db.Search("statistical", []Field{FieldTitle}, docmeta.FolderAll, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("title-only search for abstract term = %v, want none", hits)
	}

	hits, err = db.Search("   ", nil, docmeta.FolderAll, false)
	if err != nil || hits != nil {
		t.Errorf("Search(blank) = %v, %v; want nil, nil", hits, err)
	}
}

func TestParseField(t *testing.T) {
	tests := []struct {
		in      string
		want    Field
		wantErr bool
	}{
		{"title", FieldTitle, false},
		{"Authors", FieldAuthors, false},
		{"author", FieldAuthors, false},
		{"publication", FieldPublication, false},
		{"venue", "", true},
	}
	for _, tt := range tests {
		got, err := ParseField(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseField(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrefixTerms(t *testing.T) {
	got := prefixTerms(`heat "uptake`)
	want := []string{`"heat"*`, `"""uptake"*`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("prefixTerms() mismatch (-want +got):\n%s", diff)
	}
}
