package docmeta

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCiteKey(t *testing.T) {
	tests := []struct {
		name string
		meta Meta
		want string
	}{
		{"explicit", Meta{CitationKey: "key1", LastNames: []string{"X"}, Year: "2020"}, "key1"},
		{"derived", Meta{LastNames: []string{"X"}, FirstNames: []string{""}, Year: "2020"}, "X2020"},
		{"no year", Meta{LastNames: []string{"X"}, FirstNames: []string{""}}, ""},
		{"no authors", Meta{Year: "2020"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.CiteKey(); got != tt.want {
				t.Errorf("CiteKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthors(t *testing.T) {
	m := Meta{
		FirstNames: []string{"Jane", "", "Ada"},
		LastNames:  []string{"Doe", "Plato", "Lovelace"},
	}
	want := []string{"Doe, Jane", "Plato", "Lovelace, Ada"}
	if diff := cmp.Diff(want, m.Authors()); diff != "" {
		t.Errorf("Authors() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"Doe, Jane", "Jane", "Doe"},
		{"Jane Doe", "Jane", "Doe"},
		{"Jane  Q.  Doe", "Jane Q.", "Doe"},
		{"Madonna", "", "Madonna"},
		{"Ludwig van Beethoven", "Ludwig", "van Beethoven"},
		{"Martin Luther King Jr", "Martin Luther", "King Jr"},
		{"King, Jr., Martin Luther", "Martin Luther", "King Jr."},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			first, last := SplitName(tt.in)
			if first != tt.first || last != tt.last {
				t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tt.in, first, last, tt.first, tt.last)
			}
		})
	}
}

func TestSetScalar_RejectsList(t *testing.T) {
	m := New()
	if err := m.SetScalar(FieldTags, "x"); !errors.Is(err, ErrFieldKind) {
		t.Errorf("SetScalar(tags_l) error = %v, want ErrFieldKind", err)
	}
	if err := m.SetList(FieldTitle, []string{"x"}); !errors.Is(err, ErrFieldKind) {
		t.Errorf("SetList(title) error = %v, want ErrFieldKind", err)
	}
}

func TestSetScalar_IgnoresUnknownKeys(t *testing.T) {
	m := New()
	if err := m.SetScalar("timestamp", "whatever"); err != nil {
		t.Errorf("SetScalar(unknown) error = %v, want nil", err)
	}
	if err := m.SetList("owner_l", []string{"a"}); err != nil {
		t.Errorf("SetList(unknown) error = %v, want nil", err)
	}
}

func TestSetScalar_Kinds(t *testing.T) {
	m := New()
	if err := m.SetScalar(FieldTitle, "A title"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetScalar(FieldFavourite, "true"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetScalar(FieldAdded, "1700000000"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetScalar(FieldType, "Book"); err != nil {
		t.Fatal(err)
	}
	if m.Title != "A title" || !m.Favourite || m.Added != 1700000000 || m.Type != TypeBook {
		t.Errorf("unexpected meta after SetScalar: %+v", m)
	}
	if err := m.SetScalar(FieldRead, "maybe"); !errors.Is(err, ErrFieldKind) {
		t.Errorf("SetScalar(read, maybe) error = %v, want ErrFieldKind", err)
	}
	if err := m.SetScalar(FieldDeletionPending, "true"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetScalar(deletionPending) error = %v, want ErrReadOnly", err)
	}
}

func TestSetList_Authors(t *testing.T) {
	m := New()
	if err := m.SetList(FieldAuthors, []string{"Doe, Jane", "John Smith"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Jane", "John"}, m.FirstNames); diff != "" {
		t.Errorf("FirstNames mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Doe", "Smith"}, m.LastNames); diff != "" {
		t.Errorf("LastNames mismatch (-want +got):\n%s", diff)
	}
}

func TestSetList_SetsDeduplicate(t *testing.T) {
	m := New()
	if err := m.SetList(FieldKeywords, []string{"a", "b", "a", " "}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, m.Keywords); diff != "" {
		t.Errorf("Keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestEqual(t *testing.T) {
	a := &Meta{
		ID:         3,
		Type:       TypeArticle,
		Title:      "T",
		FirstNames: []string{"A"},
		LastNames:  []string{"B"},
		Tags:       []string{"x", "y"},
		Folders:    []FolderRef{{ID: 1, Name: "one"}, {ID: 2, Name: "two"}},
		Extra:      map[string]string{"editor": "E"},
	}
	b := a.Clone()
	b.Tags = []string{"y", "x"}
	b.Folders = []FolderRef{{ID: 2, Name: "two"}, {ID: 1, Name: "one"}}

	if !Equal(a, b) {
		t.Error("Equal() = false for reordered sets, want true")
	}

	b.Files = []string{"f.pdf"}
	if Equal(a, b) {
		t.Error("Equal() = true after adding file, want false")
	}

	c := a.Clone()
	c.Extra["editor"] = "F"
	if Equal(a, c) {
		t.Error("Equal() = true with different extra, want false")
	}

	d := a.Clone()
	d.FirstNames = []string{"Z"}
	if Equal(a, d) {
		t.Error("Equal() = true with different author, want false")
	}
}

func TestClone_IsDeep(t *testing.T) {
	a := &Meta{Tags: []string{"x"}, Extra: map[string]string{"k": "v"}}
	b := a.Clone()
	b.Tags[0] = "changed"
	b.Extra["k"] = "changed"
	if a.Tags[0] != "x" || a.Extra["k"] != "v" {
		t.Error("Clone() shares storage with the original")
	}
}

func TestLessAndSameID(t *testing.T) {
	a := &Meta{ID: 1, Title: "A"}
	b := &Meta{ID: 2, Title: "A"}
	if !Less(a, b) || Less(b, a) {
		t.Error("Less() does not order by id")
	}
	if SameID(a, b) {
		t.Error("SameID() = true for different ids")
	}
	if !SameID(a, &Meta{ID: 1, Title: "other"}) {
		t.Error("SameID() = false for equal ids")
	}
}

func TestCanonicalKey(t *testing.T) {
	tests := map[string]string{
		"abstract":     FieldAbstract,
		"tags":         FieldTags,
		"Tags":         FieldTags,
		"keyword":      FieldKeywords,
		"author":       FieldAuthors,
		"firstNames_l": FieldFirstNames,
		"arxivid":      FieldArxivID,
		"journal":      FieldPublication,
		"nope":         "",
	}
	for in, want := range tests {
		if got := CanonicalKey(in); got != want {
			t.Errorf("CanonicalKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize(t *testing.T) {
	m := &Meta{Title: "  T  ", Tags: []string{"a", "a", ""}}
	m.Normalize()
	if m.Type != TypeGeneric {
		t.Errorf("Type = %q, want generic", m.Type)
	}
	if m.Title != "T" {
		t.Errorf("Title = %q, want %q", m.Title, "T")
	}
	if diff := cmp.Diff([]string{"a"}, m.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyField(t *testing.T) {
	src := &Meta{Title: "new", FirstNames: []string{"A"}, LastNames: []string{"B"}}
	dst := &Meta{Title: "old"}
	if err := dst.CopyField(src, FieldTitle); err != nil {
		t.Fatal(err)
	}
	if err := dst.CopyField(src, FieldAuthors); err != nil {
		t.Fatal(err)
	}
	if dst.Title != "new" || len(dst.FirstNames) != 1 || dst.LastNames[0] != "B" {
		t.Errorf("CopyField() produced %+v", dst)
	}
	if err := dst.CopyField(src, FieldFolders); !errors.Is(err, ErrReadOnly) {
		t.Errorf("CopyField(folders_l) error = %v, want ErrReadOnly", err)
	}
}

func TestFillMissing(t *testing.T) {
	m := &Meta{Title: "From PDF", Keywords: []string{"pdf"}}
	src := &Meta{
		Type:        TypeArticle,
		Title:       "From Resolver",
		Publication: "Nature",
		Year:        "2020",
		Keywords:    []string{"resolver"},
		FirstNames:  []string{"Ada"},
		LastNames:   []string{"Lovelace"},
		Confirmed:   true,
	}

	filled := m.FillMissing(src)

	if m.Title != "From PDF" {
		t.Errorf("Title = %q, set values must win", m.Title)
	}
	if m.Publication != "Nature" || m.Year != "2020" || m.Type != TypeArticle {
		t.Errorf("missing scalars not filled: %+v", m)
	}
	if diff := cmp.Diff([]string{"pdf"}, m.Keywords); diff != "" {
		t.Errorf("Keywords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Lovelace, Ada"}, m.Authors()); diff != "" {
		t.Errorf("Authors mismatch (-want +got):\n%s", diff)
	}
	if m.Confirmed {
		t.Error("FillMissing copied a flag")
	}
	want := []string{FieldType, FieldPublication, FieldYear, FieldAuthors}
	if diff := cmp.Diff(want, filled); diff != "" {
		t.Errorf("filled keys mismatch (-want +got):\n%s", diff)
	}
}
