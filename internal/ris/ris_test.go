package ris

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

const sampleRIS = "TY  - JOUR\r\n" +
	"ID  - Lovelace1843\r\n" +
	"AU  - Lovelace, Ada\r\n" +
	"AU  - Babbage, Charles\r\n" +
	"TI  - Notes on the Analytical Engine\r\n" +
	"JO  - Scientific Memoirs\r\n" +
	"PY  - 1843\r\n" +
	"DA  - 1843/09/05\r\n" +
	"VL  - 3\r\n" +
	"SP  - 666\r\n" +
	"EP  - 731\r\n" +
	"SN  - 1234-5678\r\n" +
	"DO  - 10.1000/ada\r\n" +
	"KW  - history\r\n" +
	"KW  - computing\r\n" +
	"UR  - https://example.org/ada\r\n" +
	"L1  - _collections/Lovelace_1843.pdf\r\n" +
	"AB  - A translation with\r\n" +
	"  extensive notes.\r\n" +
	"N1  - first\r\n" +
	"M3  - Translation\r\n" +
	"ER  - \r\n"

func parseOne(t *testing.T, data string) *docmeta.Meta {
	t.Helper()
	results := Parse([]byte(data))
	if len(results) != 1 {
		t.Fatalf("Parse() returned %d results, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("Parse() error = %v", results[0].Err)
	}
	return results[0].Meta
}

func TestParse_Mapping(t *testing.T) {
	got := parseOne(t, sampleRIS)
	want := &docmeta.Meta{
		Type:        docmeta.TypeArticle,
		CitationKey: "Lovelace1843",
		Title:       "Notes on the Analytical Engine",
		Publication: "Scientific Memoirs",
		Year:        "1843",
		Month:       "9",
		Day:         "5",
		Volume:      "3",
		Pages:       "666-731",
		ISSN:        "1234-5678",
		DOI:         "10.1000/ada",
		Abstract:    "A translation with\nextensive notes.",
		FirstNames:  []string{"Ada", "Charles"},
		LastNames:   []string{"Lovelace", "Babbage"},
		Keywords:    []string{"history", "computing"},
		URLs:        []string{"https://example.org/ada"},
		Files:       []string{"_collections/Lovelace_1843.pdf"},
		Notes:       "first",
		Extra:       map[string]string{"m3": "Translation"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Dates(t *testing.T) {
	tests := []struct {
		name, lines    string
		year, mon, day string
	}{
		{"year only", "PY  - 2020\n", "2020", "", ""},
		{"slashed PY", "PY  - 2020/03/04/Spring\n", "2020", "3", "4"},
		{"DA overrides", "PY  - 2020/01\nDA  - 2020/07/\n", "2020", "7", ""},
		{"Y1 fallback", "Y1  - 1999\n", "1999", "", ""},
		{"DA alone", "DA  - 2001-02-03\n", "2001", "2", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parseOne(t, "TY  - GEN\n"+tt.lines+"ER  - \n")
			if m.Year != tt.year || m.Month != tt.mon || m.Day != tt.day {
				t.Errorf("date = %q/%q/%q, want %q/%q/%q", m.Year, m.Month, m.Day, tt.year, tt.mon, tt.day)
			}
		})
	}
}

func TestParse_Types(t *testing.T) {
	tests := []struct {
		ty        string
		want      docmeta.Type
		wantExtra string
	}{
		{"JOUR", docmeta.TypeArticle, ""},
		{"CPAPER", docmeta.TypeInProceedings, "CPAPER"},
		{"THES", docmeta.TypeThesis, ""},
		{"DATA", docmeta.TypeGeneric, "DATA"},
	}
	for _, tt := range tests {
		m := parseOne(t, "TY  - "+tt.ty+"\nER  - \n")
		if m.Type != tt.want {
			t.Errorf("TY %s: Type = %q, want %q", tt.ty, m.Type, tt.want)
		}
		if m.Extra[extraType] != tt.wantExtra {
			t.Errorf("TY %s: extra = %q, want %q", tt.ty, m.Extra[extraType], tt.wantExtra)
		}
	}
}

func TestParse_Recovery(t *testing.T) {
	src := "TY  - BOOK\nTI  - One\nER  - \n" +
		"ID  - stray\nTI  - No type\nER  - \n" +
		"TY  - BOOK\nTI  - Two\n" +
		"TY  - BOOK\nTI  - Three\n"
	results := Parse([]byte(src))
	if len(results) != 4 {
		t.Fatalf("Parse() returned %d results, want 4", len(results))
	}
	titles := []string{"One", "", "Two", "Three"}
	for i, r := range results {
		if i == 1 {
			if !errors.Is(r.Err, liberr.ErrParse) || r.Key != "stray" || r.Line != 4 {
				t.Errorf("results[1] = %+v, want ErrParse for stray at line 4", r)
			}
			continue
		}
		if r.Err != nil || r.Meta.Title != titles[i] {
			t.Errorf("results[%d] = %+v, want title %q", i, r, titles[i])
		}
	}
}

func TestFormat(t *testing.T) {
	m := docmeta.New()
	m.Type = docmeta.TypeBook
	m.CitationKey = "knuth1968"
	m.AddAuthor("Donald E.", "Knuth")
	m.Title = "The Art of Computer Programming"
	m.Year = "1968"
	m.Month = "1"
	m.Pages = "1--634"
	m.ISBN = "0-201-03801-3"
	m.Notes = "line one\nline two"
	m.Extra = map[string]string{"m3": "Print", "howpublished": "ignored"}

	out, err := Format(m)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := string(out)
	for _, want := range []string{
		"TY  - BOOK\n",
		"ID  - knuth1968\n",
		"AU  - Knuth, Donald E.\n",
		"PY  - 1968\n",
		"DA  - 1968/01/\n",
		"SP  - 1\n",
		"EP  - 634\n",
		"SN  - 0-201-03801-3\n",
		"N1  - line one\nN1  - line two\n",
		"M3  - Print\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Format() should contain %q, got:\n%s", want, got)
		}
	}
	if !strings.HasPrefix(got, "TY  - BOOK\n") || !strings.HasSuffix(got, "ER  - \n") {
		t.Errorf("Format() should start with TY and end with ER, got:\n%s", got)
	}
	if strings.Contains(got, "howpublished") {
		t.Errorf("Format() should skip extension keys that are not tags, got:\n%s", got)
	}
}

func TestFormat_ExtraTags(t *testing.T) {
	tests := []struct {
		name        string
		publication string
		extra       map[string]string
		want        map[string]string
	}{
		{
			name:  "record delimiters",
			extra: map[string]string{"er": "early end", "ty": "JOUR"},
			want:  nil,
		},
		{
			name:  "mapped tags",
			extra: map[string]string{"id": "other", "ti": "Second title", "au": "Someone", "n1": "note"},
			want:  nil,
		},
		{
			name:        "secondary publication",
			publication: "Nature",
			extra:       map[string]string{"jf": "Nature Journal", "jo": "Other"},
			want:        map[string]string{"jf": "Nature Journal"},
		},
		{
			name:  "secondary publication without primary",
			extra: map[string]string{"jf": "Nature Journal"},
			want:  nil,
		},
		{
			name:  "unmapped tags",
			extra: map[string]string{"m3": "Print", "c1": "x", "journal": "not a tag"},
			want:  map[string]string{"m3": "Print", "c1": "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := docmeta.New()
			m.Type = docmeta.TypeArticle
			m.CitationKey = "key"
			m.Title = "Title"
			m.Publication = tt.publication
			m.Extra = tt.extra

			out, err := Format(m)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			got := string(out)
			for _, tag := range []string{"TY", "ER", "ID", "TI"} {
				if n := strings.Count(got, tag+"  - "); n != 1 {
					t.Errorf("%s written %d times:\n%s", tag, n, got)
				}
			}

			back := parseOne(t, got)
			if back.CitationKey != "key" || back.Title != "Title" || back.Publication != tt.publication {
				t.Errorf("reparsed key, title, publication = %q, %q, %q", back.CitationKey, back.Title, back.Publication)
			}
			if diff := cmp.Diff(tt.want, back.Extra); diff != "" {
				t.Errorf("reparsed Extra mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormat_NameArity(t *testing.T) {
	m := docmeta.New()
	m.LastNames = []string{"Solo"}
	if _, err := Format(m); !errors.Is(err, liberr.ErrParse) {
		t.Errorf("Format() error = %v, want ErrParse", err)
	}
}

func TestRoundTrip(t *testing.T) {
	first := parseOne(t, sampleRIS)
	// Wrapped abstracts are written on one line.
	first.Abstract = "A translation with extensive notes."
	out, err := Format(first)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	second := parseOne(t, string(out))
	if !docmeta.Equal(first, second) {
		t.Errorf("round trip changed the document:\n%s\n%s", cmp.Diff(first, second), out)
	}
}
