// Package docmeta defines the canonical in-memory record for one document.
package docmeta

import (
	"fmt"
	"slices"
	"strings"
)

// Type is the bibliographic type of a document.
type Type string

const (
	TypeArticle       Type = "article"
	TypeBook          Type = "book"
	TypeChapter       Type = "chapter"
	TypeThesis        Type = "thesis"
	TypeReport        Type = "report"
	TypeGeneric       Type = "generic"
	TypeInProceedings Type = "inproceedings"
	TypeUnpublished   Type = "unpublished"
	TypeWeb           Type = "web"
	TypePatent        Type = "patent"
	TypeManual        Type = "manual"
)

// Types lists every recognized document type.
var Types = []Type{
	TypeArticle, TypeBook, TypeChapter, TypeThesis, TypeReport, TypeGeneric,
	TypeInProceedings, TypeUnpublished, TypeWeb, TypePatent, TypeManual,
}

// ParseType maps a type name to a Type. Unknown names map to TypeGeneric.
func ParseType(s string) Type {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Types, t) {
		return t
	}
	return TypeGeneric
}

// FolderRef is the denormalized (id, name) pair a document keeps for each
// folder it belongs to.
type FolderRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Meta is one bibliographic record.
//
// Empty strings mean "unset". Keywords, Tags and URLs are sets; FirstNames,
// LastNames and Files are ordered. FirstNames and LastNames always have the
// same length.
type Meta struct {
	ID   int64 `json:"id"`
	Type Type  `json:"type"`

	Title       string `json:"title,omitempty"`
	Abstract    string `json:"abstract,omitempty"`
	Publication string `json:"publication,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
	Edition     string `json:"edition,omitempty"`
	Institution string `json:"institution,omitempty"`
	Series      string `json:"series,omitempty"`
	Chapter     string `json:"chapter,omitempty"`
	CitationKey string `json:"citationkey,omitempty"`
	DOI         string `json:"doi,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	ISSN        string `json:"issn,omitempty"`
	ArxivID     string `json:"arxivId,omitempty"`
	PMID        string `json:"pmid,omitempty"`
	Language    string `json:"language,omitempty"`

	Year   string `json:"year,omitempty"`
	Month  string `json:"month,omitempty"`
	Day    string `json:"day,omitempty"`
	Volume string `json:"volume,omitempty"`
	Issue  string `json:"issue,omitempty"`
	Pages  string `json:"pages,omitempty"`

	FirstNames []string `json:"firstNames"`
	LastNames  []string `json:"lastNames"`

	Keywords []string    `json:"keywords,omitempty"`
	Tags     []string    `json:"tags,omitempty"`
	URLs     []string    `json:"urls,omitempty"`
	Files    []string    `json:"files,omitempty"`
	Folders  []FolderRef `json:"folders,omitempty"`

	Notes string `json:"notes,omitempty"`

	Added      int64 `json:"added"`
	LastUpdate int64 `json:"lastUpdate"`

	Favourite       bool `json:"favourite"`
	Read            bool `json:"read"`
	Confirmed       bool `json:"confirmed"`
	DeletionPending bool `json:"deletionPending"`

	// Extra holds source fields no codec maps, keyed by lowercased name.
	Extra map[string]string `json:"extra,omitempty"`
}

// New returns an empty generic document.
func New() *Meta {
	return &Meta{Type: TypeGeneric}
}

// Less orders documents by id.
func Less(a, b *Meta) bool {
	return a.ID < b.ID
}

// SameID reports document identity, which is defined on id only.
func SameID(a, b *Meta) bool {
	return a.ID == b.ID
}

// Authors returns each author formatted "Last, First" (or "Last" when the
// first name is empty).
func (m *Meta) Authors() []string {
	n := min(len(m.FirstNames), len(m.LastNames))
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, FormatName(m.FirstNames[i], m.LastNames[i]))
	}
	return out
}

// FormatName formats one author as "Last, First".
func FormatName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return last + ", " + first
	}
}

// AddAuthor appends one author, keeping both name lists aligned.
func (m *Meta) AddAuthor(first, last string) {
	m.FirstNames = append(m.FirstNames, first)
	m.LastNames = append(m.LastNames, last)
}

// Validate checks that every author has both name parts recorded.
func (m *Meta) Validate() error {
	if len(m.FirstNames) != len(m.LastNames) {
		return fmt.Errorf("%w: %d first names, %d last names", ErrNameArity, len(m.FirstNames), len(m.LastNames))
	}
	return nil
}

// HasFile reports whether at least one attachment is recorded.
func (m *Meta) HasFile() bool {
	return len(m.Files) > 0
}

// CiteKey returns the citation key, deriving lastNames[0]+year when unset.
func (m *Meta) CiteKey() string {
	if m.CitationKey != "" {
		return m.CitationKey
	}
	if len(m.LastNames) > 0 && m.LastNames[0] != "" && m.Year != "" {
		return m.LastNames[0] + m.Year
	}
	return ""
}

// InFolder reports whether the document mirrors membership of folder id.
func (m *Meta) InFolder(id int64) bool {
	for _, f := range m.Folders {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (m *Meta) Clone() *Meta {
	c := *m
	c.FirstNames = slices.Clone(m.FirstNames)
	c.LastNames = slices.Clone(m.LastNames)
	c.Keywords = slices.Clone(m.Keywords)
	c.Tags = slices.Clone(m.Tags)
	c.URLs = slices.Clone(m.URLs)
	c.Files = slices.Clone(m.Files)
	c.Folders = slices.Clone(m.Folders)
	if m.Extra != nil {
		c.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Normalize trims scalar whitespace, removes empty and duplicate set members,
// and defaults an empty type to generic.
func (m *Meta) Normalize() {
	if m.Type == "" {
		m.Type = TypeGeneric
	}
	for _, f := range registry {
		if f.kind == KindScalar && f.key != FieldNotes && f.key != FieldAbstract {
			f.setStr(m, strings.TrimSpace(f.getStr(m)))
		}
	}
	m.Keywords = uniqueStrings(m.Keywords)
	m.Tags = uniqueStrings(m.Tags)
	m.URLs = uniqueStrings(m.URLs)
}

// SetExtra stores a pass-through field under its lowercased name.
func (m *Meta) SetExtra(key, value string) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || value == "" {
		return
	}
	if m.Extra == nil {
		m.Extra = make(map[string]string)
	}
	m.Extra[key] = value
}

// Summary is a one-line description used in failure reports.
func (m *Meta) Summary() string {
	authors := strings.Join(m.Authors(), "; ")
	switch {
	case m.Title != "" && authors != "":
		return m.Title + " (" + authors + ")"
	case m.Title != "":
		return m.Title
	case authors != "":
		return authors
	default:
		return "(untitled)"
	}
}

func uniqueStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
