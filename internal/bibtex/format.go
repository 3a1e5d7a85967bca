package bibtex

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

// extraEntryType keeps the source entry type when it differs from the
// canonical name written for the document type.
const extraEntryType = "entrytype"

var typeNames = map[docmeta.Type]string{
	docmeta.TypeArticle:       "article",
	docmeta.TypeBook:          "book",
	docmeta.TypeChapter:       "inbook",
	docmeta.TypeThesis:        "phdthesis",
	docmeta.TypeReport:        "techreport",
	docmeta.TypeGeneric:       "misc",
	docmeta.TypeInProceedings: "inproceedings",
	docmeta.TypeUnpublished:   "unpublished",
	docmeta.TypeWeb:           "online",
	docmeta.TypePatent:        "patent",
	docmeta.TypeManual:        "manual",
}

func entryTypeName(t docmeta.Type) string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "misc"
}

// Options controls formatting.
type Options struct {
	// Omit holds document field keys (and raw BibTeX names for pass-through
	// fields) that are not written.
	Omit map[string]bool
}

// NewOptions builds options from loosely spelled field names such as
// "abstract", "tags" or "Keywords".
func NewOptions(omit []string) Options {
	o := Options{Omit: make(map[string]bool, len(omit))}
	for _, name := range omit {
		if key := docmeta.CanonicalKey(name); key != "" {
			o.Omit[key] = true
		}
		o.Omit[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return o
}

func (o Options) omitted(key string) bool {
	return o.Omit[key]
}

// outField is one BibTeX field produced from a document.
type outField struct {
	name  string
	key   string // document field key checked against the omit set
	value func(m *docmeta.Meta) string
	raw   bool // written without LaTeX encoding
}

func scalarOut(name, key string) outField {
	return outField{name: name, key: key, value: func(m *docmeta.Meta) string {
		v, _ := m.Scalar(key)
		return v
	}}
}

var outFields = []outField{
	{name: "author", key: docmeta.FieldAuthors, value: formatAuthors},
	scalarOut("title", docmeta.FieldTitle),
	{name: "journal", key: docmeta.FieldPublication, value: func(m *docmeta.Meta) string {
		if usesBooktitle(m.Type) {
			return ""
		}
		return m.Publication
	}},
	{name: "booktitle", key: docmeta.FieldPublication, value: func(m *docmeta.Meta) string {
		if usesBooktitle(m.Type) {
			return m.Publication
		}
		return ""
	}},
	scalarOut("year", docmeta.FieldYear),
	scalarOut("month", docmeta.FieldMonth),
	scalarOut("day", docmeta.FieldDay),
	scalarOut("volume", docmeta.FieldVolume),
	scalarOut("number", docmeta.FieldIssue),
	{name: "pages", key: docmeta.FieldPages, value: func(m *docmeta.Meta) string { return FormatPages(m.Pages) }},
	scalarOut("chapter", docmeta.FieldChapter),
	scalarOut("edition", docmeta.FieldEdition),
	scalarOut("series", docmeta.FieldSeries),
	scalarOut("publisher", docmeta.FieldPublisher),
	scalarOut("address", docmeta.FieldCity),
	scalarOut("country", docmeta.FieldCountry),
	{name: "school", key: docmeta.FieldInstitution, value: func(m *docmeta.Meta) string {
		if m.Type == docmeta.TypeThesis {
			return m.Institution
		}
		return ""
	}},
	{name: "institution", key: docmeta.FieldInstitution, value: func(m *docmeta.Meta) string {
		if m.Type != docmeta.TypeThesis {
			return m.Institution
		}
		return ""
	}},
	{name: "doi", key: docmeta.FieldDOI, value: func(m *docmeta.Meta) string { return m.DOI }, raw: true},
	scalarOut("isbn", docmeta.FieldISBN),
	scalarOut("issn", docmeta.FieldISSN),
	scalarOut("eprint", docmeta.FieldArxivID),
	scalarOut("pmid", docmeta.FieldPMID),
	scalarOut("language", docmeta.FieldLanguage),
	scalarOut("abstract", docmeta.FieldAbstract),
	{name: "keyword", key: docmeta.FieldKeywords, value: func(m *docmeta.Meta) string { return joinSorted(m.Keywords) }},
	{name: "keywords", key: docmeta.FieldTags, value: func(m *docmeta.Meta) string { return joinSorted(m.Tags) }},
	{name: "url", key: docmeta.FieldURLs, value: func(m *docmeta.Meta) string { return joinSorted(m.URLs) }, raw: true},
	{name: "file", key: docmeta.FieldFiles, value: formatFiles, raw: true},
	scalarOut("note", docmeta.FieldNotes),
}

// readNames holds every field name ToMeta maps onto a document field. A
// pass-through field with one of these names is written under an "x-"
// prefix so that it neither repeats a written field nor replaces one on
// the next read.
var readNames = func() map[string]bool {
	names := map[string]bool{
		"author": true, "doi": true, "pages": true, "month": true, "date": true,
		"keywords": true, "tags": true, "keyword": true, "url": true, "file": true,
		"note": true, "annote": true, "annotation": true,
	}
	for _, f := range outFields {
		names[f.name] = true
	}
	for name := range directFields {
		names[name] = true
	}
	for name := range fallbackFields {
		names[name] = true
	}
	return names
}()

// extraName returns the name a pass-through field is written under.
func extraName(k string, written, keys map[string]bool) string {
	name := k
	if key := docmeta.CanonicalKey(k); key != "" && keys[key] {
		name = "x-" + name
	}
	for readNames[name] || written[name] {
		name = "x-" + name
	}
	return name
}

func usesBooktitle(t docmeta.Type) bool {
	return t == docmeta.TypeInProceedings || t == docmeta.TypeChapter
}

func joinSorted(values []string) string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return strings.Join(out, "; ")
}

func formatAuthors(m *docmeta.Meta) string {
	return strings.Join(m.Authors(), " and ")
}

// formatFiles writes "path:ext" items separated by ';'.
func formatFiles(m *docmeta.Meta) string {
	items := make([]string, len(m.Files))
	for i, f := range m.Files {
		items[i] = f + ":" + strings.TrimPrefix(strings.ToLower(filepath.Ext(f)), ".")
	}
	return strings.Join(items, ";")
}

// FormatPages writes a single-dash range with a BibTeX en dash.
func FormatPages(p string) string {
	if strings.Contains(p, "--") {
		return p
	}
	return strings.Replace(p, "-", "--", 1)
}

// CitationKey returns the key written for m: its citationkey, else the
// derived lastName+year with characters BibTeX keys cannot hold removed,
// else "doc<id>".
func CitationKey(m *docmeta.Meta) string {
	if m.CitationKey != "" {
		return m.CitationKey
	}
	key := strings.Map(func(r rune) rune {
		if r == ' ' || r == ',' || r == '{' || r == '}' || r == '"' || r == '#' || r == '%' {
			return -1
		}
		return r
	}, m.CiteKey())
	if key == "" {
		return fmt.Sprintf("doc%d", m.ID)
	}
	return key
}

// Format writes one document as a BibTeX entry.
func Format(m *docmeta.Meta, opts Options) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, liberr.New(liberr.ErrParse, "format bibtex", fmt.Sprintf("document %d", m.ID), err)
	}
	key := CitationKey(m)
	if strings.ContainsAny(key, " \t\n,{}\"#%") {
		return nil, liberr.New(liberr.ErrParse, "format bibtex", fmt.Sprintf("document %d", m.ID),
			fmt.Errorf("citation key %q contains characters BibTeX does not allow", key))
	}

	typ := entryTypeName(m.Type)
	if src, ok := m.Extra[extraEntryType]; ok {
		if t, known := entryTypes[src]; !known || t == m.Type {
			typ = src
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "@%s{%s,\n", typ, key)

	written := make(map[string]bool)
	keys := make(map[string]bool)
	omitAuthors := opts.omitted(docmeta.FieldAuthors) ||
		opts.omitted(docmeta.FieldFirstNames) || opts.omitted(docmeta.FieldLastNames)
	for _, f := range outFields {
		if opts.omitted(f.key) || (f.key == docmeta.FieldAuthors && omitAuthors) {
			continue
		}
		v := f.value(m)
		if v == "" {
			continue
		}
		if !f.raw {
			v = EncodeLaTeX(v)
		}
		fmt.Fprintf(&b, "  %s = {%s},\n", f.name, v)
		written[f.name] = true
		keys[f.key] = true
	}

	extra := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		if k != extraEntryType && !opts.omitted(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		name := extraName(k, written, keys)
		written[name] = true
		fmt.Fprintf(&b, "  %s = {%s},\n", name, EncodeLaTeX(m.Extra[k]))
	}

	b.WriteString("}\n")
	return []byte(b.String()), nil
}

// Failure is a document that could not be formatted.
type Failure struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Err     error    `json:"-"`
}

// FormatAll writes every document that formats cleanly, separated by blank
// lines, and collects the rest as failures.
func FormatAll(docs []*docmeta.Meta, opts Options) ([]byte, []Failure) {
	var parts []string
	var failures []Failure
	for _, m := range docs {
		out, err := Format(m, opts)
		if err != nil {
			failures = append(failures, Failure{ID: m.ID, Title: m.Title, Authors: m.Authors(), Err: err})
			continue
		}
		parts = append(parts, string(out))
	}
	return []byte(strings.Join(parts, "\n")), failures
}
