// Package bibtex reads and writes BibTeX records as docmeta documents.
package bibtex

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

// Entry is one raw record: lowercased type and field names, values with
// macros expanded and concatenations joined but LaTeX still encoded.
type Entry struct {
	Type   string
	Key    string
	Fields []Field
	Line   int
}

// Field is one name/value pair of an entry.
type Field struct {
	Name  string
	Value string
}

// Get returns the value of the first field called name.
func (e Entry) Get(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Result is the outcome of decoding one entry: Meta on success, Err otherwise.
type Result struct {
	Meta *docmeta.Meta
	Key  string
	Line int
	Err  error
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

func defaultMacros() map[string]string {
	m := make(map[string]string, len(monthNames))
	for _, name := range monthNames {
		m[name[:3]] = strings.ToUpper(name[:1]) + name[1:]
	}
	return m
}

// Parse decodes every entry of a BibTeX file. A malformed entry yields a
// Result with Err set and the rest of the input is still processed.
func Parse(data []byte) []Result {
	entries, errs := ParseEntries(data)
	results := make([]Result, 0, len(entries)+len(errs))
	for _, e := range entries {
		results = append(results, Result{Meta: ToMeta(e), Key: e.Key, Line: e.Line})
	}
	for _, err := range errs {
		var pe *entryError
		if errors.As(err, &pe) {
			results = append(results, Result{Key: pe.key, Line: pe.line, Err: err})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Line < results[j].Line })
	return results
}

type entryError struct {
	key  string
	line int
	msg  string
}

func (e *entryError) Error() string {
	if e.key != "" {
		return fmt.Sprintf("line %d, entry %s: %s", e.line, e.key, e.msg)
	}
	return fmt.Sprintf("line %d: %s", e.line, e.msg)
}

func (e *entryError) Unwrap() error { return liberr.ErrParse }

// ParseEntries splits BibTeX input into raw entries. @comment and
// @preamble blocks are skipped; @string definitions are applied to later
// entries.
func ParseEntries(data []byte) ([]Entry, []error) {
	p := &parser{src: data, macros: defaultMacros()}
	var entries []Entry
	var errs []error

	for {
		i := bytes.IndexByte(p.src[p.pos:], '@')
		if i < 0 {
			break
		}
		start := p.pos + i
		p.pos = start + 1

		e, err := p.entry(start)
		if err != nil {
			errs = append(errs, err)
			p.resync(start + 1)
			continue
		}
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries, errs
}

type parser struct {
	src    []byte
	pos    int
	macros map[string]string
}

func (p *parser) lineAt(off int) int {
	return 1 + bytes.Count(p.src[:off], []byte("\n"))
}

func (p *parser) fail(start int, key, format string, args ...any) error {
	return &entryError{key: key, line: p.lineAt(start), msg: fmt.Sprintf(format, args...)}
}

// resync moves to the next '@' that starts a line.
func (p *parser) resync(from int) {
	for i := from; i < len(p.src); i++ {
		if p.src[i] != '@' {
			continue
		}
		j := i - 1
		for j >= 0 && (p.src[j] == ' ' || p.src[j] == '\t') {
			j--
		}
		if j < 0 || p.src[j] == '\n' || p.src[j] == '\r' {
			p.pos = i
			return
		}
	}
	p.pos = len(p.src)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		strings.IndexByte("_-:.+/'", c) >= 0
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentByte(p.src[p.pos]) {
		p.pos++
	}
	return string(p.src[start:p.pos])
}

// entry parses one record starting at the '@' at offset start. It returns
// nil for blocks that produce no entry.
func (p *parser) entry(start int) (*Entry, error) {
	p.skipSpace()
	typ := strings.ToLower(p.ident())
	if typ == "" {
		return nil, nil
	}
	p.skipSpace()
	if p.pos >= len(p.src) || (p.src[p.pos] != '{' && p.src[p.pos] != '(') {
		// Text outside entries is a comment, '@' included.
		return nil, nil
	}
	closer := byte('}')
	if p.src[p.pos] == '(' {
		closer = ')'
	}
	p.pos++

	switch typ {
	case "comment", "preamble":
		if _, err := p.balanced(start, closer); err != nil {
			return nil, err
		}
		return nil, nil
	case "string":
		for {
			p.skipSpace()
			if p.pos < len(p.src) && p.src[p.pos] == closer {
				p.pos++
				return nil, nil
			}
			f, err := p.field(start, "")
			if err != nil {
				return nil, err
			}
			p.macros[strings.ToLower(f.Name)] = f.Value
			if err := p.fieldEnd(start, "", closer); err != nil {
				if errors.Is(err, errEntryDone) {
					return nil, nil
				}
				return nil, err
			}
		}
	}

	e := &Entry{Type: typ, Line: p.lineAt(start)}
	p.skipSpace()
	keyStart := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ',' && p.src[p.pos] != closer && p.src[p.pos] != '\n' {
		p.pos++
	}
	e.Key = strings.TrimSpace(string(p.src[keyStart:p.pos]))
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.fail(start, e.Key, "unexpected end of input")
	}
	switch p.src[p.pos] {
	case closer:
		p.pos++
		return e, nil
	case ',':
		p.pos++
	default:
		return nil, p.fail(start, e.Key, "expected ',' after citation key")
	}

	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.fail(start, e.Key, "unexpected end of input")
		}
		if p.src[p.pos] == closer {
			p.pos++
			return e, nil
		}
		f, err := p.field(start, e.Key)
		if err != nil {
			return nil, err
		}
		e.Fields = append(e.Fields, f)
		if err := p.fieldEnd(start, e.Key, closer); err != nil {
			if errors.Is(err, errEntryDone) {
				return e, nil
			}
			return nil, err
		}
	}
}

var errEntryDone = errors.New("entry done")

// fieldEnd consumes the separator after a field value.
func (p *parser) fieldEnd(start int, key string, closer byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return p.fail(start, key, "unexpected end of input")
	}
	switch p.src[p.pos] {
	case ',':
		p.pos++
		return nil
	case closer:
		p.pos++
		return errEntryDone
	}
	return p.fail(start, key, "expected ',' or '%c' after field value, got %q", closer, p.src[p.pos])
}

// field parses `name = value`.
func (p *parser) field(start int, key string) (Field, error) {
	name := strings.ToLower(p.ident())
	if name == "" {
		return Field{}, p.fail(start, key, "expected field name, got %q", p.peekByte())
	}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '=' {
		return Field{}, p.fail(start, key, "expected '=' after field %s", name)
	}
	p.pos++
	value, err := p.value(start, key)
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Value: value}, nil
}

func (p *parser) peekByte() string {
	if p.pos >= len(p.src) {
		return "EOF"
	}
	return string(p.src[p.pos])
}

// value parses a '#'-joined sequence of braced, quoted, numeric or macro parts.
func (p *parser) value(start int, key string) (string, error) {
	var b strings.Builder
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return "", p.fail(start, key, "unexpected end of input in value")
		}
		switch c := p.src[p.pos]; {
		case c == '{':
			p.pos++
			s, err := p.balanced(start, '}')
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case c == '"':
			p.pos++
			s, err := p.quoted(start, key)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case isIdentByte(c):
			word := p.ident()
			if v, ok := p.macros[strings.ToLower(word)]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(word)
			}
		default:
			return "", p.fail(start, key, "unexpected %q in value", c)
		}
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == '#' {
			p.pos++
			continue
		}
		return b.String(), nil
	}
}

// balanced reads up to the closer matching an already consumed opener and
// returns the text in between.
func (p *parser) balanced(start int, closer byte) (string, error) {
	opener := byte('{')
	if closer == ')' {
		opener = '('
	}
	depth := 1
	from := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos += 2
			continue
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				s := string(p.src[from:p.pos])
				p.pos++
				return s, nil
			}
		}
		p.pos++
	}
	return "", p.fail(start, "", "unbalanced '%c'", opener)
}

func (p *parser) quoted(start int, key string) (string, error) {
	from := p.pos
	depth := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos += 2
			continue
		case c == '{':
			depth++
		case c == '}':
			depth--
		case c == '"' && depth == 0:
			s := string(p.src[from:p.pos])
			p.pos++
			return s, nil
		}
		p.pos++
	}
	return "", p.fail(start, key, "unterminated quoted value")
}

var (
	listSplit = regexp.MustCompile(`[,;\n]`)
	fileSplit = regexp.MustCompile(`[;\n]`) // paths may hold commas
	andSplit  = regexp.MustCompile(`\s+(?i:and)\s+`)
	spaces    = regexp.MustCompile(`\s+`)
)

var entryTypes = map[string]docmeta.Type{
	"article":       docmeta.TypeArticle,
	"book":          docmeta.TypeBook,
	"booklet":       docmeta.TypeBook,
	"inbook":        docmeta.TypeChapter,
	"incollection":  docmeta.TypeChapter,
	"phdthesis":     docmeta.TypeThesis,
	"mastersthesis": docmeta.TypeThesis,
	"thesis":        docmeta.TypeThesis,
	"techreport":    docmeta.TypeReport,
	"report":        docmeta.TypeReport,
	"inproceedings": docmeta.TypeInProceedings,
	"conference":    docmeta.TypeInProceedings,
	"proceedings":   docmeta.TypeInProceedings,
	"unpublished":   docmeta.TypeUnpublished,
	"online":        docmeta.TypeWeb,
	"electronic":    docmeta.TypeWeb,
	"www":           docmeta.TypeWeb,
	"patent":        docmeta.TypePatent,
	"manual":        docmeta.TypeManual,
	"misc":          docmeta.TypeGeneric,
}

// Scalar fields mapped one-to-one.
var directFields = map[string]string{
	"title":       docmeta.FieldTitle,
	"abstract":    docmeta.FieldAbstract,
	"publication": docmeta.FieldPublication,
	"publisher":   docmeta.FieldPublisher,
	"edition":     docmeta.FieldEdition,
	"series":      docmeta.FieldSeries,
	"chapter":     docmeta.FieldChapter,
	"isbn":        docmeta.FieldISBN,
	"issn":        docmeta.FieldISSN,
	"pmid":        docmeta.FieldPMID,
	"language":    docmeta.FieldLanguage,
	"year":        docmeta.FieldYear,
	"day":         docmeta.FieldDay,
	"volume":      docmeta.FieldVolume,
	"country":     docmeta.FieldCountry,
	"institution": docmeta.FieldInstitution,
	"city":        docmeta.FieldCity,
	"issue":       docmeta.FieldIssue,
}

// Fields used only when the primary field is absent.
var fallbackFields = map[string]string{
	"journal":      docmeta.FieldPublication,
	"journaltitle": docmeta.FieldPublication,
	"booktitle":    docmeta.FieldPublication,
	"school":       docmeta.FieldInstitution,
	"organization": docmeta.FieldInstitution,
	"address":      docmeta.FieldCity,
	"location":     docmeta.FieldCity,
	"number":       docmeta.FieldIssue,
	"eprint":       docmeta.FieldArxivID,
	"arxivid":      docmeta.FieldArxivID,
}

// Fields kept without LaTeX decoding.
var rawFields = map[string]bool{"doi": true, "url": true, "file": true}

// ToMeta maps a raw entry to a document. Unmapped fields land in Extra.
func ToMeta(e Entry) *docmeta.Meta {
	m := docmeta.New()
	m.CitationKey = e.Key
	if t, ok := entryTypes[e.Type]; ok {
		m.Type = t
		if entryTypeName(t) != e.Type {
			m.SetExtra(extraEntryType, e.Type)
		}
	} else {
		m.SetExtra(extraEntryType, e.Type)
	}

	var fallbacks []Field
	var notes []string
	for _, f := range e.Fields {
		value := f.Value
		if !rawFields[f.Name] {
			value = strings.TrimSpace(spaces.ReplaceAllString(DecodeLaTeX(value), " "))
			if f.Name == "abstract" || f.Name == "note" || f.Name == "annote" || f.Name == "annotation" {
				value = strings.TrimSpace(DecodeLaTeX(f.Value))
			}
		} else {
			value = strings.TrimSpace(value)
		}
		if value == "" {
			continue
		}

		if key, ok := directFields[f.Name]; ok {
			m.SetScalar(key, value)
			continue
		}
		if _, ok := fallbackFields[f.Name]; ok {
			fallbacks = append(fallbacks, Field{f.Name, value})
			continue
		}
		switch f.Name {
		case "author":
			for _, name := range andSplit.Split(value, -1) {
				if name = strings.TrimSpace(name); name != "" {
					m.AddAuthor(docmeta.SplitName(name))
				}
			}
		case "doi":
			m.DOI = strings.TrimPrefix(strings.TrimPrefix(value, "https://doi.org/"), "http://dx.doi.org/")
		case "pages":
			m.Pages = normalizePages(value)
		case "month":
			m.Month = normalizeMonth(value)
		case "date":
			y, mo, d := splitDate(value)
			if m.Year == "" {
				m.Year, m.Month, m.Day = y, mo, d
			}
		case "keywords", "tags":
			m.Tags = append(m.Tags, splitList(value)...)
		case "keyword":
			m.Keywords = append(m.Keywords, splitList(value)...)
		case "url":
			m.URLs = append(m.URLs, splitList(value)...)
		case "file":
			m.Files = append(m.Files, parseFiles(value)...)
		case "note", "annote", "annotation":
			notes = append(notes, value)
		default:
			m.SetExtra(f.Name, value)
		}
	}

	for _, f := range fallbacks {
		key := fallbackFields[f.Name]
		if cur, _ := m.Scalar(key); cur == "" {
			m.SetScalar(key, f.Value)
		} else if cur != f.Value {
			m.SetExtra(f.Name, f.Value)
		}
	}
	m.Notes = strings.Join(notes, "\n")
	m.Normalize()
	return m
}

func splitList(s string) []string {
	var out []string
	for _, part := range listSplit.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseFiles splits a file field into paths, dropping the ":ext" type
// suffix and a leading ':' as written by reference managers.
func parseFiles(s string) []string {
	var out []string
	for _, part := range fileSplit.Split(s, -1) {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, ":")
		if i := strings.LastIndexByte(part, ':'); i > 1 {
			suffix := part[i+1:]
			if suffix != "" && !strings.ContainsAny(suffix, `/\.`) {
				part = part[:i]
			}
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizePages(s string) string {
	s = strings.ReplaceAll(s, "–", "-")
	s = strings.ReplaceAll(s, "—", "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.ReplaceAll(s, " - ", "-")
}

func normalizeMonth(s string) string {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return strconv.Itoa(n)
	}
	lower := strings.ToLower(strings.TrimSuffix(s, "."))
	if len(lower) >= 3 {
		for i, name := range monthNames {
			if strings.HasPrefix(name, lower) {
				return strconv.Itoa(i + 1)
			}
		}
	}
	return s
}

func splitDate(s string) (year, month, day string) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 3)
	year = parts[0]
	if len(parts) > 1 {
		month = normalizeMonth(parts[1])
	}
	if len(parts) > 2 {
		if n, err := strconv.Atoi(parts[2]); err == nil {
			day = strconv.Itoa(n)
		}
	}
	return year, month, day
}
