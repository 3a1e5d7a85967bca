// Package ris reads and writes RIS tagged records as docmeta documents.
package ris

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

// extraType keeps the source TY value when it differs from the canonical
// tag written for the document type.
const extraType = "ty"

// Result is the outcome of decoding one record: Meta on success, Err otherwise.
type Result struct {
	Meta *docmeta.Meta
	Key  string
	Line int
	Err  error
}

var tagLine = regexp.MustCompile(`^([A-Z][A-Z0-9])  -(?: (.*))?$`)

var recordTypes = map[string]docmeta.Type{
	"JOUR":   docmeta.TypeArticle,
	"JFULL":  docmeta.TypeArticle,
	"MGZN":   docmeta.TypeArticle,
	"NEWS":   docmeta.TypeArticle,
	"BOOK":   docmeta.TypeBook,
	"EBOOK":  docmeta.TypeBook,
	"EDBOOK": docmeta.TypeBook,
	"CHAP":   docmeta.TypeChapter,
	"ECHAP":  docmeta.TypeChapter,
	"THES":   docmeta.TypeThesis,
	"RPRT":   docmeta.TypeReport,
	"GEN":    docmeta.TypeGeneric,
	"CONF":   docmeta.TypeInProceedings,
	"CPAPER": docmeta.TypeInProceedings,
	"UNPB":   docmeta.TypeUnpublished,
	"ELEC":   docmeta.TypeWeb,
	"WEB":    docmeta.TypeWeb,
	"PAT":    docmeta.TypePatent,
	"STAND":  docmeta.TypeManual,
}

var typeTags = map[docmeta.Type]string{
	docmeta.TypeArticle:       "JOUR",
	docmeta.TypeBook:          "BOOK",
	docmeta.TypeChapter:       "CHAP",
	docmeta.TypeThesis:        "THES",
	docmeta.TypeReport:        "RPRT",
	docmeta.TypeGeneric:       "GEN",
	docmeta.TypeInProceedings: "CONF",
	docmeta.TypeUnpublished:   "UNPB",
	docmeta.TypeWeb:           "ELEC",
	docmeta.TypePatent:        "PAT",
	docmeta.TypeManual:        "STAND",
}

// Single-valued tags mapped one-to-one to scalar fields. Earlier tags win
// when two map to the same field.
var scalarTags = []struct{ tag, key string }{
	{"TI", docmeta.FieldTitle},
	{"T1", docmeta.FieldTitle},
	{"AB", docmeta.FieldAbstract},
	{"N2", docmeta.FieldAbstract},
	{"DO", docmeta.FieldDOI},
	{"PB", docmeta.FieldPublisher},
	{"CY", docmeta.FieldCity},
	{"ET", docmeta.FieldEdition},
	{"LA", docmeta.FieldLanguage},
	{"ID", docmeta.FieldCitationKey},
	{"T3", docmeta.FieldSeries},
	{"VL", docmeta.FieldVolume},
	{"IS", docmeta.FieldIssue},
}

// Tags naming the publication, most specific first.
var publicationTags = []string{"JO", "JF", "T2", "JA", "J2"}

type record struct {
	line   int
	tags   []string
	values map[string][]string
}

func (r *record) add(tag, value string) {
	if _, ok := r.values[tag]; !ok {
		r.tags = append(r.tags, tag)
	}
	r.values[tag] = append(r.values[tag], value)
}

func (r *record) first(tag string) string {
	if v := r.values[tag]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// appendLine continues the last value of tag with a wrapped line.
func (r *record) appendLine(tag, line string) {
	v := r.values[tag]
	v[len(v)-1] += "\n" + line
}

// Parse decodes every record of a RIS file. A record is closed by ER or by
// the next TY; tags outside any record yield a Result with Err set, and the
// remaining records are still decoded.
func Parse(data []byte) []Result {
	var results []Result
	var cur *record
	var orphan *Result
	var lastTag string

	flush := func() {
		switch {
		case cur != nil:
			meta := toMeta(cur)
			results = append(results, Result{Meta: meta, Key: meta.CitationKey, Line: cur.line})
		case orphan != nil:
			results = append(results, *orphan)
		}
		cur, orphan, lastTag = nil, nil, ""
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		m := tagLine.FindStringSubmatch(line)
		if m == nil {
			if cur != nil && lastTag != "" && strings.TrimSpace(line) != "" {
				cur.appendLine(lastTag, strings.TrimSpace(line))
			}
			continue
		}

		tag, value := m[1], strings.TrimSpace(m[2])
		switch {
		case tag == "TY":
			flush()
			cur = &record{line: lineNo, values: make(map[string][]string)}
			cur.add(tag, value)
			lastTag = tag
		case tag == "ER":
			flush()
		case cur == nil:
			if orphan == nil {
				r := parseError(lineNo, "", "record does not start with TY")
				orphan = &r
			}
			if tag == "ID" {
				orphan.Key = value
			}
		default:
			cur.add(tag, value)
			lastTag = tag
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		results = append(results, Result{Line: lineNo, Err: liberr.New(liberr.ErrParse, "parse ris", "", err)})
	}
	return results
}

func parseError(line int, key, format string, args ...any) Result {
	return Result{
		Key:  key,
		Line: line,
		Err:  liberr.New(liberr.ErrParse, "parse ris", fmt.Sprintf("line %d", line), fmt.Errorf(format, args...)),
	}
}

func toMeta(r *record) *docmeta.Meta {
	m := docmeta.New()
	ty := strings.ToUpper(r.first("TY"))
	if t, ok := recordTypes[ty]; ok {
		m.Type = t
		if typeTags[t] != ty {
			m.SetExtra(extraType, ty)
		}
	} else if ty != "" {
		m.SetExtra(extraType, ty)
	}

	used := map[string]bool{"TY": true}
	for _, st := range scalarTags {
		if v := r.first(st.tag); v != "" {
			if cur, _ := m.Scalar(st.key); cur == "" {
				m.SetScalar(st.key, clean(st.key, v))
			}
			used[st.tag] = true
		}
	}

	for _, tag := range publicationTags {
		if v := r.first(tag); v != "" {
			used[tag] = true
			if m.Publication == "" {
				m.Publication = collapse(v)
			} else if collapse(v) != m.Publication {
				m.SetExtra(strings.ToLower(tag), collapse(v))
			}
		}
	}

	for _, tag := range []string{"AU", "A1"} {
		for _, name := range r.values[tag] {
			if name = collapse(name); name != "" {
				m.AddAuthor(docmeta.SplitName(name))
			}
		}
		used[tag] = true
	}

	for _, kw := range r.values["KW"] {
		for _, part := range strings.Split(kw, "\n") {
			if part = strings.TrimSpace(part); part != "" {
				m.Keywords = append(m.Keywords, part)
			}
		}
	}
	m.URLs = append(m.URLs, nonEmpty(r.values["UR"])...)
	m.Files = append(m.Files, nonEmpty(r.values["L1"])...)
	used["KW"], used["UR"], used["L1"] = true, true, true

	m.Notes = strings.Join(nonEmpty(r.values["N1"]), "\n")
	used["N1"] = true

	for _, sn := range nonEmpty(r.values["SN"]) {
		switch {
		case isISSN(sn) && m.ISSN == "":
			m.ISSN = sn
		case !isISSN(sn) && m.ISBN == "":
			m.ISBN = sn
		}
	}
	used["SN"] = true

	sp, ep := r.first("SP"), r.first("EP")
	switch {
	case sp != "" && ep != "":
		m.Pages = sp + "-" + ep
	case sp != "":
		m.Pages = strings.ReplaceAll(sp, "--", "-")
	}
	used["SP"], used["EP"] = true, true

	py := r.first("PY")
	if py == "" {
		py = r.first("Y1")
	}
	m.Year, m.Month, m.Day = splitDate(py)
	if y, mo, d := splitDate(r.first("DA")); mo != "" || m.Year == "" {
		if m.Year == "" {
			m.Year = y
		}
		m.Month, m.Day = mo, d
	}
	used["PY"], used["Y1"], used["DA"] = true, true, true

	for _, tag := range r.tags {
		if used[tag] {
			continue
		}
		m.SetExtra(strings.ToLower(tag), strings.Join(nonEmpty(r.values[tag]), "; "))
	}
	m.Normalize()
	return m
}

func clean(key, v string) string {
	if key == docmeta.FieldAbstract {
		return strings.TrimSpace(v)
	}
	return collapse(v)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// isISSN reports whether s has the eight characters of an ISSN.
func isISSN(s string) bool {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' || r == 'X' || r == 'x' {
			n++
		}
	}
	return n == 8
}

// splitDate reads "YYYY/MM/DD/other" or "YYYY-MM-DD" forms.
func splitDate(s string) (year, month, day string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", ""
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' })
	if len(parts) > 0 {
		year = parts[0]
	}
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[1]); err == nil && n >= 1 && n <= 12 {
			month = strconv.Itoa(n)
		}
	}
	if len(parts) > 2 && month != "" {
		if n, err := strconv.Atoi(parts[2]); err == nil && n >= 1 && n <= 31 {
			day = strconv.Itoa(n)
		}
	}
	return year, month, day
}

// Format writes one document as a RIS record ending in "ER  - ".
func Format(m *docmeta.Meta) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, liberr.New(liberr.ErrParse, "format ris", fmt.Sprintf("document %d", m.ID), err)
	}

	var b bytes.Buffer
	put := func(tag, value string) {
		if value == "" {
			return
		}
		b.WriteString(tag + "  - " + value + "\n")
	}

	ty, ok := typeTags[m.Type]
	if !ok {
		ty = "GEN"
	}
	if src, ok := m.Extra[extraType]; ok {
		if t, known := recordTypes[src]; !known || t == m.Type {
			ty = src
		}
	}
	put("TY", ty)
	put("ID", m.CitationKey)
	for _, a := range m.Authors() {
		put("AU", a)
	}
	put("TI", m.Title)
	put("T3", m.Series)
	put("JO", m.Publication)
	put("PY", m.Year)
	if m.Year != "" && m.Month != "" {
		put("DA", formatDate(m.Year, m.Month, m.Day))
	}
	put("VL", m.Volume)
	put("IS", m.Issue)
	if m.Pages != "" {
		sp, ep, _ := strings.Cut(strings.ReplaceAll(m.Pages, "--", "-"), "-")
		put("SP", sp)
		put("EP", ep)
	}
	put("ET", m.Edition)
	put("PB", m.Publisher)
	put("CY", m.City)
	put("SN", m.ISBN)
	put("SN", m.ISSN)
	put("DO", m.DOI)
	put("LA", m.Language)
	put("AB", oneLine(m.Abstract))
	for _, kw := range sorted(m.Keywords) {
		put("KW", kw)
	}
	for _, u := range sorted(m.URLs) {
		put("UR", u)
	}
	for _, f := range m.Files {
		put("L1", f)
	}
	for _, note := range strings.Split(m.Notes, "\n") {
		put("N1", strings.TrimSpace(note))
	}

	extra := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		if k != extraType && writable(k, m) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		put(strings.ToUpper(k), oneLine(m.Extra[k]))
	}
	b.WriteString("ER  - \n")
	return b.Bytes(), nil
}

// formatDate writes the RIS DA form "YYYY/MM/DD/" with an empty day allowed.
func formatDate(year, month, day string) string {
	pad := func(s string) string {
		if n, err := strconv.Atoi(s); err == nil {
			return fmt.Sprintf("%02d", n)
		}
		return s
	}
	if day == "" {
		return year + "/" + pad(month) + "/"
	}
	return year + "/" + pad(month) + "/" + pad(day)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sorted(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

// isTag reports whether an extension key has the shape of a RIS tag.
func isTag(k string) bool {
	return len(k) == 2 && k[0] >= 'a' && k[0] <= 'z' &&
		(k[1] >= 'a' && k[1] <= 'z' || k[1] >= '0' && k[1] <= '9')
}

// readTags holds the tags toMeta maps onto document fields or uses to
// delimit records.
var readTags = func() map[string]bool {
	tags := map[string]bool{"TY": true, "ER": true}
	for _, st := range scalarTags {
		tags[st.tag] = true
	}
	for _, tag := range publicationTags {
		tags[tag] = true
	}
	for _, tag := range []string{"AU", "A1", "KW", "UR", "L1", "N1", "SN", "SP", "EP", "PY", "Y1", "DA"} {
		tags[tag] = true
	}
	return tags
}()

// writable reports whether an extension key can be written back as a RIS
// tag. Keys naming a mapped tag are dropped, except the secondary
// publication tags, which are read as extensions again while JO is
// written first.
func writable(k string, m *docmeta.Meta) bool {
	if !isTag(k) {
		return false
	}
	tag := strings.ToUpper(k)
	if !readTags[tag] {
		return true
	}
	return tag != publicationTags[0] && slices.Contains(publicationTags, tag) && m.Publication != ""
}
