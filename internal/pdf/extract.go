// Package pdf extracts bibliographic metadata from PDF files and opens them
// in an external viewer.
package pdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

// DOI pattern: 10.NNNN/suffix with a registrant code of four digits or more.
var doiPattern = regexp.MustCompile(`10\.[1-9]\d{3,8}/\S+`)

var (
	keywordSplit = regexp.MustCompile(`[,;]`)
	authorSplit  = regexp.MustCompile(`\s*;\s*|\s+and\s+|\s*&\s*`)
)

// Titles producers write when the author left the field blank.
var placeholderTitle = regexp.MustCompile(`(?i)^(untitled|microsoft (word|powerpoint) - .*|.*\.(docx?|pdf|dvi|tex|ps))$`)

// Info holds the raw metadata strings of one PDF: the info dictionary
// merged with the XMP packet, XMP winning where both are set.
type Info struct {
	Title    string
	Authors  []string
	Subject  string
	Keywords []string
	DOI      string // explicit prism:doi or /doi entry, if any
}

// Extract reads metadata from the PDF at path. Missing files report
// liberr.ErrNotFound; anything the reader cannot decode reports
// liberr.ErrParse.
func Extract(path string) (*docmeta.Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, liberr.New(liberr.ErrNotFound, "extract pdf", path, err)
		}
		return nil, liberr.New(liberr.ErrIO, "extract pdf", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, liberr.New(liberr.ErrIO, "extract pdf", path, err)
	}
	m, err := ExtractReader(f, st.Size())
	if err != nil {
		return nil, liberr.New(liberr.ErrParse, "extract pdf", path, err)
	}
	return m, nil
}

// ExtractReader reads metadata from a PDF held in r. The returned document
// is partial: usually title, authors, keywords and a DOI at most.
func ExtractReader(r io.ReaderAt, size int64) (m *docmeta.Meta, err error) {
	defer func() {
		if p := recover(); p != nil {
			m, err = nil, fmt.Errorf("%w: malformed pdf: %v", liberr.ErrParse, p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", liberr.ErrParse, err)
	}

	info := readInfo(reader)
	m = toMeta(info)

	if m.DOI == "" || m.Title == "" {
		text := firstPageText(reader)
		if m.DOI == "" {
			m.DOI = mostFrequentDOI(text)
		}
		if m.Title == "" {
			m.Title = guessTitle(text)
		}
	}
	return m, nil
}

// readInfo merges the trailer's /Info dictionary with the catalog's XMP
// metadata stream.
func readInfo(r *pdf.Reader) Info {
	dict := r.Trailer().Key("Info")
	info := Info{
		Title:    strings.TrimSpace(dict.Key("Title").Text()),
		Subject:  strings.TrimSpace(dict.Key("Subject").Text()),
		Keywords: splitKeywords(dict.Key("Keywords").Text()),
		DOI:      strings.TrimSpace(dict.Key("doi").Text()),
	}
	if a := strings.TrimSpace(dict.Key("Author").Text()); a != "" {
		info.Authors = splitAuthors(a)
	}

	stream := r.Trailer().Key("Root").Key("Metadata")
	if stream.Kind() != pdf.Stream {
		return info
	}
	rc := stream.Reader()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return info
	}
	x, err := parseXMP(data)
	if err != nil {
		return info
	}
	return merge(info, x)
}

func merge(info, x Info) Info {
	if x.Title != "" {
		info.Title = x.Title
	}
	if len(x.Authors) > 0 {
		info.Authors = x.Authors
	}
	if x.Subject != "" {
		info.Subject = x.Subject
	}
	if len(x.Keywords) > 0 {
		info.Keywords = x.Keywords
	}
	if x.DOI != "" {
		info.DOI = x.DOI
	}
	return info
}

func toMeta(info Info) *docmeta.Meta {
	m := docmeta.New()
	if !placeholderTitle.MatchString(info.Title) {
		m.Title = collapse(info.Title)
	}
	for _, a := range info.Authors {
		m.AddAuthor(docmeta.SplitName(a))
	}
	m.Keywords = info.Keywords
	m.SetExtra("subject", info.Subject)

	if info.DOI != "" {
		m.DOI = cleanDOI(info.DOI)
	} else {
		m.DOI = mostFrequentDOI(info.Title + "\n" + info.Subject)
	}
	m.Normalize()
	return m
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range keywordSplit.Split(s, -1) {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// splitAuthors splits an info-dictionary author string. A single comma
// is read as "Last, First"; several commas without other separators
// separate authors.
func splitAuthors(s string) []string {
	parts := authorSplit.Split(s, -1)
	if len(parts) == 1 && strings.Count(s, ",") > 1 {
		parts = strings.Split(s, ",")
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// mostFrequentDOI returns the DOI occurring most often in text, the first
// seen winning ties.
func mostFrequentDOI(text string) string {
	counts := make(map[string]int)
	var order []string
	for _, match := range doiPattern.FindAllString(text, -1) {
		doi := cleanDOI(match)
		if !isValidDOI(doi) {
			continue
		}
		if counts[doi] == 0 {
			order = append(order, doi)
		}
		counts[doi]++
	}
	if len(order) == 0 {
		return ""
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	return order[0]
}

// cleanDOI strips resolver prefixes and trailing punctuation.
func cleanDOI(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:", "DOI:"} {
		s = strings.TrimPrefix(s, prefix)
	}
	return strings.TrimRight(s, ".,;:)]}>\"'")
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slash := strings.Index(doi, "/")
	return slash != -1 && slash < len(doi)-1
}

// firstPageText returns the plain text of page one, or "" when the page
// cannot be decoded.
func firstPageText(r *pdf.Reader) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if r.NumPage() < 1 {
		return ""
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// guessTitle picks the first substantial line of page text.
func guessTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !isHeaderLine(line) && !doiPattern.MatchString(line) {
			return collapse(line)
		}
	}
	return ""
}

// isHeaderLine checks if a line is likely a running header or footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"), strings.Contains(lower, "arxiv:"):
		return true
	case strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	}
	return false
}
