package doi

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
)

// Work is the subset of a Crossref work record that maps to a document.
type Work struct {
	DOI                 string    `json:"DOI"`
	Type                string    `json:"type"`
	Title               []string  `json:"title"`
	Subtitle            []string  `json:"subtitle"`
	ContainerTitle      []string  `json:"container-title"`
	JournalTitle        string    `json:"journal-title"`
	ShortContainerTitle []string  `json:"short-container-title"`
	Author              []Author  `json:"author"`
	Editor              []Author  `json:"editor"`
	Issued              DateParts `json:"issued"`
	PublishedPrint      DateParts `json:"published-print"`
	PublishedOnline     DateParts `json:"published-online"`
	Page                string    `json:"page"`
	Volume              string    `json:"volume"`
	Issue               string    `json:"issue"`
	Publisher           string    `json:"publisher"`
	PublisherLocation   string    `json:"publisher-location"`
	Edition             string    `json:"edition-number"`
	ISSN                []string  `json:"ISSN"`
	ISBN                []string  `json:"ISBN"`
	Abstract            string    `json:"abstract"`
	Subject             []string  `json:"subject"`
	URL                 string    `json:"URL"`
	Language            string    `json:"language"`
	ArticleNumber       string    `json:"article-number"`
	Link                []Link    `json:"link"`
}

// Author is one contributor of a work.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"` // organizations carry only a name
}

// DateParts is Crossref's {"date-parts": [[year, month, day]]} form.
type DateParts struct {
	Parts [][]json.Number `json:"date-parts"`
}

// Link is a full-text link.
type Link struct {
	URL         string `json:"URL"`
	ContentType string `json:"content-type"`
}

func (d DateParts) ymd() (year, month, day string) {
	if len(d.Parts) == 0 {
		return "", "", ""
	}
	p := d.Parts[0]
	get := func(i int) string {
		if i >= len(p) {
			return ""
		}
		n, err := strconv.Atoi(p[i].String())
		if err != nil || n <= 0 {
			return ""
		}
		return strconv.Itoa(n)
	}
	return get(0), get(1), get(2)
}

var workTypes = map[string]docmeta.Type{
	"journal-article":     docmeta.TypeArticle,
	"journal-issue":       docmeta.TypeArticle,
	"book":                docmeta.TypeBook,
	"monograph":           docmeta.TypeBook,
	"edited-book":         docmeta.TypeBook,
	"reference-book":      docmeta.TypeBook,
	"book-chapter":        docmeta.TypeChapter,
	"book-section":        docmeta.TypeChapter,
	"book-part":           docmeta.TypeChapter,
	"reference-entry":     docmeta.TypeChapter,
	"proceedings-article": docmeta.TypeInProceedings,
	"dissertation":        docmeta.TypeThesis,
	"report":              docmeta.TypeReport,
	"posted-content":      docmeta.TypeUnpublished,
	"standard":            docmeta.TypeManual,
	"dataset":             docmeta.TypeGeneric,
}

var jatsTag = regexp.MustCompile(`<[^>]+>`)

// MapWork converts a Crossref work to a document. Fields with no document
// counterpart are kept in Extra under their Crossref name.
func MapWork(w Work) *docmeta.Meta {
	m := docmeta.New()
	if t, ok := workTypes[w.Type]; ok {
		m.Type = t
	}
	m.SetExtra("crossref-type", w.Type)

	m.DOI = strings.TrimSpace(w.DOI)
	m.Title = first(w.Title)
	if sub := first(w.Subtitle); sub != "" && m.Title != "" {
		m.Title += ": " + sub
	}

	for _, a := range w.Author {
		switch {
		case a.Family != "":
			m.AddAuthor(strings.TrimSpace(a.Given), strings.TrimSpace(a.Family))
		case a.Name != "":
			m.AddAuthor("", strings.TrimSpace(a.Name))
		}
	}
	if len(w.Editor) > 0 {
		names := make([]string, 0, len(w.Editor))
		for _, e := range w.Editor {
			names = append(names, docmeta.FormatName(e.Given, e.Family))
		}
		m.SetExtra("editor", strings.Join(names, " and "))
	}

	m.Publication = first(w.ContainerTitle)
	if m.Publication == "" {
		m.Publication = strings.TrimSpace(w.JournalTitle)
	}
	m.SetExtra("short-container-title", first(w.ShortContainerTitle))

	for _, d := range []DateParts{w.Issued, w.PublishedPrint, w.PublishedOnline} {
		if y, mo, day := d.ymd(); y != "" {
			m.Year, m.Month, m.Day = y, mo, day
			break
		}
	}

	m.Pages = strings.ReplaceAll(strings.TrimSpace(w.Page), "--", "-")
	m.Volume = strings.TrimSpace(w.Volume)
	m.Issue = strings.TrimSpace(w.Issue)
	m.Publisher = strings.TrimSpace(w.Publisher)
	m.City = strings.TrimSpace(w.PublisherLocation)
	m.Edition = strings.TrimSpace(w.Edition)
	m.ISSN = first(w.ISSN)
	m.ISBN = first(w.ISBN)
	m.Language = strings.TrimSpace(w.Language)
	m.Abstract = cleanAbstract(w.Abstract)
	m.Keywords = append(m.Keywords, w.Subject...)
	if w.URL != "" {
		m.URLs = append(m.URLs, w.URL)
	}
	for _, l := range w.Link {
		if l.ContentType == "application/pdf" && l.URL != "" {
			m.URLs = append(m.URLs, l.URL)
		}
	}
	m.SetExtra("article-number", w.ArticleNumber)

	m.Normalize()
	return m
}

// cleanAbstract strips JATS markup from a Crossref abstract.
func cleanAbstract(s string) string {
	s = jatsTag.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
