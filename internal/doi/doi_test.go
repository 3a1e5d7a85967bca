package doi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

const sampleWork = `{
  "status": "ok",
  "message-type": "work",
  "message": {
    "DOI": "10.1038/nature12373",
    "type": "journal-article",
    "title": ["Nanometre-scale thermometry in a living cell"],
    "container-title": ["Nature"],
    "short-container-title": ["Nature"],
    "author": [
      {"given": "G.", "family": "Kucsko", "sequence": "first"},
      {"given": "P. C.", "family": "Maurer", "sequence": "additional"},
      {"name": "The Consortium", "sequence": "additional"}
    ],
    "issued": {"date-parts": [[2013, 7, 31]]},
    "page": "54-58",
    "volume": "500",
    "issue": "7460",
    "publisher": "Springer Science and Business Media LLC",
    "ISSN": ["0028-0836", "1476-4687"],
    "abstract": "<jats:p>Sensitive probing of <jats:italic>temperature</jats:italic>.</jats:p>",
    "subject": ["Multidisciplinary"],
    "URL": "http://dx.doi.org/10.1038/nature12373",
    "language": "en"
  }
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL+"/works"), WithRateLimit(1000))
}

func TestResolve(t *testing.T) {
	var gotPath, gotAgent, gotMailto string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		gotMailto = r.URL.Query().Get("mailto")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleWork))
	})
	WithMailto("me@example.org")(c)

	m, err := c.Resolve(context.Background(), "https://doi.org/10.1038/nature12373")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if gotPath != "/works/10.1038/nature12373" {
		t.Errorf("request path = %q, want /works/10.1038/nature12373", gotPath)
	}
	if !strings.Contains(gotAgent, "mailto:me@example.org") || !strings.HasPrefix(gotAgent, "bibshelf/") {
		t.Errorf("User-Agent = %q, want bibshelf agent with mailto", gotAgent)
	}
	if gotMailto != "me@example.org" {
		t.Errorf("mailto query = %q", gotMailto)
	}

	want := &docmeta.Meta{
		Type:        docmeta.TypeArticle,
		DOI:         "10.1038/nature12373",
		Title:       "Nanometre-scale thermometry in a living cell",
		Publication: "Nature",
		Year:        "2013",
		Month:       "7",
		Day:         "31",
		Pages:       "54-58",
		Volume:      "500",
		Issue:       "7460",
		Publisher:   "Springer Science and Business Media LLC",
		ISSN:        "0028-0836",
		Language:    "en",
		Abstract:    "Sensitive probing of temperature .",
		FirstNames:  []string{"G.", "P. C.", ""},
		LastNames:   []string{"Kucsko", "Maurer", "The Consortium"},
		Keywords:    []string{"Multidisciplinary"},
		URLs:        []string{"http://dx.doi.org/10.1038/nature12373"},
		Extra: map[string]string{
			"crossref-type":         "journal-article",
			"short-container-title": "Nature",
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Resource not found.", http.StatusNotFound)
		}, liberr.ErrNotFound},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}, liberr.ErrNetwork},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}, liberr.ErrNetwork},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"message": [`))
		}, liberr.ErrParse},
		{"no message", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status": "ok"}`))
		}, liberr.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)
			_, err := c.Resolve(context.Background(), "10.1000/xyz")
			if !errors.Is(err, tt.want) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResolve_Timeout(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	WithTimeout(50 * time.Millisecond)(c)

	_, err := c.Resolve(context.Background(), "10.1000/slow")
	if !errors.Is(err, liberr.ErrNetwork) {
		t.Errorf("Resolve() error = %v, want ErrNetwork", err)
	}
}

func TestResolve_Canceled(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Resolve(ctx, "10.1000/xyz")
	if !errors.Is(err, liberr.ErrCanceled) {
		t.Errorf("Resolve() error = %v, want ErrCanceled", err)
	}
}

func TestResolve_InvalidDOI(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:1"))
	if _, err := c.Resolve(context.Background(), "not-a-doi"); !errors.Is(err, liberr.ErrParse) {
		t.Errorf("Resolve() error = %v, want ErrParse", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		" 10.1000/xyz ":                 "10.1000/xyz",
		"doi:10.1000/xyz":               "10.1000/xyz",
		"DOI: 10.1000/xyz":              "10.1000/xyz",
		"https://doi.org/10.1000/ABC":   "10.1000/ABC",
		"http://dx.doi.org/10.1000/abc": "10.1000/abc",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapWork_TypesAndDates(t *testing.T) {
	w := Work{
		Type:           "book-chapter",
		Title:          []string{"Chapter"},
		Subtitle:       []string{"A Subtitle"},
		JournalTitle:   "Fallback Journal",
		PublishedPrint: DateParts{Parts: [][]json.Number{{"1999", "12"}}},
		Page:           "10--20",
		Editor:         []Author{{Given: "Ed", Family: "Itor"}},
	}
	m := MapWork(w)
	if m.Type != docmeta.TypeChapter {
		t.Errorf("Type = %q, want chapter", m.Type)
	}
	if m.Title != "Chapter: A Subtitle" {
		t.Errorf("Title = %q", m.Title)
	}
	if m.Publication != "Fallback Journal" {
		t.Errorf("Publication = %q, want journal-title fallback", m.Publication)
	}
	if m.Year != "1999" || m.Month != "12" || m.Day != "" {
		t.Errorf("date = %s/%s/%s, want 1999/12/", m.Year, m.Month, m.Day)
	}
	if m.Pages != "10-20" {
		t.Errorf("Pages = %q, want 10-20", m.Pages)
	}
	if m.Extra["editor"] != "Itor, Ed" {
		t.Errorf("editor extra = %q", m.Extra["editor"])
	}

	if got := MapWork(Work{Type: "peer-review"}).Type; got != docmeta.TypeGeneric {
		t.Errorf("unknown type mapped to %q, want generic", got)
	}
}
