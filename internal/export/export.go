// Package export writes documents as BibTeX or RIS.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/matsen/bibshelf/internal/bibtex"
	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/ris"
	"github.com/matsen/bibshelf/internal/worker"
)

// Format is an export format.
type Format string

const (
	FormatBibTeX Format = "bibtex"
	FormatRIS    Format = "ris"
)

// ParseFormat accepts "bibtex", "bib" and "ris".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "bibtex", "bib", "":
		return FormatBibTeX, nil
	case "ris":
		return FormatRIS, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", liberr.ErrParse, s)
}

// Ext returns the usual file extension of f.
func (f Format) Ext() string {
	if f == FormatRIS {
		return ".ris"
	}
	return ".bib"
}

// Failure is a document that could not be exported.
type Failure struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Err     error    `json:"-"`
	Message string   `json:"error"`
}

// Result is the exported text and the documents left out of it.
type Result struct {
	BatchID  string    `json:"batch_id"`
	Data     []byte    `json:"-"`
	Exported []int64   `json:"exported"`
	Failures []Failure `json:"failures,omitempty"`
}

// Run formats docs on pool, one job per document, and joins the entries
// that formatted in input order. Documents that fail are collected with
// their title and authors so the caller can persist them elsewhere.
func Run(ctx context.Context, pool *worker.Pool, docs []*docmeta.Meta, format Format, opts bibtex.Options) *Result {
	batch := worker.Run(ctx, pool, docs, func(_ context.Context, m *docmeta.Meta) ([]byte, error) {
		if format == FormatRIS {
			return ris.Format(m)
		}
		return bibtex.Format(m, opts)
	})

	res := &Result{BatchID: batch.ID}
	var buf bytes.Buffer
	for _, r := range batch.Results {
		m := docs[r.JobID]
		if r.Status != worker.StatusOK {
			res.Failures = append(res.Failures, Failure{
				ID:      m.ID,
				Title:   m.Title,
				Authors: m.Authors(),
				Err:     r.Err,
				Message: r.Err.Error(),
			})
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(r.Value)
		res.Exported = append(res.Exported, m.ID)
	}
	res.Data = buf.Bytes()
	return res
}

// FailedIDs returns the ids of the failed documents.
func (r *Result) FailedIDs() []int64 {
	ids := make([]int64, len(r.Failures))
	for i, f := range r.Failures {
		ids[i] = f.ID
	}
	return ids
}

// Summary describes the failures for a user, one line each.
func (r *Result) Summary() string {
	if len(r.Failures) == 0 {
		return fmt.Sprintf("exported %d documents", len(r.Exported))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "exported %d documents, %d failed:\n", len(r.Exported), len(r.Failures))
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  [%d] %s", f.ID, f.Title)
		if len(f.Authors) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(f.Authors, "; "))
		}
		fmt.Fprintf(&b, ": %s\n", f.Message)
	}
	return b.String()
}

// WriteFile replaces path with the exported text.
func (r *Result) WriteFile(path string) error {
	if err := atomic.WriteFile(path, bytes.NewReader(r.Data)); err != nil {
		return liberr.New(liberr.ErrIO, "export", path, err)
	}
	return nil
}
