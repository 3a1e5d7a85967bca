// Package importer reads BibTeX, RIS and PDF files into documents.
//
// Decoding runs on the worker pool and never touches the library. Apply
// then adds the decoded records and their attachments on the editor
// goroutine.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matsen/bibshelf/internal/bibtex"
	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/logging"
	"github.com/matsen/bibshelf/internal/pdf"
	"github.com/matsen/bibshelf/internal/ris"
	"github.com/matsen/bibshelf/internal/worker"
)

// Format is an import source format.
type Format string

const (
	FormatBibTeX Format = "bibtex"
	FormatRIS    Format = "ris"
	FormatPDF    Format = "pdf"
)

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bib", ".bibtex":
		return FormatBibTeX, nil
	case ".ris":
		return FormatRIS, nil
	case ".pdf":
		return FormatPDF, nil
	}
	return "", liberr.New(liberr.ErrParse, "import", path, errors.New("unknown file type"))
}

// Record is one decoded document with the source files to attach.
type Record struct {
	Source  string        `json:"source"`
	Key     string        `json:"key,omitempty"`
	Meta    *docmeta.Meta `json:"meta"`
	Attach  []string      `json:"attach,omitempty"`
	Missing []string      `json:"missing,omitempty"` // referenced files not found on disk
}

// Failure is a record or file that could not be imported.
type Failure struct {
	Source  string `json:"source"`
	Key     string `json:"key,omitempty"`
	Line    int    `json:"line,omitempty"`
	Summary string `json:"summary,omitempty"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

func newFailure(source, key string, line int, summary string, err error) Failure {
	return Failure{Source: source, Key: key, Line: line, Summary: summary, Err: err, Message: err.Error()}
}

// Parsed is the outcome of decoding a set of files.
type Parsed struct {
	BatchID  string    `json:"batch_id"`
	Records  []Record  `json:"records"`
	Failures []Failure `json:"failures,omitempty"`
}

// Resolver looks up DOI metadata. *doi.Client implements it.
type Resolver interface {
	Resolve(ctx context.Context, doi string) (*docmeta.Meta, error)
}

// Importer decodes files on a worker pool.
type Importer struct {
	pool     *worker.Pool
	resolver Resolver
	log      *logging.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithResolver enriches PDFs that carry a DOI from the resolver.
func WithResolver(r Resolver) Option {
	return func(im *Importer) { im.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(im *Importer) { im.log = l }
}

// New returns an importer using pool.
func New(pool *worker.Pool, opts ...Option) *Importer {
	im := &Importer{pool: pool, log: logging.Nop()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

type fileResult struct {
	records  []Record
	failures []Failure
}

// Parse decodes every path, one job per file. A record that fails to
// decode is reported and the rest of its file is still read.
func (im *Importer) Parse(ctx context.Context, paths []string) *Parsed {
	batch := worker.Run(ctx, im.pool, paths, func(ctx context.Context, path string) (fileResult, error) {
		return im.parseFile(ctx, path)
	})

	out := &Parsed{BatchID: batch.ID}
	for _, r := range batch.Results {
		if r.Status != worker.StatusOK {
			out.Failures = append(out.Failures, newFailure(paths[r.JobID], "", 0, "", r.Err))
			continue
		}
		out.Records = append(out.Records, r.Value.records...)
		out.Failures = append(out.Failures, r.Value.failures...)
	}
	im.log.Debug("parsed import batch", "batch", batch.ID, "files", len(paths),
		"records", len(out.Records), "failures", len(out.Failures))
	return out
}

func (im *Importer) parseFile(ctx context.Context, path string) (fileResult, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return fileResult{}, err
	}
	if format == FormatPDF {
		rec, err := im.parsePDF(ctx, path)
		if err != nil {
			return fileResult{}, err
		}
		return fileResult{records: []Record{rec}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileResult{}, liberr.New(liberr.ErrNotFound, "import", path, err)
		}
		return fileResult{}, liberr.New(liberr.ErrIO, "import", path, err)
	}

	var res fileResult
	dir := filepath.Dir(path)
	add := func(key string, line int, m *docmeta.Meta, err error) {
		if err != nil {
			res.failures = append(res.failures, newFailure(path, key, line, "", err))
			return
		}
		res.records = append(res.records, recordWithFiles(path, key, dir, m))
	}
	switch format {
	case FormatBibTeX:
		for _, r := range bibtex.Parse(data) {
			add(r.Key, r.Line, r.Meta, r.Err)
		}
	case FormatRIS:
		for _, r := range ris.Parse(data) {
			add(r.Key, r.Line, r.Meta, r.Err)
		}
	}
	return res, nil
}

// recordWithFiles moves the file references of an imported entry into the
// attach list. Relative references resolve against the source file's
// directory; references to absent files are kept as Missing.
func recordWithFiles(source, key, dir string, m *docmeta.Meta) Record {
	rec := Record{Source: source, Key: key, Meta: m}
	for _, f := range m.Files {
		p := f
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			rec.Attach = append(rec.Attach, p)
		} else {
			rec.Missing = append(rec.Missing, f)
		}
	}
	m.Files = nil
	return rec
}

func (im *Importer) parsePDF(ctx context.Context, path string) (Record, error) {
	m, err := pdf.Extract(path)
	if err != nil {
		return Record{}, err
	}
	if m.Title == "" {
		m.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if m.DOI != "" && im.resolver != nil {
		resolved, err := im.resolver.Resolve(ctx, m.DOI)
		switch {
		case err == nil:
			// Resolver metadata is authoritative; the PDF fills the gaps.
			resolved.FillMissing(m)
			m = resolved
		case errors.Is(err, liberr.ErrCanceled):
			return Record{}, err
		default:
			im.log.Warn("doi lookup failed, keeping pdf metadata", "file", path, "doi", m.DOI, "error", err)
		}
	}
	return Record{Source: path, Meta: m, Attach: []string{path}}, nil
}

// Target receives imported documents. *library.Library implements it.
type Target interface {
	AddDocument(m *docmeta.Meta, target int64) (int64, error)
	SetFiles(id int64, files []string) error
}

// Attacher copies source files into the file store. *filestore.Store implements it.
type Attacher interface {
	Attach(src string, m *docmeta.Meta) (string, error)
}

// Result is the outcome of applying a parsed batch.
type Result struct {
	Added    []int64   `json:"added"`
	Failures []Failure `json:"failures,omitempty"`
}

// Apply adds every record to folder and attaches its files. It must run on
// the editor goroutine. A failed attachment is reported and leaves the
// document's file list without that file.
func Apply(lib Target, files Attacher, parsed *Parsed, folder int64) Result {
	res := Result{Failures: append([]Failure(nil), parsed.Failures...)}
	for _, rec := range parsed.Records {
		id, err := lib.AddDocument(rec.Meta, folder)
		if err != nil {
			res.Failures = append(res.Failures, newFailure(rec.Source, rec.Key, 0, rec.Meta.Summary(), err))
			continue
		}
		res.Added = append(res.Added, id)
		for _, f := range rec.Missing {
			res.Failures = append(res.Failures, newFailure(rec.Source, rec.Key, 0, rec.Meta.Summary(),
				liberr.New(liberr.ErrNotFound, "attach", f, nil)))
		}
		if len(rec.Attach) == 0 || files == nil {
			continue
		}

		m := rec.Meta.Clone()
		m.ID = id
		m.Files = nil
		for _, src := range rec.Attach {
			rel, err := files.Attach(src, m)
			if err != nil {
				res.Failures = append(res.Failures, newFailure(rec.Source, rec.Key, 0, m.Summary(), err))
				continue
			}
			if !slices.Contains(m.Files, rel) {
				m.Files = append(m.Files, rel)
			}
		}
		if len(m.Files) > 0 {
			if err := lib.SetFiles(id, m.Files); err != nil {
				res.Failures = append(res.Failures, newFailure(rec.Source, rec.Key, 0, m.Summary(),
					fmt.Errorf("recording files: %w", err)))
			}
		}
	}
	return res
}
