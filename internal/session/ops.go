package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/matsen/bibshelf/internal/bibtex"
	"github.com/matsen/bibshelf/internal/dedupe"
	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/export"
	"github.com/matsen/bibshelf/internal/importer"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/library"
	"github.com/matsen/bibshelf/internal/search"
	"github.com/matsen/bibshelf/internal/storage"
)

// FailureFolderName is the base name of folders created by PersistFailures.
const FailureFolderName = "Failed export"

// docs clones the documents in the folder scope.
func (s *Session) docs(folder int64, descend bool) ([]*docmeta.Meta, error) {
	var out []*docmeta.Meta
	err := s.View(func(lib *library.Library) {
		for _, id := range lib.FolderScope(folder, descend) {
			if m, ok := lib.Document(id); ok {
				out = append(out, m)
			}
		}
	})
	return out, err
}

// Import decodes paths on the worker pool and adds the records to folder.
func (s *Session) Import(ctx context.Context, paths []string, folder int64) (importer.Result, error) {
	if err := s.Edit(func(*library.Library) error { return nil }); err != nil {
		return importer.Result{}, err
	}
	parsed := s.im.Parse(ctx, paths)

	var res importer.Result
	err := s.Edit(func(lib *library.Library) error {
		res = importer.Apply(lib, s.files, parsed, folder)
		return nil
	})
	if err != nil {
		return importer.Result{}, err
	}
	s.log.Info("import finished", "batch", parsed.BatchID, "added", len(res.Added), "failed", len(res.Failures))
	return res, nil
}

// AttachFile copies src into the file store and appends it to document
// id. On failure the document's files are left unchanged.
func (s *Session) AttachFile(id int64, src string) (string, error) {
	var rel string
	err := s.Edit(func(lib *library.Library) error {
		m, ok := lib.Document(id)
		if !ok {
			return liberr.New(liberr.ErrNotFound, "attach", fmt.Sprintf("document %d", id), nil)
		}
		var err error
		rel, err = s.files.Attach(src, m)
		if err != nil {
			return err
		}
		if slices.Contains(m.Files, rel) {
			return nil
		}
		return lib.SetFiles(id, append(m.Files, rel))
	})
	return rel, err
}

// Export formats the documents with ids on the worker pool. Documents that
// do not exist are reported as failures.
func (s *Session) Export(ctx context.Context, ids []int64, format export.Format) (*export.Result, error) {
	var docs []*docmeta.Meta
	var missing []export.Failure
	err := s.Edit(func(lib *library.Library) error {
		for _, id := range ids {
			m, ok := lib.Document(id)
			if !ok {
				err := liberr.New(liberr.ErrNotFound, "export", fmt.Sprintf("document %d", id), nil)
				missing = append(missing, export.Failure{ID: id, Err: err, Message: err.Error()})
				continue
			}
			docs = append(docs, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	opts := bibtex.NewOptions(s.settings.Export.Bib.OmitFields)
	res := export.Run(ctx, s.pool, docs, format, opts)
	res.Failures = append(res.Failures, missing...)
	if len(res.Failures) > 0 {
		s.log.Warn("export incomplete", "batch", res.BatchID, "failed", len(res.Failures))
	}
	return res, nil
}

// PersistFailures creates a new top-level folder holding the documents
// with ids, so a failed batch can be retried. The folder name is made
// unique among its siblings.
func (s *Session) PersistFailures(ids []int64) (int64, error) {
	var fid int64
	err := s.Edit(func(lib *library.Library) error {
		name := FailureFolderName
		for n := 2; ; n++ {
			var err error
			fid, err = lib.CreateFolder(name, docmeta.FolderAll)
			if err == nil {
				break
			}
			if !errors.Is(err, liberr.ErrNameConflict) {
				return err
			}
			name = fmt.Sprintf("%s (%d)", FailureFolderName, n)
		}
		for _, id := range ids {
			if !lib.Has(id) {
				continue
			}
			if err := lib.AddToFolder(id, fid); err != nil {
				return err
			}
		}
		return nil
	})
	return fid, err
}

// Search runs a full-text query. Documents added since the last flush are
// not found.
func (s *Session) Search(q search.Query) ([]storage.Hit, error) {
	var hits []storage.Hit
	err := s.Edit(func(*library.Library) error {
		var err error
		hits, err = s.search.Search(q)
		return err
	})
	return hits, err
}

// Duplicates groups likely duplicates in the folder scope.
func (s *Session) Duplicates(ctx context.Context, folder int64, descend bool) ([]dedupe.Group, error) {
	docs, err := s.docs(folder, descend)
	if err != nil {
		return nil, err
	}
	return s.finder.Group(ctx, docs)
}

// Similar returns the documents in the folder scope that likely duplicate
// document id, best first.
func (s *Session) Similar(ctx context.Context, id, folder int64, descend bool) ([]dedupe.Member, error) {
	docs, err := s.docs(folder, descend)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(docs, func(m *docmeta.Meta) bool { return m.ID == id })
	if idx < 0 {
		var target *docmeta.Meta
		if err := s.View(func(lib *library.Library) { target, _ = lib.Document(id) }); err != nil {
			return nil, err
		}
		if target == nil {
			return nil, liberr.New(liberr.ErrNotFound, "similar", fmt.Sprintf("document %d", id), nil)
		}
		return s.finder.Similar(ctx, target, docs)
	}
	return s.finder.Similar(ctx, docs[idx], docs)
}

// ResolveDOI looks up doi without touching the library.
func (s *Session) ResolveDOI(ctx context.Context, doi string) (*docmeta.Meta, error) {
	return s.doi.Resolve(ctx, doi)
}

// AddByDOI resolves doi and adds the result to folder.
func (s *Session) AddByDOI(ctx context.Context, doi string, folder int64) (int64, error) {
	m, err := s.doi.Resolve(ctx, doi)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.Edit(func(lib *library.Library) error {
		id, err = lib.AddDocument(m, folder)
		return err
	})
	return id, err
}

// EnrichFromDOI resolves the DOI of document id and fills its empty
// fields. It returns the keys that were filled.
func (s *Session) EnrichFromDOI(ctx context.Context, id int64) ([]string, error) {
	var current *docmeta.Meta
	if err := s.View(func(lib *library.Library) { current, _ = lib.Document(id) }); err != nil {
		return nil, err
	}
	if current == nil {
		return nil, liberr.New(liberr.ErrNotFound, "enrich", fmt.Sprintf("document %d", id), nil)
	}
	if current.DOI == "" {
		return nil, liberr.New(liberr.ErrNotFound, "enrich", fmt.Sprintf("document %d", id), errors.New("no doi"))
	}
	resolved, err := s.doi.Resolve(ctx, current.DOI)
	if err != nil {
		return nil, err
	}

	var filled []string
	err = s.Edit(func(lib *library.Library) error {
		m, ok := lib.Document(id)
		if !ok {
			return liberr.New(liberr.ErrNotFound, "enrich", fmt.Sprintf("document %d", id), nil)
		}
		filled = m.FillMissing(resolved)
		if len(filled) == 0 {
			return nil
		}
		return lib.UpdateDocument(id, m, filled)
	})
	return filled, err
}

// Mirror copies the attachments of the documents in folder into a
// directory named after the folder path.
func (s *Session) Mirror(folder int64) ([]string, error) {
	var path string
	var rels []string
	err := s.View(func(lib *library.Library) {
		path = lib.FolderPath(folder)
		for _, id := range lib.FolderScope(folder, false) {
			m, _ := lib.Document(id)
			rels = append(rels, m.Files...)
		}
	})
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, liberr.New(liberr.ErrNotFound, "mirror", fmt.Sprintf("folder %d", folder), nil)
	}
	return s.files.Mirror(path, rels)
}
