package storage

import (
	"fmt"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
)

// Field is a searchable document field.
type Field string

const (
	FieldAuthors     Field = "authors"
	FieldTitle       Field = "title"
	FieldAbstract    Field = "abstract"
	FieldKeywords    Field = "keywords"
	FieldTags        Field = "tags"
	FieldNotes       Field = "notes"
	FieldPublication Field = "publication"
)

// AllFields lists every searchable field in display order.
var AllFields = []Field{
	FieldAuthors, FieldTitle, FieldAbstract, FieldKeywords, FieldTags, FieldNotes, FieldPublication,
}

// ParseField maps a field name (case-insensitive) to a Field.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllFields {
		if f == known {
			return f, nil
		}
	}
	if f == "author" {
		return FieldAuthors, nil
	}
	return "", fmt.Errorf("unknown search field: %s", s)
}

// Hit is one full-text search result.
type Hit struct {
	DocID         int64   `json:"doc_id"`
	MatchedFields []Field `json:"matched_fields"`
	Rank          float64 `json:"rank"`
}

// Search runs a prefix full-text query over the selected fields (all when
// fields is empty), restricted to a folder scope, ranked by FTS rank.
//
// folderID -1 means no restriction, -2 unconfirmed documents, -3 documents
// pending deletion. Any other id restricts to that folder's members and,
// with descend, to members of its transitive descendants.
func (d *DB) Search(term string, fields []Field, folderID int64, descend bool) ([]Hit, error) {
	prefixes := prefixTerms(term)
	if len(prefixes) == 0 {
		return nil, nil
	}
	if len(fields) == 0 {
		fields = AllFields
	}

	scope, scopeArgs := scopeClause(folderID, descend)

	query := `SELECT doc_id, rank FROM documents_fts WHERE documents_fts MATCH ?` + scope + ` ORDER BY rank`
	args := append([]any{matchExpr(fields, prefixes)}, scopeArgs...)
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, d.classify("search", err)
	}
	var hits []Hit
	index := make(map[int64]int)
	err = eachRow(rows, func() error {
		var h Hit
		if err := rows.Scan(&h.DocID, &h.Rank); err != nil {
			return err
		}
		index[h.DocID] = len(hits)
		hits = append(hits, h)
		return nil
	})
	if err != nil {
		return nil, d.classify("search", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// A field matched when any token occurs in it.
	for _, f := range fields {
		args := append([]any{matchAny(f, prefixes)}, scopeArgs...)
		rows, err := d.db.Query(`SELECT doc_id FROM documents_fts WHERE documents_fts MATCH ?`+scope, args...)
		if err != nil {
			return nil, d.classify("search", err)
		}
		err = eachRow(rows, func() error {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				hits[i].MatchedFields = append(hits[i].MatchedFields, f)
			}
			return nil
		})
		if err != nil {
			return nil, d.classify("search", err)
		}
	}
	return hits, nil
}

// prefixTerms quotes each whitespace-separated token as an FTS5 prefix query.
func prefixTerms(term string) []string {
	var out []string
	for _, tok := range strings.Fields(term) {
		tok = strings.ReplaceAll(tok, "\"", "\"\"")
		out = append(out, "\""+tok+"\"*")
	}
	return out
}

// matchExpr builds "{cols} : t1* AND {cols} : t2*".
func matchExpr(fields []Field, prefixes []string) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = string(f)
	}
	filter := "{" + strings.Join(cols, " ") + "} : "
	parts := make([]string, len(prefixes))
	for i, p := range prefixes {
		parts[i] = filter + p
	}
	return strings.Join(parts, " AND ")
}

func matchAny(f Field, prefixes []string) string {
	parts := make([]string, len(prefixes))
	for i, p := range prefixes {
		parts[i] = "{" + string(f) + "} : " + p
	}
	return strings.Join(parts, " OR ")
}

func scopeClause(folderID int64, descend bool) (string, []any) {
	switch {
	case folderID == docmeta.FolderAll:
		return "", nil
	case folderID == docmeta.FolderReview:
		return ` AND doc_id IN (SELECT id FROM documents WHERE confirmed = 0)`, nil
	case folderID == docmeta.FolderTrash:
		return ` AND doc_id IN (SELECT id FROM documents WHERE deletion_pending = 1)`, nil
	case descend:
		return ` AND doc_id IN (
			WITH RECURSIVE sub(id) AS (
				SELECT ?
				UNION
				SELECT f.id FROM folders f JOIN sub ON f.parent_id = sub.id
			)
			SELECT doc_id FROM document_folders WHERE folder_id IN (SELECT id FROM sub))`, []any{folderID}
	default:
		return ` AND doc_id IN (SELECT doc_id FROM document_folders WHERE folder_id = ?)`, []any{folderID}
	}
}
