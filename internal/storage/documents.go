package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

// Snapshot is the committed state of a library.
type Snapshot struct {
	Docs        map[int64]*docmeta.Meta
	Folders     map[int64]docmeta.Folder
	FolderDocs  map[int64][]int64 // user folders only; reserved folders derive from flags
	MaxDocID    int64             // highest document id ever written
	MaxFolderID int64             // highest folder id ever written
}

// WriteDocument upserts a document. The scalar row is replaced and every
// child row of the document is deleted and reinserted. The notes row keeps
// its created time; its modified time is always bumped.
func (d *DB) WriteDocument(m *docmeta.Meta) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("write document %d: %w", m.ID, err)
	}

	err := d.withTx(func(tx *sql.Tx) error {
		if err := insertDocumentRow(tx, m); err != nil {
			return err
		}
		if err := deleteChildren(tx, m.ID); err != nil {
			return err
		}
		if err := insertChildren(tx, m); err != nil {
			return err
		}
		if err := d.writeNotes(tx, m); err != nil {
			return err
		}
		if err := writeFTS(tx, m); err != nil {
			return err
		}
		return bumpMetaMax(tx, metaMaxDocID, m.ID)
	})
	return d.classify(fmt.Sprintf("write document %d", m.ID), err)
}

func insertDocumentRow(tx *sql.Tx, m *docmeta.Meta) error {
	var extra sql.NullString
	if len(m.Extra) > 0 {
		data, err := json.Marshal(m.Extra)
		if err != nil {
			return fmt.Errorf("encoding extra fields: %w", err)
		}
		extra = sql.NullString{String: string(data), Valid: true}
	}

	_, err := tx.Exec(`INSERT OR REPLACE INTO documents (`+docColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Type),
		nullableStringValue(m.Title), nullableStringValue(m.Abstract),
		nullableStringValue(m.Publication), nullableStringValue(m.Publisher),
		nullableStringValue(m.City), nullableStringValue(m.Country),
		nullableStringValue(m.Edition), nullableStringValue(m.Institution),
		nullableStringValue(m.Series), nullableStringValue(m.Chapter),
		nullableStringValue(m.CitationKey), nullableStringValue(m.DOI),
		nullableStringValue(m.ISBN), nullableStringValue(m.ISSN),
		nullableStringValue(m.ArxivID), nullableStringValue(m.PMID),
		nullableStringValue(m.Language),
		nullableStringValue(m.Year), nullableStringValue(m.Month), nullableStringValue(m.Day),
		nullableStringValue(m.Volume), nullableStringValue(m.Issue), nullableStringValue(m.Pages),
		m.Added, m.LastUpdate,
		boolInt(m.Favourite), boolInt(m.Read), boolInt(m.Confirmed), boolInt(m.DeletionPending),
		extra,
	)
	if err != nil {
		return fmt.Errorf("inserting document row: %w", err)
	}
	return nil
}

var childTables = []string{
	"document_authors",
	"document_tags",
	"document_keywords",
	"document_urls",
	"document_files",
	"document_folders",
}

func deleteChildren(tx *sql.Tx, id int64) error {
	for _, table := range childTables {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE doc_id = ?`, id); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

func insertChildren(tx *sql.Tx, m *docmeta.Meta) error {
	for i := range m.LastNames {
		if _, err := tx.Exec(`INSERT INTO document_authors (doc_id, ordinal, first_name, last_name)
			VALUES (?, ?, ?, ?)`, m.ID, i, m.FirstNames[i], m.LastNames[i]); err != nil {
			return fmt.Errorf("inserting author: %w", err)
		}
	}

	sets := []struct {
		table, col string
		values     []string
	}{
		{"document_tags", "tag", m.Tags},
		{"document_keywords", "text", m.Keywords},
		{"document_urls", "url", m.URLs},
	}
	for _, s := range sets {
		for _, v := range s.values {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO `+s.table+` (doc_id, `+s.col+`) VALUES (?, ?)`,
				m.ID, v); err != nil {
				return fmt.Errorf("inserting into %s: %w", s.table, err)
			}
		}
	}

	for i, rel := range m.Files {
		if _, err := tx.Exec(`INSERT INTO document_files (doc_id, ordinal, rel_path) VALUES (?, ?, ?)`,
			m.ID, i, rel); err != nil {
			return fmt.Errorf("inserting file: %w", err)
		}
	}

	for _, f := range m.Folders {
		if docmeta.IsReserved(f.ID) {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO document_folders (doc_id, folder_id) VALUES (?, ?)`,
			m.ID, f.ID); err != nil {
			return fmt.Errorf("inserting folder membership: %w", err)
		}
	}
	return nil
}

func (d *DB) writeNotes(tx *sql.Tx, m *docmeta.Meta) error {
	if m.Notes == "" {
		if _, err := tx.Exec(`DELETE FROM document_notes WHERE doc_id = ?`, m.ID); err != nil {
			return fmt.Errorf("clearing notes: %w", err)
		}
		return nil
	}
	now := d.now().Unix()
	_, err := tx.Exec(`INSERT INTO document_notes (doc_id, note, created_time, modified_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET note = excluded.note, modified_time = excluded.modified_time`,
		m.ID, m.Notes, now, now)
	if err != nil {
		return fmt.Errorf("writing notes: %w", err)
	}
	return nil
}

func writeFTS(tx *sql.Tx, m *docmeta.Meta) error {
	if _, err := tx.Exec(`DELETE FROM documents_fts WHERE doc_id = ?`, m.ID); err != nil {
		return fmt.Errorf("clearing fts row: %w", err)
	}
	_, err := tx.Exec(`INSERT INTO documents_fts (doc_id, title, abstract, authors, keywords, tags, notes, publication)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, m.Abstract, formatAuthorsText(m),
		strings.Join(m.Keywords, "; "), strings.Join(m.Tags, "; "),
		m.Notes, m.Publication)
	if err != nil {
		return fmt.Errorf("inserting fts row: %w", err)
	}
	return nil
}

// formatAuthorsText creates a searchable text representation of authors.
func formatAuthorsText(m *docmeta.Meta) string {
	var names []string
	for i := range m.LastNames {
		if m.FirstNames[i] != "" {
			names = append(names, m.FirstNames[i]+" "+m.LastNames[i])
		} else {
			names = append(names, m.LastNames[i])
		}
	}
	return strings.Join(names, ", ")
}

// DeleteDocument removes a document and all of its child rows. It returns
// the file paths the document referenced so the caller can delete them.
// Deleting an absent document is not an error.
func (d *DB) DeleteDocument(id int64) ([]string, error) {
	var paths []string
	err := d.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT rel_path FROM document_files WHERE doc_id = ? ORDER BY ordinal`, id)
		if err != nil {
			return fmt.Errorf("listing files: %w", err)
		}
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			paths = append(paths, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if err := deleteChildren(tx, id); err != nil {
			return err
		}
		for _, q := range []string{
			`DELETE FROM document_notes WHERE doc_id = ?`,
			`DELETE FROM documents_fts WHERE doc_id = ?`,
			`DELETE FROM documents WHERE id = ?`,
		} {
			if _, err := tx.Exec(q, id); err != nil {
				return fmt.Errorf("deleting document: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, d.classify(fmt.Sprintf("delete document %d", id), err)
	}
	return paths, nil
}

// ReadDocument loads one document by id.
func (d *DB) ReadDocument(id int64) (*docmeta.Meta, error) {
	row := d.db.QueryRow(`SELECT `+docColumns+` FROM documents WHERE id = ?`, id)
	m, err := scanDocument(row)
	if err != nil {
		return nil, d.classify(fmt.Sprintf("read document %d", id), err)
	}

	docs := map[int64]*docmeta.Meta{id: m}
	if err := d.loadChildren(docs, "WHERE doc_id = "+strconv.FormatInt(id, 10)); err != nil {
		return nil, d.classify(fmt.Sprintf("read document %d", id), err)
	}
	folders, err := d.readFolders()
	if err != nil {
		return nil, d.classify(fmt.Sprintf("read document %d", id), err)
	}
	if _, err := d.loadMemberships(docs, folders, "WHERE doc_id = "+strconv.FormatInt(id, 10)); err != nil {
		return nil, d.classify(fmt.Sprintf("read document %d", id), err)
	}
	return m, nil
}

// ReadAll loads the entire library.
func (d *DB) ReadAll() (*Snapshot, error) {
	snap, err := d.readAll()
	if err != nil {
		return nil, d.classify("read library", err)
	}
	return snap, nil
}

func (d *DB) readAll() (*Snapshot, error) {
	rows, err := d.db.Query(`SELECT ` + docColumns + ` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	docs := make(map[int64]*docmeta.Meta)
	for rows.Next() {
		m, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		docs[m.ID] = m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.loadChildren(docs, ""); err != nil {
		return nil, err
	}

	folders, err := d.readFolders()
	if err != nil {
		return nil, err
	}

	folderDocs, err := d.loadMemberships(docs, folders, "")
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Docs: docs, Folders: folders, FolderDocs: folderDocs}
	if snap.MaxDocID, err = getMetaInt(d.db, metaMaxDocID); err != nil {
		return nil, fmt.Errorf("reading %s: %w", metaMaxDocID, err)
	}
	if snap.MaxFolderID, err = getMetaInt(d.db, metaMaxFolderID); err != nil {
		return nil, fmt.Errorf("reading %s: %w", metaMaxFolderID, err)
	}
	return snap, nil
}

// loadChildren fills the multivalued fields of docs. where restricts the
// child rows and must only reference doc_id.
func (d *DB) loadChildren(docs map[int64]*docmeta.Meta, where string) error {
	rows, err := d.db.Query(`SELECT doc_id, first_name, last_name FROM document_authors ` + where + ` ORDER BY doc_id, ordinal`)
	if err != nil {
		return fmt.Errorf("listing authors: %w", err)
	}
	err = eachRow(rows, func() error {
		var id int64
		var first, last string
		if err := rows.Scan(&id, &first, &last); err != nil {
			return err
		}
		if m, ok := docs[id]; ok {
			m.AddAuthor(first, last)
		}
		return nil
	})
	if err != nil {
		return err
	}

	lists := []struct {
		query string
		field func(*docmeta.Meta) *[]string
	}{
		{`SELECT doc_id, tag FROM document_tags ` + where + ` ORDER BY doc_id, tag`,
			func(m *docmeta.Meta) *[]string { return &m.Tags }},
		{`SELECT doc_id, text FROM document_keywords ` + where + ` ORDER BY doc_id, text`,
			func(m *docmeta.Meta) *[]string { return &m.Keywords }},
		{`SELECT doc_id, url FROM document_urls ` + where + ` ORDER BY doc_id, url`,
			func(m *docmeta.Meta) *[]string { return &m.URLs }},
		{`SELECT doc_id, rel_path FROM document_files ` + where + ` ORDER BY doc_id, ordinal`,
			func(m *docmeta.Meta) *[]string { return &m.Files }},
		{`SELECT doc_id, note FROM document_notes ` + where, nil},
	}
	for _, l := range lists {
		rows, err := d.db.Query(l.query)
		if err != nil {
			return fmt.Errorf("listing child rows: %w", err)
		}
		err = eachRow(rows, func() error {
			var id int64
			var v string
			if err := rows.Scan(&id, &v); err != nil {
				return err
			}
			m, ok := docs[id]
			if !ok {
				return nil
			}
			if l.field == nil {
				m.Notes = v
				return nil
			}
			p := l.field(m)
			*p = append(*p, v)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// loadMemberships mirrors document_folders into each document's Folders and
// returns the folder membership index. Rows pointing at deleted folders or
// documents are skipped.
func (d *DB) loadMemberships(docs map[int64]*docmeta.Meta, folders map[int64]docmeta.Folder, where string) (map[int64][]int64, error) {
	rows, err := d.db.Query(`SELECT doc_id, folder_id FROM document_folders ` + where + ` ORDER BY doc_id, folder_id`)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	folderDocs := make(map[int64][]int64)
	err = eachRow(rows, func() error {
		var docID, folderID int64
		if err := rows.Scan(&docID, &folderID); err != nil {
			return err
		}
		m, ok := docs[docID]
		f, fok := folders[folderID]
		if !ok || !fok {
			return nil
		}
		m.Folders = append(m.Folders, docmeta.FolderRef{ID: f.ID, Name: f.Name})
		folderDocs[folderID] = append(folderDocs[folderID], docID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ids := range folderDocs {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return folderDocs, nil
}

func eachRow(rows *sql.Rows, fn func() error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of stored documents.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count)
	return count, d.classify("count documents", err)
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(s scanner) (*docmeta.Meta, error) {
	var m docmeta.Meta
	var typ string
	var title, abstract, publication, publisher, city, country sql.NullString
	var edition, institution, series, chapter, citationkey, doi sql.NullString
	var isbn, issn, arxivID, pmid, language sql.NullString
	var year, month, day, volume, issue, pages sql.NullString
	var favourite, read, confirmed, pending int
	var extra sql.NullString

	err := s.Scan(
		&m.ID, &typ, &title, &abstract, &publication, &publisher, &city, &country,
		&edition, &institution, &series, &chapter, &citationkey, &doi, &isbn, &issn,
		&arxivID, &pmid, &language, &year, &month, &day, &volume, &issue, &pages,
		&m.Added, &m.LastUpdate, &favourite, &read, &confirmed, &pending, &extra,
	)
	if err != nil {
		return nil, err
	}

	m.Type = docmeta.ParseType(typ)
	m.Title = title.String
	m.Abstract = abstract.String
	m.Publication = publication.String
	m.Publisher = publisher.String
	m.City = city.String
	m.Country = country.String
	m.Edition = edition.String
	m.Institution = institution.String
	m.Series = series.String
	m.Chapter = chapter.String
	m.CitationKey = citationkey.String
	m.DOI = doi.String
	m.ISBN = isbn.String
	m.ISSN = issn.String
	m.ArxivID = arxivID.String
	m.PMID = pmid.String
	m.Language = language.String
	m.Year = year.String
	m.Month = month.String
	m.Day = day.String
	m.Volume = volume.String
	m.Issue = issue.String
	m.Pages = pages.String
	m.Favourite = favourite != 0
	m.Read = read != 0
	m.Confirmed = confirmed != 0
	m.DeletionPending = pending != 0

	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &m.Extra); err != nil {
			return nil, liberr.New(liberr.ErrCorrupt, "parsing extra fields", strconv.FormatInt(m.ID, 10), err)
		}
	}
	return &m, nil
}

// NoteTimes returns the created and modified times of a document's notes.
func (d *DB) NoteTimes(id int64) (created, modified int64, err error) {
	err = d.db.QueryRow(`SELECT created_time, modified_time FROM document_notes WHERE doc_id = ?`, id).
		Scan(&created, &modified)
	if err != nil {
		return 0, 0, d.classify(fmt.Sprintf("read notes %d", id), err)
	}
	return created, modified, nil
}
