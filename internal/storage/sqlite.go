// Package storage persists a library to a single SQLite file.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	_ "modernc.org/sqlite"
)

// SchemaVersion is written to the meta table of every new library.
// Opening a file with a newer major version fails with ErrVersionMismatch.
const SchemaVersion = "1.0"

// Meta table keys.
const (
	metaSchemaVersion = "schema_version"
	metaMaxDocID      = "max_doc_id"
	metaMaxFolderID   = "max_folder_id"
)

// FileSuffix is the conventional suffix of a library file.
const FileSuffix = ".sqlite"

// DB wraps the SQLite connection of one library.
type DB struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// CreateNew creates a library file at path, initializing the schema and the
// Default folder in one transaction.
func CreateNew(path string) (*DB, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, liberr.New(liberr.ErrAlreadyExists, "create library", path, nil)
	} else if !os.IsNotExist(err) {
		return nil, liberr.New(liberr.ErrIO, "create library", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, liberr.New(liberr.ErrIO, "create library", path, err)
	}

	d, err := openDB(path)
	if err != nil {
		return nil, liberr.New(liberr.ErrIO, "create library", path, err)
	}

	err = d.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(schemaDDL); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
		if err := setMeta(tx, metaSchemaVersion, SchemaVersion); err != nil {
			return err
		}
		if err := setMeta(tx, metaMaxDocID, "0"); err != nil {
			return err
		}
		if err := setMeta(tx, metaMaxFolderID, "0"); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO folders (id, name, parent_id, path) VALUES (?, ?, ?, ?)`,
			docmeta.FolderDefault, docmeta.DefaultFolderName, docmeta.FolderAll, docmeta.DefaultFolderName)
		if err != nil {
			return fmt.Errorf("inserting default folder: %w", err)
		}
		return nil
	})
	if err != nil {
		d.db.Close()
		os.Remove(path)
		return nil, liberr.New(liberr.ErrIO, "create library", path, err)
	}

	return d, nil
}

// Open opens an existing library file and verifies its integrity and
// schema version.
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, liberr.New(liberr.ErrNotFound, "open library", path, nil)
		}
		return nil, liberr.New(liberr.ErrIO, "open library", path, err)
	}

	d, err := openDB(path)
	if err != nil {
		return nil, liberr.New(liberr.ErrIO, "open library", path, err)
	}

	if err := d.verify(); err != nil {
		d.db.Close()
		return nil, err
	}
	return d, nil
}

func openDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	return &DB{db: db, path: path, now: time.Now}, nil
}

// verify checks the file is a library database this build can read.
func (d *DB) verify() error {
	if err := d.IntegrityCheck(); err != nil {
		return err
	}

	var version string
	err := d.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaSchemaVersion).Scan(&version)
	if err != nil {
		return d.classify("read schema version", err)
	}

	have, err := majorVersion(version)
	if err != nil {
		return liberr.New(liberr.ErrCorrupt, "read schema version", d.path, err)
	}
	want, _ := majorVersion(SchemaVersion)
	if have > want {
		return liberr.New(liberr.ErrVersionMismatch, "open library", d.path,
			fmt.Errorf("file has schema %s, this build supports %s", version, SchemaVersion))
	}
	return nil
}

func majorVersion(v string) (int, error) {
	major, _, _ := strings.Cut(strings.TrimSpace(v), ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("malformed schema version %q", v)
	}
	return n, nil
}

// IntegrityCheck runs SQLite's quick_check and reports ErrCorrupt on failure.
func (d *DB) IntegrityCheck() error {
	var result string
	if err := d.db.QueryRow(`PRAGMA quick_check`).Scan(&result); err != nil {
		return liberr.New(liberr.ErrCorrupt, "integrity check", d.path, err)
	}
	if result != "ok" {
		return liberr.New(liberr.ErrCorrupt, "integrity check", d.path, errors.New(result))
	}
	return nil
}

// Path returns the library file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (d *DB) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// classify maps a driver error to an error kind. Corruption and "not a
// database" become ErrCorrupt; a missing row becomes ErrNotFound.
func (d *DB) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return liberr.New(liberr.ErrNotFound, op, "", nil)
	}
	if isCorruption(err) {
		return liberr.New(liberr.ErrCorrupt, op, d.path, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SQLite primary result codes for corruption.
const (
	sqliteCorrupt = 11
	sqliteNotADB  = 26
)

func isCorruption(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqliteCorrupt, sqliteNotADB:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "no such table")
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func setMeta(tx execer, key, value string) error {
	_, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("setting meta %s: %w", key, err)
	}
	return nil
}

func getMetaInt(q execer, key string) (int64, error) {
	var v string
	if err := q.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// bumpMetaMax raises a high-water mark in the meta table.
func bumpMetaMax(tx execer, key string, id int64) error {
	cur, err := getMetaInt(tx, key)
	if err != nil {
		return fmt.Errorf("reading meta %s: %w", key, err)
	}
	if id <= cur {
		return nil
	}
	return setMeta(tx, key, strconv.FormatInt(id, 10))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
