package storage

// schemaDDL creates every table of a library file.
const schemaDDL = `
	CREATE TABLE meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- One row per document; multivalued fields live in child tables
	CREATE TABLE documents (
		id INTEGER PRIMARY KEY,
		type TEXT NOT NULL DEFAULT 'generic',
		title TEXT,
		abstract TEXT,
		publication TEXT,
		publisher TEXT,
		city TEXT,
		country TEXT,
		edition TEXT,
		institution TEXT,
		series TEXT,
		chapter TEXT,
		citationkey TEXT,
		doi TEXT,
		isbn TEXT,
		issn TEXT,
		arxiv_id TEXT,
		pmid TEXT,
		language TEXT,
		year TEXT,
		month TEXT,
		day TEXT,
		volume TEXT,
		issue TEXT,
		pages TEXT,
		added INTEGER NOT NULL DEFAULT 0,
		last_update INTEGER NOT NULL DEFAULT 0,
		favourite INTEGER NOT NULL DEFAULT 0,
		is_read INTEGER NOT NULL DEFAULT 0,
		confirmed INTEGER NOT NULL DEFAULT 0,
		deletion_pending INTEGER NOT NULL DEFAULT 0,
		extra_json TEXT
	);

	CREATE INDEX idx_documents_doi ON documents(doi) WHERE doi IS NOT NULL AND doi != '';

	CREATE TABLE document_authors (
		doc_id INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (doc_id, ordinal)
	);

	CREATE TABLE document_tags (
		doc_id INTEGER NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (doc_id, tag)
	);

	CREATE TABLE document_keywords (
		doc_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (doc_id, text)
	);

	CREATE TABLE document_urls (
		doc_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (doc_id, url)
	);

	CREATE TABLE document_files (
		doc_id INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		rel_path TEXT NOT NULL,
		PRIMARY KEY (doc_id, ordinal)
	);

	CREATE TABLE document_notes (
		doc_id INTEGER PRIMARY KEY,
		note TEXT NOT NULL,
		created_time INTEGER NOT NULL,
		modified_time INTEGER NOT NULL
	);

	CREATE TABLE folders (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		UNIQUE (name, parent_id)
	);

	CREATE TABLE document_folders (
		doc_id INTEGER NOT NULL,
		folder_id INTEGER NOT NULL,
		PRIMARY KEY (doc_id, folder_id)
	);

	CREATE INDEX idx_document_folders_folder ON document_folders(folder_id);

	-- Full-text search (standalone, not external content)
	CREATE VIRTUAL TABLE documents_fts USING fts5(
		doc_id UNINDEXED,
		title,
		abstract,
		authors,
		keywords,
		tags,
		notes,
		publication
	);
`

// docColumns is the column list of the documents table, in scan order.
const docColumns = `id, type, title, abstract, publication, publisher, city, country,
	edition, institution, series, chapter, citationkey, doi, isbn, issn,
	arxiv_id, pmid, language, year, month, day, volume, issue, pages,
	added, last_update, favourite, is_read, confirmed, deletion_pending, extra_json`
