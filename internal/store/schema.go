package store

import (
	"database/sql"
	"fmt"

	"github.com/beadloom/beadloom/internal/logging"
)

// schemaStatements creates every table additively (CREATE TABLE IF NOT
// EXISTS), so reopening an older database picks up new tables transparently
// without bumping CurrentSchemaVersion.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		ref_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		extra_json TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		src_ref_id TEXT NOT NULL,
		dst_ref_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		PRIMARY KEY (src_ref_id, dst_ref_id, kind),
		FOREIGN KEY (src_ref_id) REFERENCES nodes(ref_id) ON DELETE CASCADE,
		FOREIGN KEY (dst_ref_id) REFERENCES nodes(ref_id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src_ref_id)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst_ref_id)`,
	`CREATE TABLE IF NOT EXISTS docs (
		path TEXT PRIMARY KEY,
		ref_id TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		last_modified DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_docs_ref ON docs(ref_id)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		doc_path TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		heading_path TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		token_estimate INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (doc_path, chunk_index),
		FOREIGN KEY (doc_path) REFERENCES docs(path) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS code_symbols (
		file_path TEXT NOT NULL,
		symbol_name TEXT NOT NULL,
		line_start INTEGER NOT NULL,
		line_end INTEGER NOT NULL,
		kind TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		annotations_json TEXT NOT NULL DEFAULT '{}',
		route_method TEXT NOT NULL DEFAULT '',
		route_path TEXT NOT NULL DEFAULT '',
		route_handler TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (file_path, symbol_name, line_start)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_file ON code_symbols(file_path)`,
	`CREATE TABLE IF NOT EXISTS code_imports (
		file_path TEXT NOT NULL,
		line_number INTEGER NOT NULL,
		import_path TEXT NOT NULL,
		resolved_ref_id TEXT NOT NULL DEFAULT '',
		file_hash TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (file_path, line_number, import_path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_imports_file ON code_imports(file_path)`,
	`CREATE INDEX IF NOT EXISTS idx_imports_resolved ON code_imports(resolved_ref_id)`,
	`CREATE TABLE IF NOT EXISTS file_index (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		kind TEXT NOT NULL,
		indexed_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS sync_state (
		ref_id TEXT NOT NULL,
		doc_path TEXT NOT NULL,
		code_path TEXT NOT NULL,
		status TEXT NOT NULL,
		code_hash_at_sync TEXT NOT NULL DEFAULT '',
		doc_hash_at_sync TEXT NOT NULL DEFAULT '',
		synced_at DATETIME,
		reason TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (ref_id, doc_path, code_path)
	)`,
	`CREATE TABLE IF NOT EXISTS rules (
		name TEXT PRIMARY KEY,
		rule_type TEXT NOT NULL,
		rule_json TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS graph_snapshots (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		created_at DATETIME,
		nodes_json TEXT NOT NULL,
		edges_json TEXT NOT NULL,
		symbols_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS health_snapshots (
		taken_at DATETIME PRIMARY KEY,
		nodes_count INTEGER NOT NULL DEFAULT 0,
		edges_count INTEGER NOT NULL DEFAULT 0,
		docs_count INTEGER NOT NULL DEFAULT 0,
		coverage_pct REAL NOT NULL DEFAULT 0,
		stale_count INTEGER NOT NULL DEFAULT 0,
		isolated_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS bundle_cache (
		cache_key TEXT PRIMARY KEY,
		bundle_json TEXT NOT NULL,
		etag TEXT NOT NULL,
		graph_mtime INTEGER NOT NULL,
		docs_mtime INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS search_fts USING fts5(
		ref_id UNINDEXED,
		doc_path UNINDEXED,
		content,
		tokenize = 'porter unicode61'
	)`,
}

// migrate applies the additive schema and records the current schema
// version in meta. Breaking changes (none yet) would bump
// CurrentSchemaVersion and force callers through a full reindex.
func (c *Conn) migrate() error {
	return c.WithTx(func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("apply schema statement: %w\n%s", err, stmt)
			}
		}
		if _, err := tx.Exec(
			`INSERT INTO meta(key, value) VALUES ('schema_version', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			CurrentSchemaVersion,
		); err != nil {
			return fmt.Errorf("record schema_version: %w", err)
		}
		logging.StoreDebug("schema migration complete (v%s)", CurrentSchemaVersion)
		return nil
	})
}

// tableExists reports whether t exists in the database, a probing helper
// kept for future additive migrations.
func tableExists(db *sql.DB, t string) bool {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", t,
	).Scan(&count)
	return err == nil && count > 0
}
