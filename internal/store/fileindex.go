package store

import (
	"database/sql"

	"github.com/beadloom/beadloom/internal/model"
)

// UpsertFileIndex records the current hash for a tracked file.
func UpsertFileIndex(tx *sql.Tx, e model.FileIndexEntry) error {
	_, err := tx.Exec(
		`INSERT INTO file_index(path, hash, kind, indexed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash=excluded.hash, kind=excluded.kind, indexed_at=excluded.indexed_at`,
		e.Path, e.Hash, string(e.Kind), e.IndexedAt,
	)
	return err
}

// DeleteFileIndex removes a file_index row (file was deleted on disk).
func DeleteFileIndex(tx *sql.Tx, path string) error {
	_, err := tx.Exec("DELETE FROM file_index WHERE path = ?", path)
	return err
}

// AllFileIndex returns the full file_index table, keyed by path.
func (c *Conn) AllFileIndex() (map[string]model.FileIndexEntry, error) {
	rows, err := c.db.Query("SELECT path, hash, kind, indexed_at FROM file_index")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]model.FileIndexEntry)
	for rows.Next() {
		var e model.FileIndexEntry
		var kind string
		var indexedAt sql.NullTime
		if err := rows.Scan(&e.Path, &e.Hash, &kind, &indexedAt); err != nil {
			return nil, err
		}
		e.Kind = model.FileKind(kind)
		if indexedAt.Valid {
			e.IndexedAt = indexedAt.Time
		}
		out[e.Path] = e
	}
	return out, rows.Err()
}

// FileIndexByKind returns file_index rows of a given kind.
func (c *Conn) FileIndexByKind(kind model.FileKind) ([]model.FileIndexEntry, error) {
	rows, err := c.db.Query("SELECT path, hash, kind, indexed_at FROM file_index WHERE kind = ? ORDER BY path", string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.FileIndexEntry
	for rows.Next() {
		var e model.FileIndexEntry
		var k string
		var indexedAt sql.NullTime
		if err := rows.Scan(&e.Path, &e.Hash, &k, &indexedAt); err != nil {
			return nil, err
		}
		e.Kind = model.FileKind(k)
		if indexedAt.Valid {
			e.IndexedAt = indexedAt.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
