package store

import (
	"database/sql"
	"time"

	"github.com/beadloom/beadloom/internal/model"
)

// UpsertDoc inserts or replaces a doc row.
func UpsertDoc(tx *sql.Tx, d model.Doc) error {
	_, err := tx.Exec(
		`INSERT INTO docs(path, ref_id, hash, title, last_modified) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET ref_id=excluded.ref_id, hash=excluded.hash,
			title=excluded.title, last_modified=excluded.last_modified`,
		d.Path, d.RefID, d.Hash, d.Title, d.LastModified,
	)
	return err
}

// DeleteDoc removes a doc; cascades to its chunks.
func DeleteDoc(tx *sql.Tx, path string) error {
	_, err := tx.Exec("DELETE FROM docs WHERE path = ?", path)
	return err
}

func scanDoc(row interface{ Scan(...any) error }) (model.Doc, error) {
	var d model.Doc
	var lm sql.NullTime
	if err := row.Scan(&d.Path, &d.RefID, &d.Hash, &d.Title, &lm); err != nil {
		return d, err
	}
	if lm.Valid {
		d.LastModified = lm.Time
	}
	return d, nil
}

// GetDoc returns a doc by path.
func (c *Conn) GetDoc(path string) (model.Doc, bool, error) {
	row := c.db.QueryRow("SELECT path, ref_id, hash, title, last_modified FROM docs WHERE path = ?", path)
	d, err := scanDoc(row)
	if err == sql.ErrNoRows {
		return model.Doc{}, false, nil
	}
	if err != nil {
		return model.Doc{}, false, err
	}
	return d, true, nil
}

// DocsByRefID returns docs linked to a node, used by the Sync Engine and
// Context Assembler.
func (c *Conn) DocsByRefID(refID string) ([]model.Doc, error) {
	rows, err := c.db.Query("SELECT path, ref_id, hash, title, last_modified FROM docs WHERE ref_id = ? ORDER BY path", refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Doc
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AllDocs returns every tracked doc.
func (c *Conn) AllDocs() ([]model.Doc, error) {
	rows, err := c.db.Query("SELECT path, ref_id, hash, title, last_modified FROM docs ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Doc
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReplaceChunks deletes all chunks for docPath and inserts the new set
// wholesale.
func ReplaceChunks(tx *sql.Tx, docPath string, chunks []model.Chunk) error {
	if _, err := tx.Exec("DELETE FROM chunks WHERE doc_path = ?", docPath); err != nil {
		return err
	}
	for _, ch := range chunks {
		if _, err := tx.Exec(
			`INSERT INTO chunks(doc_path, chunk_index, heading_path, text, token_estimate)
			 VALUES (?, ?, ?, ?, ?)`,
			ch.DocPath, ch.ChunkIndex, ch.HeadingPath, ch.Text, ch.TokenEstimate,
		); err != nil {
			return err
		}
	}
	return nil
}

// ChunksForDoc returns all chunks of a doc, ordered by chunk_index.
func (c *Conn) ChunksForDoc(docPath string) ([]model.Chunk, error) {
	rows, err := c.db.Query(
		"SELECT doc_path, chunk_index, heading_path, text, token_estimate FROM chunks WHERE doc_path = ? ORDER BY chunk_index",
		docPath,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Chunk
	for rows.Next() {
		var ch model.Chunk
		if err := rows.Scan(&ch.DocPath, &ch.ChunkIndex, &ch.HeadingPath, &ch.Text, &ch.TokenEstimate); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ChunksForDocs returns chunks for multiple doc paths, used by the Context
// Assembler.
func (c *Conn) ChunksForDocs(docPaths []string) ([]model.Chunk, error) {
	var out []model.Chunk
	for _, p := range docPaths {
		chunks, err := c.ChunksForDoc(p)
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// Now is the timestamp source for callers building store rows.
func Now() time.Time { return time.Now() }
