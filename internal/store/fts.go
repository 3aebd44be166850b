package store

import "database/sql"

// IndexNodeFTS (re)writes the FTS row for a node's summary, removing any
// prior row for the same ref_id first (FTS5 has no natural upsert).
func IndexNodeFTS(tx *sql.Tx, refID, summary string) error {
	if _, err := tx.Exec("DELETE FROM search_fts WHERE ref_id = ? AND doc_path = ''", refID); err != nil {
		return err
	}
	if summary == "" {
		return nil
	}
	_, err := tx.Exec(
		"INSERT INTO search_fts(ref_id, doc_path, content) VALUES (?, '', ?)",
		refID, summary,
	)
	return err
}

// ClearNodeFTS removes every node-summary FTS row, used when the graph is
// reloaded wholesale.
func ClearNodeFTS(tx *sql.Tx) error {
	_, err := tx.Exec("DELETE FROM search_fts WHERE doc_path = ''")
	return err
}

// ReplaceDocFTS removes every FTS row for docPath and inserts one row per
// chunk text, keeping the FTS index in step with the chunks table's
// regenerate-wholesale discipline.
func ReplaceDocFTS(tx *sql.Tx, refID, docPath string, texts []string) error {
	if _, err := tx.Exec("DELETE FROM search_fts WHERE doc_path = ?", docPath); err != nil {
		return err
	}
	for _, text := range texts {
		if text == "" {
			continue
		}
		if _, err := tx.Exec(
			"INSERT INTO search_fts(ref_id, doc_path, content) VALUES (?, ?, ?)",
			refID, docPath, text,
		); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDocFTS removes every FTS row for a doc no longer on disk.
func DeleteDocFTS(tx *sql.Tx, docPath string) error {
	_, err := tx.Exec("DELETE FROM search_fts WHERE doc_path = ?", docPath)
	return err
}

// SearchResult is one hit from SearchFTS.
type SearchResult struct {
	RefID   string
	DocPath string
	Snippet string
}

// SearchFTS runs a full-text query over node summaries and doc chunks.
func (c *Conn) SearchFTS(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.Query(
		`SELECT ref_id, doc_path, snippet(search_fts, 2, '[', ']', '...', 10)
		 FROM search_fts WHERE search_fts MATCH ? LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.RefID, &r.DocPath, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
