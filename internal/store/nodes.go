package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/beadloom/beadloom/internal/model"
)

// UpsertNode inserts or replaces a node inside an existing transaction.
func UpsertNode(tx *sql.Tx, n model.Node) error {
	extraJSON, err := json.Marshal(n.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra for %s: %w", n.RefID, err)
	}
	_, err = tx.Exec(
		`INSERT INTO nodes(ref_id, kind, summary, source, extra_json) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ref_id) DO UPDATE SET kind=excluded.kind, summary=excluded.summary,
			source=excluded.source, extra_json=excluded.extra_json`,
		n.RefID, string(n.Kind), n.Summary, n.Source, string(extraJSON),
	)
	return err
}

// DeleteNode removes a node; ON DELETE CASCADE removes dependent edges.
func DeleteNode(tx *sql.Tx, refID string) error {
	_, err := tx.Exec("DELETE FROM nodes WHERE ref_id = ?", refID)
	return err
}

func scanNode(rows interface{ Scan(...any) error }) (model.Node, error) {
	var n model.Node
	var kind, extraJSON string
	if err := rows.Scan(&n.RefID, &kind, &n.Summary, &n.Source, &extraJSON); err != nil {
		return n, err
	}
	n.Kind = model.NodeKind(kind)
	if extraJSON != "" {
		_ = json.Unmarshal([]byte(extraJSON), &n.Extra)
	}
	return n, nil
}

// GetNode returns a single node by ref_id, or (model.Node{}, false, nil) if absent.
func (c *Conn) GetNode(refID string) (model.Node, bool, error) {
	row := c.db.QueryRow(
		"SELECT ref_id, kind, summary, source, extra_json FROM nodes WHERE ref_id = ?", refID,
	)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return model.Node{}, false, nil
	}
	if err != nil {
		return model.Node{}, false, err
	}
	return n, true, nil
}

// AllNodes returns every node in the graph.
func (c *Conn) AllNodes() ([]model.Node, error) {
	rows, err := c.db.Query("SELECT ref_id, kind, summary, source, extra_json FROM nodes ORDER BY ref_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AllRefIDs returns every known ref_id, used for edit-distance suggestions.
func (c *Conn) AllRefIDs() ([]string, error) {
	rows, err := c.db.Query("SELECT ref_id FROM nodes ORDER BY ref_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// NodesBySourcePrefix returns nodes whose Source is a non-empty prefix of
// path (deepest match first), used by the Import Resolver's source-prefix
// strategy.
func (c *Conn) NodesBySourcePrefix(path string) ([]model.Node, error) {
	rows, err := c.db.Query(
		"SELECT ref_id, kind, summary, source, extra_json FROM nodes WHERE source != '' ORDER BY length(source) DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
