package store

import (
	"database/sql"

	"github.com/beadloom/beadloom/internal/model"
)

// UpsertEdge inserts an edge, ignoring duplicates (at most one edge per
// triple).
func UpsertEdge(tx *sql.Tx, e model.Edge) error {
	_, err := tx.Exec(
		`INSERT INTO edges(src_ref_id, dst_ref_id, kind) VALUES (?, ?, ?)
		 ON CONFLICT(src_ref_id, dst_ref_id, kind) DO NOTHING`,
		e.SrcRefID, e.DstRefID, string(e.Kind),
	)
	return err
}

// AllEdges returns every edge in the graph.
func (c *Conn) AllEdges() ([]model.Edge, error) {
	rows, err := c.db.Query("SELECT src_ref_id, dst_ref_id, kind FROM edges ORDER BY src_ref_id, dst_ref_id, kind")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Edge
	for rows.Next() {
		var e model.Edge
		var kind string
		if err := rows.Scan(&e.SrcRefID, &e.DstRefID, &kind); err != nil {
			return nil, err
		}
		e.Kind = model.EdgeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgesFrom returns outgoing edges from refID, optionally filtered by kind
// (empty kind means any).
func (c *Conn) EdgesFrom(refID string, kind model.EdgeKind) ([]model.Edge, error) {
	return c.edgesWhere("src_ref_id", refID, kind)
}

// EdgesTo returns incoming edges into refID, optionally filtered by kind.
func (c *Conn) EdgesTo(refID string, kind model.EdgeKind) ([]model.Edge, error) {
	return c.edgesWhere("dst_ref_id", refID, kind)
}

func (c *Conn) edgesWhere(col, refID string, kind model.EdgeKind) ([]model.Edge, error) {
	query := "SELECT src_ref_id, dst_ref_id, kind FROM edges WHERE " + col + " = ?"
	args := []any{refID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Edge
	for rows.Next() {
		var e model.Edge
		var k string
		if err := rows.Scan(&e.SrcRefID, &e.DstRefID, &k); err != nil {
			return nil, err
		}
		e.Kind = model.EdgeKind(k)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgeExists reports whether any edge of the given kinds connects src->dst.
// An empty kinds slice matches any kind.
func (c *Conn) EdgeExists(src, dst string, kinds []model.EdgeKind) (bool, error) {
	query := "SELECT COUNT(*) FROM edges WHERE src_ref_id = ? AND dst_ref_id = ?"
	args := []any{src, dst}
	if len(kinds) > 0 {
		query += " AND kind IN ("
		for i, k := range kinds {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, string(k))
		}
		query += ")"
	}
	var count int
	if err := c.db.QueryRow(query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
