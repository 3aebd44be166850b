package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/beadloom/beadloom/internal/model"
)

// TakeGraphSnapshot captures the current nodes/edges into graph_snapshots
// under a fresh id, for later diffing.
func (c *Conn) TakeGraphSnapshot(label string, at time.Time) (string, error) {
	nodes, err := c.AllNodes()
	if err != nil {
		return "", err
	}
	edges, err := c.AllEdges()
	if err != nil {
		return "", err
	}
	var symCount int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM code_symbols").Scan(&symCount); err != nil {
		return "", err
	}
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return "", err
	}
	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	err = c.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO graph_snapshots(id, label, created_at, nodes_json, edges_json, symbols_count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, label, at, string(nodesJSON), string(edgesJSON), symCount,
		)
		return err
	})
	return id, err
}

// GraphSnapshotByID loads a previously taken snapshot.
func (c *Conn) GraphSnapshotByID(id string) (model.GraphSnapshot, bool, error) {
	var s model.GraphSnapshot
	var createdAt sql.NullTime
	err := c.db.QueryRow(
		"SELECT id, label, created_at, nodes_json, edges_json, symbols_count FROM graph_snapshots WHERE id = ?", id,
	).Scan(&s.ID, &s.Label, &createdAt, &s.NodesJSON, &s.EdgesJSON, &s.SymbolsCount)
	if err == sql.ErrNoRows {
		return model.GraphSnapshot{}, false, nil
	}
	if err != nil {
		return model.GraphSnapshot{}, false, err
	}
	if createdAt.Valid {
		s.CreatedAt = createdAt.Time
	}
	return s, true, nil
}

// ChangedNode is one node whose summary differs between a snapshot and the
// current graph.
type ChangedNode struct {
	RefID      string `json:"ref_id"`
	OldSummary string `json:"old_summary"`
	NewSummary string `json:"new_summary"`
}

// SnapshotDiff is the snapshot compare output.
type SnapshotDiff struct {
	SinceRef     string        `json:"since_ref"`
	AddedNodes   []string      `json:"added_nodes"`
	RemovedNodes []string      `json:"removed_nodes"`
	ChangedNodes []ChangedNode `json:"changed_nodes"`
	AddedEdges   []model.Edge  `json:"added_edges"`
	RemovedEdges []model.Edge  `json:"removed_edges"`
}

// CompareSnapshot diffs the current graph against a previously taken
// snapshot identified by id.
func (c *Conn) CompareSnapshot(id string) (*SnapshotDiff, error) {
	snap, ok, err := c.GraphSnapshotByID(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("store: no such snapshot: %s", id)
	}

	var oldNodes []model.Node
	if err := json.Unmarshal([]byte(snap.NodesJSON), &oldNodes); err != nil {
		return nil, fmt.Errorf("store: decode snapshot nodes: %w", err)
	}
	var oldEdges []model.Edge
	if err := json.Unmarshal([]byte(snap.EdgesJSON), &oldEdges); err != nil {
		return nil, fmt.Errorf("store: decode snapshot edges: %w", err)
	}

	curNodes, err := c.AllNodes()
	if err != nil {
		return nil, err
	}
	curEdges, err := c.AllEdges()
	if err != nil {
		return nil, err
	}

	diff := &SnapshotDiff{SinceRef: id}

	oldByID := make(map[string]model.Node, len(oldNodes))
	for _, n := range oldNodes {
		oldByID[n.RefID] = n
	}
	curByID := make(map[string]model.Node, len(curNodes))
	for _, n := range curNodes {
		curByID[n.RefID] = n
		old, existed := oldByID[n.RefID]
		if !existed {
			diff.AddedNodes = append(diff.AddedNodes, n.RefID)
			continue
		}
		if old.Summary != n.Summary {
			diff.ChangedNodes = append(diff.ChangedNodes, ChangedNode{
				RefID: n.RefID, OldSummary: old.Summary, NewSummary: n.Summary,
			})
		}
	}
	for _, n := range oldNodes {
		if _, exists := curByID[n.RefID]; !exists {
			diff.RemovedNodes = append(diff.RemovedNodes, n.RefID)
		}
	}
	sort.Strings(diff.AddedNodes)
	sort.Strings(diff.RemovedNodes)
	sort.Slice(diff.ChangedNodes, func(i, j int) bool { return diff.ChangedNodes[i].RefID < diff.ChangedNodes[j].RefID })

	oldEdgeSet := make(map[model.Edge]bool, len(oldEdges))
	for _, e := range oldEdges {
		oldEdgeSet[e] = true
	}
	curEdgeSet := make(map[model.Edge]bool, len(curEdges))
	for _, e := range curEdges {
		curEdgeSet[e] = true
		if !oldEdgeSet[e] {
			diff.AddedEdges = append(diff.AddedEdges, e)
		}
	}
	for _, e := range oldEdges {
		if !curEdgeSet[e] {
			diff.RemovedEdges = append(diff.RemovedEdges, e)
		}
	}
	sortEdges(diff.AddedEdges)
	sortEdges(diff.RemovedEdges)
	return diff, nil
}

func sortEdges(edges []model.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SrcRefID != edges[j].SrcRefID {
			return edges[i].SrcRefID < edges[j].SrcRefID
		}
		if edges[i].DstRefID != edges[j].DstRefID {
			return edges[i].DstRefID < edges[j].DstRefID
		}
		return edges[i].Kind < edges[j].Kind
	})
}

// RecordHealthSnapshot writes a row to health_snapshots.
func (c *Conn) RecordHealthSnapshot(h model.HealthSnapshot) error {
	return c.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO health_snapshots(taken_at, nodes_count, edges_count, docs_count,
				coverage_pct, stale_count, isolated_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(taken_at) DO UPDATE SET nodes_count=excluded.nodes_count,
				edges_count=excluded.edges_count, docs_count=excluded.docs_count,
				coverage_pct=excluded.coverage_pct, stale_count=excluded.stale_count,
				isolated_count=excluded.isolated_count`,
			h.TakenAt, h.NodesCount, h.EdgesCount, h.DocsCount, h.CoveragePct, h.StaleCount, h.IsolatedCount,
		)
		return err
	})
}

// RecentHealth returns the n most recent health snapshots, newest first.
func (c *Conn) RecentHealth(n int) ([]model.HealthSnapshot, error) {
	rows, err := c.db.Query(
		`SELECT taken_at, nodes_count, edges_count, docs_count, coverage_pct, stale_count, isolated_count
		 FROM health_snapshots ORDER BY taken_at DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.HealthSnapshot
	for rows.Next() {
		var h model.HealthSnapshot
		if err := rows.Scan(&h.TakenAt, &h.NodesCount, &h.EdgesCount, &h.DocsCount,
			&h.CoveragePct, &h.StaleCount, &h.IsolatedCount); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
