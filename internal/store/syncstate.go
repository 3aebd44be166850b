package store

import (
	"database/sql"

	"github.com/beadloom/beadloom/internal/model"
)

// UpsertSyncState writes one (ref_id, doc_path, code_path) sync row.
func UpsertSyncState(tx *sql.Tx, s model.SyncState) error {
	_, err := tx.Exec(
		`INSERT INTO sync_state(ref_id, doc_path, code_path, status, code_hash_at_sync,
			doc_hash_at_sync, synced_at, reason, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ref_id, doc_path, code_path) DO UPDATE SET
			status=excluded.status, code_hash_at_sync=excluded.code_hash_at_sync,
			doc_hash_at_sync=excluded.doc_hash_at_sync, synced_at=excluded.synced_at,
			reason=excluded.reason, details=excluded.details`,
		s.RefID, s.DocPath, s.CodePath, string(s.Status), s.CodeHashAtSync,
		s.DocHashAtSync, s.SyncedAt, s.Reason, s.Details,
	)
	return err
}

// DeleteSyncStateForRef removes every sync_state row for refID, used when
// a node is deleted.
func DeleteSyncStateForRef(tx *sql.Tx, refID string) error {
	_, err := tx.Exec("DELETE FROM sync_state WHERE ref_id = ?", refID)
	return err
}

// DeleteSyncStateForDoc removes every sync_state row pairing a doc that no
// longer exists on disk.
func DeleteSyncStateForDoc(tx *sql.Tx, docPath string) error {
	_, err := tx.Exec("DELETE FROM sync_state WHERE doc_path = ?", docPath)
	return err
}

// DeleteSyncStateForCode removes every sync_state row pairing a code file
// that no longer exists on disk.
func DeleteSyncStateForCode(tx *sql.Tx, codePath string) error {
	_, err := tx.Exec("DELETE FROM sync_state WHERE code_path = ?", codePath)
	return err
}

// DeleteSyncStateOrphans removes sync_state rows whose ref_id no longer
// names a node, used after a graph reload.
func DeleteSyncStateOrphans(tx *sql.Tx) error {
	_, err := tx.Exec("DELETE FROM sync_state WHERE ref_id NOT IN (SELECT ref_id FROM nodes)")
	return err
}

func scanSyncState(row interface{ Scan(...any) error }) (model.SyncState, error) {
	var s model.SyncState
	var status string
	var syncedAt sql.NullTime
	if err := row.Scan(&s.RefID, &s.DocPath, &s.CodePath, &status, &s.CodeHashAtSync,
		&s.DocHashAtSync, &syncedAt, &s.Reason, &s.Details); err != nil {
		return s, err
	}
	s.Status = model.SyncStatus(status)
	if syncedAt.Valid {
		s.SyncedAt = syncedAt.Time
	}
	return s, nil
}

const syncCols = `ref_id, doc_path, code_path, status, code_hash_at_sync, doc_hash_at_sync, synced_at, reason, details`

// SyncStateForRef returns every sync row for a node.
func (c *Conn) SyncStateForRef(refID string) ([]model.SyncState, error) {
	rows, err := c.db.Query("SELECT "+syncCols+" FROM sync_state WHERE ref_id = ? ORDER BY doc_path, code_path", refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SyncState
	for rows.Next() {
		s, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllSyncState returns every sync_state row.
func (c *Conn) AllSyncState() ([]model.SyncState, error) {
	rows, err := c.db.Query("SELECT " + syncCols + " FROM sync_state ORDER BY ref_id, doc_path, code_path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SyncState
	for rows.Next() {
		s, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
