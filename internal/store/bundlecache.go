package store

import (
	"database/sql"
	"time"
)

// BundleCacheRow is one row of the L2 persistent cache.
type BundleCacheRow struct {
	CacheKey   string
	BundleJSON string
	ETag       string
	GraphMtime int64
	DocsMtime  int64
	CreatedAt  time.Time
}

// GetBundleCache looks up an L2 entry by key.
func (c *Conn) GetBundleCache(key string) (BundleCacheRow, bool, error) {
	var r BundleCacheRow
	var createdAt sql.NullTime
	err := c.db.QueryRow(
		"SELECT cache_key, bundle_json, etag, graph_mtime, docs_mtime, created_at FROM bundle_cache WHERE cache_key = ?",
		key,
	).Scan(&r.CacheKey, &r.BundleJSON, &r.ETag, &r.GraphMtime, &r.DocsMtime, &createdAt)
	if err == sql.ErrNoRows {
		return BundleCacheRow{}, false, nil
	}
	if err != nil {
		return BundleCacheRow{}, false, err
	}
	if createdAt.Valid {
		r.CreatedAt = createdAt.Time
	}
	return r, true, nil
}

// PutBundleCache writes (or replaces) an L2 entry.
func (c *Conn) PutBundleCache(r BundleCacheRow) error {
	return c.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO bundle_cache(cache_key, bundle_json, etag, graph_mtime, docs_mtime, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(cache_key) DO UPDATE SET bundle_json=excluded.bundle_json,
				etag=excluded.etag, graph_mtime=excluded.graph_mtime, docs_mtime=excluded.docs_mtime,
				created_at=excluded.created_at`,
			r.CacheKey, r.BundleJSON, r.ETag, r.GraphMtime, r.DocsMtime, r.CreatedAt,
		)
		return err
	})
}

// InvalidateAllBundleCache deletes every L2 row.
func (c *Conn) InvalidateAllBundleCache() error {
	return c.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM bundle_cache")
		return err
	})
}
