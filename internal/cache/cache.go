// Package cache implements the two-tier bundle cache: an
// in-process L1 map backed by the Persistent Store's bundle_cache table
// (L2), keyed by (ref_ids-tuple, depth, max_nodes, max_chunks) and
// invalidated by mtime drift in the graph directory or docs tree.
// InvalidateAll drops both tiers on demand, and a full reindex deletes every
// L2 row; other writes to the store do not invalidate entries by themselves.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/beadloom/beadloom/internal/config"
	"github.com/beadloom/beadloom/internal/context"
	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/store"
)

// Result is what Get returns: the bundle plus a cache-hit envelope.
type Result struct {
	Bundle         *context.Bundle `json:"-"`
	Cached         bool            `json:"cached"`
	ETag           string          `json:"etag"`
	UnchangedSince time.Time       `json:"unchanged_since"`
}

type l1Entry struct {
	bundleJSON string
	etag       string
	graphMtime int64
	docsMtime  int64
	builtAt    time.Time
}

// Cache wraps a Context Assembler with an L1 in-process map and the
// store's L2 bundle_cache table.
type Cache struct {
	mu          sync.Mutex
	l1          map[string]l1Entry
	conn        *store.Conn
	assembler   *context.Assembler
	projectRoot string
	docsDir     string
}

// New returns a Cache bound to conn, assembling bundles via assembler and
// watching projectRoot's graph dir and docsDir (relative to projectRoot)
// for mtime drift.
func New(conn *store.Conn, assembler *context.Assembler, projectRoot, docsDir string) *Cache {
	return &Cache{
		l1:          make(map[string]l1Entry),
		conn:        conn,
		assembler:   assembler,
		projectRoot: projectRoot,
		docsDir:     docsDir,
	}
}

// Get returns a cached or freshly-assembled bundle for refIDs/opts.
func (c *Cache) Get(refIDs []string, opts context.Options) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryCache, "Get")
	defer timer.Stop()

	opts = opts.Normalized()
	key := cacheKey(refIDs, opts)
	graphMtime, err := latestMtime(c.graphDir())
	if err != nil {
		return nil, err
	}
	docsMtime, err := latestMtime(c.docsPath())
	if err != nil {
		return nil, err
	}

	if r := c.lookupL1(key, graphMtime, docsMtime); r != nil {
		return r, nil
	}

	row, ok, err := c.conn.GetBundleCache(key)
	if err != nil {
		return nil, err
	}
	if ok && row.GraphMtime == graphMtime && row.DocsMtime == docsMtime {
		bundle, err := decodeBundle(row.BundleJSON)
		if err != nil {
			return nil, err
		}
		c.storeL1(key, l1Entry{
			bundleJSON: row.BundleJSON, etag: row.ETag,
			graphMtime: row.GraphMtime, docsMtime: row.DocsMtime, builtAt: row.CreatedAt,
		})
		return &Result{Bundle: bundle, Cached: true, ETag: row.ETag, UnchangedSince: row.CreatedAt}, nil
	}

	bundle, err := c.assembler.Assemble(refIDs, opts)
	if err != nil {
		return nil, err
	}
	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		return nil, err
	}
	etag := etagOf(bundleJSON)
	builtAt := store.Now()

	if err := c.conn.PutBundleCache(store.BundleCacheRow{
		CacheKey: key, BundleJSON: string(bundleJSON), ETag: etag,
		GraphMtime: graphMtime, DocsMtime: docsMtime, CreatedAt: builtAt,
	}); err != nil {
		return nil, err
	}
	c.storeL1(key, l1Entry{
		bundleJSON: string(bundleJSON), etag: etag,
		graphMtime: graphMtime, docsMtime: docsMtime, builtAt: builtAt,
	})
	return &Result{Bundle: bundle, Cached: false, ETag: etag, UnchangedSince: builtAt}, nil
}

// InvalidateAll drops every L1 entry and every L2 row.
func (c *Cache) InvalidateAll() error {
	c.mu.Lock()
	c.l1 = make(map[string]l1Entry)
	c.mu.Unlock()
	return c.conn.InvalidateAllBundleCache()
}

func (c *Cache) lookupL1(key string, graphMtime, docsMtime int64) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.l1[key]
	if !ok || e.graphMtime != graphMtime || e.docsMtime != docsMtime {
		return nil
	}
	bundle, err := decodeBundle(e.bundleJSON)
	if err != nil {
		return nil
	}
	return &Result{Bundle: bundle, Cached: true, ETag: e.etag, UnchangedSince: e.builtAt}
}

func (c *Cache) storeL1(key string, e l1Entry) {
	c.mu.Lock()
	c.l1[key] = e
	c.mu.Unlock()
}

func (c *Cache) graphDir() string {
	return config.GraphDir(c.projectRoot)
}

func (c *Cache) docsPath() string {
	if c.docsDir == "" {
		return filepath.Join(c.projectRoot, "docs")
	}
	return filepath.Join(c.projectRoot, c.docsDir)
}

// cacheKey builds the (ref_ids-tuple, depth, max_nodes, max_chunks) key
//, sorting ref_ids so the order callers request them in
// does not change the key.
func cacheKey(refIDs []string, opts context.Options) string {
	sorted := append([]string(nil), refIDs...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%d|%d|%d", strings.Join(sorted, ","), opts.Depth, opts.MaxNodes, opts.MaxChunks)
}

func etagOf(bundleJSON []byte) string {
	sum := sha256.Sum256(bundleJSON)
	return hex.EncodeToString(sum[:])
}

func decodeBundle(bundleJSON string) (*context.Bundle, error) {
	var b context.Bundle
	if err := json.Unmarshal([]byte(bundleJSON), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// latestMtime returns the newest modification time (unix nanoseconds) among
// every regular file under dir, or 0 if dir does not exist.
func latestMtime(dir string) (int64, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var latest int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if n := info.ModTime().UnixNano(); n > latest {
			latest = n
		}
		return nil
	})
	return latest, err
}
