package cache

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	beadctx "github.com/beadloom/beadloom/internal/context"
	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setup(t *testing.T) (*Cache, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".beadloom", "_graph"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".beadloom", "_graph", "domains.yml"), []byte("nodes: []\n"), 0o644))

	conn, err := store.Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return store.UpsertNode(tx, model.Node{RefID: "billing", Kind: model.KindDomain, Summary: "billing"})
	}))

	a := beadctx.New(conn)
	return New(conn, a, root, "docs"), root
}

func TestCacheHitReturnsSameETag(t *testing.T) {
	c, _ := setup(t)
	opts := beadctx.DefaultOptions()

	r1, err := c.Get([]string{"billing"}, opts)
	require.NoError(t, err)
	assert.False(t, r1.Cached)

	r2, err := c.Get([]string{"billing"}, opts)
	require.NoError(t, err)
	assert.True(t, r2.Cached)
	assert.Equal(t, r1.ETag, r2.ETag)
}

func TestCacheInvalidatesOnGraphMtimeDrift(t *testing.T) {
	c, root := setup(t)
	opts := beadctx.DefaultOptions()

	r1, err := c.Get([]string{"billing"}, opts)
	require.NoError(t, err)
	assert.False(t, r1.Cached)

	graphFile := filepath.Join(root, ".beadloom", "_graph", "domains.yml")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(graphFile, future, future))

	r2, err := c.Get([]string{"billing"}, opts)
	require.NoError(t, err)
	assert.False(t, r2.Cached, "touching graph yaml mtime must invalidate even with unchanged content")
}

func TestCacheIgnoresUnrelatedFileTouches(t *testing.T) {
	c, root := setup(t)
	opts := beadctx.DefaultOptions()

	r1, err := c.Get([]string{"billing"}, opts)
	require.NoError(t, err)
	assert.False(t, r1.Cached)

	unrelated := filepath.Join(root, "scratch.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("noise"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(unrelated, future, future))

	r2, err := c.Get([]string{"billing"}, opts)
	require.NoError(t, err)
	assert.True(t, r2.Cached, "a file outside docs/ and the graph dir must not invalidate the cache")
}

func TestInvalidateAllClearsBothTiers(t *testing.T) {
	c, _ := setup(t)
	opts := beadctx.DefaultOptions()

	_, err := c.Get([]string{"billing"}, opts)
	require.NoError(t, err)

	require.NoError(t, c.InvalidateAll())

	r, err := c.Get([]string{"billing"}, opts)
	require.NoError(t, err)
	assert.False(t, r.Cached, "a fresh build is required after InvalidateAll")
}
