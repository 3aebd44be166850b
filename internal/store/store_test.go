package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beadloom/beadloom/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestStore(t *testing.T) *Conn {
	t.Helper()
	root := t.TempDir()
	conn, err := Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, conn.Close()) })
	return conn
}

func TestOpenCreatesSchema(t *testing.T) {
	conn := openTestStore(t)
	require.True(t, tableExists(conn.DB(), "nodes"))
	require.True(t, tableExists(conn.DB(), "edges"))
	require.True(t, tableExists(conn.DB(), "file_index"))

	v, ok, err := conn.GetMeta("schema_version")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, CurrentSchemaVersion, v)
}

func TestNodeRoundTrip(t *testing.T) {
	conn := openTestStore(t)
	n := model.Node{
		RefID:   "billing",
		Kind:    model.KindDomain,
		Summary: "Billing domain",
		Source:  "src/billing/",
		Extra:   model.Extra{Tags: []string{"core"}},
	}
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return UpsertNode(tx, n)
	}))

	got, ok, err := conn.GetNode("billing")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, n.Kind, got.Kind)
	require.Equal(t, n.Source, got.Source)
	require.Equal(t, []string{"core"}, got.Extra.Tags)
}

func TestDeleteNodeCascadesEdgesAndSync(t *testing.T) {
	conn := openTestStore(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := UpsertNode(tx, model.Node{RefID: "a", Kind: model.KindDomain}); err != nil {
			return err
		}
		if err := UpsertNode(tx, model.Node{RefID: "b", Kind: model.KindFeature}); err != nil {
			return err
		}
		if err := UpsertEdge(tx, model.Edge{SrcRefID: "b", DstRefID: "a", Kind: model.EdgePartOf}); err != nil {
			return err
		}
		return UpsertSyncState(tx, model.SyncState{RefID: "a", DocPath: "docs/a.md", CodePath: "src/a", Status: model.SyncOK})
	}))

	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return DeleteNode(tx, "a")
	}))

	edges, err := conn.AllEdges()
	require.NoError(t, err)
	require.Empty(t, edges)

	_, ok, err := conn.GetNode("a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDropVolatileTablesKeepsPersistent(t *testing.T) {
	conn := openTestStore(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := UpsertNode(tx, model.Node{RefID: "a", Kind: model.KindDomain}); err != nil {
			return err
		}
		return SetMeta(tx, "project_name", "demo")
	}))

	require.NoError(t, conn.DropVolatileTables())

	_, ok, err := conn.GetNode("a")
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := conn.GetMeta("project_name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "demo", v)
}

func TestFTSIndexesEveryChunkOfADoc(t *testing.T) {
	conn := openTestStore(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := IndexNodeFTS(tx, "billing", "billing handles invoices and payments"); err != nil {
			return err
		}
		return ReplaceDocFTS(tx, "billing", "docs/billing.md", []string{
			"this chunk covers refunds",
			"this chunk covers invoices",
		})
	}))

	hits, err := conn.SearchFTS("invoices", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "node summary and the second chunk both match")

	hits, err = conn.SearchFTS("refunds", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1, "the first chunk must survive indexing of the second")

	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return ReplaceDocFTS(tx, "billing", "docs/billing.md", []string{"only payments now"})
	}))
	hits, err = conn.SearchFTS("refunds", 10)
	require.NoError(t, err)
	require.Empty(t, hits, "replaced chunks drop out of the index")
}

func TestCompareSnapshotReportsGraphDrift(t *testing.T) {
	conn := openTestStore(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := UpsertNode(tx, model.Node{RefID: "a", Kind: model.KindDomain, Summary: "one"}); err != nil {
			return err
		}
		if err := UpsertNode(tx, model.Node{RefID: "b", Kind: model.KindFeature}); err != nil {
			return err
		}
		return UpsertEdge(tx, model.Edge{SrcRefID: "b", DstRefID: "a", Kind: model.EdgePartOf})
	}))

	id, err := conn.TakeGraphSnapshot("before", time.Now())
	require.NoError(t, err)

	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := UpsertNode(tx, model.Node{RefID: "a", Kind: model.KindDomain, Summary: "two"}); err != nil {
			return err
		}
		if err := DeleteNode(tx, "b"); err != nil {
			return err
		}
		if err := UpsertNode(tx, model.Node{RefID: "c", Kind: model.KindService}); err != nil {
			return err
		}
		return UpsertEdge(tx, model.Edge{SrcRefID: "c", DstRefID: "a", Kind: model.EdgeUses})
	}))

	diff, err := conn.CompareSnapshot(id)
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, diff.AddedNodes)
	require.Equal(t, []string{"b"}, diff.RemovedNodes)
	require.Len(t, diff.ChangedNodes, 1)
	require.Equal(t, "one", diff.ChangedNodes[0].OldSummary)
	require.Equal(t, "two", diff.ChangedNodes[0].NewSummary)
	require.Equal(t, []model.Edge{{SrcRefID: "c", DstRefID: "a", Kind: model.EdgeUses}}, diff.AddedEdges)
	require.Equal(t, []model.Edge{{SrcRefID: "b", DstRefID: "a", Kind: model.EdgePartOf}}, diff.RemovedEdges)
}

func TestBundleCacheRoundTrip(t *testing.T) {
	conn := openTestStore(t)
	row := BundleCacheRow{
		CacheKey:   "key1",
		BundleJSON: `{"version":2}`,
		ETag:       "abc",
		GraphMtime: 100,
		DocsMtime:  200,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, conn.PutBundleCache(row))

	got, ok, err := conn.GetBundleCache("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, row.ETag, got.ETag)

	require.NoError(t, conn.InvalidateAllBundleCache())
	_, ok, err = conn.GetBundleCache("key1")
	require.NoError(t, err)
	require.False(t, ok)
}
