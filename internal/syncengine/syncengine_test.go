package syncengine

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupConn(t *testing.T) *store.Conn {
	t.Helper()
	conn, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedNodeDocAndCode(t *testing.T, conn *store.Conn) {
	t.Helper()
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := store.UpsertNode(tx, model.Node{RefID: "billing", Kind: model.KindDomain, Source: "src/billing"}); err != nil {
			return err
		}
		if err := store.UpsertDoc(tx, model.Doc{Path: "docs/billing.md", RefID: "billing", Hash: "doc-v1"}); err != nil {
			return err
		}
		if err := store.ReplaceSymbolsForFile(tx, "src/billing/invoice.go", []model.CodeSymbol{
			{FilePath: "src/billing/invoice.go", SymbolName: "CreateInvoice", Kind: model.SymbolFunction},
		}); err != nil {
			return err
		}
		return store.UpsertFileIndex(tx, model.FileIndexEntry{Path: "src/billing/invoice.go", Hash: "code-v1", Kind: model.FileCode})
	}))
}

func TestEvaluateNodeSkipsNodeWithoutDocsOrCode(t *testing.T) {
	conn := setupConn(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return store.UpsertNode(tx, model.Node{RefID: "lonely", Kind: model.KindDomain})
	}))
	e := New(conn)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error { return e.EvaluateNode(tx, "lonely") }))
	rows, err := conn.SyncStateForRef("lonely")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEvaluateNodeInitializesBaselineOnFirstRun(t *testing.T) {
	conn := setupConn(t)
	seedNodeDocAndCode(t, conn)
	e := New(conn)

	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error { return e.EvaluateNode(tx, "billing") }))

	rows, err := conn.SyncStateForRef("billing")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SyncOK, rows[0].Status)
	assert.Equal(t, "code-v1", rows[0].CodeHashAtSync)
	assert.Equal(t, "doc-v1", rows[0].DocHashAtSync)
	assert.Contains(t, rows[0].Details, "CreateInvoice", "the baseline carries the symbol set for later drift detection")
}

func TestMarkSyncedThenEvaluateIsOK(t *testing.T) {
	conn := setupConn(t)
	seedNodeDocAndCode(t, conn)
	e := New(conn)

	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error { return e.MarkSynced(tx, "billing") }))
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error { return e.EvaluateNode(tx, "billing") }))

	rows, err := conn.SyncStateForRef("billing")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SyncOK, rows[0].Status)
}

func TestEvaluateNodeDetectsDocRewritten(t *testing.T) {
	conn := setupConn(t)
	seedNodeDocAndCode(t, conn)
	e := New(conn)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error { return e.MarkSynced(tx, "billing") }))

	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return store.UpsertDoc(tx, model.Doc{Path: "docs/billing.md", RefID: "billing", Hash: "doc-v2"})
	}))
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error { return e.EvaluateNode(tx, "billing") }))

	rows, err := conn.SyncStateForRef("billing")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SyncStale, rows[0].Status)
	assert.Equal(t, "doc_rewritten", rows[0].Reason)
}

func TestEvaluateNodeDetectsSymbolsChanged(t *testing.T) {
	conn := setupConn(t)
	seedNodeDocAndCode(t, conn)
	e := New(conn)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error { return e.MarkSynced(tx, "billing") }))

	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := store.ReplaceSymbolsForFile(tx, "src/billing/invoice.go", []model.CodeSymbol{
			{FilePath: "src/billing/invoice.go", SymbolName: "CreateInvoice", Kind: model.SymbolFunction},
			{FilePath: "src/billing/invoice.go", SymbolName: "VoidInvoice", Kind: model.SymbolFunction},
		}); err != nil {
			return err
		}
		return store.UpsertFileIndex(tx, model.FileIndexEntry{Path: "src/billing/invoice.go", Hash: "code-v2", Kind: model.FileCode, IndexedAt: time.Now()})
	}))
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error { return e.EvaluateNode(tx, "billing") }))

	rows, err := conn.SyncStateForRef("billing")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SyncStale, rows[0].Status)
	assert.Equal(t, "symbols_changed", rows[0].Reason)
	assert.Contains(t, rows[0].Details, "VoidInvoice")
}
