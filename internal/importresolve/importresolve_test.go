package importresolve

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beadloom/beadloom/internal/config"
	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExtractGoImportsSkipsStdlib(t *testing.T) {
	src := []byte(`package billing

import (
	"fmt"
	"github.com/beadloom/beadloom/internal/model"
)
`)
	r := New(nil, config.Default())
	defer r.Close()
	imports := r.Extract("src/billing/invoice.go", src)
	require.Len(t, imports, 1)
	assert.Equal(t, "github.com/beadloom/beadloom/internal/model", imports[0].ImportPath)
}

func TestExtractPythonImportsSkipsRelative(t *testing.T) {
	src := []byte("from . import helpers\nfrom app.billing import invoice\nimport os\n")
	r := New(nil, config.Default())
	defer r.Close()
	imports := r.Extract("app/billing/service.py", src)
	var paths []string
	for _, im := range imports {
		paths = append(paths, im.ImportPath)
	}
	assert.Contains(t, paths, "app.billing")
	assert.NotContains(t, paths, ".")
}

func TestShouldSkipImportJSAlias(t *testing.T) {
	cfg := config.Default()
	assert.False(t, shouldSkipImport("@/billing/invoice", "typescript", cfg))
	assert.True(t, shouldSkipImport("./invoice", "typescript", cfg))
	assert.True(t, shouldSkipImport("lodash", "typescript", cfg))
}

func TestCandidatePathsCoversInitPy(t *testing.T) {
	cands := candidatePaths("app.billing", []string{"src"}, config.Default())
	assert.Contains(t, cands, "src/app/billing/__init__.py")
	assert.Contains(t, cands, "src/app/billing.py")
}

func setupConn(t *testing.T) *store.Conn {
	t.Helper()
	root := t.TempDir()
	conn, err := store.Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestResolveBySourcePrefix(t *testing.T) {
	conn := setupConn(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return store.UpsertNode(tx, model.Node{RefID: "billing.invoices", Kind: model.KindFeature, Source: "src/billing/invoices"})
	}))

	r := New(conn, config.Default())
	defer r.Close()
	refID, err := r.Resolve("billing.invoices.client")
	require.NoError(t, err)
	assert.Equal(t, "billing.invoices", refID)
}

func TestDeriveEdgesSkipsSelfEdges(t *testing.T) {
	conn := setupConn(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := store.UpsertNode(tx, model.Node{RefID: "billing", Kind: model.KindDomain, Source: "src/billing"}); err != nil {
			return err
		}
		return store.ReplaceImportsForFile(tx, "src/billing/a.go", []model.CodeImport{
			{FilePath: "src/billing/a.go", LineNumber: 1, ImportPath: "x", ResolvedRefID: "billing"},
		})
	}))

	r := New(conn, config.Default())
	defer r.Close()
	require.NoError(t, conn.WithTx(r.DeriveEdges))

	edges, err := conn.AllEdges()
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestIndexFileSkipsMissingFile(t *testing.T) {
	conn := setupConn(t)
	r := New(conn, config.Default())
	defer r.Close()
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return r.IndexFile(tx, "src/does/not/exist.go")
	}))
}

func TestIndexFilePersistsImports(t *testing.T) {
	conn := setupConn(t)
	abs := filepath.Join(conn.ProjectRoot(), "src", "billing")
	require.NoError(t, os.MkdirAll(abs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(abs, "invoice.go"), []byte("package billing\n\nimport \"github.com/beadloom/beadloom/internal/model\"\n"), 0o644))

	r := New(conn, config.Default())
	defer r.Close()
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return r.IndexFile(tx, "src/billing/invoice.go")
	}))

	imports, err := conn.ImportsForFile("src/billing/invoice.go")
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, "github.com/beadloom/beadloom/internal/model", imports[0].ImportPath)
}
