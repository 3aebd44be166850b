package docindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestChunkSplitsOnHeadingBoundaries(t *testing.T) {
	content := "# Architecture\n\nIntro text.\n\n## Rules\n\nRule text.\n\n### Deny\n\nDeny text.\n\n## Context\n\nContext text.\n"
	chunks := Chunk("docs/architecture.md", content)
	require.Len(t, chunks, 4)
	assert.Equal(t, "Architecture", chunks[0].HeadingPath)
	assert.Equal(t, "Architecture > Rules", chunks[1].HeadingPath)
	assert.Equal(t, "Architecture > Rules > Deny", chunks[2].HeadingPath)
	assert.Equal(t, "Architecture > Context", chunks[3].HeadingPath)
	for _, c := range chunks {
		assert.Equal(t, c.TokenEstimate, tokenEstimate(c.Text))
	}
}

func TestChunkIgnoresDeeperHeadingsAsBoundaries(t *testing.T) {
	content := "# Top\n\n#### Not a boundary\n\nstill top text.\n"
	chunks := Chunk("x.md", content)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Top", chunks[0].HeadingPath)
	assert.Contains(t, chunks[0].Text, "Not a boundary")
}

func TestAssociateRefIDPrefersMarker(t *testing.T) {
	content := "<!-- beadloom:ref=billing.invoices -->\n# Invoices\n"
	nodes := []model.Node{{RefID: "billing", Source: "src/billing"}}
	got := associateRefID("docs/billing/invoices.md", content, nodes)
	assert.Equal(t, "billing.invoices", got)
}

func TestAssociateRefIDFallsBackToDeepestSourcePrefix(t *testing.T) {
	nodes := []model.Node{
		{RefID: "billing", Source: "src/billing"},
		{RefID: "billing.invoices", Source: "src/billing/invoices"},
	}
	got := associateRefID("src/billing/invoices/readme.md", "no marker here", nodes)
	assert.Equal(t, "billing.invoices", got)
}

func TestIndexAllPersistsDocAndChunks(t *testing.T) {
	root := t.TempDir()
	docsDir := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "guide.md"), []byte("# Guide\n\nHello world.\n"), 0o644))

	conn, err := store.Open(root)
	require.NoError(t, err)
	defer conn.Close()

	ix := New(conn)
	require.NoError(t, ix.IndexAll("docs"))

	doc, ok, err := conn.GetDoc("docs/guide.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Guide", doc.Title)
	assert.NotEmpty(t, doc.Hash)

	chunks, err := conn.ChunksForDoc("docs/guide.md")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "Hello world.")
}

func TestWalkSkipsHiddenAndVendorDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", ".hidden"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "vendor"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", ".hidden", "a.md"), []byte("# A"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "vendor", "b.md"), []byte("# B"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "c.md"), []byte("# C"), 0o644))

	got, err := Walk(root, "docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/c.md"}, got)
}
