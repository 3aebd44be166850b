package graphloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadloom/beadloom/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadMissingDirReturnsEmptyGraph(t *testing.T) {
	g, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)
}

func TestLoadNodesAndEdges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "domains.yml", `
nodes:
  - ref_id: billing
    kind: domain
    summary: Billing domain
    source: src/billing
    tags: [core]
    links:
      - url: https://example.com/billing
        label: wiki
    owner: platform-team
  - ref_id: billing.invoices
    kind: feature
    summary: Invoice generation
    source: src/billing/invoices
edges:
  - src: billing.invoices
    dst: billing
    kind: part_of
`)

	g, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)

	billing := g.Nodes[0]
	assert.Equal(t, "billing", billing.RefID)
	assert.Equal(t, model.KindDomain, billing.Kind)
	assert.True(t, billing.Extra.HasTag("core"))
	require.Len(t, billing.Extra.Links, 1)
	assert.Equal(t, "wiki", billing.Extra.Links[0].Label)
	assert.Equal(t, "platform-team", billing.Extra.Other["owner"])

	assert.Equal(t, model.Edge{SrcRefID: "billing.invoices", DstRefID: "billing", Kind: model.EdgePartOf}, g.Edges[0])
}

func TestLoadRejectsUnknownNodeKind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yml", `
nodes:
  - ref_id: x
    kind: bogus
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateRefID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yml", `
nodes:
  - ref_id: dup
    kind: domain
`)
	writeFile(t, dir, "b.yml", `
nodes:
  - ref_id: dup
    kind: domain
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadRejectsUnknownEdgeKind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yml", `
nodes:
  - ref_id: a
    kind: domain
  - ref_id: b
    kind: domain
edges:
  - src: a
    dst: b
    kind: bogus
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadMergesVersion3RulesTags(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "domains.yml", `
nodes:
  - ref_id: billing
    kind: domain
`)
	writeFile(t, dir, "rules.yml", `
version: 3
tags:
  pci_scope: [billing]
  unused_tag: [does-not-exist]
rules: []
`)

	g, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	assert.True(t, g.Nodes[0].Extra.HasTag("pci_scope"))
}

func TestLoadIgnoresNonVersion3RulesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "domains.yml", `
nodes:
  - ref_id: billing
    kind: domain
`)
	writeFile(t, dir, "rules.yml", `
version: 1
rules: []
`)

	g, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, g.Nodes[0].Extra.HasTag("pci_scope"))
}
