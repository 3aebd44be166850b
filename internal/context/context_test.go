package context

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/rules"
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

// seedGraph builds a small billing -> auth -> infra chain with docs and
// symbols.
func seedGraph(t *testing.T, conn *store.Conn) {
	t.Helper()
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		nodes := []model.Node{
			{RefID: "billing", Kind: model.KindDomain, Summary: "billing domain", Source: "src/billing"},
			{RefID: "auth", Kind: model.KindDomain, Summary: "auth domain", Source: "src/auth"},
			{RefID: "infra", Kind: model.KindDomain, Summary: "infra domain", Source: "src/infra"},
			{RefID: "unrelated", Kind: model.KindDomain, Summary: "isolated domain", Source: "src/unrelated"},
		}
		for _, n := range nodes {
			if err := store.UpsertNode(tx, n); err != nil {
				return err
			}
		}
		edges := []model.Edge{
			{SrcRefID: "billing", DstRefID: "auth", Kind: model.EdgeDependsOn},
			{SrcRefID: "auth", DstRefID: "infra", Kind: model.EdgeDependsOn},
		}
		for _, e := range edges {
			if err := store.UpsertEdge(tx, e); err != nil {
				return err
			}
		}
		if err := store.UpsertDoc(tx, model.Doc{Path: "docs/billing.md", RefID: "billing", Title: "Billing"}); err != nil {
			return err
		}
		if err := store.ReplaceChunks(tx, "docs/billing.md", []model.Chunk{
			{DocPath: "docs/billing.md", ChunkIndex: 0, HeadingPath: "Billing / Overview", Text: "billing overview"},
			{DocPath: "docs/billing.md", ChunkIndex: 1, HeadingPath: "Billing / billing", Text: "mentions billing directly"},
		}); err != nil {
			return err
		}
		return store.ReplaceSymbolsForFile(tx, "src/billing/invoice.py", []model.CodeSymbol{
			{FilePath: "src/billing/invoice.py", SymbolName: "charge", Kind: model.SymbolFunction, LineStart: 1, LineEnd: 10, Language: "python"},
		})
	}))
}

func TestAssembleBuildsBoundedSubgraph(t *testing.T) {
	conn := setupConn(t)
	seedGraph(t, conn)

	a := New(conn)
	b, err := a.Assemble([]string{"billing"}, Options{Depth: 2, MaxNodes: 20, MaxChunks: 10})
	require.NoError(t, err)

	var ids []string
	for _, n := range b.Graph.Nodes {
		ids = append(ids, n.RefID)
	}
	assert.Contains(t, ids, "billing")
	assert.Contains(t, ids, "auth")
	assert.Contains(t, ids, "infra")
	assert.NotContains(t, ids, "unrelated", "unrelated domain is outside the depth-2 reach")
}

func TestAssembleRespectsDepthBound(t *testing.T) {
	conn := setupConn(t)
	seedGraph(t, conn)

	a := New(conn)
	b, err := a.Assemble([]string{"billing"}, Options{Depth: 1, MaxNodes: 20, MaxChunks: 10})
	require.NoError(t, err)

	var ids []string
	for _, n := range b.Graph.Nodes {
		ids = append(ids, n.RefID)
	}
	assert.Contains(t, ids, "auth")
	assert.NotContains(t, ids, "infra", "infra is two hops away, beyond depth 1")
}

func TestAssembleUnknownFocusReturnsNotFound(t *testing.T) {
	conn := setupConn(t)
	seedGraph(t, conn)

	a := New(conn)
	_, err := a.Assemble([]string{"does-not-exist"}, DefaultOptions())
	require.Error(t, err)
}

func TestAssembleOrdersChunksByHeadingRelevance(t *testing.T) {
	conn := setupConn(t)
	seedGraph(t, conn)

	a := New(conn)
	b, err := a.Assemble([]string{"billing"}, DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, b.TextChunks)
	assert.Equal(t, "Billing / billing", b.TextChunks[0].HeadingPath, "heading mentioning the focus ref_id sorts first")
}

func TestAssembleIsDeterministic(t *testing.T) {
	conn := setupConn(t)
	seedGraph(t, conn)

	a := New(conn)
	b1, err := a.Assemble([]string{"billing"}, DefaultOptions())
	require.NoError(t, err)
	b2, err := a.Assemble([]string{"billing"}, DefaultOptions())
	require.NoError(t, err)
	if diff := cmp.Diff(b1, b2); diff != "" {
		t.Fatalf("identical inputs assembled different bundles (-first +second):\n%s", diff)
	}

	j1, err := json.Marshal(b1)
	require.NoError(t, err)
	j2, err := json.Marshal(b2)
	require.NoError(t, err)
	assert.Equal(t, string(j1), string(j2), "serialized bundles must be byte-identical")
}

func TestCollectConstraintsSurfacesIntersectingRules(t *testing.T) {
	conn := setupConn(t)
	seedGraph(t, conn)

	denyJSON := mustDenyJSON(t, "billing must not reach into infra", rules.DenyVariant{
		From: rules.NodeMatcher{RefID: "billing"}, To: rules.NodeMatcher{RefID: "infra"},
	})
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return store.ReplaceAllRules(tx, []model.Rule{
			{Name: "no-billing-infra", Type: model.RuleDeny, Enabled: true, RuleJSON: denyJSON},
		})
	}))

	a := New(conn)
	b, err := a.Assemble([]string{"billing"}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, b.Constraints, 1)
	assert.Equal(t, "no-billing-infra", b.Constraints[0].Rule)
}

// mustDenyJSON builds the {description, payload} wrapper that
// internal/rules.Decode expects, matching rules.buildRule's output shape
// without depending on that unexported function.
func mustDenyJSON(t *testing.T, description string, v rules.DenyVariant) string {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	wrapper, err := json.Marshal(struct {
		Description string          `json:"description"`
		Payload     json.RawMessage `json:"payload"`
	}{Description: description, Payload: payload})
	require.NoError(t, err)
	return string(wrapper)
}
