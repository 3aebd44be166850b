package rules

import (
	"database/sql"
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

func setupConn(t *testing.T) *store.Conn {
	t.Helper()
	conn, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	rules, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	dir := writeRulesFile(t, "version: 9\nrules: []\n")
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadRejectsMultipleVariantKeys(t *testing.T) {
	dir := writeRulesFile(t, `
version: 2
rules:
  - name: bad
    deny:
      from: {ref_id: a}
      to: {ref_id: b}
    require:
      for: {kind: domain}
      has_edge_to: {}
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	dir := writeRulesFile(t, `
version: 2
rules:
  - name: dup
    deny: {from: {ref_id: a}, to: {ref_id: b}}
  - name: dup
    deny: {from: {ref_id: c}, to: {ref_id: d}}
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadParsesDenyRule(t *testing.T) {
	dir := writeRulesFile(t, `
version: 2
rules:
  - name: no-cross
    description: billing must not reach into auth
    deny:
      from: {ref_id: billing}
      to: {ref_id: auth}
`)
	rules, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "no-cross", rules[0].Name)
	assert.Equal(t, model.RuleDeny, rules[0].Type)

	var v DenyVariant
	desc, err := decode(rules[0], &v)
	require.NoError(t, err)
	assert.Equal(t, "billing must not reach into auth", desc)
	assert.Equal(t, "billing", v.From.RefID)
	assert.Equal(t, "auth", v.To.RefID)
}

// seedDenyScenario seeds two domains, auth and billing, with
// billing/invoice.py importing auth.tokens.
func seedDenyScenario(t *testing.T, conn *store.Conn) {
	t.Helper()
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := store.UpsertNode(tx, model.Node{RefID: "auth", Kind: model.KindDomain, Source: "src/auth"}); err != nil {
			return err
		}
		if err := store.UpsertNode(tx, model.Node{RefID: "billing", Kind: model.KindDomain, Source: "src/billing"}); err != nil {
			return err
		}
		return store.ReplaceImportsForFile(tx, "src/billing/invoice.py", []model.CodeImport{
			{FilePath: "src/billing/invoice.py", LineNumber: 1, ImportPath: "auth.tokens", ResolvedRefID: "auth"},
		})
	}))
}

func TestEvaluateDenyRuleReportsImportViolation(t *testing.T) {
	conn := setupConn(t)
	seedDenyScenario(t, conn)

	rule := model.Rule{
		Name: "no-cross", Type: model.RuleDeny, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", DenyVariant{From: NodeMatcher{RefID: "billing"}, To: NodeMatcher{RefID: "auth"}}),
	}
	violations, err := Evaluate(conn, []model.Rule{rule})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "src/billing/invoice.py", violations[0].FilePath)
	assert.Equal(t, "billing", violations[0].FromRefID)
	assert.Equal(t, "auth", violations[0].ToRefID)
}

func TestEvaluateDenyRuleSuppressedByUnlessEdge(t *testing.T) {
	conn := setupConn(t)
	seedDenyScenario(t, conn)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return store.UpsertEdge(tx, model.Edge{SrcRefID: "billing", DstRefID: "auth", Kind: model.EdgeDependsOn})
	}))

	ruleNoUnless := model.Rule{
		Name: "no-cross", Type: model.RuleDeny, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", DenyVariant{From: NodeMatcher{RefID: "billing"}, To: NodeMatcher{RefID: "auth"}}),
	}
	violations, err := Evaluate(conn, []model.Rule{ruleNoUnless})
	require.NoError(t, err)
	assert.Len(t, violations, 1, "a plain depends_on edge must not suppress the violation")

	ruleWithUnless := model.Rule{
		Name: "no-cross", Type: model.RuleDeny, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", DenyVariant{
			From: NodeMatcher{RefID: "billing"}, To: NodeMatcher{RefID: "auth"},
			UnlessEdge: []string{"depends_on"},
		}),
	}
	violations, err = Evaluate(conn, []model.Rule{ruleWithUnless})
	require.NoError(t, err)
	assert.Empty(t, violations, "unless_edge: [depends_on] should suppress the violation")
}

func TestEvaluateRequireRuleWithEmptyMatcher(t *testing.T) {
	conn := setupConn(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		return store.UpsertNode(tx, model.Node{RefID: "billing", Kind: model.KindDomain})
	}))

	rule := model.Rule{
		Name: "domain-needs-partof", Type: model.RuleRequire, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", RequireVariant{
			For: NodeMatcher{Kind: "domain"}, HasEdgeTo: NodeMatcher{}, EdgeKind: "part_of",
		}),
	}
	violations, err := Evaluate(conn, []model.Rule{rule})
	require.NoError(t, err)
	require.Len(t, violations, 1)

	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		if err := store.UpsertNode(tx, model.Node{RefID: "root", Kind: model.KindDomain}); err != nil {
			return err
		}
		return store.UpsertEdge(tx, model.Edge{SrcRefID: "billing", DstRefID: "root", Kind: model.EdgePartOf})
	}))
	violations, err = Evaluate(conn, []model.Rule{rule})
	require.NoError(t, err)
	require.Len(t, violations, 1, "billing's part_of edge clears it; root is a domain with no part_of edge of its own")
	assert.Equal(t, "root", violations[0].FromRefID)
}

func TestEvaluateForbidCyclesReportsPath(t *testing.T) {
	conn := setupConn(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		for _, ref := range []string{"X", "Y", "Z"} {
			if err := store.UpsertNode(tx, model.Node{RefID: ref, Kind: model.KindService}); err != nil {
				return err
			}
		}
		for _, e := range []model.Edge{
			{SrcRefID: "X", DstRefID: "Y", Kind: model.EdgeDependsOn},
			{SrcRefID: "Y", DstRefID: "Z", Kind: model.EdgeDependsOn},
			{SrcRefID: "Z", DstRefID: "X", Kind: model.EdgeDependsOn},
		} {
			if err := store.UpsertEdge(tx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	rule := model.Rule{
		Name: "no-cycles", Type: model.RuleForbidCycles, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", ForbidCyclesVariant{EdgeKind: []string{"depends_on"}, MaxDepth: 10}),
	}
	violations, err := Evaluate(conn, []model.Rule{rule})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0].Message, "X")
	assert.Contains(t, violations[0].Message, "Y")
	assert.Contains(t, violations[0].Message, "Z")
}

func TestEvaluateForbidCyclesRespectsMaxDepthBoundary(t *testing.T) {
	conn := setupConn(t)
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		for _, ref := range []string{"A", "B", "C"} {
			if err := store.UpsertNode(tx, model.Node{RefID: ref, Kind: model.KindService}); err != nil {
				return err
			}
		}
		for _, e := range []model.Edge{
			{SrcRefID: "A", DstRefID: "B", Kind: model.EdgeDependsOn},
			{SrcRefID: "B", DstRefID: "C", Kind: model.EdgeDependsOn},
			{SrcRefID: "C", DstRefID: "A", Kind: model.EdgeDependsOn},
		} {
			if err := store.UpsertEdge(tx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	tooShallow := model.Rule{
		Name: "no-cycles", Type: model.RuleForbidCycles, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", ForbidCyclesVariant{EdgeKind: []string{"depends_on"}, MaxDepth: 2}),
	}
	violations, err := Evaluate(conn, []model.Rule{tooShallow})
	require.NoError(t, err)
	assert.Empty(t, violations, "a 3-edge cycle must not be reported when max_depth is 2")

	exact := model.Rule{
		Name: "no-cycles", Type: model.RuleForbidCycles, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", ForbidCyclesVariant{EdgeKind: []string{"depends_on"}, MaxDepth: 3}),
	}
	violations, err = Evaluate(conn, []model.Rule{exact})
	require.NoError(t, err)
	assert.Len(t, violations, 1, "a 3-edge cycle must be reported when max_depth is exactly 3")
}

func TestEvaluateForbidCyclesFindsCycleBehindLongPrefixChain(t *testing.T) {
	conn := setupConn(t)

	// a01 -> a02 -> ... -> a10 -> b1 -> b2 -> b3 -> b1: the 3-edge cycle
	// sits more than max_depth hops from the lexicographically first DFS
	// root, which must not hide it.
	chain := []string{"a01", "a02", "a03", "a04", "a05", "a06", "a07", "a08", "a09", "a10", "b1", "b2", "b3"}
	require.NoError(t, conn.WithTx(func(tx *sql.Tx) error {
		for _, ref := range chain {
			if err := store.UpsertNode(tx, model.Node{RefID: ref, Kind: model.KindService}); err != nil {
				return err
			}
		}
		for i := 0; i < len(chain)-1; i++ {
			if err := store.UpsertEdge(tx, model.Edge{SrcRefID: chain[i], DstRefID: chain[i+1], Kind: model.EdgeDependsOn}); err != nil {
				return err
			}
		}
		return store.UpsertEdge(tx, model.Edge{SrcRefID: "b3", DstRefID: "b1", Kind: model.EdgeDependsOn})
	}))

	rule := model.Rule{
		Name: "no-cycles", Type: model.RuleForbidCycles, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", ForbidCyclesVariant{EdgeKind: []string{"depends_on"}, MaxDepth: 10}),
	}
	violations, err := Evaluate(conn, []model.Rule{rule})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0].Message, "b1")
	assert.Contains(t, violations[0].Message, "b2")
	assert.Contains(t, violations[0].Message, "b3")
	assert.NotContains(t, violations[0].Message, "a01", "only the cycle itself is reported, not the prefix chain")
}

func TestEvaluateIsMonotoneUnderComposition(t *testing.T) {
	conn := setupConn(t)
	seedDenyScenario(t, conn)

	deny := model.Rule{
		Name: "no-cross", Type: model.RuleDeny, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", DenyVariant{From: NodeMatcher{RefID: "billing"}, To: NodeMatcher{RefID: "auth"}}),
	}
	require_ := model.Rule{
		Name: "domain-needs-partof", Type: model.RuleRequire, Enabled: true,
		RuleJSON: mustRuleJSON(t, "", RequireVariant{For: NodeMatcher{Kind: "domain"}, HasEdgeTo: NodeMatcher{}, EdgeKind: "part_of"}),
	}

	solo, err := Evaluate(conn, []model.Rule{deny})
	require.NoError(t, err)
	combined, err := Evaluate(conn, []model.Rule{deny, require_})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(combined), len(solo), "adding a rule must never remove a violation")
}

func mustRuleJSON(t *testing.T, description string, payload any) string {
	t.Helper()
	entry := ruleEntry{Description: description}
	switch v := payload.(type) {
	case DenyVariant:
		entry.Deny = &v
	case RequireVariant:
		entry.Require = &v
	case ForbidCyclesVariant:
		entry.ForbidCycles = &v
	case ForbidImportVariant:
		entry.ForbidImport = &v
	case ForbidEdgeVariant:
		entry.ForbidEdge = &v
	case LayersVariant:
		entry.Layers = &v
	case CardinalityVariant:
		entry.Check = &v
	default:
		t.Fatalf("unsupported payload type %T", payload)
	}
	r, err := buildRule(entry, "test")
	require.NoError(t, err)
	return r.RuleJSON
}
