package context

import (
	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/rules"
)

// collectConstraints returns one Constraint per enabled rule whose matchers
// intersect the assembled subgraph's node set.
func collectConstraints(subgraph []model.Node, allRules []model.Rule) ([]Constraint, error) {
	hits := func(m rules.NodeMatcher) bool {
		if m.Empty() {
			return true
		}
		for _, n := range subgraph {
			if m.Matches(n) {
				return true
			}
		}
		return false
	}

	var out []Constraint
	for _, r := range allRules {
		if !r.Enabled {
			continue
		}
		var (
			relevant bool
			desc     string
			err      error
		)
		switch r.Type {
		case model.RuleDeny:
			var v rules.DenyVariant
			if desc, err = rules.Decode(r, &v); err == nil {
				relevant = hits(v.From) || hits(v.To)
			}
		case model.RuleRequire:
			var v rules.RequireVariant
			if desc, err = rules.Decode(r, &v); err == nil {
				relevant = hits(v.For) || hits(v.HasEdgeTo)
			}
		case model.RuleForbidCycles:
			var v rules.ForbidCyclesVariant
			desc, err = rules.Decode(r, &v)
			relevant = true // edge-kind scoped, not node-matcher scoped: always surfaced
		case model.RuleForbidImport:
			var v rules.ForbidImportVariant
			desc, err = rules.Decode(r, &v)
			relevant = true // file-glob scoped; no node matcher to intersect against
		case model.RuleForbidEdge:
			var v rules.ForbidEdgeVariant
			if desc, err = rules.Decode(r, &v); err == nil {
				relevant = hits(v.From) || hits(v.To)
			}
		case model.RuleLayers:
			var v rules.LayersVariant
			if desc, err = rules.Decode(r, &v); err == nil {
				for _, l := range v.Layers {
					if hits(rules.NodeMatcher{Tag: l.Tag}) {
						relevant = true
						break
					}
				}
			}
		case model.RuleCardinality:
			var v rules.CardinalityVariant
			if desc, err = rules.Decode(r, &v); err == nil {
				relevant = hits(v.For)
			}
		}
		if err != nil {
			return nil, err
		}
		if !relevant {
			continue
		}
		if desc == "" {
			desc = r.Description
		}
		out = append(out, Constraint{
			Rule:        r.Name,
			Description: desc,
			Type:        string(r.Type),
			Definition:  r.RuleJSON,
		})
	}
	return out, nil
}
