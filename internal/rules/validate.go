package rules

import (
	"fmt"

	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

// ValidateRefs checks every ref_id named by a rule's matchers against the
// current node set and returns advisory warnings for ones that don't
// exist. Unknown ref_ids are never fatal.
func ValidateRefs(conn *store.Conn, rules []model.Rule) ([]string, error) {
	known := map[string]bool{}
	nodes, err := conn.AllNodes()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		known[n.RefID] = true
	}

	var warnings []string
	check := func(ruleName string, m NodeMatcher) {
		if m.RefID != "" && !known[m.RefID] {
			warnings = append(warnings, fmt.Sprintf("rule %q references unknown ref_id %q", ruleName, m.RefID))
		}
		for _, ex := range m.Exclude {
			if !known[ex] {
				warnings = append(warnings, fmt.Sprintf("rule %q excludes unknown ref_id %q", ruleName, ex))
			}
		}
	}

	for _, r := range rules {
		switch r.Type {
		case model.RuleDeny:
			var v DenyVariant
			if _, err := decode(r, &v); err == nil {
				check(r.Name, v.From)
				check(r.Name, v.To)
			}
		case model.RuleRequire:
			var v RequireVariant
			if _, err := decode(r, &v); err == nil {
				check(r.Name, v.For)
				check(r.Name, v.HasEdgeTo)
			}
		case model.RuleForbidEdge:
			var v ForbidEdgeVariant
			if _, err := decode(r, &v); err == nil {
				check(r.Name, v.From)
				check(r.Name, v.To)
			}
		case model.RuleCardinality:
			var v CardinalityVariant
			if _, err := decode(r, &v); err == nil {
				check(r.Name, v.For)
			}
		}
	}
	return warnings, nil
}
