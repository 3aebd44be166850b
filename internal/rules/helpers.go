package rules

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/beadloom/beadloom/internal/model"
)

type payloadWrapper struct {
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload"`
}

// decode unmarshals a stored model.Rule.RuleJSON into out, returning the
// rule's free-text description.
func decode(r model.Rule, out any) (string, error) {
	var w payloadWrapper
	if err := json.Unmarshal([]byte(r.RuleJSON), &w); err != nil {
		return "", err
	}
	if err := json.Unmarshal(w.Payload, out); err != nil {
		return "", err
	}
	return w.Description, nil
}

// Decode is the exported form of decode, for callers outside this package
// that need to inspect a rule's variant payload (internal/context's
// constraint collector).
func Decode(r model.Rule, out any) (string, error) {
	return decode(r, out)
}

func nodesByID(nodes []model.Node) map[string]model.Node {
	m := make(map[string]model.Node, len(nodes))
	for _, n := range nodes {
		m[n.RefID] = n
	}
	return m
}

func filterNodes(nodes []model.Node, m NodeMatcher) []model.Node {
	var out []model.Node
	for _, n := range nodes {
		if m.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}

// ownerOf returns the ref_id of the node whose Source is the deepest
// matching prefix of filePath, or "" if none matches. Mirrors
// internal/reindex.ownerOf; kept separate to avoid a cross-package
// dependency between two independent read-paths over the same nodes slice.
func ownerOf(filePath string, nodes []model.Node) string {
	best, bestLen := "", -1
	for _, n := range nodes {
		src := strings.Trim(n.Source, "/")
		if src == "" {
			continue
		}
		if filePath == src || strings.HasPrefix(filePath+"/", src+"/") {
			if len(src) > bestLen {
				bestLen = len(src)
				best = n.RefID
			}
		}
	}
	return best
}

func toEdgeKinds(ss []string) []model.EdgeKind {
	out := make([]model.EdgeKind, 0, len(ss))
	for _, s := range ss {
		out = append(out, model.EdgeKind(s))
	}
	return out
}

// sortViolations orders results by (rule_name, file_path) for deterministic
// output.
func sortViolations(vs []model.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].RuleName != vs[j].RuleName {
			return vs[i].RuleName < vs[j].RuleName
		}
		return vs[i].FilePath < vs[j].FilePath
	})
}
