// Package rules implements the Rule Engine: it parses
// rules.yml into an immutable set of named rules, each one of seven
// variants, and evaluates them against the Persistent Store to produce
// Violation records.
package rules

import "github.com/beadloom/beadloom/internal/model"

// NodeMatcher selects nodes by any combination of ref_id, kind and tag,
// excluding any ref_id in Exclude.
type NodeMatcher struct {
	RefID   string   `yaml:"ref_id,omitempty" json:"ref_id,omitempty"`
	Kind    string   `yaml:"kind,omitempty" json:"kind,omitempty"`
	Tag     string   `yaml:"tag,omitempty" json:"tag,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// Empty reports whether m has no non-null field.
func (m NodeMatcher) Empty() bool {
	return m.RefID == "" && m.Kind == "" && m.Tag == "" && len(m.Exclude) == 0
}

// Matches reports whether n satisfies every non-null field of m and is not
// named in m.Exclude.
func (m NodeMatcher) Matches(n model.Node) bool {
	if m.RefID != "" && n.RefID != m.RefID {
		return false
	}
	if m.Kind != "" && string(n.Kind) != m.Kind {
		return false
	}
	if m.Tag != "" && !n.Extra.HasTag(m.Tag) {
		return false
	}
	for _, ex := range m.Exclude {
		if n.RefID == ex {
			return false
		}
	}
	return true
}

// DenyVariant forbids imports from nodes matched by From to nodes matched by
// To, unless an edge of any kind in UnlessEdge already exists.
type DenyVariant struct {
	From       NodeMatcher `yaml:"from" json:"from"`
	To         NodeMatcher `yaml:"to" json:"to"`
	UnlessEdge []string    `yaml:"unless_edge,omitempty" json:"unless_edge,omitempty"`
}

// RequireVariant asserts every node matching For has at least one outgoing
// edge (optionally of EdgeKind) to a node matching HasEdgeTo.
type RequireVariant struct {
	For       NodeMatcher `yaml:"for" json:"for"`
	HasEdgeTo NodeMatcher `yaml:"has_edge_to" json:"has_edge_to"`
	EdgeKind  string      `yaml:"edge_kind,omitempty" json:"edge_kind,omitempty"`
}

// ForbidCyclesVariant detects cycles in the subgraph restricted to the
// given edge kinds, bounded by MaxDepth.
type ForbidCyclesVariant struct {
	EdgeKind []string `yaml:"edge_kind" json:"edge_kind"`
	MaxDepth int      `yaml:"max_depth" json:"max_depth"`
}

// ForbidImportVariant is a file-level restriction: an import in a file
// matching FromGlob whose import path matches ToGlob is a violation. ToGlob
// is matched against the import path as written in the source (e.g.
// "auth.tokens"), not against a resolved target file path.
type ForbidImportVariant struct {
	FromGlob string `yaml:"from_glob" json:"from_glob"`
	ToGlob   string `yaml:"to_glob" json:"to_glob"`
}

// ForbidEdgeVariant forbids graph edges (not imports) from nodes matched by
// From to nodes matched by To, optionally filtered by EdgeKind.
type ForbidEdgeVariant struct {
	From     NodeMatcher `yaml:"from" json:"from"`
	To       NodeMatcher `yaml:"to" json:"to"`
	EdgeKind string      `yaml:"edge_kind,omitempty" json:"edge_kind,omitempty"`
}

// LayerDef names one layer in a LayersVariant's ordered sequence.
type LayerDef struct {
	Name string `yaml:"name" json:"name"`
	Tag  string `yaml:"tag" json:"tag"`
}

// LayersVariant enforces top-down layering: for each edge of EdgeKind, the
// source's layer must be strictly above (earlier in Layers than) the
// destination's; unless AllowSkip is set, exactly one layer above.
type LayersVariant struct {
	Layers    []LayerDef `yaml:"layers" json:"layers"`
	EdgeKind  string     `yaml:"edge_kind" json:"edge_kind"`
	AllowSkip bool       `yaml:"allow_skip" json:"allow_skip"`
}

// CardinalityVariant enforces size thresholds on every node matched by For.
// The YAML key for this variant is "check".
type CardinalityVariant struct {
	For            NodeMatcher `yaml:"for" json:"for"`
	MaxSymbols     int         `yaml:"max_symbols,omitempty" json:"max_symbols,omitempty"`
	MaxFiles       int         `yaml:"max_files,omitempty" json:"max_files,omitempty"`
	MinDocCoverage float64     `yaml:"min_doc_coverage,omitempty" json:"min_doc_coverage,omitempty"`
	Severity       string      `yaml:"severity,omitempty" json:"severity,omitempty"`
}
