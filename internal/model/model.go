// Package model defines the shared data model for the Beadloom architecture
// index: nodes, edges, docs, chunks, code symbols/imports, file index rows,
// sync state, rules and violations. Every other package borrows these types
// rather than defining its own; the Persistent Store is their sole owner.
package model

import "time"

// NodeKind is the closed set of graph node kinds.
type NodeKind string

const (
	KindDomain  NodeKind = "domain"
	KindFeature NodeKind = "feature"
	KindService NodeKind = "service"
	KindEntity  NodeKind = "entity"
	KindADR     NodeKind = "adr"
)

// ValidNodeKind reports whether k is one of the closed node kinds.
func ValidNodeKind(k NodeKind) bool {
	switch k {
	case KindDomain, KindFeature, KindService, KindEntity, KindADR:
		return true
	}
	return false
}

// EdgeKind is the closed set of directed relation kinds between nodes.
type EdgeKind string

const (
	EdgePartOf        EdgeKind = "part_of"
	EdgeDependsOn     EdgeKind = "depends_on"
	EdgeUses          EdgeKind = "uses"
	EdgeImplements    EdgeKind = "implements"
	EdgeTouchesEntity EdgeKind = "touches_entity"
	EdgeTouchesCode   EdgeKind = "touches_code"
)

// ValidEdgeKind reports whether k is one of the closed edge kinds.
func ValidEdgeKind(k EdgeKind) bool {
	switch k {
	case EdgePartOf, EdgeDependsOn, EdgeUses, EdgeImplements, EdgeTouchesEntity, EdgeTouchesCode:
		return true
	}
	return false
}

// Link is a labeled URL attached to a node's extra bag.
type Link struct {
	URL   string `json:"url"`
	Label string `json:"label,omitempty"`
}

// Extra is the node's open-ended attribute bag: known structural fields plus
// an opaque map for forward-compatible, user- or indexer-supplied data.
// The Graph Loader does not reject any unknown key: every node key outside
// its known set lands in Other untouched.
type Extra struct {
	Tags    []string `json:"tags,omitempty"`
	Links   []Link   `json:"links,omitempty"`
	C4Level string   `json:"c4_level,omitempty"`
	// Docs is an explicit doc-link list from the node's graph YAML entry,
	// consulted by the Sync Engine alongside the directory heuristic.
	Docs   []string       `json:"docs,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	Other  map[string]any `json:"-"`
}

// HasTag reports whether the extra bag carries the given tag.
func (e *Extra) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds tag if not already present.
func (e *Extra) AddTag(tag string) {
	if e.HasTag(tag) {
		return
	}
	e.Tags = append(e.Tags, tag)
}

// Node is a graph node identified by RefID, globally unique within a project.
type Node struct {
	RefID   string
	Kind    NodeKind
	Summary string
	// Source is an optional path prefix relative to the project root; may be
	// empty for root nodes.
	Source string
	Extra  Extra
}

// Edge is a directed relation between two nodes. At most one edge exists per
// (SrcRefID, DstRefID, Kind) triple.
type Edge struct {
	SrcRefID string
	DstRefID string
	Kind     EdgeKind
}

// Doc is a markdown documentation file tracked by path.
type Doc struct {
	Path         string
	RefID        string // optional owning node; empty means orphan doc
	Hash         string // SHA-256 of full content
	Title        string
	LastModified time.Time
}

// Chunk is an ordered sub-section of a Doc, split at heading boundaries.
type Chunk struct {
	DocPath       string
	ChunkIndex    int
	HeadingPath   string
	Text          string
	TokenEstimate int
}

// SymbolKind is the closed set of code symbol kinds.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolMethod   SymbolKind = "method"
	SymbolRoute    SymbolKind = "route"
	SymbolTest     SymbolKind = "test"
)

// CodeSymbol is a unit extracted from source by the Code Indexer, identified
// by (FilePath, SymbolName, LineStart).
type CodeSymbol struct {
	FilePath    string
	SymbolName  string
	Kind        SymbolKind
	LineStart   int
	LineEnd     int
	Language    string
	Annotations map[string]string // beadloom:key=value pairs from leading comments

	// Route-only fields, populated by the framework-decorator pass.
	RouteMethod  string
	RoutePath    string
	RouteHandler string
}

// CodeImport is a raw import statement extracted from a source file.
type CodeImport struct {
	FilePath      string
	LineNumber    int
	ImportPath    string
	ResolvedRefID string // empty if unresolved
	FileHash      string
}

// FileKind distinguishes the three classes of file the Reindex Pipeline tracks.
type FileKind string

const (
	FileGraph FileKind = "graph"
	FileDoc   FileKind = "doc"
	FileCode  FileKind = "code"
)

// FileIndexEntry drives incremental reindex: one row per tracked file path.
type FileIndexEntry struct {
	Path      string
	Hash      string
	Kind      FileKind
	IndexedAt time.Time
}

// SyncStatus is the freshness state of a doc/code pairing.
type SyncStatus string

const (
	SyncOK      SyncStatus = "ok"
	SyncStale   SyncStatus = "stale"
	SyncUnknown SyncStatus = "unknown"
)

// SyncState is one row per (RefID, DocPath, CodePath) triple tracked by the
// Sync Engine.
type SyncState struct {
	RefID          string
	DocPath        string
	CodePath       string
	Status         SyncStatus
	CodeHashAtSync string
	DocHashAtSync  string
	SyncedAt       time.Time
	Reason         string // e.g. symbols_changed, content_changed, untracked_files, missing_modules
	Details        string // free-form JSON
}

// RuleType enumerates the seven rule variants of the Rule Engine.
type RuleType string

const (
	RuleDeny         RuleType = "deny"
	RuleRequire      RuleType = "require"
	RuleForbidCycles RuleType = "forbid_cycles"
	RuleForbidImport RuleType = "forbid_import"
	RuleForbidEdge   RuleType = "forbid_edge"
	RuleLayers       RuleType = "layers"
	RuleCardinality  RuleType = "cardinality"
)

// Rule is a parsed, named architectural constraint.
type Rule struct {
	Name        string
	Type        RuleType
	Description string
	RuleJSON    string // the raw variant payload, re-parsed per evaluator
	Enabled     bool
}

// Severity is the severity level of a rule violation.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Violation is a single architectural-rule violation.
type Violation struct {
	RuleName        string
	RuleDescription string
	RuleType        RuleType
	Severity        Severity
	FilePath        string // optional
	LineNumber      int    // optional, 0 means unset
	FromRefID       string // optional
	ToRefID         string // optional
	Message         string
}

// GraphSnapshot is a point-in-time capture of the node/edge graph.
type GraphSnapshot struct {
	ID           string
	Label        string
	CreatedAt    time.Time
	NodesJSON    string
	EdgesJSON    string
	SymbolsCount int
}

// HealthSnapshot captures per-reindex health metrics.
type HealthSnapshot struct {
	TakenAt       time.Time
	NodesCount    int
	EdgesCount    int
	DocsCount     int
	CoveragePct   float64
	StaleCount    int
	IsolatedCount int
}
