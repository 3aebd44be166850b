// Package context implements the Context Assembler: given one or more focus
// ref_ids, it computes a bounded BFS subgraph, gathers the subgraph's doc
// chunks and code symbols, the focus's sync state, and any rule whose
// matchers intersect the subgraph, and assembles the result into a bundle.
package context

import "github.com/beadloom/beadloom/internal/model"

// BundleVersion is the schema version stamped onto every assembled bundle.
const BundleVersion = 2

// Focus describes the node(s) a bundle was assembled for. Only the first
// requested ref_id is surfaced here;
// every requested ref_id is still guaranteed a member of Graph.Nodes.
type Focus struct {
	RefID   string       `json:"ref_id"`
	Kind    string       `json:"kind"`
	Summary string       `json:"summary"`
	Links   []model.Link `json:"links,omitempty"`
}

// GraphNode is one node of the assembled subgraph.
type GraphNode struct {
	RefID   string `json:"ref_id"`
	Kind    string `json:"kind"`
	Summary string `json:"summary"`
	Source  string `json:"source,omitempty"`
}

// GraphEdge is one edge of the assembled subgraph.
type GraphEdge struct {
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Kind string `json:"kind"`
}

// TextChunk is one doc chunk surfaced by the bundle.
type TextChunk struct {
	DocPath     string `json:"doc_path"`
	HeadingPath string `json:"heading_path"`
	Text        string `json:"text"`
}

// CodeSymbolEntry is one code symbol surfaced by the bundle.
type CodeSymbolEntry struct {
	FilePath    string            `json:"file_path"`
	SymbolName  string            `json:"symbol_name"`
	Kind        string            `json:"kind"`
	LineStart   int               `json:"line_start"`
	LineEnd     int               `json:"line_end"`
	Language    string            `json:"language"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// SyncStatusEntry is one sync_state row surfaced by the bundle.
type SyncStatusEntry struct {
	RefID    string `json:"ref_id"`
	DocPath  string `json:"doc_path"`
	CodePath string `json:"code_path"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Details  string `json:"details,omitempty"`
}

// Constraint is one rule whose matchers intersect the assembled subgraph.
type Constraint struct {
	Rule        string `json:"rule"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Definition  string `json:"definition"`
}

// GraphView is the bundle's nodes+edges subgraph.
type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Bundle is the assembled response to a get_context request.
type Bundle struct {
	Version     int               `json:"version"`
	Focus       Focus             `json:"focus"`
	Graph       GraphView         `json:"graph"`
	TextChunks  []TextChunk       `json:"text_chunks"`
	CodeSymbols []CodeSymbolEntry `json:"code_symbols"`
	SyncStatus  []SyncStatusEntry `json:"sync_status"`
	Constraints []Constraint      `json:"constraints"`
}
