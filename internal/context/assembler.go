package context

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beadloom/beadloom/internal/errs"
	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

// Options tunes a subgraph assembly.
type Options struct {
	Depth     int
	MaxNodes  int
	MaxChunks int
}

// DefaultOptions returns the default tuning parameters.
func DefaultOptions() Options {
	return Options{Depth: 2, MaxNodes: 20, MaxChunks: 10}
}

// Normalized returns o with any zero or negative field replaced by its
// default, so cache keys and assembly agree on the effective parameters.
func (o Options) Normalized() Options {
	if o.Depth <= 0 {
		o.Depth = 2
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = 20
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = 10
	}
	return o
}

// subgraphEdgeKinds are the edge kinds the BFS traverses, in both
// directions.
var subgraphEdgeKinds = []model.EdgeKind{model.EdgePartOf, model.EdgeDependsOn, model.EdgeUses}

// Assembler computes context bundles against an open store connection.
type Assembler struct {
	conn *store.Conn
}

// New returns an Assembler bound to conn.
func New(conn *store.Conn) *Assembler {
	return &Assembler{conn: conn}
}

// Assemble builds a bundle for the given focus ref_ids.
func (a *Assembler) Assemble(refIDs []string, opts Options) (*Bundle, error) {
	timer := logging.StartTimer(logging.CategoryContext, "Assemble")
	defer timer.Stop()

	opts = opts.Normalized()
	if len(refIDs) == 0 {
		return nil, errs.Configuration("", 0, "context: at least one ref_id is required")
	}

	var focusNodes []model.Node
	for _, id := range refIDs {
		n, ok, err := a.conn.GetNode(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			all, suggestErr := a.conn.AllRefIDs()
			if suggestErr != nil {
				all = nil
			}
			return nil, errs.NotFound(id, all)
		}
		focusNodes = append(focusNodes, n)
	}

	subgraphIDs, edges, err := a.buildSubgraph(refIDs, opts.Depth, opts.MaxNodes)
	if err != nil {
		return nil, err
	}

	nodes := make([]model.Node, 0, len(subgraphIDs))
	byID := make(map[string]model.Node, len(subgraphIDs))
	for _, id := range subgraphIDs {
		n, ok, err := a.conn.GetNode(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		nodes = append(nodes, n)
		byID[id] = n
	}

	chunks, err := a.collectChunks(subgraphIDs, byID, opts.MaxChunks)
	if err != nil {
		return nil, err
	}
	symbols, err := a.collectSymbols(nodes)
	if err != nil {
		return nil, err
	}
	syncRows, err := a.collectSyncStatus(refIDs)
	if err != nil {
		return nil, err
	}
	ruleRows, err := a.conn.AllRules()
	if err != nil {
		return nil, err
	}
	constraints, err := collectConstraints(nodes, ruleRows)
	if err != nil {
		return nil, err
	}

	focus := focusNodes[0]
	b := &Bundle{
		Version: BundleVersion,
		Focus: Focus{
			RefID:   focus.RefID,
			Kind:    string(focus.Kind),
			Summary: focus.Summary,
			Links:   focus.Extra.Links,
		},
		TextChunks:  chunks,
		CodeSymbols: symbols,
		SyncStatus:  syncRows,
		Constraints: constraints,
	}
	for _, n := range nodes {
		b.Graph.Nodes = append(b.Graph.Nodes, GraphNode{
			RefID: n.RefID, Kind: string(n.Kind), Summary: n.Summary, Source: n.Source,
		})
	}
	for _, e := range edges {
		b.Graph.Edges = append(b.Graph.Edges, GraphEdge{Src: e.SrcRefID, Dst: e.DstRefID, Kind: string(e.Kind)})
	}
	sort.Slice(b.Graph.Nodes, func(i, j int) bool { return b.Graph.Nodes[i].RefID < b.Graph.Nodes[j].RefID })
	sort.Slice(b.Graph.Edges, func(i, j int) bool {
		if b.Graph.Edges[i].Src != b.Graph.Edges[j].Src {
			return b.Graph.Edges[i].Src < b.Graph.Edges[j].Src
		}
		if b.Graph.Edges[i].Dst != b.Graph.Edges[j].Dst {
			return b.Graph.Edges[i].Dst < b.Graph.Edges[j].Dst
		}
		return b.Graph.Edges[i].Kind < b.Graph.Edges[j].Kind
	})
	return b, nil
}

// buildSubgraph runs a BFS over part_of/depends_on/uses edges in both
// directions from focusIDs until depth levels or maxNodes nodes are
// reached, ties broken by lexicographic ref_id.
func (a *Assembler) buildSubgraph(focusIDs []string, depth, maxNodes int) ([]string, []model.Edge, error) {
	visited := map[string]bool{}
	frontier := append([]string{}, focusIDs...)
	sort.Strings(frontier)
	for _, id := range frontier {
		visited[id] = true
	}

	edgeSeen := map[model.Edge]bool{}

	for level := 0; level < depth && len(visited) < maxNodes; level++ {
		var neighbors []string
		for _, id := range frontier {
			for _, kind := range subgraphEdgeKinds {
				out, err := a.conn.EdgesFrom(id, kind)
				if err != nil {
					return nil, nil, err
				}
				for _, e := range out {
					edgeSeen[e] = true
					neighbors = append(neighbors, e.DstRefID)
				}
				in, err := a.conn.EdgesTo(id, kind)
				if err != nil {
					return nil, nil, err
				}
				for _, e := range in {
					edgeSeen[e] = true
					neighbors = append(neighbors, e.SrcRefID)
				}
			}
		}
		sort.Strings(neighbors)

		var nextFrontier []string
		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			if len(visited) >= maxNodes {
				break
			}
			visited[n] = true
			nextFrontier = append(nextFrontier, n)
		}
		if len(nextFrontier) == 0 {
			break
		}
		frontier = nextFrontier
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var edges []model.Edge
	for e := range edgeSeen {
		if visited[e.SrcRefID] && visited[e.DstRefID] {
			edges = append(edges, e)
		}
	}
	return ids, edges, nil
}

// collectChunks gathers up to maxChunks doc chunks per subgraph node,
// ordered so chunks whose heading_path mentions the node's ref_id sort
// first, then by doc path, then by ascending chunk_index.
func (a *Assembler) collectChunks(ids []string, byID map[string]model.Node, maxChunks int) ([]TextChunk, error) {
	var out []TextChunk
	for _, id := range ids {
		n := byID[id]
		docPaths, err := a.docPathsFor(n)
		if err != nil {
			return nil, err
		}
		var chunks []model.Chunk
		for _, dp := range docPaths {
			cs, err := a.conn.ChunksForDoc(dp)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, cs...)
		}
		sort.SliceStable(chunks, func(i, j int) bool {
			iMatch := strings.Contains(chunks[i].HeadingPath, n.RefID)
			jMatch := strings.Contains(chunks[j].HeadingPath, n.RefID)
			if iMatch != jMatch {
				return iMatch
			}
			if chunks[i].DocPath != chunks[j].DocPath {
				return chunks[i].DocPath < chunks[j].DocPath
			}
			return chunks[i].ChunkIndex < chunks[j].ChunkIndex
		})
		if len(chunks) > maxChunks {
			chunks = chunks[:maxChunks]
		}
		for _, c := range chunks {
			out = append(out, TextChunk{DocPath: c.DocPath, HeadingPath: c.HeadingPath, Text: c.Text})
		}
	}
	return out, nil
}

// docPathsFor returns the union of a node's explicit extra.docs list and
// any docs indexed with this node as their ref_id.
func (a *Assembler) docPathsFor(n model.Node) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range n.Extra.Docs {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	linked, err := a.conn.DocsByRefID(n.RefID)
	if err != nil {
		return nil, err
	}
	for _, d := range linked {
		if !seen[d.Path] {
			seen[d.Path] = true
			out = append(out, d.Path)
		}
	}
	return out, nil
}

// collectSymbols gathers every code symbol under the subgraph nodes' source
// prefixes.
func (a *Assembler) collectSymbols(nodes []model.Node) ([]CodeSymbolEntry, error) {
	var out []CodeSymbolEntry
	seen := map[string]bool{}
	for _, n := range nodes {
		if n.Source == "" {
			continue
		}
		symbols, err := a.conn.SymbolsUnderPrefix(strings.TrimSuffix(n.Source, "/"))
		if err != nil {
			return nil, err
		}
		for _, s := range symbols {
			key := fmt.Sprintf("%s|%s|%d", s.FilePath, s.SymbolName, s.LineStart)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, CodeSymbolEntry{
				FilePath: s.FilePath, SymbolName: s.SymbolName, Kind: string(s.Kind),
				LineStart: s.LineStart, LineEnd: s.LineEnd, Language: s.Language,
				Annotations: s.Annotations,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].LineStart < out[j].LineStart
	})
	return out, nil
}

// collectSyncStatus gathers Sync State rows for the focus ref_ids only.
func (a *Assembler) collectSyncStatus(focusIDs []string) ([]SyncStatusEntry, error) {
	var out []SyncStatusEntry
	for _, id := range focusIDs {
		rows, err := a.conn.SyncStateForRef(id)
		if err != nil {
			return nil, err
		}
		for _, s := range rows {
			out = append(out, SyncStatusEntry{
				RefID: s.RefID, DocPath: s.DocPath, CodePath: s.CodePath,
				Status: string(s.Status), Reason: s.Reason, Details: s.Details,
			})
		}
	}
	return out, nil
}
