package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

// Evaluate runs every enabled rule against conn and returns the combined,
// deterministically-ordered violation set.
func Evaluate(conn *store.Conn, rules []model.Rule) ([]model.Violation, error) {
	timer := logging.StartTimer(logging.CategoryRules, "Evaluate")
	defer timer.Stop()

	nodes, err := conn.AllNodes()
	if err != nil {
		return nil, err
	}
	byID := nodesByID(nodes)

	var out []model.Violation
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		var (
			vs  []model.Violation
			err error
		)
		switch r.Type {
		case model.RuleDeny:
			vs, err = evalDeny(conn, r, nodes)
		case model.RuleRequire:
			vs, err = evalRequire(conn, r, nodes, byID)
		case model.RuleForbidCycles:
			vs, err = evalForbidCycles(conn, r)
		case model.RuleForbidImport:
			vs, err = evalForbidImport(conn, r)
		case model.RuleForbidEdge:
			vs, err = evalForbidEdge(conn, r, byID)
		case model.RuleLayers:
			vs, err = evalLayers(conn, r, byID)
		case model.RuleCardinality:
			vs, err = evalCardinality(conn, r, nodes)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("rules: evaluate %q: %w", r.Name, err)
		}
		out = append(out, vs...)
	}
	sortViolations(out)
	return out, nil
}

func evalDeny(conn *store.Conn, r model.Rule, nodes []model.Node) ([]model.Violation, error) {
	var v DenyVariant
	desc, err := decode(r, &v)
	if err != nil {
		return nil, err
	}
	fromNodes := filterNodes(nodes, v.From)
	if len(fromNodes) == 0 {
		return nil, nil
	}
	fromSet := map[string]bool{}
	for _, n := range fromNodes {
		fromSet[n.RefID] = true
	}
	toSet := map[string]bool{}
	for _, n := range filterNodes(nodes, v.To) {
		toSet[n.RefID] = true
	}
	unlessKinds := toEdgeKinds(v.UnlessEdge)

	imports, err := conn.AllImports()
	if err != nil {
		return nil, err
	}

	var out []model.Violation
	for _, im := range imports {
		if im.ResolvedRefID == "" || !toSet[im.ResolvedRefID] {
			continue
		}
		owner := ownerOf(im.FilePath, nodes)
		if owner == "" || !fromSet[owner] {
			continue
		}
		if owner == im.ResolvedRefID {
			continue
		}
		if len(unlessKinds) > 0 {
			exists, err := conn.EdgeExists(owner, im.ResolvedRefID, unlessKinds)
			if err != nil {
				return nil, err
			}
			if exists {
				continue
			}
		}
		out = append(out, model.Violation{
			RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleDeny,
			Severity:   model.SeverityError,
			FilePath:   im.FilePath,
			LineNumber: im.LineNumber,
			FromRefID:  owner,
			ToRefID:    im.ResolvedRefID,
			Message:    fmt.Sprintf("import from %s to %s is forbidden", owner, im.ResolvedRefID),
		})
	}
	return out, nil
}

func evalRequire(conn *store.Conn, r model.Rule, nodes []model.Node, byID map[string]model.Node) ([]model.Violation, error) {
	var v RequireVariant
	desc, err := decode(r, &v)
	if err != nil {
		return nil, err
	}
	kind := model.EdgeKind(v.EdgeKind)

	var out []model.Violation
	for _, n := range nodes {
		if !v.For.Matches(n) {
			continue
		}
		edges, err := conn.EdgesFrom(n.RefID, kind)
		if err != nil {
			return nil, err
		}
		satisfied := false
		for _, e := range edges {
			if v.HasEdgeTo.Empty() {
				satisfied = true
				break
			}
			if dst, ok := byID[e.DstRefID]; ok && v.HasEdgeTo.Matches(dst) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			edgeDesc := v.EdgeKind
			if edgeDesc == "" {
				edgeDesc = "any"
			}
			out = append(out, model.Violation{
				RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleRequire,
				Severity:  model.SeverityError,
				FromRefID: n.RefID,
				Message:   fmt.Sprintf("%s has no outgoing %s edge satisfying has_edge_to", n.RefID, edgeDesc),
			})
		}
	}
	return out, nil
}

func evalForbidCycles(conn *store.Conn, r model.Rule) ([]model.Violation, error) {
	var v ForbidCyclesVariant
	desc, err := decode(r, &v)
	if err != nil {
		return nil, err
	}
	edges, err := conn.AllEdges()
	if err != nil {
		return nil, err
	}
	kindSet := map[model.EdgeKind]bool{}
	for _, k := range v.EdgeKind {
		kindSet[model.EdgeKind(k)] = true
	}
	graph := map[string][]string{}
	for _, e := range edges {
		if len(kindSet) > 0 && !kindSet[e.Kind] {
			continue
		}
		graph[e.SrcRefID] = append(graph[e.SrcRefID], e.DstRefID)
	}
	for k := range graph {
		sort.Strings(graph[k])
	}

	var out []model.Violation
	for _, cyc := range findCycles(graph, v.MaxDepth) {
		out = append(out, model.Violation{
			RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleForbidCycles,
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("cycle detected: %s", strings.Join(cyc, " → ")),
		})
	}
	return out, nil
}

func evalForbidImport(conn *store.Conn, r model.Rule) ([]model.Violation, error) {
	var v ForbidImportVariant
	desc, err := decode(r, &v)
	if err != nil {
		return nil, err
	}
	imports, err := conn.AllImports()
	if err != nil {
		return nil, err
	}

	var out []model.Violation
	for _, im := range imports {
		fromOK, _ := doublestar.Match(v.FromGlob, im.FilePath)
		if !fromOK {
			continue
		}
		toOK, _ := doublestar.Match(v.ToGlob, im.ImportPath)
		if !toOK {
			continue
		}
		out = append(out, model.Violation{
			RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleForbidImport,
			Severity:   model.SeverityError,
			FilePath:   im.FilePath,
			LineNumber: im.LineNumber,
			Message:    fmt.Sprintf("import %q from %s matches forbidden pattern %s -> %s", im.ImportPath, im.FilePath, v.FromGlob, v.ToGlob),
		})
	}
	return out, nil
}

func evalForbidEdge(conn *store.Conn, r model.Rule, byID map[string]model.Node) ([]model.Violation, error) {
	var v ForbidEdgeVariant
	desc, err := decode(r, &v)
	if err != nil {
		return nil, err
	}
	edges, err := conn.AllEdges()
	if err != nil {
		return nil, err
	}

	var out []model.Violation
	for _, e := range edges {
		if v.EdgeKind != "" && string(e.Kind) != v.EdgeKind {
			continue
		}
		src, ok := byID[e.SrcRefID]
		if !ok || !v.From.Matches(src) {
			continue
		}
		dst, ok := byID[e.DstRefID]
		if !ok || !v.To.Matches(dst) {
			continue
		}
		out = append(out, model.Violation{
			RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleForbidEdge,
			Severity:  model.SeverityError,
			FromRefID: e.SrcRefID,
			ToRefID:   e.DstRefID,
			Message:   fmt.Sprintf("edge %s -[%s]-> %s is forbidden", e.SrcRefID, e.Kind, e.DstRefID),
		})
	}
	return out, nil
}

func evalLayers(conn *store.Conn, r model.Rule, byID map[string]model.Node) ([]model.Violation, error) {
	var v LayersVariant
	desc, err := decode(r, &v)
	if err != nil {
		return nil, err
	}
	layerOf := func(n model.Node) (int, bool) {
		for i, l := range v.Layers {
			if l.Tag != "" && n.Extra.HasTag(l.Tag) {
				return i, true
			}
		}
		return -1, false
	}

	edges, err := conn.AllEdges()
	if err != nil {
		return nil, err
	}

	var out []model.Violation
	for _, e := range edges {
		if v.EdgeKind != "" && string(e.Kind) != v.EdgeKind {
			continue
		}
		src, ok := byID[e.SrcRefID]
		if !ok {
			continue
		}
		dst, ok := byID[e.DstRefID]
		if !ok {
			continue
		}
		si, sok := layerOf(src)
		di, dok := layerOf(dst)
		if !sok || !dok {
			continue
		}
		switch {
		case si >= di:
			out = append(out, model.Violation{
				RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleLayers,
				Severity:  model.SeverityError,
				FromRefID: e.SrcRefID,
				ToRefID:   e.DstRefID,
				Message:   fmt.Sprintf("%s (%s) must not depend on %s (%s): violates top-down layering", e.SrcRefID, v.Layers[si].Name, e.DstRefID, v.Layers[di].Name),
			})
		case !v.AllowSkip && di-si > 1:
			out = append(out, model.Violation{
				RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleLayers,
				Severity:  model.SeverityError,
				FromRefID: e.SrcRefID,
				ToRefID:   e.DstRefID,
				Message:   fmt.Sprintf("%s (%s) skips a layer to reach %s (%s)", e.SrcRefID, v.Layers[si].Name, e.DstRefID, v.Layers[di].Name),
			})
		}
	}
	return out, nil
}

func evalCardinality(conn *store.Conn, r model.Rule, nodes []model.Node) ([]model.Violation, error) {
	var v CardinalityVariant
	desc, err := decode(r, &v)
	if err != nil {
		return nil, err
	}
	severity := model.SeverityWarn
	if v.Severity != "" {
		severity = model.Severity(v.Severity)
	}

	var out []model.Violation
	for _, n := range nodes {
		if !v.For.Matches(n) {
			continue
		}
		if n.Source == "" {
			continue
		}
		symbols, err := conn.SymbolsUnderPrefix(strings.TrimSuffix(n.Source, "/"))
		if err != nil {
			return nil, err
		}
		fileSet := map[string]bool{}
		for _, s := range symbols {
			fileSet[s.FilePath] = true
		}

		if v.MaxSymbols > 0 && len(symbols) > v.MaxSymbols {
			out = append(out, model.Violation{
				RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleCardinality,
				Severity:  severity,
				FromRefID: n.RefID,
				Message:   fmt.Sprintf("%s has %d symbols, exceeding max_symbols %d", n.RefID, len(symbols), v.MaxSymbols),
			})
		}
		if v.MaxFiles > 0 && len(fileSet) > v.MaxFiles {
			out = append(out, model.Violation{
				RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleCardinality,
				Severity:  severity,
				FromRefID: n.RefID,
				Message:   fmt.Sprintf("%s has %d files, exceeding max_files %d", n.RefID, len(fileSet), v.MaxFiles),
			})
		}
		if v.MinDocCoverage > 0 {
			docs, err := conn.DocsByRefID(n.RefID)
			if err != nil {
				return nil, err
			}
			coverage := 0.0
			if len(docs) > 0 || len(n.Extra.Docs) > 0 {
				coverage = 1.0
			}
			if coverage < v.MinDocCoverage {
				out = append(out, model.Violation{
					RuleName: r.Name, RuleDescription: desc, RuleType: model.RuleCardinality,
					Severity:  severity,
					FromRefID: n.RefID,
					Message:   fmt.Sprintf("%s doc coverage %.2f is below min_doc_coverage %.2f", n.RefID, coverage, v.MinDocCoverage),
				})
			}
		}
	}
	return out, nil
}

