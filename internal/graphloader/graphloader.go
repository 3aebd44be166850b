// Package graphloader parses the human-authored YAML graph: *.yml files
// under the project's _graph directory describing domains, features,
// services, entities and ADRs plus their relations. It is the only place
// unknown node fields become part of a node's Extra bag, and the only place
// a version-3 rules.yml's top-level tags: block is merged into nodes.
package graphloader

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/beadloom/beadloom/internal/errs"
	"github.com/beadloom/beadloom/internal/model"
)

// Graph is the in-memory result of loading every graph YAML file in a
// directory.
type Graph struct {
	Nodes []model.Node
	Edges []model.Edge
}

var knownNodeFields = map[string]bool{
	"ref_id": true, "kind": true, "summary": true, "source": true,
	"docs": true, "links": true, "tags": true, "c4_level": true,
}

type graphFile struct {
	Nodes []map[string]any `yaml:"nodes"`
	Edges []edgeEntry      `yaml:"edges"`
}

type edgeEntry struct {
	Src  string `yaml:"src"`
	Dst  string `yaml:"dst"`
	Kind string `yaml:"kind"`
}

type rulesTagsFile struct {
	Version int                 `yaml:"version"`
	Tags    map[string][]string `yaml:"tags"`
}

// ListFiles returns every *.yml/*.yaml file name in dir, including
// rules.yml, sorted for determinism. Used by the Reindex Pipeline to detect
// graph-file changes during incremental reindex.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO(err, "read graph directory %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml") {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Load parses every *.yml/*.yaml file in dir except rules.yml into node
// and edge records, then -- if a version-3 rules.yml is present -- merges
// its tags: block into the loaded nodes.
//
// A missing dir is not an error: an empty Graph is returned, mirroring the
// Rule Engine's "rule file absent -> zero violations" tolerance for the
// analogous case of an absent project.
func Load(dir string) (*Graph, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Graph{}, nil
		}
		return nil, errs.IO(err, "read graph directory %s", dir)
	}

	g := &Graph{}
	seenAt := map[string]string{}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "rules.yml" || name == "rules.yaml" {
			continue
		}
		if strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	for _, name := range files {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.IO(err, "read graph file %s", path)
		}
		var gf graphFile
		if err := yaml.Unmarshal(data, &gf); err != nil {
			return nil, errs.Configuration(path, 0, "malformed YAML: %v", err)
		}
		for _, raw := range gf.Nodes {
			n, err := parseNode(raw, path)
			if err != nil {
				return nil, err
			}
			if prevFile, ok := seenAt[n.RefID]; ok {
				return nil, errs.Configuration(path, 0, "duplicate ref_id %q (also defined in %s)", n.RefID, prevFile)
			}
			seenAt[n.RefID] = path
			g.Nodes = append(g.Nodes, n)
		}
		for _, e := range gf.Edges {
			if e.Src == "" || e.Dst == "" {
				return nil, errs.Configuration(path, 0, "edge missing src or dst")
			}
			if !model.ValidEdgeKind(model.EdgeKind(e.Kind)) {
				return nil, errs.Configuration(path, 0, "unknown edge kind %q", e.Kind)
			}
			g.Edges = append(g.Edges, model.Edge{SrcRefID: e.Src, DstRefID: e.Dst, Kind: model.EdgeKind(e.Kind)})
		}
	}

	for _, name := range []string{"rules.yml", "rules.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errs.IO(err, "read %s", path)
		}
		if err := mergeTagsBlock(data, path, g); err != nil {
			return nil, err
		}
		break
	}

	return g, nil
}

func parseNode(raw map[string]any, path string) (model.Node, error) {
	var n model.Node

	refID, _ := raw["ref_id"].(string)
	if refID == "" {
		return n, errs.Configuration(path, 0, "node missing required ref_id")
	}
	n.RefID = refID

	kindStr, _ := raw["kind"].(string)
	n.Kind = model.NodeKind(kindStr)
	if !model.ValidNodeKind(n.Kind) {
		return n, errs.Configuration(path, 0, "node %q has unknown kind %q", refID, kindStr)
	}

	if s, ok := raw["summary"].(string); ok {
		n.Summary = s
	}
	if s, ok := raw["source"].(string); ok {
		n.Source = s
	}
	if s, ok := raw["c4_level"].(string); ok {
		n.Extra.C4Level = s
	}
	n.Extra.Docs = toStringSlice(raw["docs"])
	n.Extra.Tags = toStringSlice(raw["tags"])
	n.Extra.Links = toLinks(raw["links"])

	other := map[string]any{}
	for k, v := range raw {
		if knownNodeFields[k] {
			continue
		}
		other[k] = v
	}
	if len(other) > 0 {
		n.Extra.Other = other
	}
	return n, nil
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toLinks(v any) []model.Link {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]model.Link, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var l model.Link
		if u, ok := m["url"].(string); ok {
			l.URL = u
		}
		if lbl, ok := m["label"].(string); ok {
			l.Label = lbl
		}
		out = append(out, l)
	}
	return out
}

// mergeTagsBlock parses a version-3 rules.yml's top-level tags: mapping and
// pushes each tag into the matching nodes' extra.tags.
// Non-version-3 rule files are silently ignored here (the Rule Engine
// handles versions 1/2 on its own pass).
func mergeTagsBlock(data []byte, path string, g *Graph) error {
	var rf rulesTagsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return errs.Configuration(path, 0, "malformed YAML: %v", err)
	}
	if rf.Version != 3 || len(rf.Tags) == 0 {
		return nil
	}
	byRef := make(map[string]*model.Node, len(g.Nodes))
	for i := range g.Nodes {
		byRef[g.Nodes[i].RefID] = &g.Nodes[i]
	}
	for tag, refIDs := range rf.Tags {
		for _, refID := range refIDs {
			n, ok := byRef[refID]
			if !ok {
				// Unknown ref_id inside a rules file tag block: skipped, not
				// fatal; ValidateRefs does not report it either.
				continue
			}
			n.Extra.AddTag(tag)
		}
	}
	return nil
}
