// Package importresolve implements the Import Resolver: extracting raw
// import statements with tree-sitter, resolving each to a ref_id via
// annotation lookup or source-prefix matching, and deriving depends_on
// edges between the owning nodes.
package importresolve

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/beadloom/beadloom/internal/config"
	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/model"
	"github.com/beadloom/beadloom/internal/store"
)

var rustStdCrates = map[string]bool{"std": true, "core": true, "alloc": true}

type importLangSpec struct {
	name string
	get  func() *sitter.Language
}

var importLangs = map[string]importLangSpec{
	".go":  {name: "go", get: golang.GetLanguage},
	".py":  {name: "python", get: python.GetLanguage},
	".js":  {name: "javascript", get: javascript.GetLanguage},
	".jsx": {name: "javascript", get: javascript.GetLanguage},
	".ts":  {name: "typescript", get: typescript.GetLanguage},
	".tsx": {name: "tsx", get: tsx.GetLanguage},
	".rs":  {name: "rust", get: rust.GetLanguage},
}

// Resolver extracts and resolves imports for the code files under a
// project's configured scan roots.
type Resolver struct {
	conn *store.Conn
	cfg  *config.Config

	mu      sync.Mutex
	parsers map[string]*sitter.Parser
}

// New returns a Resolver bound to an open store connection and config.
func New(conn *store.Conn, cfg *config.Config) *Resolver {
	return &Resolver{conn: conn, cfg: cfg, parsers: map[string]*sitter.Parser{}}
}

// Close releases tree-sitter parsers created by this Resolver.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.parsers {
		p.Close()
	}
	r.parsers = map[string]*sitter.Parser{}
}

func (r *Resolver) parserFor(spec importLangSpec) *sitter.Parser {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.parsers[spec.name]; ok {
		return p
	}
	p := sitter.NewParser()
	p.SetLanguage(spec.get())
	r.parsers[spec.name] = p
	return p
}

// Extract parses one file's content and returns its raw imports, already
// filtered: relative imports, language stdlib and unaliased npm packages
// are skipped. relPath is used only to tag rows.
func (r *Resolver) Extract(relPath string, content []byte) []model.CodeImport {
	spec, ok := importLangs[filepath.Ext(relPath)]
	if !ok {
		return nil
	}
	p := r.parserFor(spec)
	tree, err := p.ParseCtx(context.Background(), nil, content)
	if err != nil {
		logging.Import("skip %s: parse error: %v", relPath, err)
		return nil
	}
	defer tree.Close()

	var raw []rawImport
	switch spec.name {
	case "go":
		raw = extractGoImports(tree.RootNode(), content)
	case "python":
		raw = extractPythonImports(tree.RootNode(), content)
	case "javascript", "typescript", "tsx":
		raw = extractJSImports(tree.RootNode(), content)
	case "rust":
		raw = extractRustImports(tree.RootNode(), content)
	}

	var out []model.CodeImport
	for _, im := range raw {
		if shouldSkipImport(im.path, spec.name, r.cfg) {
			continue
		}
		out = append(out, model.CodeImport{
			FilePath:   relPath,
			LineNumber: im.line,
			ImportPath: im.path,
		})
	}
	return out
}

type rawImport struct {
	path string
	line int
}

func extractGoImports(root *sitter.Node, content []byte) []rawImport {
	var out []rawImport
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "import_spec" {
			if path := n.ChildByFieldName("path"); path != nil {
				out = append(out, rawImport{
					path: strings.Trim(path.Content(content), `"`),
					line: int(n.StartPoint().Row) + 1,
				})
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return out
}

var pyImportRe = regexp.MustCompile(`^\s*(?:from\s+(\S+)\s+import|import\s+(\S+))`)

func extractPythonImports(root *sitter.Node, content []byte) []rawImport {
	var out []rawImport
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "import_statement" || n.Type() == "import_from_statement" {
			text := n.Content(content)
			if m := pyImportRe.FindStringSubmatch(text); m != nil {
				path := m[1]
				if path == "" {
					path = m[2]
				}
				out = append(out, rawImport{path: path, line: int(n.StartPoint().Row) + 1})
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return out
}

func extractJSImports(root *sitter.Node, content []byte) []rawImport {
	var out []rawImport
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() == "string" {
					out = append(out, rawImport{
						path: strings.Trim(child.Content(content), `"'`),
						line: int(n.StartPoint().Row) + 1,
					})
				}
			}
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn != nil && fn.Content(content) == "require" {
				args := n.ChildByFieldName("arguments")
				if args != nil && args.NamedChildCount() > 0 {
					arg := args.NamedChild(0)
					if arg.Type() == "string" {
						out = append(out, rawImport{
							path: strings.Trim(arg.Content(content), `"'`),
							line: int(n.StartPoint().Row) + 1,
						})
					}
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return out
}

func extractRustImports(root *sitter.Node, content []byte) []rawImport {
	var out []rawImport
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "use_declaration" {
			out = append(out, rawImport{path: n.Content(content), line: int(n.StartPoint().Row) + 1})
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return out
}

func shouldSkipImport(path, language string, cfg *config.Config) bool {
	if path == "" {
		return true
	}
	switch language {
	case "go":
		return !strings.Contains(path, "/")
	case "python":
		return strings.HasPrefix(path, ".")
	case "rust":
		trimmed := strings.TrimPrefix(path, "use ")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), ";")
		first := strings.SplitN(strings.TrimPrefix(trimmed, "crate::"), "::", 2)[0]
		first = strings.TrimPrefix(first, "super")
		if strings.HasPrefix(trimmed, "super::") || strings.HasPrefix(trimmed, "self::") {
			return true
		}
		return rustStdCrates[first]
	case "javascript", "typescript", "tsx":
		if strings.HasPrefix(path, ".") {
			return true
		}
		for alias := range cfg.ImportAliases {
			if strings.HasPrefix(path, alias) {
				return false
			}
		}
		// Bare npm package (no alias match, not relative): skip unless it
		// resolves under a configured scan root via an alias.
		return !strings.HasPrefix(path, "/")
	}
	return false
}

// aliasResolve rewrites an aliased import path (e.g. "@/billing/invoice")
// to its project-root-relative form ("src/billing/invoice") using cfg's
// configured aliases.
func aliasResolve(path string, cfg *config.Config) string {
	for alias, target := range cfg.ImportAliases {
		if strings.HasPrefix(path, alias) {
			return target + strings.TrimPrefix(path, alias)
		}
	}
	return path
}

// candidatePaths converts a dotted or slash-delimited import path into file
// path candidates under each scan root: both
// "path/foo.py"-style and "path/foo/__init__.py"-style layouts.
func candidatePaths(importPath string, scanRoots []string, cfg *config.Config) []string {
	resolved := aliasResolve(importPath, cfg)
	resolved = strings.ReplaceAll(resolved, ".", "/")
	var out []string
	for _, root := range scanRoots {
		base := filepath.ToSlash(filepath.Join(root, resolved))
		for _, ext := range []string{".py", ".go", ".ts", ".tsx", ".js", ".jsx", ".rs"} {
			out = append(out, base+ext)
		}
		out = append(out, base+"/__init__.py")
		out = append(out, base+"/index.ts")
		out = append(out, base+"/index.js")
	}
	return out
}

// Resolve tries the two resolution strategies in order: annotation lookup,
// then source-prefix matching.
func (r *Resolver) Resolve(importPath string) (string, error) {
	for _, cand := range candidatePaths(importPath, r.cfg.ScanPaths, r.cfg) {
		symbols, err := r.conn.SymbolsForFile(cand)
		if err != nil {
			return "", err
		}
		for _, kind := range []string{"domain", "feature", "service"} {
			for _, sym := range symbols {
				if value, ok := sym.Annotations[kind]; ok {
					if _, found, err := r.conn.GetNode(value); err == nil && found {
						return value, nil
					}
				}
			}
		}
	}

	candidates, err := r.conn.NodesBySourcePrefix("")
	if err != nil {
		return "", err
	}
	bare := strings.ReplaceAll(aliasResolve(importPath, r.cfg), ".", "/")
	paths := []string{filepath.ToSlash(bare)}
	for _, root := range r.cfg.ScanPaths {
		paths = append(paths, filepath.ToSlash(filepath.Join(root, bare)))
	}

	best := ""
	bestLen := -1
	for _, n := range candidates {
		src := strings.Trim(n.Source, "/")
		if src == "" {
			continue
		}
		for _, p := range paths {
			if p == src || strings.HasPrefix(p+"/", src+"/") {
				if len(src) > bestLen {
					bestLen = len(src)
					best = n.RefID
				}
			}
		}
	}
	return best, nil
}

// ResolveAll resolves every stored import row with an empty resolved_ref_id
// and writes back any newly-found resolution.
func (r *Resolver) ResolveAll(tx *sql.Tx) error {
	unresolved, err := r.conn.UnresolvedImports()
	if err != nil {
		return err
	}
	for _, im := range unresolved {
		refID, err := r.Resolve(im.ImportPath)
		if err != nil {
			return err
		}
		if refID == "" {
			continue
		}
		if err := store.SetImportResolution(tx, im.FilePath, im.LineNumber, im.ImportPath, refID); err != nil {
			return err
		}
	}
	return nil
}

// ownerOf returns the node whose Source is the deepest prefix match of
// filePath, used to derive depends_on edges' source endpoint.
func ownerOf(filePath string, nodes []model.Node) string {
	best := ""
	bestLen := -1
	for _, n := range nodes {
		src := strings.Trim(n.Source, "/")
		if src == "" {
			continue
		}
		if strings.HasPrefix(filePath+"/", src+"/") || filePath == src {
			if len(src) > bestLen {
				bestLen = len(src)
				best = n.RefID
			}
		}
	}
	return best
}

// DeriveEdges emits a depends_on edge for every distinct (owner, resolved)
// pair found in Code Imports, skipping self-edges.
func (r *Resolver) DeriveEdges(tx *sql.Tx) error {
	imports, err := r.conn.AllImports()
	if err != nil {
		return err
	}
	nodes, err := r.conn.AllNodes()
	if err != nil {
		return err
	}
	refSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		refSet[n.RefID] = true
	}
	seen := map[[2]string]bool{}
	for _, im := range imports {
		// Both endpoints must exist in nodes at commit time; a resolution
		// pointing at a since-deleted node is skipped, not an error.
		if im.ResolvedRefID == "" || !refSet[im.ResolvedRefID] {
			continue
		}
		owner := ownerOf(im.FilePath, nodes)
		if owner == "" || owner == im.ResolvedRefID {
			continue
		}
		key := [2]string{owner, im.ResolvedRefID}
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := store.UpsertEdge(tx, model.Edge{SrcRefID: owner, DstRefID: im.ResolvedRefID, Kind: model.EdgeDependsOn}); err != nil {
			return err
		}
	}
	return nil
}
