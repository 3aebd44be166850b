// Package codeindex implements the Code Indexer: multi-language tree-sitter
// symbol extraction plus the framework route-decorator secondary pass. A
// single generic walk driven by the per-language data table (languagesByExt)
// serves every grammar instead of one hand-written switch per language.
package codeindex

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/model"
)

var annotationRe = regexp.MustCompile(`beadloom:([a-zA-Z_][\w]*)=(\S+)`)

var testNameRe = regexp.MustCompile(`(?i)(^test[_A-Z]|^test$|_test$|test$)`)

// Parser extracts code symbols from source files using pooled, per-language
// tree-sitter parsers.
type Parser struct {
	mu      sync.Mutex
	parsers map[string]*sitter.Parser
}

// NewParser returns a Parser with no grammars loaded yet; each language's
// *sitter.Parser is created lazily on first use and reused thereafter.
func NewParser() *Parser {
	return &Parser{parsers: map[string]*sitter.Parser{}}
}

// Close releases every parser created by this Parser.
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sp := range p.parsers {
		sp.Close()
	}
	p.parsers = map[string]*sitter.Parser{}
}

func (p *Parser) parserFor(spec langSpec) *sitter.Parser {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok := p.parsers[spec.name]; ok {
		return sp
	}
	sp := sitter.NewParser()
	sp.SetLanguage(spec.get())
	p.parsers[spec.name] = sp
	return sp
}

// ParseFile extracts symbols from one file's content. relPath is used only
// to populate CodeSymbol.FilePath and is not read from disk here. Unknown
// extensions and parse failures return (nil, nil): the caller logs and
// skips.
func (p *Parser) ParseFile(relPath string, content []byte) ([]model.CodeSymbol, error) {
	if !utf8.Valid(content) {
		logging.Code("skip %s: invalid UTF-8", relPath)
		return nil, nil
	}
	spec, ok := languagesByExt[filepath.Ext(relPath)]
	if !ok {
		return nil, nil
	}

	sp := p.parserFor(spec)
	tree, err := sp.ParseCtx(context.Background(), nil, content)
	if err != nil {
		logging.Code("skip %s: parse error: %v", relPath, err)
		return nil, nil
	}
	defer tree.Close()

	isTestFile := strings.Contains(relPath, "_test.") || strings.Contains(relPath, ".test.") ||
		strings.Contains(relPath, ".spec.") || strings.Contains(filepath.Base(filepath.Dir(relPath)), "test")

	var symbols []model.CodeSymbol
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		nodeType := n.Type()
		switch {
		case containsStr(spec.functionTypes, nodeType):
			if sym, ok := extractFunctionLike(n, content, relPath, spec, isTestFile); ok {
				symbols = append(symbols, sym)
			}
		case containsStr(spec.classTypes, nodeType):
			if sym, ok := extractClassLike(n, content, relPath, spec); ok {
				symbols = append(symbols, sym)
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())
	return symbols, nil
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func extractFunctionLike(n *sitter.Node, content []byte, relPath string, spec langSpec, isTestFile bool) (model.CodeSymbol, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeSymbol{}, false
	}
	name := nameNode.Content(content)
	if name == "" {
		return model.CodeSymbol{}, false
	}

	kind := model.SymbolFunction
	if spec.receiverField != "" && n.ChildByFieldName(spec.receiverField) != nil {
		kind = model.SymbolMethod
	}
	if isTestFile && testNameRe.MatchString(name) {
		kind = model.SymbolTest
	}

	return model.CodeSymbol{
		FilePath:    relPath,
		SymbolName:  name,
		Kind:        kind,
		LineStart:   int(n.StartPoint().Row) + 1,
		LineEnd:     int(n.EndPoint().Row) + 1,
		Language:    spec.name,
		Annotations: leadingAnnotations(n, content, spec),
	}, true
}

func extractClassLike(n *sitter.Node, content []byte, relPath string, spec langSpec) (model.CodeSymbol, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeSymbol{}, false
	}
	name := nameNode.Content(content)
	if name == "" {
		return model.CodeSymbol{}, false
	}
	return model.CodeSymbol{
		FilePath:    relPath,
		SymbolName:  name,
		Kind:        model.SymbolClass,
		LineStart:   int(n.StartPoint().Row) + 1,
		LineEnd:     int(n.EndPoint().Row) + 1,
		Language:    spec.name,
		Annotations: leadingAnnotations(n, content, spec),
	}, true
}

// leadingAnnotations scans the comment nodes immediately preceding n (its
// previous named siblings, stopping at the first non-comment) for
// beadloom:key=value pairs.
func leadingAnnotations(n *sitter.Node, content []byte, spec langSpec) map[string]string {
	var out map[string]string
	cur := n.PrevNamedSibling()
	for cur != nil && containsStr(spec.commentTypes, cur.Type()) {
		for _, m := range annotationRe.FindAllStringSubmatch(cur.Content(content), -1) {
			if out == nil {
				out = map[string]string{}
			}
			out[m[1]] = m[2]
		}
		cur = cur.PrevNamedSibling()
	}
	return out
}
