package codeindex

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/beadloom/beadloom/internal/model"
)

// routePattern matches one framework's route-declaring line. Group 1 is the
// HTTP method and group 2 the path; when methodFromLit is set, group 1 is the
// path and the method is literalMethod. The handler is not captured here:
// ExtractRoutes finds it with findHandlerName.
type routePattern struct {
	re            *regexp.Regexp
	methodFromLit bool // method comes from a literal in re, not a capture group
	literalMethod string
}

// routePatterns implements the framework secondary pass. Each entry is matched line-by-line across every
// source file regardless of extension: decorators are small, distinctive
// textual idioms, and a single regex pass finds them far more robustly
// across nine languages than nine separate tree-sitter queries would.
var routePatterns = []routePattern{
	// FastAPI: @app.get("/path")\ndef handler(...)
	{re: regexp.MustCompile(`@\w+\.(get|post|put|patch|delete)\(\s*["']([^"']+)["']`)},
	// Flask: @app.route("/path", methods=["GET"])
	{re: regexp.MustCompile(`@\w+\.route\(\s*["']([^"']+)["']`), methodFromLit: true, literalMethod: "GET"},
	// Express: router.get('/path', handler)
	{re: regexp.MustCompile(`\brouter\.(get|post|put|patch|delete)\(\s*["']([^"']+)["']`)},
	// NestJS: @Get('/path')
	{re: regexp.MustCompile(`@(Get|Post|Put|Patch|Delete)\(\s*["']?([^"')]*)["']?\s*\)`)},
	// Spring: @GetMapping("/path")
	{re: regexp.MustCompile(`@(Get|Post|Put|Patch|Delete)Mapping\(\s*["']([^"']+)["']`)},
	// Gin: r.GET("/path", handler)
	{re: regexp.MustCompile(`\br\.(GET|POST|PUT|PATCH|DELETE)\(\s*["']([^"']+)["']`)},
}

var handlerAfterRe = regexp.MustCompile(`(?:func|def|async function|function)\s+(\w+)`)

// ExtractRoutes scans source text for framework route decorators/annotations
// and returns one route symbol per match, with (method, path, handler)
// encoded on the symbol row. gRPC .proto service methods and GraphQL schema
// fields are handled by the dedicated matchers below rather than
// routePatterns, since their syntax carries no HTTP verb.
func ExtractRoutes(relPath string, content []byte) []model.CodeSymbol {
	var out []model.CodeSymbol
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		for _, rp := range routePatterns {
			m := rp.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			var method, path string
			if rp.methodFromLit {
				method = rp.literalMethod
				path = m[1]
			} else {
				method = strings.ToUpper(m[1])
				path = m[2]
			}
			handler := findHandlerName(lines, i)
			out = append(out, model.CodeSymbol{
				FilePath:     relPath,
				SymbolName:   handler,
				Kind:         model.SymbolRoute,
				LineStart:    i + 1,
				LineEnd:      i + 1,
				Language:     languageNameForExt(filepath.Ext(relPath)),
				RouteMethod:  method,
				RoutePath:    path,
				RouteHandler: handler,
			})
		}
	}
	out = append(out, extractProtoRPCs(relPath, lines)...)
	out = append(out, extractGraphQLFields(relPath, lines)...)
	return out
}

// findHandlerName looks at the decorator line itself and the next few lines
// for a function/method definition, matching the decorator-then-definition
// idiom common to Python, TS and Java route frameworks.
func findHandlerName(lines []string, from int) string {
	for i := from; i < len(lines) && i < from+3; i++ {
		if m := handlerAfterRe.FindStringSubmatch(lines[i]); m != nil {
			return m[1]
		}
	}
	return ""
}

var protoRPCRe = regexp.MustCompile(`\brpc\s+(\w+)\s*\(`)

func extractProtoRPCs(relPath string, lines []string) []model.CodeSymbol {
	if filepath.Ext(relPath) != ".proto" {
		return nil
	}
	var out []model.CodeSymbol
	for i, line := range lines {
		m := protoRPCRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, model.CodeSymbol{
			FilePath:     relPath,
			SymbolName:   m[1],
			Kind:         model.SymbolRoute,
			LineStart:    i + 1,
			LineEnd:      i + 1,
			Language:     "protobuf",
			RouteMethod:  "RPC",
			RoutePath:    m[1],
			RouteHandler: m[1],
		})
	}
	return out
}

var graphqlFieldRe = regexp.MustCompile(`^\s*(\w+)\s*(?:\([^)]*\))?\s*:\s*\S+`)
var graphqlTypeRe = regexp.MustCompile(`\btype\s+(Query|Mutation|Subscription)\b`)

func extractGraphQLFields(relPath string, lines []string) []model.CodeSymbol {
	if !strings.HasSuffix(relPath, ".graphql") && !strings.HasSuffix(relPath, ".gql") {
		return nil
	}
	var out []model.CodeSymbol
	inRootType := false
	for i, line := range lines {
		if m := graphqlTypeRe.FindStringSubmatch(line); m != nil {
			inRootType = true
			continue
		}
		if inRootType {
			if strings.Contains(line, "}") {
				inRootType = false
				continue
			}
			if m := graphqlFieldRe.FindStringSubmatch(line); m != nil {
				out = append(out, model.CodeSymbol{
					FilePath:     relPath,
					SymbolName:   m[1],
					Kind:         model.SymbolRoute,
					LineStart:    i + 1,
					LineEnd:      i + 1,
					Language:     "graphql",
					RouteMethod:  "QUERY",
					RoutePath:    m[1],
					RouteHandler: m[1],
				})
			}
		}
	}
	return out
}

func languageNameForExt(ext string) string {
	if spec, ok := languagesByExt[ext]; ok {
		return spec.name
	}
	return ""
}
