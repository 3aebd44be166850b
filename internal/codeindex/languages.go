package codeindex

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/swift"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// langSpec describes how to walk one language's tree-sitter grammar to find
// function, method, class and test symbols. Objective-C has
// no dedicated smacker/go-tree-sitter grammar; .m files are parsed with the
// C grammar, which recovers the C-superset constructs (functions, structs)
// and tolerates the rest as error nodes.
type langSpec struct {
	name          string
	get           func() *sitter.Language
	functionTypes []string
	methodTypes   []string
	classTypes    []string
	receiverField string // non-empty field name marks a functionType as a method
	commentTypes  []string
}

var languagesByExt = map[string]langSpec{
	".go": {
		name: "go", get: golang.GetLanguage,
		functionTypes: []string{"function_declaration", "method_declaration"},
		classTypes:    []string{"type_spec"},
		receiverField: "receiver",
		commentTypes:  []string{"comment"},
	},
	".py": {
		name: "python", get: python.GetLanguage,
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"class_definition"},
		commentTypes:  []string{"comment"},
	},
	".js": {
		name: "javascript", get: javascript.GetLanguage,
		functionTypes: []string{"function_declaration", "method_definition", "function"},
		classTypes:    []string{"class_declaration"},
		commentTypes:  []string{"comment"},
	},
	".jsx": {
		name: "javascript", get: javascript.GetLanguage,
		functionTypes: []string{"function_declaration", "method_definition", "function"},
		classTypes:    []string{"class_declaration"},
		commentTypes:  []string{"comment"},
	},
	".ts": {
		name: "typescript", get: typescript.GetLanguage,
		functionTypes: []string{"function_declaration", "method_definition", "function"},
		classTypes:    []string{"class_declaration", "interface_declaration"},
		commentTypes:  []string{"comment"},
	},
	".tsx": {
		name: "tsx", get: tsx.GetLanguage,
		functionTypes: []string{"function_declaration", "method_definition", "function"},
		classTypes:    []string{"class_declaration", "interface_declaration"},
		commentTypes:  []string{"comment"},
	},
	".rs": {
		name: "rust", get: rust.GetLanguage,
		functionTypes: []string{"function_item"},
		classTypes:    []string{"struct_item", "enum_item", "trait_item"},
		commentTypes:  []string{"line_comment", "block_comment"},
	},
	".java": {
		name: "java", get: java.GetLanguage,
		functionTypes: []string{"method_declaration", "constructor_declaration"},
		classTypes:    []string{"class_declaration", "interface_declaration"},
		// Comment node names vary across grammar vintages; accept both shapes.
		commentTypes: []string{"comment", "line_comment", "block_comment"},
	},
	".kt": {
		name: "kotlin", get: kotlin.GetLanguage,
		functionTypes: []string{"function_declaration"},
		classTypes:    []string{"class_declaration", "object_declaration"},
		commentTypes:  []string{"comment", "line_comment", "multiline_comment"},
	},
	".swift": {
		name: "swift", get: swift.GetLanguage,
		functionTypes: []string{"function_declaration"},
		classTypes:    []string{"class_declaration", "protocol_declaration"},
		commentTypes:  []string{"comment", "multiline_comment"},
	},
	".c": {
		name: "c", get: c.GetLanguage,
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"struct_specifier"},
		commentTypes:  []string{"comment"},
	},
	".h": {
		name: "c", get: c.GetLanguage,
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"struct_specifier"},
		commentTypes:  []string{"comment"},
	},
	".m": {
		name: "objc", get: c.GetLanguage,
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"struct_specifier"},
		commentTypes:  []string{"comment"},
	},
	".cpp": {
		name: "cpp", get: cpp.GetLanguage,
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"class_specifier", "struct_specifier"},
		commentTypes:  []string{"comment"},
	},
	".cc": {
		name: "cpp", get: cpp.GetLanguage,
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"class_specifier", "struct_specifier"},
		commentTypes:  []string{"comment"},
	},
	".hpp": {
		name: "cpp", get: cpp.GetLanguage,
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"class_specifier", "struct_specifier"},
		commentTypes:  []string{"comment"},
	},
}

// routeOnlyExts are schema files with no tree-sitter grammar here but whose
// route declarations the framework pass extracts.
var routeOnlyExts = map[string]bool{
	".proto":   true,
	".graphql": true,
	".gql":     true,
}

// SupportedExt reports whether a file extension (with leading dot) has a
// registered grammar or a route-only extractor.
func SupportedExt(ext string) bool {
	if routeOnlyExts[ext] {
		return true
	}
	_, ok := languagesByExt[ext]
	return ok
}
