package syntax

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Dialect selects the grammar a module is parsed with.
type Dialect struct {
	TypeScript bool
	JSX        bool
}

// Canonical dialects.
var (
	JavaScript    = Dialect{}
	JavaScriptJSX = Dialect{JSX: true}
	TypeScript    = Dialect{TypeScript: true}
	TSX           = Dialect{TypeScript: true, JSX: true}
)

// extToDialect maps file extensions to dialects. Extensions not listed here
// fall back to TSX.
var extToDialect = map[string]Dialect{
	".ts":   TypeScript,
	".mts":  TypeScript,
	".mtsx": TSX,
	".js":   JavaScript,
	".mjs":  JavaScript,
	".cjs":  JavaScript,
	".jsx":  JavaScriptJSX,
	".mjsx": JavaScriptJSX,
	".cjsx": JavaScriptJSX,
}

// scannable lists the extensions the engine picks up during discovery.
// Any path is accepted by Parse; discovery only needs a finite set.
var scannable = map[string]bool{
	".ts": true, ".mts": true, ".mtsx": true, ".tsx": true,
	".js": true, ".mjs": true, ".cjs": true,
	".jsx": true, ".mjsx": true, ".cjsx": true,
}

// DialectForPath returns the dialect for a file path based on its
// extension. Unknown extensions default to TypeScript with JSX.
func DialectForPath(path string) Dialect {
	if d, ok := extToDialect[filepath.Ext(path)]; ok {
		return d
	}
	return TSX
}

// IsScannable reports whether discovery should pick up the file.
func IsScannable(path string) bool {
	return scannable[strings.ToLower(filepath.Ext(path))]
}

// String returns the dialect's name as stored in the cache.
func (d Dialect) String() string {
	switch d {
	case TypeScript:
		return "typescript"
	case TSX:
		return "tsx"
	case JavaScriptJSX:
		return "jsx"
	default:
		return "javascript"
	}
}

// grammars is lazily initialized on first call via sync.Once.
var (
	grammars     map[string]*sitter.Language
	grammarsOnce sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		grammars = map[string]*sitter.Language{
			"javascript": javascript.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
		}
	})
}

// Language returns the tree-sitter grammar for the dialect. The JavaScript
// grammar always accepts JSX; Parse rejects JSX for non-JSX dialects.
func (d Dialect) Language() *sitter.Language {
	initGrammars()
	switch {
	case d.TypeScript && d.JSX:
		return grammars["tsx"]
	case d.TypeScript:
		return grammars["typescript"]
	default:
		return grammars["javascript"]
	}
}
