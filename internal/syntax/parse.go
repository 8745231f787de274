// Package syntax parses JavaScript and TypeScript modules with tree-sitter
// and reports malformed input as structured errors.
package syntax

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrSyntax is wrapped by every ParseError.
var ErrSyntax = errors.New("syntax error")

// ParseError describes the first malformed construct in a module.
// Line and Column are 1-based; Offset is a zero-based byte offset.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Offset  uint32
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
}

func (e *ParseError) Unwrap() error { return ErrSyntax }

// Module is a parsed source file. Close releases the tree.
type Module struct {
	Path    string
	Source  []byte
	Dialect Dialect
	Tree    *sitter.Tree
}

// Root returns the program node.
func (m *Module) Root() *sitter.Node {
	return m.Tree.RootNode()
}

// Close releases the underlying tree-sitter tree.
func (m *Module) Close() {
	if m.Tree != nil {
		m.Tree.Close()
		m.Tree = nil
	}
}

// Parse parses src with the dialect selected by path's extension. The whole
// operation fails if the tree contains any syntax error; no partial module
// is returned.
func Parse(ctx context.Context, path string, src []byte) (*Module, error) {
	dialect := DialectForPath(path)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(dialect.Language())

	tree, err := parser.ParseCtx(ctx, nil, legacyAssertToWith(src))
	if err != nil {
		return nil, fmt.Errorf("syntax: parse %s: %w", path, err)
	}

	root := tree.RootNode()
	if root.HasError() {
		perr := firstError(root, src)
		perr.Path = path
		tree.Close()
		return nil, perr
	}
	if !dialect.JSX {
		if n := firstJSX(root); n != nil {
			tree.Close()
			return nil, newParseError(path, n, "JSX syntax is not enabled for "+dialect.String()+" files")
		}
	}

	return &Module{Path: path, Source: src, Dialect: dialect, Tree: tree}, nil
}

// legacyAssert matches the legacy `assert` keyword of an import attribute
// clause: a string literal, then on the same line the keyword and an
// opening brace.
var legacyAssert = regexp.MustCompile(`["'][ \t]*(assert)\s*\{`)

// legacyAssertToWith rewrites `"m" assert {` to `"m" with   {` so the grammar,
// which only knows the `with` form, accepts legacy import assertions. The
// keyword is padded to its original width, so every byte offset is kept.
// A match inside a string, template or comment only changes that literal's
// text; the tree keeps the original shape and node text is always read from
// the original source.
func legacyAssertToWith(src []byte) []byte {
	locs := legacyAssert.FindAllSubmatchIndex(src, -1)
	if len(locs) == 0 {
		return src
	}
	out := make([]byte, len(src))
	copy(out, src)
	for _, loc := range locs {
		copy(out[loc[2]:loc[3]], "with  ")
	}
	return out
}

// firstError finds the first ERROR or MISSING node in document order.
func firstError(n *sitter.Node, src []byte) *ParseError {
	if bad := findError(n); bad != nil {
		if bad.IsMissing() {
			return newParseError("", bad, fmt.Sprintf("expected %q", bad.Type()))
		}
		text := NodeText(bad, src)
		if len(text) > 20 {
			text = text[:20] + "..."
		}
		return newParseError("", bad, fmt.Sprintf("unexpected %q", strings.TrimSpace(text)))
	}
	return newParseError("", n, "invalid syntax")
}

func findError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := findError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}

func firstJSX(n *sitter.Node) *sitter.Node {
	var found *sitter.Node
	Walk(n, func(c *sitter.Node) bool {
		if found != nil {
			return false
		}
		switch c.Type() {
		case "jsx_element", "jsx_self_closing_element", "jsx_fragment":
			found = c
			return false
		}
		return true
	})
	return found
}

func newParseError(path string, n *sitter.Node, msg string) *ParseError {
	pt := n.StartPoint()
	return &ParseError{
		Path:    path,
		Line:    int(pt.Row) + 1,
		Column:  int(pt.Column) + 1,
		Offset:  n.StartByte(),
		Message: msg,
	}
}
