package transform

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/macroscan/internal/collect"
	"github.com/jward/macroscan/internal/hygiene"
	"github.com/jward/macroscan/internal/syntax"
)

// Scan walks the whole module and returns one Replace per call whose callee
// is a bare identifier bound to a macro. Results are in source order of the
// call's start, and calls nested inside a matched call are reported too.
// Tagged templates, optional calls and member or parenthesised callees
// never match.
func Scan(root *sitter.Node, c *collect.Collector, cl *Classification, b *hygiene.Bindings) []Replace {
	s := &scanner{c: c, cl: cl, b: b, out: []Replace{}}
	if len(cl.Macros) == 0 {
		return s.out
	}
	syntax.Walk(root, s.visit)
	return s.out
}

type scanner struct {
	c   *collect.Collector
	cl  *Classification
	b   *hygiene.Bindings
	out []Replace
}

func (s *scanner) visit(n *sitter.Node) bool {
	if n.Type() != "call_expression" {
		return true
	}
	callee := n.ChildByFieldName("function")
	if callee == nil || callee.Type() != "identifier" {
		return true
	}
	if args := n.ChildByFieldName("arguments"); args == nil || args.Type() == "template_string" {
		return true
	}
	if isOptionalCall(n) {
		return true
	}

	id := s.b.Ident(callee)
	if !s.cl.IsMacro(id) {
		return true
	}
	imp := s.c.Imports[id]
	span := syntax.SpanOf(n)
	s.out = append(s.out, Replace{
		Lo:         span.Lo.Offset(),
		Hi:         span.Hi.Offset(),
		ImportSrc:  imp.Source,
		ImportName: imp.Specifier,
	})
	return true
}

// isOptionalCall reports whether n is an optional call such as f?.(). The
// grammar marks it with a bare "?." token between callee and arguments.
func isOptionalCall(n *sitter.Node) bool {
	return syntax.HasToken(n, "?.")
}
