package hygiene

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/macroscan/internal/syntax"
)

type scope struct {
	parent   *scope
	mark     Mark
	function bool // var declarations hoist to the nearest function scope
	names    map[string]struct{}
}

func (s *scope) lookup(name string) Mark {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.names[name]; ok {
			return cur.mark
		}
	}
	return Unresolved
}

func (s *scope) functionScope() *scope {
	cur := s
	for !cur.function && cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// scopeKey locates a scope-creating node across both passes. slot separates
// the name scope of a named function or class expression from its body.
type scopeKey struct {
	start, end uint32
	typ        string
	slot       uint8
}

type resolver struct {
	src       []byte
	marks     map[uint32]Mark
	scopes    map[scopeKey]*scope
	next      Mark
	resolving bool
}

// enter creates the scope for n during the declare pass and returns the
// same scope during the resolve pass.
func (r *resolver) enter(n *sitter.Node, slot uint8, parent *scope, function bool) *scope {
	key := scopeKey{start: n.StartByte(), end: n.EndByte(), typ: n.Type(), slot: slot}
	if r.resolving {
		if s, ok := r.scopes[key]; ok {
			return s
		}
	}
	s := &scope{parent: parent, mark: r.next, function: function, names: make(map[string]struct{})}
	r.next++
	r.scopes[key] = s
	return s
}

func (r *resolver) declare(n *sitter.Node, s *scope) {
	if r.resolving || n == nil {
		return
	}
	s.names[syntax.NodeText(n, r.src)] = struct{}{}
	r.marks[n.StartByte()] = s.mark
}

func (r *resolver) reference(n *sitter.Node, s *scope) {
	if !r.resolving {
		return
	}
	if _, bound := r.marks[n.StartByte()]; bound {
		return
	}
	r.marks[n.StartByte()] = s.lookup(syntax.NodeText(n, r.src))
}

func (r *resolver) visitChildren(n *sitter.Node, s *scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		r.visit(n.NamedChild(i), s)
	}
}

func (r *resolver) visit(n *sitter.Node, s *scope) {
	if n == nil || syntax.IsTypeOnly(n) {
		return
	}

	switch n.Type() {
	case "identifier", "shorthand_property_identifier", "shorthand_property_identifier_pattern":
		r.reference(n, s)

	case "import_statement":
		r.declareImports(n, s)

	case "export_statement":
		r.visitExport(n, s)

	case "lexical_declaration":
		r.declareDeclarators(n, s)
		r.visitChildren(n, s)

	case "variable_declaration":
		r.declareDeclarators(n, s.functionScope())
		r.visitChildren(n, s)

	case "function_declaration", "generator_function_declaration":
		r.declare(n.ChildByFieldName("name"), s)
		r.visitFunction(n, r.enter(n, 0, s, true))

	case "function", "function_expression", "generator_function":
		outer := s
		if name := n.ChildByFieldName("name"); name != nil {
			outer = r.enter(n, 1, s, false)
			r.declare(name, outer)
		}
		r.visitFunction(n, r.enter(n, 0, outer, true))

	case "arrow_function", "method_definition":
		r.visitFunction(n, r.enter(n, 0, s, true))

	case "class_declaration", "abstract_class_declaration":
		r.declare(n.ChildByFieldName("name"), s)
		r.visitChildren(n, r.enter(n, 0, s, false))

	case "class":
		cs := r.enter(n, 0, s, false)
		r.declare(n.ChildByFieldName("name"), cs)
		r.visitChildren(n, cs)

	case "class_static_block":
		r.visitBody(n, r.enter(n, 0, s, true))

	case "enum_declaration":
		r.declare(n.ChildByFieldName("name"), s)
		r.visitChildren(n, s)

	case "internal_module", "module":
		if name := n.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			r.declare(name, s)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			r.visit(body, s)
		}

	case "statement_block", "switch_body", "for_statement":
		r.visitChildren(n, r.enter(n, 0, s, false))

	case "for_in_statement":
		r.visitForIn(n, s)

	case "catch_clause":
		cs := r.enter(n, 0, s, false)
		if param := n.ChildByFieldName("parameter"); param != nil && !r.resolving {
			r.declarePattern(param, cs)
		}
		r.visitBody(n, cs)

	default:
		r.visitChildren(n, s)
	}
}

// visitFunction declares the parameters of a function-like node in fs and
// visits its body without opening another block scope.
func (r *resolver) visitFunction(n *sitter.Node, fs *scope) {
	if !r.resolving {
		if params := n.ChildByFieldName("parameters"); params != nil {
			for i := 0; i < int(params.NamedChildCount()); i++ {
				r.declarePattern(params.NamedChild(i), fs)
			}
		}
		if param := n.ChildByFieldName("parameter"); param != nil {
			r.declarePattern(param, fs)
		}
	}
	r.visitBody(n, fs)
}

// visitBody visits the children of n in s, inlining a statement_block body
// so that it shares s instead of opening a nested block scope.
func (r *resolver) visitBody(n *sitter.Node, s *scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "statement_block" {
			r.visitChildren(c, s)
			continue
		}
		r.visit(c, s)
	}
}

func (r *resolver) visitForIn(n *sitter.Node, s *scope) {
	fs := r.enter(n, 0, s, false)
	if left := n.ChildByFieldName("left"); left != nil && !r.resolving {
		switch {
		case syntax.HasToken(n, "var"):
			r.declarePattern(left, fs.functionScope())
		case syntax.HasToken(n, "let"), syntax.HasToken(n, "const"), syntax.HasToken(n, "using"):
			r.declarePattern(left, fs)
		}
	}
	r.visitChildren(n, fs)
}

func (r *resolver) visitExport(n *sitter.Node, s *scope) {
	if n.ChildByFieldName("source") != nil {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "export_clause":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				spec := c.NamedChild(j)
				if spec.Type() != "export_specifier" {
					continue
				}
				if name := spec.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
					r.reference(name, s)
				}
			}
		case "namespace_export":
		default:
			r.visit(c, s)
		}
	}
}

func (r *resolver) declareImports(n *sitter.Node, s *scope) {
	if r.resolving {
		return
	}
	syntax.Walk(n, func(c *sitter.Node) bool {
		switch c.Type() {
		case "import_clause":
			for i := 0; i < int(c.NamedChildCount()); i++ {
				if id := c.NamedChild(i); id.Type() == "identifier" {
					r.declare(id, s)
				}
			}
		case "namespace_import", "import_require_clause":
			for i := 0; i < int(c.NamedChildCount()); i++ {
				if id := c.NamedChild(i); id.Type() == "identifier" {
					r.declare(id, s)
					break
				}
			}
			return false
		case "import_specifier":
			local := c.ChildByFieldName("alias")
			if local == nil {
				local = c.ChildByFieldName("name")
			}
			if local != nil && local.Type() == "identifier" {
				r.declare(local, s)
			}
			return false
		case "string", "import_attribute", "import_assertion":
			return false
		}
		return true
	})
}

func (r *resolver) declareDeclarators(n *sitter.Node, s *scope) {
	if r.resolving {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		d := n.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		r.declarePattern(d.ChildByFieldName("name"), s)
	}
}

// declarePattern declares every binding identifier introduced by a binding
// pattern. Default values and computed keys are left to the resolve pass.
func (r *resolver) declarePattern(n *sitter.Node, s *scope) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		r.declare(n, s)
	case "required_parameter", "optional_parameter":
		r.declarePattern(n.ChildByFieldName("pattern"), s)
	case "assignment_pattern", "object_assignment_pattern":
		r.declarePattern(n.ChildByFieldName("left"), s)
	case "pair_pattern":
		r.declarePattern(n.ChildByFieldName("value"), s)
	case "array_pattern", "object_pattern", "rest_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			r.declarePattern(n.NamedChild(i), s)
		}
	}
}
