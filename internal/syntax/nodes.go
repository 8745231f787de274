package syntax

import sitter "github.com/smacker/go-tree-sitter"

// NodeText returns the source text of a tree-sitter node.
func NodeText(n *sitter.Node, src []byte) string {
	return string(src[n.StartByte():n.EndByte()])
}

// Walk visits n and its descendants in pre-order. Children of a node are
// skipped when fn returns false for it.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		Walk(n.NamedChild(i), fn)
	}
}

// HasToken reports whether n has a direct anonymous child with the given
// text, such as the "default" keyword of an export statement.
func HasToken(n *sitter.Node, token string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() && c.Type() == token {
			return true
		}
	}
	return false
}

// StringValue returns the contents of a string literal node without its
// quotes.
func StringValue(n *sitter.Node, src []byte) string {
	text := NodeText(n, src)
	if len(text) >= 2 {
		q := text[0]
		if (q == '"' || q == '\'') && text[len(text)-1] == q {
			return text[1 : len(text)-1]
		}
	}
	return text
}

// typeOnly lists TypeScript node kinds that never bind or reference runtime
// values.
var typeOnly = map[string]bool{
	"type_annotation":           true,
	"type_arguments":            true,
	"type_parameters":           true,
	"type_identifier":           true,
	"type_query":                true,
	"interface_declaration":     true,
	"type_alias_declaration":    true,
	"implements_clause":         true,
	"ambient_declaration":       true,
	"function_signature":        true,
	"abstract_method_signature": true,
	"method_signature":          true,
	"index_signature":           true,
	"asserts_annotation":        true,
	"type_predicate_annotation": true,
	"opting_type_annotation":    true,
	"omitting_type_annotation":  true,
	"adding_type_annotation":    true,
	"predefined_type":           true,
}

// IsTypeOnly reports whether n is a type-level construct.
func IsTypeOnly(n *sitter.Node) bool {
	t := n.Type()
	if typeOnly[t] {
		return true
	}
	return len(t) > 5 && t[len(t)-5:] == "_type"
}
