package collect

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/macroscan/internal/hygiene"
	"github.com/jward/macroscan/internal/syntax"
)

// Binding is one name introduced by a binding pattern.
type Binding struct {
	Id   hygiene.Id
	Span syntax.Span
}

// CollectFromPattern appends the bindings a pattern introduces to out. It
// returns true only when n is itself a plain identifier pattern.
//
// Nested patterns contribute only their directly reachable names: a rest
// or assignment pattern yields a binding when its target is a bare
// identifier, and key-value properties recurse into their value.
func CollectFromPattern(n *sitter.Node, b *hygiene.Bindings, out *[]Binding) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "identifier":
		*out = append(*out, bindingOf(n, b))
		return true

	case "required_parameter", "optional_parameter":
		return CollectFromPattern(n.ChildByFieldName("pattern"), b, out)

	case "array_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			CollectFromPattern(n.NamedChild(i), b, out)
		}

	case "rest_pattern":
		collectBare(n.NamedChild(0), b, out)

	case "assignment_pattern":
		collectBare(n.ChildByFieldName("left"), b, out)

	case "object_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			prop := n.NamedChild(i)
			switch prop.Type() {
			case "shorthand_property_identifier_pattern":
				*out = append(*out, bindingOf(prop, b))
			case "object_assignment_pattern":
				if left := prop.ChildByFieldName("left"); left != nil && left.Type() == "shorthand_property_identifier_pattern" {
					*out = append(*out, bindingOf(left, b))
				}
			case "pair_pattern":
				CollectFromPattern(prop.ChildByFieldName("value"), b, out)
			case "rest_pattern":
				collectBare(prop.NamedChild(0), b, out)
			}
		}
	}
	return false
}

func collectBare(n *sitter.Node, b *hygiene.Bindings, out *[]Binding) {
	if n != nil && n.Type() == "identifier" {
		*out = append(*out, bindingOf(n, b))
	}
}

func bindingOf(n *sitter.Node, b *hygiene.Bindings) Binding {
	return Binding{Id: b.Ident(n), Span: syntax.SpanOf(n)}
}
