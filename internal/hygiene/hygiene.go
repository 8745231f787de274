// Package hygiene assigns scope-resolved identities to identifiers.
//
// Every lexical scope of a module is numbered with a Mark in traversal
// order: the module scope is TopLevelMark and nested scopes count up from
// there. A binding identifier carries the mark of the scope that declares
// it, and a reference carries the mark of the binding it resolves to, or
// Unresolved when it names a global. Two identifiers denote the same
// binding exactly when their Ids are equal.
package hygiene

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/macroscan/internal/syntax"
)

// Mark identifies a lexical scope.
type Mark uint32

const (
	// Unresolved marks references with no visible binding.
	Unresolved Mark = 0
	// TopLevelMark is the mark of the module scope.
	TopLevelMark Mark = 1
)

// Id is a hygienic identifier: a name paired with the scope that binds it.
type Id struct {
	Sym  string
	Mark Mark
}

func (id Id) String() string {
	return fmt.Sprintf("%s#%d", id.Sym, id.Mark)
}

// Bindings holds the marks computed by Resolve for one module.
type Bindings struct {
	src   []byte
	marks map[uint32]Mark
}

// Ident returns the hygienic identity of an identifier node. Nodes the
// resolver never visited (property names, type names) come back
// Unresolved.
func (b *Bindings) Ident(n *sitter.Node) Id {
	return Id{Sym: syntax.NodeText(n, b.src), Mark: b.marks[n.StartByte()]}
}

// Resolve runs both resolver passes over a parsed module. The first pass
// numbers scopes and declares every binding, so hoisted var and function
// declarations are visible to references that precede them. The second
// pass resolves every remaining identifier through the scope chain.
func Resolve(root *sitter.Node, src []byte) *Bindings {
	r := &resolver{
		src:    src,
		marks:  make(map[uint32]Mark),
		scopes: make(map[scopeKey]*scope),
		next:   TopLevelMark + 1,
	}
	module := &scope{mark: TopLevelMark, function: true, names: make(map[string]struct{})}

	r.visitChildren(root, module)
	r.resolving = true
	r.visitChildren(root, module)

	return &Bindings{src: src, marks: r.marks}
}
