// Package collect builds the module-wide symbol tables: every import with
// its assertion clause, every locally exported binding, and every
// non-exported top-level declaration.
package collect

import (
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/macroscan/internal/hygiene"
	"github.com/jward/macroscan/internal/syntax"
)

// ErrUnsupportedDefaultExport is returned for `export default` of a
// declaration that is neither a function nor a class.
var ErrUnsupportedDefaultExport = errors.New("unsupported default export declaration")

// ImportKind distinguishes the three import specifier forms.
type ImportKind int

const (
	Named ImportKind = iota
	All
	Default
)

func (k ImportKind) String() string {
	switch k {
	case All:
		return "all"
	case Default:
		return "default"
	default:
		return "named"
	}
}

// AssertEntry is one property of an import assertion clause, kept
// verbatim. Value is only meaningful when ValueIsString is set.
type AssertEntry struct {
	Key           string
	KeyIsIdent    bool
	Value         string
	ValueIsString bool
}

// Asserts is the ordered entry list of an assertion clause.
type Asserts []AssertEntry

// Type returns the value of the first `type` entry whose key is an
// identifier and whose value is a string literal.
func (a Asserts) Type() (string, bool) {
	for _, e := range a {
		if e.KeyIsIdent && e.Key == "type" && e.ValueIsString {
			return e.Value, true
		}
	}
	return "", false
}

// Import describes how a local binding was brought into the module.
// Specifier is "*" for namespace imports and "default" for default imports.
// DeclSpan covers the whole import declaration and is the dummy span for
// synthetic imports. Asserts is nil when no assertion clause is present.
type Import struct {
	Source    string
	Specifier string
	Kind      ImportKind
	Synthetic bool
	Asserts   Asserts
	DeclSpan  syntax.Span
}

// ImportKey is the reverse-index key for an import.
type ImportKey struct {
	Specifier string
	Source    string
}

// SyntheticImport records a compiler-injected import in insertion order.
type SyntheticImport struct {
	Local  hygiene.Id
	Import Import
}

// Collector holds the global tables of one module. The tables are filled
// once by GlobalCollect and only read afterwards.
type Collector struct {
	Imports   map[hygiene.Id]Import
	Exports   map[hygiene.Id]*string
	Root      map[hygiene.Id]syntax.Span
	Synthetic []SyntheticImport

	revImports  map[ImportKey]hygiene.Id
	importOrder []hygiene.Id
}

// NewCollector returns a Collector with empty tables.
func NewCollector() *Collector {
	return &Collector{
		Imports:    make(map[hygiene.Id]Import),
		Exports:    make(map[hygiene.Id]*string),
		Root:       make(map[hygiene.Id]syntax.Span),
		revImports: make(map[ImportKey]hygiene.Id),
	}
}

// AddImport records an import for local. It is also the entry point for
// compiler-injected bindings, which are flagged Synthetic.
func (c *Collector) AddImport(local hygiene.Id, imp Import) {
	if _, seen := c.Imports[local]; !seen {
		c.importOrder = append(c.importOrder, local)
	}
	c.Imports[local] = imp
	c.revImports[ImportKey{Specifier: imp.Specifier, Source: imp.Source}] = local
	if imp.Synthetic {
		c.Synthetic = append(c.Synthetic, SyntheticImport{Local: local, Import: imp})
	}
}

// AddExport registers id as exported, under alias when non-nil. The first
// registration of an id wins; AddExport reports whether it inserted.
func (c *Collector) AddExport(id hygiene.Id, alias *string) bool {
	if _, ok := c.Exports[id]; ok {
		return false
	}
	c.Exports[id] = alias
	return true
}

// ImportFor returns the local binding that imports specifier from source.
func (c *Collector) ImportFor(specifier, source string) (hygiene.Id, bool) {
	id, ok := c.revImports[ImportKey{Specifier: specifier, Source: source}]
	return id, ok
}

// ImportOrder returns the local ids of all imports in the order they were
// first added.
func (c *Collector) ImportOrder() []hygiene.Id {
	out := make([]hygiene.Id, len(c.importOrder))
	copy(out, c.importOrder)
	return out
}

// GlobalCollect walks the top-level items of a program once and fills the
// import, export and root tables.
func GlobalCollect(root *sitter.Node, src []byte, b *hygiene.Bindings) (*Collector, error) {
	gc := &globalCollector{c: NewCollector(), src: src, b: b}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		item := root.NamedChild(i)
		var err error
		switch item.Type() {
		case "import_statement":
			gc.collectImport(item)
		case "export_statement":
			err = gc.collectExport(item)
		default:
			gc.collectRoot(item)
		}
		if err != nil {
			return nil, err
		}
	}
	return gc.c, nil
}

type globalCollector struct {
	c   *Collector
	src []byte
	b   *hygiene.Bindings
}

func (gc *globalCollector) collectRoot(n *sitter.Node) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration", "enum_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			gc.c.Root[gc.b.Ident(name)] = syntax.SpanOf(name)
		}
	case "lexical_declaration", "variable_declaration":
		var found []Binding
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() == "variable_declarator" {
				CollectFromPattern(d.ChildByFieldName("name"), gc.b, &found)
			}
		}
		for _, bind := range found {
			gc.c.Root[bind.Id] = bind.Span
		}
	}
}

func (gc *globalCollector) collectImport(n *sitter.Node) {
	srcNode := n.ChildByFieldName("source")
	if srcNode == nil {
		return
	}
	source := syntax.StringValue(srcNode, gc.src)
	asserts := gc.assertsOf(n)
	decl := syntax.SpanOf(n)

	add := func(local *sitter.Node, specifier string, kind ImportKind) {
		gc.c.AddImport(gc.b.Ident(local), Import{
			Source:    source,
			Specifier: specifier,
			Kind:      kind,
			Asserts:   asserts,
			DeclSpan:  decl,
		})
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				add(part, "default", Default)
			case "namespace_import":
				if id := firstNamed(part, "identifier"); id != nil {
					add(id, "*", All)
				}
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					spec := part.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					name := spec.ChildByFieldName("name")
					local := spec.ChildByFieldName("alias")
					if local == nil {
						local = name
					}
					if local == nil {
						continue
					}
					specifier := syntax.NodeText(local, gc.src)
					if name != nil {
						switch name.Type() {
						case "identifier":
							// Includes `default` in {default as x}.
							specifier = syntax.NodeText(name, gc.src)
						case "string":
							specifier = syntax.StringValue(name, gc.src)
						}
					}
					add(local, specifier, Named)
				}
			}
		}
	}
}

// assertsOf reads the attribute clause of an import. Legacy `assert { … }`
// clauses reach here as import_attribute too, see syntax.Parse. Entries that
// are not plain key/value properties are ignored.
func (gc *globalCollector) assertsOf(n *sitter.Node) Asserts {
	var obj *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "import_attribute" {
			obj = firstNamed(c, "object")
			break
		}
	}
	if obj == nil {
		return nil
	}

	asserts := Asserts{}
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		pair := obj.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key, value := pair.ChildByFieldName("key"), pair.ChildByFieldName("value")
		if key == nil || value == nil {
			continue
		}
		entry := AssertEntry{}
		switch key.Type() {
		case "property_identifier", "identifier":
			entry.Key, entry.KeyIsIdent = syntax.NodeText(key, gc.src), true
		case "string":
			entry.Key = syntax.StringValue(key, gc.src)
		default:
			entry.Key = syntax.NodeText(key, gc.src)
		}
		if value.Type() == "string" {
			entry.Value, entry.ValueIsString = syntax.StringValue(value, gc.src), true
		} else {
			entry.Value = syntax.NodeText(value, gc.src)
		}
		asserts = append(asserts, entry)
	}
	return asserts
}

func (gc *globalCollector) collectExport(n *sitter.Node) error {
	if n.ChildByFieldName("source") != nil {
		return nil
	}

	if syntax.HasToken(n, "default") {
		decl := n.ChildByFieldName("declaration")
		if decl == nil {
			// export default <expression>
			return nil
		}
		switch decl.Type() {
		case "function_declaration", "generator_function_declaration",
			"class_declaration", "abstract_class_declaration":
			if name := decl.ChildByFieldName("name"); name != nil {
				alias := "default"
				gc.c.AddExport(gc.b.Ident(name), &alias)
			}
			return nil
		}
		pt := decl.StartPoint()
		return fmt.Errorf("collect: %w: %s at %d:%d",
			ErrUnsupportedDefaultExport, decl.Type(), pt.Row+1, pt.Column+1)
	}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		switch decl.Type() {
		case "function_declaration", "generator_function_declaration",
			"class_declaration", "abstract_class_declaration", "enum_declaration":
			if name := decl.ChildByFieldName("name"); name != nil {
				gc.c.AddExport(gc.b.Ident(name), nil)
			}
		case "lexical_declaration", "variable_declaration":
			for i := 0; i < int(decl.NamedChildCount()); i++ {
				d := decl.NamedChild(i)
				if d.Type() == "variable_declarator" {
					gc.exportPattern(d.ChildByFieldName("name"))
				}
			}
		}
		return nil
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "export_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			spec := clause.NamedChild(j)
			if spec.Type() != "export_specifier" {
				continue
			}
			name := spec.ChildByFieldName("name")
			if name == nil || name.Type() != "identifier" {
				continue
			}
			var alias *string
			if a := spec.ChildByFieldName("alias"); a != nil {
				s := syntax.StringValue(a, gc.src)
				alias = &s
			}
			gc.c.AddExport(gc.b.Ident(name), alias)
		}
	}
	return nil
}

// exportPattern registers every binding identifier of an exported
// declarator pattern, at any depth, under its own name.
func (gc *globalCollector) exportPattern(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		gc.c.AddExport(gc.b.Ident(n), nil)
	case "assignment_pattern", "object_assignment_pattern":
		gc.exportPattern(n.ChildByFieldName("left"))
	case "pair_pattern":
		gc.exportPattern(n.ChildByFieldName("value"))
	case "array_pattern", "object_pattern", "rest_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			gc.exportPattern(n.NamedChild(i))
		}
	}
}

func firstNamed(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}
