package transform

import (
	"sort"

	"github.com/jward/macroscan/internal/collect"
	"github.com/jward/macroscan/internal/hygiene"
	"github.com/jward/macroscan/internal/syntax"
)

// Classification is the set of macro bindings of a module together with
// the import declarations to remove.
type Classification struct {
	Macros   map[hygiene.Id]struct{}
	Removals []Removal
}

// IsMacro reports whether id is a macro binding.
func (cl *Classification) IsMacro(id hygiene.Id) bool {
	_, ok := cl.Macros[id]
	return ok
}

// Classify decides which imports are macros. A `type` assertion takes
// precedence: it marks a macro exactly when it equals assertType, and the
// declaration carrying it is scheduled for removal. Imports without one are
// passed to filter; a nil filter accepts nothing. Filter-selected imports
// are never removed.
func Classify(c *collect.Collector, assertType string, filter Filter) *Classification {
	cl := &Classification{Macros: make(map[hygiene.Id]struct{})}
	seen := make(map[syntax.Span]struct{})
	var spans []syntax.Span

	for _, id := range c.ImportOrder() {
		imp := c.Imports[id]

		if typ, ok := imp.Asserts.Type(); ok {
			if typ != assertType {
				continue
			}
			cl.Macros[id] = struct{}{}
			if imp.DeclSpan.IsDummy() {
				continue
			}
			if _, dup := seen[imp.DeclSpan]; !dup {
				seen[imp.DeclSpan] = struct{}{}
				spans = append(spans, imp.DeclSpan)
			}
			continue
		}

		name := imp.Specifier
		if imp.Kind == collect.Default {
			name = "default"
		}
		if filter != nil && filter(name, imp.Source) {
			cl.Macros[id] = struct{}{}
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Lo < spans[j].Lo })
	cl.Removals = make([]Removal, 0, len(spans))
	for _, s := range spans {
		cl.Removals = append(cl.Removals, removalOf(s))
	}
	return cl
}
