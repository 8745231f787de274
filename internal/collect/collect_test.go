package collect

import (
	"context"
	"errors"
	"sort"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/macroscan/internal/hygiene"
	"github.com/jward/macroscan/internal/syntax"
)

type parsed struct {
	mod *syntax.Module
	b   *hygiene.Bindings
}

func parse(t *testing.T, path, src string) parsed {
	t.Helper()
	m, err := syntax.Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return parsed{mod: m, b: hygiene.Resolve(m.Root(), m.Source)}
}

func collectSource(t *testing.T, src string) *Collector {
	t.Helper()
	p := parse(t, "mod.ts", src)
	c, err := GlobalCollect(p.mod.Root(), p.mod.Source, p.b)
	require.NoError(t, err)
	return c
}

func top(sym string) hygiene.Id {
	return hygiene.Id{Sym: sym, Mark: hygiene.TopLevelMark}
}

func strPtr(s string) *string { return &s }

func exportNames(c *Collector) map[string]string {
	out := make(map[string]string, len(c.Exports))
	for id, alias := range c.Exports {
		if alias == nil {
			out[id.Sym] = ""
		} else {
			out[id.Sym] = *alias
		}
	}
	return out
}

func rootNames(c *Collector) []string {
	var names []string
	for id := range c.Root {
		names = append(names, id.Sym)
	}
	sort.Strings(names)
	return names
}

// --- Binding-pattern collector ---

func TestCollectFromPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		want    []string
		ident   bool
	}{
		{"identifier", "a", []string{"a"}, true},
		{"array", "[a, , b]", []string{"a", "b"}, false},
		{"nested array", "[a, [b, c]]", []string{"a", "b", "c"}, false},
		{"array with default", "[a = 1]", []string{"a"}, false},
		{"array rest", "[a, ...rest]", []string{"a", "rest"}, false},
		{"array rest of pattern", "[a, ...[b]]", []string{"a"}, false},
		{"object shorthand", "{ a, b }", []string{"a", "b"}, false},
		{"object shorthand default", "{ a = 1 }", []string{"a"}, false},
		{"object key value", "{ k: a, n: { m: b } }", []string{"a", "b"}, false},
		{"object rest", "{ a, ...rest }", []string{"a", "rest"}, false},
		{"key value default", "{ k: a = 1 }", []string{"a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := parse(t, "p.js", "const "+tt.pattern+" = v;\n")
			decl := p.mod.Root().NamedChild(0)
			require.Equal(t, "lexical_declaration", decl.Type())
			declarator := decl.NamedChild(0)
			require.Equal(t, "variable_declarator", declarator.Type())

			var out []Binding
			ok := CollectFromPattern(declarator.ChildByFieldName("name"), p.b, &out)
			assert.Equal(t, tt.ident, ok)

			var names []string
			for _, b := range out {
				names = append(names, b.Id.Sym)
				assert.Equal(t, hygiene.TopLevelMark, b.Id.Mark)
				assert.Equal(t, b.Id.Sym, string(p.mod.Source[b.Span.Lo.Offset():b.Span.Hi.Offset()]))
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestCollectFromPattern_Nil(t *testing.T) {
	t.Parallel()

	var out []Binding
	assert.False(t, CollectFromPattern(nil, nil, &out))
	assert.Empty(t, out)
}

func TestCollectFromPattern_Parameters(t *testing.T) {
	t.Parallel()

	p := parse(t, "p.ts", "function f(a: number, { b }: any, c?: string) {}\n")
	fn := p.mod.Root().NamedChild(0)
	params := fn.ChildByFieldName("parameters")
	require.NotNil(t, params)

	var out []Binding
	var idents int
	for i := 0; i < int(params.NamedChildCount()); i++ {
		if CollectFromPattern(params.NamedChild(i), p.b, &out) {
			idents++
		}
	}
	assert.Equal(t, 2, idents)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Id.Sym)
	assert.Equal(t, "b", out[1].Id.Sym)
	assert.Equal(t, "c", out[2].Id.Sym)
	assert.NotEqual(t, hygiene.TopLevelMark, out[0].Id.Mark)
}

// --- Imports ---

func TestGlobalCollect_ImportForms(t *testing.T) {
	t.Parallel()

	c := collectSource(t, `
import def from "a";
import * as ns from "b";
import { x, y as z } from "c";
import "side-effect";
`)

	require.Len(t, c.Imports, 4)

	imp := c.Imports[top("def")]
	assert.Equal(t, Import{Source: "a", Specifier: "default", Kind: Default, DeclSpan: imp.DeclSpan}, imp)
	assert.Nil(t, imp.Asserts)

	assert.Equal(t, "*", c.Imports[top("ns")].Specifier)
	assert.Equal(t, All, c.Imports[top("ns")].Kind)

	assert.Equal(t, "x", c.Imports[top("x")].Specifier)
	assert.Equal(t, "y", c.Imports[top("z")].Specifier)
	assert.Equal(t, Named, c.Imports[top("z")].Kind)

	assert.Equal(t, []hygiene.Id{top("def"), top("ns"), top("x"), top("z")}, c.ImportOrder())
}

func TestGlobalCollect_NamedSpecifierForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, src, local, specifier string
	}{
		{"plain", `import { a } from "m";`, "a", "a"},
		{"renamed", `import { a as b } from "m";`, "b", "a"},
		{"default renamed", `import { default as x } from "m";`, "x", "default"},
		{"string name", `import { "a-b" as y } from "m";`, "y", "a-b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := collectSource(t, tt.src)
			imp, ok := c.Imports[top(tt.local)]
			require.True(t, ok)
			assert.Equal(t, tt.specifier, imp.Specifier)
			assert.Equal(t, Named, imp.Kind)
			assert.Equal(t, "m", imp.Source)
		})
	}
}

func TestGlobalCollect_ImportDeclSpan(t *testing.T) {
	t.Parallel()

	src := `import { m } from "macros";` + "\n"
	c := collectSource(t, src)

	span := c.Imports[top("m")].DeclSpan
	assert.Equal(t, uint32(0), span.Lo.Offset())
	assert.Equal(t, uint32(len(src)-1), span.Hi.Offset())
}

func TestGlobalCollect_ReverseIndex(t *testing.T) {
	t.Parallel()

	c := collectSource(t, `import { foo as bar } from "lib"; import d from "lib";`)

	id, ok := c.ImportFor("foo", "lib")
	require.True(t, ok)
	assert.Equal(t, top("bar"), id)

	id, ok = c.ImportFor("default", "lib")
	require.True(t, ok)
	assert.Equal(t, top("d"), id)

	_, ok = c.ImportFor("bar", "lib")
	assert.False(t, ok)
}

func TestGlobalCollect_Asserts(t *testing.T) {
	t.Parallel()

	c := collectSource(t, `import { m } from "macros" with { type: "macro", "type": "x", other: 1 };`)

	imp := c.Imports[top("m")]
	require.Len(t, imp.Asserts, 3)
	assert.Equal(t, AssertEntry{Key: "type", KeyIsIdent: true, Value: "macro", ValueIsString: true}, imp.Asserts[0])
	assert.Equal(t, AssertEntry{Key: "type", Value: "x", ValueIsString: true}, imp.Asserts[1])
	assert.False(t, imp.Asserts[2].ValueIsString)

	typ, ok := imp.Asserts.Type()
	assert.True(t, ok)
	assert.Equal(t, "macro", typ)
}

func TestGlobalCollect_AssertKeyword(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"mod.js", "mod.ts", "mod.tsx"} {
		t.Run(path, func(t *testing.T) {
			src := `import { m } from "macros" assert { type: "macro" };` + "\n"
			p := parse(t, path, src)
			c, err := GlobalCollect(p.mod.Root(), p.mod.Source, p.b)
			require.NoError(t, err)

			imp := c.Imports[top("m")]
			require.Len(t, imp.Asserts, 1)
			assert.Equal(t, AssertEntry{Key: "type", KeyIsIdent: true, Value: "macro", ValueIsString: true}, imp.Asserts[0])
			assert.Equal(t, uint32(len(src)-1), imp.DeclSpan.Hi.Offset())
		})
	}
}

func TestAsserts_Type(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		asserts Asserts
		want    string
		ok      bool
	}{
		{"nil", nil, "", false},
		{"empty", Asserts{}, "", false},
		{"string key ignored", Asserts{{Key: "type", Value: "macro", ValueIsString: true}}, "", false},
		{"non-string value ignored", Asserts{{Key: "type", KeyIsIdent: true, Value: "1"}}, "", false},
		{"first wins", Asserts{
			{Key: "type", KeyIsIdent: true, Value: "a", ValueIsString: true},
			{Key: "type", KeyIsIdent: true, Value: "b", ValueIsString: true},
		}, "a", true},
		{"other keys skipped", Asserts{
			{Key: "mode", KeyIsIdent: true, Value: "x", ValueIsString: true},
			{Key: "type", KeyIsIdent: true, Value: "json", ValueIsString: true},
		}, "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tt.asserts.Type()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddImport_Synthetic(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	local := hygiene.Id{Sym: "_inject", Mark: 7}
	imp := Import{Source: "runtime", Specifier: "inject", Kind: Named, Synthetic: true, DeclSpan: syntax.DummySpan}
	c.AddImport(local, imp)
	c.AddImport(top("plain"), Import{Source: "x", Specifier: "plain"})

	require.Len(t, c.Synthetic, 1)
	assert.Equal(t, SyntheticImport{Local: local, Import: imp}, c.Synthetic[0])
	assert.True(t, c.Imports[local].DeclSpan.IsDummy())

	id, ok := c.ImportFor("inject", "runtime")
	require.True(t, ok)
	assert.Equal(t, local, id)
}

// --- Exports ---

func TestAddExport_FirstWins(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	assert.True(t, c.AddExport(top("a"), strPtr("x")))
	assert.False(t, c.AddExport(top("a"), nil))
	require.NotNil(t, c.Exports[top("a")])
	assert.Equal(t, "x", *c.Exports[top("a")])
}

func TestGlobalCollect_Exports(t *testing.T) {
	t.Parallel()

	c := collectSource(t, `
const a = 1, b = 2, c = 3;
export { a, b as bee, c as default };
export function f() {}
export class K {}
export enum E { One }
export const { p, q: { r }, ...s } = obj, [t1, [t2 = dflt]] = arr;
export { x } from "elsewhere";
export * as ns from "elsewhere";
`)

	assert.Equal(t, map[string]string{
		"a": "", "b": "bee", "c": "default",
		"f": "", "K": "", "E": "",
		"p": "", "r": "", "s": "", "t1": "", "t2": "",
	}, exportNames(c))
}

func TestGlobalCollect_ExportDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want map[string]string
	}{
		{"named function", "export default function main() {}", map[string]string{"main": "default"}},
		{"named class", "export default class App {}", map[string]string{"App": "default"}},
		{"abstract class", "export default abstract class Base {}", map[string]string{"Base": "default"}},
		{"anonymous function", "export default function () {}", map[string]string{}},
		{"anonymous class", "export default class {}", map[string]string{}},
		{"expression", "const v = 1;\nexport default v;", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := collectSource(t, tt.src)
			assert.Equal(t, tt.want, exportNames(c))
		})
	}
}

func TestGlobalCollect_UnsupportedDefaultExport(t *testing.T) {
	t.Parallel()

	p := parse(t, "mod.ts", "export default interface Shape { area(): number }\n")
	c, err := GlobalCollect(p.mod.Root(), p.mod.Source, p.b)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, ErrUnsupportedDefaultExport))
	assert.Contains(t, err.Error(), "interface_declaration")
}

// --- Root declarations ---

func TestGlobalCollect_Root(t *testing.T) {
	t.Parallel()

	c := collectSource(t, `
import { imported } from "x";
function fn() { const inner = 1; }
function* gen() {}
class Cls {}
abstract class Abs {}
enum Color { Red }
const [l1, l2] = pair;
var { v1, k: v2 } = obj;
const solo = 1;
export const exported = 1;
export function exportedFn() {}
`)

	assert.Equal(t, []string{"Abs", "Cls", "Color", "fn", "gen", "l1", "l2", "solo", "v1", "v2"}, rootNames(c))
	for id := range c.Root {
		assert.Equal(t, hygiene.TopLevelMark, id.Mark)
	}
}

func TestGlobalCollect_RootSpans(t *testing.T) {
	t.Parallel()

	src := "const answer = 42;\n"
	c := collectSource(t, src)
	span, ok := c.Root[top("answer")]
	require.True(t, ok)
	assert.Equal(t, "answer", src[span.Lo.Offset():span.Hi.Offset()])
}

func TestGlobalCollect_ImportsOnlyAtTopLevel(t *testing.T) {
	t.Parallel()

	p := parse(t, "mod.js", "async function f() { const m = await import('x'); }\n")
	c, err := GlobalCollect(p.mod.Root(), p.mod.Source, p.b)
	require.NoError(t, err)
	assert.Empty(t, c.Imports)

	var calls int
	syntax.Walk(p.mod.Root(), func(n *sitter.Node) bool {
		if n.Type() == "call_expression" {
			calls++
		}
		return true
	})
	assert.Equal(t, 1, calls)
}
