package syntax

import (
	"context"
	"errors"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectForPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want Dialect
	}{
		{"a.ts", TypeScript},
		{"a.mts", TypeScript},
		{"a.mtsx", TSX},
		{"a.tsx", TSX},
		{"a.js", JavaScript},
		{"a.mjs", JavaScript},
		{"a.cjs", JavaScript},
		{"a.jsx", JavaScriptJSX},
		{"a.mjsx", JavaScriptJSX},
		{"a.cjsx", JavaScriptJSX},
		{"a.vue", TSX},
		{"Makefile", TSX},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DialectForPath(tt.path))
		})
	}
}

func TestIsScannable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsScannable("src/app.ts"))
	assert.True(t, IsScannable("src/App.TSX"))
	assert.True(t, IsScannable("lib/index.cjs"))
	assert.False(t, IsScannable("README.md"))
	assert.False(t, IsScannable("style.css"))
}

func TestDialectString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "typescript", TypeScript.String())
	assert.Equal(t, "tsx", TSX.String())
	assert.Equal(t, "jsx", JavaScriptJSX.String())
	assert.Equal(t, "javascript", JavaScript.String())
}

func TestSpan(t *testing.T) {
	t.Parallel()

	s := Span{Lo: 1, Hi: 11}
	assert.Equal(t, uint32(0), s.Lo.Offset())
	assert.Equal(t, uint32(10), s.Hi.Offset())
	assert.False(t, s.IsDummy())

	assert.True(t, DummySpan.IsDummy())
	assert.Equal(t, uint32(0), DummySpan.Lo.Offset())
}

func TestParse_TypeScript(t *testing.T) {
	t.Parallel()

	src := []byte("import { x } from 'y';\nconst a: number = x(1);\n")
	m, err := Parse(context.Background(), "mod.ts", src)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, TypeScript, m.Dialect)
	assert.Equal(t, "program", m.Root().Type())
	assert.Equal(t, uint32(2), m.Root().NamedChildCount())
}

func TestParse_JSXInTSX(t *testing.T) {
	t.Parallel()

	src := []byte("const el = <div>{1}</div>;\n")
	m, err := Parse(context.Background(), "view.tsx", src)
	require.NoError(t, err)
	m.Close()

	m, err = Parse(context.Background(), "view.jsx", src)
	require.NoError(t, err)
	m.Close()
}

func TestParse_JSXRejectedInPlainJS(t *testing.T) {
	t.Parallel()

	src := []byte("const el = <div />;\n")
	_, err := Parse(context.Background(), "view.js", src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "view.js", perr.Path)
	assert.Equal(t, 1, perr.Line)
	assert.Equal(t, 12, perr.Column)
	assert.Contains(t, perr.Message, "JSX")
}

func TestParse_SyntaxError(t *testing.T) {
	t.Parallel()

	src := []byte("const a = ;\nfunction (\n")
	_, err := Parse(context.Background(), "broken.ts", src)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "broken.ts", perr.Path)
	assert.Equal(t, 1, perr.Line)
	assert.Contains(t, perr.Error(), "broken.ts:1:")
}

func TestParse_TypeAnnotationRejectedInJS(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), "plain.js", []byte("let a: number = 1;\n"))
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestNodeHelpers(t *testing.T) {
	t.Parallel()

	src := []byte(`export default function f() { return "hi"; }`)
	m, err := Parse(context.Background(), "a.ts", src)
	require.NoError(t, err)
	defer m.Close()

	exp := m.Root().NamedChild(0)
	require.Equal(t, "export_statement", exp.Type())
	assert.True(t, HasToken(exp, "default"))
	assert.False(t, HasToken(exp, "from"))

	var str *sitter.Node
	count := 0
	Walk(m.Root(), func(n *sitter.Node) bool {
		count++
		if n.Type() == "string" {
			str = n
		}
		return true
	})
	require.NotNil(t, str)
	assert.Greater(t, count, 5)
	assert.Equal(t, `"hi"`, NodeText(str, src))
	assert.Equal(t, "hi", StringValue(str, src))
}

func TestWalk_SkipsChildren(t *testing.T) {
	t.Parallel()

	src := []byte("function f() { g(); }\nh();\n")
	m, err := Parse(context.Background(), "a.js", src)
	require.NoError(t, err)
	defer m.Close()

	var calls []string
	Walk(m.Root(), func(n *sitter.Node) bool {
		if n.Type() == "function_declaration" {
			return false
		}
		if n.Type() == "call_expression" {
			calls = append(calls, NodeText(n, src))
		}
		return true
	})
	assert.Equal(t, []string{"h()"}, calls)
}

func TestParse_LegacyAssertClause(t *testing.T) {
	t.Parallel()

	src := []byte(`import { tag } from "./m" assert { type: "macro" };
tag(1);
`)
	for _, path := range []string{"a.js", "a.mjs", "a.jsx", "a.ts", "a.tsx"} {
		t.Run(path, func(t *testing.T) {
			m, err := Parse(context.Background(), path, src)
			require.NoError(t, err)
			defer m.Close()

			imp := m.Root().NamedChild(0)
			require.Equal(t, "import_statement", imp.Type())
			var attr *sitter.Node
			for i := 0; i < int(imp.NamedChildCount()); i++ {
				if c := imp.NamedChild(i); c.Type() == "import_attribute" {
					attr = c
				}
			}
			require.NotNil(t, attr)
			// Node text comes from the original source.
			assert.Equal(t, `assert { type: "macro" }`, NodeText(attr, m.Source))
			assert.Equal(t, uint32(len(src)), m.Root().EndByte())
		})
	}
}

func TestLegacyAssertToWith(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, in, want string
	}{
		{"import", `import a from "m" assert { type: "macro" };`, `import a from "m" with   { type: "macro" };`},
		{"single quotes no space", `import a from 'm' assert{type:'macro'}`, `import a from 'm' with  {type:'macro'}`},
		{"with form untouched", `import a from "m" with { type: "macro" };`, `import a from "m" with { type: "macro" };`},
		{"identifier untouched", `assert({ ok: true });`, `assert({ ok: true });`},
		{"next line untouched", "import \"m\"\nassert { }", "import \"m\"\nassert { }"},
		{"inside a string", `const s = 'x" assert {';`, `const s = 'x" with   {';`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := legacyAssertToWith([]byte(tt.in))
			assert.Equal(t, tt.want, string(got))
			assert.Len(t, got, len(tt.in))
		})
	}

	// The caller's buffer is never modified.
	in := []byte(`import a from "m" assert {};`)
	legacyAssertToWith(in)
	assert.Equal(t, `import a from "m" assert {};`, string(in))
}

func TestParse_LegacyAssertInsideStringKeepsText(t *testing.T) {
	t.Parallel()

	src := []byte(`export const s = 'x" assert {';` + "\n")
	m, err := Parse(context.Background(), "a.js", src)
	require.NoError(t, err)
	defer m.Close()

	var str *sitter.Node
	Walk(m.Root(), func(n *sitter.Node) bool {
		if n.Type() == "string" {
			str = n
		}
		return true
	})
	require.NotNil(t, str)
	assert.Equal(t, `x" assert {`, StringValue(str, m.Source))
}
