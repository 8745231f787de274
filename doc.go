// Package macroscan locates compile-time macro invocations in JavaScript and
// TypeScript modules.
//
// # Pipeline
//
// Each module goes through four steps:
//
//  1. Parse: tree-sitter parses the source with a dialect picked from the
//     file extension. Any syntax error aborts the module.
//
//  2. Resolve: every identifier is tagged with the scope mark of the
//     binding it names, so shadowed names never alias a macro import.
//
//  3. Collect: one pass over the module's top level records imports,
//     exports and top-level declarations.
//
//  4. Classify and scan: imports are classified as macros, either by an
//     import assertion (import css from "x" with { type: "macro" }) or by a
//     filter, and every call whose callee resolves to a macro binding is
//     reported.
//
// The result is an [Output]: byte ranges of macro calls to replace, and of
// asserted import declarations to remove.
//
// # Usage
//
// Analyse a single module in memory:
//
//	out, err := macroscan.TransformCode(ctx, macroscan.TransformOptions{
//		AbsolutePath: "/src/app.ts",
//		Code:         src,
//		AssertType:   "macro",
//	})
//
// Or scan a tree with results cached in SQLite:
//
//	e, err := macroscan.New("macroscan.db", macroscan.WithAssertType("macro"))
//	if err != nil { ... }
//	defer e.Close()
//
//	summary, err := e.ScanDirectory(ctx, "path/to/project")
//	res, err := e.Results("path/to/project/src/app.ts")
//
// # Filters
//
// Imports without a type assertion are macros when the filter accepts them.
// A filter is either a Go [Filter] ([WithFilter]) or a Risor script
// ([WithFilterScript]) that sees the globals name, source and importer and
// evaluates to a bool.
package macroscan
