package macroscan

import (
	"context"
	"fmt"

	"github.com/jward/macroscan/internal/collect"
	"github.com/jward/macroscan/internal/hygiene"
	"github.com/jward/macroscan/internal/syntax"
	"github.com/jward/macroscan/internal/transform"
)

// TransformOptions describes one module to analyse.
type TransformOptions struct {
	// AbsolutePath selects the dialect by extension and labels errors.
	AbsolutePath string
	Code         string
	// AssertType is the import assertion type that marks a macro import.
	// Empty matches only an explicit type: "" assertion.
	AssertType string
	// Filter classifies imports that carry no type assertion. Nil rejects
	// every such import.
	Filter Filter
}

// TransformCode parses a module and reports its macro call sites and the
// macro import declarations to remove. It fails on syntax errors and on
// unsupported default exports; no partial output is returned.
func TransformCode(ctx context.Context, opts TransformOptions) (*Output, error) {
	mod, err := syntax.Parse(ctx, opts.AbsolutePath, []byte(opts.Code))
	if err != nil {
		return nil, fmt.Errorf("macroscan: %w", err)
	}
	defer mod.Close()

	out, err := analyze(mod, opts.AssertType, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("macroscan: %s: %w", opts.AbsolutePath, err)
	}
	return out, nil
}

// GetMacroLocations is TransformCode with positional arguments.
func GetMacroLocations(code, filename, assertType string, filter Filter) (*Output, error) {
	return TransformCode(context.Background(), TransformOptions{
		AbsolutePath: filename,
		Code:         code,
		AssertType:   assertType,
		Filter:       filter,
	})
}

func analyze(mod *syntax.Module, assertType string, filter Filter) (*Output, error) {
	root := mod.Root()
	b := hygiene.Resolve(root, mod.Source)

	c, err := collect.GlobalCollect(root, mod.Source, b)
	if err != nil {
		return nil, err
	}

	cl := transform.Classify(c, assertType, filter)
	replaces := transform.Scan(root, c, cl, b)
	return transform.NewOutput(replaces, cl.Removals), nil
}
