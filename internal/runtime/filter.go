package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
	"go.uber.org/zap"

	"github.com/jward/macroscan/internal/transform"
)

// ErrFilterResult is returned when a filter script evaluates to anything
// other than a bool.
var ErrFilterResult = errors.New("filter script must evaluate to a bool")

// ScriptFilter is a compiled macro filter script. The script sees the
// globals name, source and importer and must evaluate to a bool.
//
// The bytecode is compiled once; each Match runs it on a fresh VM, so a
// ScriptFilter is safe for concurrent use.
type ScriptFilter struct {
	rt     *Runtime
	source string
	code   *compiler.Code
}

// filterGlobals returns the per-import globals seen by a filter script.
func filterGlobals(name, source, importer string) map[string]any {
	return map[string]any{
		"name":     name,
		"source":   source,
		"importer": importer,
	}
}

// CompileFilter compiles a filter script and validates it by running it
// once against empty inputs.
func (r *Runtime) CompileFilter(ctx context.Context, source string) (*ScriptFilter, error) {
	ast, err := parser.Parse(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("runtime: compile filter: %w", err)
	}
	// Global names must match between compile and run, so compile against
	// the same set Match installs.
	cfg := risor.NewConfig(r.options(filterGlobals("", "", ""))...)
	code, err := compiler.Compile(ast, cfg.CompilerOpts()...)
	if err != nil {
		return nil, fmt.Errorf("runtime: compile filter: %w", err)
	}

	f := &ScriptFilter{rt: r, source: source, code: code}
	if _, err := f.Match(ctx, "", "", ""); err != nil {
		return nil, fmt.Errorf("runtime: compile filter: %w", err)
	}
	return f, nil
}

// Source returns the script text.
func (f *ScriptFilter) Source() string {
	return f.source
}

// Match evaluates the script for one import.
func (f *ScriptFilter) Match(ctx context.Context, name, source, importer string) (bool, error) {
	result, err := risor.EvalCode(ctx, f.code, f.rt.options(filterGlobals(name, source, importer))...)
	if err != nil {
		return false, fmt.Errorf("runtime: filter script: %w", err)
	}
	b, ok := result.(*object.Bool)
	if !ok {
		return false, fmt.Errorf("%w, got %s", ErrFilterResult, result.Type())
	}
	return b.Value(), nil
}

// For binds the filter to the module being scanned. Script failures are
// logged and count as "not a macro".
func (f *ScriptFilter) For(ctx context.Context, importer string) transform.Filter {
	return func(name, source string) bool {
		ok, err := f.Match(ctx, name, source, importer)
		if err != nil {
			f.rt.logger.Warn("filter script failed",
				zap.String("importer", importer),
				zap.String("name", name),
				zap.String("source", source),
				zap.Error(err),
			)
			return false
		}
		return ok
	}
}
