// Package runtime embeds a Risor VM that evaluates user-supplied macro
// filter scripts.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/macroscan/internal/logging"
)

// Runtime evaluates Risor scripts with the macroscan host functions
// installed as globals.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     *zap.Logger
}

// scriptExt is the extension of importable script modules.
const scriptExt = ".risor"

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS reads scripts, and resolves their imports, from fsys
// instead of the scripts directory.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithLogger sets the logger behind the scripts' log object. Defaults to
// the shared process logger.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime that resolves relative script paths and
// Risor imports against scriptsDir. scriptsDir may be empty.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{scriptsDir: scriptsDir}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Logger()
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller, returning the value of
// its last expression.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) (object.Object, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (object.Object, error) {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) (object.Object, error) {
	result, err := risor.Eval(ctx, source, r.options(extraGlobals)...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return result, nil
}

// options returns the Risor options installing the standard globals, the
// extra globals and the script importer.
func (r *Runtime) options(extraGlobals map[string]any) []risor.Option {
	globals := r.buildGlobals(extraGlobals)

	opts := make([]risor.Option, 0, len(globals)+1)
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}
	return opts
}

// buildImporter resolves Risor import statements against the configured
// fs.FS, else scriptsDir. Nil when the Runtime has neither, so inline filter
// scripts cannot import anything.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	exts := []string{scriptExt}

	switch {
	case r.fsys != nil:
		return importer.NewFSImporter(importer.FSImporterOptions{
			SourceFS:    r.fsys,
			GlobalNames: names,
			Extensions:  exts,
		})
	case r.scriptsDir != "":
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			SourceDir:   r.scriptsDir,
			GlobalNames: names,
			Extensions:  exts,
		})
	}
	return nil
}

// LoadScript returns the source of a filter script. Paths are read from the
// fs.FS when one is configured (a leading "/" is ignored), otherwise from
// disk relative to scriptsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	var (
		data []byte
		err  error
		from string
	)
	if r.fsys != nil {
		from = strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err = fs.ReadFile(r.fsys, from)
	} else {
		from = path
		if r.scriptsDir != "" && !filepath.IsAbs(path) {
			from = filepath.Join(r.scriptsDir, path)
		}
		data, err = os.ReadFile(from)
	}
	if err != nil {
		return "", fmt.Errorf("runtime: load script %s: %w", from, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"has_prefix": makeHasPrefixFn(),
		"has_suffix": makeHasSuffixFn(),
		"ext":        makeExtFn(),
		"log":        mustProxy(&logObject{logger: r.logger.Named("script")}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
