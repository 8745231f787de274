package macroscan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/jward/macroscan/internal/collect"
	"github.com/jward/macroscan/internal/discover"
	"github.com/jward/macroscan/internal/logging"
	"github.com/jward/macroscan/internal/runtime"
	"github.com/jward/macroscan/internal/store"
	"github.com/jward/macroscan/internal/syntax"
)

// ErrNotScanned is returned by Engine.Results for files with no cached
// result.
var ErrNotScanned = errors.New("macroscan: file not scanned")

// Engine scans files, caches per-file results in SQLite and skips files
// whose content and configuration are unchanged since the last scan.
type Engine struct {
	store   *store.Store
	matcher *discover.Matcher
	logger  *zap.Logger

	assertType   string
	filter       Filter
	filterScript string
	scriptsDir   string
	scriptFilter *runtime.ScriptFilter
	include      []string
	exclude      []string

	// useParallel enables the parallel scan pipeline.
	useParallel bool
	// force rescans files even when their cached result is current.
	force bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithAssertType sets the import assertion type that marks macro imports.
func WithAssertType(assertType string) Option {
	return func(e *Engine) {
		e.assertType = assertType
	}
}

// WithFilter installs a Go filter for imports without a type assertion.
// A Go filter cannot be fingerprinted, so every file is rescanned on each
// run while one is installed. f is called from several goroutines when
// scanning in parallel.
func WithFilter(f Filter) Option {
	return func(e *Engine) {
		e.filter = f
	}
}

// WithFilterScript installs a Risor filter script. The script sees the
// globals name, source and importer and must evaluate to a bool.
func WithFilterScript(source string) Option {
	return func(e *Engine) {
		e.filterScript = source
	}
}

// WithScriptsDir sets the directory Risor import statements in the filter
// script resolve against.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithParallel controls parallel scanning. When true (default), ScanFiles
// uses a worker pool for parsing and analysis, with a single writer
// committing results to SQLite. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithInclude restricts scanning to paths matching at least one glob.
// Relative patterns match against the scanned directory, or the working
// directory for ScanFiles.
func WithInclude(patterns ...string) Option {
	return func(e *Engine) {
		e.include = patterns
	}
}

// WithExclude skips paths matching any glob. Without this option
// discover.DefaultExclude applies.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) {
		if patterns == nil {
			patterns = []string{}
		}
		e.exclude = patterns
	}
}

// WithForce rescans every file regardless of the cache.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// WithLogger sets the Engine's logger. Defaults to the shared process
// logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine backed by a SQLite database at dbPath. An empty
// dbPath keeps the cache in memory for the Engine's lifetime.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{useParallel: true}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Logger()
	}
	if e.exclude == nil {
		e.exclude = discover.DefaultExclude
	}
	if e.filter != nil && e.filterScript != "" {
		return nil, errors.New("macroscan: WithFilter and WithFilterScript are mutually exclusive")
	}

	m, err := discover.NewMatcher(".", e.include, e.exclude)
	if err != nil {
		return nil, fmt.Errorf("macroscan: %w", err)
	}
	e.matcher = m

	if e.filterScript != "" {
		rt := runtime.NewRuntime(e.scriptsDir, runtime.WithLogger(e.logger))
		sf, err := rt.CompileFilter(context.Background(), e.filterScript)
		if err != nil {
			return nil, fmt.Errorf("macroscan: %w", err)
		}
		e.scriptFilter = sf
	}

	if dbPath == "" {
		dbPath = store.MemoryPath
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("macroscan: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("macroscan: migrate: %w", err)
	}
	e.store = s

	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// configHash fingerprints every setting that affects scan output.
func (e *Engine) configHash() string {
	var script string
	if e.scriptFilter != nil {
		script = e.scriptFilter.Source()
	}
	return store.ComputeConfigHash(e.assertType, script, e.include, e.exclude)
}

// ConfigChanged reports whether the configuration differs from the one the
// cached results were produced with. Returns true when nothing has been
// scanned yet.
func (e *Engine) ConfigChanged() bool {
	stored, err := e.store.GetMetadata(store.ConfigHashKey)
	if err != nil || stored == "" {
		return true
	}
	return stored != e.configHash()
}

// filterFor returns the filter used while scanning the module at path.
func (e *Engine) filterFor(ctx context.Context, path string) Filter {
	if e.scriptFilter != nil {
		return e.scriptFilter.For(ctx, path)
	}
	return e.filter
}

// RunSummary reports what a scan did.
type RunSummary struct {
	RunID string `json:"run_id"`
	// Paths lists every file the scan considered, in input order.
	Paths   []string `json:"paths"`
	Scanned int      `json:"scanned"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
}

// FileResult is the cached outcome of scanning one file.
type FileResult struct {
	Path        string    `json:"path"`
	Dialect     string    `json:"dialect"`
	Error       string    `json:"error,omitempty"`
	LastScanned time.Time `json:"last_scanned"`
	Output      *Output   `json:"output"`
}

// ScanFiles scans the given file paths. When WithParallel is enabled,
// uses a worker pool for concurrent analysis with batched SQLite writes.
// Otherwise falls back to the serial path.
//
// For each file:
// 1. Skip unsupported extensions and paths rejected by include/exclude
// 2. Skip files whose content and config hashes match the cache
// 3. Replace the file record
// 4. Parse and analyse, buffering results
// 5. Commit results, or the failure message, to SQLite
//
// Failures on individual files are recorded and processing continues; the
// returned error summarises them alongside a complete RunSummary.
func (e *Engine) ScanFiles(ctx context.Context, paths []string) (*RunSummary, error) {
	return e.scan(ctx, "", e.matcher, paths)
}

// ScanDirectory discovers scannable files under root and scans them.
// Inside a git work tree the listing respects ignore rules; otherwise the
// tree is walked with the root .gitignore applied.
func (e *Engine) ScanDirectory(ctx context.Context, root string) (*RunSummary, error) {
	m, err := discover.NewMatcher(root, e.include, e.exclude)
	if err != nil {
		return nil, fmt.Errorf("macroscan: %w", err)
	}
	paths, err := discover.Files(ctx, root, m)
	if err != nil {
		return nil, fmt.Errorf("macroscan: discover %s: %w", root, err)
	}
	return e.scan(ctx, root, m, paths)
}

func (e *Engine) scan(ctx context.Context, root string, m *discover.Matcher, paths []string) (*RunSummary, error) {
	cfgHash := e.configHash()
	run, err := e.store.InsertRun(root, cfgHash)
	if err != nil {
		return nil, fmt.Errorf("macroscan: %w", err)
	}

	summary := &RunSummary{RunID: run.ID}
	st := &scanState{cfgHash: cfgHash, matcher: m, summary: summary}
	var scanErr error
	if e.useParallel {
		scanErr = e.scanFilesParallel(ctx, paths, st)
	} else {
		scanErr = e.scanFilesSerial(ctx, paths, st)
	}

	run.Scanned, run.Skipped, run.Failed = summary.Scanned, summary.Skipped, summary.Failed
	if err := e.store.FinishRun(run); err != nil {
		e.logger.Warn("finish run", zap.String("run", run.ID), zap.Error(err))
	}
	if err := e.store.SetMetadata(store.ConfigHashKey, cfgHash); err != nil {
		e.logger.Warn("store config hash", zap.Error(err))
	}

	e.logger.Info("scan finished",
		zap.String("run", run.ID),
		zap.Int("scanned", summary.Scanned),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, scanErr
}

func (e *Engine) scanFilesSerial(ctx context.Context, paths []string, st *scanState) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		item, skip, err := e.prepareFile(path, st)
		if err != nil {
			st.summary.Failed++
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if skip {
			continue
		}
		err = e.analyzeFile(ctx, item)
		if err := e.commitFile(item, err, st.summary); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("scanning had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// Results returns the cached result of the file at path.
func (e *Engine) Results(path string) (*FileResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("macroscan: %w", err)
	}
	f, err := e.store.FileByPath(abs)
	if err != nil {
		return nil, fmt.Errorf("macroscan: lookup %s: %w", abs, err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotScanned, abs)
	}
	return e.fileResult(f)
}

// AllResults returns the cached results of every file, ordered by path.
func (e *Engine) AllResults() ([]*FileResult, error) {
	files, err := e.store.AllFiles()
	if err != nil {
		return nil, fmt.Errorf("macroscan: %w", err)
	}
	out := make([]*FileResult, 0, len(files))
	for _, f := range files {
		res, err := e.fileResult(f)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (e *Engine) fileResult(f *store.File) (*FileResult, error) {
	res := &FileResult{
		Path:        f.Path,
		Dialect:     f.Dialect,
		Error:       f.Error,
		LastScanned: f.LastScanned,
	}
	if f.Error != "" {
		return res, nil
	}
	out, err := readOutput(e.store, f.ID)
	if err != nil {
		return nil, fmt.Errorf("macroscan: results for %s: %w", f.Path, err)
	}
	res.Output = out
	return res, nil
}

// Forget drops the cached result of the file at path, if any. Used when a
// watched file is deleted.
func (e *Engine) Forget(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("macroscan: %w", err)
	}
	f, err := e.store.FileByPath(abs)
	if err != nil || f == nil {
		return err
	}
	return e.store.DeleteFiles([]int64{f.ID})
}

// writeOutput stores an analysis result through ds in output order.
func writeOutput(ds store.DataStore, fileID int64, out *Output) error {
	for _, r := range out.Replaces {
		if _, err := ds.InsertReplace(&store.Replace{
			FileID:     fileID,
			Lo:         r.Lo,
			Hi:         r.Hi,
			ImportSrc:  r.ImportSrc,
			ImportName: r.ImportName,
		}); err != nil {
			return err
		}
	}
	for _, r := range out.Removals {
		if _, err := ds.InsertRemoval(&store.Removal{FileID: fileID, Lo: r.Lo, Hi: r.Hi}); err != nil {
			return err
		}
	}
	return nil
}

// readOutput rebuilds an Output from rows stored through ds.
func readOutput(ds store.DataStore, fileID int64) (*Output, error) {
	reps, err := ds.ReplacesByFile(fileID)
	if err != nil {
		return nil, err
	}
	rems, err := ds.RemovalsByFile(fileID)
	if err != nil {
		return nil, err
	}
	replaces := make([]Replace, 0, len(reps))
	for _, r := range reps {
		replaces = append(replaces, Replace{Lo: r.Lo, Hi: r.Hi, ImportSrc: r.ImportSrc, ImportName: r.ImportName})
	}
	removals := make([]Removal, 0, len(rems))
	for _, r := range rems {
		removals = append(removals, Removal{Lo: r.Lo, Hi: r.Hi})
	}
	return &Output{Replaces: replaces, Removals: removals}, nil
}

// isAnalysisError reports whether err comes from the module's content
// rather than from I/O or cancellation.
func isAnalysisError(err error) bool {
	return errors.Is(err, syntax.ErrSyntax) || errors.Is(err, collect.ErrUnsupportedDefaultExport)
}

// readSource reads a file for scanning.
func readSource(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return content, nil
}
