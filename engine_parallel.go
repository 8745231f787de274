package macroscan

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jward/macroscan/internal/discover"
	"github.com/jward/macroscan/internal/store"
	"github.com/jward/macroscan/internal/syntax"
)

// scanState is shared by the phases of one scan.
type scanState struct {
	cfgHash string
	matcher *discover.Matcher
	summary *RunSummary
}

// workItem holds everything a scan worker needs.
type workItem struct {
	path    string
	fileID  int64
	content []byte
	batch   *store.BatchedStore
}

// scanFilesParallel scans files using a three-phase parallel pipeline:
//
//	Phase A (serial):   Hash check, replace stale records, prepare file records.
//	Phase B (parallel): Parse and analyse via worker pool, buffering results.
//	Phase C (serial):   Commit batches to SQLite.
func (e *Engine) scanFilesParallel(ctx context.Context, paths []string, st *scanState) error {
	var errs []error

	// ---- Phase A: Serial file preparation ----
	var items []workItem
	for _, path := range paths {
		item, skip, err := e.prepareFile(path, st)
		if err != nil {
			st.summary.Failed++
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if skip {
			continue
		}
		items = append(items, item)
	}

	if len(items) > 0 {
		// ---- Phase B: Parallel analysis ----
		numWorkers := min(runtime.NumCPU(), len(items))
		if numWorkers < 1 {
			numWorkers = 1
		}

		workCh := make(chan workItem, len(items))
		for _, item := range items {
			workCh <- item
		}
		close(workCh)

		type result struct {
			item workItem
			err  error
		}
		resultCh := make(chan result, len(items))

		var wg sync.WaitGroup
		for range numWorkers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Each item carries its own BatchedStore; workers never
				// touch SQLite.
				for item := range workCh {
					if err := ctx.Err(); err != nil {
						resultCh <- result{item: item, err: err}
						continue
					}
					resultCh <- result{item: item, err: e.analyzeFile(ctx, item)}
				}
			}()
		}

		go func() {
			wg.Wait()
			close(resultCh)
		}()

		// ---- Phase C: Serial commit ----
		for res := range resultCh {
			if err := e.commitFile(res.item, res.err, st.summary); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("parallel scanning had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// prepareFile does Phase A work for a single file: filtering, hash check
// and the file record. Returns (item, skip, error). skip=true means the file
// is unsupported, filtered out or unchanged.
func (e *Engine) prepareFile(path string, st *scanState) (workItem, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return workItem{}, false, err
	}
	if !syntax.IsScannable(abs) || !st.matcher.Match(abs) {
		return workItem{}, true, nil
	}
	st.summary.Paths = append(st.summary.Paths, abs)

	content, err := readSource(abs)
	if err != nil {
		return workItem{}, false, err
	}
	hash := store.ContentHash(content)

	existing, err := e.store.FileByPath(abs)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && e.cached(existing, hash, st.cfgHash) {
		st.summary.Skipped++
		e.logger.Debug("unchanged", zap.String("path", abs))
		return workItem{}, true, nil
	}

	// Clean up the stale record and its results.
	if existing != nil {
		if err := e.store.DeleteFiles([]int64{existing.ID}); err != nil {
			return workItem{}, false, fmt.Errorf("delete old data: %w", err)
		}
	}

	fileID, err := e.store.InsertFile(&store.File{
		Path:        abs,
		Hash:        hash,
		Dialect:     syntax.DialectForPath(abs).String(),
		ConfigHash:  st.cfgHash,
		LastScanned: time.Now(),
	})
	if err != nil {
		return workItem{}, false, fmt.Errorf("insert file: %w", err)
	}

	return workItem{
		path:    abs,
		fileID:  fileID,
		content: content,
		batch:   store.NewBatchedStore(e.store, fileID),
	}, false, nil
}

// cached reports whether f's stored result can be reused.
func (e *Engine) cached(f *store.File, hash, cfgHash string) bool {
	if e.force || e.filter != nil {
		return false
	}
	return f.Hash == hash && f.ConfigHash == cfgHash
}

// analyzeFile runs the pipeline over one file, buffering the output in the
// item's BatchedStore. Content errors are recorded on the batch as well as
// returned.
func (e *Engine) analyzeFile(ctx context.Context, item workItem) error {
	out, err := TransformCode(ctx, TransformOptions{
		AbsolutePath: item.path,
		Code:         string(item.content),
		AssertType:   e.assertType,
		Filter:       e.filterFor(ctx, item.path),
	})
	if err != nil {
		if isAnalysisError(err) {
			item.batch.SetError(err.Error())
		}
		return err
	}
	return writeOutput(item.batch, item.fileID, out)
}

// commitFile does Phase C work for a single file. Content errors are
// committed so the failure is cached; any other failure drops the file
// record so the next run retries it.
func (e *Engine) commitFile(item workItem, scanErr error, summary *RunSummary) error {
	if scanErr != nil && item.batch.Err == "" {
		summary.Failed++
		e.dropFile(item)
		return fmt.Errorf("scan %s: %w", item.path, scanErr)
	}

	if err := e.store.CommitBatch(item.batch); err != nil {
		summary.Failed++
		e.dropFile(item)
		return fmt.Errorf("commit %s: %w", item.path, err)
	}

	if scanErr != nil {
		summary.Failed++
		e.logger.Warn("scan failed", zap.String("path", item.path), zap.Error(scanErr))
		return fmt.Errorf("scan %s: %w", item.path, scanErr)
	}

	summary.Scanned++
	e.logger.Debug("scanned",
		zap.String("path", item.path),
		zap.Int("replaces", len(item.batch.Replaces)),
		zap.Int("removals", len(item.batch.Removals)),
	)
	return nil
}

func (e *Engine) dropFile(item workItem) {
	if err := e.store.DeleteFiles([]int64{item.fileID}); err != nil {
		e.logger.Warn("drop file record", zap.String("path", item.path), zap.Error(err))
	}
}
