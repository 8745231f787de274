// Package watch reports changed source files under a directory tree,
// coalescing bursts of filesystem events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jward/macroscan/internal/discover"
	"github.com/jward/macroscan/internal/logging"
	"github.com/jward/macroscan/internal/syntax"
)

// Batch is one debounced set of changes. Paths are absolute and sorted.
type Batch struct {
	Changed []string
	Removed []string
}

// Watcher watches a directory tree for changes to scannable files.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	matcher  *discover.Matcher
	onChange func(Batch)
	logger   *zap.Logger

	callbackMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the Watcher's logger. Defaults to the shared process
// logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// New creates a Watcher over root. Files must be scannable and pass m (nil
// admits all); onChange receives each debounced batch and is never called
// concurrently.
func New(root string, m *discover.Matcher, debounce time.Duration, onChange func(Batch), opts ...Option) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: onChange is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		root:     abs,
		debounce: debounce,
		matcher:  m,
		onChange: onChange,
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.Logger()
	}

	if err := w.watchRecursive(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run delivers batches until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.skipDir(event.Name) {
				return
			}
			if err := w.watchRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
				return
			}
			w.enqueueExistingFiles(event.Name)
			return
		}
	}

	if !w.wants(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		w.scheduleChange(event.Name)
	}
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) skipDir(path string) bool {
	name := filepath.Base(path)
	return name == "node_modules" || strings.HasPrefix(name, ".")
}

func (w *Watcher) wants(path string) bool {
	return syntax.IsScannable(path) && (w.matcher == nil || w.matcher.Match(path))
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.wants(path) {
			w.scheduleChange(path)
		}
		return nil
	})
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)

	var batch Batch
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			batch.Removed = append(batch.Removed, p)
		} else {
			batch.Changed = append(batch.Changed, p)
		}
	}

	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.onChange(batch)
}

func (w *Watcher) close() {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("close watcher", zap.Error(err))
	}
}
