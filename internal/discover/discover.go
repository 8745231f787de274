// Package discover finds scannable JavaScript and TypeScript files and
// applies include/exclude globs.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/macroscan/internal/syntax"
)

// DefaultExclude is applied when no exclude patterns are configured.
var DefaultExclude = []string{"**/node_modules/**"}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
}

// Matcher decides whether a path passes the include/exclude globs.
// Patterns use '/' as separator and are tried against the slash form of the
// absolute path and of the path relative to the root.
type Matcher struct {
	root    string
	include []glob.Glob
	exclude []glob.Glob
}

// NewMatcher compiles include and exclude patterns. An empty include list
// admits every file. A nil exclude list means DefaultExclude; pass an empty
// non-nil slice to disable exclusion.
func NewMatcher(root string, include, exclude []string) (*Matcher, error) {
	if exclude == nil {
		exclude = DefaultExclude
	}
	inc, err := CompileGlobs(include, "include")
	if err != nil {
		return nil, err
	}
	exc, err := CompileGlobs(exclude, "exclude")
	if err != nil {
		return nil, err
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	return &Matcher{root: root, include: inc, exclude: exc}, nil
}

// CompileGlobs compiles patterns with '/' as the separator.
func CompileGlobs(patterns []string, label string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("discover: invalid %s pattern %q: %w", label, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Match reports whether path is included and not excluded.
func (m *Matcher) Match(path string) bool {
	candidates := m.candidates(path)
	if anyMatch(m.exclude, candidates) {
		return false
	}
	return len(m.include) == 0 || anyMatch(m.include, candidates)
}

func (m *Matcher) candidates(path string) []string {
	abs := path
	if a, err := filepath.Abs(path); err == nil {
		abs = a
	}
	out := []string{filepath.ToSlash(abs)}
	if m.root != "" {
		if rel, err := filepath.Rel(m.root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			out = append(out, filepath.ToSlash(rel))
		}
	}
	return out
}

func anyMatch(globs []glob.Glob, candidates []string) bool {
	for _, g := range globs {
		for _, c := range candidates {
			if g.Match(c) {
				return true
			}
		}
	}
	return false
}

// Files returns the absolute paths of scannable files under root that pass
// m, sorted. Inside a git work tree the listing comes from git ls-files
// (tracked and untracked, honouring ignore rules); otherwise root is walked
// and the top-level .gitignore is applied. A nil m admits everything
// scannable.
func Files(ctx context.Context, root string, m *Matcher) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	paths, err := gitListFiles(ctx, root)
	if err != nil {
		paths, err = walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}

	var out []string
	for _, p := range paths {
		if !syntax.IsScannable(p) {
			continue
		}
		if m != nil && !m.Match(p) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// gitListFiles lists files with git ls-files. It fails when root is not in
// a git work tree or git is unavailable.
func gitListFiles(ctx context.Context, root string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(line))
		// ls-files --cached still lists files deleted from the work tree.
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		paths = append(paths, abs)
	}
	return paths, nil
}

// walkListFiles walks root, skipping hidden and VCS directories,
// node_modules, symlinks and anything the root .gitignore matches.
func walkListFiles(root string) ([]string, error) {
	gi, _ := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if path == root {
			return nil
		}
		name := d.Name()
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}

		if d.IsDir() {
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(filepath.ToSlash(rel)+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if gi != nil && gi.MatchesPath(filepath.ToSlash(rel)) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover: walk %s: %w", root, err)
	}
	return paths, nil
}
