package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/macroscan"
	"github.com/jward/macroscan/internal/logging"
	"github.com/jward/macroscan/internal/runtime"
)

func (a *app) scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [path...]",
		Short: "Scan a directory or a list of files for macro locations",
		Long:  "Scans one directory (default: the working directory) or a list of files, caching results in the database, and prints the macro locations of every file considered.",
		RunE:  a.runScan,
	}
	addScanFlags(cmd.Flags())
	addCacheFlags(cmd.Flags())
	return cmd
}

func (a *app) runScan(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return a.outputError("scan", err)
	}
	engine, err := openEngine(cfg)
	if err != nil {
		return a.outputError("scan", err)
	}
	defer engine.Close()

	dir, files, err := splitTargets(args)
	if err != nil {
		return a.outputError("scan", err)
	}

	var summary *macroscan.RunSummary
	var scanErr error
	if dir != "" {
		summary, scanErr = engine.ScanDirectory(cmd.Context(), dir)
	} else {
		summary, scanErr = engine.ScanFiles(cmd.Context(), files)
	}
	if summary == nil {
		return a.outputError("scan", scanErr)
	}

	results, err := collectResults(engine, summary.Paths)
	if err != nil {
		return a.outputError("scan", err)
	}
	result := CLIResult{
		Command: "scan",
		Results: CLIScan{Summary: summary, Files: results},
	}
	if scanErr != nil {
		result.Error = scanErr.Error()
		a.errorHandled = true
	}
	if err := a.outputResult(result); err != nil {
		return err
	}
	return scanErr
}

// splitTargets resolves scan arguments to either a single directory or a
// list of files. No arguments means the working directory.
func splitTargets(args []string) (dir string, files []string, err error) {
	if len(args) == 0 {
		return ".", nil, nil
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return "", nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if info.IsDir() {
			if len(args) > 1 {
				return "", nil, fmt.Errorf("%s is a directory; scan accepts one directory or a list of files", arg)
			}
			return arg, nil, nil
		}
		files = append(files, arg)
	}
	return "", files, nil
}

// collectResults loads the cached result of each path. Paths whose record
// was dropped after an infrastructure failure are left out.
func collectResults(engine *macroscan.Engine, paths []string) ([]*macroscan.FileResult, error) {
	results := make([]*macroscan.FileResult, 0, len(paths))
	for _, p := range paths {
		res, err := engine.Results(p)
		if errors.Is(err, macroscan.ErrNotScanned) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *app) fileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Analyse one module without the cache",
		Long:  "Analyses a single module and prints its raw {replaces, removals} object. Nothing is read from or written to the database.",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runFile,
	}
	addScanFlags(cmd.Flags())
	return cmd
}

func (a *app) runFile(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return a.outputError("file", err)
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return a.outputError("file", err)
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return a.outputError("file", err)
	}

	opts := macroscan.TransformOptions{
		AbsolutePath: path,
		Code:         string(code),
		AssertType:   cfg.AssertType,
	}
	src, err := cfg.FilterSource()
	if err != nil {
		return a.outputError("file", err)
	}
	if src != "" {
		rt := runtime.NewRuntime(cfg.ScriptsDir(), runtime.WithLogger(logging.Logger()))
		sf, err := rt.CompileFilter(cmd.Context(), src)
		if err != nil {
			return a.outputError("file", err)
		}
		opts.Filter = sf.For(cmd.Context(), path)
	}

	out, err := macroscan.TransformCode(cmd.Context(), opts)
	if err != nil {
		return a.outputError("file", err)
	}
	if a.flagFormat == "text" {
		formatOutputText(a.stdout, out)
		return nil
	}
	return writeJSON(a.stdout, out)
}

func (a *app) showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Print cached results",
		Long:  "Prints the cached result of one file, or of every file in the database when no path is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runShow,
	}
	cmd.Flags().String("db", ".macroscan.db", "cache database path")
	return cmd
}

func (a *app) runShow(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return a.outputError("show", err)
	}
	dbPath := cfg.DBPath()
	if dbPath == "" {
		return a.outputError("show", errors.New("show needs a cache database; no_cache is set"))
	}
	if _, err := os.Stat(dbPath); err != nil {
		return a.outputError("show", fmt.Errorf("no cache database at %s; run macroscan scan first", dbPath))
	}
	engine, err := openEngine(cfg)
	if err != nil {
		return a.outputError("show", err)
	}
	defer engine.Close()

	result := CLIResult{Command: "show"}
	if len(args) == 1 {
		res, err := engine.Results(args[0])
		if err != nil {
			return a.outputError("show", err)
		}
		result.Results = res
	} else {
		all, err := engine.AllResults()
		if err != nil {
			return a.outputError("show", err)
		}
		result.Results = all
	}
	return a.outputResult(result)
}
