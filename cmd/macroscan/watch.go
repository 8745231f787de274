package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/macroscan"
	"github.com/jward/macroscan/internal/config"
	"github.com/jward/macroscan/internal/discover"
	"github.com/jward/macroscan/internal/logging"
	"github.com/jward/macroscan/internal/watch"
)

func (a *app) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Scan a directory and rescan files as they change",
		Long:  "Scans a directory, then watches it and rescans changed files after a quiet period. Each scan prints one result envelope.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runWatch,
	}
	addScanFlags(cmd.Flags())
	addCacheFlags(cmd.Flags())
	cmd.Flags().Duration("debounce", 200*time.Millisecond, "quiet period before changed files are rescanned")
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return a.outputError("watch", err)
	}
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	info, err := os.Stat(root)
	if err != nil {
		return a.outputError("watch", err)
	}
	if !info.IsDir() {
		return a.outputError("watch", fmt.Errorf("%s is not a directory", root))
	}

	engine, err := openEngine(cfg)
	if err != nil {
		return a.outputError("watch", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, scanErr := engine.ScanDirectory(ctx, root)
	if summary == nil {
		return a.outputError("watch", scanErr)
	}
	if err := a.reportRun(engine, summary, scanErr); err != nil {
		return err
	}

	return a.watchLoop(ctx, engine, cfg, root)
}

// watchLoop rescans changed files until ctx is done.
func (a *app) watchLoop(ctx context.Context, engine *macroscan.Engine, cfg *config.Config, root string) error {
	m, err := discover.NewMatcher(root, cfg.Include, append([]string{}, cfg.Exclude...))
	if err != nil {
		return a.outputError("watch", err)
	}
	logger := logging.Logger()

	w, err := watch.New(root, m, cfg.Watch.Debounce, func(b watch.Batch) {
		for _, p := range b.Removed {
			if err := engine.Forget(p); err != nil {
				logger.Warn("forget removed file", zap.String("path", p), zap.Error(err))
			}
		}
		if len(b.Changed) == 0 {
			return
		}
		summary, scanErr := engine.ScanFiles(ctx, b.Changed)
		if summary == nil {
			logger.Error("rescan failed", zap.Error(scanErr))
			return
		}
		if err := a.reportRun(engine, summary, scanErr); err != nil {
			logger.Error("write results", zap.Error(err))
		}
	}, watch.WithLogger(logger))
	if err != nil {
		return a.outputError("watch", err)
	}

	logger.Info("watching for changes", zap.String("root", root), zap.Duration("debounce", cfg.Watch.Debounce))
	return w.Run(ctx)
}

// reportRun prints the results of one watch scan. Per-file failures are
// part of the output and do not stop watching.
func (a *app) reportRun(engine *macroscan.Engine, summary *macroscan.RunSummary, scanErr error) error {
	results, err := collectResults(engine, summary.Paths)
	if err != nil {
		return a.outputError("watch", err)
	}
	result := CLIResult{
		Command: "watch",
		Results: CLIScan{Summary: summary, Files: results},
	}
	if scanErr != nil {
		result.Error = scanErr.Error()
	}
	return a.outputResult(result)
}
