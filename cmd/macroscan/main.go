package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jward/macroscan"
	"github.com/jward/macroscan/internal/config"
	"github.com/jward/macroscan/internal/logging"
)

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.root.Execute(); err != nil {
		if !app.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// app holds the command tree and the state shared by its commands.
type app struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	flagConfig   string
	flagFormat   string
	flagLogLevel string

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{stdout: stdout, stderr: stderr}
	a.root = &cobra.Command{
		Use:           "macroscan",
		Short:         "Locate macro call sites in JavaScript and TypeScript modules",
		Long:          "Macroscan parses JS/TS modules with tree-sitter, finds calls to functions imported from macro modules and reports the source ranges to replace and the import declarations to remove.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(a.flagFormat)
		},
	}
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)

	pf := a.root.PersistentFlags()
	pf.StringVar(&a.flagConfig, "config", "", "config file (default: macroscan.{toml,yaml,json} in the working directory)")
	pf.StringVar(&a.flagFormat, "format", "json", "output format: json|text")
	pf.StringVar(&a.flagLogLevel, "log-level", "", "log level: debug|info|warn|error")

	a.root.AddCommand(a.scanCmd())
	a.root.AddCommand(a.fileCmd())
	a.root.AddCommand(a.showCmd())
	a.root.AddCommand(a.watchCmd())
	return a
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":   "log.level",
	"assert-type": "assert_type",
	"filter":      "filter.script",
	"filter-file": "filter.script_file",
	"include":     "include",
	"exclude":     "exclude",
	"db":          "db",
	"no-cache":    "no_cache",
	"force":       "force",
	"parallel":    "parallel",
	"debounce":    "watch.debounce",
}

// addScanFlags registers the flags shared by commands that analyse files.
func addScanFlags(fs *pflag.FlagSet) {
	fs.String("assert-type", "macro", "import assertion type marking macro imports")
	fs.String("filter", "", "Risor filter script selecting macro imports without an assertion")
	fs.String("filter-file", "", "file holding the Risor filter script")
	fs.StringSlice("include", nil, "glob patterns a file must match")
	fs.StringSlice("exclude", nil, "glob patterns excluding files (default: **/node_modules/**)")
}

// addCacheFlags registers the flags of commands that use the result cache.
func addCacheFlags(fs *pflag.FlagSet) {
	fs.String("db", ".macroscan.db", "cache database path")
	fs.Bool("no-cache", false, "keep results in memory only")
	fs.Bool("force", false, "rescan files even when the cache is current")
	fs.Bool("parallel", true, "analyse files on a worker pool")
}

// loadConfig merges the config file, MACROSCAN_* environment variables and
// the flags of cmd, then installs the process logger.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	bind := func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}
	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)

	cfg, err := config.Load(v, a.flagConfig)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLogger(logger)
	return cfg, nil
}

// engineOptions translates the configuration into engine options.
func engineOptions(cfg *config.Config) ([]macroscan.Option, error) {
	opts := []macroscan.Option{
		macroscan.WithAssertType(cfg.AssertType),
		macroscan.WithInclude(cfg.Include...),
		macroscan.WithExclude(cfg.Exclude...),
		macroscan.WithParallel(cfg.Parallel),
		macroscan.WithForce(cfg.Force),
		macroscan.WithLogger(logging.Logger()),
	}
	src, err := cfg.FilterSource()
	if err != nil {
		return nil, err
	}
	if src != "" {
		opts = append(opts, macroscan.WithFilterScript(src))
		if dir := cfg.ScriptsDir(); dir != "" {
			opts = append(opts, macroscan.WithScriptsDir(dir))
		}
	}
	return opts, nil
}

// openEngine opens the engine over the configured cache database.
func openEngine(cfg *config.Config) (*macroscan.Engine, error) {
	opts, err := engineOptions(cfg)
	if err != nil {
		return nil, err
	}
	dbPath := cfg.DBPath()
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
		}
	}
	engine, err := macroscan.New(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	if dbPath != "" && engine.ConfigChanged() {
		logging.Logger().Info("configuration changed, cached results will be rescanned", zap.String("db", dbPath))
	}
	return engine, nil
}
