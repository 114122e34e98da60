package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/arcfs/internal/archive"
	"github.com/bamsammich/arcfs/internal/config"
	"github.com/bamsammich/arcfs/internal/engine"
	"github.com/bamsammich/arcfs/internal/filter"
	"github.com/bamsammich/arcfs/internal/recovery"
	"github.com/bamsammich/arcfs/internal/stats"
	"github.com/bamsammich/arcfs/internal/ui"
)

// actionFlag is a pflag.Value restricted to a set of recovery actions.
type actionFlag struct {
	a       *recovery.Action
	allowed []recovery.Action
}

var _ pflag.Value = (*actionFlag)(nil)

func (f *actionFlag) String() string {
	if f.a == nil {
		return ""
	}
	return f.a.String()
}

func (*actionFlag) Type() string { return "action" }

func (f *actionFlag) Set(val string) error {
	a, err := recovery.ParseAction(strings.ToLower(val))
	if err != nil {
		return err
	}
	if !slices.Contains(f.allowed, a) {
		names := make([]string, len(f.allowed))
		for i, x := range f.allowed {
			names[i] = x.String()
		}
		return fmt.Errorf("%q is not one of %s", val, strings.Join(names, ", "))
	}
	*f.a = a
	return nil
}

// filterFlag is a pflag.Value that preserves CLI ordering of --exclude and
// --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

// options holds the persistent flags shared by every subcommand.
type options struct {
	strategy   recovery.Strategy
	chain      *filter.Chain
	filterFile string
	minSize    string
	maxSize    string
	bwLimit    string
	blockSize  string
	logFile    string
	configFile string
	verbose    bool
	quiet      bool
	noProgress bool
}

func (o *options) register(cmd *cobra.Command) {
	o.strategy = recovery.Strategy{OnConflict: recovery.Abort, OnError: recovery.Abort, Retries: 3}

	f := cmd.PersistentFlags()
	f.Var(&actionFlag{a: &o.strategy.OnConflict, allowed: []recovery.Action{
		recovery.Overwrite, recovery.Duplicate, recovery.Skip, recovery.Abort,
	}}, "on-conflict", "when the target exists: overwrite, duplicate, skip or abort")
	f.Var(&actionFlag{a: &o.strategy.OnError, allowed: []recovery.Action{
		recovery.Skip, recovery.Retry, recovery.Abort,
	}}, "on-error", "when an entry fails: skip, retry or abort")
	f.IntVar(&o.strategy.Retries, "retries", o.strategy.Retries, "retry attempts per failure with --on-error=retry")
	f.StringVar(&o.bwLimit, "bwlimit", "", "bandwidth limit (e.g. 100MB, 1GiB)")
	f.StringVar(&o.blockSize, "block-size", "", "copy block size (default 1MiB)")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "suppress all output except errors")
	f.BoolVar(&o.noProgress, "no-progress", false, "disable progress display")
	f.StringVar(&o.logFile, "log", "", "write structured JSON log to FILE")
	f.StringVar(&o.configFile, "config", "", "config file (default "+config.Path()+")")

	o.chain = filter.NewChain()
	f.Var(&filterFlag{chain: o.chain}, "exclude", "cp/mv: exclude entries matching PATTERN (repeatable)")
	f.Var(&filterFlag{chain: o.chain, include: true}, "include", "cp/mv: include entries matching PATTERN (repeatable)")
	f.StringVar(&o.filterFile, "filter", "", "cp/mv: read filter rules from FILE")
	f.StringVar(&o.minSize, "min-size", "", "cp/mv: skip files smaller than SIZE (e.g. 1M, 100K)")
	f.StringVar(&o.maxSize, "max-size", "", "cp/mv: skip files larger than SIZE (e.g. 1G, 500M)")
}

// filters completes the chain built from --exclude/--include with the filter
// file and size bounds. It returns nil when nothing restricts the selection.
func (o *options) filters() (*filter.Chain, error) {
	if o.filterFile != "" {
		if err := o.chain.LoadFile(o.filterFile); err != nil {
			return nil, err
		}
	}
	if o.minSize != "" {
		if err := o.chain.SetMinSize(o.minSize); err != nil {
			return nil, fmt.Errorf("invalid --min-size: %w", err)
		}
	}
	if o.maxSize != "" {
		if err := o.chain.SetMaxSize(o.maxSize); err != nil {
			return nil, fmt.Errorf("invalid --max-size: %w", err)
		}
	}
	if o.chain.Empty() {
		return nil, nil //nolint:nilnil // nil chain takes everything
	}
	return o.chain, nil
}

// app is what a subcommand needs to run tasks.
type app struct {
	eng      *engine.Engine
	catalog  *archive.Catalog
	stats    *stats.Collector
	opts     *options
	closeLog func()
}

// setup loads the config, configures logging and builds the engine. Config
// defaults apply only to flags not set on the command line.
//
//nolint:gocyclo // flat sequence of independent defaults
func (o *options) setup(cmd *cobra.Command) (*app, error) {
	var (
		cfg config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}

	flags := cmd.Flags()
	d := cfg.Defaults
	if !flags.Changed("on-conflict") && d.OnConflict != nil {
		if err := flags.Set("on-conflict", *d.OnConflict); err != nil {
			return nil, fmt.Errorf("config on_conflict: %w", err)
		}
	}
	if !flags.Changed("on-error") && d.OnError != nil {
		if err := flags.Set("on-error", *d.OnError); err != nil {
			return nil, fmt.Errorf("config on_error: %w", err)
		}
	}
	if !flags.Changed("retries") && d.Retries != nil {
		o.strategy.Retries = *d.Retries
	}

	blockSize, err := d.BlockSizeBytes()
	if err != nil {
		return nil, err
	}
	if o.blockSize != "" {
		n, err := humanize.ParseBytes(o.blockSize)
		if err != nil || n == 0 || n > 1<<30 {
			return nil, fmt.Errorf("invalid --block-size %q", o.blockSize)
		}
		blockSize = int(n)
	}
	bwLimit, err := d.BWLimitBytes()
	if err != nil {
		return nil, err
	}
	if o.bwLimit != "" {
		n, err := humanize.ParseBytes(o.bwLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		bwLimit = int64(n) //nolint:gosec // G115: bandwidth fits in int64
	}

	chain, err := o.filters()
	if err != nil {
		return nil, err
	}

	a := &app{opts: o, stats: stats.NewCollector(), closeLog: func() {}}
	logger, err := o.logger(a)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a.catalog, err = config.Catalog(cfg)
	if err != nil {
		logger.Warn("archive catalog incomplete", "error", err)
	}
	a.eng = engine.New(engine.Config{
		Handler:   o.strategy.Handler(),
		Stats:     a.stats,
		Logger:    logger,
		BlockSize: blockSize,
		BWLimit:   bwLimit,
		Filter:    chain,
	})
	logger.Debug("configured",
		"on_conflict", o.strategy.OnConflict,
		"on_error", o.strategy.OnError,
		"retries", o.strategy.Retries,
		"block_size", blockSize,
		"bwlimit", bwLimit,
	)
	return a, nil
}

func (o *options) logger(a *app) (*slog.Logger, error) {
	logLevel := slog.LevelWarn
	if o.verbose {
		logLevel = slog.LevelDebug
	} else if !o.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	if o.logFile == "" {
		return slog.New(textHandler), nil
	}
	lf, err := os.Create(o.logFile)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	a.closeLog = func() { _ = lf.Close() }
	jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(ui.NewMultiHandler(textHandler, jsonHandler)), nil
}

// withApp adapts a subcommand body that needs an app into a cobra RunE.
func withApp(o *options, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := o.setup(cmd)
		if err != nil {
			return err
		}
		defer a.closeLog()
		return fn(cmd.Context(), a, args)
	}
}
