package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-coro-inspect/internal/analyzer"
	"github.com/penwyp/go-coro-inspect/internal/config"
	"github.com/penwyp/go-coro-inspect/internal/data/cache"
	"github.com/penwyp/go-coro-inspect/internal/util"
)

// ErrTracePathMissing is returned when the trace argument is absent.
var ErrTracePathMissing = errors.New("tracepath missing")

type rootOptions struct {
	configPath string
	debug      bool

	// Overrides of the config file
	output     string
	sort       string
	event      string
	reader     string
	babeltrace string
	noCache    bool
	reset      bool

	cfg *config.Config
}

// NewRootCommand builds the go-coro-inspect command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "go-coro-inspect <tracepath> [flags]",
		Short: "Rebuild coroutine execution trees from ttracer traces",
		Long: `go-coro-inspect reads a trace recorded with the ttracer coroutine beacons and
prints, for every coroutine stack, the tree of coroutine executions with their
durations.

CTF traces (LTTng session directories) are decoded with babeltrace; traces
exported as JSON Lines are read directly.

Examples:
  go-coro-inspect ~/lttng-traces/session-20180516                # Text report
  go-coro-inspect trace.jsonl --output summary                  # Per-coroutine statistics
  go-coro-inspect ~/lttng-traces/session --output chrome > t.json  # Open in chrome://tracing
  go-coro-inspect dump ~/lttng-traces/session > trace.jsonl     # Export beacon events
  go-coro-inspect watch ~/lttng-traces/session                  # Re-run on every change`,
		Args:              exactlyOneTrace,
		PersistentPreRunE: opts.prepare,
		RunE:              opts.runAnalyze,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	// Configuration
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigFile,
		"Configuration file path")

	// Input
	rootCmd.PersistentFlags().StringVar(&opts.reader, "reader", "",
		"Trace reader (auto, babeltrace, jsonl)")
	rootCmd.PersistentFlags().StringVar(&opts.babeltrace, "babeltrace", "",
		"babeltrace binary used to decode CTF traces")
	rootCmd.PersistentFlags().StringVar(&opts.event, "event", "",
		"Name of the coroutine beacon event")

	// Output
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "",
		"Output format (text, json, chrome, summary)")
	rootCmd.PersistentFlags().StringVar(&opts.sort, "sort", "",
		"Summary row order: total, count, mean, max or name, optionally suffixed :asc or :desc")

	// Cache
	rootCmd.PersistentFlags().BoolVar(&opts.noCache, "no-cache", false,
		"Decode the trace even when a cached decoding is valid")
	rootCmd.PersistentFlags().BoolVarP(&opts.reset, "reset", "r", false,
		"Clear the event cache before analysis")

	// System and debugging
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false,
		"Enable debug mode")

	rootCmd.AddCommand(newDumpCommand(opts))
	rootCmd.AddCommand(newWatchCommand(opts))

	return rootCmd
}

// Execute runs the command line.
func Execute() error {
	return NewRootCommand().Execute()
}

func exactlyOneTrace(cmd *cobra.Command, args []string) error {
	switch {
	case len(args) == 0:
		return ErrTracePathMissing
	case len(args) > 1:
		return fmt.Errorf("expected exactly one tracepath, got %d", len(args))
	}
	return nil
}

// prepare loads the configuration, applies flag overrides and sets up
// logging and the cache.
func (o *rootOptions) prepare(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output = o.output
	}
	if flags.Changed("sort") {
		cfg.Sort = o.sort
	}
	if flags.Changed("event") {
		cfg.Event = o.event
	}
	if flags.Changed("reader") {
		cfg.Reader = o.reader
	}
	if flags.Changed("babeltrace") {
		cfg.Babeltrace = o.babeltrace
	}
	if o.noCache {
		cfg.Cache.Enabled = false
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	logOpts := util.LogOptions{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Format:  util.LogFormat(cfg.Logging.Format),
		Console: o.debug,
	}
	if err := util.InitLogger(logOpts); err != nil {
		// keep going without the file sink
		logOpts.File = ""
		_ = util.InitLogger(logOpts)
		util.LogWarn(err.Error())
	}
	util.LogDebug("Configuration loaded", util.F("config", o.configPath), util.F("output", cfg.Output),
		util.F("reader", cfg.Reader), util.F("event", cfg.Event))

	if o.reset {
		if err := clearCache(cfg.Cache.Dir); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		util.LogInfo("Cache cleared")
	}
	return nil
}

func (o *rootOptions) analyzerConfig(tracePath string) *analyzer.Config {
	return &analyzer.Config{
		TracePath:    tracePath,
		Reader:       o.cfg.Reader,
		Babeltrace:   o.cfg.Babeltrace,
		EventName:    o.cfg.Event,
		OutputFormat: o.cfg.Output,
		SortBy:       o.cfg.Sort,
		CacheDir:     o.cfg.Cache.Dir,
		NoCache:      !o.cfg.Cache.Enabled,
	}
}

func (o *rootOptions) runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := o.analyzerConfig(args[0])
	cfg.Color = util.IsTerminal(cmd.OutOrStdout())

	a := analyzer.New(cfg).WithOutput(cmd.OutOrStdout())
	return a.Run(cmd.Context())
}

func clearCache(cacheDir string) error {
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		return nil
	}
	c, err := cache.NewFileCache(cacheDir)
	if err != nil {
		return err
	}
	return c.Clear()
}
