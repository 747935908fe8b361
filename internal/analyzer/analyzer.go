// Package analyzer runs one trace analysis: decode the trace, rebuild the
// coroutine stacks and render the report.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/penwyp/go-coro-inspect/internal/core/coro"
	"github.com/penwyp/go-coro-inspect/internal/core/model"
	"github.com/penwyp/go-coro-inspect/internal/data/cache"
	"github.com/penwyp/go-coro-inspect/internal/data/reader"
	"github.com/penwyp/go-coro-inspect/internal/presentation/formatter"
	"github.com/penwyp/go-coro-inspect/internal/util"
)

type Config struct {
	TracePath    string
	Reader       string // auto, babeltrace, jsonl
	Babeltrace   string
	EventName    string
	OutputFormat string
	SortBy       string // summary row order, see formatter.ParseSort
	CacheDir     string
	NoCache      bool
	Color        bool
}

// Result is the outcome of the decoding and reconstruction phases.
type Result struct {
	RunID      string
	ReaderName string
	Events     int
	FromCache  bool
	Stacks     *coro.Stacks
}

type Analyzer struct {
	config *Config
	cache  cache.Cache
	stats  *CacheStats
	out    io.Writer
}

func New(config *Config) *Analyzer {
	if config.EventName == "" {
		config.EventName = model.DefaultBeaconEvent
	}

	a := &Analyzer{
		config: config,
		stats:  NewCacheStats(),
		out:    os.Stdout,
	}

	if !config.NoCache && config.CacheDir != "" {
		fileCache, err := cache.NewFileCache(config.CacheDir)
		if err != nil {
			util.LogWarnf("Event cache disabled: %v", err)
		} else {
			a.cache = fileCache
		}
	}
	return a
}

// WithOutput redirects the report, stdout by default.
func (a *Analyzer) WithOutput(w io.Writer) *Analyzer {
	a.out = w
	return a
}

// CacheStats returns the cache statistics accumulated over every run.
func (a *Analyzer) CacheStats() *CacheStats {
	return a.stats
}

// Run analyses the trace and writes the report. Nothing is written when any
// phase fails.
func (a *Analyzer) Run(ctx context.Context) error {
	startTime := time.Now()

	result, err := a.Analyze(ctx)
	if err != nil {
		return err
	}
	logger := util.GetLogger().With(util.F("run_id", result.RunID))

	formatStart := time.Now()
	f, err := a.formatter()
	if err != nil {
		return err
	}
	if err := f.Format(a.out, result.Stacks); err != nil {
		return fmt.Errorf("cannot render report: %w", err)
	}
	logger.Debug(fmt.Sprintf("Phase 4 - Report rendering duration: %v", time.Since(formatStart)),
		util.F("format", a.config.OutputFormat))

	a.stats.PrintFinalStats(logger)
	logger.Info("Analysis complete", util.F("duration", time.Since(startTime).String()))
	return nil
}

// Analyze decodes the trace and reconstructs its stacks without rendering.
func (a *Analyzer) Analyze(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	logger := util.GetLogger().With(util.F("run_id", result.RunID), util.F("trace", a.config.TracePath))
	logger.Info("Starting coroutine trace analysis")

	// Phase 1: Select reader
	r, err := reader.Open(a.config.Reader, a.config.TracePath, reader.Options{Babeltrace: a.config.Babeltrace})
	if err != nil {
		return nil, err
	}
	result.ReaderName = r.Name()
	logger.Debug("Phase 1 - Reader selected", util.F("reader", r.Name()))

	// Phase 2: Load events, from the cache when possible
	loadStart := time.Now()
	events, fromCache, err := a.loadEvents(ctx, r, logger)
	if err != nil {
		return nil, err
	}
	result.Events = len(events)
	result.FromCache = fromCache
	logger.Debug(fmt.Sprintf("Phase 2 - Event loading duration: %v, %d beacon events", time.Since(loadStart), len(events)),
		util.F("cached", fromCache))

	// Phase 3: Reconstruct stacks
	reconstructStart := time.Now()
	stacks, err := coro.Reconstruct(events, a.config.EventName)
	if err != nil {
		var se *coro.StructuralError
		if errors.As(err, &se) {
			logger.Error("Trace is not well formed", structuralErrorFields(se)...)
		}
		return nil, err
	}
	result.Stacks = stacks
	logger.Debug(fmt.Sprintf("Phase 3 - Reconstruction duration: %v", time.Since(reconstructStart)))
	logger.Info("parse complete", util.F("stacks", stacks.Len()))

	return result, nil
}

// LoadEvents decodes the beacon events of the trace, going through the cache
// like Analyze does.
func (a *Analyzer) LoadEvents(ctx context.Context) ([]model.Event, error) {
	r, err := reader.Open(a.config.Reader, a.config.TracePath, reader.Options{Babeltrace: a.config.Babeltrace})
	if err != nil {
		return nil, err
	}
	events, _, err := a.loadEvents(ctx, r, util.GetLogger())
	return events, err
}

func (a *Analyzer) loadEvents(ctx context.Context, r reader.Reader, logger util.LoggerInterface) ([]model.Event, bool, error) {
	// only babeltrace decoding is cached
	useCache := a.cache != nil && r.Name() == reader.KindBabeltrace

	if useCache {
		res := a.cache.Get(a.config.TracePath, a.config.EventName)
		if res.Found {
			a.stats.IncrementHit()
			return res.Entry.Events, true, nil
		}
		a.stats.IncrementMiss(a.config.TracePath, res.MissReason)
		logger.Debug("Event cache miss", util.F("reason", res.MissReason.String()))
	}

	// snapshot before decoding: streams may grow while babeltrace runs
	var snapshot *cache.Snapshot
	if useCache {
		snap, err := cache.TakeSnapshot(a.config.TracePath)
		if err != nil {
			a.stats.IncrementFailure()
			logger.Warn(fmt.Sprintf("Cannot snapshot %s, result will not be cached: %v", a.config.TracePath, err))
		}
		snapshot = snap
	}

	events, err := reader.ReadAll(ctx, r, a.config.TracePath, a.config.EventName)
	if err != nil {
		return nil, false, err
	}

	if snapshot != nil {
		if err := a.cache.Set(snapshot, a.config.EventName, events); err != nil {
			a.stats.IncrementFailure()
			logger.Warn(fmt.Sprintf("Failed to save event cache for %s: %v", a.config.TracePath, err))
		}
	}
	return events, false, nil
}

// structuralErrorFields describes a reconstruction failure for the log,
// including the payload of the offending beacon.
func structuralErrorFields(se *coro.StructuralError) []util.Field {
	fields := []util.Field{
		util.F("kind", se.Kind.String()),
		util.F("stack", model.ToHex(se.Stack)),
		util.F("coro_id", model.ToHex(se.CoroID)),
		util.F("index", se.Index),
	}
	if se.Event == nil {
		return fields
	}
	for _, name := range model.BeaconFields {
		if v, ok := se.Event.Field(name); ok {
			fields = append(fields, util.F("event."+name, v))
		}
	}
	return fields
}

func (a *Analyzer) formatter() (formatter.Formatter, error) {
	if a.config.OutputFormat == formatter.FormatSummary {
		sorter, err := formatter.ParseSort(a.config.SortBy)
		if err != nil {
			return nil, err
		}
		return formatter.NewSummaryFormatter().WithColor(a.config.Color).WithSorter(sorter), nil
	}
	return formatter.New(a.config.OutputFormat)
}
