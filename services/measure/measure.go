// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package measure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/measure/services/measure/clock"
	"github.com/AleutianAI/measure/services/measure/config"
	"github.com/AleutianAI/measure/services/measure/output"
	"github.com/AleutianAI/measure/services/measure/sampler"
	"github.com/AleutianAI/measure/services/measure/stats"
	"github.com/AleutianAI/measure/services/measure/telemetry"
)

const tracerName = "github.com/AleutianAI/measure/services/measure"

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config holds the Measurer defaults. Per-call MeasureOptions override
// Runs, WarmupRuns and WriteFile.
type Config struct {
	// Runs is the number of measured runs.
	Runs int

	// WarmupRuns is the number of leading runs discarded before reduction.
	WarmupRuns int

	// WriteFile persists each result through the writer.
	WriteFile bool

	// OutputPath is the .perf file used when no writer is injected.
	// Empty disables the default file writer.
	OutputPath string

	// Reducer configures outlier trimming.
	Reducer stats.ReducerConfig

	// AllowSyntheticClock permits measuring against a test clock.
	AllowSyntheticClock bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return ConfigFrom(config.Default())
}

// ConfigFrom converts a loaded configuration file.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Runs:       c.Runs,
		WarmupRuns: c.WarmupRuns,
		WriteFile:  c.WriteFile,
		OutputPath: c.Output.Path,
		Reducer:    c.ReducerConfig(),
	}
}

// Validate checks the defaults.
func (c Config) Validate() error {
	if c.Runs < 0 {
		return fmt.Errorf("%w: runs must be non-negative, got %d", ErrInvalidConfig, c.Runs)
	}
	if c.WarmupRuns < 0 {
		return fmt.Errorf("%w: warmup runs must be non-negative, got %d", ErrInvalidConfig, c.WarmupRuns)
	}
	if err := c.Reducer.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Measurer
// -----------------------------------------------------------------------------

// Measurer measures functions with shared defaults and collaborators.
//
// Thread Safety: Safe for concurrent use. Concurrent measurements interfere
// with each other's timings, so callers usually measure sequentially.
type Measurer struct {
	config   Config
	clock    clock.Clock
	sampler  *sampler.Sampler
	reducer  *stats.Reducer
	reporter output.Reporter
	writer   output.Writer
	sinks    []telemetry.Sink
	logger   *slog.Logger

	announce sync.Once
}

// New creates a Measurer.
//
// Description:
//
//	Without WithWriter, records are appended to Config.OutputPath. Without
//	WithClock, a monotonic clock is used. Options are applied after
//	defaults.
//
// Inputs:
//   - cfg: Measurement defaults. Validated.
//   - opts: Collaborator overrides.
//
// Outputs:
//   - *Measurer: Never nil when error is nil.
//   - error: ErrInvalidConfig when cfg is invalid.
func New(cfg Config, opts ...Option) (*Measurer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reducer, err := stats.NewReducer(cfg.Reducer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	m := &Measurer{
		config:   cfg,
		clock:    clock.NewMonotonic(),
		reducer:  reducer,
		reporter: output.NewConsoleReporter(nil),
		logger:   slog.Default(),
	}
	if cfg.OutputPath != "" {
		m.writer = output.NewFileWriter(cfg.OutputPath)
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sampler = sampler.New(m.clock, sampler.WithLogger(m.logger))
	return m, nil
}

// Config returns the Measurer defaults.
func (m *Measurer) Config() Config {
	return m.config
}

// Measure times fn and returns its statistics.
//
// Description:
//
//	Runs fn warmupRuns+runs times, discards the warmup samples and reduces
//	the rest. On success the result is written as a "function" record when
//	writing is enabled; a write failure is logged and recorded on the
//	trace span but never returned. The settings banner is shown on the
//	first call that passes the environment check.
//
// Inputs:
//   - ctx: Trace parent; checked between runs.
//   - name: Record name. Must not be empty.
//   - fn: The operation. Called runs+warmupRuns times on success.
//   - opts: Per-call overrides.
//
// Outputs:
//   - *stats.Results: Never nil when error is nil.
//   - error: ErrEnvironment for a synthetic clock, ErrInvalidConfig,
//     stats.ErrInsufficientSamples when no samples survive the warmup,
//     or a wrapped *sampler.FunctionError when fn fails.
//
// Example:
//
//	res, err := m.Measure(ctx, "sort-1k", func() error {
//	    sort.Ints(data())
//	    return nil
//	}, measure.WithRuns(50), measure.WithWarmupRuns(5))
func (m *Measurer) Measure(ctx context.Context, name string, fn sampler.Func, opts ...MeasureOption) (*stats.Results, error) {
	call := callConfig{
		runs:       m.config.Runs,
		warmupRuns: m.config.WarmupRuns,
		writeFile:  m.config.WriteFile,
	}
	for _, opt := range opts {
		opt(&call)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "measure.Measurer.Measure",
		trace.WithAttributes(
			attribute.String("measure.name", name),
			attribute.Int("measure.runs", call.runs),
			attribute.Int("measure.warmup_runs", call.warmupRuns),
		),
	)
	defer span.End()

	if err := validateCall(name, fn, call); err != nil {
		return nil, m.fail(ctx, span, name, "validate", err)
	}
	if clock.IsSynthetic(m.clock) && !m.config.AllowSyntheticClock {
		err := fmt.Errorf("%w: clock %T is synthetic, timings would not reflect real execution", ErrEnvironment, m.clock)
		return nil, m.fail(ctx, span, name, "environment", err)
	}

	m.announce.Do(func() {
		m.reporter.Announce(ctx, m.settings())
	})

	start := time.Now()
	samples, err := m.sampler.Sample(ctx, fn, call.runs+call.warmupRuns)
	if err != nil {
		return nil, m.fail(ctx, span, name, "sample", fmt.Errorf("measure %q: %w", name, err))
	}

	res, err := m.reducer.Reduce(samples, call.warmupRuns)
	if err != nil {
		return nil, m.fail(ctx, span, name, "reduce", fmt.Errorf("measure %q: %w", name, err))
	}

	span.SetAttributes(
		attribute.Int("result.runs", res.Runs),
		attribute.Float64("result.mean_ms", output.Millis(res.Duration.Mean)),
		attribute.Float64("result.stdev_ms", output.Millis(res.Duration.Stdev)),
		attribute.Int("result.outliers_removed", res.OutliersRemoved),
	)

	if call.writeFile {
		m.persist(ctx, span, name, res)
	}
	m.recordMeasurement(ctx, name, call.warmupRuns, res)

	m.logger.Debug("measurement complete",
		slog.String("name", name),
		slog.Int("runs", res.Runs),
		slog.Duration("mean", res.Duration.Mean),
		slog.Duration("elapsed", time.Since(start)))

	return res, nil
}

func validateCall(name string, fn sampler.Func, call callConfig) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name must not be empty", ErrInvalidConfig)
	case fn == nil:
		return fmt.Errorf("%w: function must not be nil", ErrInvalidConfig)
	case call.runs < 0:
		return fmt.Errorf("%w: runs must be non-negative, got %d", ErrInvalidConfig, call.runs)
	case call.warmupRuns < 0:
		return fmt.Errorf("%w: warmup runs must be non-negative, got %d", ErrInvalidConfig, call.warmupRuns)
	}
	return nil
}

func (m *Measurer) settings() output.Settings {
	return output.Settings{
		Runs:             m.config.Runs,
		WarmupRuns:       m.config.WarmupRuns,
		WriteFile:        m.config.WriteFile && m.writer != nil,
		OutputPath:       m.config.OutputPath,
		RemoveOutliers:   m.config.Reducer.RemoveOutliers,
		OutlierThreshold: m.config.Reducer.OutlierThreshold,
	}
}

func (m *Measurer) persist(ctx context.Context, span trace.Span, name string, res *stats.Results) {
	if m.writer == nil {
		m.logger.Debug("no output writer configured, skipping write", slog.String("name", name))
		return
	}

	rec := output.NewRecord(name, res)
	if err := m.writer.Write(ctx, rec); err != nil {
		span.RecordError(err)
		span.AddEvent("write failed")
		m.logger.Warn("failed to write measurement",
			slog.String("name", name),
			slog.String("error", err.Error()))
		m.recordError(ctx, name, "write", err)
	}
}

func (m *Measurer) recordMeasurement(ctx context.Context, name string, warmupRuns int, res *stats.Results) {
	data := telemetry.NewMeasurementData(name, warmupRuns, res)
	for _, sink := range m.sinks {
		if err := sink.RecordMeasurement(ctx, data); err != nil {
			m.logger.Warn("failed to record measurement telemetry",
				slog.String("name", name),
				slog.String("error", err.Error()))
		}
	}
}

func (m *Measurer) recordError(ctx context.Context, name, operation string, err error) {
	data := &telemetry.ErrorData{
		Component: "measure",
		Operation: operation,
		ErrorType: errorType(err),
		Message:   err.Error(),
		Timestamp: time.Now(),
		Labels:    map[string]string{"name": name},
	}
	for _, sink := range m.sinks {
		if serr := sink.RecordError(ctx, data); serr != nil {
			m.logger.Warn("failed to record error telemetry",
				slog.String("name", name),
				slog.String("error", serr.Error()))
		}
	}
}

// fail records err on the span and sinks and returns it.
func (m *Measurer) fail(ctx context.Context, span trace.Span, name, operation string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, operation+" failed")
	m.recordError(ctx, name, operation, err)
	return err
}

func errorType(err error) string {
	var fnErr *sampler.FunctionError
	switch {
	case errors.As(err, &fnErr):
		if fnErr.Panic != nil {
			return "function_panic"
		}
		return "function_error"
	case errors.Is(err, ErrEnvironment):
		return "environment"
	case errors.Is(err, stats.ErrInsufficientSamples):
		return "insufficient_samples"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, output.ErrWrite):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
