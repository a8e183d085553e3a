// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package regression compares a current set of measurement records against
// a baseline.
//
// # Classification
//
// Every name present on both sides is compared on mean duration:
//
//	significant  p < PValueThreshold and |diff| >= MinDurationDiff
//	meaningless  everything else
//
// Significant entries with a positive difference are regressions, negative
// ones are improvements. Independently, entries whose mean invocation count
// moved by more than CountDiffThreshold are listed as count changes. Names
// only in the current set are added; names only in the baseline are removed.
package regression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/measure/services/measure/output"
	"github.com/AleutianAI/measure/services/measure/telemetry"
)

const tracerName = "github.com/AleutianAI/measure/services/measure/regression"

// ErrInvalidConfig indicates an invalid comparer configuration.
var ErrInvalidConfig = errors.New("invalid comparison configuration")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures a Comparer.
type Config struct {
	// PValueThreshold is the significance level of the Welch t-test.
	// Default: 0.02
	PValueThreshold float64

	// MinDurationDiff is the smallest mean difference reported as significant.
	// Default: 4ms
	MinDurationDiff time.Duration

	// CountDiffThreshold is the smallest mean count change reported.
	// Default: 0.5
	CountDiffThreshold float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		PValueThreshold:    0.02,
		MinDurationDiff:    4 * time.Millisecond,
		CountDiffThreshold: 0.5,
	}
}

// Validate checks threshold ranges.
func (c Config) Validate() error {
	if c.PValueThreshold <= 0 || c.PValueThreshold >= 1 {
		return fmt.Errorf("%w: p-value threshold must be in (0, 1), got %v", ErrInvalidConfig, c.PValueThreshold)
	}
	if c.MinDurationDiff < 0 {
		return fmt.Errorf("%w: minimum duration difference must be non-negative", ErrInvalidConfig)
	}
	if c.CountDiffThreshold < 0 {
		return fmt.Errorf("%w: count threshold must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Comparer.
type Option func(*Comparer)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Comparer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSink records every compared entry to sink.
func WithSink(sink telemetry.Sink) Option {
	return func(c *Comparer) {
		c.sink = sink
	}
}

// -----------------------------------------------------------------------------
// Report
// -----------------------------------------------------------------------------

// Entry is the comparison of one name.
type Entry struct {
	Name string
	Type string

	// Baseline is nil for added entries.
	Baseline *output.Record
	// Current is nil for removed entries.
	Current *output.Record

	// DurationDiff is current mean minus baseline mean.
	DurationDiff time.Duration
	// RelativeDurationDiff is DurationDiff over the baseline mean.
	RelativeDurationDiff float64

	// CountDiff is current mean count minus baseline mean count.
	CountDiff float64
	// RelativeCountDiff is CountDiff over the baseline mean count.
	RelativeCountDiff float64

	TStatistic         float64
	PValue             float64
	EffectSize         float64
	EffectSizeCategory EffectSizeCategory

	// Significant is true for entries in Report.Significant.
	Significant bool
}

// IsRegression reports a significant slowdown.
func (e Entry) IsRegression() bool {
	return e.Significant && e.DurationDiff > 0
}

// Classification returns a short label for telemetry.
func (e Entry) Classification() string {
	switch {
	case e.Baseline == nil:
		return "added"
	case e.Current == nil:
		return "removed"
	case e.IsRegression():
		return "regression"
	case e.Significant:
		return "improvement"
	default:
		return "meaningless"
	}
}

// Report holds a full comparison.
type Report struct {
	// Significant entries, largest relative slowdown first.
	Significant []Entry
	// Meaningless entries, largest relative slowdown first.
	Meaningless []Entry
	// CountChanged entries, largest relative count change first.
	CountChanged []Entry
	// Added entries by name.
	Added []Entry
	// Removed entries by name.
	Removed []Entry

	// Errors are problems that make an entry incomparable.
	Errors []string
	// Warnings are problems that weaken an entry's result.
	Warnings []string
}

// Regressions returns the significant slowdowns.
func (r *Report) Regressions() []Entry {
	var out []Entry
	for _, e := range r.Significant {
		if e.IsRegression() {
			out = append(out, e)
		}
	}
	return out
}

// HasRegressions reports whether any significant slowdown was found.
func (r *Report) HasRegressions() bool {
	return len(r.Regressions()) > 0
}

// -----------------------------------------------------------------------------
// Comparer
// -----------------------------------------------------------------------------

// Comparer classifies current records against a baseline.
//
// Thread Safety: Safe for concurrent use.
type Comparer struct {
	config Config
	logger *slog.Logger
	sink   telemetry.Sink
}

// NewComparer creates a comparer.
//
// Outputs:
//   - *Comparer: Never nil when error is nil.
//   - error: ErrInvalidConfig if thresholds are out of range.
func NewComparer(config Config, opts ...Option) (*Comparer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Comparer{
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Compare classifies current against baseline.
//
// Description:
//
//	When a name appears more than once on a side, the last record wins,
//	matching append order in a .perf file. Records whose types differ
//	are reported in Errors and not compared.
//
// Inputs:
//   - ctx: Carries the trace span. Checked before each entry.
//   - baseline: Records of the reference run.
//   - current: Records of the run under test.
//
// Outputs:
//   - *Report: The classification.
//   - error: Only context cancellation.
//
// Example:
//
//	c, _ := regression.NewComparer(regression.DefaultConfig())
//	report, err := c.Compare(ctx, baseline, current)
//	if report.HasRegressions() { os.Exit(1) }
func (c *Comparer) Compare(ctx context.Context, baseline, current []*output.Record) (*Report, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "regression.Comparer.Compare",
		trace.WithAttributes(
			attribute.Int("baseline.count", len(baseline)),
			attribute.Int("current.count", len(current)),
		),
	)
	defer span.End()

	base := indexByName(baseline)
	curr := output.LatestByName(current)
	report := &Report{}

	for _, rec := range curr {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "comparison interrupted")
			return nil, err
		}
		if rec.Results == nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: current record has no results", rec.Name))
			continue
		}

		b, ok := base[rec.Name]
		if !ok {
			report.Added = append(report.Added, Entry{Name: rec.Name, Type: rec.Type, Current: rec, PValue: 1})
			continue
		}
		delete(base, rec.Name)

		if b.Results == nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: baseline record has no results", rec.Name))
			continue
		}
		if b.Type != rec.Type {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: type changed from %q to %q", rec.Name, b.Type, rec.Type))
			continue
		}
		if b.Results.Runs < 2 || rec.Results.Runs < 2 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: fewer than 2 runs, significance cannot be assessed", rec.Name))
		}

		entry := c.compareEntry(b, rec)
		if entry.Significant {
			report.Significant = append(report.Significant, entry)
		} else {
			report.Meaningless = append(report.Meaningless, entry)
		}
		if math.Abs(entry.CountDiff) > c.config.CountDiffThreshold {
			report.CountChanged = append(report.CountChanged, entry)
		}
	}

	for _, b := range base {
		report.Removed = append(report.Removed, Entry{Name: b.Name, Type: b.Type, Baseline: b, PValue: 1})
	}

	sortReport(report)
	c.record(ctx, report)

	span.SetAttributes(
		attribute.Int("significant.count", len(report.Significant)),
		attribute.Int("regressions.count", len(report.Regressions())),
		attribute.Int("errors.count", len(report.Errors)),
	)
	c.logger.Debug("comparison complete",
		slog.Int("significant", len(report.Significant)),
		slog.Int("meaningless", len(report.Meaningless)),
		slog.Int("added", len(report.Added)),
		slog.Int("removed", len(report.Removed)))

	return report, nil
}

func (c *Comparer) compareEntry(baseline, current *output.Record) Entry {
	bs := SampleOfRecord(baseline)
	cs := SampleOfRecord(current)

	diff := current.Results.Duration.Mean - baseline.Results.Duration.Mean
	countDiff := current.Results.MeanCount - baseline.Results.MeanCount

	t, p := WelchTTest(cs, bs)
	d := CohensD(cs, bs)

	absDiff := diff
	if absDiff < 0 {
		absDiff = -absDiff
	}

	return Entry{
		Name:                 current.Name,
		Type:                 current.Type,
		Baseline:             baseline,
		Current:              current,
		DurationDiff:         diff,
		RelativeDurationDiff: relative(float64(diff), float64(baseline.Results.Duration.Mean)),
		CountDiff:            countDiff,
		RelativeCountDiff:    relative(countDiff, baseline.Results.MeanCount),
		TStatistic:           t,
		PValue:               p,
		EffectSize:           d,
		EffectSizeCategory:   CategorizeEffectSize(d),
		Significant:          p < c.config.PValueThreshold && absDiff >= c.config.MinDurationDiff,
	}
}

func (c *Comparer) record(ctx context.Context, report *Report) {
	if c.sink == nil {
		return
	}

	now := time.Now()
	groups := [][]Entry{report.Significant, report.Meaningless, report.Added, report.Removed}
	for _, group := range groups {
		for _, e := range group {
			err := c.sink.RecordComparison(ctx, &telemetry.ComparisonData{
				Name:               e.Name,
				Timestamp:          now,
				Classification:     e.Classification(),
				RelativeChange:     e.RelativeDurationDiff,
				PValue:             e.PValue,
				EffectSize:         e.EffectSize,
				EffectSizeCategory: e.EffectSizeCategory.String(),
				Significant:        e.Significant,
			})
			if err != nil {
				c.logger.Warn("failed to record comparison telemetry",
					slog.String("name", e.Name),
					slog.String("error", err.Error()))
			}
		}
	}
}

func indexByName(records []*output.Record) map[string]*output.Record {
	index := make(map[string]*output.Record, len(records))
	for _, rec := range records {
		index[rec.Name] = rec
	}
	return index
}

func relative(diff, base float64) float64 {
	if base == 0 {
		if diff == 0 {
			return 0
		}
		return math.Copysign(1, diff)
	}
	return diff / base
}

func sortReport(r *Report) {
	byRelDiff := func(entries []Entry) {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].RelativeDurationDiff > entries[j].RelativeDurationDiff
		})
	}
	byName := func(entries []Entry) {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Name < entries[j].Name
		})
	}

	byRelDiff(r.Significant)
	byRelDiff(r.Meaningless)
	sort.SliceStable(r.CountChanged, func(i, j int) bool {
		return math.Abs(r.CountChanged[i].RelativeCountDiff) > math.Abs(r.CountChanged[j].RelativeCountDiff)
	})
	byName(r.Added)
	byName(r.Removed)
}
