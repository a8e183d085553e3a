// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/measure/pkg/ux"
	"github.com/AleutianAI/measure/services/measure/output"
	"github.com/AleutianAI/measure/services/measure/regression"
	"github.com/AleutianAI/measure/services/measure/telemetry"
)

var (
	comparePValue         float64
	compareMinDiff        time.Duration
	compareCountThreshold float64
	compareJSON           bool
	compareNoFail         bool
)

// compareCmd compares a current .perf file against a baseline.
//
// # Exit Codes
//
//	0 - No significant regression
//	1 - Files could not be read
//	3 - At least one significant regression
var compareCmd = &cobra.Command{
	Use:   "compare <baseline.perf> [current.perf]",
	Short: "Compare results against a baseline",
	Long: `Compare a current results file against a baseline.

Every function present in both files is tested with Welch's t-test. A change
is significant when its p-value is below --p-value and the mean moved by at
least --min-diff. The current file defaults to the configured output path.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCompareCommand,
}

func init() {
	defaults := regression.DefaultConfig()
	compareCmd.Flags().Float64Var(&comparePValue, "p-value", defaults.PValueThreshold,
		"Significance level")
	compareCmd.Flags().DurationVar(&compareMinDiff, "min-diff", defaults.MinDurationDiff,
		"Smallest mean difference reported as significant")
	compareCmd.Flags().Float64Var(&compareCountThreshold, "count-threshold", defaults.CountDiffThreshold,
		"Smallest mean count change reported")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false,
		"Output the report as JSON")
	compareCmd.Flags().BoolVar(&compareNoFail, "no-fail", false,
		"Exit 0 even when regressions are found")
}

func runCompareCommand(cmd *cobra.Command, args []string) error {
	baselinePath := args[0]
	currentPath := cfg.Output.Path
	if len(args) > 1 {
		currentPath = args[1]
	}

	rc := regression.Config{
		PValueThreshold:    comparePValue,
		MinDurationDiff:    compareMinDiff,
		CountDiffThreshold: compareCountThreshold,
	}

	var sinks []telemetry.Sink
	if cfg.Telemetry.OTel {
		sink, err := telemetry.NewOTelSink(telemetry.DefaultOTelConfig())
		if err != nil {
			return err
		}
		defer sink.Close()
		sinks = append(sinks, sink)
	}

	report, err := compareFiles(cmd.Context(), baselinePath, currentPath, rc, logger.Slog(), sinks...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if compareJSON {
		if err := writeReportJSON(out, report); err != nil {
			return err
		}
	} else {
		printReport(ux.NewPrinter(out), report)
	}

	if n := len(report.Regressions()); n > 0 && !compareNoFail {
		return &ExitError{Code: ExitRegressions, Err: fmt.Errorf("%d significant regression(s)", n)}
	}
	return nil
}

// compareFiles loads both files concurrently and compares them.
func compareFiles(ctx context.Context, baselinePath, currentPath string, rc regression.Config, log *slog.Logger, sinks ...telemetry.Sink) (*regression.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var baseline, current []*output.Record
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := output.ReadRecords(baselinePath)
		if err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
		baseline = recs
		return nil
	})
	g.Go(func() error {
		recs, err := output.ReadRecords(currentPath)
		if err != nil {
			return fmt.Errorf("current: %w", err)
		}
		current = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts := []regression.Option{regression.WithLogger(log)}
	if len(sinks) > 0 {
		sink, err := telemetry.NewCompositeSink(sinks...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, regression.WithSink(sink))
	}

	comparer, err := regression.NewComparer(rc, opts...)
	if err != nil {
		return nil, err
	}
	return comparer.Compare(ctx, baseline, current)
}

// -----------------------------------------------------------------------------
// Report formatting
// -----------------------------------------------------------------------------

// describeEntry renders one compared entry on a single line.
func describeEntry(e regression.Entry) string {
	switch {
	case e.Baseline == nil:
		return fmt.Sprintf("%s: %.3fms (added)", e.Name, output.Millis(e.Current.Results.Duration.Mean))
	case e.Current == nil:
		return fmt.Sprintf("%s: %.3fms (removed)", e.Name, output.Millis(e.Baseline.Results.Duration.Mean))
	}
	return fmt.Sprintf("%s: %.3fms -> %.3fms (%+.1f%%, p=%.4f, d=%.2f %s)",
		e.Name,
		output.Millis(e.Baseline.Results.Duration.Mean),
		output.Millis(e.Current.Results.Duration.Mean),
		e.RelativeDurationDiff*100,
		e.PValue,
		e.EffectSize,
		e.EffectSizeCategory)
}

func printReport(p *ux.Printer, r *regression.Report) {
	p.Title("Comparison")
	p.KeyValue(
		"significant", fmt.Sprint(len(r.Significant)),
		"meaningless", fmt.Sprint(len(r.Meaningless)),
		"added", fmt.Sprint(len(r.Added)),
		"removed", fmt.Sprint(len(r.Removed)),
	)

	for _, e := range r.Significant {
		if e.IsRegression() {
			p.Error(describeEntry(e))
		} else {
			p.Success(describeEntry(e))
		}
	}
	for _, e := range r.Meaningless {
		p.Info(describeEntry(e))
	}
	for _, e := range r.CountChanged {
		p.Warning(fmt.Sprintf("%s: mean count %.2f -> %.2f",
			e.Name, e.Baseline.Results.MeanCount, e.Current.Results.MeanCount))
	}
	for _, e := range r.Added {
		p.Info(describeEntry(e))
	}
	for _, e := range r.Removed {
		p.Info(describeEntry(e))
	}
	for _, msg := range r.Warnings {
		p.Warning(msg)
	}
	for _, msg := range r.Errors {
		p.Error(msg)
	}
}

// reportEntryJSON is the machine-readable shape of one entry.
type reportEntryJSON struct {
	Name               string  `json:"name"`
	Classification     string  `json:"classification"`
	BaselineMeanMs     float64 `json:"baselineMeanMs,omitempty"`
	CurrentMeanMs      float64 `json:"currentMeanMs,omitempty"`
	DurationDiffMs     float64 `json:"durationDiffMs"`
	RelativeDiff       float64 `json:"relativeDiff"`
	CountDiff          float64 `json:"countDiff"`
	PValue             float64 `json:"pValue"`
	EffectSize         float64 `json:"effectSize"`
	EffectSizeCategory string  `json:"effectSizeCategory"`
}

type reportJSON struct {
	Regressions int               `json:"regressions"`
	Entries     []reportEntryJSON `json:"entries"`
	Warnings    []string          `json:"warnings"`
	Errors      []string          `json:"errors"`
}

func writeReportJSON(w io.Writer, r *regression.Report) error {
	out := reportJSON{
		Regressions: len(r.Regressions()),
		Entries:     []reportEntryJSON{},
		Warnings:    append([]string{}, r.Warnings...),
		Errors:      append([]string{}, r.Errors...),
	}
	for _, group := range [][]regression.Entry{r.Significant, r.Meaningless, r.Added, r.Removed} {
		for _, e := range group {
			entry := reportEntryJSON{
				Name:               e.Name,
				Classification:     e.Classification(),
				DurationDiffMs:     output.Millis(e.DurationDiff),
				RelativeDiff:       e.RelativeDurationDiff,
				CountDiff:          e.CountDiff,
				PValue:             e.PValue,
				EffectSize:         e.EffectSize,
				EffectSizeCategory: e.EffectSizeCategory.String(),
			}
			if e.Baseline != nil {
				entry.BaselineMeanMs = output.Millis(e.Baseline.Results.Duration.Mean)
			}
			if e.Current != nil {
				entry.CurrentMeanMs = output.Millis(e.Current.Results.Duration.Mean)
			}
			out.Entries = append(out.Entries, entry)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
