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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/measure/pkg/ux"
	"github.com/AleutianAI/measure/services/measure"
	"github.com/AleutianAI/measure/services/measure/config"
	"github.com/AleutianAI/measure/services/measure/output"
	"github.com/AleutianAI/measure/services/measure/telemetry"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	calibrateRuns        int
	calibrateWarmup      int
	calibrateFilters     []string
	calibrateNoWrite     bool
	calibrateAppend      bool
	calibrateNoHistory   bool
	calibrateMetricsAddr string
	calibrateServeFor    time.Duration
	calibrateList        bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// calibrateCmd measures the built-in workloads.
//
// # Examples
//
//	measure calibrate                         # all workloads, config defaults
//	measure calibrate --runs 50 --warmup 5    # override run counts
//	measure calibrate --filter sort,json      # only matching workloads
//	measure calibrate --metrics-addr :9464    # expose /metrics while running
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure the built-in workloads",
	Long: `Measure the built-in workloads through the measurement pipeline.

Each workload runs warmup+runs times. Results are appended to the configured
.perf file (truncated first unless --append), the history store, and any
configured GCS bucket or InfluxDB instance.`,
	Args: cobra.NoArgs,
	RunE: runCalibrateCommand,
}

func init() {
	calibrateCmd.Flags().IntVar(&calibrateRuns, "runs", -1,
		"Measured runs per workload (default from config)")
	calibrateCmd.Flags().IntVar(&calibrateWarmup, "warmup", -1,
		"Warmup runs per workload (default from config)")
	calibrateCmd.Flags().StringSliceVar(&calibrateFilters, "filter", nil,
		"Only run workloads whose name contains one of these substrings")
	calibrateCmd.Flags().BoolVar(&calibrateNoWrite, "no-write", false,
		"Do not persist results")
	calibrateCmd.Flags().BoolVar(&calibrateAppend, "append", false,
		"Append to the .perf file instead of truncating it")
	calibrateCmd.Flags().BoolVar(&calibrateNoHistory, "no-history", false,
		"Do not record results in the history store")
	calibrateCmd.Flags().StringVar(&calibrateMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g. :9464)")
	calibrateCmd.Flags().DurationVar(&calibrateServeFor, "serve-for", 0,
		"Keep serving metrics for this long after the last workload")
	calibrateCmd.Flags().BoolVar(&calibrateList, "list", false,
		"List the workloads and exit")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// calibrateOptions are the resolved flags.
type calibrateOptions struct {
	Runs        int
	WarmupRuns  int
	Filters     []string
	WriteFile   bool
	Append      bool
	History     bool
	MetricsAddr string
	ServeFor    time.Duration
}

func runCalibrateCommand(cmd *cobra.Command, _ []string) error {
	if calibrateList {
		p := ux.NewPrinter(cmd.OutOrStdout())
		for _, w := range selectWorkloads(builtinWorkloads(), calibrateFilters) {
			p.KeyValue(w.Name, w.Description)
		}
		return nil
	}

	metricsAddr := calibrateMetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Telemetry.MetricsAddr
	}

	opts := calibrateOptions{
		Runs:        cfg.Runs,
		WarmupRuns:  cfg.WarmupRuns,
		Filters:     calibrateFilters,
		WriteFile:   cfg.WriteFile && !calibrateNoWrite,
		Append:      calibrateAppend,
		History:     !calibrateNoHistory,
		MetricsAddr: metricsAddr,
		ServeFor:    calibrateServeFor,
	}
	if calibrateRuns >= 0 {
		opts.Runs = calibrateRuns
	}
	if calibrateWarmup >= 0 {
		opts.WarmupRuns = calibrateWarmup
	}

	return calibrate(cmd.Context(), cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger.Slog())
}

// calibrate measures the selected workloads and reports each result.
//
// Description:
//
//	Builds the writers and sinks from cfg, starts the metrics server when
//	an address is given, and measures every selected workload through a
//	single Measurer. A failing workload is reported and the rest still
//	run; the returned error counts the failures.
//
// Inputs:
//   - ctx: Cancels measurement between runs.
//   - cfg: Loaded configuration.
//   - opts: Resolved command flags.
//   - stdout: Result lines.
//   - stderr: Settings banner.
//   - log: Structured logger.
//
// Outputs:
//   - error: Setup failure or an ExitError when any workload failed.
func calibrate(ctx context.Context, cfg *config.Config, opts calibrateOptions, stdout, stderr io.Writer, log *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	workloads := selectWorkloads(builtinWorkloads(), opts.Filters)
	if len(workloads) == 0 {
		return fmt.Errorf("no workload matches %v", opts.Filters)
	}

	var cleanup closers
	defer func() {
		if cerr := cleanup.Close(); cerr != nil {
			log.Warn("cleanup failed", slog.String("error", cerr.Error()))
		}
	}()

	reg := newRegistry()

	providers, err := telemetry.InitProviders(ctx, providerConfig(cfg, reg))
	if err != nil {
		return err
	}
	cleanup.add(func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return providers.Shutdown(sctx)
	})

	sinks, sinkCleanup, err := buildSinks(cfg, reg, opts.MetricsAddr != "")
	cleanup = append(cleanup, sinkCleanup...)
	if err != nil {
		return err
	}

	measureOpts := []measure.Option{
		measure.WithLogger(log),
		measure.WithReporter(output.NewConsoleReporter(stderr)),
		measure.WithSinks(sinks...),
	}
	if opts.WriteFile {
		writer, writerCleanup, err := buildWriters(ctx, cfg, writerOptions{
			Truncate: !opts.Append,
			History:  opts.History,
		}, log)
		cleanup = append(cleanup, writerCleanup...)
		if err != nil {
			return err
		}
		measureOpts = append(measureOpts, measure.WithWriter(writer))
	}

	var server *metricsServer
	if opts.MetricsAddr != "" {
		server, err = startMetricsServer(opts.MetricsAddr, reg, log)
		if err != nil {
			return err
		}
		cleanup.add(func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(sctx)
		})
	}

	mcfg := measure.ConfigFrom(cfg)
	mcfg.Runs = opts.Runs
	mcfg.WarmupRuns = opts.WarmupRuns
	mcfg.WriteFile = opts.WriteFile
	mcfg.OutputPath = ""

	m, err := measure.New(mcfg, measureOpts...)
	if err != nil {
		return err
	}

	p := ux.NewPrinter(stdout)
	failed := 0
	for _, w := range workloads {
		res, err := m.Measure(ctx, w.Name, w.Fn)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			failed++
			p.Error(fmt.Sprintf("%s: %v", w.Name, err))
			continue
		}
		p.Success(fmt.Sprintf("%-20s %10.3fms ± %.3fms  (n=%d, outliers=%d)",
			w.Name,
			output.Millis(res.Duration.Mean),
			output.Millis(res.Duration.Stdev),
			res.Runs,
			res.OutliersRemoved))
	}

	if server != nil && opts.ServeFor > 0 {
		p.Info(fmt.Sprintf("serving metrics on %s for %s", server.Addr(), opts.ServeFor))
		select {
		case <-ctx.Done():
		case <-time.After(opts.ServeFor):
		}
	}

	if failed > 0 {
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%d of %d workloads failed", failed, len(workloads))}
	}
	return nil
}
