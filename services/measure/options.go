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
	"log/slog"

	"github.com/AleutianAI/measure/services/measure/clock"
	"github.com/AleutianAI/measure/services/measure/output"
	"github.com/AleutianAI/measure/services/measure/telemetry"
)

// Option configures a Measurer.
type Option func(*Measurer)

// WithClock sets the clock. Default: clock.NewMonotonic().
func WithClock(c clock.Clock) Option {
	return func(m *Measurer) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithReporter sets the banner reporter. Default: a console reporter on stderr.
func WithReporter(r output.Reporter) Option {
	return func(m *Measurer) {
		if r != nil {
			m.reporter = r
		}
	}
}

// WithWriter sets the record writer. Overrides Config.OutputPath.
func WithWriter(w output.Writer) Option {
	return func(m *Measurer) {
		m.writer = w
	}
}

// WithSinks adds telemetry sinks.
func WithSinks(sinks ...telemetry.Sink) Option {
	return func(m *Measurer) {
		for _, s := range sinks {
			if s != nil {
				m.sinks = append(m.sinks, s)
			}
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Measurer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// MeasureOption overrides a Measurer default for a single call.
type MeasureOption func(*callConfig)

type callConfig struct {
	runs       int
	warmupRuns int
	writeFile  bool
}

// WithRuns sets the number of measured runs.
func WithRuns(n int) MeasureOption {
	return func(c *callConfig) {
		c.runs = n
	}
}

// WithWarmupRuns sets the number of discarded leading runs.
func WithWarmupRuns(n int) MeasureOption {
	return func(c *callConfig) {
		c.warmupRuns = n
	}
}

// WithWriteFile enables or disables persisting the result.
func WithWriteFile(enabled bool) MeasureOption {
	return func(c *callConfig) {
		c.writeFile = enabled
	}
}
