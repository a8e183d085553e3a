// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sampler executes a function repeatedly and records per-run durations.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/measure/services/measure/clock"
	"github.com/AleutianAI/measure/services/measure/stats"
)

// ErrInvalidRuns indicates a negative run count.
var ErrInvalidRuns = errors.New("run count must be non-negative")

// Func is the operation under measurement. A returned error or a panic is
// treated as a failure of the operation.
type Func func() error

// FunctionError reports a failure of the measured function.
//
// Exactly one of Err and Panic is set.
type FunctionError struct {
	// Run is the zero-based index of the failing execution, warmup runs included.
	Run int

	// Err is the error returned by the function.
	Err error

	// Panic is the recovered panic value.
	Panic any
}

// Error implements error.
func (e *FunctionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("measured function panicked on run %d: %v", e.Run, e.Panic)
	}
	return fmt.Sprintf("measured function failed on run %d: %v", e.Run, e.Err)
}

// Unwrap returns the original error, or the panic value when it is an error.
func (e *FunctionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sampler times sequential executions of a function against a clock.
//
// Thread Safety: Safe for concurrent use when the clock is. Executions
// within one Sample call are strictly sequential.
type Sampler struct {
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a sampler reading the given clock. A nil clock selects a
// monotonic clock.
func New(clk clock.Clock, opts ...Option) *Sampler {
	if clk == nil {
		clk = clock.NewMonotonic()
	}
	s := &Sampler{
		clock:  clk,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample runs fn totalRuns times and returns one RunResult per run.
//
// Description:
//
//	Each run reads the clock immediately before and after fn, and the
//	difference becomes the run duration with a count of 1. The first
//	failing run aborts sampling; no partial set is returned. The context
//	is checked between runs only, so a function that never returns blocks
//	the call.
//
// Inputs:
//   - ctx: Checked for cancellation before every run.
//   - fn: The operation. Must not be nil.
//   - totalRuns: Number of executions, warmup runs included. Zero yields
//     an empty set.
//
// Outputs:
//   - stats.SampleSet: totalRuns results in execution order.
//   - error: ErrInvalidRuns, a *FunctionError, or the context error.
//
// Example:
//
//	s := sampler.New(clock.NewMonotonic())
//	set, err := s.Sample(ctx, func() error { work(); return nil }, 11)
func (s *Sampler) Sample(ctx context.Context, fn Func, totalRuns int) (stats.SampleSet, error) {
	if totalRuns < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRuns, totalRuns)
	}
	if fn == nil {
		return nil, errors.New("measured function must not be nil")
	}

	samples := make(stats.SampleSet, 0, totalRuns)
	for i := 0; i < totalRuns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sampling interrupted before run %d: %w", i, err)
		}

		start := s.clock.Now()
		err := invoke(fn, i)
		end := s.clock.Now()
		if err != nil {
			s.logger.Debug("measured function failed",
				slog.Int("run", i),
				slog.String("error", err.Error()))
			return nil, err
		}

		elapsed := end - start
		if elapsed < 0 {
			elapsed = 0
		}
		samples = append(samples, stats.RunResult{Duration: elapsed, Count: 1})
	}

	s.logger.Debug("sampling complete",
		slog.Int("runs", totalRuns),
		slog.Duration("total", total(samples)))

	return samples, nil
}

// invoke calls fn, converting a returned error or a panic into a *FunctionError.
func invoke(fn Func, run int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FunctionError{Run: run, Panic: r}
		}
	}()

	if ferr := fn(); ferr != nil {
		return &FunctionError{Run: run, Err: ferr}
	}
	return nil
}

func total(samples stats.SampleSet) time.Duration {
	var sum time.Duration
	for _, s := range samples {
		sum += s.Duration
	}
	return sum
}
