// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats reduces raw run durations into summary statistics.
//
// # Pipeline
//
//	SampleSet ──► discard warmup ──► trim outliers ──► aggregate ──► Results
//	(all runs)    (positional)       (IQR fence)       (mean, median, stdev,
//	                                                    min, max, percentiles)
//
// Warmup runs are identified by position only: the first N samples of a set
// are dropped whatever their values. Outlier trimming uses Tukey's fence on
// the interquartile range, see DefaultOutlierThreshold.
//
// # Numeric Conventions
//
//   - Standard deviation uses the sample formula (n-1 denominator). A single
//     sample has a deviation of zero.
//   - Percentiles use linear interpolation between closest ranks, so the
//     median of an even-length set is the mean of the two central values.
//   - An empty set is always an error (ErrNoSamples or ErrInsufficientSamples),
//     never a NaN.
//
// # Thread Safety
//
// All functions are stateless. A Reducer is immutable after construction.
package stats

import (
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNoSamples indicates that an aggregation received no samples.
	ErrNoSamples = errors.New("no samples")

	// ErrInsufficientSamples indicates that no samples remain after the
	// warmup runs are discarded.
	ErrInsufficientSamples = errors.New("insufficient samples")

	// ErrInvalidWarmup indicates a negative warmup count.
	ErrInvalidWarmup = errors.New("warmup count must be non-negative")

	// ErrInvalidConfig indicates an invalid reducer configuration.
	ErrInvalidConfig = errors.New("invalid reducer configuration")
)

// -----------------------------------------------------------------------------
// Samples
// -----------------------------------------------------------------------------

// RunResult is the outcome of one measured execution.
type RunResult struct {
	// Duration is the elapsed time of the execution. Never negative.
	Duration time.Duration

	// Count is the number of invocations folded into this sample.
	// Always 1 for single-run sampling.
	Count int
}

// SampleSet is an ordered sequence of run results in execution order.
//
// The leading entries of a set are warmup runs; how many is decided by the
// caller when the set is reduced.
type SampleSet []RunResult

// Durations returns the durations of the set in order.
func (s SampleSet) Durations() []time.Duration {
	out := make([]time.Duration, len(s))
	for i, r := range s {
		out[i] = r.Duration
	}
	return out
}

// Counts returns the invocation counts of the set in order.
func (s SampleSet) Counts() []int {
	out := make([]int, len(s))
	for i, r := range s {
		out[i] = r.Count
	}
	return out
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// DurationStats summarizes a set of durations.
type DurationStats struct {
	// Mean is the arithmetic mean.
	Mean time.Duration

	// Median is the 50th percentile.
	Median time.Duration

	// Stdev is the sample standard deviation.
	Stdev time.Duration

	// Min is the shortest duration.
	Min time.Duration

	// Max is the longest duration.
	Max time.Duration

	// P50 is the 50th percentile.
	P50 time.Duration

	// P75 is the 75th percentile.
	P75 time.Duration

	// P90 is the 90th percentile.
	P90 time.Duration

	// P95 is the 95th percentile.
	P95 time.Duration

	// P99 is the 99th percentile.
	P99 time.Duration
}

// Results is the summary of one measurement.
//
// Description:
//
//	Runs is the effective sample size: the number of samples left after
//	both the warmup discard and the outlier trim. It is the count every
//	statistic in Duration was computed from, not the number of executions.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type Results struct {
	// Runs is the number of samples the statistics were computed from.
	Runs int

	// Duration holds the duration statistics.
	Duration DurationStats

	// Durations holds the surviving samples in execution order.
	Durations []time.Duration

	// WarmupDurations holds the discarded warmup samples in execution order.
	WarmupDurations []time.Duration

	// OutliersRemoved is the number of measured samples dropped by the trim.
	OutliersRemoved int

	// Counts holds the invocation counts of the surviving samples.
	Counts []int

	// MeanCount is the mean invocation count per sample.
	MeanCount float64

	// StdevCount is the sample standard deviation of invocation counts.
	StdevCount float64
}
