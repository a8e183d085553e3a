// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summarize computes duration statistics over a set of samples.
//
// Description:
//
//	Computes mean and sample standard deviation with gonum/stat, and
//	min, max, median and percentiles from a sorted copy. The input slice
//	is not modified.
//
// Inputs:
//   - durations: Samples to summarize. Must not be empty.
//
// Outputs:
//   - DurationStats: The computed statistics.
//   - error: ErrNoSamples if durations is empty.
//
// Example:
//
//	s, err := stats.Summarize([]time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond})
//	// s.Mean == 20ms, s.Median == 20ms, s.Stdev == 10ms
func Summarize(durations []time.Duration) (DurationStats, error) {
	if len(durations) == 0 {
		return DurationStats{}, ErrNoSamples
	}

	values := toFloats(durations)
	mean, stdev := meanStdev(values)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	median := percentile(sorted, 0.50)
	return DurationStats{
		Mean:   toDuration(mean),
		Median: toDuration(median),
		Stdev:  toDuration(stdev),
		Min:    toDuration(sorted[0]),
		Max:    toDuration(sorted[len(sorted)-1]),
		P50:    toDuration(median),
		P75:    toDuration(percentile(sorted, 0.75)),
		P90:    toDuration(percentile(sorted, 0.90)),
		P95:    toDuration(percentile(sorted, 0.95)),
		P99:    toDuration(percentile(sorted, 0.99)),
	}, nil
}

// meanStdev returns the mean and sample standard deviation of values.
// The deviation of fewer than two values is zero.
func meanStdev(values []float64) (mean, stdev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	mean, stdev = stat.MeanStdDev(values, nil)
	if math.IsNaN(stdev) {
		stdev = 0
	}
	return mean, stdev
}

// percentile returns the p-th percentile of sorted values using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}

	fraction := index - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}

func toFloats(durations []time.Duration) []float64 {
	out := make([]float64, len(durations))
	for i, d := range durations {
		out[i] = float64(d)
	}
	return out
}

func toDuration(ns float64) time.Duration {
	return time.Duration(math.Round(ns))
}
