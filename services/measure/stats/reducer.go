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
	"fmt"
)

// ReducerConfig configures a Reducer.
type ReducerConfig struct {
	// RemoveOutliers enables the IQR trim of measured samples.
	// Default: true
	RemoveOutliers bool

	// OutlierThreshold is the IQR fence multiplier. Must be positive when
	// RemoveOutliers is set.
	// Default: DefaultOutlierThreshold
	OutlierThreshold float64
}

// DefaultReducerConfig returns a configuration with outlier trimming enabled.
func DefaultReducerConfig() ReducerConfig {
	return ReducerConfig{
		RemoveOutliers:   true,
		OutlierThreshold: DefaultOutlierThreshold,
	}
}

// Validate checks that the configuration is usable.
func (c ReducerConfig) Validate() error {
	if c.RemoveOutliers && c.OutlierThreshold <= 0 {
		return fmt.Errorf("%w: outlier threshold must be positive, got %v", ErrInvalidConfig, c.OutlierThreshold)
	}
	return nil
}

// Reducer turns a raw sample set into Results.
//
// Thread Safety: Immutable; safe for concurrent use.
type Reducer struct {
	config ReducerConfig
}

// NewReducer creates a reducer.
//
// Outputs:
//   - *Reducer: The reducer. Never nil when error is nil.
//   - error: ErrInvalidConfig if the configuration fails validation.
func NewReducer(config ReducerConfig) (*Reducer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Reducer{config: config}, nil
}

// Config returns the reducer configuration.
func (r *Reducer) Config() ReducerConfig {
	return r.config
}

// Reduce discards warmup samples, trims outliers and aggregates the rest.
//
// Description:
//
//	The first warmup entries of samples are dropped by position. When
//	trimming is enabled, the remaining samples go through TrimOutliers.
//	Duration statistics are computed over what survives, and the
//	invocation counts are summarized separately so that they never weight
//	the duration mean.
//
// Inputs:
//   - samples: Raw samples in execution order, warmup runs first.
//   - warmup: Number of leading samples to discard. Must be >= 0.
//
// Outputs:
//   - *Results: The summary. Results.Runs equals len(Results.Durations).
//   - error: ErrInvalidWarmup for a negative warmup; ErrInsufficientSamples
//     when warmup >= len(samples), which includes an empty set.
//
// Example:
//
//	r, _ := stats.NewReducer(stats.DefaultReducerConfig())
//	res, err := r.Reduce(samples, 1)
//
// Limitations:
//   - The input is not modified; Results owns copies of the durations.
func (r *Reducer) Reduce(samples SampleSet, warmup int) (*Results, error) {
	if warmup < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWarmup, warmup)
	}
	if warmup >= len(samples) {
		return nil, fmt.Errorf("%w: %d samples with %d warmup runs", ErrInsufficientSamples, len(samples), warmup)
	}

	warmupSet := samples[:warmup]
	measured := samples[warmup:]

	kept := measured
	if r.config.RemoveOutliers {
		kept = TrimOutliers(measured, r.config.OutlierThreshold)
	}

	durations := kept.Durations()
	summary, err := Summarize(durations)
	if err != nil {
		return nil, fmt.Errorf("summarizing durations: %w", err)
	}

	counts := kept.Counts()
	countValues := make([]float64, len(counts))
	for i, c := range counts {
		countValues[i] = float64(c)
	}
	meanCount, stdevCount := meanStdev(countValues)

	return &Results{
		Runs:            len(durations),
		Duration:        summary,
		Durations:       durations,
		WarmupDurations: warmupSet.Durations(),
		OutliersRemoved: len(measured) - len(kept),
		Counts:          counts,
		MeanCount:       meanCount,
		StdevCount:      stdevCount,
	}, nil
}
