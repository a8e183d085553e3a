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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(values ...int) SampleSet {
	out := make(SampleSet, len(values))
	for i, v := range values {
		out[i] = RunResult{Duration: time.Duration(v) * time.Millisecond, Count: 1}
	}
	return out
}

func newTestReducer(t *testing.T, removeOutliers bool) *Reducer {
	t.Helper()
	cfg := DefaultReducerConfig()
	cfg.RemoveOutliers = removeOutliers
	r, err := NewReducer(cfg)
	require.NoError(t, err)
	return r
}

// -----------------------------------------------------------------------------
// Summarize
// -----------------------------------------------------------------------------

func TestSummarize(t *testing.T) {
	t.Run("empty returns ErrNoSamples", func(t *testing.T) {
		_, err := Summarize(nil)
		assert.ErrorIs(t, err, ErrNoSamples)
	})

	t.Run("single sample has zero deviation", func(t *testing.T) {
		s, err := Summarize([]time.Duration{7 * time.Millisecond})
		require.NoError(t, err)
		assert.Equal(t, 7*time.Millisecond, s.Mean)
		assert.Equal(t, 7*time.Millisecond, s.Median)
		assert.Equal(t, time.Duration(0), s.Stdev)
		assert.Equal(t, 7*time.Millisecond, s.P99)
	})

	t.Run("odd set", func(t *testing.T) {
		s, err := Summarize(ms(30, 10, 20).Durations())
		require.NoError(t, err)
		assert.Equal(t, 20*time.Millisecond, s.Mean)
		assert.Equal(t, 20*time.Millisecond, s.Median)
		assert.Equal(t, 10*time.Millisecond, s.Stdev)
		assert.Equal(t, 10*time.Millisecond, s.Min)
		assert.Equal(t, 30*time.Millisecond, s.Max)
	})

	t.Run("even set median averages central values", func(t *testing.T) {
		s, err := Summarize(ms(40, 10, 30, 20).Durations())
		require.NoError(t, err)
		assert.Equal(t, 25*time.Millisecond, s.Median)
		assert.Equal(t, s.Median, s.P50)
	})

	t.Run("percentiles interpolate", func(t *testing.T) {
		values := make([]int, 101)
		for i := range values {
			values[i] = i
		}
		s, err := Summarize(ms(values...).Durations())
		require.NoError(t, err)
		assert.Equal(t, 75*time.Millisecond, s.P75)
		assert.Equal(t, 90*time.Millisecond, s.P90)
		assert.Equal(t, 95*time.Millisecond, s.P95)
		assert.Equal(t, 99*time.Millisecond, s.P99)
	})

	t.Run("does not reorder input", func(t *testing.T) {
		in := ms(30, 10, 20).Durations()
		_, err := Summarize(in)
		require.NoError(t, err)
		assert.Equal(t, ms(30, 10, 20).Durations(), in)
	})
}

// -----------------------------------------------------------------------------
// TrimOutliers
// -----------------------------------------------------------------------------

func TestTrimOutliers(t *testing.T) {
	t.Run("removes spike", func(t *testing.T) {
		kept := TrimOutliers(ms(10, 11, 1000, 12, 13, 14), DefaultOutlierThreshold)
		assert.Equal(t, ms(10, 11, 12, 13, 14), kept)
	})

	t.Run("small sets are untouched", func(t *testing.T) {
		in := ms(10, 10, 1000)
		assert.Equal(t, in, TrimOutliers(in, DefaultOutlierThreshold))
	})

	t.Run("uniform set is untouched", func(t *testing.T) {
		in := ms(5, 5, 5, 5, 5)
		assert.Equal(t, in, TrimOutliers(in, DefaultOutlierThreshold))
	})
}

func TestFences(t *testing.T) {
	lower, upper, err := Fences(ms(10, 11, 12, 13, 14, 1000), 1.5)
	require.NoError(t, err)
	assert.InDelta(t, float64(7500*time.Microsecond), lower, 1)
	assert.InDelta(t, float64(17500*time.Microsecond), upper, 1)

	_, _, err = Fences(nil, 1.5)
	assert.ErrorIs(t, err, ErrNoSamples)
}

// -----------------------------------------------------------------------------
// Reducer
// -----------------------------------------------------------------------------

func TestNewReducer_RejectsNonPositiveThreshold(t *testing.T) {
	_, err := NewReducer(ReducerConfig{RemoveOutliers: true, OutlierThreshold: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewReducer(ReducerConfig{RemoveOutliers: false})
	assert.NoError(t, err)
}

func TestReduce_DiscardsWarmupByPosition(t *testing.T) {
	r := newTestReducer(t, true)

	res, err := r.Reduce(ms(100, 100, 10, 20, 30), 2)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Runs)
	assert.Equal(t, 20*time.Millisecond, res.Duration.Mean)
	assert.Equal(t, 20*time.Millisecond, res.Duration.Median)
	assert.Equal(t, 10*time.Millisecond, res.Duration.Min)
	assert.Equal(t, 30*time.Millisecond, res.Duration.Max)
	assert.Equal(t, ms(100, 100).Durations(), res.WarmupDurations)
	assert.Equal(t, ms(10, 20, 30).Durations(), res.Durations)
	assert.Equal(t, 0, res.OutliersRemoved)
}

func TestReduce_WarmupIgnoresValues(t *testing.T) {
	r := newTestReducer(t, false)

	// A fast first run is still a warmup run.
	res, err := r.Reduce(ms(1, 50, 50), 1)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, res.Duration.Min)
}

func TestReduce_Errors(t *testing.T) {
	r := newTestReducer(t, true)

	tests := []struct {
		name    string
		samples SampleSet
		warmup  int
		wantErr error
	}{
		{"empty set", nil, 0, ErrInsufficientSamples},
		{"warmup equals length", ms(10, 20), 2, ErrInsufficientSamples},
		{"warmup exceeds length", ms(10), 3, ErrInsufficientSamples},
		{"negative warmup", ms(10, 20), -1, ErrInvalidWarmup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Reduce(tt.samples, tt.warmup)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
		})
	}
}

func TestReduce_SingleSample(t *testing.T) {
	r := newTestReducer(t, true)

	res, err := r.Reduce(ms(42), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Runs)
	assert.Equal(t, 42*time.Millisecond, res.Duration.Mean)
	assert.Equal(t, time.Duration(0), res.Duration.Stdev)
	assert.Equal(t, 0.0, res.StdevCount)
}

func TestReduce_CountOneMeanIsArithmetic(t *testing.T) {
	r := newTestReducer(t, false)

	res, err := r.Reduce(ms(10, 20, 60), 0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Millisecond, res.Duration.Mean)
	assert.Equal(t, []int{1, 1, 1}, res.Counts)
	assert.Equal(t, 1.0, res.MeanCount)
	assert.Equal(t, 0.0, res.StdevCount)
}

func TestReduce_CountsDoNotWeightMean(t *testing.T) {
	r := newTestReducer(t, false)

	samples := SampleSet{
		{Duration: 10 * time.Millisecond, Count: 1},
		{Duration: 30 * time.Millisecond, Count: 9},
	}
	res, err := r.Reduce(samples, 0)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, res.Duration.Mean)
	assert.Equal(t, 5.0, res.MeanCount)
}

func TestReduce_TrimsOutliers(t *testing.T) {
	r := newTestReducer(t, true)

	res, err := r.Reduce(ms(500, 10, 11, 1000, 12, 13, 14), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Runs)
	assert.Equal(t, 1, res.OutliersRemoved)
	assert.Equal(t, 14*time.Millisecond, res.Duration.Max)
	assert.Equal(t, len(res.Durations), res.Runs)
}

func TestReduce_TrimDisabled(t *testing.T) {
	r := newTestReducer(t, false)

	res, err := r.Reduce(ms(10, 11, 1000, 12, 13, 14), 0)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Runs)
	assert.Equal(t, 0, res.OutliersRemoved)
	assert.Equal(t, 1000*time.Millisecond, res.Duration.Max)
}

func TestReduce_Idempotent(t *testing.T) {
	r := newTestReducer(t, true)
	samples := ms(9, 12, 10, 11, 300, 10, 13)

	first, err := r.Reduce(samples, 1)
	require.NoError(t, err)
	second, err := r.Reduce(samples, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, ms(9, 12, 10, 11, 300, 10, 13), samples)
}
