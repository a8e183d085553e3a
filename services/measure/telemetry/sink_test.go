// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/measure/services/measure/stats"
)

type recordingSink struct {
	measurements int
	comparisons  int
	errs         int
	closed       int
	fail         error
}

func (r *recordingSink) RecordMeasurement(context.Context, *MeasurementData) error {
	r.measurements++
	return r.fail
}

func (r *recordingSink) RecordComparison(context.Context, *ComparisonData) error {
	r.comparisons++
	return r.fail
}

func (r *recordingSink) RecordError(context.Context, *ErrorData) error {
	r.errs++
	return r.fail
}

func (r *recordingSink) Flush(context.Context) error { return r.fail }

func (r *recordingSink) Close() error {
	r.closed++
	return nil
}

func createTestMeasurementData() *MeasurementData {
	return &MeasurementData{
		Name:            "parse_config",
		Timestamp:       time.Now(),
		Runs:            10,
		WarmupRuns:      1,
		OutliersRemoved: 1,
		Duration: stats.DurationStats{
			Mean:   20 * time.Millisecond,
			Median: 19 * time.Millisecond,
			Stdev:  2 * time.Millisecond,
			Min:    15 * time.Millisecond,
			Max:    30 * time.Millisecond,
			P95:    28 * time.Millisecond,
			P99:    29 * time.Millisecond,
		},
	}
}

func TestNewMeasurementData(t *testing.T) {
	res := &stats.Results{
		Runs:            3,
		OutliersRemoved: 2,
		Duration:        stats.DurationStats{Mean: time.Second},
	}

	data := NewMeasurementData("fn", 1, res)
	if data.Name != "fn" || data.Runs != 3 || data.WarmupRuns != 1 || data.OutliersRemoved != 2 {
		t.Errorf("unexpected data: %+v", data)
	}
	if data.Duration.Mean != time.Second {
		t.Errorf("Mean = %v, want 1s", data.Duration.Mean)
	}
	if data.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestCompositeSink(t *testing.T) {
	t.Run("rejects empty", func(t *testing.T) {
		if _, err := NewCompositeSink(); !errors.Is(err, ErrNoSinks) {
			t.Errorf("expected ErrNoSinks, got %v", err)
		}
		if _, err := NewCompositeSink(nil, nil); !errors.Is(err, ErrNoSinks) {
			t.Errorf("expected ErrNoSinks for nil sinks, got %v", err)
		}
	})

	t.Run("forwards to all children", func(t *testing.T) {
		a, b := &recordingSink{}, &recordingSink{}
		c, err := NewCompositeSink(a, nil, b)
		if err != nil {
			t.Fatalf("NewCompositeSink failed: %v", err)
		}

		ctx := context.Background()
		_ = c.RecordMeasurement(ctx, createTestMeasurementData())
		_ = c.RecordComparison(ctx, &ComparisonData{Name: "fn"})
		_ = c.RecordError(ctx, &ErrorData{Component: "sampler"})

		for i, s := range []*recordingSink{a, b} {
			if s.measurements != 1 || s.comparisons != 1 || s.errs != 1 {
				t.Errorf("sink %d: got %+v", i, s)
			}
		}
	})

	t.Run("joins child errors and keeps going", func(t *testing.T) {
		boom := errors.New("boom")
		a, b := &recordingSink{fail: boom}, &recordingSink{}
		c, _ := NewCompositeSink(a, b)

		err := c.RecordMeasurement(context.Background(), createTestMeasurementData())
		if !errors.Is(err, boom) {
			t.Errorf("expected joined boom, got %v", err)
		}
		if b.measurements != 1 {
			t.Error("second sink should still receive the data")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		a := &recordingSink{}
		c, _ := NewCompositeSink(a)

		if err := c.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := c.Close(); err != nil {
			t.Fatalf("second Close failed: %v", err)
		}
		if a.closed != 1 {
			t.Errorf("child closed %d times, want 1", a.closed)
		}
		if err := c.RecordMeasurement(context.Background(), createTestMeasurementData()); !errors.Is(err, ErrSinkClosed) {
			t.Errorf("expected ErrSinkClosed, got %v", err)
		}
	})

	t.Run("rejects nil data", func(t *testing.T) {
		c, _ := NewCompositeSink(&recordingSink{})
		if err := c.RecordMeasurement(context.Background(), nil); !errors.Is(err, ErrNilData) {
			t.Errorf("expected ErrNilData, got %v", err)
		}
	})
}

func TestNoOpSink(t *testing.T) {
	s := NewNoOpSink()
	ctx := context.Background()

	if err := s.RecordMeasurement(ctx, createTestMeasurementData()); err != nil {
		t.Errorf("RecordMeasurement = %v", err)
	}
	if err := s.RecordComparison(ctx, &ComparisonData{}); err != nil {
		t.Errorf("RecordComparison = %v", err)
	}
	if err := s.RecordError(ctx, &ErrorData{}); err != nil {
		t.Errorf("RecordError = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
