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
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestPrometheusSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	config := DefaultPrometheusConfig()
	config.Registry = reg

	sink, err := NewPrometheusSink(config)
	if err != nil {
		t.Fatalf("NewPrometheusSink failed: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink, reg
}

func TestPrometheusConfig_Validate(t *testing.T) {
	config := DefaultPrometheusConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	config.Namespace = ""
	if err := config.Validate(); err == nil {
		t.Error("Validate() should fail for empty namespace")
	}

	config = DefaultPrometheusConfig()
	config.Subsystem = ""
	if err := config.Validate(); err == nil {
		t.Error("Validate() should fail for empty subsystem")
	}
}

func TestNewPrometheusSink(t *testing.T) {
	t.Run("rejects nil config", func(t *testing.T) {
		if _, err := NewPrometheusSink(nil); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		_, err := NewPrometheusSink(&PrometheusConfig{Subsystem: "x"})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("applies default buckets", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		sink, err := NewPrometheusSink(&PrometheusConfig{Namespace: "a", Subsystem: "b", Registry: reg})
		if err != nil {
			t.Fatalf("NewPrometheusSink failed: %v", err)
		}
		defer sink.Close()
		if len(sink.config.DurationBuckets) == 0 {
			t.Error("expected default duration buckets")
		}
	})
}

func TestPrometheusSink_RecordMeasurement(t *testing.T) {
	sink, reg := newTestPrometheusSink(t)
	ctx := context.Background()

	data := createTestMeasurementData()
	if err := sink.RecordMeasurement(ctx, data); err != nil {
		t.Fatalf("RecordMeasurement failed: %v", err)
	}
	if err := sink.RecordMeasurement(ctx, data); err != nil {
		t.Fatalf("RecordMeasurement failed: %v", err)
	}

	if got := testutil.ToFloat64(sink.measurementRuns.WithLabelValues("parse_config")); got != 20 {
		t.Errorf("runs_total = %v, want 20", got)
	}
	if got := testutil.ToFloat64(sink.measurementsTotal.WithLabelValues("parse_config")); got != 2 {
		t.Errorf("measurements_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(sink.measurementMean.WithLabelValues("parse_config")); got != 0.02 {
		t.Errorf("mean gauge = %v, want 0.02", got)
	}
	if got := testutil.ToFloat64(sink.outliersRemoved.WithLabelValues("parse_config")); got != 2 {
		t.Errorf("outliers_removed_total = %v, want 2", got)
	}

	expected := `
# HELP measure_function_measurements_total Total completed measurements
# TYPE measure_function_measurements_total counter
measure_function_measurements_total{name="parse_config"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "measure_function_measurements_total"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestPrometheusSink_RecordComparison(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)

	err := sink.RecordComparison(context.Background(), &ComparisonData{
		Name:               "parse_config",
		Classification:     "regression",
		RelativeChange:     0.25,
		PValue:             0.01,
		EffectSize:         1.2,
		EffectSizeCategory: "large",
		Significant:        true,
	})
	if err != nil {
		t.Fatalf("RecordComparison failed: %v", err)
	}

	if got := testutil.ToFloat64(sink.comparisonChange.WithLabelValues("parse_config")); got != 0.25 {
		t.Errorf("relative change = %v, want 0.25", got)
	}
	if got := testutil.ToFloat64(sink.comparisonsTotal.WithLabelValues("regression")); got != 1 {
		t.Errorf("comparisons_total = %v, want 1", got)
	}
}

func TestPrometheusSink_RecordError(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)

	err := sink.RecordError(context.Background(), &ErrorData{Component: "sampler", Operation: "measure", ErrorType: "function_error"})
	if err != nil {
		t.Fatalf("RecordError failed: %v", err)
	}
	if got := testutil.ToFloat64(sink.errorsTotal.WithLabelValues("sampler", "measure", "function_error")); got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}

	_ = sink.RecordError(context.Background(), &ErrorData{})
	if got := testutil.ToFloat64(sink.errorsTotal.WithLabelValues("unknown", "unknown", "unknown")); got != 1 {
		t.Errorf("errors_total for empty fields = %v, want 1", got)
	}
}

func TestPrometheusSink_Closed(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close should be idempotent: %v", err)
	}
	if err := sink.RecordMeasurement(context.Background(), createTestMeasurementData()); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed, got %v", err)
	}
	if err := sink.Flush(context.Background()); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed from Flush, got %v", err)
	}
}

func TestPrometheusSink_LabelCardinality(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := DefaultPrometheusConfig()
	config.Registry = reg
	config.MaxLabelCardinality = 2

	sink, err := NewPrometheusSink(config)
	if err != nil {
		t.Fatalf("NewPrometheusSink failed: %v", err)
	}
	defer sink.Close()

	for _, name := range []string{"a", "b", "c", "d"} {
		data := createTestMeasurementData()
		data.Name = name
		if err := sink.RecordMeasurement(context.Background(), data); err != nil {
			t.Fatalf("RecordMeasurement failed: %v", err)
		}
	}

	if got := testutil.ToFloat64(sink.measurementsTotal.WithLabelValues("_other")); got != 2 {
		t.Errorf("_other measurements = %v, want 2", got)
	}
}
