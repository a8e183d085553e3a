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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/AleutianAI/measure/services/measure/telemetry"

var (
	// ErrOTelInitFailed is returned when instrument creation fails.
	ErrOTelInitFailed = errors.New("opentelemetry initialization failed")

	// ErrInvalidOTelConfig is returned when the OTel configuration is invalid.
	ErrInvalidOTelConfig = errors.New("invalid opentelemetry configuration")
)

// OTelConfig configures the OpenTelemetry sink.
type OTelConfig struct {
	// ServiceVersion is reported as the instrumentation version.
	ServiceVersion string

	// TracerProvider to use. If nil, uses the global provider.
	TracerProvider trace.TracerProvider

	// MeterProvider to use. If nil, uses the global provider.
	MeterProvider metric.MeterProvider

	// TraceEnabled enables span creation.
	TraceEnabled bool

	// MetricsEnabled enables instrument recording.
	MetricsEnabled bool
}

// DefaultOTelConfig returns a configuration with tracing and metrics enabled.
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceVersion: "0.1.0",
		TraceEnabled:   true,
		MetricsEnabled: true,
	}
}

// OTelSink records telemetry through OpenTelemetry.
//
// Description:
//
//	Each event becomes a short span carrying the event attributes, and the
//	numeric values are recorded on histograms and counters. The sink does not
//	own its providers; shutting them down is the caller's job.
//
// Thread Safety: Safe for concurrent use.
type OTelSink struct {
	config *OTelConfig
	tracer trace.Tracer
	meter  metric.Meter

	durationMean   metric.Float64Histogram
	durationMedian metric.Float64Histogram
	durationStdev  metric.Float64Histogram
	runs           metric.Int64Counter
	outliers       metric.Int64Counter
	relChange      metric.Float64Gauge
	comparisons    metric.Int64Counter
	errorsTotal    metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewOTelSink creates an OpenTelemetry sink.
//
// Inputs:
//   - config: Must not be nil.
//
// Outputs:
//   - *OTelSink: The sink. Never nil on success.
//   - error: ErrInvalidOTelConfig or ErrOTelInitFailed.
func NewOTelSink(config *OTelConfig) (*OTelSink, error) {
	if config == nil {
		return nil, ErrInvalidOTelConfig
	}
	cfg := *config

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	s := &OTelSink{
		config: &cfg,
		tracer: tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		meter:  mp.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
	}

	if cfg.MetricsEnabled {
		if err := s.initializeMetrics(); err != nil {
			return nil, errors.Join(ErrOTelInitFailed, err)
		}
	}
	return s, nil
}

func (s *OTelSink) initializeMetrics() error {
	var err error

	if s.durationMean, err = s.meter.Float64Histogram(
		"measure.duration.mean",
		metric.WithDescription("Mean duration of a measurement"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	if s.durationMedian, err = s.meter.Float64Histogram(
		"measure.duration.median",
		metric.WithDescription("Median duration of a measurement"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	if s.durationStdev, err = s.meter.Float64Histogram(
		"measure.duration.stdev",
		metric.WithDescription("Standard deviation of a measurement"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	if s.runs, err = s.meter.Int64Counter(
		"measure.runs",
		metric.WithDescription("Measured runs after warmup and outlier removal"),
		metric.WithUnit("{run}"),
	); err != nil {
		return err
	}

	if s.outliers, err = s.meter.Int64Counter(
		"measure.outliers",
		metric.WithDescription("Samples dropped by outlier removal"),
		metric.WithUnit("{sample}"),
	); err != nil {
		return err
	}

	if s.relChange, err = s.meter.Float64Gauge(
		"measure.comparison.relative_change",
		metric.WithDescription("Relative change of mean duration against the baseline"),
		metric.WithUnit("1"),
	); err != nil {
		return err
	}

	if s.comparisons, err = s.meter.Int64Counter(
		"measure.comparison.total",
		metric.WithDescription("Compared entries"),
		metric.WithUnit("{comparison}"),
	); err != nil {
		return err
	}

	s.errorsTotal, err = s.meter.Int64Counter(
		"measure.errors",
		metric.WithDescription("Errors"),
		metric.WithUnit("{error}"),
	)
	return err
}

func (s *OTelSink) checkOpen(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

// RecordMeasurement records a measurement span and its metrics.
func (s *OTelSink) RecordMeasurement(ctx context.Context, data *MeasurementData) error {
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	attrs := []attribute.KeyValue{
		attribute.String("measure.name", orUnknown(data.Name)),
	}
	for k, v := range data.Labels {
		attrs = append(attrs, attribute.String("label."+k, v))
	}

	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "measurement.record",
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.SetAttributes(
			attribute.Int("measure.runs", data.Runs),
			attribute.Int("measure.warmup_runs", data.WarmupRuns),
			attribute.Int("measure.outliers_removed", data.OutliersRemoved),
			attribute.Float64("duration.mean_seconds", data.Duration.Mean.Seconds()),
			attribute.Float64("duration.median_seconds", data.Duration.Median.Seconds()),
			attribute.Float64("duration.stdev_seconds", data.Duration.Stdev.Seconds()),
		)
		span.End()
	}

	if s.config.MetricsEnabled {
		set := metric.WithAttributes(attrs...)
		s.durationMean.Record(ctx, data.Duration.Mean.Seconds(), set)
		s.durationMedian.Record(ctx, data.Duration.Median.Seconds(), set)
		s.durationStdev.Record(ctx, data.Duration.Stdev.Seconds(), set)
		s.runs.Add(ctx, int64(data.Runs), set)
		if data.OutliersRemoved > 0 {
			s.outliers.Add(ctx, int64(data.OutliersRemoved), set)
		}
	}
	return nil
}

// RecordComparison records a comparison span and its metrics.
func (s *OTelSink) RecordComparison(ctx context.Context, data *ComparisonData) error {
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	name := orUnknown(data.Name)
	classification := orUnknown(data.Classification)

	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "comparison.record",
			trace.WithAttributes(
				attribute.String("measure.name", name),
				attribute.String("comparison.classification", classification),
				attribute.Bool("comparison.significant", data.Significant),
				attribute.Float64("comparison.relative_change", data.RelativeChange),
				attribute.Float64("comparison.p_value", data.PValue),
				attribute.Float64("comparison.effect_size", data.EffectSize),
				attribute.String("comparison.effect_size_category", data.EffectSizeCategory),
			),
			trace.WithTimestamp(data.Timestamp),
		)
		span.End()
	}

	if s.config.MetricsEnabled {
		s.relChange.Record(ctx, data.RelativeChange, metric.WithAttributes(attribute.String("measure.name", name)))
		s.comparisons.Add(ctx, 1, metric.WithAttributes(attribute.String("classification", classification)))
	}
	return nil
}

// RecordError records an error span and increments the error counter.
func (s *OTelSink) RecordError(ctx context.Context, data *ErrorData) error {
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	attrs := []attribute.KeyValue{
		attribute.String("error.component", orUnknown(data.Component)),
		attribute.String("error.operation", orUnknown(data.Operation)),
		attribute.String("error.type", orUnknown(data.ErrorType)),
	}

	if s.config.TraceEnabled {
		spanAttrs := append([]attribute.KeyValue{attribute.String("error.message", data.Message)}, attrs...)
		for k, v := range data.Labels {
			spanAttrs = append(spanAttrs, attribute.String("label."+k, v))
		}
		_, span := s.tracer.Start(ctx, "error.record",
			trace.WithAttributes(spanAttrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.SetStatus(codes.Error, data.Message)
		span.End()
	}

	if s.config.MetricsEnabled {
		s.errorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	return nil
}

// Flush is a no-op; export is driven by the providers.
func (s *OTelSink) Flush(ctx context.Context) error {
	return s.checkOpen(ctx)
}

// Close marks the sink closed. Providers are not shut down.
func (s *OTelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Sink = (*OTelSink)(nil)
