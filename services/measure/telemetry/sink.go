// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exports measurement results to metrics backends.
//
// # Sinks
//
// A Sink receives three kinds of events:
//
//   - Measurements: the summary of one completed Measure call.
//   - Comparisons: one entry of a baseline/current comparison.
//   - Errors: failures of measured functions or of the persistence layer.
//
// PrometheusSink exposes them as pull-based Prometheus collectors and OTelSink
// records them through OpenTelemetry instruments and spans. CompositeSink fans
// out to several sinks and NoOpSink discards everything.
//
// # Thread Safety
//
// All sinks are safe for concurrent use. After Close every recording method
// returns ErrSinkClosed.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AleutianAI/measure/services/measure/stats"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilContext is returned when a nil context is provided.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilData is returned when nil data is provided to a recording method.
	ErrNilData = errors.New("data must not be nil")

	// ErrSinkClosed is returned when attempting to use a closed sink.
	ErrSinkClosed = errors.New("sink has been closed")

	// ErrNoSinks is returned when creating a composite sink with no children.
	ErrNoSinks = errors.New("at least one sink is required")
)

// -----------------------------------------------------------------------------
// Interface
// -----------------------------------------------------------------------------

// Sink records measurement telemetry.
//
// Thread Safety: All implementations must be safe for concurrent use.
type Sink interface {
	// RecordMeasurement records the summary of one measurement.
	RecordMeasurement(ctx context.Context, data *MeasurementData) error

	// RecordComparison records one compared entry.
	RecordComparison(ctx context.Context, data *ComparisonData) error

	// RecordError records a failure.
	RecordError(ctx context.Context, data *ErrorData) error

	// Flush exports buffered data, if the sink buffers.
	Flush(ctx context.Context) error

	// Close releases resources. Idempotent.
	Close() error
}

// -----------------------------------------------------------------------------
// Data Types
// -----------------------------------------------------------------------------

// MeasurementData is the telemetry view of a completed measurement.
type MeasurementData struct {
	// Name identifies the measured function.
	Name string

	// Timestamp is when the measurement completed.
	Timestamp time.Time

	// Runs is the effective sample size.
	Runs int

	// WarmupRuns is the number of discarded leading runs.
	WarmupRuns int

	// OutliersRemoved is the number of samples dropped by the trim.
	OutliersRemoved int

	// Duration holds the duration statistics.
	Duration stats.DurationStats

	// Labels are additional attributes.
	Labels map[string]string
}

// NewMeasurementData builds MeasurementData from reduced results.
func NewMeasurementData(name string, warmupRuns int, res *stats.Results) *MeasurementData {
	data := &MeasurementData{
		Name:       name,
		Timestamp:  time.Now(),
		WarmupRuns: warmupRuns,
	}
	if res != nil {
		data.Runs = res.Runs
		data.OutliersRemoved = res.OutliersRemoved
		data.Duration = res.Duration
	}
	return data
}

// ComparisonData is the telemetry view of one compared entry.
type ComparisonData struct {
	// Name identifies the compared function.
	Name string

	// Timestamp is when the comparison was made.
	Timestamp time.Time

	// Classification is the comparison verdict, e.g. "regression".
	Classification string

	// RelativeChange is (current - baseline) / baseline of the mean duration.
	RelativeChange float64

	// PValue is the Welch t-test p-value.
	PValue float64

	// EffectSize is Cohen's d.
	EffectSize float64

	// EffectSizeCategory is the category of EffectSize.
	EffectSizeCategory string

	// Significant is true when the change is statistically significant.
	Significant bool
}

// ErrorData describes a failure.
type ErrorData struct {
	// Component is where the error occurred, e.g. "sampler".
	Component string

	// Operation is what was being done, e.g. "measure".
	Operation string

	// ErrorType is a short classification, e.g. "function_error".
	ErrorType string

	// Message is the error text.
	Message string

	// Timestamp is when the error occurred.
	Timestamp time.Time

	// Labels are additional attributes.
	Labels map[string]string
}

// -----------------------------------------------------------------------------
// Composite Sink
// -----------------------------------------------------------------------------

// CompositeSink forwards telemetry to several sinks.
//
// Description:
//
//	One child's failure does not stop the others from receiving the data;
//	all child errors are joined.
//
// Thread Safety: Safe for concurrent use.
type CompositeSink struct {
	sinks  []Sink
	mu     sync.RWMutex
	closed bool
}

// NewCompositeSink creates a composite of the non-nil sinks given.
//
// Outputs:
//   - *CompositeSink: The composite. Never nil on success.
//   - error: ErrNoSinks if no non-nil sink was provided.
func NewCompositeSink(sinks ...Sink) (*CompositeSink, error) {
	valid := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoSinks
	}
	return &CompositeSink{sinks: valid}, nil
}

func (c *CompositeSink) each(ctx context.Context, fn func(Sink) error) error {
	if ctx == nil {
		return ErrNilContext
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrSinkClosed
	}
	sinks := c.sinks
	c.mu.RUnlock()

	var errs []error
	for _, sink := range sinks {
		if err := fn(sink); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordMeasurement implements Sink.
func (c *CompositeSink) RecordMeasurement(ctx context.Context, data *MeasurementData) error {
	if data == nil {
		return ErrNilData
	}
	return c.each(ctx, func(s Sink) error { return s.RecordMeasurement(ctx, data) })
}

// RecordComparison implements Sink.
func (c *CompositeSink) RecordComparison(ctx context.Context, data *ComparisonData) error {
	if data == nil {
		return ErrNilData
	}
	return c.each(ctx, func(s Sink) error { return s.RecordComparison(ctx, data) })
}

// RecordError implements Sink.
func (c *CompositeSink) RecordError(ctx context.Context, data *ErrorData) error {
	if data == nil {
		return ErrNilData
	}
	return c.each(ctx, func(s Sink) error { return s.RecordError(ctx, data) })
}

// Flush implements Sink.
func (c *CompositeSink) Flush(ctx context.Context) error {
	return c.each(ctx, func(s Sink) error { return s.Flush(ctx) })
}

// Close closes every child sink. Idempotent.
func (c *CompositeSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, sink := range c.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// No-Op Sink
// -----------------------------------------------------------------------------

// NoOpSink discards all telemetry.
type NoOpSink struct{}

// NewNoOpSink creates a sink that discards everything.
func NewNoOpSink() *NoOpSink {
	return &NoOpSink{}
}

// RecordMeasurement implements Sink.
func (n *NoOpSink) RecordMeasurement(context.Context, *MeasurementData) error { return nil }

// RecordComparison implements Sink.
func (n *NoOpSink) RecordComparison(context.Context, *ComparisonData) error { return nil }

// RecordError implements Sink.
func (n *NoOpSink) RecordError(context.Context, *ErrorData) error { return nil }

// Flush implements Sink.
func (n *NoOpSink) Flush(context.Context) error { return nil }

// Close implements Sink.
func (n *NoOpSink) Close() error { return nil }

var (
	_ Sink = (*CompositeSink)(nil)
	_ Sink = (*NoOpSink)(nil)
)
