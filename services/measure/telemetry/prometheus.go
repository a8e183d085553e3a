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

	"github.com/prometheus/client_golang/prometheus"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig is returned when the Prometheus configuration is invalid.
	ErrInvalidConfig = errors.New("invalid prometheus configuration")

	// ErrRegistrationFailed is returned when metric registration fails.
	ErrRegistrationFailed = errors.New("metric registration failed")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// PrometheusConfig configures the Prometheus sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type PrometheusConfig struct {
	// Namespace is the metrics namespace. Required.
	Namespace string

	// Subsystem is the metrics subsystem. Required.
	Subsystem string

	// Registry is the registry to register collectors with.
	// If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// DurationBuckets are histogram buckets for durations in seconds.
	// If nil, uses the default buckets.
	DurationBuckets []float64

	// MaxLabelCardinality caps the distinct values tracked per label.
	// Further values are reported as "_other".
	// Default: 1000
	MaxLabelCardinality int
}

// DefaultPrometheusConfig returns a configuration with sensible defaults.
//
// Example:
//
//	config := telemetry.DefaultPrometheusConfig()
//	config.Registry = prometheus.NewRegistry()
//	sink, err := telemetry.NewPrometheusSink(config)
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace: "measure",
		Subsystem: "function",
		DurationBuckets: []float64{
			0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
		},
		MaxLabelCardinality: 1000,
	}
}

// Validate checks that required fields are set.
func (c *PrometheusConfig) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Subsystem == "" {
		return errors.New("subsystem is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Prometheus Sink
// -----------------------------------------------------------------------------

// PrometheusSink exports telemetry as Prometheus metrics.
//
// Description:
//
//	Every measurement observes its mean, median and tail percentiles into
//	a duration histogram labelled by name and statistic, and sets gauges
//	holding the latest mean and standard deviation per name. Comparisons
//	set per-name gauges for relative change, p-value and effect size.
//
// Thread Safety: Safe for concurrent use.
//
// Example:
//
//	sink, err := telemetry.NewPrometheusSink(telemetry.DefaultPrometheusConfig())
//	if err != nil {
//	    return fmt.Errorf("create prometheus sink: %w", err)
//	}
//	defer sink.Close()
type PrometheusSink struct {
	config   *PrometheusConfig
	registry prometheus.Registerer

	// Measurement metrics
	measurementDuration *prometheus.HistogramVec
	measurementMean     *prometheus.GaugeVec
	measurementStdev    *prometheus.GaugeVec
	measurementRuns     *prometheus.CounterVec
	measurementsTotal   *prometheus.CounterVec
	outliersRemoved     *prometheus.CounterVec

	// Comparison metrics
	comparisonChange     *prometheus.GaugeVec
	comparisonPValue     *prometheus.GaugeVec
	comparisonEffectSize *prometheus.GaugeVec
	comparisonsTotal     *prometheus.CounterVec

	// Error metrics
	errorsTotal *prometheus.CounterVec

	mu     sync.RWMutex
	closed bool

	collectors []prometheus.Collector

	labelMu        sync.RWMutex
	seenLabels     map[string]map[string]struct{}
	maxCardinality int
}

// NewPrometheusSink creates a Prometheus sink and registers its collectors.
//
// Inputs:
//   - config: Prometheus configuration. Must not be nil.
//
// Outputs:
//   - *PrometheusSink: The created sink. Never nil on success.
//   - error: ErrInvalidConfig or ErrRegistrationFailed.
//
// Limitations:
//   - Collectors already registered on the registry are tolerated, so two
//     sinks sharing a registry will not both receive observations.
func NewPrometheusSink(config *PrometheusConfig) (*PrometheusSink, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	cfg := *config
	if cfg.DurationBuckets == nil {
		cfg.DurationBuckets = DefaultPrometheusConfig().DurationBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	maxCard := cfg.MaxLabelCardinality
	if maxCard <= 0 {
		maxCard = 1000
	}

	s := &PrometheusSink{
		config:         &cfg,
		registry:       registry,
		seenLabels:     make(map[string]map[string]struct{}),
		maxCardinality: maxCard,
	}

	s.measurementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "duration_seconds",
			Help:      "Measured function duration statistics in seconds",
			Buckets:   cfg.DurationBuckets,
		},
		[]string{"name", "statistic"},
	)

	s.measurementMean = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "mean_duration_seconds",
			Help:      "Mean duration of the latest measurement in seconds",
		},
		[]string{"name"},
	)

	s.measurementStdev = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stdev_duration_seconds",
			Help:      "Standard deviation of the latest measurement in seconds",
		},
		[]string{"name"},
	)

	s.measurementRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "runs_total",
			Help:      "Total measured runs that survived warmup and outlier removal",
		},
		[]string{"name"},
	)

	s.measurementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "measurements_total",
			Help:      "Total completed measurements",
		},
		[]string{"name"},
	)

	s.outliersRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "outliers_removed_total",
			Help:      "Total samples dropped by outlier removal",
		},
		[]string{"name"},
	)

	s.comparisonChange = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "comparison_relative_change",
			Help:      "Relative change of mean duration against the baseline",
		},
		[]string{"name"},
	)

	s.comparisonPValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "comparison_p_value",
			Help:      "Welch t-test p-value against the baseline",
		},
		[]string{"name"},
	)

	s.comparisonEffectSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "comparison_effect_size",
			Help:      "Cohen's d effect size against the baseline",
		},
		[]string{"name", "category"},
	)

	s.comparisonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "comparisons_total",
			Help:      "Total compared entries by classification",
		},
		[]string{"classification"},
	)

	s.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "errors_total",
			Help:      "Total errors by type and component",
		},
		[]string{"component", "operation", "error_type"},
	)

	s.collectors = []prometheus.Collector{
		s.measurementDuration,
		s.measurementMean,
		s.measurementStdev,
		s.measurementRuns,
		s.measurementsTotal,
		s.outliersRemoved,
		s.comparisonChange,
		s.comparisonPValue,
		s.comparisonEffectSize,
		s.comparisonsTotal,
		s.errorsTotal,
	}

	for _, c := range s.collectors {
		if err := registry.Register(c); err != nil {
			var alreadyErr prometheus.AlreadyRegisteredError
			if !errors.As(err, &alreadyErr) {
				return nil, errors.Join(ErrRegistrationFailed, err)
			}
		}
	}

	return s, nil
}

func (s *PrometheusSink) checkOpen(ctx context.Context) error {
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

// RecordMeasurement records measurement metrics.
//
// Inputs:
//   - ctx: Must not be nil.
//   - data: Measurement summary. Must not be nil.
//
// Outputs:
//   - error: ErrNilContext, ErrNilData or ErrSinkClosed.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordMeasurement(ctx context.Context, data *MeasurementData) error {
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	name := data.Name
	if name == "" {
		name = "unknown"
	}
	name = s.sanitizeLabel("name", name)

	d := data.Duration
	s.measurementDuration.WithLabelValues(name, "mean").Observe(d.Mean.Seconds())
	s.measurementDuration.WithLabelValues(name, "median").Observe(d.Median.Seconds())
	s.measurementDuration.WithLabelValues(name, "min").Observe(d.Min.Seconds())
	s.measurementDuration.WithLabelValues(name, "max").Observe(d.Max.Seconds())
	s.measurementDuration.WithLabelValues(name, "p95").Observe(d.P95.Seconds())
	s.measurementDuration.WithLabelValues(name, "p99").Observe(d.P99.Seconds())

	s.measurementMean.WithLabelValues(name).Set(d.Mean.Seconds())
	s.measurementStdev.WithLabelValues(name).Set(d.Stdev.Seconds())
	s.measurementRuns.WithLabelValues(name).Add(float64(data.Runs))
	s.measurementsTotal.WithLabelValues(name).Inc()

	if data.OutliersRemoved > 0 {
		s.outliersRemoved.WithLabelValues(name).Add(float64(data.OutliersRemoved))
	}

	return nil
}

// RecordComparison records comparison metrics.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordComparison(ctx context.Context, data *ComparisonData) error {
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	name := data.Name
	if name == "" {
		name = "unknown"
	}
	name = s.sanitizeLabel("name", name)

	category := data.EffectSizeCategory
	if category == "" {
		category = "unknown"
	}
	category = s.sanitizeLabel("category", category)

	classification := data.Classification
	if classification == "" {
		classification = "unknown"
	}
	classification = s.sanitizeLabel("classification", classification)

	s.comparisonChange.WithLabelValues(name).Set(data.RelativeChange)
	s.comparisonPValue.WithLabelValues(name).Set(data.PValue)
	s.comparisonEffectSize.WithLabelValues(name, category).Set(data.EffectSize)
	s.comparisonsTotal.WithLabelValues(classification).Inc()

	return nil
}

// RecordError increments the error counter.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordError(ctx context.Context, data *ErrorData) error {
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	component := orUnknown(data.Component)
	operation := orUnknown(data.Operation)
	errorType := orUnknown(data.ErrorType)

	s.errorsTotal.WithLabelValues(
		s.sanitizeLabel("component", component),
		s.sanitizeLabel("operation", operation),
		s.sanitizeLabel("error_type", errorType),
	).Inc()

	return nil
}

// Flush is a no-op; Prometheus metrics are pull-based.
func (s *PrometheusSink) Flush(ctx context.Context) error {
	return s.checkOpen(ctx)
}

// Close unregisters the collectors from a custom registry.
//
// Description:
//
//	prometheus.DefaultRegisterer is left untouched. After Close all
//	recording methods return ErrSinkClosed.
//
// Thread Safety: Safe for concurrent use. Idempotent.
func (s *PrometheusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if reg, ok := s.registry.(*prometheus.Registry); ok {
		for _, c := range s.collectors {
			reg.Unregister(c)
		}
	}
	return nil
}

// sanitizeLabel maps label values beyond MaxLabelCardinality to "_other".
func (s *PrometheusSink) sanitizeLabel(labelName, labelValue string) string {
	s.labelMu.RLock()
	seen := s.seenLabels[labelName]
	if seen != nil {
		if _, exists := seen[labelValue]; exists {
			s.labelMu.RUnlock()
			return labelValue
		}
		if len(seen) >= s.maxCardinality {
			s.labelMu.RUnlock()
			return "_other"
		}
	}
	s.labelMu.RUnlock()

	s.labelMu.Lock()
	defer s.labelMu.Unlock()

	if s.seenLabels[labelName] == nil {
		s.seenLabels[labelName] = make(map[string]struct{})
	}
	if _, exists := s.seenLabels[labelName][labelValue]; exists {
		return labelValue
	}
	if len(s.seenLabels[labelName]) >= s.maxCardinality {
		return "_other"
	}

	s.seenLabels[labelName][labelValue] = struct{}{}
	return labelValue
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

var _ Sink = (*PrometheusSink)(nil)
