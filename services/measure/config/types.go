// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads measurement defaults from YAML and the environment.
package config

import (
	"github.com/AleutianAI/measure/services/measure/stats"
)

// DefaultPath is where the CLI looks for its configuration.
const DefaultPath = ".measure/measure.yaml"

// Defaults for a fresh configuration.
const (
	DefaultRuns       = 10
	DefaultWarmupRuns = 1
	DefaultOutputPath = ".measure/current.perf"
	DefaultStorePath  = ".measure/history"
)

// Config is the measurement configuration.
type Config struct {
	// Runs is the number of measured runs per function.
	Runs int `yaml:"runs" validate:"gte=0,lte=1000000"`

	// WarmupRuns is the number of leading runs discarded.
	WarmupRuns int `yaml:"warmup_runs" validate:"gte=0,lte=1000000"`

	// WriteFile persists each measurement to the output writers.
	WriteFile bool `yaml:"write_file"`

	Outliers  OutlierConfig   `yaml:"outliers"`
	Output    OutputConfig    `yaml:"output"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// OutlierConfig controls the IQR trim.
type OutlierConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold" validate:"required_if=Enabled true,gte=0"`
}

// OutputConfig selects where results are written.
type OutputConfig struct {
	// Path is the local JSONL results file.
	Path string `yaml:"path"`

	GCS    GCSConfig    `yaml:"gcs"`
	Influx InfluxConfig `yaml:"influx"`
}

// GCSConfig enables uploads to Cloud Storage when Bucket is set.
type GCSConfig struct {
	Bucket          string `yaml:"bucket,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// InfluxConfig enables InfluxDB points when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url,omitempty" validate:"omitempty,url"`
	Token  string `yaml:"token,omitempty"`
	Org    string `yaml:"org,omitempty" validate:"required_with=URL"`
	Bucket string `yaml:"bucket,omitempty" validate:"required_with=URL"`
}

// StoreConfig locates the result history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"`
}

// TelemetryConfig toggles metric sinks and selects OpenTelemetry exporters.
type TelemetryConfig struct {
	Prometheus  bool   `yaml:"prometheus"`
	MetricsAddr string `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
	OTel        bool   `yaml:"otel"`

	// TraceExporter is "otlp", "stdout" or "none".
	TraceExporter string `yaml:"trace_exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`
	// MetricExporter is "prometheus", "stdout" or "none".
	MetricExporter string `yaml:"metric_exporter,omitempty" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure   bool   `yaml:"otlp_insecure,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Runs:       DefaultRuns,
		WarmupRuns: DefaultWarmupRuns,
		WriteFile:  true,
		Outliers: OutlierConfig{
			Enabled:   true,
			Threshold: stats.DefaultOutlierThreshold,
		},
		Output: OutputConfig{
			Path: DefaultOutputPath,
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ReducerConfig returns the statistics reducer settings.
func (c *Config) ReducerConfig() stats.ReducerConfig {
	return stats.ReducerConfig{
		RemoveOutliers:   c.Outliers.Enabled,
		OutlierThreshold: c.Outliers.Threshold,
	}
}
