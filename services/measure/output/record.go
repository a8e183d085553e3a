// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package output

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/measure/services/measure/stats"
)

// RecordTypeFunction tags records produced by function measurements.
const RecordTypeFunction = "function"

// Record is one persisted measurement.
type Record struct {
	// ID uniquely identifies the record.
	ID uuid.UUID

	// Name identifies the measured function.
	Name string

	// Type is the measurement kind, RecordTypeFunction for this package.
	Type string

	// Timestamp is when the measurement completed.
	Timestamp time.Time

	// Results are the reduced statistics. Never nil for a valid record.
	Results *stats.Results
}

// NewRecord creates a function record with a fresh ID.
func NewRecord(name string, res *stats.Results) *Record {
	return &Record{
		ID:        uuid.New(),
		Name:      name,
		Type:      RecordTypeFunction,
		Timestamp: time.Now().UTC(),
		Results:   res,
	}
}

// recordJSON is the on-disk shape. Durations are fractional milliseconds.
type recordJSON struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	Runs            int       `json:"runs"`
	MeanDuration    float64   `json:"meanDuration"`
	MedianDuration  float64   `json:"medianDuration"`
	StdevDuration   float64   `json:"stdevDuration"`
	MinDuration     float64   `json:"minDuration"`
	MaxDuration     float64   `json:"maxDuration"`
	P50             float64   `json:"p50"`
	P75             float64   `json:"p75"`
	P90             float64   `json:"p90"`
	P95             float64   `json:"p95"`
	P99             float64   `json:"p99"`
	Durations       []float64 `json:"durations"`
	WarmupDurations []float64 `json:"warmupDurations"`
	OutliersRemoved int       `json:"outliersRemoved"`
	Counts          []int     `json:"counts"`
	MeanCount       float64   `json:"meanCount"`
	StdevCount      float64   `json:"stdevCount"`
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r.Results == nil {
		return nil, fmt.Errorf("record %q has no results", r.Name)
	}
	res := r.Results
	return json.Marshal(recordJSON{
		ID:              r.ID,
		Name:            r.Name,
		Type:            r.Type,
		Timestamp:       r.Timestamp,
		Runs:            res.Runs,
		MeanDuration:    Millis(res.Duration.Mean),
		MedianDuration:  Millis(res.Duration.Median),
		StdevDuration:   Millis(res.Duration.Stdev),
		MinDuration:     Millis(res.Duration.Min),
		MaxDuration:     Millis(res.Duration.Max),
		P50:             Millis(res.Duration.P50),
		P75:             Millis(res.Duration.P75),
		P90:             Millis(res.Duration.P90),
		P95:             Millis(res.Duration.P95),
		P99:             Millis(res.Duration.P99),
		Durations:       millisSlice(res.Durations),
		WarmupDurations: millisSlice(res.WarmupDurations),
		OutliersRemoved: res.OutliersRemoved,
		Counts:          nonNilInts(res.Counts),
		MeanCount:       res.MeanCount,
		StdevCount:      res.StdevCount,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.ID = raw.ID
	r.Name = raw.Name
	r.Type = raw.Type
	r.Timestamp = raw.Timestamp
	r.Results = &stats.Results{
		Runs: raw.Runs,
		Duration: stats.DurationStats{
			Mean:   FromMillis(raw.MeanDuration),
			Median: FromMillis(raw.MedianDuration),
			Stdev:  FromMillis(raw.StdevDuration),
			Min:    FromMillis(raw.MinDuration),
			Max:    FromMillis(raw.MaxDuration),
			P50:    FromMillis(raw.P50),
			P75:    FromMillis(raw.P75),
			P90:    FromMillis(raw.P90),
			P95:    FromMillis(raw.P95),
			P99:    FromMillis(raw.P99),
		},
		Durations:       durationSlice(raw.Durations),
		WarmupDurations: durationSlice(raw.WarmupDurations),
		OutliersRemoved: raw.OutliersRemoved,
		Counts:          nonNilInts(raw.Counts),
		MeanCount:       raw.MeanCount,
		StdevCount:      raw.StdevCount,
	}
	return nil
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromMillis converts fractional milliseconds to a duration, rounded to the
// nearest nanosecond.
func FromMillis(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}

func millisSlice(ds []time.Duration) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = Millis(d)
	}
	return out
}

func durationSlice(ms []float64) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = FromMillis(v)
	}
	return out
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
