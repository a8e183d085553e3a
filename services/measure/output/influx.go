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
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// influxMeasurement is the InfluxDB measurement records are written to.
const influxMeasurement = "function_measurements"

// InfluxWriter writes each record as one InfluxDB point.
//
// Description:
//
//	The point is tagged with the record name and type; fields carry the
//	summary statistics in milliseconds. Per-run samples are not written.
//
// Thread Safety: Safe for concurrent use.
type InfluxWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxWriter connects to InfluxDB using the blocking write API.
func NewInfluxWriter(url, token, org, bucket string) *InfluxWriter {
	client := influxdb2.NewClient(url, token)
	return &InfluxWriter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

// NewInfluxWriterWithAPI creates a writer over an existing write API.
func NewInfluxWriterWithAPI(writeAPI api.WriteAPIBlocking) *InfluxWriter {
	return &InfluxWriter{writeAPI: writeAPI}
}

// Write implements Writer.
func (w *InfluxWriter) Write(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Results == nil {
		return fmt.Errorf("%w: empty record", ErrWrite)
	}
	res := rec.Results

	p := influxdb2.NewPoint(
		influxMeasurement,
		map[string]string{
			"name": rec.Name,
			"type": rec.Type,
		},
		map[string]interface{}{
			"runs":             res.Runs,
			"mean_ms":          Millis(res.Duration.Mean),
			"median_ms":        Millis(res.Duration.Median),
			"stdev_ms":         Millis(res.Duration.Stdev),
			"min_ms":           Millis(res.Duration.Min),
			"max_ms":           Millis(res.Duration.Max),
			"p95_ms":           Millis(res.Duration.P95),
			"p99_ms":           Millis(res.Duration.P99),
			"outliers_removed": res.OutliersRemoved,
			"mean_count":       res.MeanCount,
			"record_id":        rec.ID.String(),
		},
		rec.Timestamp,
	)

	if err := w.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("%w: influx point for %q: %w", ErrWrite, rec.Name, err)
	}
	return nil
}

// Close releases the InfluxDB client, if the writer owns one.
func (w *InfluxWriter) Close() {
	if w.client != nil {
		w.client.Close()
	}
}

var _ Writer = (*InfluxWriter)(nil)
