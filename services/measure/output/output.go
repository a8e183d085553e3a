// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package output holds the collaborators a measurement reports to: a
// one-time settings banner and result writers.
//
// # Writers
//
//   - FileWriter appends one JSON line per record to a local .perf file.
//   - GCSWriter uploads each record as an object to Google Cloud Storage.
//   - InfluxWriter writes each record as a point to InfluxDB.
//   - MultiWriter fans a record out to several writers.
//
// Every writer failure wraps ErrWrite.
package output

import (
	"context"
	"errors"
)

// ErrWrite indicates that a record could not be persisted.
var ErrWrite = errors.New("writing measurement record")

// Writer persists measurement records.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Writer interface {
	// Write persists one record.
	Write(ctx context.Context, rec *Record) error
}

// Reporter announces the effective measurement settings.
type Reporter interface {
	// Announce reports settings. Called at most once per Measurer.
	Announce(ctx context.Context, settings Settings)
}

// Settings are the effective measurement defaults shown in the banner.
type Settings struct {
	Runs             int
	WarmupRuns       int
	WriteFile        bool
	OutputPath       string
	RemoveOutliers   bool
	OutlierThreshold float64
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, rec *Record) error

// Write implements Writer.
func (f WriterFunc) Write(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// MultiWriter writes each record to every child writer.
//
// Description:
//
//	All writers are attempted even when one fails; failures are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a fan-out writer over the non-nil writers given.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	valid := make([]Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			valid = append(valid, w)
		}
	}
	return &MultiWriter{writers: valid}
}

// Len returns the number of child writers.
func (m *MultiWriter) Len() int { return len(m.writers) }

// Write implements Writer.
func (m *MultiWriter) Write(ctx context.Context, rec *Record) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Writer = WriterFunc(nil)
	_ Writer = (*MultiWriter)(nil)
)
