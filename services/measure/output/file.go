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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// maxLineSize bounds a single JSONL record; large run counts produce long lines.
const maxLineSize = 16 * 1024 * 1024

// FileWriter appends records to a JSON-lines file.
//
// Description:
//
//	Each Write appends exactly one line and the parent directory is created
//	on demand. Appends from one FileWriter are serialized; concurrent
//	writers in separate processes interleave at line granularity.
//
// Thread Safety: Safe for concurrent use.
type FileWriter struct {
	path string
	mu   sync.Mutex
}

// NewFileWriter creates a writer appending to path.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Path returns the output file path.
func (w *FileWriter) Path() string { return w.path }

// Write appends rec as one JSON line.
//
// Outputs:
//   - error: Wraps ErrWrite on encoding or I/O failure.
func (w *FileWriter) Write(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrWrite)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding %q: %w", ErrWrite, rec.Name, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("%w: creating directory: %w", ErrWrite, err)
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrWrite, w.path, err)
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("%w: appending to %s: %w", ErrWrite, w.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrWrite, w.path, err)
	}
	return nil
}

// Truncate empties the output file, creating it if needed.
func (w *FileWriter) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("%w: creating directory: %w", ErrWrite, err)
	}
	if err := os.WriteFile(w.path, nil, 0o644); err != nil {
		return fmt.Errorf("%w: truncating %s: %w", ErrWrite, w.path, err)
	}
	return nil
}

// ReadRecords parses a JSON-lines file written by FileWriter.
//
// Inputs:
//   - path: The .perf file. Blank lines are skipped.
//
// Outputs:
//   - []*Record: Records in file order.
//   - error: os.ErrNotExist if the file is missing, or a parse error
//     naming the offending line.
func ReadRecords(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []*Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec := &Record{}
		if err := json.Unmarshal(line, rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, nil
}

// LatestByName keeps the last record for each name, preserving first-seen order.
func LatestByName(records []*Record) []*Record {
	index := make(map[string]int, len(records))
	out := make([]*Record, 0, len(records))
	for _, rec := range records {
		if i, ok := index[rec.Name]; ok {
			out[i] = rec
			continue
		}
		index[rec.Name] = len(out)
		out = append(out, rec)
	}
	return out
}

// IsNotExist reports whether err means a record file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

var _ Writer = (*FileWriter)(nil)
