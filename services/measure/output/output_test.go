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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/measure/services/measure/stats"
)

func testResults() *stats.Results {
	return &stats.Results{
		Runs: 3,
		Duration: stats.DurationStats{
			Mean:   20 * time.Millisecond,
			Median: 20 * time.Millisecond,
			Stdev:  10 * time.Millisecond,
			Min:    10 * time.Millisecond,
			Max:    30 * time.Millisecond,
			P50:    20 * time.Millisecond,
			P75:    25 * time.Millisecond,
			P90:    28 * time.Millisecond,
			P95:    29 * time.Millisecond,
			P99:    29800 * time.Microsecond,
		},
		Durations:       []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond},
		WarmupDurations: []time.Duration{100 * time.Millisecond},
		Counts:          []int{1, 1, 1},
		MeanCount:       1,
	}
}

// -----------------------------------------------------------------------------
// Record
// -----------------------------------------------------------------------------

func TestRecord_JSONShape(t *testing.T) {
	rec := NewRecord("parse config", testResults())

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "parse config", raw["name"])
	assert.Equal(t, "function", raw["type"])
	assert.Equal(t, 20.0, raw["meanDuration"])
	assert.Equal(t, 10.0, raw["stdevDuration"])
	assert.Equal(t, []any{10.0, 20.0, 30.0}, raw["durations"])
	assert.Equal(t, []any{100.0}, raw["warmupDurations"])
	assert.Equal(t, 29.8, raw["p99"])
}

func TestRecord_DecodesWhatItEncodes(t *testing.T) {
	rec := NewRecord("fn", testResults())

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, rec.Results, decoded.Results)
	assert.True(t, rec.Timestamp.Equal(decoded.Timestamp))
}

func TestRecord_MarshalWithoutResults(t *testing.T) {
	_, err := json.Marshal(&Record{Name: "x"})
	assert.Error(t, err)
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 1.5, Millis(1500*time.Microsecond))
	assert.Equal(t, 1500*time.Microsecond, FromMillis(1.5))
	assert.Equal(t, time.Duration(1), FromMillis(0.000001))
}

// -----------------------------------------------------------------------------
// FileWriter
// -----------------------------------------------------------------------------

func TestFileWriter_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "current.perf")
	w := NewFileWriter(path)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, NewRecord("a", testResults())))
	require.NoError(t, w.Write(ctx, NewRecord("b", testResults())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Name)
	assert.Equal(t, "b", records[1].Name)
	assert.Equal(t, 3, records[1].Results.Runs)
}

func TestFileWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "current.perf")
	w := NewFileWriter(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Write(context.Background(), NewRecord("fn", testResults())))
		}()
	}
	wg.Wait()

	records, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestFileWriter_Errors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := NewFileWriter(filepath.Join(blocker, "current.perf"))
	err := w.Write(context.Background(), NewRecord("fn", testResults()))
	assert.ErrorIs(t, err, ErrWrite)

	err = NewFileWriter(filepath.Join(dir, "ok.perf")).Write(context.Background(), nil)
	assert.ErrorIs(t, err, ErrWrite)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewFileWriter(filepath.Join(dir, "ok.perf")).Write(ctx, NewRecord("fn", testResults()))
	assert.ErrorIs(t, err, ErrWrite)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileWriter_Truncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "current.perf")
	w := NewFileWriter(path)
	require.NoError(t, w.Write(context.Background(), NewRecord("fn", testResults())))

	require.NoError(t, w.Truncate())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadRecords(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := ReadRecords(filepath.Join(t.TempDir(), "absent.perf"))
		assert.True(t, IsNotExist(err))
	})

	t.Run("skips blank lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "x.perf")
		line, err := json.Marshal(NewRecord("fn", testResults()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, append(append([]byte("\n"), line...), '\n', '\n'), 0o644))

		records, err := ReadRecords(path)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("reports bad line", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.perf")
		require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))

		_, err := ReadRecords(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad.perf:1")
	})
}

func TestLatestByName(t *testing.T) {
	a1 := &Record{Name: "a", ID: uuid.New()}
	b := &Record{Name: "b", ID: uuid.New()}
	a2 := &Record{Name: "a", ID: uuid.New()}

	got := LatestByName([]*Record{a1, b, a2})
	assert.Equal(t, []*Record{a2, b}, got)
}

// -----------------------------------------------------------------------------
// MultiWriter
// -----------------------------------------------------------------------------

func TestMultiWriter(t *testing.T) {
	boom := errors.New("boom")
	var calls []string

	m := NewMultiWriter(
		WriterFunc(func(context.Context, *Record) error {
			calls = append(calls, "first")
			return boom
		}),
		nil,
		WriterFunc(func(context.Context, *Record) error {
			calls = append(calls, "second")
			return nil
		}),
	)

	assert.Equal(t, 2, m.Len())
	err := m.Write(context.Background(), NewRecord("fn", testResults()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, calls)

	assert.NoError(t, NewMultiWriter().Write(context.Background(), nil))
}

// -----------------------------------------------------------------------------
// ConsoleReporter
// -----------------------------------------------------------------------------

func TestConsoleReporter_PlainBanner(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf)

	r.Announce(context.Background(), Settings{
		Runs:             10,
		WarmupRuns:       1,
		WriteFile:        true,
		OutputPath:       ".measure/current.perf",
		RemoveOutliers:   true,
		OutlierThreshold: 1.5,
	})

	assert.Equal(t, "measure\nruns: 10  warmup: 1  outliers: iqr x1.5  output: .measure/current.perf\n", buf.String())
}

func TestConsoleReporter_WriteDisabled(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleReporter(&buf).Announce(context.Background(), Settings{Runs: 5})

	assert.Contains(t, buf.String(), "output: disabled")
	assert.Contains(t, buf.String(), "outliers: off")
}

// -----------------------------------------------------------------------------
// GCSWriter
// -----------------------------------------------------------------------------

type memObject struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (m *memObject) Close() error {
	m.closed = true
	return m.closeErr
}

type memStore struct {
	mu       sync.Mutex
	objects  map[string]*memObject
	closeErr error
}

func (s *memStore) NewWriter(_ context.Context, bucket, object string) io.WriteCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string]*memObject)
	}
	obj := &memObject{closeErr: s.closeErr}
	s.objects[bucket+"/"+object] = obj
	return obj
}

func TestGCSWriter_UploadsRecord(t *testing.T) {
	store := &memStore{}
	w := NewGCSWriterWithStore(store, "perf-bucket", "ci/main")
	rec := NewRecord("render/list", testResults())

	require.NoError(t, w.Write(context.Background(), rec))

	key := "perf-bucket/ci/main/render_list/" + rec.ID.String() + ".json"
	obj, ok := store.objects[key]
	require.True(t, ok, "object %s not written", key)
	assert.True(t, obj.closed)

	var decoded Record
	require.NoError(t, json.Unmarshal(obj.Bytes(), &decoded))
	assert.Equal(t, rec.Name, decoded.Name)
	assert.NoError(t, w.Close())
}

func TestGCSWriter_FinalizeFailure(t *testing.T) {
	w := NewGCSWriterWithStore(&memStore{closeErr: errors.New("403")}, "b", "")
	err := w.Write(context.Background(), NewRecord("fn", testResults()))
	assert.ErrorIs(t, err, ErrWrite)
}

// -----------------------------------------------------------------------------
// InfluxWriter
// -----------------------------------------------------------------------------

type mockWriteAPI struct {
	writePointFunc func(ctx context.Context, point ...*write.Point) error
	writtenPoints  []*write.Point
}

func (m *mockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	m.writtenPoints = append(m.writtenPoints, point...)
	if m.writePointFunc != nil {
		return m.writePointFunc(ctx, point...)
	}
	return nil
}

func (m *mockWriteAPI) WriteRecord(context.Context, ...string) error { return nil }
func (m *mockWriteAPI) EnableBatching()                              {}
func (m *mockWriteAPI) Flush(context.Context) error                  { return nil }

func TestInfluxWriter_WritesPoint(t *testing.T) {
	api := &mockWriteAPI{}
	w := NewInfluxWriterWithAPI(api)

	require.NoError(t, w.Write(context.Background(), NewRecord("fn", testResults())))
	require.Len(t, api.writtenPoints, 1)

	p := api.writtenPoints[0]
	assert.Equal(t, "function_measurements", p.Name())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "fn", tags["name"])
	assert.Equal(t, "function", tags["type"])

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 20.0, fields["mean_ms"])
	w.Close()
}

func TestInfluxWriter_Failure(t *testing.T) {
	api := &mockWriteAPI{writePointFunc: func(context.Context, ...*write.Point) error {
		return errors.New("unavailable")
	}}

	err := NewInfluxWriterWithAPI(api).Write(context.Background(), NewRecord("fn", testResults()))
	assert.ErrorIs(t, err, ErrWrite)

	err = NewInfluxWriterWithAPI(api).Write(context.Background(), &Record{Name: "x"})
	assert.ErrorIs(t, err, ErrWrite)
}
