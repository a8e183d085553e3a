// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"", LevelInfo, false},
		{"info", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownLevel) {
				t.Errorf("ParseLevel(%q) error should wrap ErrUnknownLevel", tt.input)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelInfo, Service: "measure", Console: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	logger.Slog().Debug("hidden")
	logger.Slog().Info("visible", "runs", 10)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record should be filtered at info level")
	}
	if !strings.Contains(out, "msg=visible") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "service=measure") {
		t.Errorf("output missing service attribute: %q", out)
	}
	if !strings.Contains(out, "runs=10") {
		t.Errorf("output missing runs attribute: %q", out)
	}
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelDebug, JSON: true, Console: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Slog().Debug("sampled", "run", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("console output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "sampled" {
		t.Errorf("msg = %v, want sampled", entry["msg"])
	}
	if entry["run"] != float64(3) {
		t.Errorf("run = %v, want 3", entry["run"])
	}
	if _, ok := entry["service"]; ok {
		t.Error("service attribute should be absent when Service is empty")
	}
}

func TestNew_QuietDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Quiet: true, Console: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Slog().Error("nobody hears this")

	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote to console: %q", buf.String())
	}
	if logger.Path() != "" {
		t.Errorf("Path() = %q, want empty", logger.Path())
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer

	logger, err := New(Config{LogDir: dir, Service: "calibrate", Console: &console})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Slog().Info("written twice")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.HasPrefix(filepath.Base(logger.Path()), "calibrate_") {
		t.Errorf("log file name = %q, want calibrate_ prefix", filepath.Base(logger.Path()))
	}

	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("file output is not JSON: %v", err)
	}
	if entry["msg"] != "written twice" || entry["service"] != "calibrate" {
		t.Errorf("unexpected file entry: %v", entry)
	}
	if !strings.Contains(console.String(), "written twice") {
		t.Error("console should also receive the record")
	}
}

func TestNew_FileLoggingDefaultName(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	if !strings.HasPrefix(filepath.Base(logger.Path()), "measure_") {
		t.Errorf("log file name = %q, want measure_ prefix", filepath.Base(logger.Path()))
	}
}

func TestNew_InvalidLogDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := New(Config{LogDir: filepath.Join(blocker, "logs"), Quiet: true})
	if err == nil {
		t.Error("New() should fail when the log directory cannot be created")
	}
}

func TestLogger_CloseTwice(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestLogger_SetDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger, err := New(Config{Console: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.SetDefault()

	slog.Info("through default")

	if !strings.Contains(buf.String(), "through default") {
		t.Errorf("default logger not installed: %q", buf.String())
	}
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

func TestMultiHandler_Handle_LevelFiltering(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelError})

	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	record := slog.Record{}
	record.Level = slog.LevelInfo

	if err := mh.Handle(context.Background(), record); err != nil {
		t.Errorf("Handle() returned error: %v", err)
	}
	if buf1.Len() == 0 {
		t.Error("buf1 should have content")
	}
	if buf2.Len() != 0 {
		t.Error("buf2 should be empty")
	}
	if mh.Enabled(context.Background(), slog.LevelDebug) != true {
		t.Error("Enabled(Debug) should be true when any handler accepts it")
	}
}

type errorHandler struct {
	err error
}

func (h *errorHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *errorHandler) Handle(context.Context, slog.Record) error { return h.err }
func (h *errorHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h *errorHandler) WithGroup(string) slog.Handler             { return h }

func TestMultiHandler_Handle_ContinuesAfterError(t *testing.T) {
	var buf bytes.Buffer
	failing := &errorHandler{err: errors.New("handler error")}
	mh := &multiHandler{handlers: []slog.Handler{failing, slog.NewTextHandler(&buf, nil)}}

	record := slog.Record{}
	record.Level = slog.LevelInfo
	record.Message = "after failure"

	err := mh.Handle(context.Background(), record)
	if err == nil || !strings.Contains(err.Error(), "handler error") {
		t.Errorf("Handle() error = %v, want handler error", err)
	}
	if !strings.Contains(buf.String(), "after failure") {
		t.Error("second handler should still receive the record")
	}
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{slog.NewTextHandler(&buf, nil)}}

	h := mh.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("g")
	if _, ok := h.(*multiHandler); !ok {
		t.Fatal("WithAttrs/WithGroup should return *multiHandler")
	}

	slog.New(h).Info("grouped", "x", 1)
	if !strings.Contains(buf.String(), "k=v") || !strings.Contains(buf.String(), "g.x=1") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~", home},
		{"/var/log", "/var/log"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
