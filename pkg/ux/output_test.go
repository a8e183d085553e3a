// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
)

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow, IconBullet} {
		if !strings.Contains(icon.Render(), string(icon)) {
			t.Errorf("Render(%q) lost the glyph", icon)
		}
	}
}

func TestIsTerminal_NonFile(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}

func TestPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	if p.Styled() {
		t.Fatal("printer over a buffer should be plain")
	}

	p.Title("measure")
	p.Success("done")
	p.Warning("slow")
	p.Error("failed")
	p.Info("note")
	p.KeyValue("runs", "10", "warmup", "1")
	p.Box("Summary", "3 regressions")

	want := strings.Join([]string{
		"measure",
		"OK: done",
		"WARN: slow",
		"ERROR: failed",
		"note",
		"runs: 10  warmup: 1",
		"Summary: 3 regressions",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("output mismatch\ngot:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrinter_KeyValueOddPairs(t *testing.T) {
	var buf bytes.Buffer
	NewPlainPrinter(&buf).KeyValue("a", "1", "dangling")

	if got := buf.String(); got != "a: 1\n" {
		t.Errorf("KeyValue = %q, want %q", got, "a: 1\n")
	}
}
