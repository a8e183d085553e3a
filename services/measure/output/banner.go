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
	"io"
	"os"
	"strconv"

	"github.com/AleutianAI/measure/pkg/ux"
)

// ConsoleReporter prints the settings banner to a writer.
//
// The banner is styled when the writer is a terminal and plain otherwise.
type ConsoleReporter struct {
	printer *ux.Printer
}

// NewConsoleReporter creates a reporter writing to w. A nil w selects stderr.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleReporter{printer: ux.NewPrinter(w)}
}

// Announce implements Reporter.
func (r *ConsoleReporter) Announce(_ context.Context, s Settings) {
	output := "disabled"
	if s.WriteFile {
		output = s.OutputPath
		if output == "" {
			output = "enabled"
		}
	}

	outliers := "off"
	if s.RemoveOutliers {
		outliers = "iqr x" + strconv.FormatFloat(s.OutlierThreshold, 'g', -1, 64)
	}

	r.printer.Title("measure")
	r.printer.KeyValue(
		"runs", strconv.Itoa(s.Runs),
		"warmup", strconv.Itoa(s.WarmupRuns),
		"outliers", outliers,
		"output", output,
	)
}

// NopReporter discards announcements.
type NopReporter struct{}

// Announce implements Reporter.
func (NopReporter) Announce(context.Context, Settings) {}

// String renders settings on one line, for logs.
func (s Settings) String() string {
	return fmt.Sprintf("runs=%d warmup=%d write_file=%t output=%s outliers=%t threshold=%g",
		s.Runs, s.WarmupRuns, s.WriteFile, s.OutputPath, s.RemoveOutliers, s.OutlierThreshold)
}

var (
	_ Reporter = (*ConsoleReporter)(nil)
	_ Reporter = NopReporter{}
)
