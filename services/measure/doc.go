// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package measure times a caller-supplied function and reports statistics
// about its duration.
//
// A Measurer runs the function warmup+runs times against a monotonic clock,
// drops the warmup samples, optionally trims IQR outliers and reduces the
// rest to mean, median, standard deviation and percentiles. Each result is
// appended to an output record sink and forwarded to telemetry sinks.
//
// Basic usage:
//
//	m, err := measure.New(measure.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	res, err := m.Measure(ctx, "parse-config", func() error {
//	    _, err := parse(data)
//	    return err
//	}, measure.WithRuns(20))
//
// Measuring against a synthetic clock (clock.Stub, clock.Frozen) fails with
// ErrEnvironment unless Config.AllowSyntheticClock is set, because such a
// clock does not reflect real elapsed time.
package measure
