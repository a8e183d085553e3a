// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"sort"
)

// Outlier trimming rule.
//
// A measured sample is an outlier when it lies outside
// [Q1 - k*IQR, Q3 + k*IQR], where Q1 and Q3 are the linearly interpolated
// quartiles and k is the threshold. The rule is skipped for small sets and
// is abandoned when it would discard more than half of the samples, since at
// that point the distribution is multimodal rather than spiky.
const (
	// DefaultOutlierThreshold is Tukey's fence multiplier for mild outliers.
	DefaultOutlierThreshold = 1.5

	// MinSamplesForOutlierRemoval is the smallest set the trim applies to.
	MinSamplesForOutlierRemoval = 4
)

// Fences returns the inclusive lower and upper IQR fences of samples.
//
// Inputs:
//   - samples: Samples in any order. Must not be empty.
//   - threshold: IQR multiplier.
//
// Outputs:
//   - lower, upper: Fence values in nanoseconds.
//   - error: ErrNoSamples if samples is empty.
func Fences(samples SampleSet, threshold float64) (lower, upper float64, err error) {
	if len(samples) == 0 {
		return 0, 0, ErrNoSamples
	}

	sorted := toFloats(samples.Durations())
	sort.Float64s(sorted)

	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1

	return q1 - threshold*iqr, q3 + threshold*iqr, nil
}

// TrimOutliers removes samples outside the IQR fences.
//
// Description:
//
//	Returns the samples within the fences in their original order.
//	Sets shorter than MinSamplesForOutlierRemoval are returned unchanged,
//	as are sets where the trim would keep fewer than half the samples.
//
// Inputs:
//   - samples: Measured samples (warmup already discarded).
//   - threshold: IQR multiplier, typically DefaultOutlierThreshold.
//
// Outputs:
//   - SampleSet: The surviving samples. May share storage with samples
//     when nothing was removed.
//
// Example:
//
//	kept := stats.TrimOutliers(set, stats.DefaultOutlierThreshold)
//	removed := len(set) - len(kept)
func TrimOutliers(samples SampleSet, threshold float64) SampleSet {
	if len(samples) < MinSamplesForOutlierRemoval {
		return samples
	}

	lower, upper, err := Fences(samples, threshold)
	if err != nil {
		return samples
	}

	kept := make(SampleSet, 0, len(samples))
	for _, s := range samples {
		d := float64(s.Duration)
		if d >= lower && d <= upper {
			kept = append(kept, s)
		}
	}

	if len(kept) < len(samples)/2 {
		return samples
	}
	return kept
}
