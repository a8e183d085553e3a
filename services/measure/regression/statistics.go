// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package regression

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/measure/services/measure/output"
)

// EffectSizeCategory categorizes effect sizes using Cohen's conventions:
// negligible (<0.2), small (0.2-0.5), medium (0.5-0.8), large (>=0.8).
type EffectSizeCategory int

const (
	// EffectNegligible indicates |d| < 0.2.
	EffectNegligible EffectSizeCategory = iota
	// EffectSmall indicates 0.2 <= |d| < 0.5.
	EffectSmall
	// EffectMedium indicates 0.5 <= |d| < 0.8.
	EffectMedium
	// EffectLarge indicates |d| >= 0.8.
	EffectLarge
)

// String returns the category name.
func (e EffectSizeCategory) String() string {
	switch e {
	case EffectNegligible:
		return "negligible"
	case EffectSmall:
		return "small"
	case EffectMedium:
		return "medium"
	case EffectLarge:
		return "large"
	default:
		return "unknown"
	}
}

// CategorizeEffectSize returns the category of a Cohen's d value.
// Direction does not affect the category.
func CategorizeEffectSize(d float64) EffectSizeCategory {
	absD := math.Abs(d)
	switch {
	case absD < 0.2:
		return EffectNegligible
	case absD < 0.5:
		return EffectSmall
	case absD < 0.8:
		return EffectMedium
	default:
		return EffectLarge
	}
}

// Sample summarizes one side of a comparison.
type Sample struct {
	// Mean in nanoseconds.
	Mean float64
	// Variance is the sample variance in nanoseconds squared.
	Variance float64
	// N is the sample size.
	N int
}

// SampleOf summarizes durations with gonum/stat.
func SampleOf(durations []time.Duration) Sample {
	if len(durations) == 0 {
		return Sample{}
	}
	xs := make([]float64, len(durations))
	for i, d := range durations {
		xs[i] = float64(d)
	}
	if len(xs) == 1 {
		return Sample{Mean: xs[0], N: 1}
	}
	mean, variance := stat.MeanVariance(xs, nil)
	return Sample{Mean: mean, Variance: variance, N: len(xs)}
}

// SampleOfRecord summarizes a record, preferring its raw durations and
// falling back to the stored mean and deviation.
func SampleOfRecord(rec *output.Record) Sample {
	res := rec.Results
	if len(res.Durations) >= 2 {
		return SampleOf(res.Durations)
	}
	sd := float64(res.Duration.Stdev)
	return Sample{Mean: float64(res.Duration.Mean), Variance: sd * sd, N: res.Runs}
}

// WelchTTest performs Welch's t-test on two samples.
//
// Description:
//
//	The p-value is two-tailed and exact for the Welch-Satterthwaite degrees
//	of freedom, from gonum's Student's t distribution. When both variances
//	are zero the difference is deterministic: equal means give p = 1 and
//	different means give p = 0.
//
// Inputs:
//   - a, b: Samples. Each needs N >= 2 for a meaningful result.
//
// Outputs:
//   - tStatistic: Negative when a is faster than b.
//   - pValue: In [0, 1]; 1 when either sample is too small.
//
// Example:
//
//	t, p := regression.WelchTTest(regression.SampleOf(before), regression.SampleOf(after))
func WelchTTest(a, b Sample) (tStatistic, pValue float64) {
	if a.N < 2 || b.N < 2 {
		return 0, 1
	}

	n1, n2 := float64(a.N), float64(b.N)
	se2 := a.Variance/n1 + b.Variance/n2
	if se2 == 0 {
		switch {
		case a.Mean == b.Mean:
			return 0, 1
		case a.Mean < b.Mean:
			return math.Inf(-1), 0
		default:
			return math.Inf(1), 0
		}
	}

	tStatistic = (a.Mean - b.Mean) / math.Sqrt(se2)

	denom := math.Pow(a.Variance/n1, 2)/(n1-1) + math.Pow(b.Variance/n2, 2)/(n2-1)
	df := se2 * se2 / denom

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	pValue = 2 * dist.CDF(-math.Abs(tStatistic))
	if pValue > 1 {
		pValue = 1
	}
	return tStatistic, pValue
}

// CohensD returns the standardized mean difference (a - b) / pooled sd.
// Zero when either sample is empty or the pooled deviation is zero.
func CohensD(a, b Sample) float64 {
	if a.N == 0 || b.N == 0 || a.N+b.N <= 2 {
		return 0
	}

	n1, n2 := float64(a.N), float64(b.N)
	pooled := math.Sqrt(((n1-1)*a.Variance + (n2-1)*b.Variance) / (n1 + n2 - 2))
	if pooled == 0 {
		return 0
	}
	return (a.Mean - b.Mean) / pooled
}
