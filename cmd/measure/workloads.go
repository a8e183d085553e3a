// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/measure/services/measure/output"
	"github.com/AleutianAI/measure/services/measure/sampler"
	"github.com/AleutianAI/measure/services/measure/stats"
)

// Workload is a built-in function measured by calibrate.
type Workload struct {
	Name        string
	Description string
	Fn          sampler.Func
}

// builtinWorkloads returns the calibration workloads in a fixed order.
// Inputs are generated once from a fixed seed so every run does the same work.
func builtinWorkloads() []Workload {
	rng := rand.New(rand.NewSource(42))

	ints := make([]int, 10_000)
	for i := range ints {
		ints[i] = rng.Int()
	}

	blob := make([]byte, 64<<10)
	rng.Read(blob)

	durations := make([]time.Duration, 1_000)
	for i := range durations {
		durations[i] = time.Duration(rng.Int63n(int64(50 * time.Millisecond)))
	}

	summary, _ := stats.Summarize(durations)
	record := output.NewRecord("calibration", &stats.Results{
		Runs:      len(durations),
		Duration:  summary,
		Durations: durations,
	})

	return []Workload{
		{
			Name:        "sort/ints-10k",
			Description: "sort a copy of 10k random ints",
			Fn: func() error {
				sort.Ints(slices.Clone(ints))
				return nil
			},
		},
		{
			Name:        "map/insert-10k",
			Description: "insert 10k keys into a fresh map",
			Fn: func() error {
				m := make(map[int]int)
				for i, v := range ints {
					m[v] = i
				}
				if len(m) == 0 {
					return fmt.Errorf("map is empty")
				}
				return nil
			},
		},
		{
			Name:        "sha256/64KiB",
			Description: "hash a 64KiB buffer",
			Fn: func() error {
				_ = sha256.Sum256(blob)
				return nil
			},
		},
		{
			Name:        "json/record-1k",
			Description: "encode a record holding 1k durations",
			Fn: func() error {
				_, err := json.Marshal(record)
				return err
			},
		},
		{
			Name:        "stats/summarize-1k",
			Description: "summarize 1k durations",
			Fn: func() error {
				_, err := stats.Summarize(durations)
				return err
			},
		},
		{
			Name:        "sleep/1ms",
			Description: "sleep for 1ms, a clock sanity check",
			Fn: func() error {
				time.Sleep(time.Millisecond)
				return nil
			},
		},
	}
}

// selectWorkloads keeps workloads whose name contains any filter.
// No filters selects everything.
func selectWorkloads(all []Workload, filters []string) []Workload {
	if len(filters) == 0 {
		return all
	}
	var selected []Workload
	for _, w := range all {
		for _, f := range filters {
			if strings.Contains(w.Name, f) {
				selected = append(selected, w)
				break
			}
		}
	}
	return selected
}
