// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package clock provides the time sources used to measure run durations.
//
// A Clock reports elapsed time since an arbitrary origin. Only the difference
// between two readings is meaningful. The production source is Monotonic,
// which is immune to wall-clock adjustments (NTP slew, manual changes).
//
// Test doubles (Stub, Frozen) identify themselves through the Synthetic
// interface so the measurement facade can refuse to publish numbers taken
// from a clock that does not reflect real elapsed time.
package clock

import (
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// Clock supplies monotonically increasing timestamps.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the elapsed time since the clock's origin.
	Now() time.Duration
}

// Synthetic is implemented by clocks that do not track real elapsed time.
type Synthetic interface {
	// Synthetic returns true if readings are scripted or frozen.
	Synthetic() bool
}

// IsSynthetic reports whether c declares itself a synthetic clock.
//
// Inputs:
//   - c: The clock to inspect. A nil clock is not synthetic.
//
// Outputs:
//   - bool: True if c implements Synthetic and returns true.
func IsSynthetic(c Clock) bool {
	s, ok := c.(Synthetic)
	return ok && s.Synthetic()
}

// -----------------------------------------------------------------------------
// Monotonic
// -----------------------------------------------------------------------------

// Monotonic reads the operating system's monotonic clock.
//
// Description:
//
//	On Linux, macOS and FreeBSD the reading comes from CLOCK_MONOTONIC.
//	Elsewhere it falls back to the monotonic component of time.Time.
//	Either way the value never goes backwards.
//
// Thread Safety: Safe for concurrent use.
type Monotonic struct {
	origin time.Time
}

// NewMonotonic creates a monotonic clock.
//
// Outputs:
//   - *Monotonic: The clock. Never nil.
func NewMonotonic() *Monotonic {
	return &Monotonic{origin: time.Now()}
}

// fallback returns elapsed time using Go's monotonic reading.
func (m *Monotonic) fallback() time.Duration {
	return time.Since(m.origin)
}

// -----------------------------------------------------------------------------
// Test Doubles
// -----------------------------------------------------------------------------

// Stub replays a scripted sequence of run durations.
//
// Description:
//
//	Readings are consumed in pairs: the first call of a pair returns the
//	current time, the second advances it by the next scripted duration.
//	So a sampler taking t0, t1 around each run observes exactly the
//	scripted durations in order. Once the script is exhausted runs take
//	zero time.
//
// Thread Safety: Safe for concurrent use.
//
// Example:
//
//	c := clock.NewStub(100*time.Millisecond, 10*time.Millisecond)
//	t0 := c.Now() // 0
//	t1 := c.Now() // 100ms
type Stub struct {
	mu        sync.Mutex
	durations []time.Duration
	now       time.Duration
	calls     int
}

// NewStub creates a stub that replays the given durations.
func NewStub(durations ...time.Duration) *Stub {
	scripted := make([]time.Duration, len(durations))
	copy(scripted, durations)
	return &Stub{durations: scripted}
}

// Now implements Clock.
func (s *Stub) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls%2 == 1 {
		run := s.calls / 2
		if run < len(s.durations) {
			s.now += s.durations[run]
		}
	}
	s.calls++
	return s.now
}

// Calls returns how many readings have been taken.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Synthetic implements Synthetic.
func (s *Stub) Synthetic() bool { return true }

// Frozen is a clock that never advances.
//
// It models a mocked timer: every run measures as zero.
type Frozen struct {
	At time.Duration
}

// Now implements Clock.
func (f Frozen) Now() time.Duration { return f.At }

// Synthetic implements Synthetic.
func (f Frozen) Synthetic() bool { return true }

var (
	_ Clock     = (*Monotonic)(nil)
	_ Clock     = (*Stub)(nil)
	_ Clock     = Frozen{}
	_ Synthetic = (*Stub)(nil)
	_ Synthetic = Frozen{}
)
