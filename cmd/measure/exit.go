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

import "fmt"

// Exit codes.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitRegressions = 3
)

// ExitError carries a process exit code through cobra's error return.
//
// Example:
//
//	return &ExitError{Code: ExitRegressions, Err: fmt.Errorf("%d regressions", n)}
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Err is the cause. Nil means exit silently with Code.
	Err error
}

// Error returns the cause with the exit code.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return fmt.Sprintf("%v (exit %d)", e.Err, e.Code)
}

// Unwrap returns the cause.
func (e *ExitError) Unwrap() error {
	return e.Err
}
