// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package measure

import "errors"

var (
	// ErrEnvironment indicates the runtime cannot produce real timings,
	// such as when the clock is a test double.
	ErrEnvironment = errors.New("measurement environment is not usable")

	// ErrInvalidConfig indicates invalid measurement settings.
	ErrInvalidConfig = errors.New("invalid measurement configuration")
)
