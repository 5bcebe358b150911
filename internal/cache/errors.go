// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrNotFound is returned by Get when no entry exists for a key.
	ErrNotFound = errors.New("cache: entry not found")

	// ErrCompressionFailed is returned by Put when the cold-tier gzip
	// encoding step fails; the candidate entry is discarded and the
	// cache stays consistent (§4.4 failure mode).
	ErrCompressionFailed = errors.New("cache: compression failed")
)
