// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagnostic

import (
	"time"

	"github.com/google/uuid"
)

// nowFunc is a seam so tests can pin the snapshot timestamp without
// sleeping or tolerating skew. Production code never overrides it.
var nowFunc = time.Now

// Snapshot bundles every diagnostic attached to one file at one point in
// time (§3). A Snapshot is never mutated after construction: once built
// it is handed to the cache and store as a read-only value.
type Snapshot struct {
	ID          string         `json:"snapshot_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Workspace   WorkspaceInfo  `json:"workspace"`
	File        string         `json:"file"`
	ContentHash FileHash       `json:"content_hash"`
	Diagnostics []Diagnostic   `json:"diagnostics"`
	Counts      SeverityCounts `json:"counts"`
}

// NewSnapshot builds a Snapshot for file, deriving per-severity counts
// from diags in a single pass (§4.1). The diagnostics slice is copied so
// the caller's backing array can be reused or mutated afterward without
// affecting the snapshot.
func NewSnapshot(ws WorkspaceInfo, file string, hash FileHash, diags []Diagnostic) Snapshot {
	owned := make([]Diagnostic, len(diags))
	copy(owned, diags)
	counts := CountBySeverity(owned)
	if counts.Total() != len(owned) {
		// This can only happen if CountBySeverity and the Diagnostic type
		// drift out of sync; surfacing it as a panic turns a silent data
		// bug into a loud one during development, per §4.1 ("an
		// assertion failure here is a bug").
		panic("diagnostic: severity counts do not sum to diagnostic count")
	}
	return Snapshot{
		ID:          uuid.NewString(),
		Timestamp:   nowFunc().UTC(),
		Workspace:   ws,
		File:        file,
		ContentHash: hash,
		Diagnostics: owned,
		Counts:      counts,
	}
}
