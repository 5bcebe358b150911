// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scanner walks a workspace directory tree with a fixed worker
// pool, honoring built-in and user-configured ignore patterns, and
// caches per-path metadata for a bounded TTL (§4.10).
package scanner

import "time"

// builtinIgnores are always skipped regardless of user configuration.
var builtinIgnores = []string{".git", "node_modules", "target"}

// EntryType classifies what Metadata.Type describes.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// Metadata is the cached view of one filesystem entry.
type Metadata struct {
	Size    int64
	ModTime time.Time
	Type    EntryType
}

// Config configures a Scanner.
type Config struct {
	// WorkerCount bounds concurrent subtree walks. Defaults to 4.
	WorkerCount int

	// IgnoreGlobs are user-provided glob patterns (matched against the
	// base name) skipped in addition to builtinIgnores.
	IgnoreGlobs []string

	// UseGitignore enables parsing a .gitignore file at the scan root
	// and skipping paths it matches, in addition to IgnoreGlobs.
	UseGitignore bool

	// MetadataTTL bounds how long a cached Metadata entry is served
	// without re-stating the underlying path. Zero disables caching
	// (every GetMetadata call re-stats).
	MetadataTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerCount < 1 {
		c.WorkerCount = 4
	}
	return c
}
