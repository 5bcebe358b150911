// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package privacy filters canonical diagnostics before they leave the
// process boundary: dropping excluded files, capping volume, and
// redacting message content (§4.3).
package privacy

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/diagrelay/diagrelay/internal/errs"
)

// unboundedCap is PermissivePolicy's per-file cap: large enough that it
// never truncates a realistic diagnostic batch, while still satisfying
// the "caps >= 1" validation rule (§3) — there is no sentinel "no cap"
// value.
const unboundedCap = math.MaxInt32

// Policy controls which diagnostics survive Apply and how their content
// is scrubbed.
type Policy struct {
	// ExcludeGlobs drops any diagnostic whose File matches one of these
	// patterns (filepath.Match syntax).
	ExcludeGlobs []string

	// SanitizeStrings replaces quoted string literals in Message with
	// an ellipsis placeholder.
	SanitizeStrings bool

	// SanitizeComments is reserved for a future source-comment scrubber;
	// Apply does not yet act on it because diagnostics carry no comment
	// text of their own (messages only).
	SanitizeComments bool

	// ErrorsOnly drops every diagnostic whose severity isn't Error.
	ErrorsOnly bool

	// PerFileCap truncates each file's diagnostics to this count after a
	// stable sort by (severity, range). Must be >= 1.
	PerFileCap int

	// AnonymizePaths replaces every distinct File value with a stable
	// per-call token ("file_0001", …).
	AnonymizePaths bool
}

// PermissivePolicy keeps everything: no exclusions, no redaction, and a
// per-file cap of unboundedCap, large enough that it does not trim in
// practice.
func PermissivePolicy() Policy {
	return Policy{PerFileCap: unboundedCap}
}

// DefaultPolicy redacts string literals and caps per-file volume, but
// keeps all severities and real paths.
func DefaultPolicy() Policy {
	return Policy{
		SanitizeStrings: true,
		PerFileCap:      200,
	}
}

// StrictPolicy keeps only errors, redacts messages, anonymizes paths, and
// applies a tight per-file cap.
func StrictPolicy() Policy {
	return Policy{
		ErrorsOnly:      true,
		SanitizeStrings: true,
		AnonymizePaths:  true,
		PerFileCap:      50,
	}
}

// Validate checks the invariants from §3: globs must be well-formed and
// a configured cap must be positive.
func (p Policy) Validate() error {
	for _, g := range p.ExcludeGlobs {
		if _, err := filepath.Match(g, ""); err != nil {
			return errs.New(errs.KindPolicy, "privacy.Policy.Validate", g, fmt.Errorf("malformed exclude glob: %w", err))
		}
	}
	if p.PerFileCap < 1 {
		return errs.New(errs.KindPolicy, "privacy.Policy.Validate", "", fmt.Errorf("per-file cap must be >= 1, got %d", p.PerFileCap))
	}
	return nil
}
