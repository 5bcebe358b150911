// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package privacy

import (
	"fmt"
	"path/filepath"

	"github.com/awnumar/memguard"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
)

// Apply runs the five ordered filtering rules from §4.3 over diags and
// returns a new slice; the input is never mutated. Apply is idempotent:
// running it again over its own output with the same policy is a no-op.
func Apply(diags []diagnostic.Diagnostic, policy Policy) ([]diagnostic.Diagnostic, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	out := make([]diagnostic.Diagnostic, len(diags))
	copy(out, diags)

	out = dropExcluded(out, policy.ExcludeGlobs)
	out = dropNonErrors(out, policy.ErrorsOnly)
	out = capPerFile(out, policy.PerFileCap)

	if policy.SanitizeStrings {
		out = sanitizeMessages(out)
	}
	if policy.AnonymizePaths {
		out = anonymizePaths(out)
	}
	return out, nil
}

// dropExcluded implements rule (a): drop if File matches any exclude
// glob.
func dropExcluded(diags []diagnostic.Diagnostic, globs []string) []diagnostic.Diagnostic {
	if len(globs) == 0 {
		return diags
	}
	out := diags[:0:0]
	for _, d := range diags {
		excluded := false
		for _, g := range globs {
			if ok, _ := filepath.Match(g, d.File); ok {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, d)
		}
	}
	return out
}

// dropNonErrors implements rule (b).
func dropNonErrors(diags []diagnostic.Diagnostic, errorsOnly bool) []diagnostic.Diagnostic {
	if !errorsOnly {
		return diags
	}
	out := diags[:0:0]
	for _, d := range diags {
		if d.Severity == diagnostic.SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// capPerFile implements rule (c): stable sort by (severity, range), then
// truncate each file's group to cap entries. Diagnostics for different
// files are independent; relative file order in the output follows each
// file's first appearance in the input.
func capPerFile(diags []diagnostic.Diagnostic, perFileCap int) []diagnostic.Diagnostic {
	if len(diags) == 0 {
		return diags
	}

	byFile := make(map[string][]diagnostic.Diagnostic)
	var order []string
	for _, d := range diags {
		if _, seen := byFile[d.File]; !seen {
			order = append(order, d.File)
		}
		byFile[d.File] = append(byFile[d.File], d)
	}

	out := make([]diagnostic.Diagnostic, 0, len(diags))
	for _, file := range order {
		group := byFile[file]
		diagnostic.SortDiagnostics(group)
		if perFileCap > 0 && len(group) > perFileCap {
			group = group[:perFileCap]
		}
		out = append(out, group...)
	}
	return out
}

// sanitizeMessages implements rule (d): replace quoted string literals
// in each message with an ellipsis. The scratch buffer holding the
// unredacted message bytes is mlocked for the duration of the call and
// wiped on return (memguard.NewBuffer / Destroy), so raw message content
// is never paged to disk mid-redaction.
func sanitizeMessages(diags []diagnostic.Diagnostic) []diagnostic.Diagnostic {
	out := make([]diagnostic.Diagnostic, len(diags))
	for i, d := range diags {
		out[i] = d
		if d.Message == "" {
			continue
		}
		out[i].Message = redact(d.Message)
	}
	return out
}

// redact mlocks a scratch copy of msg, runs the quoted-literal
// substitution against it, and returns the sanitized string. The locked
// buffer is destroyed (zeroed and unmapped) before redact returns.
func redact(msg string) string {
	scratch := memguard.NewBuffer(len(msg))
	defer scratch.Destroy()
	copy(scratch.Bytes(), msg)
	return quotedLiteralPattern.ReplaceAllString(string(scratch.Bytes()), `"…"`)
}

// anonymizePaths implements rule (e): map each distinct File to a
// stable, deterministic token scoped to this call. The token map is
// built fresh per Apply invocation (never a shared package-level map),
// so repeated calls over disjoint batches are idempotent and free of
// cross-call side effects (§8).
func anonymizePaths(diags []diagnostic.Diagnostic) []diagnostic.Diagnostic {
	tokens := make(map[string]string)
	next := 1

	out := make([]diagnostic.Diagnostic, len(diags))
	for i, d := range diags {
		tok, ok := tokens[d.File]
		if !ok {
			tok = fmt.Sprintf("file_%04d", next)
			tokens[d.File] = tok
			next++
		}
		out[i] = d
		out[i].File = tok
		if len(d.Related) > 0 {
			out[i].Related = append([]diagnostic.RelatedInfo(nil), d.Related...)
		}
		for j := range out[i].Related {
			relTok, ok := tokens[out[i].Related[j].File]
			if !ok {
				relTok = fmt.Sprintf("file_%04d", next)
				tokens[out[i].Related[j].File] = relTok
				next++
			}
			out[i].Related[j].File = relTok
		}
	}
	return out
}
