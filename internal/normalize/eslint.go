// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
)

// eslintMessage is one entry of ESLint's native JSON report format,
// where severity is ESLint's own 1=warn/2=error scale (opposite of
// LSP's 1=error/2=warning) and lines/columns are 1-based (§4.2, §6).
type eslintMessage struct {
	RuleID    *string `json:"ruleId"`
	Severity  int     `json:"severity"`
	Message   string  `json:"message"`
	Line      int     `json:"line"`
	Column    int     `json:"column"`
	EndLine   int     `json:"endLine"`
	EndColumn int     `json:"endColumn"`
}

type eslintFileResult struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

// eslintConverter handles ESLint's native `eslint --format json` shape:
// a list of per-file results, each with its own message list (§6).
type eslintConverter struct{}

func (eslintConverter) Convert(raw json.RawMessage) ([]diagnostic.Diagnostic, []ConversionWarning, error) {
	var results []eslintFileResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, nil, fmt.Errorf("decode eslint payload: %w", err)
	}

	var out []diagnostic.Diagnostic
	var warnings []ConversionWarning
	idx := 0
	for _, fr := range results {
		for _, m := range fr.Messages {
			i := idx
			idx++
			if m.Message == "" {
				warnings = append(warnings, ConversionWarning{
					Index: i, Reason: "missing_message",
					Message: fmt.Sprintf("eslint message %d dropped: empty message", i),
				})
				continue
			}
			sev, unknownSev := eslintSeverityToCanonical(m.Severity)
			if unknownSev {
				warnings = append(warnings, ConversionWarning{
					Index: i, Reason: "unknown_severity",
					Message: fmt.Sprintf("eslint message %d: unknown severity %d, defaulted to information", i, m.Severity),
				})
			}
			rng := eslintRangeToCanonical(m)
			var code *string
			if m.RuleID != nil && *m.RuleID != "" {
				rule := *m.RuleID
				code = &rule
			}
			out = append(out, diagnostic.Diagnostic{
				ID:       stableID(string(SourceESLint), fr.FilePath, rng, code),
				File:     fr.FilePath,
				Range:    rng,
				Severity: sev,
				Message:  m.Message,
				Code:     code,
				Source:   string(SourceESLint),
			})
		}
	}
	return out, warnings, nil
}

// eslintSeverityToCanonical maps ESLint's 1=warn/2=error scale to the
// canonical Severity. Anything else defaults to Information with a
// warning, matching the LSP converters' behavior for unknown severities.
func eslintSeverityToCanonical(sev int) (diagnostic.Severity, bool) {
	switch sev {
	case 2:
		return diagnostic.SeverityError, false
	case 1:
		return diagnostic.SeverityWarning, false
	default:
		return diagnostic.SeverityInfo, true
	}
}

// eslintRangeToCanonical converts ESLint's 1-based line/column pair into
// the canonical 0-based Range, clamping a missing or inverted end to the
// start per §4.2.
func eslintRangeToCanonical(m eslintMessage) diagnostic.Range {
	start := diagnostic.Position{Line: m.Line - 1, Character: m.Column - 1}
	end := start
	if m.EndLine > 0 {
		end = diagnostic.Position{Line: m.EndLine - 1, Character: m.EndColumn - 1}
	}
	rng := diagnostic.Range{Start: start, End: end}
	return rng.Normalize()
}
