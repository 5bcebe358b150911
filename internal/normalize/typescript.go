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

// typeScriptConverter handles the TypeScript language server's
// diagnostic list, which is wire-compatible with plain LSP
// PublishDiagnosticsParams (§6).
type typeScriptConverter struct{}

func (typeScriptConverter) Convert(raw json.RawMessage) ([]diagnostic.Diagnostic, []ConversionWarning, error) {
	params, err := decodeLSPShaped(raw)
	if err != nil {
		return nil, nil, err
	}
	file := fileFromURI(params.URI)

	var out []diagnostic.Diagnostic
	var warnings []ConversionWarning
	for i, wd := range params.Diagnostics {
		if wd.Message == "" {
			warnings = append(warnings, ConversionWarning{
				Index: i, Reason: "missing_message",
				Message: fmt.Sprintf("typescript diagnostic %d dropped: empty message", i),
			})
			continue
		}
		sev, unknownSev := wireSeverityToCanonical(wd.Severity)
		if unknownSev {
			warnings = append(warnings, ConversionWarning{
				Index: i, Reason: "unknown_severity",
				Message: fmt.Sprintf("typescript diagnostic %d: unknown severity, defaulted to information", i),
			})
		}
		rng := wireRangeToCanonical(wd.Range)
		code := codeToString(wd.Code)
		out = append(out, diagnostic.Diagnostic{
			ID:       stableID(string(SourceTypeScript), file, rng, code),
			File:     file,
			Range:    rng,
			Severity: sev,
			Message:  wd.Message,
			Code:     code,
			Source:   string(SourceTypeScript),
			Related:  wireRelatedToCanonical(wd.Related),
			Tags:     wireTagsToCanonical(wd.Tags),
		})
	}
	return out, warnings, nil
}
