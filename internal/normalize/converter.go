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

	"golang.org/x/text/unicode/norm"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
	"github.com/diagrelay/diagrelay/internal/errs"
)

// Converter turns one source's raw JSON payload into canonical
// diagnostics. A malformed individual diagnostic is reported as a
// ConversionWarning and dropped; only a payload that cannot be decoded at
// all returns a non-nil error.
type Converter interface {
	Convert(raw json.RawMessage) ([]diagnostic.Diagnostic, []ConversionWarning, error)
}

// converters is the fixed dispatch table from §9's design note: a set of
// tagged variants known at compile time, never extended at runtime.
var converters = map[Source]Converter{
	SourceTypeScript:   typeScriptConverter{},
	SourceRustAnalyzer: rustAnalyzerConverter{},
	SourceESLint:       eslintConverter{},
	SourceGenericLSP:   genericLSPConverter{},
}

// Normalize dispatches raw to the converter registered for raw.Source,
// falling back to the generic-lsp converter for any unrecognized source
// tag (§4.2: "unknown source variant => handled by the generic-lsp
// converter").
func Normalize(raw RawPayload) ([]diagnostic.Diagnostic, []ConversionWarning, error) {
	conv, ok := converters[raw.Source]
	if !ok {
		conv = converters[SourceGenericLSP]
	}
	diags, warnings, err := conv.Convert(raw.Payload)
	if err != nil {
		return nil, warnings, errs.New(errs.KindSerialization, "normalize.Normalize", string(raw.Source), err)
	}
	for i := range diags {
		diags[i].Message = normalizeMessage(diags[i].Message)
	}
	return diags, warnings, nil
}

// normalizeMessage puts a diagnostic message into Unicode NFC form.
// Compilers and linters are free to emit combining-character sequences
// (e.g. a precomposed accented letter spelled as base+combining-mark);
// left alone, two messages that render identically can compare unequal
// and defeat the dedup logic downstream of normalize. Invalid UTF-8 is
// passed through unchanged rather than replaced with U+FFFD, since a
// byte-for-byte-odd message is still more useful to a client than a
// string of replacement characters.
func normalizeMessage(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// decodeLSPShaped unmarshals any LSP-wire-compatible payload (TypeScript,
// rust-analyzer, generic-lsp all share this shape per §6).
func decodeLSPShaped(raw json.RawMessage) (wirePublishDiagnosticsParams, error) {
	var params wirePublishDiagnosticsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return wirePublishDiagnosticsParams{}, fmt.Errorf("decode LSP-shaped payload: %w", err)
	}
	return params, nil
}
