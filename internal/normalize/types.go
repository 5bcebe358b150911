// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize converts source-specific diagnostic payloads
// (TypeScript, rust-analyzer, ESLint, generic LSP) into the canonical
// diagnostic.Diagnostic form (§4.2). There is no dynamic plugin loading:
// converters are a fixed, tagged set dispatched through a compile-time
// map, per the "no dynamic loading" design note in §9.
package normalize

import "encoding/json"

// Source names the analyzer family a raw payload came from.
type Source string

const (
	SourceTypeScript   Source = "typescript"
	SourceRustAnalyzer Source = "rust-analyzer"
	SourceESLint       Source = "eslint"
	SourceGenericLSP   Source = "generic-lsp"
)

// RawPayload is the tagged input to Normalize: a source tag plus its
// analyzer-specific JSON body.
type RawPayload struct {
	Source  Source          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// ConversionWarning records a malformed individual diagnostic dropped
// from an otherwise valid payload (§4.2), or a fallback decision such as
// "unknown severity treated as Information".
type ConversionWarning struct {
	Index   int    `json:"index,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
