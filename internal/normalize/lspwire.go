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
	"strconv"
	"strings"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
)

// The structs below mirror the wire shape of PublishDiagnosticsParams
// (and its TypeScript-server / rust-analyzer wire-compatible supersets),
// not the canonical model. They exist only so json.Unmarshal has
// somewhere to land before a per-source converter maps them to
// diagnostic.Diagnostic.

type wirePosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type wireRange struct {
	Start wirePosition `json:"start"`
	End   wirePosition `json:"end"`
}

type wireRelatedInfo struct {
	Location struct {
		URI   string    `json:"uri"`
		Range wireRange `json:"range"`
	} `json:"location"`
	Message string `json:"message"`
}

type wireDiagnostic struct {
	Range    wireRange         `json:"range"`
	Severity *int              `json:"severity"`
	Code     json.RawMessage   `json:"code"`
	Source   string            `json:"source"`
	Message  string            `json:"message"`
	Related  []wireRelatedInfo `json:"relatedInformation"`
	Tags     []int             `json:"tags"`
}

type wirePublishDiagnosticsParams struct {
	URI         string           `json:"uri"`
	Diagnostics []wireDiagnostic `json:"diagnostics"`
}

// fileFromURI strips a leading "file://" scheme, which every LSP-derived
// source uses to identify documents.
func fileFromURI(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// wireSeverityToCanonical maps the LSP 1..4 severity scale to the
// canonical Severity, defaulting missing or out-of-range values to
// Information and reporting whether a warning should be logged (§4.2:
// "unknown severity => Information with a logged warning"; missing
// severity is the same default but without the warning).
func wireSeverityToCanonical(sev *int) (diagnostic.Severity, bool) {
	if sev == nil {
		return diagnostic.SeverityInfo, false
	}
	switch diagnostic.Severity(*sev) {
	case diagnostic.SeverityError, diagnostic.SeverityWarning, diagnostic.SeverityInfo, diagnostic.SeverityHint:
		return diagnostic.Severity(*sev), false
	default:
		return diagnostic.SeverityInfo, true
	}
}

// codeToString decodes a wire `code` field, which LSP permits to be
// either a JSON string or a JSON number, into the canonical *string form.
// A null or absent code yields nil, never an empty string (§4.2).
func codeToString(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		s = n.String()
		return &s
	}
	return nil
}

func wireRangeToCanonical(r wireRange) diagnostic.Range {
	rng := diagnostic.Range{
		Start: diagnostic.Position{Line: r.Start.Line, Character: r.Start.Character},
		End:   diagnostic.Position{Line: r.End.Line, Character: r.End.Character},
	}
	return rng.Normalize()
}

func wireTagsToCanonical(tags []int) []diagnostic.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]diagnostic.Tag, 0, len(tags))
	for _, t := range tags {
		switch t {
		case 1:
			out = append(out, diagnostic.TagUnnecessary)
		case 2:
			out = append(out, diagnostic.TagDeprecated)
		}
	}
	return out
}

func wireRelatedToCanonical(rel []wireRelatedInfo) []diagnostic.RelatedInfo {
	if len(rel) == 0 {
		return nil
	}
	out := make([]diagnostic.RelatedInfo, 0, len(rel))
	for _, r := range rel {
		out = append(out, diagnostic.RelatedInfo{
			File:    fileFromURI(r.Location.URI),
			Range:   wireRangeToCanonical(r.Location.Range),
			Message: r.Message,
		})
	}
	return out
}

// stableID derives a deterministic id from the fields that identify a
// diagnostic's underlying issue, so the same issue keeps the same id
// across ingestion cycles (see diagnostic.Diagnostic.ID doc).
func stableID(source, file string, rng diagnostic.Range, code *string) string {
	codeStr := ""
	if code != nil {
		codeStr = *code
	}
	return source + "|" + file + "|" +
		strconv.Itoa(rng.Start.Line) + ":" + strconv.Itoa(rng.Start.Character) + "|" + codeStr
}
