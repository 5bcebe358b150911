// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
	"github.com/diagrelay/diagrelay/internal/errs"
	"github.com/diagrelay/diagrelay/internal/privacy"
)

// Format selects one of the three output renderings from §6.
type Format int

const (
	FormatCanonicalJSON Format = iota
	FormatMarkdownReport
	FormatTrainingJSONL
)

// ExportFilter selects the output format and an optional additional
// privacy policy applied at export time, on top of whatever policy was
// already applied at ingest.
type ExportFilter struct {
	Format Format
	Policy *privacy.Policy
}

// trainingDataVersion is the stable schema version stamped on every
// training-data JSONL record (§6, Open Question: fixed for the lifetime
// of this implementation).
const trainingDataVersion = 1

// canonicalSummary is the `summary` object in the canonical JSON form.
type canonicalSummary struct {
	Total    int            `json:"total"`
	Errors   int            `json:"errors"`
	Warnings int            `json:"warnings"`
	Info     int            `json:"info"`
	Hints    int            `json:"hints"`
	BySource map[string]int `json:"bySource"`
}

// canonicalSnapshot is the exact shape from §6: {snapshotId, timestamp,
// workspace:{name,root}, diagnostics:[...], summary:{...}}.
type canonicalSnapshot struct {
	SnapshotID  string                  `json:"snapshotId"`
	Timestamp   string                  `json:"timestamp"`
	Workspace   canonicalWorkspace      `json:"workspace"`
	Diagnostics []diagnostic.Diagnostic `json:"diagnostics"`
	Summary     canonicalSummary        `json:"summary"`
}

type canonicalWorkspace struct {
	Name string `json:"name"`
	Root string `json:"root"`
}

// trainingRecord is one line of the training-data JSONL stream.
type trainingRecord struct {
	Version    int                     `json:"version"`
	SnapshotID string                  `json:"snapshot_id"`
	File       string                  `json:"file"`
	Timestamp  string                  `json:"timestamp"`
	Diagnostics []diagnostic.Diagnostic `json:"diagnostics"`
	Aggregates diagnostic.SeverityCounts `json:"aggregates"`
}

// Export renders snap per filter.Format. If filter.Policy is set, it is
// applied on top of snap's diagnostics before rendering; a policy
// violation (an invalid policy) is surfaced as a Policy-kind error
// rather than silently falling back to the unfiltered set (§7).
func Export(snap diagnostic.Snapshot, filter ExportFilter) ([]byte, error) {
	diags := snap.Diagnostics
	if filter.Policy != nil {
		filtered, err := privacy.Apply(diags, *filter.Policy)
		if err != nil {
			return nil, err
		}
		diags = filtered
		snap = diagnostic.Snapshot{
			ID:          snap.ID,
			Timestamp:   snap.Timestamp,
			Workspace:   snap.Workspace,
			File:        snap.File,
			ContentHash: snap.ContentHash,
			Diagnostics: diags,
			Counts:      diagnostic.CountBySeverity(diags),
		}
	}

	switch filter.Format {
	case FormatCanonicalJSON:
		return renderCanonicalJSON(snap)
	case FormatMarkdownReport:
		return renderMarkdownReport(snap), nil
	case FormatTrainingJSONL:
		return renderTrainingRecord(snap)
	default:
		return nil, errs.New(errs.KindConfig, "orchestrator.Export", snap.File, fmt.Errorf("unknown export format %d", filter.Format))
	}
}

func renderCanonicalJSON(snap diagnostic.Snapshot) ([]byte, error) {
	bySource := make(map[string]int)
	for _, d := range snap.Diagnostics {
		bySource[d.Source]++
	}

	out := canonicalSnapshot{
		SnapshotID: snap.ID,
		Timestamp:  snap.Timestamp.Format(time.RFC3339Nano),
		Workspace:  canonicalWorkspace{Name: snap.Workspace.Name, Root: snap.Workspace.Root},
		Diagnostics: snap.Diagnostics,
		Summary: canonicalSummary{
			Total:    snap.Counts.Total(),
			Errors:   snap.Counts.Errors,
			Warnings: snap.Counts.Warnings,
			Info:     snap.Counts.Info,
			Hints:    snap.Counts.Hints,
			BySource: bySource,
		},
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, errs.New(errs.KindSerialization, "orchestrator.Export", snap.File, err)
	}
	return data, nil
}

// renderMarkdownReport produces a stable, deterministic layout: a
// summary header, then a single section for snap.File, with diagnostics
// sorted by (severity, range) — the same order privacy.Apply's per-file
// cap uses, so the report and the filtered input agree on ordering.
func renderMarkdownReport(snap diagnostic.Snapshot) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Diagnostics report\n\n")
	fmt.Fprintf(&buf, "- Snapshot: `%s`\n", snap.ID)
	fmt.Fprintf(&buf, "- Timestamp: %s\n", snap.Timestamp.Format(time.RFC3339Nano))
	fmt.Fprintf(&buf, "- Errors: %d, Warnings: %d, Info: %d, Hints: %d\n\n",
		snap.Counts.Errors, snap.Counts.Warnings, snap.Counts.Info, snap.Counts.Hints)

	diags := make([]diagnostic.Diagnostic, len(snap.Diagnostics))
	copy(diags, snap.Diagnostics)
	diagnostic.SortDiagnostics(diags)

	fmt.Fprintf(&buf, "## %s\n\n", snap.File)
	for _, d := range diags {
		fmt.Fprintf(&buf, "- **%s** [%s] %d:%d — %s\n",
			d.Severity.String(), d.Source, d.Range.Start.Line+1, d.Range.Start.Character+1, d.Message)
		if d.Code != nil {
			fmt.Fprintf(&buf, "  - code: `%s`\n", *d.Code)
		}
		for _, rel := range d.Related {
			fmt.Fprintf(&buf, "  - related: %s:%d:%d — %s\n",
				rel.File, rel.Range.Start.Line+1, rel.Range.Start.Character+1, rel.Message)
		}
	}

	return buf.Bytes()
}

func renderTrainingRecord(snap diagnostic.Snapshot) ([]byte, error) {
	rec := trainingRecord{
		Version:     trainingDataVersion,
		SnapshotID:  snap.ID,
		File:        snap.File,
		Timestamp:   snap.Timestamp.Format(time.RFC3339Nano),
		Diagnostics: snap.Diagnostics,
		Aggregates:  snap.Counts,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errs.New(errs.KindSerialization, "orchestrator.Export", snap.File, err)
	}
	return append(data, '\n'), nil
}
