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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRange_Normalize_ClampsEndBeforeStart(t *testing.T) {
	r := Range{
		Start: Position{Line: 5, Character: 0},
		End:   Position{Line: 3, Character: 0},
	}
	got := r.Normalize()
	assert.Equal(t, r.Start, got.End)
}

func TestRange_Normalize_LeavesValidRangeUntouched(t *testing.T) {
	r := Range{
		Start: Position{Line: 1, Character: 0},
		End:   Position{Line: 1, Character: 10},
	}
	assert.Equal(t, r, r.Normalize())
}

func TestSeverity_StringAndValidity(t *testing.T) {
	cases := []struct {
		sev  Severity
		want string
		ok   bool
	}{
		{SeverityError, "error", true},
		{SeverityWarning, "warning", true},
		{SeverityInfo, "info", true},
		{SeverityHint, "hint", true},
		{Severity(99), "unknown", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.sev.String())
		assert.Equal(t, tc.ok, tc.sev.IsValid())
	}
}

func TestWorkspaceInfo_Contains(t *testing.T) {
	ws := WorkspaceInfo{Root: "/w"}
	assert.True(t, ws.Contains("/w/src/a.ts"))
	assert.False(t, ws.Contains("/other/src/a.ts"))
	assert.False(t, ws.Contains("/wrong-prefix/a.ts"))
}

func TestSortDiagnostics_StableBySeverityThenRange(t *testing.T) {
	diags := []Diagnostic{
		{ID: "warn-late", Severity: SeverityWarning, Range: Range{Start: Position{Line: 5}}},
		{ID: "err-late", Severity: SeverityError, Range: Range{Start: Position{Line: 5}}},
		{ID: "err-early", Severity: SeverityError, Range: Range{Start: Position{Line: 1}}},
	}
	SortDiagnostics(diags)

	ids := []string{diags[0].ID, diags[1].ID, diags[2].ID}
	assert.Equal(t, []string{"err-early", "err-late", "warn-late"}, ids)
}

func TestCountBySeverity_SumsToInputLength(t *testing.T) {
	diags := []Diagnostic{
		{Severity: SeverityError},
		{Severity: SeverityInfo},
		{Severity: SeverityInfo},
	}
	counts := CountBySeverity(diags)
	assert.Equal(t, len(diags), counts.Total())
}

func TestDiagnostic_Validate(t *testing.T) {
	valid := Diagnostic{ID: "1", Severity: SeverityError, Range: Range{
		Start: Position{Line: 0, Character: 0},
		End:   Position{Line: 0, Character: 5},
	}}
	assert.NoError(t, valid.Validate())

	badSeverity := valid
	badSeverity.Severity = Severity(42)
	assert.Error(t, badSeverity.Validate())

	badRange := valid
	badRange.Range.End = Position{Line: -1, Character: 0}
	assert.Error(t, badRange.Validate())
}

func TestHashOf_Deterministic(t *testing.T) {
	a := HashOf([]byte("hello"))
	b := HashOf([]byte("hello"))
	c := HashOf([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, a.Empty())
	assert.True(t, FileHash("").Empty())
}
