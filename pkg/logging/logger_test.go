// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/diagrelay/diagrelay/internal/errs"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{slog: slog.New(handler)}
}

func decodeLastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &record))
	return record
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestDefault_LogsAtInfoWithServiceAttr(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger.Slog())
	assert.Equal(t, LevelInfo, logger.config.Level)
	assert.Equal(t, "diagrelay", logger.config.Service)
}

func TestNew_RespectsLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, JSON: true, Quiet: false})
	logger.slog = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: LevelWarn.toSlogLevel()}))

	logger.Info("should be dropped")
	assert.Empty(t, buf.String())

	logger.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestNew_WritesJSONToLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "diagrelay-test"})
	defer logger.Close()

	logger.Info("hello from file", "n", 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from file")
	assert.Contains(t, string(data), `"service":"diagrelay-test"`)
}

func TestExpandPath_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, "/var/log/diagrelay", expandPath("/var/log/diagrelay"))
}

func TestLogger_With_AddsAttrsToSubsequentRecords(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf)
	child := base.With("file", "snapshot.json")

	child.Info("ingested")

	record := decodeLastLine(t, &buf)
	assert.Equal(t, "snapshot.json", record["file"])
}

func TestLogger_Close_NoFileIsNoop(t *testing.T) {
	logger := Default()
	assert.NoError(t, logger.Close())
}

func TestLogger_ErrorContext_AttachesTraceAndSpanIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.ErrorContext(ctx, "store write failed", "file", "snapshot.json")

	record := decodeLastLine(t, &buf)
	assert.Equal(t, traceID.String(), record["trace_id"])
	assert.Equal(t, spanID.String(), record["span_id"])
}

func TestLogger_InfoContext_NoSpanOmitsTraceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.InfoContext(context.Background(), "no span here")

	record := decodeLastLine(t, &buf)
	_, hasTrace := record["trace_id"]
	assert.False(t, hasTrace)
}

func TestLogger_Error_WithErrorKeyAddsKindAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	err := errs.New(errs.KindDatabase, "store.Write", "snapshot.json", errors.New("disk full"))
	logger.Error("store write failed", "file", "snapshot.json", "error", err)

	record := decodeLastLine(t, &buf)
	assert.Equal(t, string(errs.KindDatabase), record["kind"])
}

func TestLogger_Error_WrappedErrorStillClassified(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	wrapped := errs.Wrap("orchestrator.Ingest", "snapshot.json", errors.New("queue full"))
	logger.Error("enqueue failed", "error", wrapped)

	record := decodeLastLine(t, &buf)
	assert.NotEmpty(t, record["kind"])
}

func TestLogger_Warn_NoErrorKeyOmitsKindAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Warn("queue nearly full", "depth", 42)

	record := decodeLastLine(t, &buf)
	_, hasKind := record["kind"]
	assert.False(t, hasKind)
}

func TestLogger_Error_NonErrorValueUnderErrorKeyIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Error("odd call site", "error", "not an error value")

	record := decodeLastLine(t, &buf)
	_, hasKind := record["kind"]
	assert.False(t, hasKind)
}

func TestMultiHandler_FansOutToEveryHandler(t *testing.T) {
	var bufA, bufB bytes.Buffer
	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&bufA, nil),
		slog.NewJSONHandler(&bufB, nil),
	}}
	logger := slog.New(handler)

	logger.Info("fanned out")

	assert.Contains(t, bufA.String(), "fanned out")
	assert.Contains(t, bufB.String(), "fanned out")
}

func TestMultiHandler_WithAttrsPropagatesToAllHandlers(t *testing.T) {
	var bufA, bufB bytes.Buffer
	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&bufA, nil),
		slog.NewJSONHandler(&bufB, nil),
	}}
	withAttrs := handler.WithAttrs([]slog.Attr{slog.String("service", "diagrelay")})
	logger := slog.New(withAttrs)

	logger.Info("tagged")

	assert.Contains(t, bufA.String(), `"service":"diagrelay"`)
	assert.Contains(t, bufB.String(), `"service":"diagrelay"`)
}

func TestMultiHandler_EnabledReflectsMostVerboseHandler(t *testing.T) {
	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}
	assert.True(t, handler.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug-1))
}
