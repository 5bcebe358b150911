// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging wraps slog with the two things every layer of the
// ingestion pipeline (orchestrator, store, config, server) needs beyond
// a plain structured logger: every record logged with an "error" value
// is tagged with its coarse internal/errs.Kind automatically, and the
// *Context variants stamp the active OTel span's trace/span IDs onto
// the record so a single failing ingest can be followed across
// orchestrator, store, and HTTP-layer log lines.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/diagrelay/diagrelay/internal/errs"
)

// Level is the logging package's own severity enum, kept distinct from
// slog.Level so Config doesn't leak a stdlib type into every caller.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. The zero value is a reasonable CLI
// default: Info level, text output to stderr.
type Config struct {
	// Level is the minimum level written. Default: LevelInfo.
	Level Level

	// LogDir, if set, additionally writes JSON records to
	// "{LogDir}/{Service}_{YYYY-MM-DD}.log" (directory created with
	// 0750 if missing). Supports a leading "~" for the home directory.
	LogDir string

	// Service is stamped onto every record as the "service" attribute.
	Service string

	// JSON selects JSON output on stderr. File output is always JSON
	// regardless of this setting.
	JSON bool

	// Quiet disables the stderr destination; useful once LogDir is set
	// and a daemonized process has nothing watching its stderr.
	Quiet bool
}

// Logger wraps slog.Logger with file output and the errs.Kind/OTel
// conveniences described in the package doc. Safe for concurrent use.
type Logger struct {
	slog   *slog.Logger
	config Config
	file   *os.File
	mu     sync.Mutex
}

// New builds a Logger per config. Call Close to flush and release the
// optional log file.
func New(config Config) *Logger {
	var handlers []slog.Handler
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	logger := &Logger{config: config}

	if config.LogDir != "" {
		if file, ok := openLogFile(config.LogDir, config.Service); ok {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

func openLogFile(dir, service string) (*os.File, bool) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, false
	}
	if service == "" {
		service = "diagrelay"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, false
	}
	return file, true
}

// Default returns an Info-level logger writing text to stderr, tagged
// with service "diagrelay". This is what every Config in the ingestion
// pipeline falls back to when no Logger is supplied.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "diagrelay"})
}

func (l *Logger) Debug(msg string, args ...any) { l.log(context.Background(), LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(context.Background(), LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(context.Background(), LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(context.Background(), LevelError, msg, args) }

// DebugContext, InfoContext, WarnContext, and ErrorContext behave like
// their context-free counterparts but additionally stamp "trace_id"
// and "span_id" onto the record when ctx carries a recording OTel span
// (set up by internal/telemetry and propagated through otelgin and the
// orchestrator's own otel.Tracer calls). A background context, or one
// with no active span, logs exactly as the context-free methods do.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelDebug, msg, args)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelInfo, msg, args)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelWarn, msg, args)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelError, msg, args)
}

// With returns a child Logger carrying additional attributes on every
// subsequent record. The file handle is shared, not duplicated; only
// the original Logger's Close call should be deferred.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config, file: l.file}
}

// Slog exposes the underlying slog.Logger for callers that need an API
// this wrapper doesn't cover (LogAttrs, custom Record handling).
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close syncs and closes the optional log file. A no-op when LogDir was
// never set.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	return l.file.Close()
}

// log adds trace correlation from ctx and a coarse errs.Kind for any
// "error"-keyed argument, then writes through to slog.
func (l *Logger) log(ctx context.Context, level Level, msg string, args []any) {
	args = withTraceContext(ctx, args)
	args = withErrorKind(args)

	switch level {
	case LevelDebug:
		l.slog.Debug(msg, args...)
	case LevelInfo:
		l.slog.Info(msg, args...)
	case LevelWarn:
		l.slog.Warn(msg, args...)
	case LevelError:
		l.slog.Error(msg, args...)
	}
}

func withTraceContext(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return args
	}
	return append(args, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

// withErrorKind scans args for a key-value pair whose key is "error"
// and whose value implements error, and appends the coarse
// errs.KindOf classification as a "kind" attribute. This is what lets
// an operator filter logs by "kind=circuit_open" or "kind=database"
// without every call site remembering to add the field itself.
func withErrorKind(args []any) []any {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || key != "error" {
			continue
		}
		if err, ok := args[i+1].(error); ok {
			return append(args, "kind", string(errs.KindOf(err)))
		}
	}
	return args
}

// multiHandler fans out records to every wrapped handler, used when
// both stderr and file output are enabled.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath expands a leading "~" to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
