// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package errs defines the coarse error taxonomy shared by every layer of
// the ingestion pipeline (§7 of the spec). Each layer wraps the
// underlying cause in an *errs.Error carrying one Kind, an operation
// name, and an optional identifying key (file path, snapshot id). Coarse
// Kinds are what the capture orchestrator surfaces to subscribers;
// detailed messages stay in the logs.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the coarse error taxonomy from §7. It deliberately has no
// sub-kinds: callers that need finer discrimination should use
// errors.As against a concrete error type and inspect it directly.
type Kind string

const (
	KindConfig        Kind = "config"
	KindIO            Kind = "io"
	KindSerialization Kind = "serialization"
	KindPolicy        Kind = "policy"
	KindDatabase      Kind = "database"
	KindConcurrency   Kind = "concurrency"
	KindCircuitOpen   Kind = "circuit_open"
	KindTransient     Kind = "transient"
	KindFatal         Kind = "fatal"
)

// Error carries a Kind plus the context an embedder needs to report a
// user-visible failure: the operation that failed, the key it was
// operating on (file path, snapshot id, dependency name), and the
// underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error. op should name the failing operation
// ("store.Record", "cache.Put"); key is the identifying value, or empty
// if none applies.
func New(kind Kind, op, key string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: cause}
}

// Wrap is New with KindFatal unless the cause already carries a *Error,
// in which case its Kind is preserved and only the operation breadcrumb
// is appended. This is the usual "add context on the way up" call at a
// layer boundary (§7 propagation policy).
func Wrap(op, key string, cause error) error {
	if cause == nil {
		return nil
	}
	var existing *Error
	if errors.As(cause, &existing) {
		return New(existing.Kind, op, key, cause)
	}
	return New(KindFatal, op, key, cause)
}

// KindOf extracts the Kind of err, or KindFatal if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// Is reports whether the first *Error in err's chain (the one KindOf
// finds) has the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
