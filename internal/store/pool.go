// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the connection pool and durable history store from
// §4.6: a pooled SQLite (WAL) database holding diagnostic snapshots,
// per-file aggregate statistics, and recurring error patterns.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/diagrelay/diagrelay/internal/errs"
)

// ErrAcquisitionTimeout is returned by WithConn/WithReadConn when no
// connection becomes available before PoolConfig.AcquisitionTimeout
// elapses.
var ErrAcquisitionTimeout = errors.New("store: connection acquisition timed out")

// PoolConfig configures the underlying *sql.DB and its WAL behavior.
type PoolConfig struct {
	// Path is the SQLite database file path, or ":memory:" for an
	// ephemeral in-process database (tests).
	Path string

	MinConnections     int
	MaxConnections     int
	AcquisitionTimeout time.Duration
	IdleTimeout        time.Duration
	WALEnabled         bool
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
	}
	if c.MinConnections <= 0 {
		c.MinConnections = 1
	}
	if c.MinConnections > c.MaxConnections {
		c.MinConnections = c.MaxConnections
	}
	if c.AcquisitionTimeout <= 0 {
		c.AcquisitionTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	return c
}

// Pool wraps database/sql's own connection pool, configured per §4.6's
// enumerated options. database/sql already gives us a FIFO acquisition
// queue and a max-open-conns cap; Pool only adds the WAL pragma, the
// exclusivity-token framing of WithConn/WithReadConn, and schema
// migration on Open.
type Pool struct {
	db  *sql.DB
	cfg PoolConfig
}

// Open opens (creating if necessary) the SQLite database at cfg.Path,
// applies the configured pool limits and WAL pragma, and runs schema
// migration to the latest version.
func Open(cfg PoolConfig) (*Pool, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, errs.New(errs.KindDatabase, "store.Open", cfg.Path, err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MinConnections)
	db.SetConnMaxIdleTime(cfg.IdleTimeout)

	if cfg.WALEnabled {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errs.New(errs.KindDatabase, "store.Open", cfg.Path, err)
		}
	}

	p := &Pool{db: db, cfg: cfg}
	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the underlying *sql.DB.
func (p *Pool) Close() error {
	return p.db.Close()
}

// WithConn acquires an exclusive connection and runs f against it. The
// connection is returned to the pool only when f returns — never from
// inside f — so the exclusivity token's lifetime exactly matches the
// handle's (§4.6's pool invariant). Acquisition blocks up to
// AcquisitionTimeout before returning ErrAcquisitionTimeout (kind
// Concurrency); a cancelled ctx during the wait removes the waiter
// without leaking a connection, since sql.DB.Conn itself honors ctx
// cancellation internally.
func (p *Pool) WithConn(ctx context.Context, f func(ctx context.Context, conn *sql.Conn) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquisitionTimeout)
	defer cancel()

	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errs.New(errs.KindConcurrency, "store.Pool.WithConn", "", ErrAcquisitionTimeout)
		}
		return errs.New(errs.KindDatabase, "store.Pool.WithConn", "", err)
	}
	defer conn.Close()

	return f(ctx, conn)
}

// WithReadConn is WithConn in this implementation: WAL mode permits any
// connection to read concurrently with at most one writer, so readers
// need no separate pool (§4.6).
func (p *Pool) WithReadConn(ctx context.Context, f func(ctx context.Context, conn *sql.Conn) error) error {
	return p.WithConn(ctx, f)
}
