// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
	"github.com/diagrelay/diagrelay/internal/errs"
)

func openTestPool(t *testing.T) *Pool {
	t.Helper()
	dir := t.TempDir()
	p, err := Open(PoolConfig{
		Path:           filepath.Join(dir, "history.db"),
		MaxConnections: 4,
		WALEnabled:     true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func codePtr(s string) *string { return &s }

func sampleSnapshot(file string, errs, warnings int) diagnostic.Snapshot {
	diags := make([]diagnostic.Diagnostic, 0, errs+warnings)
	for i := 0; i < errs; i++ {
		diags = append(diags, diagnostic.Diagnostic{
			ID:       "e" + file,
			File:     file,
			Severity: diagnostic.SeverityError,
			Message:  "cannot find name 'foo'",
			Code:     codePtr("2304"),
			Source:   "typescript",
		})
	}
	for i := 0; i < warnings; i++ {
		diags = append(diags, diagnostic.Diagnostic{
			ID:       "w" + file,
			File:     file,
			Severity: diagnostic.SeverityWarning,
			Message:  "unused variable",
			Source:   "typescript",
		})
	}
	snap := diagnostic.NewSnapshot(diagnostic.WorkspaceInfo{Name: "ws", Root: "/ws"}, file, diagnostic.HashOf([]byte(file)), diags)
	// Stamp with the store's clock so tests that pin nowFunc control the
	// snapshot timestamp the queries filter on.
	snap.Timestamp = nowFunc().UTC()
	return snap
}

func TestStore_Record_InsertsSnapshotAndUpdatesFileStats(t *testing.T) {
	pool := openTestPool(t)
	s := NewStore(pool, time.Hour)

	snap := sampleSnapshot("/ws/a.ts", 2, 1)
	require.NoError(t, s.Record(context.Background(), snap))

	snaps, err := s.QuerySnapshots(context.Background(), "/ws/a.ts", nil, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snap.ID, snaps[0].ID)
	assert.Equal(t, 2, snaps[0].Counts.Errors)
	assert.Equal(t, 1, snaps[0].Counts.Warnings)
}

func TestStore_Record_RunningAverageAccumulatesAcrossSnapshots(t *testing.T) {
	pool := openTestPool(t)
	s := NewStore(pool, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/b.ts", 2, 0)))
	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/b.ts", 4, 0)))

	snaps, err := s.QuerySnapshots(ctx, "/ws/b.ts", nil, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	// Newest first.
	assert.Equal(t, 4, snaps[0].Counts.Errors)

	var avg float64
	require.NoError(t, pool.WithReadConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT avg_error_count FROM file_stats WHERE file_path = ?`, "/ws/b.ts").Scan(&avg)
	}))
	assert.InDelta(t, 3.0, avg, 1e-9)
}

func TestStore_Record_UpsertsRecurringErrorPattern(t *testing.T) {
	pool := openTestPool(t)
	s := NewStore(pool, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/a.ts", 1, 0)))
	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/c.ts", 1, 0)))

	patterns, err := s.ListPatterns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 2, patterns[0].OccurrenceCount)
	assert.ElementsMatch(t, []string{"/ws/a.ts", "/ws/c.ts"}, patterns[0].FilesAffected)
	assert.Equal(t, "cannot find name 'foo'", patterns[0].Message)
}

func TestStore_ListPatterns_FiltersByMinimumCount(t *testing.T) {
	pool := openTestPool(t)
	s := NewStore(pool, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/a.ts", 1, 0)))

	patterns, err := s.ListPatterns(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestStore_QuerySnapshots_RespectsSinceAndLimit(t *testing.T) {
	pool := openTestPool(t)
	s := NewStore(pool, time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := nowFunc
	defer func() { nowFunc = old }()

	nowFunc = func() time.Time { return base }
	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/a.ts", 1, 0)))

	nowFunc = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/a.ts", 2, 0)))

	since := base.Add(30 * time.Minute)
	snaps, err := s.QuerySnapshots(ctx, "/ws/a.ts", &since, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 2, snaps[0].Counts.Errors)
}

func TestStore_TimeSeries_BucketsCountsByInterval(t *testing.T) {
	pool := openTestPool(t)
	s := NewStore(pool, time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := nowFunc
	defer func() { nowFunc = old }()

	nowFunc = func() time.Time { return base }
	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/a.ts", 1, 0)))

	nowFunc = func() time.Time { return base.Add(90 * time.Minute) }
	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/a.ts", 3, 0)))

	buckets, err := s.TimeSeries(ctx, base, base.Add(2*time.Hour), time.Hour)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, 1, buckets[0].Errors)
	assert.Equal(t, 3, buckets[1].Errors)
}

func TestStore_Cleanup_DeletesOldSnapshotsAndOrphanedFileStats(t *testing.T) {
	pool := openTestPool(t)
	s := NewStore(pool, 0)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := nowFunc
	defer func() { nowFunc = old }()

	nowFunc = func() time.Time { return base }
	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/old.ts", 1, 0)))

	nowFunc = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/new.ts", 1, 0)))

	deleted, err := s.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	snaps, err := s.QuerySnapshots(ctx, "/ws/old.ts", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, snaps)

	snaps, err = s.QuerySnapshots(ctx, "/ws/new.ts", nil, 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestStore_Cleanup_NoOpWithinMinInterval(t *testing.T) {
	pool := openTestPool(t)
	s := NewStore(pool, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, sampleSnapshot("/ws/a.ts", 1, 0)))

	first, err := s.Cleanup(ctx, time.Nanosecond)
	require.NoError(t, err)

	second, err := s.Cleanup(ctx, time.Nanosecond)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second)
	_ = first
}

// Scenario: pool exclusivity under concurrent access. Every concurrent
// WithConn caller must see a connection nobody else is using at the same
// moment; database/sql's own pool enforces this, so this test asserts the
// pool never errors out or double-hands a connection under load.
func TestPool_WithConn_ConcurrentCallersEachGetExclusiveConnection(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()

	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					prev := atomic.LoadInt32(&maxObserved)
					if n <= prev || atomic.CompareAndSwapInt32(&maxObserved, prev, n) {
						break
					}
				}
				_, execErr := conn.ExecContext(ctx, "SELECT 1")
				atomic.AddInt32(&inFlight, -1)
				return execErr
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestPool_WithConn_AcquisitionTimeoutMapsToConcurrencyKind(t *testing.T) {
	dir := t.TempDir()
	pool, err := Open(PoolConfig{
		Path:               filepath.Join(dir, "timeout.db"),
		MaxConnections:     1,
		AcquisitionTimeout: 10 * time.Millisecond,
		WALEnabled:         true,
	})
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	holderReady := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			close(holderReady)
			<-release
			return nil
		})
	}()
	<-holderReady

	err = pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return nil
	})
	close(release)

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConcurrency))
	assert.True(t, errors.Is(err, ErrAcquisitionTimeout))
}

func TestPool_Open_RunsMigrationIdempotently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrate.db")

	p1, err := Open(PoolConfig{Path: path, WALEnabled: true})
	require.NoError(t, err)
	require.NoError(t, p1.Close())

	p2, err := Open(PoolConfig{Path: path, WALEnabled: true})
	require.NoError(t, err)
	defer p2.Close()

	var count int64
	require.NoError(t, p2.WithReadConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM metadata WHERE key = 'schema_version'")
		var c int64
		if err := row.Scan(&c); err != nil {
			return err
		}
		atomic.StoreInt64(&count, c)
		return nil
	}))
	assert.Equal(t, int64(1), count)
}
