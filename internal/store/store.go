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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
	"github.com/diagrelay/diagrelay/internal/errs"
)

// nowFunc is a clock seam for deterministic tests, matching the teacher's
// own convention in internal/diagnostic.
var nowFunc = time.Now

// timeLayout is fixed-width (always nine fractional digits), so stored
// timestamps compare and sort as strings in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Pattern is a recurring error signature aggregated across every snapshot
// that has produced it (§4.6's error_patterns table).
type Pattern struct {
	ID              string
	PatternHash     string
	FirstSeen       time.Time
	LastSeen        time.Time
	OccurrenceCount int
	FilesAffected   []string
	Message         string
	Code            *string
	Source          string
}

// FileStats is the running aggregate kept per file across every recorded
// snapshot.
type FileStats struct {
	FilePath        string
	FirstSeen       time.Time
	LastSeen        time.Time
	TotalSnapshots  int
	TotalErrors     int
	TotalWarnings   int
	TotalInfo       int
	TotalHints      int
	AvgErrorCount   float64
	AvgWarningCount float64
	AvgInfoCount    float64
	AvgHintCount    float64
	MaxErrorCount   int
	MaxWarningCount int
	MaxInfoCount    int
	MaxHintCount    int
}

// Bucket is one time-bounded aggregate row returned by TimeSeries.
type Bucket struct {
	Start    time.Time
	End      time.Time
	Errors   int
	Warnings int
	Info     int
	Hints    int
}

// Store is the durable history store backed by a *Pool. Each write runs
// in its own transaction on a connection from WithConn; Store adds no
// lock of its own around writes, and WithConn may hand out several
// connections at once.
type Store struct {
	pool *Pool

	cleanupMu   sync.Mutex
	lastCleanup time.Time
	minInterval time.Duration
}

// NewStore wraps an already-open Pool. minCleanupInterval bounds how
// often Cleanup actually runs its deletes when called repeatedly (e.g.
// from a periodic scheduler); calls inside the window are no-ops.
func NewStore(pool *Pool, minCleanupInterval time.Duration) *Store {
	if minCleanupInterval <= 0 {
		minCleanupInterval = time.Hour
	}
	return &Store{pool: pool, minInterval: minCleanupInterval}
}

// Record persists snap as a single transaction: insert the snapshot row,
// update file_stats' running aggregate incrementally, and upsert
// error_patterns for every Error-severity diagnostic it contains (§4.6).
func (s *Store) Record(ctx context.Context, snap diagnostic.Snapshot) error {
	diagsJSON, err := json.Marshal(snap.Diagnostics)
	if err != nil {
		return errs.New(errs.KindSerialization, "store.Record", snap.File, err)
	}

	return s.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return errs.New(errs.KindDatabase, "store.Record", snap.File, err)
		}
		defer tx.Rollback()

		now := nowFunc().UTC()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO diagnostic_snapshots
				(id, timestamp, file_path, file_hash, error_count, warning_count, info_count, hint_count, diagnostics_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.Timestamp.Format(timeLayout), snap.File, string(snap.ContentHash),
			snap.Counts.Errors, snap.Counts.Warnings, snap.Counts.Info, snap.Counts.Hints,
			string(diagsJSON), now.Format(timeLayout),
		)
		if err != nil {
			return errs.New(errs.KindDatabase, "store.Record", snap.File, fmt.Errorf("insert snapshot: %w", err))
		}

		if err := upsertFileStats(ctx, tx, snap, now); err != nil {
			return err
		}

		for _, d := range snap.Diagnostics {
			if d.Severity != diagnostic.SeverityError {
				continue
			}
			if err := upsertErrorPattern(ctx, tx, snap.File, d, now); err != nil {
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return errs.New(errs.KindDatabase, "store.Record", snap.File, fmt.Errorf("commit: %w", err))
		}
		return nil
	})
}

func upsertFileStats(ctx context.Context, tx *sql.Tx, snap diagnostic.Snapshot, now time.Time) error {
	row := tx.QueryRowContext(ctx, `
		SELECT first_seen, total_snapshots, total_errors, total_warnings, total_info, total_hints,
		       avg_error_count, avg_warning_count, avg_info_count, avg_hint_count,
		       max_error_count, max_warning_count, max_info_count, max_hint_count
		FROM file_stats WHERE file_path = ?`, snap.File)

	var (
		firstSeenStr                                   string
		totalSnapshots, totalErr, totalWarn, totalInfo  int
		totalHint                                       int
		avgErr, avgWarn, avgInfo, avgHint               float64
		maxErr, maxWarn, maxInfo, maxHint                int
	)
	err := row.Scan(&firstSeenStr, &totalSnapshots, &totalErr, &totalWarn, &totalInfo, &totalHint,
		&avgErr, &avgWarn, &avgInfo, &avgHint, &maxErr, &maxWarn, &maxInfo, &maxHint)

	firstSeen := now
	switch {
	case err == sql.ErrNoRows:
		firstSeen = now
	case err != nil:
		return errs.New(errs.KindDatabase, "store.upsertFileStats", snap.File, err)
	default:
		if parsed, perr := time.Parse(timeLayout, firstSeenStr); perr == nil {
			firstSeen = parsed
		}
	}

	newCount := totalSnapshots + 1
	// Running average: newAvg = oldAvg + (newValue - oldAvg) / newCount.
	avgErr += (float64(snap.Counts.Errors) - avgErr) / float64(newCount)
	avgWarn += (float64(snap.Counts.Warnings) - avgWarn) / float64(newCount)
	avgInfo += (float64(snap.Counts.Info) - avgInfo) / float64(newCount)
	avgHint += (float64(snap.Counts.Hints) - avgHint) / float64(newCount)

	if snap.Counts.Errors > maxErr {
		maxErr = snap.Counts.Errors
	}
	if snap.Counts.Warnings > maxWarn {
		maxWarn = snap.Counts.Warnings
	}
	if snap.Counts.Info > maxInfo {
		maxInfo = snap.Counts.Info
	}
	if snap.Counts.Hints > maxHint {
		maxHint = snap.Counts.Hints
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO file_stats
			(file_path, first_seen, last_seen, total_snapshots,
			 total_errors, total_warnings, total_info, total_hints,
			 avg_error_count, avg_warning_count, avg_info_count, avg_hint_count,
			 max_error_count, max_warning_count, max_info_count, max_hint_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			last_seen = excluded.last_seen,
			total_snapshots = excluded.total_snapshots,
			total_errors = excluded.total_errors,
			total_warnings = excluded.total_warnings,
			total_info = excluded.total_info,
			total_hints = excluded.total_hints,
			avg_error_count = excluded.avg_error_count,
			avg_warning_count = excluded.avg_warning_count,
			avg_info_count = excluded.avg_info_count,
			avg_hint_count = excluded.avg_hint_count,
			max_error_count = excluded.max_error_count,
			max_warning_count = excluded.max_warning_count,
			max_info_count = excluded.max_info_count,
			max_hint_count = excluded.max_hint_count`,
		snap.File, firstSeen.Format(timeLayout), now.Format(timeLayout), newCount,
		totalErr+snap.Counts.Errors, totalWarn+snap.Counts.Warnings,
		totalInfo+snap.Counts.Info, totalHint+snap.Counts.Hints,
		avgErr, avgWarn, avgInfo, avgHint,
		maxErr, maxWarn, maxInfo, maxHint,
	)
	if err != nil {
		return errs.New(errs.KindDatabase, "store.upsertFileStats", snap.File, fmt.Errorf("upsert file_stats: %w", err))
	}
	return nil
}

// patternHashOf derives the stable identity of a recurring error, per
// §4.6: SHA-256 of the message concatenated with the diagnostic code.
func patternHashOf(message string, code *string) string {
	codeStr := ""
	if code != nil {
		codeStr = *code
	}
	sum := sha256.Sum256([]byte(message + "\x00" + codeStr))
	return hex.EncodeToString(sum[:])
}

func upsertErrorPattern(ctx context.Context, tx *sql.Tx, file string, d diagnostic.Diagnostic, now time.Time) error {
	hash := patternHashOf(d.Message, d.Code)

	var (
		id              string
		firstSeenStr    string
		occurrenceCount int
		filesAffected   string
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, first_seen, occurrence_count, files_affected
		FROM error_patterns WHERE pattern_hash = ?`, hash,
	).Scan(&id, &firstSeenStr, &occurrenceCount, &filesAffected)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO error_patterns
				(id, pattern_hash, first_seen, last_seen, occurrence_count, files_affected, message, code, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), hash, now.Format(timeLayout), now.Format(timeLayout),
			1, file, d.Message, d.Code, d.Source,
		)
		if err != nil {
			return errs.New(errs.KindDatabase, "store.upsertErrorPattern", file, fmt.Errorf("insert pattern: %w", err))
		}
		return nil
	case err != nil:
		return errs.New(errs.KindDatabase, "store.upsertErrorPattern", file, err)
	}

	files := splitFiles(filesAffected)
	if !containsString(files, file) {
		files = append(files, file)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE error_patterns
		SET last_seen = ?, occurrence_count = ?, files_affected = ?
		WHERE id = ?`,
		now.Format(timeLayout), occurrenceCount+1, joinFiles(files), id,
	)
	if err != nil {
		return errs.New(errs.KindDatabase, "store.upsertErrorPattern", file, fmt.Errorf("update pattern: %w", err))
	}
	return nil
}

const filesAffectedSep = "\x1f"

func splitFiles(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, filesAffectedSep)
}

func joinFiles(files []string) string {
	return strings.Join(files, filesAffectedSep)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// QuerySnapshots returns snapshots for file, newest first, optionally
// restricted to those recorded at or after since, optionally limited to
// the most recent limit rows (limit <= 0 means unbounded).
func (s *Store) QuerySnapshots(ctx context.Context, file string, since *time.Time, limit int) ([]diagnostic.Snapshot, error) {
	var snaps []diagnostic.Snapshot
	err := s.pool.WithReadConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		query := `
			SELECT id, timestamp, file_path, file_hash, diagnostics_json
			FROM diagnostic_snapshots
			WHERE file_path = ?`
		args := []any{file}
		if since != nil {
			query += " AND timestamp >= ?"
			args = append(args, since.UTC().Format(timeLayout))
		}
		query += " ORDER BY timestamp DESC"
		if limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", limit)
		}

		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return errs.New(errs.KindDatabase, "store.QuerySnapshots", file, err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id, tsStr, filePath, hash, diagsJSON string
			)
			if err := rows.Scan(&id, &tsStr, &filePath, &hash, &diagsJSON); err != nil {
				return errs.New(errs.KindDatabase, "store.QuerySnapshots", file, err)
			}
			ts, err := time.Parse(timeLayout, tsStr)
			if err != nil {
				return errs.New(errs.KindSerialization, "store.QuerySnapshots", file, err)
			}
			var diags []diagnostic.Diagnostic
			if err := json.Unmarshal([]byte(diagsJSON), &diags); err != nil {
				return errs.New(errs.KindSerialization, "store.QuerySnapshots", file, err)
			}
			snaps = append(snaps, diagnostic.Snapshot{
				ID:          id,
				Timestamp:   ts,
				File:        filePath,
				ContentHash: diagnostic.FileHash(hash),
				Diagnostics: diags,
				Counts:      diagnostic.CountBySeverity(diags),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// ListPatterns returns every recurring error pattern whose occurrence
// count is at least minCount, most frequent first.
func (s *Store) ListPatterns(ctx context.Context, minCount int) ([]Pattern, error) {
	var patterns []Pattern
	err := s.pool.WithReadConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT id, pattern_hash, first_seen, last_seen, occurrence_count, files_affected, message, code, source
			FROM error_patterns
			WHERE occurrence_count >= ?
			ORDER BY occurrence_count DESC`, minCount)
		if err != nil {
			return errs.New(errs.KindDatabase, "store.ListPatterns", "", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				p                        Pattern
				firstSeenStr, lastSeenStr string
				filesAffected            string
				code                     sql.NullString
			)
			if err := rows.Scan(&p.ID, &p.PatternHash, &firstSeenStr, &lastSeenStr,
				&p.OccurrenceCount, &filesAffected, &p.Message, &code, &p.Source); err != nil {
				return errs.New(errs.KindDatabase, "store.ListPatterns", "", err)
			}
			p.FirstSeen, _ = time.Parse(timeLayout, firstSeenStr)
			p.LastSeen, _ = time.Parse(timeLayout, lastSeenStr)
			p.FilesAffected = splitFiles(filesAffected)
			if code.Valid {
				c := code.String
				p.Code = &c
			}
			patterns = append(patterns, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return patterns, nil
}

// TimeSeries buckets snapshots recorded in [start, end) into fixed-width
// interval-sized windows, summing per-severity counts within each.
func (s *Store) TimeSeries(ctx context.Context, start, end time.Time, interval time.Duration) ([]Bucket, error) {
	if interval <= 0 {
		return nil, errs.New(errs.KindConfig, "store.TimeSeries", "", fmt.Errorf("interval must be positive"))
	}

	numBuckets := int(end.Sub(start) / interval)
	if end.Sub(start)%interval != 0 {
		numBuckets++
	}
	if numBuckets <= 0 {
		return nil, nil
	}
	buckets := make([]Bucket, numBuckets)
	for i := range buckets {
		bStart := start.Add(time.Duration(i) * interval)
		bEnd := bStart.Add(interval)
		if bEnd.After(end) {
			bEnd = end
		}
		buckets[i] = Bucket{Start: bStart, End: bEnd}
	}

	err := s.pool.WithReadConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT timestamp, error_count, warning_count, info_count, hint_count
			FROM diagnostic_snapshots
			WHERE timestamp >= ? AND timestamp < ?
			ORDER BY timestamp ASC`,
			start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
		if err != nil {
			return errs.New(errs.KindDatabase, "store.TimeSeries", "", err)
		}
		defer rows.Close()

		for rows.Next() {
			var tsStr string
			var errC, warnC, infoC, hintC int
			if err := rows.Scan(&tsStr, &errC, &warnC, &infoC, &hintC); err != nil {
				return errs.New(errs.KindDatabase, "store.TimeSeries", "", err)
			}
			ts, err := time.Parse(timeLayout, tsStr)
			if err != nil {
				continue
			}
			idx := int(ts.Sub(start) / interval)
			if idx < 0 || idx >= len(buckets) {
				continue
			}
			buckets[idx].Errors += errC
			buckets[idx].Warnings += warnC
			buckets[idx].Info += infoC
			buckets[idx].Hints += hintC
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// Cleanup deletes snapshot rows older than retention and any file_stats
// row with no remaining snapshots. It is a no-op if called again within
// the Store's configured minimum interval, so a periodic caller can
// invoke it on every tick without re-scanning the table each time.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	s.cleanupMu.Lock()
	if !s.lastCleanup.IsZero() && nowFunc().Sub(s.lastCleanup) < s.minInterval {
		s.cleanupMu.Unlock()
		return 0, nil
	}
	s.cleanupMu.Unlock()

	cutoff := nowFunc().UTC().Add(-retention)
	var deleted int64

	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return errs.New(errs.KindDatabase, "store.Cleanup", "", err)
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `DELETE FROM diagnostic_snapshots WHERE timestamp < ?`, cutoff.Format(timeLayout))
		if err != nil {
			return errs.New(errs.KindDatabase, "store.Cleanup", "", fmt.Errorf("delete snapshots: %w", err))
		}
		deleted, _ = res.RowsAffected()

		_, err = tx.ExecContext(ctx, `
			DELETE FROM file_stats
			WHERE file_path NOT IN (SELECT DISTINCT file_path FROM diagnostic_snapshots)`)
		if err != nil {
			return errs.New(errs.KindDatabase, "store.Cleanup", "", fmt.Errorf("prune file_stats: %w", err))
		}

		if err := tx.Commit(); err != nil {
			return errs.New(errs.KindDatabase, "store.Cleanup", "", fmt.Errorf("commit: %w", err))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.cleanupMu.Lock()
	s.lastCleanup = nowFunc()
	s.cleanupMu.Unlock()

	return deleted, nil
}
