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
	"fmt"

	"github.com/diagrelay/diagrelay/internal/errs"
)

const schemaVersion = "1"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS diagnostic_snapshots (
	id              TEXT PRIMARY KEY,
	timestamp       TEXT NOT NULL,
	file_path       TEXT NOT NULL,
	file_hash       TEXT NOT NULL,
	error_count     INTEGER NOT NULL,
	warning_count   INTEGER NOT NULL,
	info_count      INTEGER NOT NULL,
	hint_count      INTEGER NOT NULL,
	diagnostics_json TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_file_path ON diagnostic_snapshots(file_path);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON diagnostic_snapshots(timestamp);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON diagnostic_snapshots(created_at);

CREATE TABLE IF NOT EXISTS file_stats (
	file_path          TEXT PRIMARY KEY,
	first_seen         TEXT NOT NULL,
	last_seen          TEXT NOT NULL,
	total_snapshots    INTEGER NOT NULL,
	total_errors       INTEGER NOT NULL,
	total_warnings     INTEGER NOT NULL,
	total_info         INTEGER NOT NULL,
	total_hints        INTEGER NOT NULL,
	avg_error_count    REAL NOT NULL,
	avg_warning_count  REAL NOT NULL,
	avg_info_count     REAL NOT NULL,
	avg_hint_count     REAL NOT NULL,
	max_error_count    INTEGER NOT NULL,
	max_warning_count  INTEGER NOT NULL,
	max_info_count     INTEGER NOT NULL,
	max_hint_count     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS error_patterns (
	id               TEXT PRIMARY KEY,
	pattern_hash     TEXT NOT NULL UNIQUE,
	first_seen       TEXT NOT NULL,
	last_seen        TEXT NOT NULL,
	occurrence_count INTEGER NOT NULL,
	files_affected   TEXT NOT NULL,
	message          TEXT NOT NULL,
	code             TEXT,
	source           TEXT NOT NULL
);
`

// migrate creates the schema if absent and records the schema version in
// the metadata table (§4.6: "versioned via a metadata(key,value) row for
// schema_version"). There is only one version today; a future migration
// would branch on the stored value here.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return errs.New(errs.KindDatabase, "store.migrate", "", fmt.Errorf("apply schema: %w", err))
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO metadata(key, value) VALUES('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		schemaVersion,
	)
	if err != nil {
		return errs.New(errs.KindDatabase, "store.migrate", "", fmt.Errorf("record schema_version: %w", err))
	}
	return nil
}
