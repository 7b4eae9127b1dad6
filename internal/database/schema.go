// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package database

import (
	"fmt"
	"strings"

	"github.com/vodhive/vodhive/internal/logging"
)

// schemaStatements creates the core tables. Statements are idempotent so
// startup is safe against an existing database.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS videos (
		video_id        TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		year            INTEGER NOT NULL DEFAULT 0,
		area            TEXT NOT NULL DEFAULT '',
		language        TEXT NOT NULL DEFAULT '',
		actor           TEXT NOT NULL DEFAULT '',
		director        TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL DEFAULT '',
		tags            TEXT NOT NULL DEFAULT '',
		cover           TEXT NOT NULL DEFAULT '',
		thumb           TEXT NOT NULL DEFAULT '',
		remarks         TEXT NOT NULL DEFAULT '',
		score           REAL NOT NULL DEFAULT 0,
		type_id         INTEGER NOT NULL,
		sub_type_id     INTEGER NOT NULL DEFAULT 0,
		source_names    TEXT NOT NULL DEFAULT '[]',
		source_priority INTEGER NOT NULL DEFAULT 0,
		quality_score   INTEGER NOT NULL DEFAULT 0,
		play_urls       TEXT NOT NULL DEFAULT '{}',
		is_valid        INTEGER NOT NULL DEFAULT 1,
		hits            INTEGER NOT NULL DEFAULT 0,
		hits_day        INTEGER NOT NULL DEFAULT 0,
		hits_week       INTEGER NOT NULL DEFAULT 0,
		hits_month      INTEGER NOT NULL DEFAULT 0,
		preview_episode INTEGER NOT NULL DEFAULT 0,
		preview_url     TEXT NOT NULL DEFAULT '',
		shorts_category TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_name ON videos(name)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_name_year ON videos(name, year)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_type ON videos(type_id, sub_type_id)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_hits ON videos(hits DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_updated ON videos(updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_shorts ON videos(shorts_category) WHERE shorts_category != ''`,

	`CREATE TABLE IF NOT EXISTS sources (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		base_url   TEXT NOT NULL,
		weight     INTEGER NOT NULL DEFAULT 0,
		active     INTEGER NOT NULL DEFAULT 1,
		format     TEXT NOT NULL DEFAULT 'auto',
		family     TEXT NOT NULL DEFAULT '',
		welfare    INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS source_health (
		source_id            INTEGER PRIMARY KEY REFERENCES sources(id) ON DELETE CASCADE,
		status               TEXT NOT NULL DEFAULT 'unknown',
		last_response_ms     INTEGER NOT NULL DEFAULT 0,
		avg_response_ms      INTEGER NOT NULL DEFAULT 0,
		total_checks         INTEGER NOT NULL DEFAULT 0,
		success_checks       INTEGER NOT NULL DEFAULT 0,
		last_error           TEXT NOT NULL DEFAULT '',
		last_error_at        TIMESTAMP,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		video_count          INTEGER NOT NULL DEFAULT 0,
		checked_at           TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id           TEXT PRIMARY KEY,
		kind         TEXT NOT NULL,
		status       TEXT NOT NULL,
		priority     INTEGER NOT NULL DEFAULT 5,
		config       TEXT NOT NULL DEFAULT '{}',
		progress     TEXT NOT NULL DEFAULT '{}',
		checkpoint   TEXT,
		last_error   TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMP NOT NULL,
		started_at   TIMESTAMP,
		paused_at    TIMESTAMP,
		completed_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, priority DESC, created_at)`,

	`CREATE TABLE IF NOT EXISTS collect_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id     TEXT NOT NULL,
		level       TEXT NOT NULL DEFAULT 'info',
		action      TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		video_id    TEXT NOT NULL DEFAULT '',
		video_name  TEXT NOT NULL DEFAULT '',
		message     TEXT NOT NULL,
		details     TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_collect_logs_task ON collect_logs(task_id, id)`,

	`CREATE TABLE IF NOT EXISTS access_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id    TEXT NOT NULL,
		client_id   TEXT NOT NULL DEFAULT '',
		accessed_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_access_video ON access_logs(video_id, accessed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_access_client ON access_logs(client_id, accessed_at)`,

	`CREATE TABLE IF NOT EXISTS hits_daily (
		video_id TEXT NOT NULL,
		day      TEXT NOT NULL,
		hits     INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (video_id, day)
	)`,

	`CREATE TABLE IF NOT EXISTS ratings (
		video_id    TEXT PRIMARY KEY,
		external_id TEXT NOT NULL DEFAULT '',
		source      TEXT NOT NULL DEFAULT '',
		score       REAL NOT NULL DEFAULT 0,
		votes       INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT 'success',
		fetched_at  TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS category_mappings (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		source_family TEXT NOT NULL DEFAULT '',
		ext_type_id   INTEGER NOT NULL,
		ext_type_name TEXT NOT NULL DEFAULT '',
		type_id       INTEGER NOT NULL,
		UNIQUE (source_family, ext_type_id)
	)`,

	`CREATE TABLE IF NOT EXISTS sub_categories (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER NOT NULL,
		name      TEXT NOT NULL,
		UNIQUE (parent_id, name)
	)`,
}

// ftsStatements create the external-content FTS5 index over videos. They
// run separately so a build without the fts5 module degrades to LIKE.
var ftsStatements = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS videos_fts USING fts5(
		name, actor, director, content, tags,
		content='videos', content_rowid='rowid'
	)`,
	`CREATE TRIGGER IF NOT EXISTS videos_fts_insert AFTER INSERT ON videos BEGIN
		INSERT INTO videos_fts(rowid, name, actor, director, content, tags)
		VALUES (new.rowid, new.name, new.actor, new.director, new.content, new.tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS videos_fts_delete AFTER DELETE ON videos BEGIN
		INSERT INTO videos_fts(videos_fts, rowid, name, actor, director, content, tags)
		VALUES ('delete', old.rowid, old.name, old.actor, old.director, old.content, old.tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS videos_fts_update AFTER UPDATE ON videos BEGIN
		INSERT INTO videos_fts(videos_fts, rowid, name, actor, director, content, tags)
		VALUES ('delete', old.rowid, old.name, old.actor, old.director, old.content, old.tags);
		INSERT INTO videos_fts(rowid, name, actor, director, content, tags)
		VALUES (new.rowid, new.name, new.actor, new.director, new.content, new.tags);
	END`,
}

// initialize creates tables, indexes and the FTS index.
func (db *DB) initialize() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w (statement: %.60s)", err, stmt)
		}
	}

	db.ftsAvailable = true
	for _, stmt := range ftsStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "no such module") {
				logging.Warn().Err(err).Msg("FTS5 unavailable, search falls back to LIKE")
				db.ftsAvailable = false
				break
			}
			return fmt.Errorf("fts statement failed: %w", err)
		}
	}

	return nil
}
