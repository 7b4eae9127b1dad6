// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vodhive/vodhive/internal/models"
)

// InsertCollectLogs appends a batch of task log entries in one transaction.
// The collection engine buffers entries and flushes them here.
func (db *DB) InsertCollectLogs(ctx context.Context, entries []*models.CollectLog) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO collect_logs (task_id, level, action, source_name,
				video_id, video_name, message, details, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare log insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, e := range entries {
			created := e.CreatedAt
			if created.IsZero() {
				created = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, e.TaskID, e.Level, e.Action,
				e.SourceName, e.VideoID, e.VideoName, e.Message, e.Details, created); err != nil {
				return fmt.Errorf("failed to insert collect log: %w", err)
			}
		}
		return nil
	})
}

// ListCollectLogs returns log entries for a task in insertion order,
// starting after the given id. Pass afterID 0 for the beginning.
func (db *DB) ListCollectLogs(ctx context.Context, taskID string, afterID int64, limit int) ([]*models.CollectLog, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 200
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, task_id, level, action, source_name, video_id, video_name,
			message, details, created_at
		FROM collect_logs WHERE task_id = ? AND id > ?
		ORDER BY id LIMIT ?`, taskID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list collect logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.CollectLog
	for rows.Next() {
		var e models.CollectLog
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Level, &e.Action, &e.SourceName,
			&e.VideoID, &e.VideoName, &e.Message, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// DeleteCollectLogsBefore prunes log entries older than the cutoff,
// independent of task retention. Returns rows removed.
func (db *DB) DeleteCollectLogsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM collect_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune collect logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
