// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vodhive/vodhive/internal/models"
)

// ErrSourceNotFound is returned when a source id does not exist.
var ErrSourceNotFound = errors.New("database: source not found")

const sourceColumns = `id, name, base_url, weight, active, format, family, welfare`

// InsertSource persists a new upstream source and assigns its id.
func (db *DB) InsertSource(ctx context.Context, s *models.Source) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (name, base_url, weight, active, format, family, welfare, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.BaseURL, s.Weight, boolToInt(s.Active), string(s.Format),
		s.Family, boolToInt(s.Welfare), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert source %s: %w", s.Name, err)
	}
	s.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read source id: %w", err)
	}
	return nil
}

// UpdateSource writes back all editable fields.
func (db *DB) UpdateSource(ctx context.Context, s *models.Source) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE sources SET name = ?, base_url = ?, weight = ?, active = ?,
			format = ?, family = ?, welfare = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.BaseURL, s.Weight, boolToInt(s.Active), string(s.Format),
		s.Family, boolToInt(s.Welfare), time.Now(), s.ID)
	if err != nil {
		return fmt.Errorf("failed to update source %d: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// GetSource fetches one source by id.
func (db *DB) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	return s, err
}

// ListSources returns sources ordered by descending weight. activeOnly
// filters out disabled entries.
func (db *DB) ListSources(ctx context.Context, activeOnly bool) ([]*models.Source, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + sourceColumns + ` FROM sources`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY weight DESC, id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSource removes a source; health rows cascade.
func (db *DB) DeleteSource(ctx context.Context, id int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// UpsertSourceHealth stores the health tracker's record for one source.
func (db *DB) UpsertSourceHealth(ctx context.Context, h *models.SourceHealth) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO source_health (source_id, status, last_response_ms, avg_response_ms,
			total_checks, success_checks, last_error, last_error_at,
			consecutive_failures, video_count, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			status = excluded.status,
			last_response_ms = excluded.last_response_ms,
			avg_response_ms = excluded.avg_response_ms,
			total_checks = excluded.total_checks,
			success_checks = excluded.success_checks,
			last_error = excluded.last_error,
			last_error_at = excluded.last_error_at,
			consecutive_failures = excluded.consecutive_failures,
			video_count = excluded.video_count,
			checked_at = excluded.checked_at`,
		h.SourceID, string(h.Status), h.LastResponseMs, h.AvgResponseMs,
		h.TotalChecks, h.SuccessChecks, h.LastError, nullTimePtr(h.LastErrorAt),
		h.ConsecutiveFailures, h.VideoCount, nullTime(h.CheckedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert health for source %d: %w", h.SourceID, err)
	}
	return nil
}

// GetSourceHealth fetches the health record for one source. Unchecked
// sources return a zero record with status unknown.
func (db *DB) GetSourceHealth(ctx context.Context, sourceID int64) (*models.SourceHealth, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `
		SELECT source_id, status, last_response_ms, avg_response_ms,
			total_checks, success_checks, last_error, last_error_at,
			consecutive_failures, video_count, checked_at
		FROM source_health WHERE source_id = ?`, sourceID)

	h, err := scanSourceHealth(row)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.SourceHealth{SourceID: sourceID, Status: models.StatusUnknown}, nil
	}
	return h, err
}

// ListSourceHealth returns health records for all tracked sources.
func (db *DB) ListSourceHealth(ctx context.Context) ([]*models.SourceHealth, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT source_id, status, last_response_ms, avg_response_ms,
			total_checks, success_checks, last_error, last_error_at,
			consecutive_failures, video_count, checked_at
		FROM source_health ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source health: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.SourceHealth
	for rows.Next() {
		h, err := scanSourceHealth(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanSource(s rowScanner) (*models.Source, error) {
	var src models.Source
	var active, welfare int
	var format string
	err := s.Scan(&src.ID, &src.Name, &src.BaseURL, &src.Weight, &active,
		&format, &src.Family, &welfare)
	if err != nil {
		return nil, err
	}
	src.Active = active != 0
	src.Welfare = welfare != 0
	src.Format = models.SourceFormat(format)
	return &src, nil
}

func scanSourceHealth(s rowScanner) (*models.SourceHealth, error) {
	var h models.SourceHealth
	var status string
	var lastErrAt, checkedAt sql.NullTime

	err := s.Scan(&h.SourceID, &status, &h.LastResponseMs, &h.AvgResponseMs,
		&h.TotalChecks, &h.SuccessChecks, &h.LastError, &lastErrAt,
		&h.ConsecutiveFailures, &h.VideoCount, &checkedAt)
	if err != nil {
		return nil, err
	}

	h.Status = models.SourceStatus(status)
	if lastErrAt.Valid {
		h.LastErrorAt = &lastErrAt.Time
	}
	if checkedAt.Valid {
		h.CheckedAt = checkedAt.Time
	}
	return &h, nil
}
