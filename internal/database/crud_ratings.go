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

	"github.com/vodhive/vodhive/internal/models"
)

// ErrRatingNotFound is returned when no rating row exists for a video.
var ErrRatingNotFound = errors.New("database: rating not found")

// UpsertRating stores a rating lookup result, success or failure.
func (db *DB) UpsertRating(ctx context.Context, r *models.Rating) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO ratings (video_id, external_id, source, score, votes, status, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			external_id = excluded.external_id,
			source = excluded.source,
			score = excluded.score,
			votes = excluded.votes,
			status = excluded.status,
			fetched_at = excluded.fetched_at`,
		r.VideoID, r.ExternalID, r.Source, r.Score, r.Votes, r.Status, r.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rating for %s: %w", r.VideoID, err)
	}
	return nil
}

// GetRating fetches the stored rating row for a video.
func (db *DB) GetRating(ctx context.Context, videoID string) (*models.Rating, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var r models.Rating
	err := db.conn.QueryRowContext(ctx, `
		SELECT video_id, external_id, source, score, votes, status, fetched_at
		FROM ratings WHERE video_id = ?`, videoID).
		Scan(&r.VideoID, &r.ExternalID, &r.Source, &r.Score, &r.Votes, &r.Status, &r.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRatingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating for %s: %w", videoID, err)
	}
	return &r, nil
}

// ListUnratedVideos returns ids of valid videos with no rating row, oldest
// first, for the enricher's batch pass.
func (db *DB) ListUnratedVideos(ctx context.Context, limit int) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT v.video_id FROM videos v
		LEFT JOIN ratings r ON r.video_id = v.video_id
		WHERE r.video_id IS NULL AND v.is_valid = 1
		ORDER BY v.created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unrated videos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
