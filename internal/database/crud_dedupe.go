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

// FindExisting locates the catalog row an incoming record should merge
// into. Matching runs strongest-first:
//
//  1. exact video_id (fingerprint)
//  2. name + year + area (both non-empty)
//  3. name + year
//  4. name + director containment, best quality first
//  5. name alone, only when the incoming record carries neither year nor
//     director, best quality first
//
// strict skips the loose levels 4 and 5, so records with conflicting or
// missing identity fields insert fresh rows instead of merging. Returns
// ErrVideoNotFound when nothing matches.
func (db *DB) FindExisting(ctx context.Context, videoID, name string, year int, area, director string, strict bool) (*models.Video, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if videoID != "" {
		v, err := db.GetVideo(ctx, videoID)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrVideoNotFound) {
			return nil, err
		}
	}
	if name == "" {
		return nil, ErrVideoNotFound
	}

	if year > 0 && area != "" {
		v, err := db.findOne(ctx,
			`SELECT `+videoColumns+` FROM videos
			 WHERE name = ? AND year = ? AND area = ? LIMIT 1`,
			name, year, area)
		if err == nil || !errors.Is(err, ErrVideoNotFound) {
			return v, err
		}
	}

	if year > 0 {
		v, err := db.findOne(ctx,
			`SELECT `+videoColumns+` FROM videos
			 WHERE name = ? AND year = ? LIMIT 1`, name, year)
		if err == nil || !errors.Is(err, ErrVideoNotFound) {
			return v, err
		}
	}
	if strict {
		return nil, ErrVideoNotFound
	}

	if director != "" {
		v, err := db.findOne(ctx,
			`SELECT `+videoColumns+` FROM videos
			 WHERE name = ? AND director LIKE ?
			 ORDER BY quality_score DESC LIMIT 1`,
			name, "%"+director+"%")
		if err == nil || !errors.Is(err, ErrVideoNotFound) {
			return v, err
		}
	}

	// A bare name merges only when the incoming record has nothing
	// stronger to offer; otherwise a remake would swallow the original.
	if year > 0 || director != "" {
		return nil, ErrVideoNotFound
	}
	return db.findOne(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE name = ?
		 ORDER BY quality_score DESC, updated_at DESC LIMIT 1`, name)
}

// DuplicateGroup is a set of rows sharing a name and year.
type DuplicateGroup struct {
	Name   string
	Year   string
	Videos []*models.Video
}

// FindDuplicateGroups returns groups of rows that share name and year,
// ordered so the highest quality row comes first in each group.
func (db *DB) FindDuplicateGroups(ctx context.Context) ([]DuplicateGroup, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE (name, year) IN (
			SELECT name, year FROM videos GROUP BY name, year HAVING COUNT(*) > 1
		)
		ORDER BY name, year, quality_score DESC, hits DESC, video_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	videos, err := scanVideos(rows)
	if err != nil {
		return nil, err
	}

	var groups []DuplicateGroup
	for _, v := range videos {
		n := len(groups)
		if n == 0 || groups[n-1].Name != v.Name || groups[n-1].Year != v.Year {
			groups = append(groups, DuplicateGroup{Name: v.Name, Year: v.Year})
			n++
		}
		groups[n-1].Videos = append(groups[n-1].Videos, v)
	}
	return groups, nil
}

// ReplaceDuplicates deletes the absorbed rows in one transaction and moves
// their lifetime hits and daily rollups onto the survivor. The caller
// upserts the merged survivor row itself.
func (db *DB) ReplaceDuplicates(ctx context.Context, survivor *models.Video, absorbed []string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var movedHits int64
		for _, id := range absorbed {
			if id == survivor.VideoID {
				continue
			}
			var hits int64
			err := tx.QueryRowContext(ctx,
				`SELECT hits FROM videos WHERE video_id = ?`, id).Scan(&hits)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to read hits for %s: %w", id, err)
			}
			movedHits += hits
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM videos WHERE video_id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete absorbed row %s: %w", id, err)
			}
			// Redirect historical rollups so windowed counters survive the merge.
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO hits_daily (video_id, day, hits)
				SELECT ?, day, hits FROM hits_daily WHERE video_id = ?
				ON CONFLICT(video_id, day) DO UPDATE SET hits = hits + excluded.hits`,
				survivor.VideoID, id); err != nil {
				return fmt.Errorf("failed to move rollups from %s: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM hits_daily WHERE video_id = ?`, id); err != nil {
				return fmt.Errorf("failed to prune rollups for %s: %w", id, err)
			}
		}

		if movedHits > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE videos SET hits = hits + ? WHERE video_id = ?`,
				movedHits, survivor.VideoID); err != nil {
				return fmt.Errorf("failed to move lifetime hits: %w", err)
			}
		}
		return nil
	})
}

func (db *DB) findOne(ctx context.Context, query string, args ...interface{}) (*models.Video, error) {
	row := db.conn.QueryRowContext(ctx, query, args...)
	v, err := scanVideoRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	return v, err
}
