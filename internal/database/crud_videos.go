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

	"github.com/goccy/go-json"

	"github.com/vodhive/vodhive/internal/metrics"
	"github.com/vodhive/vodhive/internal/models"
)

// ErrVideoNotFound is returned when a video id does not exist.
var ErrVideoNotFound = errors.New("database: video not found")

// videoColumns is the canonical select list, kept in sync with scanVideo.
const videoColumns = `video_id, name, year, area, language, actor, director,
	content, tags, cover, thumb, remarks, score, type_id, sub_type_id,
	source_names, source_priority, quality_score, play_urls, is_valid,
	hits, hits_day, hits_week, hits_month,
	preview_episode, preview_url, shorts_category, created_at, updated_at`

// VideoFilter selects and orders catalog listings.
type VideoFilter struct {
	TypeID         int
	SubTypeID      int
	Year           int
	Area           string
	Language       string
	ShortsCategory string
	ValidOnly      bool
	NameLike       string
	ActorLike      string
	DirectorLike   string
	OrderBy        string // hits, score, updated_at, created_at, year
	Descending     bool
	Limit          int
	Offset         int
}

// UpsertVideo inserts a video or replaces all mutable fields of an
// existing row. Hit counters are preserved on conflict; collection must
// never reset them.
func (db *DB) UpsertVideo(ctx context.Context, v *models.Video) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	playURLs, err := v.PlayURLs.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal play urls: %w", err)
	}
	sourceNames, err := json.Marshal(v.SourceNames)
	if err != nil {
		return fmt.Errorf("failed to marshal source names: %w", err)
	}

	query := `INSERT INTO videos (` + videoColumns + `) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			name = excluded.name,
			year = excluded.year,
			area = excluded.area,
			language = excluded.language,
			actor = excluded.actor,
			director = excluded.director,
			content = excluded.content,
			tags = excluded.tags,
			cover = excluded.cover,
			thumb = excluded.thumb,
			remarks = excluded.remarks,
			score = excluded.score,
			type_id = excluded.type_id,
			sub_type_id = excluded.sub_type_id,
			source_names = excluded.source_names,
			source_priority = excluded.source_priority,
			quality_score = excluded.quality_score,
			play_urls = excluded.play_urls,
			is_valid = excluded.is_valid,
			preview_episode = excluded.preview_episode,
			preview_url = excluded.preview_url,
			shorts_category = excluded.shorts_category,
			updated_at = excluded.updated_at`

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, query,
		v.VideoID, v.Name, v.Year, v.Area, v.Language, v.Actor, v.Director,
		v.Content, v.Tags, v.Cover, v.Thumb, v.Remarks, v.Score, v.TypeID, v.SubTypeID,
		string(sourceNames), v.SourcePriority, v.QualityScore, playURLs, boolToInt(v.IsValid),
		v.Hits, v.HitsDay, v.HitsWeek, v.HitsMonth,
		v.PreviewEpisode, v.PreviewURL, v.ShortsCategory, v.CreatedAt, v.UpdatedAt,
	)
	metrics.RecordDBQuery("upsert", "videos", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert video %s: %w", v.VideoID, err)
	}
	return nil
}

// GetVideo fetches a single video by its catalog id.
func (db *DB) GetVideo(ctx context.Context, videoID string) (*models.Video, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE video_id = ?`, videoID)
	v, err := scanVideoRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	return v, err
}

// ListVideos returns a filtered, ordered page of the catalog.
func (db *DB) ListVideos(ctx context.Context, f VideoFilter) ([]*models.Video, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	where, args := f.whereClause()
	query := `SELECT ` + videoColumns + ` FROM videos ` + where + f.orderClause()
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("list", "videos", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanVideos(rows)
}

// CountVideos returns the number of rows matching the filter.
func (db *DB) CountVideos(ctx context.Context, f VideoFilter) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	where, args := f.whereClause()
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return count, nil
}

// DeleteVideo removes a video row. The FTS trigger removes the index entry.
func (db *DB) DeleteVideo(ctx context.Context, videoID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM videos WHERE video_id = ?`, videoID)
	if err != nil {
		return fmt.Errorf("failed to delete video %s: %w", videoID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// SetVideoValidity marks a video playable or broken.
func (db *DB) SetVideoValidity(ctx context.Context, videoID string, valid bool) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE videos SET is_valid = ?, updated_at = ? WHERE video_id = ?`,
		boolToInt(valid), time.Now(), videoID)
	if err != nil {
		return fmt.Errorf("failed to set validity for %s: %w", videoID, err)
	}
	return nil
}

// SetVideoScore stores an enriched external rating on the video row.
func (db *DB) SetVideoScore(ctx context.Context, videoID string, score float64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE videos SET score = ?, updated_at = ? WHERE video_id = ?`,
		score, time.Now(), videoID)
	if err != nil {
		return fmt.Errorf("failed to set score for %s: %w", videoID, err)
	}
	return nil
}

// DeleteInvalidVideosBefore removes broken rows not touched since cutoff.
// Weekly GC calls this for rows that stayed invalid past the grace window.
func (db *DB) DeleteInvalidVideosBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM videos WHERE is_valid = 0 AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete invalid videos: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ApplyHitDeltas applies buffered hit increments against today's rollup.
func (db *DB) ApplyHitDeltas(ctx context.Context, deltas map[string]int64) error {
	return db.ApplyHitDeltasAt(ctx, time.Now().Format("2006-01-02"), deltas)
}

// ApplyHitDeltasAt applies hit increments in a single transaction: the
// lifetime counter on videos plus the rollup row for the given day. The
// aggregator passes the day each counter was recorded under, so counters
// flushed before midnight still land on the right rollup row.
func (db *DB) ApplyHitDeltasAt(ctx context.Context, day string, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for videoID, n := range deltas {
			if _, err := tx.ExecContext(ctx,
				`UPDATE videos SET hits = hits + ? WHERE video_id = ?`, n, videoID); err != nil {
				return fmt.Errorf("failed to add hits for %s: %w", videoID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO hits_daily (video_id, day, hits) VALUES (?, ?, ?)
				 ON CONFLICT(video_id, day) DO UPDATE SET hits = hits + excluded.hits`,
				videoID, day, n); err != nil {
				return fmt.Errorf("failed to roll up hits for %s: %w", videoID, err)
			}
		}
		return nil
	})
	metrics.RecordDBQuery("hit_flush", "videos", time.Since(start), err)
	return err
}

// RecalculateHitWindows recomputes hits_day, hits_week and hits_month from
// the daily rollups, and prunes rollup rows older than the month window.
func (db *DB) RecalculateHitWindows(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now()
	dayCut := now.AddDate(0, 0, -1).Format("2006-01-02")
	weekCut := now.AddDate(0, 0, -7).Format("2006-01-02")
	monthCut := now.AddDate(0, 0, -30).Format("2006-01-02")

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE videos SET
				hits_day = COALESCE((SELECT SUM(hits) FROM hits_daily d
					WHERE d.video_id = videos.video_id AND d.day >= ?), 0),
				hits_week = COALESCE((SELECT SUM(hits) FROM hits_daily d
					WHERE d.video_id = videos.video_id AND d.day >= ?), 0),
				hits_month = COALESCE((SELECT SUM(hits) FROM hits_daily d
					WHERE d.video_id = videos.video_id AND d.day >= ?), 0)
			WHERE video_id IN (SELECT DISTINCT video_id FROM hits_daily)`,
			dayCut, weekCut, monthCut)
		if err != nil {
			return fmt.Errorf("failed to recalculate hit windows: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM hits_daily WHERE day < ?`, monthCut); err != nil {
			return fmt.Errorf("failed to prune hit rollups: %w", err)
		}
		return nil
	})
}

func (f VideoFilter) whereClause() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.TypeID > 0 {
		clauses = append(clauses, "type_id = ?")
		args = append(args, f.TypeID)
	}
	if f.SubTypeID > 0 {
		clauses = append(clauses, "sub_type_id = ?")
		args = append(args, f.SubTypeID)
	}
	if f.Year > 0 {
		clauses = append(clauses, "year = ?")
		args = append(args, f.Year)
	}
	if f.Area != "" {
		clauses = append(clauses, "area = ?")
		args = append(args, f.Area)
	}
	if f.Language != "" {
		clauses = append(clauses, "language = ?")
		args = append(args, f.Language)
	}
	if f.ShortsCategory != "" {
		clauses = append(clauses, "shorts_category = ?")
		args = append(args, f.ShortsCategory)
	}
	if f.ValidOnly {
		clauses = append(clauses, "is_valid = 1")
	}
	if f.NameLike != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, "%"+f.NameLike+"%")
	}
	if f.ActorLike != "" {
		clauses = append(clauses, "actor LIKE ?")
		args = append(args, "%"+f.ActorLike+"%")
	}
	if f.DirectorLike != "" {
		clauses = append(clauses, "director LIKE ?")
		args = append(args, "%"+f.DirectorLike+"%")
	}
	return buildWhereClause(clauses), args
}

func (f VideoFilter) orderClause() string {
	col := "updated_at"
	switch f.OrderBy {
	case "hits":
		col = "hits"
	case "hits_day":
		col = "hits_day"
	case "hits_week":
		col = "hits_week"
	case "hits_month":
		col = "hits_month"
	case "score":
		col = "score"
	case "year":
		col = "year"
	case "created_at":
		col = "created_at"
	case "quality":
		col = "quality_score"
	case "name":
		col = "name"
	}
	dir := "ASC"
	if f.Descending || f.OrderBy == "" {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, video_id ASC", col, dir)
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideoRow(s rowScanner) (*models.Video, error) {
	var v models.Video
	var sourceNames, playURLs string
	var isValid int

	err := s.Scan(
		&v.VideoID, &v.Name, &v.Year, &v.Area, &v.Language, &v.Actor, &v.Director,
		&v.Content, &v.Tags, &v.Cover, &v.Thumb, &v.Remarks, &v.Score, &v.TypeID, &v.SubTypeID,
		&sourceNames, &v.SourcePriority, &v.QualityScore, &playURLs, &isValid,
		&v.Hits, &v.HitsDay, &v.HitsWeek, &v.HitsMonth,
		&v.PreviewEpisode, &v.PreviewURL, &v.ShortsCategory, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.IsValid = isValid != 0
	if err := json.Unmarshal([]byte(sourceNames), &v.SourceNames); err != nil {
		return nil, fmt.Errorf("corrupt source_names for %s: %w", v.VideoID, err)
	}
	urls, err := models.ParsePlayURLs(playURLs)
	if err != nil {
		return nil, fmt.Errorf("corrupt play_urls for %s: %w", v.VideoID, err)
	}
	v.PlayURLs = urls
	return &v, nil
}

func scanVideos(rows *sql.Rows) ([]*models.Video, error) {
	var out []*models.Video
	for rows.Next() {
		v, err := scanVideoRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
