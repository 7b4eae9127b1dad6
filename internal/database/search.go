// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/metrics"
	"github.com/vodhive/vodhive/internal/models"
)

// SearchVideos runs a keyword search over name, actor, director, content
// and tags. FTS5 ranks by relevance; builds without the module fall back to
// LIKE over name, actor and director. Filter conditions apply on top.
func (db *DB) SearchVideos(ctx context.Context, keyword string, f VideoFilter) ([]*models.Video, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return db.ListVideos(ctx, f)
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var (
		videos []*models.Video
		err    error
	)
	if db.ftsAvailable {
		videos, err = db.searchFTS(ctx, keyword, f)
		// The default tokenizer cannot split CJK text, so a substring
		// keyword can come back empty even when rows match. LIKE catches
		// those, and also covers a failing FTS query.
		if err != nil || len(videos) == 0 {
			if err != nil {
				logging.Warn().Err(err).Msg("FTS query failed, using LIKE")
			}
			videos, err = db.searchLike(ctx, keyword, f)
		}
	} else {
		videos, err = db.searchLike(ctx, keyword, f)
	}
	metrics.RecordDBQuery("search", "videos", time.Since(start), err)
	return videos, err
}

func (db *DB) searchFTS(ctx context.Context, keyword string, f VideoFilter) ([]*models.Video, error) {
	where, args := f.whereClause()
	cond := "v.rowid IN (SELECT rowid FROM videos_fts WHERE videos_fts MATCH ?)"
	if where == "" {
		where = "WHERE " + cond
	} else {
		where += " AND " + cond
	}
	args = append(args, ftsQuery(keyword))

	query := `SELECT ` + prefixColumns("v") + ` FROM videos v ` + where +
		` ORDER BY v.quality_score DESC, v.updated_at DESC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run fts search: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanVideos(rows)
}

func (db *DB) searchLike(ctx context.Context, keyword string, f VideoFilter) ([]*models.Video, error) {
	where, args := f.whereClause()
	pattern := "%" + keyword + "%"
	cond := "(name LIKE ? OR actor LIKE ? OR director LIKE ?)"
	if where == "" {
		where = "WHERE " + cond
	} else {
		where += " AND " + cond
	}
	args = append(args, pattern, pattern, pattern)

	query := `SELECT ` + videoColumns + ` FROM videos ` + where +
		` ORDER BY quality_score DESC, updated_at DESC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run like search: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanVideos(rows)
}

// Suggestions returns video names starting with the prefix, best catalog
// rows first, for search-as-you-type.
func (db *DB) Suggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 20 {
		limit = 10
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT name FROM videos
		WHERE name LIKE ? AND is_valid = 1
		GROUP BY name
		ORDER BY MAX(quality_score) DESC, name LIMIT ?`,
		escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AdvancedSearchParams composes the multi-facet search clause. Zero-value
// fields do not constrain.
type AdvancedSearchParams struct {
	Keyword  string
	TypeID   int
	Year     int
	Area     string
	Actor    string
	Director string
	OrderBy  string // score | time | name
	Page     int
	PageSize int
}

// AdvancedSearch runs the faceted catalog search: one count query for the
// pagination total, one page query for the rows.
func (db *DB) AdvancedSearch(ctx context.Context, p AdvancedSearchParams) ([]*models.Video, int, error) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 || p.PageSize > 100 {
		p.PageSize = 20
	}

	filter := VideoFilter{
		TypeID:       p.TypeID,
		Year:         p.Year,
		Area:         p.Area,
		NameLike:     strings.TrimSpace(p.Keyword),
		ActorLike:    strings.TrimSpace(p.Actor),
		DirectorLike: strings.TrimSpace(p.Director),
		ValidOnly:    true,
	}
	switch p.OrderBy {
	case "time":
		filter.OrderBy, filter.Descending = "updated_at", true
	case "name":
		filter.OrderBy, filter.Descending = "name", false
	default:
		filter.OrderBy, filter.Descending = "quality", true
	}

	total, err := db.CountVideos(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	filter.Limit = p.PageSize
	filter.Offset = (p.Page - 1) * p.PageSize
	videos, err := db.ListVideos(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// RebuildSearchIndex re-derives the FTS index from the videos table. The
// triggers keep it in sync incrementally; this repairs any drift after bulk
// merges. No-op on builds without the fts5 module.
func (db *DB) RebuildSearchIndex(ctx context.Context) error {
	if !db.ftsAvailable {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO videos_fts(videos_fts) VALUES('rebuild')`); err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}
	return nil
}

// ftsQuery quotes every term so user input cannot inject FTS5 operators.
func ftsQuery(keyword string) string {
	terms := strings.Fields(keyword)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// escapeLike neutralizes LIKE wildcards in user input. SQLite treats the
// pattern literally except % and _.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", "")
	return strings.ReplaceAll(s, "_", "")
}

// prefixColumns qualifies the shared select list with a table alias.
func prefixColumns(alias string) string {
	parts := strings.Split(videoColumns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
