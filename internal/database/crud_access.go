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
)

// AccessEvent is one detail-view access used for co-visitation analysis.
type AccessEvent struct {
	VideoID    string
	ClientID   string
	AccessedAt time.Time
}

// InsertAccessEvents appends detail-view accesses in one transaction.
func (db *DB) InsertAccessEvents(ctx context.Context, events []AccessEvent) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO access_logs (video_id, client_id, accessed_at) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare access insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, e := range events {
			at := e.AccessedAt
			if at.IsZero() {
				at = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, e.VideoID, e.ClientID, at); err != nil {
				return fmt.Errorf("failed to insert access event: %w", err)
			}
		}
		return nil
	})
}

// CoVisit counts how often a pair of videos was viewed by the same client.
type CoVisit struct {
	VideoID      string
	OtherVideoID string
	SharedCount  int
}

// CoVisitationPairs returns pairs of videos viewed by the same client
// within the window, with at least minShared distinct clients per pair.
// Used by the collaborative recommender and the neighbor precompute.
func (db *DB) CoVisitationPairs(ctx context.Context, since time.Time, minShared, limit int) ([]CoVisit, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10000
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.video_id, b.video_id, COUNT(DISTINCT a.client_id) AS shared
		FROM access_logs a
		JOIN access_logs b
			ON a.client_id = b.client_id
			AND a.video_id < b.video_id
		WHERE a.client_id != '' AND a.accessed_at >= ? AND b.accessed_at >= ?
		GROUP BY a.video_id, b.video_id
		HAVING shared >= ?
		ORDER BY shared DESC
		LIMIT ?`, since, since, minShared, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query co-visitation pairs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CoVisit
	for rows.Next() {
		var cv CoVisit
		if err := rows.Scan(&cv.VideoID, &cv.OtherVideoID, &cv.SharedCount); err != nil {
			return nil, err
		}
		out = append(out, cv)
	}
	return out, rows.Err()
}

// ClientHistory returns the most recent distinct videos a client viewed.
func (db *DB) ClientHistory(ctx context.Context, clientID string, limit int) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT video_id
		FROM access_logs WHERE client_id = ?
		GROUP BY video_id ORDER BY MAX(accessed_at) DESC LIMIT ?`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query client history: %w", err)
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

// CandidateCount is a recommendation candidate and how many similar clients
// back it.
type CandidateCount struct {
	VideoID string
	Backers int
}

// CollaborativeCandidates finds videos watched by clients who share at
// least minShared titles with the target client, excluding what the client
// already watched, ranked by how many of those clients watched each.
func (db *DB) CollaborativeCandidates(ctx context.Context, clientID string, minShared, limit int) ([]CandidateCount, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		WITH mine AS (
			SELECT DISTINCT video_id FROM access_logs WHERE client_id = ?
		),
		peers AS (
			SELECT a.client_id, COUNT(DISTINCT a.video_id) AS shared
			FROM access_logs a
			JOIN mine m ON a.video_id = m.video_id
			WHERE a.client_id != ? AND a.client_id != ''
			GROUP BY a.client_id
			HAVING shared >= ?
		)
		SELECT a.video_id, COUNT(DISTINCT a.client_id) AS backers
		FROM access_logs a
		JOIN peers p ON a.client_id = p.client_id
		WHERE a.video_id NOT IN (SELECT video_id FROM mine)
		GROUP BY a.video_id
		ORDER BY backers DESC
		LIMIT ?`, clientID, clientID, minShared, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaborative candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CandidateCount
	for rows.Next() {
		var c CandidateCount
		if err := rows.Scan(&c.VideoID, &c.Backers); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteAccessEventsBefore prunes raw access events older than the cutoff.
func (db *DB) DeleteAccessEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM access_logs WHERE accessed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune access events: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
