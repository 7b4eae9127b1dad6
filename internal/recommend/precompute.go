// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package recommend

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/kv"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/models"
)

// neighborKeyPrefix namespaces precomputed neighbor lists in the KV store.
const neighborKeyPrefix = "neighbors:"

// neighborEntry is the stored form of a precomputed neighbor list.
type neighborEntry struct {
	ComputedAt time.Time `json:"computed_at"`
	Confidence float64   `json:"confidence"`
	IDs        []string  `json:"ids"`
}

// precomputedNeighbors serves a content request from the stored neighbor
// list when it survives the exclusions with enough items left.
func (e *Engine) precomputedNeighbors(ctx context.Context, videoID string, exclude map[string]bool, limit int) ([]*models.Video, float64, bool) {
	raw, err := e.kv.Get(neighborKeyPrefix + videoID)
	if err != nil {
		return nil, 0, false
	}
	var entry neighborEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		logging.Warn().Err(err).Str("video_id", videoID).Msg("Corrupt neighbor cache entry")
		return nil, 0, false
	}

	items := make([]*models.Video, 0, limit)
	for _, id := range entry.IDs {
		if len(items) == limit {
			break
		}
		if exclude[id] {
			continue
		}
		v, err := e.db.GetVideo(ctx, id)
		if err != nil || !v.IsValid {
			continue
		}
		items = append(items, v)
	}
	if len(items) < limit {
		return nil, 0, false
	}
	return items, entry.Confidence, true
}

// Precompute refreshes neighbor lists for the hottest videos whose entry is
// missing or older than the refresh window. Returns how many lists were
// rebuilt. The scheduler runs this every six hours.
func (e *Engine) Precompute(ctx context.Context, hotCount int) (int, error) {
	if hotCount <= 0 {
		hotCount = 100
	}
	hot, err := e.db.ListVideos(ctx, database.VideoFilter{
		ValidOnly: true, OrderBy: "hits", Descending: true, Limit: hotCount,
	})
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, v := range hot {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if fresh, err := e.neighborsFresh(v.VideoID); err == nil && fresh {
			continue
		}
		if err := e.computeNeighbors(ctx, v); err != nil {
			logging.Error().Err(err).Str("video_id", v.VideoID).Msg("Neighbor precompute failed")
			continue
		}
		refreshed++
	}
	if refreshed > 0 {
		logging.Info().Int("refreshed", refreshed).Msg("Neighbor precompute finished")
	}
	return refreshed, nil
}

// neighborsFresh reports whether the stored entry is younger than the
// covisit window.
func (e *Engine) neighborsFresh(videoID string) (bool, error) {
	raw, err := e.kv.Get(neighborKeyPrefix + videoID)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var entry neighborEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false, nil
	}
	return time.Since(entry.ComputedAt) < e.cfg.CovisitWindow, nil
}

// computeNeighbors ranks content candidates for anchor and stores the top
// NeighborCount ids with the list's mean similarity.
func (e *Engine) computeNeighbors(ctx context.Context, anchor *models.Video) error {
	candidates, err := e.contentCandidates(ctx, anchor)
	if err != nil {
		return err
	}

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scored{c.VideoID, similarity(anchor, c)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > e.cfg.NeighborCount {
		ranked = ranked[:e.cfg.NeighborCount]
	}

	entry := neighborEntry{ComputedAt: time.Now()}
	sum := 0.0
	for _, r := range ranked {
		entry.IDs = append(entry.IDs, r.id)
		sum += r.score
	}
	if len(ranked) > 0 {
		entry.Confidence = sum / float64(len(ranked))
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return e.kv.Set(neighborKeyPrefix+anchor.VideoID, raw, 0)
}
