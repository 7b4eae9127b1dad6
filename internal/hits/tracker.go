// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package hits buffers view counters in memory, spills them to the KV store
// in batches, and rolls them up into the durable per-day access log.
package hits

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/kv"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/metrics"
)

// keyPrefix namespaces hit counters in the KV store. The full key is
// "hits:<video_id>:<YYYY-MM-DD>".
const keyPrefix = "hits:"

// counterTTL expires stale KV counters that the hourly aggregation somehow
// missed, so a crashed aggregator cannot leak keys forever.
const counterTTL = 24 * time.Hour

// Tracker accumulates hit deltas per (video, day) in memory. The hot path
// is a map increment under a mutex; everything slower happens on flush.
type Tracker struct {
	kv  *kv.Store
	db  *database.DB
	cfg config.HitsConfig

	mu        sync.Mutex
	counts    map[string]int64 // video_id -> pending delta for today
	total     int64
	lastFlush time.Time
}

// New builds a Tracker.
func New(kvStore *kv.Store, db *database.DB, cfg config.HitsConfig) *Tracker {
	return &Tracker{
		kv:        kvStore,
		db:        db,
		cfg:       cfg,
		counts:    make(map[string]int64),
		lastFlush: time.Now(),
	}
}

// Track records one view. The buffer is spilled to the KV store once the
// pending total reaches the batch size or the flush interval has elapsed.
func (t *Tracker) Track(videoID string) {
	if videoID == "" {
		return
	}

	t.mu.Lock()
	t.counts[videoID]++
	t.total++
	metrics.HitsBuffered.Inc()
	due := t.total >= int64(t.cfg.BatchSize) ||
		time.Since(t.lastFlush) >= t.cfg.FlushInterval
	t.mu.Unlock()

	if due {
		t.Flush()
	}
}

// Flush spills the in-memory buffer to the KV store. The buffer is swapped
// out under the lock and drained outside it so tracking never blocks on
// badger. Failed increments are re-buffered.
func (t *Tracker) Flush() {
	t.mu.Lock()
	if len(t.counts) == 0 {
		t.lastFlush = time.Now()
		t.mu.Unlock()
		return
	}
	pending := t.counts
	t.counts = make(map[string]int64)
	t.total = 0
	t.lastFlush = time.Now()
	t.mu.Unlock()

	day := time.Now().Format("2006-01-02")
	for videoID, delta := range pending {
		key := keyPrefix + videoID + ":" + day
		if _, err := t.kv.AddInt(key, delta, counterTTL); err != nil {
			metrics.HitsFlushErrors.Inc()
			logging.Error().Err(err).Str("video_id", videoID).Msg("Hit flush failed")
			t.rebuffer(videoID, delta)
			continue
		}
		metrics.HitsFlushed.Add(float64(delta))
	}
}

// rebuffer puts a failed delta back so it is retried on the next flush.
func (t *Tracker) rebuffer(videoID string, delta int64) {
	t.mu.Lock()
	t.counts[videoID] += delta
	t.total += delta
	t.mu.Unlock()
}

// Run drives periodic flushes until ctx is cancelled. The threshold flush
// in Track covers busy periods; this ticker covers quiet ones.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Flush()
			return ctx.Err()
		case <-ticker.C:
			t.Flush()
		}
	}
}

// Aggregate moves KV counters into the durable per-day access rollup and
// deletes the consumed keys. The scheduler runs this hourly, after a forced
// flush. Returns the number of counters consumed.
func (t *Tracker) Aggregate(ctx context.Context) (int, error) {
	keys, err := t.kv.Keys(keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("hits: failed to list counters: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	// Counters are grouped by the day they were recorded under, not the day
	// the aggregator happens to run, so a flush surviving past midnight still
	// lands on the right rollup row.
	byDay := make(map[string]map[string]int64)
	consumed := make([]string, 0, len(keys))
	videos := 0
	for _, key := range keys {
		videoID, day, ok := parseKey(key)
		if !ok {
			logging.Warn().Str("key", key).Msg("Skipping malformed hit counter")
			continue
		}
		n, err := t.kv.GetInt(key)
		if err != nil {
			logging.Error().Err(err).Str("key", key).Msg("Failed to read hit counter")
			continue
		}
		if n > 0 {
			if byDay[day] == nil {
				byDay[day] = make(map[string]int64)
			}
			byDay[day][videoID] += n
			videos++
		}
		consumed = append(consumed, key)
	}

	for day, deltas := range byDay {
		if err := t.db.ApplyHitDeltasAt(ctx, day, deltas); err != nil {
			return 0, fmt.Errorf("hits: failed to apply deltas for %s: %w", day, err)
		}
	}
	for _, key := range consumed {
		if err := t.kv.Delete(key); err != nil {
			logging.Error().Err(err).Str("key", key).Msg("Failed to delete consumed counter")
		}
	}

	logging.Info().
		Int("counters", len(consumed)).
		Int("videos", videos).
		Msg("Hit counters aggregated")
	return len(consumed), nil
}

// CalculateStats recomputes the windowed per-video counters from the last
// 30 days of rollups and prunes older rollup rows. Runs daily.
func (t *Tracker) CalculateStats(ctx context.Context) error {
	return t.db.RecalculateHitWindows(ctx)
}

// Pending returns the buffered total, for the health endpoint.
func (t *Tracker) Pending() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// parseKey splits "hits:<video_id>:<day>" into the video id and day. Video
// ids are base-36 and never contain ':'.
func parseKey(key string) (videoID, day string, ok bool) {
	rest, found := strings.CutPrefix(key, keyPrefix)
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
