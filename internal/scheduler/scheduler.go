// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package scheduler drives the recurring maintenance routines off wall
// clock time: hourly hit flushes and incremental crawls, nightly deep
// maintenance, a weekly full collection sweep, and six-hourly source
// health summaries with webhook alerting.
package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/vodhive/vodhive/internal/catalog"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/health"
	"github.com/vodhive/vodhive/internal/hits"
	"github.com/vodhive/vodhive/internal/kv"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/models"
	"github.com/vodhive/vodhive/internal/rating"
	"github.com/vodhive/vodhive/internal/recommend"
	"github.com/vodhive/vodhive/internal/tasks"
)

// Retention and crawl sizing for the scheduled routines.
const (
	accessLogRetention   = 30 * 24 * time.Hour
	invalidRetention     = 30 * 24 * time.Hour
	collectLogRetention  = 7 * 24 * time.Hour
	taskRetention        = 30 * 24 * time.Hour
	hourlyCrawlPages     = 3
	hourlyCrawlMaxVideos = 100
	dailyCrawlPages      = 10
	dailyCrawlMaxVideos  = 500
	dailyRatingBatch     = 100
	dailyLinkSweep       = 100
	precomputeHotCount   = 100
	webhookTimeout       = 10 * time.Second
)

// Scheduler fires maintenance routines at fixed wall-clock slots.
type Scheduler struct {
	db          *database.DB
	kv          *kv.Store
	tracker     *hits.Tracker
	manager     *tasks.Manager
	catalog     *catalog.Store
	health      *health.Tracker
	links       *health.LinkChecker
	enricher    *rating.Enricher
	recommender *recommend.Engine
	cfg         config.SchedulerConfig

	webhookClient *http.Client

	// lastSlot deduplicates ticks landing in the same minute.
	lastSlot time.Time
}

// New builds a Scheduler.
func New(db *database.DB, kvStore *kv.Store, tracker *hits.Tracker, manager *tasks.Manager,
	cat *catalog.Store, healthTracker *health.Tracker, links *health.LinkChecker,
	enricher *rating.Enricher, recommender *recommend.Engine, cfg config.SchedulerConfig) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	return &Scheduler{
		db:            db,
		kv:            kvStore,
		tracker:       tracker,
		manager:       manager,
		catalog:       cat,
		health:        healthTracker,
		links:         links,
		enricher:      enricher,
		recommender:   recommender,
		cfg:           cfg,
		webhookClient: &http.Client{Timeout: webhookTimeout},
	}
}

// Serve ticks until the context ends. Disabled schedulers idle so the
// supervision tree keeps its shape regardless of config.
func (s *Scheduler) Serve(ctx context.Context) error {
	if !s.cfg.Enabled {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.cfg.WarmupOnStart {
		s.warmCaches(ctx)
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.run(ctx, now)
		}
	}
}

func (s *Scheduler) String() string { return "scheduler" }

// run fires every routine whose wall-clock slot matches now. A minute
// fires at most once even when several ticks land inside it. A panicking
// routine is reported to the webhook instead of crashing the service loop.
func (s *Scheduler) run(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("Scheduled routine panicked")
			s.post(ctx, alertPayload{
				Event: "scheduler_panic",
				At:    time.Now(),
				Error: fmt.Sprintf("%v", r),
			})
		}
	}()

	slot := now.Truncate(time.Minute)
	if slot.Equal(s.lastSlot) {
		return
	}
	s.lastSlot = slot

	if now.Minute() != 0 {
		return
	}
	s.hourly(ctx)
	if now.Hour()%6 == 0 {
		s.sixHourly(ctx)
	}
	if now.Hour() == 2 {
		s.daily(ctx)
	}
	if now.Weekday() == time.Sunday && now.Hour() == 3 {
		s.weekly(ctx)
	}
}

// hourly flushes buffered hits into rollups, refreshes the warm caches and
// queues a small incremental crawl.
func (s *Scheduler) hourly(ctx context.Context) {
	logging.Debug().Msg("Hourly maintenance started")

	s.tracker.Flush()
	if _, err := s.tracker.Aggregate(ctx); err != nil {
		logging.Error().Err(err).Msg("Hit aggregation failed")
	}
	s.warmCaches(ctx)
	s.enqueue(ctx, models.TaskKindIncremental, models.TaskConfig{
		PageEnd:   hourlyCrawlPages,
		MaxVideos: hourlyCrawlMaxVideos,
	})
}

// daily runs the deep maintenance pass in the quiet hours.
func (s *Scheduler) daily(ctx context.Context) {
	logging.Info().Msg("Daily maintenance started")

	s.enqueue(ctx, models.TaskKindIncremental, models.TaskConfig{
		PageEnd:   dailyCrawlPages,
		MaxVideos: dailyCrawlMaxVideos,
	})

	if _, err := s.enricher.BatchFetch(ctx, dailyRatingBatch); err != nil &&
		!errors.Is(err, rating.ErrDisabled) {
		logging.Error().Err(err).Msg("Rating batch fetch failed")
	}
	if err := s.health.CheckAll(ctx); err != nil {
		logging.Error().Err(err).Msg("Source health sweep failed")
	}
	if s.links != nil {
		if checked, retired, err := s.links.Sweep(ctx, dailyLinkSweep); err != nil {
			logging.Error().Err(err).Msg("Play URL sweep failed")
		} else if retired > 0 {
			logging.Info().Int("checked", checked).Int("retired", retired).
				Msg("Retired videos with dead play URLs")
		}
	}
	if n, err := s.db.DeleteAccessEventsBefore(ctx, time.Now().Add(-accessLogRetention)); err != nil {
		logging.Error().Err(err).Msg("Access log cleanup failed")
	} else if n > 0 {
		logging.Info().Int("removed", n).Msg("Pruned old access events")
	}
	if err := s.tracker.CalculateStats(ctx); err != nil {
		logging.Error().Err(err).Msg("Hit window recalculation failed")
	}
	if _, err := s.db.DeleteCollectLogsBefore(ctx, time.Now().Add(-collectLogRetention)); err != nil {
		logging.Error().Err(err).Msg("Collect log cleanup failed")
	}
	if err := s.kv.RunGC(); err != nil {
		logging.Error().Err(err).Msg("KV garbage collection failed")
	}
}

// weekly queues the full collection sweep and the heavyweight catalog
// hygiene jobs.
func (s *Scheduler) weekly(ctx context.Context) {
	logging.Info().Msg("Weekly maintenance started")

	s.enqueue(ctx, models.TaskKindFull, models.TaskConfig{})

	if merged, err := s.catalog.CleanupDuplicates(ctx); err != nil {
		logging.Error().Err(err).Msg("Duplicate cleanup failed")
	} else if merged > 0 {
		logging.Info().Int("merged", merged).Msg("Collapsed duplicate catalog rows")
	}
	if n, err := s.db.DeleteInvalidVideosBefore(ctx, time.Now().Add(-invalidRetention)); err != nil {
		logging.Error().Err(err).Msg("Invalid video cleanup failed")
	} else if n > 0 {
		logging.Info().Int("removed", n).Msg("Pruned long-invalid videos")
	}
	if err := s.db.RebuildSearchIndex(ctx); err != nil {
		logging.Error().Err(err).Msg("Search index rebuild failed")
	}
	if _, err := s.manager.CleanupOld(ctx, taskRetention); err != nil {
		logging.Error().Err(err).Msg("Task cleanup failed")
	}
}

// sixHourly summarizes source health, alerts the webhook when sources are
// degraded and refreshes precomputed recommendation neighbors.
func (s *Scheduler) sixHourly(ctx context.Context) {
	records, err := s.db.ListSourceHealth(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Health summary failed")
		return
	}

	var degraded []*models.SourceHealth
	for _, h := range records {
		if h.Status != models.StatusHealthy && h.Status != models.StatusUnknown {
			degraded = append(degraded, h)
		}
	}
	logging.Info().
		Int("sources", len(records)).
		Int("degraded", len(degraded)).
		Msg("Source health summary")

	if len(degraded) > 0 {
		s.alert(ctx, degraded)
	}

	if s.recommender != nil {
		if _, err := s.recommender.Precompute(ctx, precomputeHotCount); err != nil {
			logging.Error().Err(err).Msg("Neighbor precompute failed")
		}
	}
}

// enqueue creates a scheduled task. A queue already holding a running task
// is fine; the dispatcher serializes execution.
func (s *Scheduler) enqueue(ctx context.Context, kind models.TaskKind, cfg models.TaskConfig) {
	if _, err := s.manager.Create(ctx, kind, 3, cfg); err != nil {
		logging.Error().Err(err).Str("kind", string(kind)).Msg("Failed to queue scheduled task")
	}
}

// warmCaches primes the trending ranking so the first reader after a cache
// expiry does not pay for the recompute.
func (s *Scheduler) warmCaches(ctx context.Context) {
	if s.recommender == nil {
		return
	}
	if _, err := s.recommender.Recommend(ctx, recommend.Request{Strategy: recommend.StrategyTrending}); err != nil {
		logging.Warn().Err(err).Msg("Trending warm-up failed")
	}
}

// alertPayload is the webhook body for degraded sources and scheduler
// failures.
type alertPayload struct {
	Event   string        `json:"event"`
	At      time.Time     `json:"at"`
	Sources []alertSource `json:"sources,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type alertSource struct {
	SourceID            int64  `json:"source_id"`
	Status              string `json:"status"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

// alert POSTs the degraded-source summary to the configured webhook.
func (s *Scheduler) alert(ctx context.Context, degraded []*models.SourceHealth) {
	payload := alertPayload{Event: "source_health_degraded", At: time.Now()}
	for _, h := range degraded {
		payload.Sources = append(payload.Sources, alertSource{
			SourceID:            h.SourceID,
			Status:              string(h.Status),
			ConsecutiveFailures: h.ConsecutiveFailures,
			LastError:           h.LastError,
		})
	}
	s.post(ctx, payload)
}

// post delivers a webhook payload, quietly skipping when no URL is set.
func (s *Scheduler) post(ctx context.Context, payload alertPayload) {
	if s.cfg.WebhookURL == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to encode alert payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to build alert request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.webhookClient.Do(req)
	if err != nil {
		logging.Error().Err(err).Msg("Alert webhook unreachable")
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Error().Str("status", fmt.Sprintf("%d", resp.StatusCode)).Msg("Alert webhook rejected payload")
	}
}
