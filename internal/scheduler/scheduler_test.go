// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vodhive/vodhive/internal/cache"
	"github.com/vodhive/vodhive/internal/catalog"
	"github.com/vodhive/vodhive/internal/classify"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/health"
	"github.com/vodhive/vodhive/internal/hits"
	"github.com/vodhive/vodhive/internal/kv"
	"github.com/vodhive/vodhive/internal/models"
	"github.com/vodhive/vodhive/internal/rating"
	"github.com/vodhive/vodhive/internal/recommend"
	"github.com/vodhive/vodhive/internal/tasks"
	"github.com/vodhive/vodhive/internal/upstream"
)

type testEnv struct {
	db        *database.DB
	kv        *kv.Store
	manager   *tasks.Manager
	scheduler *Scheduler
}

func newTestEnv(t *testing.T, cfg config.SchedulerConfig) *testEnv {
	t.Helper()
	dbCfg := &config.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "sched.db"),
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
	db, err := database.New(dbCfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	kvStore, err := kv.Open("")
	if err != nil {
		t.Fatalf("failed to open kv store: %v", err)
	}
	t.Cleanup(func() { _ = kvStore.Close() })

	collectCfg := config.CollectConfig{
		BatchSize: 5, MaxRetries: 0, RequestTimeout: time.Second,
	}
	client := upstream.New(collectCfg)
	manager := tasks.New(db)
	tracker := hits.New(kvStore, db, config.HitsConfig{BatchSize: 100, FlushInterval: time.Minute})
	cat := catalog.New(db, classify.New(db, 0), config.CatalogConfig{})
	healthTracker := health.New(db, client, config.HealthConfig{
		MaxConsecutiveFailures: 5, SlowResponse: time.Second,
		CheckPacing: 0, CheckTimeout: time.Second,
	})
	enricher := rating.New(db, config.RatingConfig{Enabled: false})
	trendingCache := cache.New(time.Minute)
	t.Cleanup(trendingCache.Close)
	recommender := recommend.New(db, kvStore, trendingCache, config.RecommendConfig{
		NeighborCount: 10, CovisitWindow: 7 * 24 * time.Hour, MinSharedTitles: 2,
	})

	s := New(db, kvStore, tracker, manager, cat, healthTracker, nil, enricher, recommender, cfg)
	return &testEnv{db: db, kv: kvStore, manager: manager, scheduler: s}
}

// at builds a deterministic wall-clock instant: 2026-08-17 is a Sunday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 8, day, hour, minute, 0, 0, time.UTC)
}

func taskKinds(t *testing.T, env *testEnv) map[models.TaskKind]int {
	t.Helper()
	list, err := env.manager.List(context.Background(), database.TaskFilter{Limit: 100})
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	out := make(map[models.TaskKind]int)
	for _, task := range list {
		out[task.Kind]++
	}
	return out
}

func TestHourlyQueuesIncrementalCrawl(t *testing.T) {
	env := newTestEnv(t, config.SchedulerConfig{Enabled: true})
	env.scheduler.run(context.Background(), at(18, 14, 0)) // Tuesday 14:00

	kinds := taskKinds(t, env)
	if kinds[models.TaskKindIncremental] != 1 {
		t.Fatalf("expected one incremental task, got %v", kinds)
	}
	if kinds[models.TaskKindFull] != 0 {
		t.Errorf("full crawl must not fire outside the weekly slot, got %v", kinds)
	}

	list, _ := env.manager.List(context.Background(), database.TaskFilter{Limit: 10})
	cfg := list[0].Config
	if cfg.PageEnd != hourlyCrawlPages || cfg.MaxVideos != hourlyCrawlMaxVideos {
		t.Errorf("unexpected hourly crawl bounds: pages=%d max=%d", cfg.PageEnd, cfg.MaxVideos)
	}
}

func TestOffMinuteTickDoesNothing(t *testing.T) {
	env := newTestEnv(t, config.SchedulerConfig{Enabled: true})
	env.scheduler.run(context.Background(), at(18, 14, 37))

	if kinds := taskKinds(t, env); len(kinds) != 0 {
		t.Errorf("expected no tasks on an off-minute tick, got %v", kinds)
	}
}

func TestSlotFiresOnce(t *testing.T) {
	env := newTestEnv(t, config.SchedulerConfig{Enabled: true})
	ctx := context.Background()

	now := at(18, 14, 0)
	env.scheduler.run(ctx, now)
	env.scheduler.run(ctx, now.Add(20*time.Second))
	env.scheduler.run(ctx, now.Add(40*time.Second))

	if kinds := taskKinds(t, env); kinds[models.TaskKindIncremental] != 1 {
		t.Errorf("the 14:00 slot fired more than once: %v", kinds)
	}
}

func TestDailyPrunesAccessLog(t *testing.T) {
	env := newTestEnv(t, config.SchedulerConfig{Enabled: true})
	ctx := context.Background()

	old := database.AccessEvent{
		VideoID: "v1", ClientID: "c1",
		AccessedAt: time.Now().Add(-45 * 24 * time.Hour),
	}
	recent := database.AccessEvent{
		VideoID: "v2", ClientID: "c1", AccessedAt: time.Now(),
	}
	if err := env.db.InsertAccessEvents(ctx, []database.AccessEvent{old, recent}); err != nil {
		t.Fatalf("failed to seed access events: %v", err)
	}

	env.scheduler.run(ctx, at(18, 2, 0)) // Tuesday 02:00

	history, err := env.db.ClientHistory(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 || history[0] != "v2" {
		t.Errorf("expected only the recent event to survive, got %v", history)
	}

	// 02:00 also queues the larger incremental crawl.
	list, _ := env.manager.List(ctx, database.TaskFilter{Limit: 10})
	foundDaily := false
	for _, task := range list {
		if task.Config.MaxVideos == dailyCrawlMaxVideos {
			foundDaily = true
		}
	}
	if !foundDaily {
		t.Error("expected the daily incremental crawl to be queued")
	}
}

func TestWeeklyQueuesFullCrawl(t *testing.T) {
	env := newTestEnv(t, config.SchedulerConfig{Enabled: true})
	env.scheduler.run(context.Background(), at(16, 3, 0)) // Sunday 03:00

	if kinds := taskKinds(t, env); kinds[models.TaskKindFull] != 1 {
		t.Fatalf("expected the weekly full crawl, got %v", kinds)
	}
}

func TestWeeklySlotRequiresSunday(t *testing.T) {
	env := newTestEnv(t, config.SchedulerConfig{Enabled: true})
	env.scheduler.run(context.Background(), at(17, 3, 0)) // Monday 03:00

	if kinds := taskKinds(t, env); kinds[models.TaskKindFull] != 0 {
		t.Errorf("full crawl fired on a Monday: %v", kinds)
	}
}

func TestSixHourlyAlertsDegradedSources(t *testing.T) {
	var hooks atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		hooks.Add(1)
	}))
	defer hook.Close()

	env := newTestEnv(t, config.SchedulerConfig{Enabled: true, WebhookURL: hook.URL})
	ctx := context.Background()

	src := &models.Source{ID: 7, Name: "flaky", BaseURL: "http://flaky.example", Active: true}
	if err := env.db.InsertSource(ctx, src); err != nil {
		t.Fatalf("failed to insert source: %v", err)
	}
	bad := &models.SourceHealth{
		SourceID: src.ID, Status: models.StatusError,
		ConsecutiveFailures: 4, LastError: "connection refused",
	}
	if err := env.db.UpsertSourceHealth(ctx, bad); err != nil {
		t.Fatalf("failed to seed health: %v", err)
	}

	env.scheduler.run(ctx, at(18, 12, 0)) // Tuesday 12:00, a %6 slot
	if got := hooks.Load(); got != 1 {
		t.Errorf("expected one webhook delivery, got %d", got)
	}
}

func TestSixHourlyStaysQuietWhenHealthy(t *testing.T) {
	var hooks atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hooks.Add(1)
	}))
	defer hook.Close()

	env := newTestEnv(t, config.SchedulerConfig{Enabled: true, WebhookURL: hook.URL})
	ctx := context.Background()

	src := &models.Source{ID: 7, Name: "steady", BaseURL: "http://steady.example", Active: true}
	if err := env.db.InsertSource(ctx, src); err != nil {
		t.Fatalf("failed to insert source: %v", err)
	}
	good := &models.SourceHealth{SourceID: src.ID, Status: models.StatusHealthy, TotalChecks: 10, SuccessChecks: 10}
	if err := env.db.UpsertSourceHealth(ctx, good); err != nil {
		t.Fatalf("failed to seed health: %v", err)
	}

	env.scheduler.run(ctx, at(18, 12, 0))
	if got := hooks.Load(); got != 0 {
		t.Errorf("healthy fleet must not alert, got %d deliveries", got)
	}
}
