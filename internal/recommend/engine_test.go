// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package recommend

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/vodhive/vodhive/internal/cache"
	"github.com/vodhive/vodhive/internal/classify"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/kv"
	"github.com/vodhive/vodhive/internal/models"
)

func newTestEngine(t *testing.T) (*Engine, *database.DB) {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "rec.db"),
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := kv.Open("")
	if err != nil {
		t.Fatalf("failed to open kv store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	trending := cache.New(time.Minute)
	t.Cleanup(trending.Close)

	e := New(db, store, trending, config.RecommendConfig{
		NeighborCount:   20,
		CovisitWindow:   7 * 24 * time.Hour,
		MinSharedTitles: 3,
	})
	return e, db
}

func seed(t *testing.T, db *database.DB, v *models.Video) {
	t.Helper()
	if v.SourceNames == nil {
		v.SourceNames = []string{"alpha"}
	}
	v.IsValid = true
	if err := db.UpsertVideo(context.Background(), v); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestSimilarityFormula(t *testing.T) {
	anchor := &models.Video{
		TypeID: 1, Area: "大陆", Year: "2019",
		Actor: "吴京,屈楚萧", Tags: "科幻,灾难",
	}
	twin := &models.Video{
		TypeID: 1, Area: "大陆", Year: "2019",
		Actor: "吴京,屈楚萧", Tags: "科幻,灾难",
	}
	// Identical metadata: 0.30 + 0.15 + 0.10 + 0.25 + 0.20 = 1.0
	if got := similarity(anchor, twin); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical rows should score 1.0, got %v", got)
	}

	// Year two apart contributes proportionally: 0.10 * (1 - 2/3).
	offset := &models.Video{TypeID: 1, Area: "大陆", Year: "2021"}
	want := 0.30 + 0.15 + 0.10*(1-2.0/3.0)
	if got := similarity(anchor, offset); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %v, got %v", want, got)
	}

	// One shared actor out of two anchors: 0.25 * 1/2.
	partial := &models.Video{TypeID: 2, Actor: "吴京,张译"}
	want = 0.25 * 1.0 / 2.0
	if got := similarity(anchor, partial); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestContentBasedRanksBySimilarity(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	seed(t, db, &models.Video{VideoID: "anchor", Name: "流浪地球", TypeID: 1,
		Area: "大陆", Year: "2019", Actor: "吴京", Tags: "科幻"})
	seed(t, db, &models.Video{VideoID: "seq2", Name: "流浪地球2", TypeID: 1,
		Area: "大陆", Year: "2023", Actor: "吴京", Tags: "科幻"})
	seed(t, db, &models.Video{VideoID: "far", Name: "舌尖上的中国", TypeID: 7,
		Area: "大陆", Year: "2012"})
	seed(t, db, &models.Video{VideoID: "mid", Name: "独行月球", TypeID: 1,
		Area: "大陆", Year: "2022", Actor: "沈腾", Tags: "科幻,喜剧"})

	resp, err := e.Recommend(ctx, Request{Strategy: StrategyContent, VideoID: "anchor", Limit: 3})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	if resp.Strategy != StrategyContent {
		t.Errorf("expected content strategy, got %s", resp.Strategy)
	}
	if len(resp.Items) == 0 {
		t.Fatal("expected recommendations")
	}
	if resp.Items[0].VideoID != "seq2" {
		t.Errorf("shared-actor same-type row should rank first, got %s", resp.Items[0].VideoID)
	}
	for _, item := range resp.Items {
		if item.VideoID == "anchor" {
			t.Error("the anchor must never recommend itself")
		}
	}
	if resp.Confidence <= 0 {
		t.Errorf("confidence should be positive, got %v", resp.Confidence)
	}
}

func TestContentBasedHonorsExclusions(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	seed(t, db, &models.Video{VideoID: "anchor", Name: "a", TypeID: 1, Actor: "吴京"})
	seed(t, db, &models.Video{VideoID: "b", Name: "b", TypeID: 1, Actor: "吴京"})
	seed(t, db, &models.Video{VideoID: "c", Name: "c", TypeID: 1, Actor: "吴京"})

	resp, err := e.Recommend(ctx, Request{
		Strategy: StrategyContent, VideoID: "anchor", Limit: 5, ExcludeIDs: []string{"b"},
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	for _, item := range resp.Items {
		if item.VideoID == "b" {
			t.Error("excluded id leaked into the result")
		}
	}
}

func TestTrendingScoreComposite(t *testing.T) {
	now := time.Now()
	hot := &models.Video{Hits: 1000, Score: 8.0, UpdatedAt: now}
	stale := &models.Video{Hits: 1000, Score: 8.0, UpdatedAt: now.Add(-48 * time.Hour)}

	if trendingScore(hot, now) <= trendingScore(stale, now) {
		t.Error("recency should lift fresher rows")
	}
	// Two days of staleness costs 0.3*2 points.
	diff := trendingScore(hot, now) - trendingScore(stale, now)
	if math.Abs(diff-0.6) > 1e-6 {
		t.Errorf("expected staleness cost 0.6, got %v", diff)
	}
}

func TestTrendingCachesWithoutExclusions(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	seed(t, db, &models.Video{VideoID: "v1", Name: "a", TypeID: 1, Hits: 10})

	first, err := e.Recommend(ctx, Request{Strategy: StrategyTrending, TypeID: 1, Limit: 5})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	// A new hot row does not appear while the cache entry lives.
	seed(t, db, &models.Video{VideoID: "v2", Name: "b", TypeID: 1, Hits: 1000})
	second, err := e.Recommend(ctx, Request{Strategy: StrategyTrending, TypeID: 1, Limit: 5})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	if len(second.Items) != len(first.Items) {
		t.Error("exclusion-free trending should be served from cache")
	}

	// Exclusions bypass the cache.
	bypass, err := e.Recommend(ctx, Request{
		Strategy: StrategyTrending, TypeID: 1, Limit: 5, ExcludeIDs: []string{"v1"},
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	for _, item := range bypass.Items {
		if item.VideoID == "v1" {
			t.Error("excluded id leaked into the result")
		}
	}
}

func TestCollaborativeFromSharedHistory(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"w1", "w2", "w3", "pick"} {
		seed(t, db, &models.Video{VideoID: id, Name: "n-" + id, TypeID: 2})
	}

	// Three clients share three titles with the target; they all watched
	// "pick", the target has not.
	var events []database.AccessEvent
	for _, client := range []string{"target", "peer1", "peer2", "peer3"} {
		for _, vid := range []string{"w1", "w2", "w3"} {
			events = append(events, database.AccessEvent{VideoID: vid, ClientID: client})
		}
	}
	for _, client := range []string{"peer1", "peer2", "peer3"} {
		events = append(events, database.AccessEvent{VideoID: "pick", ClientID: client})
	}
	if err := db.InsertAccessEvents(ctx, events); err != nil {
		t.Fatalf("seed events failed: %v", err)
	}

	resp, err := e.Recommend(ctx, Request{
		Strategy: StrategyCollaborative, ClientID: "target", Limit: 5,
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	if resp.Strategy != StrategyCollaborative {
		t.Fatalf("expected collaborative, got %s", resp.Strategy)
	}
	if len(resp.Items) != 1 || resp.Items[0].VideoID != "pick" {
		t.Errorf("peers' unwatched title should surface, got %+v", resp.Items)
	}
}

func TestCollaborativeDegradesWithoutHistory(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	seed(t, db, &models.Video{VideoID: "v1", Name: "a", TypeID: 1, Hits: 5})

	resp, err := e.Recommend(ctx, Request{
		Strategy: StrategyCollaborative, ClientID: "nobody", Limit: 5,
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	if resp.Strategy != StrategyTrending {
		t.Errorf("expected trending degrade, got %s", resp.Strategy)
	}
}

func TestPersonalizedPrefersWatchedTypes(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	seed(t, db, &models.Video{VideoID: "watched", Name: "w", TypeID: 4, Area: "日本"})
	seed(t, db, &models.Video{VideoID: "anime", Name: "a", TypeID: 4, Area: "日本", Hits: 5})
	seed(t, db, &models.Video{VideoID: "movie", Name: "m", TypeID: 1, Hits: 500})

	events := []database.AccessEvent{{VideoID: "watched", ClientID: "fan"}}
	if err := db.InsertAccessEvents(ctx, events); err != nil {
		t.Fatalf("seed events failed: %v", err)
	}

	resp, err := e.Recommend(ctx, Request{
		Strategy: StrategyPersonalized, ClientID: "fan", Limit: 2,
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	if len(resp.Items) == 0 {
		t.Fatal("expected recommendations")
	}
	if resp.Items[0].VideoID != "anime" {
		t.Errorf("taste profile should outrank raw popularity, got %s", resp.Items[0].VideoID)
	}
	for _, item := range resp.Items {
		if item.VideoID == "watched" {
			t.Error("already watched titles must be excluded")
		}
	}
}

func TestShortsSimilarPrefersCategory(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	seed(t, db, &models.Video{VideoID: "anchor", Name: "s0", TypeID: classify.TypeShortDrama,
		ShortsCategory: "战神"})
	seed(t, db, &models.Video{VideoID: "same", Name: "s1", TypeID: classify.TypeShortDrama,
		ShortsCategory: "战神", Score: 6})
	seed(t, db, &models.Video{VideoID: "other", Name: "s2", TypeID: classify.TypeShortDrama,
		ShortsCategory: "甜宠", Score: 9, Hits: 100})
	seed(t, db, &models.Video{VideoID: "movie", Name: "m", TypeID: 1, Hits: 9999})

	resp, err := e.Recommend(ctx, Request{
		Strategy: StrategyShortsSimilar, VideoID: "anchor", Limit: 2,
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	if resp.Items[0].VideoID != "same" {
		t.Errorf("same category should come first, got %s", resp.Items[0].VideoID)
	}
	for _, item := range resp.Items {
		if item.TypeID != classify.TypeShortDrama {
			t.Errorf("non-shorts row leaked in: %s", item.VideoID)
		}
	}
}

func TestUnknownStrategyRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.Recommend(context.Background(), Request{Strategy: "psychic"}); err == nil {
		t.Error("unknown strategy should be rejected")
	}
}

func TestPrecomputeStoresAndServesNeighbors(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	seed(t, db, &models.Video{VideoID: "hot", Name: "h", TypeID: 1, Actor: "吴京", Hits: 100})
	for i := 0; i < 5; i++ {
		seed(t, db, &models.Video{
			VideoID: "n" + string(rune('0'+i)), Name: "x", TypeID: 1, Actor: "吴京",
		})
	}

	refreshed, err := e.Precompute(ctx, 1)
	if err != nil {
		t.Fatalf("precompute failed: %v", err)
	}
	if refreshed != 1 {
		t.Errorf("expected 1 refreshed entry, got %d", refreshed)
	}

	// Fresh entries are not recomputed.
	if refreshed, err = e.Precompute(ctx, 1); err != nil || refreshed != 0 {
		t.Errorf("fresh entries should be skipped: %d, %v", refreshed, err)
	}

	items, conf, ok := e.precomputedNeighbors(ctx, "hot", map[string]bool{"hot": true}, 3)
	if !ok {
		t.Fatal("expected precomputed neighbors to answer")
	}
	if len(items) != 3 || conf <= 0 {
		t.Errorf("unexpected neighbor answer: %d items, confidence %v", len(items), conf)
	}
}
