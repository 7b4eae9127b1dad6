// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "catalog.db"),
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testVideo(id, name string) *models.Video {
	return &models.Video{
		VideoID:  id,
		Name:     name,
		Year:     "2024",
		Area:     "中国大陆",
		Language: "国语",
		Actor:    "张三，李四",
		Director: "王五",
		Content:  "剧情简介",
		TypeID:   1,
		SourceNames: []string{
			"src1",
		},
		QualityScore: 50,
		PlayURLs: models.PlayURLs{
			"src1": {{Name: "第1集", URL: "https://cdn.example/ep1.m3u8"}},
		},
		IsValid: true,
	}
}

func TestUpsertAndGetVideo(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	v := testVideo("abc123", "禁闭岛")
	if err := db.UpsertVideo(ctx, v); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := db.GetVideo(ctx, "abc123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "禁闭岛" || got.Year != "2024" {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if len(got.PlayURLs["src1"]) != 1 || got.PlayURLs["src1"][0].Name != "第1集" {
		t.Errorf("play urls did not roundtrip: %+v", got.PlayURLs)
	}
	if len(got.SourceNames) != 1 || got.SourceNames[0] != "src1" {
		t.Errorf("source names did not roundtrip: %v", got.SourceNames)
	}
}

func TestUpsertPreservesHits(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	v := testVideo("abc123", "某片")
	if err := db.UpsertVideo(ctx, v); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := db.ApplyHitDeltas(ctx, map[string]int64{"abc123": 7}); err != nil {
		t.Fatalf("hit flush failed: %v", err)
	}

	// A re-collection upsert must not reset lifetime hits.
	update := testVideo("abc123", "某片")
	update.Remarks = "更新至12集"
	if err := db.UpsertVideo(ctx, update); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := db.GetVideo(ctx, "abc123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Hits != 7 {
		t.Errorf("expected hits preserved at 7, got %d", got.Hits)
	}
	if got.Remarks != "更新至12集" {
		t.Errorf("expected remarks updated, got %q", got.Remarks)
	}
}

func TestGetVideoNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetVideo(context.Background(), "missing"); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("expected ErrVideoNotFound, got %v", err)
	}
}

func TestListVideosFilterAndOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		v := testVideo(fmt.Sprintf("id%d", i), fmt.Sprintf("片%d", i))
		v.TypeID = 1 + i%2 // types 1 and 2
		if err := db.UpsertVideo(ctx, v); err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
	}
	if err := db.ApplyHitDeltas(ctx, map[string]int64{"id1": 5, "id3": 10}); err != nil {
		t.Fatalf("hit flush failed: %v", err)
	}

	movies, err := db.ListVideos(ctx, VideoFilter{TypeID: 2, OrderBy: "hits", Descending: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, v := range movies {
		if v.TypeID != 2 {
			t.Errorf("filter leaked type %d", v.TypeID)
		}
	}
	if len(movies) != 3 {
		t.Fatalf("expected 3 videos of type 2, got %d", len(movies))
	}
	if movies[0].VideoID != "id3" {
		t.Errorf("expected id3 (10 hits) first, got %s", movies[0].VideoID)
	}

	count, err := db.CountVideos(ctx, VideoFilter{TypeID: 2})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestFindExistingChain(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	v := testVideo("base1", "流浪地球")
	v.Year = "2019"
	v.Director = "郭帆,龚格尔"
	v.QualityScore = 80
	if err := db.UpsertVideo(ctx, v); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Level 1: exact id.
	got, err := db.FindExisting(ctx, "base1", "", 0, "", "", false)
	if err != nil || got.VideoID != "base1" {
		t.Errorf("id match failed: %v", err)
	}

	// Level 2: name + year + area.
	got, err = db.FindExisting(ctx, "", "流浪地球", 2019, "中国大陆", "", false)
	if err != nil || got.VideoID != "base1" {
		t.Errorf("name+year+area match failed: %v", err)
	}

	// Level 3: name + year.
	got, err = db.FindExisting(ctx, "", "流浪地球", 2019, "", "", false)
	if err != nil || got.VideoID != "base1" {
		t.Errorf("name+year match failed: %v", err)
	}

	// Level 4: director containment against the stored director list.
	got, err = db.FindExisting(ctx, "", "流浪地球", 0, "", "郭帆", false)
	if err != nil || got.VideoID != "base1" {
		t.Errorf("name+director match failed: %v", err)
	}

	// Level 5: bare name, incoming record has neither year nor director.
	got, err = db.FindExisting(ctx, "", "流浪地球", 0, "", "", false)
	if err != nil || got.VideoID != "base1" {
		t.Errorf("name-only match failed: %v", err)
	}

	// A remake with a different year must not fall through to the
	// name-only level and swallow the original.
	if _, err := db.FindExisting(ctx, "", "流浪地球", 1994, "", "", false); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("different year should not merge by name alone, got %v", err)
	}

	// Strict mode keeps the year levels but skips the loose ones.
	if _, err := db.FindExisting(ctx, "", "流浪地球", 2019, "", "", true); err != nil {
		t.Errorf("strict mode should still match on year, got %v", err)
	}
	if _, err := db.FindExisting(ctx, "", "流浪地球", 0, "", "郭帆", true); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("strict mode should skip the director level, got %v", err)
	}

	// With two same-name rows the name-only level picks the best quality.
	v2 := testVideo("base2", "流浪地球")
	v2.Year = "2023"
	v2.Director = "郭帆"
	v2.QualityScore = 40
	if err := db.UpsertVideo(ctx, v2); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	got, err = db.FindExisting(ctx, "", "流浪地球", 0, "", "", false)
	if err != nil || got.VideoID != "base1" {
		t.Errorf("name-only should pick the best quality row, got %v (%v)", got, err)
	}
}

func TestHitWindowsRecalculation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertVideo(ctx, testVideo("vid1", "某片")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := db.ApplyHitDeltas(ctx, map[string]int64{"vid1": 4}); err != nil {
		t.Fatalf("hit flush failed: %v", err)
	}
	if err := db.RecalculateHitWindows(ctx); err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}

	got, err := db.GetVideo(ctx, "vid1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Hits != 4 || got.HitsDay != 4 || got.HitsWeek != 4 || got.HitsMonth != 4 {
		t.Errorf("expected all windows at 4, got %d/%d/%d/%d",
			got.Hits, got.HitsDay, got.HitsWeek, got.HitsMonth)
	}
}

func TestTaskLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{
		Kind:     models.TaskKindFull,
		Status:   models.TaskPending,
		Priority: 5,
		Config:   models.TaskConfig{PageStart: 1, PageEnd: -1},
	}
	if err := db.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if task.ID == "" {
		t.Fatal("insert should assign an id")
	}

	next, err := db.NextPendingTask(ctx)
	if err != nil {
		t.Fatalf("next pending failed: %v", err)
	}
	if next.ID != task.ID {
		t.Errorf("expected %s, got %s", task.ID, next.ID)
	}

	now := time.Now()
	next.Status = models.TaskRunning
	next.StartedAt = &now
	next.Progress.Processed = 40
	next.Checkpoint = &models.TaskCheckpoint{SourceIndex: 1, Page: 3, Timestamp: now}
	if err := db.UpdateTask(ctx, next); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.TaskRunning || got.Progress.Processed != 40 {
		t.Errorf("update did not persist: %+v", got)
	}
	if got.Checkpoint == nil || got.Checkpoint.Page != 3 {
		t.Errorf("checkpoint did not persist: %+v", got.Checkpoint)
	}

	n, err := db.CountRunningTasks(ctx)
	if err != nil || n != 1 {
		t.Errorf("expected 1 running task, got %d (%v)", n, err)
	}
}

func TestNextPendingPrefersPriority(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	low := &models.Task{Kind: models.TaskKindFull, Status: models.TaskPending, Priority: 3}
	high := &models.Task{Kind: models.TaskKindIncremental, Status: models.TaskPending, Priority: 8}
	if err := db.InsertTask(ctx, low); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.InsertTask(ctx, high); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	next, err := db.NextPendingTask(ctx)
	if err != nil {
		t.Fatalf("next pending failed: %v", err)
	}
	if next.ID != high.ID {
		t.Errorf("expected high-priority task first, got %s", next.ID)
	}
}

func TestTaskCleanup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	old := time.Now().Add(-40 * 24 * time.Hour)
	task := &models.Task{
		Kind: models.TaskKindFull, Status: models.TaskCompleted,
		Priority: 5, CompletedAt: &old,
	}
	if err := db.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.InsertCollectLogs(ctx, []*models.CollectLog{
		{TaskID: task.ID, Level: "info", Action: "page_done", Message: "page 1"},
	}); err != nil {
		t.Fatalf("log insert failed: %v", err)
	}

	removed, err := db.DeleteTasksBefore(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed task, got %d", removed)
	}
	logs, err := db.ListCollectLogs(ctx, task.ID, 0, 10)
	if err != nil {
		t.Fatalf("list logs failed: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("logs should be pruned with their task, got %d", len(logs))
	}
}

func TestSourceAndHealthRoundtrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	src := &models.Source{
		Name: "src1", BaseURL: "https://cms.example/api.php/provide/vod",
		Weight: 10, Active: true, Format: models.FormatJSON, Family: "maccms10",
	}
	if err := db.InsertSource(ctx, src); err != nil {
		t.Fatalf("insert source failed: %v", err)
	}
	if src.ID == 0 {
		t.Fatal("insert should assign an id")
	}

	h := &models.SourceHealth{
		SourceID: src.ID, Status: models.StatusHealthy,
		LastResponseMs: 120, AvgResponseMs: 150,
		TotalChecks: 10, SuccessChecks: 9, VideoCount: 2400,
		CheckedAt: time.Now(),
	}
	if err := db.UpsertSourceHealth(ctx, h); err != nil {
		t.Fatalf("upsert health failed: %v", err)
	}

	got, err := db.GetSourceHealth(ctx, src.ID)
	if err != nil {
		t.Fatalf("get health failed: %v", err)
	}
	if got.Status != models.StatusHealthy || got.AvgResponseMs != 150 {
		t.Errorf("health roundtrip mismatch: %+v", got)
	}

	// Unchecked sources read as unknown rather than erroring.
	unknown, err := db.GetSourceHealth(ctx, 9999)
	if err != nil {
		t.Fatalf("get unknown health failed: %v", err)
	}
	if unknown.Status != models.StatusUnknown {
		t.Errorf("expected unknown status, got %s", unknown.Status)
	}
}

func TestSearchVideos(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	v1 := testVideo("s1", "流浪地球")
	v1.Actor = "吴京，屈楚萧"
	v1.QualityScore = 30
	v2 := testVideo("s2", "战狼")
	v2.Actor = "吴京"
	v2.QualityScore = 70
	v3 := testVideo("s3", "无关影片")
	v3.Actor = "某人"
	for _, v := range []*models.Video{v1, v2, v3} {
		if err := db.UpsertVideo(ctx, v); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	results, err := db.SearchVideos(ctx, "吴京", VideoFilter{Limit: 10})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results for 吴京, got %d", len(results))
	}
	for _, r := range results {
		if r.VideoID == "s3" {
			t.Error("unrelated video matched")
		}
	}
	if results[0].VideoID != "s2" {
		t.Errorf("the better catalog row should rank first, got %s", results[0].VideoID)
	}
}

func TestAdvancedSearchFacets(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	v1 := testVideo("a1", "流浪地球")
	v1.Director = "郭帆"
	v1.QualityScore = 90
	v2 := testVideo("a2", "流浪地球2")
	v2.Director = "郭帆"
	v2.QualityScore = 80
	v3 := testVideo("a3", "流浪者之歌")
	v3.Director = "别人"
	for _, v := range []*models.Video{v1, v2, v3} {
		if err := db.UpsertVideo(ctx, v); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	videos, total, err := db.AdvancedSearch(ctx, AdvancedSearchParams{
		Keyword:  "流浪",
		Director: "郭帆",
		PageSize: 1,
	})
	if err != nil {
		t.Fatalf("advanced search failed: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}
	if len(videos) != 1 || videos[0].VideoID != "a1" {
		t.Errorf("expected the best-quality row on page 1, got %+v", videos)
	}

	byName, _, err := db.AdvancedSearch(ctx, AdvancedSearchParams{
		Keyword: "流浪",
		OrderBy: "name",
	})
	if err != nil {
		t.Fatalf("name-ordered search failed: %v", err)
	}
	if len(byName) != 3 || byName[0].Name != "流浪地球" {
		t.Errorf("expected name ascending order, got %+v", byName)
	}
}

func TestSuggestions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	quality := map[string]int{"流浪地球": 40, "流浪地球2": 90, "战狼": 60}
	for i, name := range []string{"流浪地球", "流浪地球2", "战狼"} {
		v := testVideo(fmt.Sprintf("g%d", i), name)
		v.QualityScore = quality[name]
		if err := db.UpsertVideo(ctx, v); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	sugg, err := db.Suggestions(ctx, "流浪", 10)
	if err != nil {
		t.Fatalf("suggestions failed: %v", err)
	}
	if len(sugg) != 2 {
		t.Fatalf("expected 2 suggestions, got %v", sugg)
	}
	if sugg[0] != "流浪地球2" {
		t.Errorf("the best-quality suggestion should come first, got %v", sugg)
	}
}

func TestDuplicateGroupsAndReplace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := testVideo("dup-a", "同名片")
	a.QualityScore = 80
	b := testVideo("dup-b", "同名片")
	b.QualityScore = 40
	for _, v := range []*models.Video{a, b} {
		if err := db.UpsertVideo(ctx, v); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	if err := db.ApplyHitDeltas(ctx, map[string]int64{"dup-b": 3}); err != nil {
		t.Fatalf("hit flush failed: %v", err)
	}

	groups, err := db.FindDuplicateGroups(ctx)
	if err != nil {
		t.Fatalf("find groups failed: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Videos) != 2 {
		t.Fatalf("expected one group of two, got %+v", groups)
	}
	if groups[0].Videos[0].VideoID != "dup-a" {
		t.Errorf("higher quality row should lead the group")
	}

	if err := db.ReplaceDuplicates(ctx, a, []string{"dup-b"}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if _, err := db.GetVideo(ctx, "dup-b"); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("absorbed row should be gone, got %v", err)
	}

	// Absorbed rollups move to the survivor.
	if err := db.RecalculateHitWindows(ctx); err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	got, err := db.GetVideo(ctx, "dup-a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.HitsDay != 3 {
		t.Errorf("expected survivor to inherit 3 daily hits, got %d", got.HitsDay)
	}
}

func TestRatingRoundtrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertVideo(ctx, testVideo("r1", "某片")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	unrated, err := db.ListUnratedVideos(ctx, 10)
	if err != nil {
		t.Fatalf("list unrated failed: %v", err)
	}
	if len(unrated) != 1 || unrated[0] != "r1" {
		t.Fatalf("expected r1 unrated, got %v", unrated)
	}

	r := &models.Rating{
		VideoID: "r1", Score: 8.7, Votes: 1234,
		Source: "douban", Status: "success", FetchedAt: time.Now(),
	}
	if err := db.UpsertRating(ctx, r); err != nil {
		t.Fatalf("upsert rating failed: %v", err)
	}

	got, err := db.GetRating(ctx, "r1")
	if err != nil {
		t.Fatalf("get rating failed: %v", err)
	}
	if got.Score != 8.7 || got.Status != "success" {
		t.Errorf("rating roundtrip mismatch: %+v", got)
	}

	unrated, err = db.ListUnratedVideos(ctx, 10)
	if err != nil {
		t.Fatalf("second list unrated failed: %v", err)
	}
	if len(unrated) != 0 {
		t.Errorf("rated video should drop out, got %v", unrated)
	}
}

func TestCategoryMappings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	m := &models.CategoryMapping{SourceFamily: "maccms10", ExtTypeID: 6, TypeID: 1}
	if err := db.UpsertCategoryMapping(ctx, m); err != nil {
		t.Fatalf("upsert mapping failed: %v", err)
	}
	if err := db.UpsertSubCategory(ctx, &models.SubCategory{ParentID: 1, Name: "动作"}); err != nil {
		t.Fatalf("upsert sub failed: %v", err)
	}

	mappings, err := db.ListCategoryMappings(ctx)
	if err != nil || len(mappings) != 1 {
		t.Fatalf("expected 1 mapping, got %d (%v)", len(mappings), err)
	}
	subs, err := db.ListSubCategories(ctx)
	if err != nil || len(subs) != 1 {
		t.Fatalf("expected 1 sub category, got %d (%v)", len(subs), err)
	}
	if subs[0].Name != "动作" {
		t.Errorf("sub category mismatch: %+v", subs[0])
	}
}

func TestCoVisitationPairs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-10 * time.Minute)
	var events []AccessEvent
	for _, client := range []string{"c1", "c2", "c3"} {
		events = append(events,
			AccessEvent{VideoID: "v1", ClientID: client, AccessedAt: base},
			AccessEvent{VideoID: "v2", ClientID: client, AccessedAt: base.Add(time.Minute)},
		)
	}
	events = append(events, AccessEvent{VideoID: "v3", ClientID: "c1", AccessedAt: base.Add(2 * time.Minute)})
	if err := db.InsertAccessEvents(ctx, events); err != nil {
		t.Fatalf("insert access failed: %v", err)
	}

	pairs, err := db.CoVisitationPairs(ctx, time.Now().Add(-time.Hour), 3, 100)
	if err != nil {
		t.Fatalf("covisit query failed: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected one pair above threshold, got %+v", pairs)
	}
	if pairs[0].VideoID != "v1" || pairs[0].OtherVideoID != "v2" || pairs[0].SharedCount != 3 {
		t.Errorf("unexpected pair: %+v", pairs[0])
	}

	history, err := db.ClientHistory(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 distinct videos for c1, got %v", history)
	}
	if history[0] != "v3" {
		t.Errorf("expected the most recent view first, got %v", history)
	}
}
