// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vodhive/vodhive/internal/classify"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/models"
)

// candidatePoolSize bounds how many rows each strategy scores.
const candidatePoolSize = 200

// errNeedsClient marks user-centric requests without a client id; the
// dispatcher degrades them to trending.
var errNeedsClient = errors.New("recommend: request lacks a client id")

// contentBased recommends by metadata similarity to the anchor video.
// Precomputed neighbors answer first; otherwise candidates are gathered in
// tiers (shared actors, same type and area, same type) and scored.
func (e *Engine) contentBased(ctx context.Context, req Request) (*Response, error) {
	if req.VideoID == "" {
		return nil, fmt.Errorf("recommend: content strategy needs a video id")
	}
	anchor, err := e.db.GetVideo(ctx, req.VideoID)
	if err != nil {
		return nil, err
	}
	exclude := req.excludeSet()

	if items, conf, ok := e.precomputedNeighbors(ctx, req.VideoID, exclude, req.Limit); ok {
		return &Response{Items: items, Strategy: StrategyContent, Confidence: conf}, nil
	}

	candidates, err := e.contentCandidates(ctx, anchor)
	if err != nil {
		return nil, err
	}

	type scored struct {
		v     *models.Video
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if exclude[c.VideoID] {
			continue
		}
		ranked = append(ranked, scored{c, similarity(anchor, c)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > req.Limit {
		ranked = ranked[:req.Limit]
	}

	items := make([]*models.Video, 0, len(ranked))
	sum := 0.0
	for _, r := range ranked {
		items = append(items, r.v)
		sum += r.score
	}
	conf := 0.0
	if len(ranked) > 0 {
		conf = sum / float64(len(ranked))
	}
	return &Response{Items: items, Strategy: StrategyContent, Confidence: conf}, nil
}

// contentCandidates gathers candidates tier by tier until the pool is
// comfortable. Later tiers never displace earlier ones.
func (e *Engine) contentCandidates(ctx context.Context, anchor *models.Video) ([]*models.Video, error) {
	pool := make([]*models.Video, 0, candidatePoolSize)
	seen := map[string]bool{anchor.VideoID: true}
	add := func(videos []*models.Video) {
		for _, v := range videos {
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				pool = append(pool, v)
			}
		}
	}

	actors := anchor.ActorList()
	if len(actors) > 3 {
		actors = actors[:3]
	}
	for _, actor := range actors {
		videos, err := e.db.ListVideos(ctx, database.VideoFilter{
			ActorLike: actor, ValidOnly: true,
			OrderBy: "score", Descending: true, Limit: 50,
		})
		if err != nil {
			return nil, err
		}
		add(videos)
	}

	if len(pool) < candidatePoolSize && anchor.Area != "" {
		videos, err := e.db.ListVideos(ctx, database.VideoFilter{
			TypeID: anchor.TypeID, Area: anchor.Area, ValidOnly: true,
			OrderBy: "score", Descending: true, Limit: candidatePoolSize - len(pool),
		})
		if err != nil {
			return nil, err
		}
		add(videos)
	}

	if len(pool) < candidatePoolSize {
		videos, err := e.db.ListVideos(ctx, database.VideoFilter{
			TypeID: anchor.TypeID, ValidOnly: true,
			OrderBy: "score", Descending: true, Limit: candidatePoolSize - len(pool),
		})
		if err != nil {
			return nil, err
		}
		add(videos)
	}
	return pool, nil
}

// Trending composite weights: raw hits carry 0.4, the external score
// (scaled to the hits magnitude) 0.3 and recency 0.3. The recency term is
// seconds since the last update divided by -86400, so a day of staleness
// costs one point.
func trendingScore(v *models.Video, now time.Time) float64 {
	recency := now.Sub(v.UpdatedAt).Seconds() / -86400
	return 0.4*float64(v.Hits) + 0.3*(v.Score*1000) + 0.3*recency
}

// trendingList serves the composite ranking, cached per (type, limit) when
// the request carries no exclusions.
func (e *Engine) trendingList(ctx context.Context, req Request) (*Response, error) {
	cacheable := len(req.ExcludeIDs) == 0
	key := fmt.Sprintf("trending:%d:%d", req.TypeID, req.Limit)
	if cacheable {
		if cached, ok := e.trending.Get(key); ok {
			if resp, ok := cached.(*Response); ok {
				return resp, nil
			}
		}
	}

	pool, err := e.db.ListVideos(ctx, database.VideoFilter{
		TypeID: req.TypeID, ValidOnly: true,
		OrderBy: "hits", Descending: true, Limit: candidatePoolSize,
	})
	if err != nil {
		return nil, err
	}

	exclude := req.excludeSet()
	now := time.Now()
	sort.SliceStable(pool, func(i, j int) bool {
		return trendingScore(pool[i], now) > trendingScore(pool[j], now)
	})

	items := make([]*models.Video, 0, req.Limit)
	for _, v := range pool {
		if exclude[v.VideoID] {
			continue
		}
		items = append(items, v)
		if len(items) == req.Limit {
			break
		}
	}

	resp := &Response{Items: items, Strategy: StrategyTrending, Confidence: 0.5}
	if cacheable {
		e.trending.Set(key, resp)
	}
	return resp, nil
}

// collaborative recommends what similar viewers watched. Clients without
// history, and clients nobody overlaps with, degrade to trending.
func (e *Engine) collaborative(ctx context.Context, req Request) (*Response, error) {
	if req.ClientID == "" {
		return nil, errNeedsClient
	}
	history, err := e.db.ClientHistory(ctx, req.ClientID, 50)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return e.trendingList(ctx, req)
	}

	candidates, err := e.db.CollaborativeCandidates(ctx, req.ClientID,
		e.cfg.MinSharedTitles, candidatePoolSize)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return e.trendingList(ctx, req)
	}

	exclude := req.excludeSet()
	backers := make(map[string]int, len(candidates))
	items := make([]*models.Video, 0, req.Limit)
	for _, c := range candidates {
		if exclude[c.VideoID] {
			continue
		}
		v, err := e.db.GetVideo(ctx, c.VideoID)
		if err != nil {
			continue // candidate deleted since logging
		}
		if !v.IsValid {
			continue
		}
		backers[v.VideoID] = c.Backers
		items = append(items, v)
	}

	// Backers rank first; the external score breaks ties.
	sort.SliceStable(items, func(i, j int) bool {
		if backers[items[i].VideoID] != backers[items[j].VideoID] {
			return backers[items[i].VideoID] > backers[items[j].VideoID]
		}
		return items[i].Score > items[j].Score
	})
	if len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return &Response{Items: items, Strategy: StrategyCollaborative, Confidence: 0.7}, nil
}

// personalized scores candidates against the client's taste profile built
// from their recent history.
func (e *Engine) personalized(ctx context.Context, req Request) (*Response, error) {
	if req.ClientID == "" {
		return nil, errNeedsClient
	}
	history, err := e.db.ClientHistory(ctx, req.ClientID, 50)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return e.trendingList(ctx, req)
	}

	watched := make(map[string]bool, len(history))
	typePref := make(map[int]float64)
	areaPref := make(map[string]float64)
	actorPref := make(map[string]bool)
	for _, id := range history {
		watched[id] = true
		v, err := e.db.GetVideo(ctx, id)
		if err != nil {
			continue
		}
		typePref[v.TypeID] += 1.0 / float64(len(history))
		if v.Area != "" {
			areaPref[v.Area] += 1.0 / float64(len(history))
		}
		for _, a := range v.ActorList() {
			actorPref[a] = true
		}
	}

	pool, err := e.db.ListVideos(ctx, database.VideoFilter{
		TypeID: req.TypeID, ValidOnly: true,
		OrderBy: "hits", Descending: true, Limit: candidatePoolSize,
	})
	if err != nil {
		return nil, err
	}

	exclude := req.excludeSet()
	maxHits := int64(1)
	for _, v := range pool {
		if v.Hits > maxHits {
			maxHits = v.Hits
		}
	}

	type scored struct {
		v     *models.Video
		score float64
	}
	var ranked []scored
	for _, v := range pool {
		if watched[v.VideoID] || exclude[v.VideoID] {
			continue
		}
		actorHits := 0
		for _, a := range v.ActorList() {
			if actorPref[a] {
				actorHits++
			}
		}
		// Taste terms carry 0.9 of the weight; score and popularity only
		// order candidates the profile cannot separate.
		score := 0.45*typePref[v.TypeID] +
			0.25*areaPref[v.Area] +
			0.2*min(float64(actorHits)/2, 1) +
			0.05*(v.Score/10) +
			0.05*(float64(v.Hits)/float64(maxHits))
		ranked = append(ranked, scored{v, score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > req.Limit {
		ranked = ranked[:req.Limit]
	}

	items := make([]*models.Video, 0, len(ranked))
	for _, r := range ranked {
		items = append(items, r.v)
	}
	return &Response{Items: items, Strategy: StrategyPersonalized, Confidence: 0.6}, nil
}

// shortsSimilar recommends within short dramas: same category first, the
// shorts trending pool after, topped off by overall score.
func (e *Engine) shortsSimilar(ctx context.Context, req Request) (*Response, error) {
	exclude := req.excludeSet()
	items := make([]*models.Video, 0, req.Limit)
	seen := make(map[string]bool)
	add := func(videos []*models.Video) {
		for _, v := range videos {
			if len(items) >= req.Limit {
				return
			}
			if exclude[v.VideoID] || seen[v.VideoID] {
				continue
			}
			seen[v.VideoID] = true
			items = append(items, v)
		}
	}

	if req.VideoID != "" {
		anchor, err := e.db.GetVideo(ctx, req.VideoID)
		if err == nil && anchor.ShortsCategory != "" {
			same, err := e.db.ListVideos(ctx, database.VideoFilter{
				TypeID: classify.TypeShortDrama, ShortsCategory: anchor.ShortsCategory,
				ValidOnly: true, OrderBy: "score", Descending: true, Limit: req.Limit * 2,
			})
			if err != nil {
				return nil, err
			}
			add(same)
		}
	}

	if len(items) < req.Limit {
		trendingReq := req
		trendingReq.TypeID = classify.TypeShortDrama
		trendingResp, err := e.trendingList(ctx, trendingReq)
		if err != nil {
			return nil, err
		}
		add(trendingResp.Items)
	}

	if len(items) < req.Limit {
		rest, err := e.db.ListVideos(ctx, database.VideoFilter{
			TypeID: classify.TypeShortDrama, ValidOnly: true,
			OrderBy: "score", Descending: true, Limit: candidatePoolSize,
		})
		if err != nil {
			return nil, err
		}
		add(rest)
	}
	return &Response{Items: items, Strategy: StrategyShortsSimilar, Confidence: 0.6}, nil
}
