// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package recommend serves video recommendations. Strategies share one
// engine: content similarity over catalog metadata, collaborative filtering
// over the access log, a trending composite, and per-client
// personalization. Every strategy degrades to trending on failure.
package recommend

import (
	"context"
	"fmt"

	"github.com/vodhive/vodhive/internal/cache"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/kv"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/models"
)

// Strategy selects the recommendation algorithm.
type Strategy string

const (
	StrategyContent       Strategy = "content_based"
	StrategyCollaborative Strategy = "collaborative"
	StrategyTrending      Strategy = "trending"
	StrategyPersonalized  Strategy = "personalized"
	StrategySimilar       Strategy = "similar" // alias for content_based
	StrategyShortsSimilar Strategy = "shorts_similar"
)

// Request describes what to recommend. VideoID anchors the content
// strategies, ClientID the user-centric ones.
type Request struct {
	Strategy   Strategy `json:"strategy"`
	VideoID    string   `json:"video_id,omitempty"`
	ClientID   string   `json:"client_id,omitempty"`
	TypeID     int      `json:"type_id,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	ExcludeIDs []string `json:"exclude_ids,omitempty"`
}

// Response is a ranked recommendation list. Strategy names what actually
// answered, which may be trending after a degrade.
type Response struct {
	Items      []*models.Video `json:"items"`
	Strategy   Strategy        `json:"strategy"`
	Confidence float64         `json:"confidence"`
}

// Engine executes recommendation strategies over the catalog.
type Engine struct {
	db       *database.DB
	kv       *kv.Store
	trending *cache.Cache
	cfg      config.RecommendConfig
}

// New builds an Engine. trending caches composite rankings per
// (type, limit).
func New(db *database.DB, kvStore *kv.Store, trending *cache.Cache, cfg config.RecommendConfig) *Engine {
	return &Engine{db: db, kv: kvStore, trending: trending, cfg: cfg}
}

// Recommend dispatches on the request strategy. Internal failures degrade
// to trending rather than erroring the request.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	if req.Limit <= 0 {
		req.Limit = 10
	}

	var (
		resp *Response
		err  error
	)
	switch req.Strategy {
	case StrategyContent, StrategySimilar:
		resp, err = e.contentBased(ctx, req)
	case StrategyCollaborative:
		resp, err = e.collaborative(ctx, req)
	case StrategyTrending, "":
		resp, err = e.trendingList(ctx, req)
	case StrategyPersonalized:
		resp, err = e.personalized(ctx, req)
	case StrategyShortsSimilar:
		resp, err = e.shortsSimilar(ctx, req)
	default:
		return nil, fmt.Errorf("recommend: unknown strategy %q", req.Strategy)
	}

	if err != nil {
		logging.Warn().Err(err).Str("strategy", string(req.Strategy)).
			Msg("Strategy failed, degrading to trending")
		return e.trendingList(ctx, req)
	}
	return resp, nil
}

// excludeSet builds the exclusion lookup, always covering the anchor video.
func (req Request) excludeSet() map[string]bool {
	out := make(map[string]bool, len(req.ExcludeIDs)+1)
	for _, id := range req.ExcludeIDs {
		out[id] = true
	}
	if req.VideoID != "" {
		out[req.VideoID] = true
	}
	return out
}
