// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vodhive/vodhive/internal/cleaner"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/kv"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/models"
)

const (
	// linkFailLimit is how many consecutive sweep failures a play URL
	// survives before the video is marked broken.
	linkFailLimit = 3

	// linkFailTTL bounds the failure streak so a video skipped by later
	// sweeps does not carry a stale count forever.
	linkFailTTL = 7 * 24 * time.Hour

	linkFailPrefix = "linkfail:"
)

// LinkChecker probes stored play URLs and retires videos whose routes have
// gone dark. Failures must persist across sweeps before a video flips to
// invalid; one flaky CDN response is not enough.
type LinkChecker struct {
	db      *database.DB
	kv      *kv.Store
	client  *http.Client
	limiter *rate.Limiter
}

// NewLinkChecker builds a checker. Pacing and timeout come from the health
// config so link probes follow the same limits as source probes.
func NewLinkChecker(db *database.DB, kvStore *kv.Store, cfg config.HealthConfig) *LinkChecker {
	pacing := cfg.CheckPacing
	if pacing <= 0 {
		pacing = 500 * time.Millisecond
	}
	timeout := cfg.CheckTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LinkChecker{
		db:      db,
		kv:      kvStore,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(pacing), 1),
	}
}

// Sweep probes up to limit valid videos and marks persistent failures
// invalid. Returns how many videos were checked and how many were retired.
func (c *LinkChecker) Sweep(ctx context.Context, limit int) (checked, invalidated int, err error) {
	videos, err := c.db.ListVideos(ctx, database.VideoFilter{
		ValidOnly: true,
		Limit:     limit,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("link sweep listing failed: %w", err)
	}

	for _, v := range videos {
		if ctx.Err() != nil {
			return checked, invalidated, ctx.Err()
		}
		url := firstPlayURL(v)
		if url == "" {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return checked, invalidated, err
		}
		checked++

		if c.probe(ctx, url) {
			_ = c.kv.Delete(linkFailPrefix + v.VideoID)
			continue
		}
		streak, err := c.kv.AddInt(linkFailPrefix+v.VideoID, 1, linkFailTTL)
		if err != nil {
			logging.Warn().Err(err).Str("video_id", v.VideoID).Msg("Failed to record link failure")
			continue
		}
		if streak < linkFailLimit {
			continue
		}
		if err := c.db.SetVideoValidity(ctx, v.VideoID, false); err != nil {
			logging.Error().Err(err).Str("video_id", v.VideoID).Msg("Failed to invalidate video")
			continue
		}
		_ = c.kv.Delete(linkFailPrefix + v.VideoID)
		invalidated++
		logging.Info().
			Str("video_id", v.VideoID).
			Str("name", v.Name).
			Msg("Retired video with dead play URLs")
	}
	return checked, invalidated, nil
}

// probe issues a HEAD and falls back to GET for servers that reject HEAD.
// Any 2xx or 3xx counts as alive.
func (c *LinkChecker) probe(ctx context.Context, url string) bool {
	if ok, retryGet := c.request(ctx, http.MethodHead, url); ok || !retryGet {
		return ok
	}
	ok, _ := c.request(ctx, http.MethodGet, url)
	return ok
}

// request returns (alive, retry-with-GET).
func (c *LinkChecker) request(ctx context.Context, method, url string) (bool, bool) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false, false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode < 400 {
		return true, false
	}
	// Some CDN edges reject HEAD outright.
	retry := method == http.MethodHead &&
		(resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented)
	return false, retry
}

// firstPlayURL picks the first episode of the best play route, which is the
// URL the frontend would hit first.
func firstPlayURL(v *models.Video) string {
	for _, src := range cleaner.ToPlaySources(v.PlayURLs) {
		for _, ep := range src.Episodes {
			if ep.URL != "" {
				return ep.URL
			}
		}
	}
	return ""
}
