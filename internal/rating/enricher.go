// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package rating enriches catalog rows with scores from an external rating
// provider, caching results and pacing lookups to respect provider limits.
package rating

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/metrics"
	"github.com/vodhive/vodhive/internal/models"
)

// providerName tags mirrored scores on the video row.
const providerName = "tmdb"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ErrDisabled is returned when the enricher is switched off in config.
var ErrDisabled = errors.New("rating: enricher disabled")

// ErrNoMatch is returned when the provider has no plausible match for a
// title. It is recorded as a failed lookup and retried after the backoff.
var ErrNoMatch = errors.New("rating: no match")

// Store is the persistence surface the enricher needs.
type Store interface {
	GetVideo(ctx context.Context, videoID string) (*models.Video, error)
	GetRating(ctx context.Context, videoID string) (*models.Rating, error)
	UpsertRating(ctx context.Context, r *models.Rating) error
	SetVideoScore(ctx context.Context, videoID string, score float64) error
	ListUnratedVideos(ctx context.Context, limit int) ([]string, error)
}

// Enricher looks up titles against the provider and mirrors the results.
type Enricher struct {
	store  Store
	cfg    config.RatingConfig
	client *http.Client
	pacer  *rate.Limiter
}

// New builds an Enricher.
func New(store Store, cfg config.RatingConfig) *Enricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	return &Enricher{
		store:  store,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		pacer:  rate.NewLimiter(rate.Every(delay), 1),
	}
}

// FetchSingle enriches one video. Fresh successes and recent failures are
// served from the ratings table without touching the provider.
func (e *Enricher) FetchSingle(ctx context.Context, videoID string) (*models.Rating, error) {
	if !e.cfg.Enabled {
		return nil, ErrDisabled
	}

	if cached, err := e.store.GetRating(ctx, videoID); err == nil {
		age := time.Since(cached.FetchedAt)
		if cached.Status == StatusSuccess && age < e.cfg.CacheTTL {
			metrics.RatingLookups.WithLabelValues("cached").Inc()
			return cached, nil
		}
		if cached.Status == StatusFailed && age < e.cfg.FailureRetry {
			metrics.RatingLookups.WithLabelValues("skipped").Inc()
			return cached, nil
		}
	} else if !errors.Is(err, database.ErrRatingNotFound) {
		return nil, err
	}

	v, err := e.store.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if err := e.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	match, err := e.lookup(ctx, CleanTitle(v.Name), v.Year)
	if err != nil {
		r := &models.Rating{
			VideoID: videoID, Source: providerName,
			Status: StatusFailed, FetchedAt: time.Now(),
		}
		if upErr := e.store.UpsertRating(ctx, r); upErr != nil {
			return nil, upErr
		}
		metrics.RatingLookups.WithLabelValues("failed").Inc()
		logging.Debug().Err(err).Str("video_id", videoID).Str("name", v.Name).
			Msg("Rating lookup failed")
		return r, nil
	}

	r := &models.Rating{
		VideoID:    videoID,
		ExternalID: match.ID,
		Source:     providerName,
		Score:      match.Score,
		Votes:      match.Votes,
		Status:     StatusSuccess,
		FetchedAt:  time.Now(),
	}
	if err := e.store.UpsertRating(ctx, r); err != nil {
		return nil, err
	}
	if err := e.store.SetVideoScore(ctx, videoID, match.Score); err != nil {
		return nil, err
	}
	metrics.RatingLookups.WithLabelValues("fetched").Inc()
	return r, nil
}

// BatchFetch enriches up to limit videos that have no rating row yet.
// Returns how many lookups succeeded.
func (e *Enricher) BatchFetch(ctx context.Context, limit int) (int, error) {
	if !e.cfg.Enabled {
		return 0, ErrDisabled
	}

	ids, err := e.store.ListUnratedVideos(ctx, limit)
	if err != nil {
		return 0, err
	}

	fetched := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return fetched, ctx.Err()
		}
		r, err := e.FetchSingle(ctx, id)
		if err != nil {
			logging.Error().Err(err).Str("video_id", id).Msg("Rating enrichment failed")
			continue
		}
		if r.Status == StatusSuccess {
			fetched++
		}
	}
	if len(ids) > 0 {
		logging.Info().Int("candidates", len(ids)).Int("fetched", fetched).
			Msg("Rating batch finished")
	}
	return fetched, nil
}

// match is one provider search result.
type match struct {
	ID    string
	Score float64
	Votes int
	Year  int
}

// providerResponse mirrors the provider's search payload.
type providerResponse struct {
	Results []struct {
		ID          int64   `json:"id"`
		Title       string  `json:"title"`
		VoteAverage float64 `json:"vote_average"`
		VoteCount   int     `json:"vote_count"`
		ReleaseDate string  `json:"release_date"`
	} `json:"results"`
}

// lookup searches the provider and returns the first result passing the
// release-year check.
func (e *Enricher) lookup(ctx context.Context, title, year string) (*match, error) {
	if title == "" {
		return nil, ErrNoMatch
	}

	endpoint, err := url.Parse(e.cfg.ProviderURL)
	if err != nil {
		return nil, fmt.Errorf("rating: bad provider url: %w", err)
	}
	q := endpoint.Query()
	q.Set("query", title)
	if year != "" {
		q.Set("year", year)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rating: provider returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("rating: bad provider payload: %w", err)
	}

	wantYear, _ := strconv.Atoi(year)
	for _, res := range pr.Results {
		gotYear := releaseYear(res.ReleaseDate)
		if !yearMatches(wantYear, gotYear) {
			continue
		}
		if res.VoteCount == 0 {
			continue
		}
		return &match{
			ID:    strconv.FormatInt(res.ID, 10),
			Score: res.VoteAverage,
			Votes: res.VoteCount,
			Year:  gotYear,
		}, nil
	}
	return nil, ErrNoMatch
}

// yearMatches accepts a result when either side lacks a year or they are
// within one year of each other. Upstream release years are often off by
// one around festival premieres.
func yearMatches(want, got int) bool {
	if want == 0 || got == 0 {
		return true
	}
	diff := want - got
	return diff >= -1 && diff <= 1
}

func releaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, _ := strconv.Atoi(date[:4])
	return y
}

// Episode and season labels stripped from titles before lookup, so
// "庆余年第二季" searches as "庆余年".
var episodeLabel = regexp.MustCompile(
	`第\s*[0-9一二三四五六七八九十]+\s*[季部集期]|更新至.*$|全\s*\d+\s*[集期]|[Ss]\d{1,2}([Ee]\d{1,3})?`)

// Trailing quality and language markers, same set the version grouping
// peels off titles.
var titleMarkers = regexp.MustCompile(
	`(?i)(4K|2160P|1080P|720P|蓝光|超清|高清|HD|国语|粤语|原声|英语|日语|韩语|中字|字幕)+$`)

// CleanTitle strips episode labels and trailing quality/language markers so
// the provider sees the bare work title.
func CleanTitle(name string) string {
	s := episodeLabel.ReplaceAllString(name, "")
	s = titleMarkers.ReplaceAllString(strings.TrimSpace(s), "")
	return strings.TrimSpace(strings.Trim(s, "-（("))
}
