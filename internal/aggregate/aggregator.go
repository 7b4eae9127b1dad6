// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package aggregate serves list browsing. The catalog answers first; when
// it has nothing for a filter the request fans out to the live upstreams,
// deduplicates their answers and returns the merged page.
package aggregate

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vodhive/vodhive/internal/cache"
	"github.com/vodhive/vodhive/internal/cleaner"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/models"
	"github.com/vodhive/vodhive/internal/parser"
	"github.com/vodhive/vodhive/internal/upstream"
)

// minPostFilterRows guards the class post-filter: filtering below this many
// rows serves the unfiltered set instead.
const minPostFilterRows = 3

// Params selects and orders a listing.
type Params struct {
	TypeID    int    `json:"type_id,omitempty"`
	SubTypeID int    `json:"sub_type_id,omitempty"`
	Year      int    `json:"year,omitempty"`
	Area      string `json:"area,omitempty"`
	Class     string `json:"class,omitempty"`
	Sort      string `json:"sort,omitempty"` // hits | score | recency
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// Options control where the answer may come from.
type Options struct {
	// CacheOnly forbids the live fan-out; an empty catalog answer stays
	// empty.
	CacheOnly bool

	// IncludeWelfare admits welfare-flagged sources into the fan-out. The
	// global config flag must also be on.
	IncludeWelfare bool
}

// Result is an aggregated listing plus its provenance.
type Result struct {
	Videos      []*models.Video `json:"videos"`
	Total       int             `json:"total"`
	FromCatalog bool            `json:"from_catalog"`
	Succeeded   []string        `json:"succeeded,omitempty"`
	Failed      []string        `json:"failed,omitempty"`
}

// Aggregator answers list requests catalog-first with a live fallback.
type Aggregator struct {
	db     *database.DB
	client *upstream.Client
	lists  *cache.Cache
	cfg    config.AggregateConfig
}

// New builds an Aggregator. lists caches whole catalog answers keyed by
// their params.
func New(db *database.DB, client *upstream.Client, lists *cache.Cache, cfg config.AggregateConfig) *Aggregator {
	return &Aggregator{db: db, client: client, lists: lists, cfg: cfg}
}

// Aggregate serves one list request.
func (a *Aggregator) Aggregate(ctx context.Context, p Params, opts Options) (*Result, error) {
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.Page <= 0 {
		p.Page = 1
	}

	key := cache.GenerateKey("aggregate", p)
	if cached, ok := a.lists.Get(key); ok {
		if r, ok := cached.(*Result); ok {
			return r, nil
		}
	}

	r, err := a.fromCatalog(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(r.Videos) > 0 {
		a.lists.Set(key, r)
		return r, nil
	}
	if opts.CacheOnly {
		return r, nil
	}

	live, err := a.fromUpstreams(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	return live, nil
}

// fromCatalog reads the stored listing for the filter.
func (a *Aggregator) fromCatalog(ctx context.Context, p Params) (*Result, error) {
	filter := database.VideoFilter{
		TypeID:     p.TypeID,
		SubTypeID:  p.SubTypeID,
		Year:       p.Year,
		Area:       p.Area,
		ValidOnly:  true,
		OrderBy:    sortColumn(p.Sort),
		Descending: true,
		Limit:      p.PageSize,
		Offset:     (p.Page - 1) * p.PageSize,
	}

	videos, err := a.db.ListVideos(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := a.db.CountVideos(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Result{Videos: videos, Total: total, FromCatalog: true}, nil
}

// fromUpstreams fans out to the live sources bounded by the per-source
// timeout. Stragglers are abandoned at the deadline, not joined.
func (a *Aggregator) fromUpstreams(ctx context.Context, p Params, opts Options) (*Result, error) {
	sources, err := a.db.ListSources(ctx, true)
	if err != nil {
		return nil, err
	}
	welfare := opts.IncludeWelfare && a.cfg.Welfare
	var picked []*models.Source
	for _, src := range sources {
		if src.Welfare && !welfare {
			continue
		}
		picked = append(picked, src)
		if len(picked) >= a.cfg.MaxSources {
			break
		}
	}

	var (
		mu        sync.Mutex
		collected []parser.Video
		succeeded []string
		failed    []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range picked {
		g.Go(func() error {
			srcCtx, cancel := context.WithTimeout(gctx, a.cfg.SourceTimeout)
			defer cancel()

			list, err := a.client.FetchList(srcCtx, src, upstream.ListOptions{
				Page: p.Page, TypeID: p.TypeID,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, src.Name)
				logging.Debug().Err(err).Str("source", src.Name).Msg("Live fan-out source failed")
				return nil
			}
			succeeded = append(succeeded, src.Name)
			collected = append(collected, list.List...)
			return nil
		})
	}
	_ = g.Wait()

	videos := dedupeLive(collected)
	if p.Class != "" {
		if filtered := filterByClass(videos, p.Class); len(filtered) >= minPostFilterRows {
			videos = filtered
		}
	}
	if len(videos) > p.PageSize {
		videos = videos[:p.PageSize]
	}

	sort.Strings(succeeded)
	sort.Strings(failed)
	return &Result{
		Videos:    videos,
		Total:     len(videos),
		Succeeded: succeeded,
		Failed:    failed,
	}, nil
}

// dedupeLive collapses fan-out rows on (name, year, area), keeping the more
// complete record, and converts them into catalog-shaped values.
func dedupeLive(rows []parser.Video) []*models.Video {
	type key struct{ name, year, area string }
	seen := make(map[key]int)
	var kept []parser.Video

	for _, row := range rows {
		k := key{strings.TrimSpace(row.Name), row.Year, row.Area}
		if k.name == "" {
			continue
		}
		if idx, ok := seen[k]; ok {
			if completeness(row) > completeness(kept[idx]) {
				kept[idx] = row
			}
			continue
		}
		seen[k] = len(kept)
		kept = append(kept, row)
	}

	out := make([]*models.Video, 0, len(kept))
	for _, row := range kept {
		out = append(out, liveVideo(row))
	}
	return out
}

// completeness ranks a live row by how many display fields it fills.
func completeness(v parser.Video) int {
	score := 0
	for _, field := range []string{v.Pic, v.Actor, v.Director, v.Content, v.Remarks, v.Year} {
		if field != "" {
			score++
		}
	}
	score += len(v.PlayRoutes)
	return score
}

// filterByClass keeps rows mentioning the class token in any descriptive
// field.
func filterByClass(videos []*models.Video, class string) []*models.Video {
	var out []*models.Video
	for _, v := range videos {
		hay := v.Tags + " " + v.Content + " " + v.Name + " " + v.Remarks
		if strings.Contains(hay, class) {
			out = append(out, v)
		}
	}
	return out
}

// liveVideo converts a parsed upstream row for serving. Live rows carry no
// catalog id; they have not been ingested.
func liveVideo(row parser.Video) *models.Video {
	return &models.Video{
		Name:     strings.TrimSpace(row.Name),
		Year:     row.Year,
		Area:     cleaner.Area(row.Area),
		Language: row.Language,
		Actor:    row.Actor,
		Director: row.Director,
		Content:  cleaner.StripHTML(row.Content),
		Tags:     row.Tag,
		Cover:    cleaner.ImageURL(row.Pic),
		Remarks:  row.Remarks,
		Score:    row.Score,
		PlayURLs: cleaner.PlayURLs(row.PlayRoutes),
		IsValid:  true,
	}
}

func sortColumn(sort string) string {
	switch sort {
	case "hits":
		return "hits"
	case "score":
		return "score"
	case "recency", "":
		return "updated_at"
	}
	return "updated_at"
}
