// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package catalog

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/vodhive/vodhive/internal/classify"
	"github.com/vodhive/vodhive/internal/cleaner"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/metrics"
	"github.com/vodhive/vodhive/internal/models"
	"github.com/vodhive/vodhive/internal/parser"
)

// IngestResult tells the collection engine what happened to a record.
type IngestResult string

const (
	ResultInserted IngestResult = "inserted"
	ResultMerged   IngestResult = "merged"
	ResultSkipped  IngestResult = "skipped"
)

// Store is the write side of the catalog. It normalizes parsed upstream
// records, classifies them, and merges them into the deduplicated table.
type Store struct {
	db         *database.DB
	classifier *classify.Classifier
	cfg        config.CatalogConfig
}

// New builds a Store.
func New(db *database.DB, classifier *classify.Classifier, cfg config.CatalogConfig) *Store {
	return &Store{db: db, classifier: classifier, cfg: cfg}
}

// Normalize converts a parsed upstream record into a catalog row: HTML is
// stripped, the area canonicalized, play routes cleaned, the taxonomy
// assigned and the identity fingerprint computed. The row is not persisted.
func (s *Store) Normalize(ctx context.Context, src *models.Source, pv parser.Video) *models.Video {
	v := &models.Video{
		Name:     strings.TrimSpace(pv.Name),
		Year:     strings.TrimSpace(pv.Year),
		Area:     cleaner.Area(pv.Area),
		Language: strings.TrimSpace(pv.Language),
		Actor:    strings.TrimSpace(pv.Actor),
		Director: strings.TrimSpace(pv.Director),
		Content:  cleaner.StripHTML(pv.Content),
		Tags:     strings.TrimSpace(pv.Tag),
		Cover:    cleaner.ImageURL(pv.Pic),
		Remarks:  strings.TrimSpace(pv.Remarks),
		Score:    pv.Score,
		PlayURLs: cleaner.PlayURLs(pv.PlayRoutes),
		IsValid:  true,
	}

	res := s.classifier.Classify(ctx, classify.Input{
		Name:         v.Name,
		TypeID:       pv.TypeID,
		TypeName:     pv.TypeName,
		Content:      v.Content,
		Remarks:      v.Remarks,
		Actor:        v.Actor,
		Director:     v.Director,
		Tag:          v.Tags,
		SourceFamily: src.Family,
	})
	v.TypeID = res.TypeID
	v.SubTypeID = res.SubTypeID
	if res.TypeID == classify.TypeShortDrama {
		v.ShortsCategory = res.SubTypeName
		if v.ShortsCategory == "" {
			v.ShortsCategory = deriveShortsCategory(v)
		}
	}

	v.AddSource(src.Name)
	v.SourcePriority = src.Weight
	v.VideoID = Fingerprint(v.Name, v.Year, v.Area, v.FirstDirector())
	v.QualityScore = QualityScore(v)
	return v
}

// Ingest merges one parsed record into the catalog. When skipExisting is set
// a record whose fingerprint already has a row is skipped without touching
// it, which keeps incremental crawls cheap.
func (s *Store) Ingest(ctx context.Context, src *models.Source, pv parser.Video, skipExisting bool) (IngestResult, *models.Video, error) {
	incoming := s.Normalize(ctx, src, pv)
	if incoming.Name == "" {
		return ResultSkipped, nil, nil
	}

	existing, err := s.db.FindExisting(ctx, incoming.VideoID, incoming.Name,
		yearInt(incoming.Year), incoming.Area, incoming.FirstDirector(), s.cfg.StrictMerge)
	switch {
	case err == nil:
		if skipExisting {
			metrics.CollectVideosProcessed.WithLabelValues("skipped").Inc()
			return ResultSkipped, existing, nil
		}
		merged := s.merge(existing, incoming, src)
		if err := s.db.UpsertVideo(ctx, merged); err != nil {
			metrics.CollectVideosProcessed.WithLabelValues("failed").Inc()
			return ResultSkipped, nil, err
		}
		metrics.CollectVideosProcessed.WithLabelValues("merged").Inc()
		return ResultMerged, merged, nil

	case errors.Is(err, database.ErrVideoNotFound):
		if incoming.TypeID == classify.TypeShortDrama {
			selectPreview(incoming)
		}
		now := time.Now()
		incoming.CreatedAt = now
		incoming.UpdatedAt = now
		if err := s.db.UpsertVideo(ctx, incoming); err != nil {
			metrics.CollectVideosProcessed.WithLabelValues("failed").Inc()
			return ResultSkipped, nil, err
		}
		metrics.CollectVideosProcessed.WithLabelValues("inserted").Inc()
		return ResultInserted, incoming, nil

	default:
		return ResultSkipped, nil, err
	}
}

// merge folds incoming into existing. Existing play routes win on key
// collisions; the source set is unioned; empty metadata on the existing row
// is back-filled; the quality score is recomputed afterwards.
func (s *Store) merge(existing, incoming *models.Video, src *models.Source) *models.Video {
	out := *existing
	out.PlayURLs = cleaner.MergeCleaned(existing.PlayURLs, incoming.PlayURLs)
	for _, name := range incoming.SourceNames {
		out.AddSource(name)
	}
	if src.Weight > out.SourcePriority {
		out.SourcePriority = src.Weight
	}
	if incoming.Remarks != "" {
		out.Remarks = incoming.Remarks
	}

	if out.Year == "" && incoming.Year != "" {
		logging.Warn().
			Str("video_id", out.VideoID).
			Str("name", out.Name).
			Str("year", incoming.Year).
			Msg("Back-filling year from a later source")
		out.Year = incoming.Year
	}
	if out.Cover == "" {
		out.Cover = incoming.Cover
	}
	if out.Actor == "" {
		out.Actor = incoming.Actor
	}
	if out.Director == "" {
		out.Director = incoming.Director
	}
	if out.Content == "" {
		out.Content = incoming.Content
	}
	if out.Tags == "" {
		out.Tags = incoming.Tags
	}
	if out.Score == 0 {
		out.Score = incoming.Score
	}
	if out.TypeID == classify.TypeShortDrama && out.PreviewURL == "" {
		selectPreview(&out)
	}

	out.QualityScore = QualityScore(&out)
	out.UpdatedAt = time.Now()
	return &out
}

// selectPreview picks the short-drama teaser episode: a random valid
// http(s) episode between the 3rd and the 8th, clamped to the episode
// count. The stored index is 1-based.
func selectPreview(v *models.Video) {
	eps := firstRouteEpisodes(v.PlayURLs)
	var valid []int
	for i, ep := range eps {
		if strings.HasPrefix(ep.URL, "http://") || strings.HasPrefix(ep.URL, "https://") {
			valid = append(valid, i)
		}
	}
	n := len(valid)
	if n == 0 {
		return
	}
	lo := min(3, n)
	hi := min(8, n)
	pick := valid[lo-1+rand.Intn(hi-lo+1)]
	v.PreviewEpisode = pick + 1
	v.PreviewURL = eps[pick].URL
}

// firstRouteEpisodes returns the episode list of the lexically first route,
// so the choice is stable across runs for the same row.
func firstRouteEpisodes(p models.PlayURLs) []models.PlayEpisode {
	var first string
	for name := range p {
		if first == "" || name < first {
			first = name
		}
	}
	if first == "" {
		return nil
	}
	return p[first]
}

// deriveShortsCategory scores the short-drama keyword set against the name
// (weight 3) and the synopsis plus tags (weight 1), returning the best
// scoring category or "" when nothing matches.
func deriveShortsCategory(v *models.Video) string {
	best, bestScore := "", 0
	secondary := v.Content + " " + v.Tags
	for _, kw := range classify.ShortsCategories() {
		score := 3*strings.Count(v.Name, kw) + strings.Count(secondary, kw)
		if score > bestScore {
			best, bestScore = kw, score
		}
	}
	return best
}

func yearInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
