// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/vodhive/vodhive/internal/cleaner"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/models"
)

// MergeDuplicates collapses all valid rows carrying the exact name into one.
// The best row by (quality score, recency) survives; play routes and source
// sets union into it, empty fields are back-filled from the absorbed rows,
// and their hit counters move with them. Returns the number of rows removed.
func (s *Store) MergeDuplicates(ctx context.Context, name string) (int, error) {
	candidates, err := s.db.ListVideos(ctx, database.VideoFilter{
		NameLike:  name,
		ValidOnly: true,
		Limit:     200,
	})
	if err != nil {
		return 0, err
	}

	var group []*models.Video
	for _, c := range candidates {
		if c.Name == name {
			group = append(group, c)
		}
	}
	if len(group) < 2 {
		return 0, nil
	}

	sort.SliceStable(group, func(i, j int) bool {
		if group[i].QualityScore != group[j].QualityScore {
			return group[i].QualityScore > group[j].QualityScore
		}
		return group[i].UpdatedAt.After(group[j].UpdatedAt)
	})
	return s.collapse(ctx, group)
}

// CleanupDuplicates sweeps every (name, year) group holding more than one
// row and merges each. It is the weekly housekeeping entry point.
func (s *Store) CleanupDuplicates(ctx context.Context) (int, error) {
	groups, err := s.db.FindDuplicateGroups(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, g := range groups {
		n, err := s.collapse(ctx, g.Videos)
		if err != nil {
			logging.Error().Err(err).Str("name", g.Name).Msg("Duplicate merge failed")
			continue
		}
		removed += n
	}
	if removed > 0 {
		logging.Info().Int("removed", removed).Msg("Duplicate sweep finished")
	}
	return removed, nil
}

// collapse merges group[1:] into group[0] and deletes them. The group must
// already be ordered best-first.
func (s *Store) collapse(ctx context.Context, group []*models.Video) (int, error) {
	if len(group) < 2 {
		return 0, nil
	}

	survivor := *group[0]
	absorbed := make([]string, 0, len(group)-1)
	for _, v := range group[1:] {
		survivor.PlayURLs = cleaner.MergeCleaned(survivor.PlayURLs, v.PlayURLs)
		for _, src := range v.SourceNames {
			survivor.AddSource(src)
		}
		if v.SourcePriority > survivor.SourcePriority {
			survivor.SourcePriority = v.SourcePriority
		}
		if survivor.Year == "" {
			survivor.Year = v.Year
		}
		if survivor.Area == "" {
			survivor.Area = v.Area
		}
		if survivor.Cover == "" {
			survivor.Cover = v.Cover
		}
		if survivor.Actor == "" {
			survivor.Actor = v.Actor
		}
		if survivor.Director == "" {
			survivor.Director = v.Director
		}
		if survivor.Content == "" {
			survivor.Content = v.Content
		}
		if survivor.Tags == "" {
			survivor.Tags = v.Tags
		}
		if survivor.Remarks == "" {
			survivor.Remarks = v.Remarks
		}
		if survivor.Score == 0 {
			survivor.Score = v.Score
		}
		absorbed = append(absorbed, v.VideoID)
	}
	survivor.QualityScore = QualityScore(&survivor)
	survivor.UpdatedAt = time.Now()

	if err := s.db.ReplaceDuplicates(ctx, &survivor, absorbed); err != nil {
		return 0, err
	}
	if err := s.db.UpsertVideo(ctx, &survivor); err != nil {
		return 0, err
	}

	logging.Debug().
		Str("survivor", survivor.VideoID).
		Int("absorbed", len(absorbed)).
		Str("name", survivor.Name).
		Msg("Merged duplicate rows")
	return len(absorbed), nil
}
