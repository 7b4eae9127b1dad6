// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/vodhive/vodhive/internal/cleaner"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/models"
)

// Trailing tokens peeled off a title by ExtractMeta. Order matters: the
// longer multi-character tokens must be tried before their substrings.
var (
	languageTokens = []string{"国语", "粤语", "原声", "英语", "日语", "韩语", "中字", "字幕"}
	qualityTokens  = []string{"1080P", "720P", "蓝光", "超清", "高清", "4K", "HD"}
)

// TitleMeta is the decomposition of a catalog title into its base name and
// the trailing language/quality markers some upstreams append.
type TitleMeta struct {
	BaseName string
	Language string
	Quality  string
}

// ExtractMeta peels a trailing quality token and a trailing language token
// off a title. "流浪地球2国语1080P" decomposes into base "流浪地球2",
// language "国语", quality "1080P". Tokens only strip from the end, so
// "国语老师" is left intact.
func ExtractMeta(name string) TitleMeta {
	m := TitleMeta{BaseName: strings.TrimSpace(name)}

	for changed := true; changed; {
		changed = false
		for _, tok := range qualityTokens {
			if rest, ok := trimSuffixFold(m.BaseName, tok); ok {
				if m.Quality == "" {
					m.Quality = tok
				}
				m.BaseName = rest
				changed = true
			}
		}
		for _, tok := range languageTokens {
			if rest, ok := trimSuffixFold(m.BaseName, tok); ok {
				if m.Language == "" {
					m.Language = tok
				}
				m.BaseName = rest
				changed = true
			}
		}
	}
	return m
}

func trimSuffixFold(s, suffix string) (string, bool) {
	if len(s) <= len(suffix) {
		return s, false
	}
	tail := s[len(s)-len(suffix):]
	if strings.EqualFold(tail, suffix) {
		return strings.TrimSpace(strings.TrimRight(s[:len(s)-len(suffix)], " -（(")), true
	}
	return s, false
}

// PlaySourceWithLang is one playable route annotated with the language and
// quality of the version it came from.
type PlaySourceWithLang struct {
	Name     string               `json:"name"`
	Language string               `json:"language"`
	Quality  string               `json:"quality"`
	Episodes []models.PlayEpisode `json:"episodes"`
}

// VersionSet is the merged view over all language/quality versions of one
// title: the highest quality row plus the union of their play routes.
type VersionSet struct {
	Primary   *models.Video        `json:"primary"`
	Sources   []PlaySourceWithLang `json:"sources"`
	Languages []string             `json:"languages"`
	Qualities []string             `json:"qualities"`
}

// FindAllVersions loads the video, extracts its base name and gathers all
// valid rows whose extracted base name equals it and whose year matches or
// is empty. The target itself is always in the result.
func (s *Store) FindAllVersions(ctx context.Context, videoID string) ([]*models.Video, error) {
	target, err := s.db.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	base := ExtractMeta(target.Name).BaseName

	candidates, err := s.db.ListVideos(ctx, database.VideoFilter{
		NameLike:  base,
		ValidOnly: true,
		Limit:     200,
	})
	if err != nil {
		return nil, err
	}

	out := []*models.Video{target}
	for _, c := range candidates {
		if c.VideoID == target.VideoID {
			continue
		}
		if ExtractMeta(c.Name).BaseName != base {
			continue
		}
		if c.Year != "" && target.Year != "" && c.Year != target.Year {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// MergeVersions folds a set of versions of the same title into one view.
// The highest quality row becomes primary; play routes are deduplicated by
// (route name, language) keeping the longer episode list.
func MergeVersions(versions []*models.Video) *VersionSet {
	if len(versions) == 0 {
		return nil
	}

	sorted := make([]*models.Video, len(versions))
	copy(sorted, versions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QualityScore > sorted[j].QualityScore
	})

	set := &VersionSet{Primary: sorted[0]}
	byKey := make(map[string]int)
	langs := make(map[string]bool)
	quals := make(map[string]bool)

	for _, v := range sorted {
		meta := ExtractMeta(v.Name)
		// An undecorated title is the original-audio cut.
		if meta.Language == "" {
			langs["原声"] = true
		} else {
			langs[meta.Language] = true
		}
		if meta.Quality != "" {
			quals[meta.Quality] = true
		}
		for _, ps := range cleaner.ToPlaySources(v.PlayURLs) {
			quality := meta.Quality
			if quality == "" {
				quality = inferRouteQuality(ps.Name)
			}
			entry := PlaySourceWithLang{
				Name:     ps.Name,
				Language: meta.Language,
				Quality:  quality,
				Episodes: ps.Episodes,
			}
			key := ps.Name + "|" + meta.Language
			if idx, ok := byKey[key]; ok {
				if len(entry.Episodes) > len(set.Sources[idx].Episodes) {
					set.Sources[idx] = entry
				}
				continue
			}
			byKey[key] = len(set.Sources)
			set.Sources = append(set.Sources, entry)
		}
	}

	set.Languages = sortedKeys(langs)
	set.Qualities = sortedKeys(quals)
	return set
}

// inferRouteQuality guesses a quality marker from a route name like
// "bd1080" or "hdm3u8" when the title carried none.
func inferRouteQuality(route string) string {
	lower := strings.ToLower(route)
	switch {
	case strings.Contains(lower, "4k"):
		return "4K"
	case strings.Contains(lower, "1080"):
		return "1080P"
	case strings.Contains(lower, "720"):
		return "720P"
	case strings.Contains(lower, "bd"):
		return "蓝光"
	case strings.Contains(lower, "hd"):
		return "高清"
	}
	return ""
}

// PrimaryOnly filters a listing so each (base name, year) group keeps only
// its best quality row, which is what the frontend library view shows.
func PrimaryOnly(videos []*models.Video) []*models.Video {
	type groupKey struct {
		base string
		year string
	}
	best := make(map[groupKey]int)
	var out []*models.Video
	for _, v := range videos {
		key := groupKey{ExtractMeta(v.Name).BaseName, v.Year}
		if idx, ok := best[key]; ok {
			if v.QualityScore > out[idx].QualityScore {
				out[idx] = v
			}
			continue
		}
		best[key] = len(out)
		out = append(out, v)
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
