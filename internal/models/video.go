// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package models

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// PlayEpisode is a single playable episode within an upstream route.
type PlayEpisode struct {
	// Name is the episode label, e.g. "第1集". Unlabeled episodes are
	// auto-labeled by position during cleaning.
	Name string `json:"name"`

	// URL is the playback URL. Always http(s) after cleaning; http is
	// upgraded to https on ingest.
	URL string `json:"url"`
}

// PlayURLs maps an upstream route name (e.g. "hd", "m3u8") to its ordered
// episode list. This is the cleaned form stored on the video row as JSON.
type PlayURLs map[string][]PlayEpisode

// PlaySource is the ordered-list view of one PlayURLs entry, used by the
// read path. Map iteration order is not stable; readers sort by Name.
type PlaySource struct {
	Name     string        `json:"name"`
	Episodes []PlayEpisode `json:"episodes"`
}

// Marshal serializes the play-URL map to its stored JSON form.
func (p PlayURLs) Marshal() (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParsePlayURLs decodes the stored JSON form. An empty string decodes to an
// empty map.
func ParsePlayURLs(s string) (PlayURLs, error) {
	if s == "" {
		return PlayURLs{}, nil
	}
	var p PlayURLs
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return p, nil
}

// EpisodeCount returns the total number of episodes across all routes.
func (p PlayURLs) EpisodeCount() int {
	n := 0
	for _, eps := range p {
		n += len(eps)
	}
	return n
}

// Video is a deduplicated catalog entry. Rows are owned by the catalog
// store: only the collection engine, the dedup-merger and GC mutate them.
type Video struct {
	// VideoID is the stable base-36 fingerprint hash of
	// (name, year, area, first director).
	VideoID string `json:"video_id"`

	Name     string `json:"name"`
	Year     string `json:"year"`
	Area     string `json:"area"`
	Language string `json:"language"`

	// Actor and Director carry the upstream comma-separated name lists.
	// Use ActorList/DirectorList for the split form.
	Actor    string `json:"actor"`
	Director string `json:"director"`

	// Content is the HTML-stripped synopsis.
	Content string `json:"content"`
	Tags    string `json:"tags"`
	Cover   string `json:"cover"`
	Thumb   string `json:"thumb"`
	Remarks string `json:"remarks"`
	Score   float64 `json:"score"`

	// TypeID is the internal taxonomy id (1..9). SubTypeID is 0 when no
	// sub-category applies.
	TypeID    int `json:"type_id"`
	SubTypeID int `json:"sub_type_id,omitempty"`

	// SourceNames is the set of upstream names whose data has been merged
	// into this row. Never empty for a stored row.
	SourceNames []string `json:"source_names"`

	// SourcePriority is the max weight among contributing sources.
	SourcePriority int `json:"source_priority"`

	// QualityScore is a 0-100 completeness score recomputed on every write.
	QualityScore int `json:"quality_score"`

	PlayURLs PlayURLs `json:"play_urls"`

	IsValid bool `json:"is_valid"`

	// Hit totals maintained by the daily rollup.
	Hits      int64 `json:"hits"`
	HitsDay   int64 `json:"hits_day"`
	HitsWeek  int64 `json:"hits_week"`
	HitsMonth int64 `json:"hits_month"`

	// Short-drama preview fields. PreviewEpisode is the 1-based index of
	// the chosen preview episode; zero when unset.
	PreviewEpisode int    `json:"preview_episode,omitempty"`
	PreviewURL     string `json:"preview_url,omitempty"`
	ShortsCategory string `json:"shorts_category,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActorList splits the comma-separated actor field, trimming whitespace and
// dropping empties. Both "," and the full-width "，" are separators.
func (v *Video) ActorList() []string {
	return splitNames(v.Actor)
}

// DirectorList splits the comma-separated director field.
func (v *Video) DirectorList() []string {
	return splitNames(v.Director)
}

// FirstDirector returns the first director name, or "" if none. Only the
// first director participates in the identity fingerprint.
func (v *Video) FirstDirector() string {
	if d := v.DirectorList(); len(d) > 0 {
		return d[0]
	}
	return ""
}

// TagList splits the comma-separated tag field.
func (v *Video) TagList() []string {
	return splitNames(v.Tags)
}

// HasSource reports whether name is already in the merged source set.
func (v *Video) HasSource(name string) bool {
	for _, s := range v.SourceNames {
		if s == name {
			return true
		}
	}
	return false
}

// AddSource adds name to the source set if not present.
func (v *Video) AddSource(name string) {
	if name != "" && !v.HasSource(name) {
		v.SourceNames = append(v.SourceNames, name)
	}
}

func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "，", ",")
	s = strings.ReplaceAll(s, "/", ",")
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
