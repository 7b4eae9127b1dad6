// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package cleaner normalizes raw upstream field values before they reach the
// catalog: play-URL strings, image URLs, HTML synopsis text and area names.
//
// All functions are pure and idempotent: cleaning already-cleaned input
// returns it unchanged.
package cleaner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vodhive/vodhive/internal/models"
)

// PlayURLs converts the raw upstream play-URL map into the cleaned stored
// form. Raw values use the CMS convention "Ep1$URL#Ep2$URL#…"; segments
// split on '#', each segment splits at the first '$' into label and URL.
//
// Normalization rules:
//   - empty or missing labels become "第i集", numbered 1-based by their
//     position among the kept episodes
//   - whitespace is trimmed from labels and URLs
//   - http:// URLs are upgraded to https://
//   - URLs not starting with http(s):// after upgrade are dropped
//
// Routes that end up with no valid episodes are omitted entirely.
func PlayURLs(raw map[string]string) models.PlayURLs {
	out := models.PlayURLs{}
	for route, encoded := range raw {
		eps := ParseEpisodes(encoded)
		if len(eps) > 0 {
			out[route] = eps
		}
	}
	return out
}

// ParseEpisodes decodes one "label$url#label$url" play-URL string into an
// ordered episode list, applying the PlayURLs normalization rules.
func ParseEpisodes(encoded string) []models.PlayEpisode {
	segments := strings.Split(encoded, "#")
	eps := make([]models.PlayEpisode, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		label, url := seg, ""
		if idx := strings.Index(seg, "$"); idx >= 0 {
			label = strings.TrimSpace(seg[:idx])
			url = strings.TrimSpace(seg[idx+1:])
		} else {
			// Segment without '$' is a bare URL.
			label, url = "", seg
		}
		url = ImageURL(url)
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			continue
		}
		if label == "" {
			// Numbered by kept position so dropped segments leave no gaps.
			label = fmt.Sprintf("第%d集", len(eps)+1)
		}
		eps = append(eps, models.PlayEpisode{Name: label, URL: url})
	}
	return eps
}

// SerializeEpisodes encodes an episode list back into the CMS
// "label$url#label$url" form. ParseEpisodes(SerializeEpisodes(eps)) == eps
// for well-formed episodes.
func SerializeEpisodes(eps []models.PlayEpisode) string {
	parts := make([]string, 0, len(eps))
	for _, ep := range eps {
		parts = append(parts, ep.Name+"$"+ep.URL)
	}
	return strings.Join(parts, "#")
}

// ImageURL upgrades http:// to https://. Other values pass through.
func ImageURL(url string) string {
	if strings.HasPrefix(url, "http://") {
		return "https://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// namedEntities covers the entities CMS synopses actually use.
var namedEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&ldquo;", "“",
	"&rdquo;", "”",
	"&hellip;", "…",
	"&middot;", "·",
)

// StripHTML removes tags, decodes common named entities and collapses
// whitespace runs into single spaces.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(namedEntities.Replace(b.String())), " ")
}

// areaAliases maps upstream area spellings onto canonical forms.
var areaAliases = map[string]string{
	"大陆":   "中国大陆",
	"内地":   "中国大陆",
	"国产":   "中国大陆",
	"中国":   "中国大陆",
	"中国大陆": "中国大陆",
	"香港":   "中国香港",
	"中国香港": "中国香港",
	"台湾":   "中国台湾",
	"中国台湾": "中国台湾",
	"美国":   "美国",
	"欧美":   "欧美",
	"韩国":   "韩国",
	"日本":   "日本",
	"英国":   "英国",
	"泰国":   "泰国",
	"印度":   "印度",
	"法国":   "法国",
}

// Area maps area aliases to a single canonical form. Comma-separated
// composites (either "," or "，") are normalized member-wise, de-duplicated
// and re-joined with ",". Unknown areas pass through trimmed.
func Area(area string) string {
	area = strings.TrimSpace(area)
	if area == "" {
		return ""
	}
	area = strings.ReplaceAll(area, "，", ",")
	parts := strings.Split(area, ",")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if canonical, ok := areaAliases[p]; ok {
			p = canonical
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

// ToPlaySources converts the stored play-URL map into an ordered slice view
// for the read path, sorted by route name for a stable response shape.
func ToPlaySources(p models.PlayURLs) []models.PlaySource {
	out := make([]models.PlaySource, 0, len(p))
	for name, eps := range p {
		out = append(out, models.PlaySource{Name: name, Episodes: eps})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MergeCleaned unions two cleaned play-URL maps. On route-name collision the
// existing (already-stored) side wins; incoming routes only fill gaps.
func MergeCleaned(existing, incoming models.PlayURLs) models.PlayURLs {
	out := make(models.PlayURLs, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
