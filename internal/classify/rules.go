// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package classify

import (
	"regexp"
	"strings"
)

// typeNameRule matches an upstream type/category name against the taxonomy.
// Rules are evaluated in order; the first rule whose patterns appear and
// whose excludes do not wins. Ordering matters: trailer and adult are
// checked before movie so "片花" and "伦理片" are not captured by "片", and
// short-drama before TV series.
type typeNameRule struct {
	typeID   int
	patterns []string
	excludes []string
}

var typeNameRules = []typeNameRule{
	{TypeTrailer, []string{"预告", "片花", "花絮"}, nil},
	{TypeAdult, []string{"伦理", "福利", "写真", "情色"}, nil},
	{TypeShortDrama, []string{"短剧", "微剧", "微短剧"}, nil},
	{TypeAnime, []string{"动漫", "动画", "番剧", "里番"}, nil},
	{TypeVariety, []string{"综艺", "真人秀", "脱口秀", "晚会"}, nil},
	{TypeSports, []string{"体育", "赛事", "足球", "篮球", "格斗"}, nil},
	{TypeDocumentary, []string{"纪录", "纪实", "记录片"}, nil},
	{TypeMovie, []string{"电影", "片"}, []string{"连续剧", "电视剧", "剧集"}},
	{TypeTVSeries, []string{"剧", "连续"}, []string{"短剧", "动作片", "片花"}},
}

// Episode and quality markers corroborate a type_name match, raising its
// confidence from 0.90 to 0.98.
var (
	episodeMarker = regexp.MustCompile(`第\s*\d+\s*[集季]|更新至|全\s*\d+\s*集|[Ss]\d{1,2}[Ee]\d{1,3}`)
	qualityMarker = regexp.MustCompile(`(?i)4K|2160P|1080P|720P|HD|蓝光|超清|高清`)
)

// matchTypeName evaluates the ordered rule list against an upstream type
// name. Returns (0, 0) when no rule matches.
func matchTypeName(typeName, corroboration string) (typeID int, confidence float64) {
	if typeName == "" {
		return 0, 0
	}
	for _, rule := range typeNameRules {
		if !containsAny(typeName, rule.patterns) {
			continue
		}
		if containsAny(typeName, rule.excludes) {
			continue
		}
		confidence = 0.90
		if episodeMarker.MatchString(corroboration) || qualityMarker.MatchString(corroboration) {
			confidence = 0.98
		}
		return rule.typeID, confidence
	}
	return 0, 0
}

// matchSubType scans text for a sub-category keyword under parent.
func matchSubType(parent int, text string) string {
	for _, kw := range subKeywords[parent] {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

// Content keyword cues, strongest first. TV episode patterns come after the
// explicit genre cues so "某短剧 更新至10集" stays a short drama.
var (
	shortsCues  = []string{"短剧", "微短剧", "竖屏剧", "小程序剧"}
	varietyCues = []string{"综艺", "真人秀", "脱口秀", "访谈节目"}
	animeCues   = []string{"动漫", "动画", "番剧", "国漫", "日漫"}
	tvPattern   = regexp.MustCompile(`第\s*\d+\s*季|更新至|[Ss]\d{1,2}[Ee]\d{1,3}`)
)

// matchContent classifies by cues over name+content+remarks.
func matchContent(text string) (typeID int, confidence float64) {
	switch {
	case containsAny(text, shortsCues):
		return TypeShortDrama, 0.95
	case containsAny(text, varietyCues):
		return TypeVariety, 0.92
	case containsAny(text, animeCues):
		return TypeAnime, 0.92
	case tvPattern.MatchString(text):
		return TypeTVSeries, 0.88
	}
	// Weak fallback: a sub-category keyword alone pins its parent. Shorts
	// keywords ("都市", "古装") are too generic to participate here.
	for _, parent := range []int{TypeTVSeries, TypeVariety, TypeAnime, TypeSports, TypeMovie} {
		if containsAny(text, subKeywords[parent]) {
			return parent, 0.80
		}
	}
	return 0, 0
}

// Hard-coded type-id maps for known source families, used when no DB
// mapping matches. Keys are upstream type ids.
var knownFamilyMappings = map[string]map[int]int{
	"maccms10": {
		1: TypeMovie, 2: TypeTVSeries, 3: TypeVariety, 4: TypeAnime,
	},
	"feifei": {
		1: TypeMovie, 2: TypeTVSeries, 3: TypeVariety, 4: TypeAnime, 5: TypeShortDrama,
	},
}

// matchTypeIDRange applies the generic id-range heuristic shared by most
// CMS deployments.
func matchTypeIDRange(extTypeID int) int {
	switch {
	case extTypeID >= 6 && extTypeID <= 12:
		return TypeMovie
	case extTypeID >= 13 && extTypeID <= 19:
		return TypeTVSeries
	case extTypeID >= 20 && extTypeID <= 23:
		return TypeVariety
	case extTypeID >= 24 && extTypeID <= 29:
		return TypeAnime
	case extTypeID >= 30 && extTypeID <= 40:
		return TypeShortDrama
	}
	return 0
}

// Known-name lists for the cast method. Hits on these yield a modest
// confidence: cast strongly correlates with, but does not determine, type.
var (
	knownAnimeVoiceActors = []string{"神谷浩史", "花泽香菜", "宫野真守", "钉宫理惠", "山寺宏一"}
	knownVarietyHosts     = []string{"何炅", "汪涵", "黄磊", "贾玲", "沈腾"}
	knownDocuDirectors    = []string{"陈晓卿", "竹内亮", "周浩"}
)

// matchCast classifies by actor/director known-name lists.
func matchCast(actor, director string) (typeID int, confidence float64) {
	switch {
	case containsAny(actor, knownAnimeVoiceActors):
		return TypeAnime, 0.80
	case containsAny(actor, knownVarietyHosts):
		return TypeVariety, 0.75
	case containsAny(director, knownDocuDirectors):
		return TypeDocumentary, 0.70
	}
	return 0, 0
}

// matchName is the generic name-only classifier of last resort before the
// default. Confidence scales with how specific the cue is.
func matchName(name string) (typeID int, confidence float64) {
	switch {
	case strings.Contains(name, "剧场版"):
		return TypeAnime, 0.90
	case strings.Contains(name, "演唱会"), strings.Contains(name, "晚会"):
		return TypeVariety, 0.85
	case episodeMarker.MatchString(name):
		return TypeTVSeries, 0.70
	case strings.Contains(name, "之") && len([]rune(name)) <= 12:
		// Short "X之Y" titles skew movie.
		return TypeMovie, 0.50
	}
	return 0, 0
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
