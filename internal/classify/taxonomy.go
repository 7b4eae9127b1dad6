// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package classify

// Internal taxonomy ids. The set is fixed; sub-categories under each parent
// are loaded from storage.
const (
	TypeMovie       = 1
	TypeTVSeries    = 2
	TypeVariety     = 3
	TypeAnime       = 4
	TypeShortDrama  = 5
	TypeSports      = 6
	TypeDocumentary = 7
	TypeTrailer     = 8
	TypeAdult       = 9
)

// typeNames maps taxonomy ids to display names.
var typeNames = map[int]string{
	TypeMovie:       "电影",
	TypeTVSeries:    "电视剧",
	TypeVariety:     "综艺",
	TypeAnime:       "动漫",
	TypeShortDrama:  "短剧",
	TypeSports:      "体育",
	TypeDocumentary: "纪录片",
	TypeTrailer:     "预告片",
	TypeAdult:       "福利",
}

// TypeName returns the display name for a taxonomy id, or "" if unknown.
func TypeName(typeID int) string {
	return typeNames[typeID]
}

// ValidType reports whether typeID is in the fixed taxonomy set.
func ValidType(typeID int) bool {
	_, ok := typeNames[typeID]
	return ok
}

// subKeywords lists sub-category names per parent, scanned in order against
// upstream type names and content. The name doubles as its keyword.
var subKeywords = map[int][]string{
	TypeMovie:      {"动作", "喜剧", "爱情", "科幻", "恐怖", "悬疑", "战争", "犯罪", "剧情"},
	TypeTVSeries:   {"国产剧", "港剧", "台剧", "美剧", "韩剧", "日剧", "泰剧", "英剧"},
	TypeVariety:    {"真人秀", "脱口秀", "选秀", "访谈", "晚会"},
	TypeAnime:      {"国产动漫", "日本动漫", "欧美动漫", "动画电影", "里番"},
	TypeShortDrama: {"霸总", "战神", "古装", "都市", "甜宠", "复仇", "玄幻"},
	TypeSports:     {"足球", "篮球", "网球", "赛车", "格斗", "电竞"},
}

// ShortsCategories returns the short-drama sub-category keyword list, used
// by the catalog store to derive a shorts tag when classification yields
// none.
func ShortsCategories() []string {
	return subKeywords[TypeShortDrama]
}
