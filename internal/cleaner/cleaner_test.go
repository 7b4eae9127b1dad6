// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package cleaner

import (
	"reflect"
	"testing"

	"github.com/vodhive/vodhive/internal/models"
)

func TestParseEpisodes(t *testing.T) {
	eps := ParseEpisodes("第1集$http://a.com/1.m3u8#第2集$https://a.com/2.m3u8")
	if len(eps) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(eps))
	}
	if eps[0].Name != "第1集" {
		t.Errorf("expected label 第1集, got %q", eps[0].Name)
	}
	if eps[0].URL != "https://a.com/1.m3u8" {
		t.Errorf("expected https upgrade, got %q", eps[0].URL)
	}
	if eps[1].URL != "https://a.com/2.m3u8" {
		t.Errorf("expected https url untouched, got %q", eps[1].URL)
	}
}

func TestParseEpisodesDefaultLabels(t *testing.T) {
	eps := ParseEpisodes("$https://a.com/1.m3u8#https://a.com/2.m3u8")
	if len(eps) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(eps))
	}
	if eps[0].Name != "第1集" {
		t.Errorf("empty label should default by position, got %q", eps[0].Name)
	}
	if eps[1].Name != "第2集" {
		t.Errorf("bare URL segment should default label, got %q", eps[1].Name)
	}
}

func TestParseEpisodesDefaultLabelsSkipDropped(t *testing.T) {
	eps := ParseEpisodes("$ftp://a.com/0##https://a.com/1.m3u8#$https://a.com/2.m3u8")
	if len(eps) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(eps))
	}
	if eps[0].Name != "第1集" || eps[1].Name != "第2集" {
		t.Errorf("dropped segments must not leave numbering gaps, got %q, %q",
			eps[0].Name, eps[1].Name)
	}
}

func TestParseEpisodesDropsInvalidURLs(t *testing.T) {
	eps := ParseEpisodes("第1集$ftp://a.com/1#第2集$https://a.com/2.m3u8#第3集$")
	if len(eps) != 1 {
		t.Fatalf("expected only the https episode, got %d", len(eps))
	}
	if eps[0].Name != "第2集" {
		t.Errorf("expected 第2集 to survive, got %q", eps[0].Name)
	}
}

func TestEpisodesRoundTrip(t *testing.T) {
	eps := []models.PlayEpisode{
		{Name: "第1集", URL: "https://a.com/1.m3u8"},
		{Name: "大结局", URL: "https://a.com/2.m3u8"},
	}
	got := ParseEpisodes(SerializeEpisodes(eps))
	if !reflect.DeepEqual(got, eps) {
		t.Errorf("round trip changed episodes: %v != %v", got, eps)
	}
}

func TestPlayURLsIdempotent(t *testing.T) {
	raw := map[string]string{"hd": "第1集$http://a.com/1.m3u8"}
	once := PlayURLs(raw)

	reserialized := map[string]string{}
	for route, eps := range once {
		reserialized[route] = SerializeEpisodes(eps)
	}
	twice := PlayURLs(reserialized)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("cleaning cleaned input changed it: %v != %v", twice, once)
	}
}

func TestPlayURLsOmitsEmptyRoutes(t *testing.T) {
	cleaned := PlayURLs(map[string]string{
		"hd":  "第1集$https://a.com/1.m3u8",
		"bad": "第1集$rtmp://a.com/1",
	})
	if _, ok := cleaned["bad"]; ok {
		t.Error("route with no valid episodes should be omitted")
	}
	if _, ok := cleaned["hd"]; !ok {
		t.Error("valid route missing")
	}
}

func TestImageURL(t *testing.T) {
	if got := ImageURL("http://img.com/a.jpg"); got != "https://img.com/a.jpg" {
		t.Errorf("expected scheme upgrade, got %q", got)
	}
	if got := ImageURL("https://img.com/a.jpg"); got != "https://img.com/a.jpg" {
		t.Errorf("https should pass through, got %q", got)
	}
}

func TestStripHTML(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<p>你好&nbsp;世界</p>", "你好 世界"},
		{"a &amp; b", "a & b"},
		{"<br/>line  \n two", "line two"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := StripHTML(tc.in); got != tc.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestArea(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"大陆", "中国大陆"},
		{"内地", "中国大陆"},
		{"国产", "中国大陆"},
		{"中国", "中国大陆"},
		{"美国", "美国"},
		{"大陆，香港", "中国大陆,中国香港"},
		{"大陆,内地", "中国大陆"},
		{"未知地区", "未知地区"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Area(tc.in); got != tc.want {
			t.Errorf("Area(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAreaIdempotent(t *testing.T) {
	for _, in := range []string{"大陆", "大陆，香港", "美国,英国", "未知"} {
		once := Area(in)
		if twice := Area(once); twice != once {
			t.Errorf("Area not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestMergeCleanedExistingWins(t *testing.T) {
	existing := models.PlayURLs{
		"hd": {{Name: "第1集", URL: "https://a.com/1.m3u8"}},
	}
	incoming := models.PlayURLs{
		"hd":  {{Name: "第1集", URL: "https://b.com/1.m3u8"}},
		"hd2": {{Name: "第1集", URL: "https://b.com/1.m3u8"}},
	}
	merged := MergeCleaned(existing, incoming)
	if merged["hd"][0].URL != "https://a.com/1.m3u8" {
		t.Error("existing route should win on collision")
	}
	if _, ok := merged["hd2"]; !ok {
		t.Error("incoming-only route should be added")
	}
}

func TestToPlaySourcesSorted(t *testing.T) {
	p := models.PlayURLs{
		"m3u8": {{Name: "第1集", URL: "https://a.com/1"}},
		"hd":   {{Name: "第1集", URL: "https://a.com/1"}},
	}
	srcs := ToPlaySources(p)
	if len(srcs) != 2 || srcs[0].Name != "hd" || srcs[1].Name != "m3u8" {
		t.Errorf("expected sorted route names, got %v", srcs)
	}
}
