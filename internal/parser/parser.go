// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package parser turns raw upstream CMS payloads into normalized video
// records. Upstreams speak one of two dialects of the same schema: a JSON
// document with a top-level list envelope, or an XML document rooted at
// <rss>/<list> with <video> children. Field names vary between
// underscore-prefixed ("vod_name") and bare ("name") conventions; the parser
// accepts both and defaults missing fields to zero values.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/vodhive/vodhive/internal/models"
)

// Sentinel errors. Callers treat any parse failure as permanent for the
// sample and advance source health failure counters.
var (
	// ErrEmptyBody is returned for empty or whitespace-only payloads.
	ErrEmptyBody = errors.New("parser: empty response body")

	// ErrUnrecognized is returned when the payload matches neither dialect.
	ErrUnrecognized = errors.New("parser: unrecognized response shape")
)

// Video is one normalized upstream video record. All fields are best-effort;
// absent upstream fields stay at their zero value.
type Video struct {
	ID       string
	Name     string
	Pic      string
	Area     string
	Year     string
	Language string
	Actor    string
	Director string
	Content  string
	Remarks  string
	TypeID   int
	TypeName string
	Score    float64
	Tag      string

	// PlayRoutes maps the upstream route name (the <dd flag=…> attribute or
	// a vod_play_from entry) to its raw "Ep1$URL#Ep2$URL" episode string.
	PlayRoutes map[string]string
}

// VideoList is the normalized list envelope shared by both dialects.
type VideoList struct {
	Code      int
	Msg       string
	Page      int
	PageCount int
	Limit     int
	Total     int
	List      []Video
}

// Parse decodes body according to format. Format models.FormatAuto sniffs
// the payload: a leading "<?xml", "<rss" or "<list" selects XML; "{" or "["
// selects JSON; anything else defaults to JSON.
func Parse(body []byte, format models.SourceFormat) (*VideoList, error) {
	trimmed := strings.TrimLeft(string(body), " \t\r\n\uFEFF")
	if trimmed == "" {
		return nil, ErrEmptyBody
	}

	if format == models.FormatAuto || format == "" {
		format = sniff(trimmed)
	}

	switch format {
	case models.FormatXML:
		return parseXML(trimmed)
	default:
		return parseJSON(trimmed)
	}
}

// sniff guesses the dialect from the first token of the payload.
func sniff(trimmed string) models.SourceFormat {
	switch {
	case strings.HasPrefix(trimmed, "<?xml"),
		strings.HasPrefix(trimmed, "<rss"),
		strings.HasPrefix(trimmed, "<list"):
		return models.FormatXML
	case strings.HasPrefix(trimmed, "{"), strings.HasPrefix(trimmed, "["):
		return models.FormatJSON
	default:
		return models.FormatJSON
	}
}

// jsonEnvelope matches the stable top-level fields; list rows keep their
// loose shape and go through field getters below.
type jsonEnvelope struct {
	Code      json.RawMessage   `json:"code"`
	Msg       string            `json:"msg"`
	Page      json.RawMessage   `json:"page"`
	PageCount json.RawMessage   `json:"pagecount"`
	Limit     json.RawMessage   `json:"limit"`
	Total     json.RawMessage   `json:"total"`
	List      []json.RawMessage `json:"list"`
}

func parseJSON(body string) (*VideoList, error) {
	var env jsonEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	if env.List == nil && env.Page == nil && env.Code == nil {
		return nil, ErrUnrecognized
	}

	out := &VideoList{
		Code:      rawInt(env.Code),
		Msg:       env.Msg,
		Page:      rawInt(env.Page),
		PageCount: rawInt(env.PageCount),
		Limit:     rawInt(env.Limit),
		Total:     rawInt(env.Total),
	}

	for _, raw := range env.List {
		var row map[string]json.RawMessage
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		out.List = append(out.List, videoFromJSON(row))
	}
	return out, nil
}

// videoFromJSON maps one loose JSON row onto the normalized record,
// accepting both the vod_-prefixed and the bare field naming.
func videoFromJSON(row map[string]json.RawMessage) Video {
	v := Video{
		ID:       fieldString(row, "vod_id", "id"),
		Name:     fieldString(row, "vod_name", "name"),
		Pic:      fieldString(row, "vod_pic", "pic"),
		Area:     fieldString(row, "vod_area", "area"),
		Year:     fieldString(row, "vod_year", "year"),
		Language: fieldString(row, "vod_lang", "lang"),
		Actor:    fieldString(row, "vod_actor", "actor"),
		Director: fieldString(row, "vod_director", "director"),
		Content:  fieldString(row, "vod_content", "content", "des"),
		Remarks:  fieldString(row, "vod_remarks", "remarks", "note"),
		TypeID:   fieldInt(row, "type_id", "tid"),
		TypeName: fieldString(row, "type_name", "type", "vod_class", "class"),
		Score:    fieldFloat(row, "vod_score", "score"),
		Tag:      fieldString(row, "vod_tag", "tag"),
	}

	playFrom := fieldString(row, "vod_play_from", "play_from")
	playURL := fieldString(row, "vod_play_url", "play_url")
	if playURL != "" {
		v.PlayRoutes = splitPlayRoutes(playFrom, playURL)
	}
	return v
}

// splitPlayRoutes pairs the "$$$"-separated route names in vod_play_from
// with the matching segments of vod_play_url. Unnamed routes get positional
// defaults so no episode data is dropped.
func splitPlayRoutes(playFrom, playURL string) map[string]string {
	urls := strings.Split(playURL, "$$$")
	froms := strings.Split(playFrom, "$$$")
	routes := make(map[string]string, len(urls))
	for i, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		name := ""
		if i < len(froms) {
			name = strings.TrimSpace(froms[i])
		}
		if name == "" {
			if i == 0 {
				name = "default"
			} else {
				name = "line" + strconv.Itoa(i+1)
			}
		}
		if _, exists := routes[name]; !exists {
			routes[name] = u
		}
	}
	return routes
}

func fieldString(row map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := row[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		// Numeric values are accepted for string fields (ids, years).
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			if f == float64(int64(f)) {
				return strconv.FormatInt(int64(f), 10)
			}
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return ""
}

func fieldInt(row map[string]json.RawMessage, keys ...string) int {
	for _, k := range keys {
		raw, ok := row[k]
		if !ok {
			continue
		}
		var i int
		if err := json.Unmarshal(raw, &i); err == nil {
			return i
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return n
			}
		}
	}
	return 0
}

func fieldFloat(row map[string]json.RawMessage, keys ...string) float64 {
	for _, k := range keys {
		raw, ok := row[k]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return v
			}
		}
	}
	return 0
}

func rawInt(raw json.RawMessage) int {
	if raw == nil {
		return 0
	}
	var i int
	if err := json.Unmarshal(raw, &i); err == nil {
		return i
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return 0
}
