// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package api

import (
	"net/http"
	"strings"

	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/recommend"
)

const (
	maxSearchResults = 100
	maxSuggestions   = 20
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keyword := strings.TrimSpace(q.Get("q"))
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "q parameter is required")
		return
	}

	limit := queryInt(q.Get("limit"), 20)
	if limit > maxSearchResults {
		limit = maxSearchResults
	}
	videos, err := s.db.SearchVideos(r.Context(), keyword, database.VideoFilter{
		TypeID:    queryInt(q.Get("type"), 0),
		ValidOnly: true,
		Limit:     limit,
	})
	if err != nil {
		logging.Error().Err(err).Str("keyword", keyword).Msg("Search failed")
		writeError(w, http.StatusInternalServerError, "search_failed", "search failed")
		return
	}
	writeList(w, videos, listMeta{Page: 1, PageSize: limit, Total: len(videos)})
}

func (s *Server) handleAdvancedSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := database.AdvancedSearchParams{
		Keyword:  strings.TrimSpace(q.Get("q")),
		TypeID:   queryInt(q.Get("type"), 0),
		Year:     queryInt(q.Get("year"), 0),
		Area:     q.Get("area"),
		Actor:    q.Get("actor"),
		Director: q.Get("director"),
		OrderBy:  q.Get("order_by"),
		Page:     queryInt(q.Get("page"), 1),
		PageSize: queryInt(q.Get("page_size"), 20),
	}

	videos, total, err := s.db.AdvancedSearch(r.Context(), params)
	if err != nil {
		logging.Error().Err(err).Msg("Advanced search failed")
		writeError(w, http.StatusInternalServerError, "search_failed", "search failed")
		return
	}
	writeList(w, videos, listMeta{Page: params.Page, PageSize: params.PageSize, Total: total})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := strings.TrimSpace(q.Get("q"))
	if prefix == "" {
		writeJSON(w, http.StatusOK, []string{})
		return
	}

	limit := queryInt(q.Get("limit"), 10)
	if limit > maxSuggestions {
		limit = maxSuggestions
	}
	names, err := s.db.Suggestions(r.Context(), prefix, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "suggest_failed", "suggestions failed")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommend.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.ClientID == "" {
		req.ClientID = clientID(r)
	}

	resp, err := s.recommender.Recommend(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_strategy", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.recommender.Recommend(r.Context(), recommend.Request{
		Strategy: recommend.StrategyTrending,
		TypeID:   queryInt(q.Get("type"), 0),
		Limit:    queryInt(q.Get("limit"), 10),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "recommend_failed", "failed to build trending list")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
