// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package api

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vodhive/vodhive/internal/aggregate"
	"github.com/vodhive/vodhive/internal/catalog"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/recommend"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", "catalog store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListVideos serves the aggregated listing: catalog first, live
// upstream fan-out when the catalog has nothing for the filter.
func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := aggregate.Params{
		TypeID:    queryInt(q.Get("type"), 0),
		SubTypeID: queryInt(q.Get("sub_type"), 0),
		Year:      queryInt(q.Get("year"), 0),
		Area:      q.Get("area"),
		Class:     q.Get("class"),
		Sort:      q.Get("sort"),
		Page:      queryInt(q.Get("page"), 1),
		PageSize:  queryInt(q.Get("page_size"), 20),
	}
	opts := aggregate.Options{
		CacheOnly:      q.Get("cache_only") == "1",
		IncludeWelfare: q.Get("welfare") == "1",
	}

	result, err := s.aggregator.Aggregate(r.Context(), params, opts)
	if err != nil {
		logging.Error().Err(err).Msg("List aggregation failed")
		writeError(w, http.StatusInternalServerError, "aggregate_failed", "failed to build listing")
		return
	}
	writeList(w, result, listMeta{Page: params.Page, PageSize: params.PageSize, Total: result.Total})
}

// handleGetVideo returns one catalog record and counts the view.
func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	video, err := s.db.GetVideo(r.Context(), id)
	if errors.Is(err, database.ErrVideoNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "video not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to load video")
		return
	}

	s.hits.Track(id)
	event := database.AccessEvent{
		VideoID: id, ClientID: clientID(r), AccessedAt: time.Now(),
	}
	if err := s.db.InsertAccessEvents(r.Context(), []database.AccessEvent{event}); err != nil {
		logging.Warn().Err(err).Str("video_id", id).Msg("Failed to record access event")
	}

	writeJSON(w, http.StatusOK, video)
}

// handleVideoVersions returns the merged language/quality version set of a
// title.
func (s *Server) handleVideoVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	versions, err := s.catalog.FindAllVersions(r.Context(), id)
	if errors.Is(err, database.ErrVideoNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "video not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to gather versions")
		return
	}
	writeJSON(w, http.StatusOK, catalog.MergeVersions(versions))
}

// handleSimilar is a convenience alias for the content-based recommender.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	resp, err := s.recommender.Recommend(r.Context(), recommend.Request{
		Strategy: recommend.StrategySimilar,
		VideoID:  chi.URLParam(r, "id"),
		Limit:    queryInt(r.URL.Query().Get("limit"), 10),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "recommend_failed", "failed to build recommendations")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// clientID identifies the caller for history tracking: an explicit header
// when the frontend sends one, the bare client IP otherwise.
func clientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
