// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package api serves the read and admin HTTP surface: aggregated video
// listings, detail and version lookups, search, recommendations, source
// health and collection task management.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vodhive/vodhive/internal/aggregate"
	"github.com/vodhive/vodhive/internal/catalog"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/hits"
	"github.com/vodhive/vodhive/internal/middleware"
	"github.com/vodhive/vodhive/internal/recommend"
	"github.com/vodhive/vodhive/internal/tasks"
)

// Server bundles the services the handlers dispatch into.
type Server struct {
	db          *database.DB
	aggregator  *aggregate.Aggregator
	catalog     *catalog.Store
	hits        *hits.Tracker
	recommender *recommend.Engine
	manager     *tasks.Manager
	cfg         config.ServerConfig
}

// NewServer builds the handler bundle.
func NewServer(db *database.DB, aggregator *aggregate.Aggregator, cat *catalog.Store,
	tracker *hits.Tracker, recommender *recommend.Engine, manager *tasks.Manager,
	cfg config.ServerConfig) *Server {
	return &Server{
		db:          db,
		aggregator:  aggregator,
		catalog:     cat,
		hits:        tracker,
		recommender: recommender,
		manager:     manager,
		cfg:         cfg,
	}
}

// Router assembles the chi route tree with the shared middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.Compression)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	if s.cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, s.cfg.RateWindow))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/videos", s.handleListVideos)
		r.Get("/videos/{id}", s.handleGetVideo)
		r.Get("/videos/{id}/versions", s.handleVideoVersions)
		r.Get("/videos/{id}/similar", s.handleSimilar)

		r.Get("/search", s.handleSearch)
		r.Get("/search/advanced", s.handleAdvancedSearch)
		r.Get("/search/suggest", s.handleSuggest)

		r.Post("/recommend", s.handleRecommend)
		r.Get("/trending", s.handleTrending)

		r.Get("/sources/health", s.handleSourceHealth)

		r.Route("/admin/tasks", func(r chi.Router) {
			r.Post("/", s.handleCreateTask)
			r.Get("/", s.handleListTasks)
			r.Get("/{id}", s.handleGetTask)
			r.Post("/{id}/pause", s.handlePauseTask)
			r.Post("/{id}/resume", s.handleResumeTask)
			r.Post("/{id}/cancel", s.handleCancelTask)
			r.Get("/{id}/logs", s.handleTaskLogs)
		})
	})

	return r
}
