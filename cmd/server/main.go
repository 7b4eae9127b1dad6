// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Command server runs the VodHive daemon: the catalog database, the
// collection dispatcher and scheduler, and the read/admin HTTP API, all
// under one supervision tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vodhive/vodhive/internal/aggregate"
	"github.com/vodhive/vodhive/internal/api"
	"github.com/vodhive/vodhive/internal/cache"
	"github.com/vodhive/vodhive/internal/catalog"
	"github.com/vodhive/vodhive/internal/classify"
	"github.com/vodhive/vodhive/internal/collect"
	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/health"
	"github.com/vodhive/vodhive/internal/hits"
	"github.com/vodhive/vodhive/internal/kv"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/rating"
	"github.com/vodhive/vodhive/internal/recommend"
	"github.com/vodhive/vodhive/internal/scheduler"
	"github.com/vodhive/vodhive/internal/supervisor"
	"github.com/vodhive/vodhive/internal/tasks"
	"github.com/vodhive/vodhive/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Str("db", cfg.Database.Path).
		Str("kv", cfg.KV.Path).
		Int("port", cfg.Server.Port).
		Msg("Starting vodhive")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	kvStore, err := kv.Open(cfg.KV.Path)
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	defer kvStore.Close()

	listCache := cache.New(cfg.Cache.ListTTL)
	defer listCache.Close()
	trendingCache := cache.New(cfg.Recommend.TrendingCacheTTL)
	defer trendingCache.Close()

	client := upstream.New(cfg.Collect)
	classifier := classify.New(db, cfg.Classify.MappingCacheTTL)
	cat := catalog.New(db, classifier, cfg.Catalog)
	manager := tasks.New(db)
	healthTracker := health.New(db, client, cfg.Health)
	linkChecker := health.NewLinkChecker(db, kvStore, cfg.Health)
	hitTracker := hits.New(kvStore, db, cfg.Hits)
	enricher := rating.New(db, cfg.Rating)
	aggregator := aggregate.New(db, client, listCache, cfg.Aggregate)
	recommender := recommend.New(db, kvStore, trendingCache, cfg.Recommend)

	engine := collect.New(db, cat, client, manager, healthTracker, cfg.Collect)
	dispatcher := collect.NewDispatcher(engine, manager, 0)
	sched := scheduler.New(db, kvStore, hitTracker, manager, cat,
		healthTracker, linkChecker, enricher, recommender, cfg.Scheduler)

	srv := api.NewServer(db, aggregator, cat, hitTracker, recommender, manager, cfg.Server)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddDataService(supervisor.ServiceFunc{Name: "hits.tracker", Fn: hitTracker.Run})
	tree.AddCollectService(dispatcher)
	tree.AddCollectService(sched)
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}
