// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package config loads the layered VodHive configuration: built-in
// defaults, an optional YAML file, then VODHIVE_ environment variables.
package config

import (
	"time"
)

// Config is the root configuration for all VodHive subsystems.
type Config struct {
	Server    ServerConfig    `koanf:"server" validate:"required"`
	Database  DatabaseConfig  `koanf:"database" validate:"required"`
	KV        KVConfig        `koanf:"kv" validate:"required"`
	Logging   LoggingConfig   `koanf:"logging"`
	Collect   CollectConfig   `koanf:"collect"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Classify  ClassifyConfig  `koanf:"classify"`
	Health    HealthConfig    `koanf:"health"`
	Hits      HitsConfig      `koanf:"hits"`
	Rating    RatingConfig    `koanf:"rating"`
	Cache     CacheConfig     `koanf:"cache"`
	Aggregate AggregateConfig `koanf:"aggregate"`
	Recommend RecommendConfig `koanf:"recommend"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

// ServerConfig configures the read API HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"min=0"`
	RateWindow      time.Duration `koanf:"rate_window"`
}

// DatabaseConfig configures the SQLite catalog store.
type DatabaseConfig struct {
	Path            string        `koanf:"path" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=1"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	BusyTimeout     time.Duration `koanf:"busy_timeout"`
}

// KVConfig configures the badger store used for hit counters and the
// rating cache. An empty path runs badger in memory.
type KVConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig mirrors the logging package's Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// CollectConfig tunes the collection engine's paging and pacing.
type CollectConfig struct {
	PageSize               int           `koanf:"page_size" validate:"min=1,max=100"`
	BatchSize              int           `koanf:"batch_size" validate:"min=1,max=20"`
	RequestDelay           time.Duration `koanf:"request_delay"`
	BatchDelay             time.Duration `koanf:"batch_delay"`
	MaxRetries             int           `koanf:"max_retries" validate:"min=0,max=10"`
	RequestTimeout         time.Duration `koanf:"request_timeout"`
	ProgressUpdateInterval int           `koanf:"progress_update_interval" validate:"min=1"`
	LogBufferSize          int           `koanf:"log_buffer_size" validate:"min=1"`
	LogFlushInterval       time.Duration `koanf:"log_flush_interval"`
}

// CatalogConfig tunes dedup and merge behaviour.
type CatalogConfig struct {
	// StrictMerge requires name, year and director to all agree before two
	// records merge. Off by default: year-less upstream rows still merge on
	// name and director.
	StrictMerge bool `koanf:"strict_merge"`
}

// ClassifyConfig tunes the classifier's mapping cache.
type ClassifyConfig struct {
	MappingCacheTTL time.Duration `koanf:"mapping_cache_ttl"`
}

// HealthConfig tunes the source health tracker.
type HealthConfig struct {
	MaxConsecutiveFailures int           `koanf:"max_consecutive_failures" validate:"min=1"`
	SlowResponse           time.Duration `koanf:"slow_response"`
	ErrorResponse          time.Duration `koanf:"error_response"`
	CheckPacing            time.Duration `koanf:"check_pacing"`
	CheckTimeout           time.Duration `koanf:"check_timeout"`
}

// HitsConfig tunes the hit tracker's buffered flush.
type HitsConfig struct {
	BatchSize     int           `koanf:"batch_size" validate:"min=1"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// RatingConfig tunes the external rating enricher.
type RatingConfig struct {
	Enabled      bool          `koanf:"enabled"`
	ProviderURL  string        `koanf:"provider_url"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	FailureRetry time.Duration `koanf:"failure_retry"`
	RequestDelay time.Duration `koanf:"request_delay"`
	Timeout      time.Duration `koanf:"timeout"`
}

// CacheConfig tunes the in-memory response caches.
type CacheConfig struct {
	ListTTL     time.Duration `koanf:"list_ttl"`
	DetailTTL   time.Duration `koanf:"detail_ttl"`
	TrendingTTL time.Duration `koanf:"trending_ttl"`
}

// AggregateConfig tunes the live multi-source aggregator.
type AggregateConfig struct {
	SourceTimeout time.Duration `koanf:"source_timeout"`
	MaxSources    int           `koanf:"max_sources" validate:"min=1"`
	Welfare       bool          `koanf:"welfare"`
}

// RecommendConfig tunes the recommendation engine.
type RecommendConfig struct {
	NeighborCount     int           `koanf:"neighbor_count" validate:"min=1"`
	CovisitWindow     time.Duration `koanf:"covisit_window"`
	MinSharedTitles   int           `koanf:"min_shared_titles" validate:"min=1"`
	TrendingCacheTTL  time.Duration `koanf:"trending_cache_ttl"`
	PrecomputeEnabled bool          `koanf:"precompute_enabled"`
}

// SchedulerConfig tunes the background routine scheduler.
type SchedulerConfig struct {
	Enabled       bool          `koanf:"enabled"`
	TickInterval  time.Duration `koanf:"tick_interval"`
	WebhookURL    string        `koanf:"webhook_url"`
	WarmupOnStart bool          `koanf:"warmup_on_start"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       120, // requests per window per IP, 0 disables
			RateWindow:      time.Minute,
		},
		Database: DatabaseConfig{
			Path:            "/data/vodhive.db",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			BusyTimeout:     5 * time.Second,
		},
		KV: KVConfig{
			Path: "/data/vodhive-kv",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Collect: CollectConfig{
			PageSize:               20,
			BatchSize:              5,
			RequestDelay:           100 * time.Millisecond,
			BatchDelay:             300 * time.Millisecond,
			MaxRetries:             2,
			RequestTimeout:         8 * time.Second,
			ProgressUpdateInterval: 20,
			LogBufferSize:          20,
			LogFlushInterval:       5 * time.Second,
		},
		Catalog: CatalogConfig{
			StrictMerge: false,
		},
		Classify: ClassifyConfig{
			MappingCacheTTL: 5 * time.Minute,
		},
		Health: HealthConfig{
			MaxConsecutiveFailures: 5,
			SlowResponse:           2 * time.Second,
			ErrorResponse:          5 * time.Second,
			CheckPacing:            500 * time.Millisecond,
			CheckTimeout:           10 * time.Second,
		},
		Hits: HitsConfig{
			BatchSize:     100,
			FlushInterval: 60 * time.Second,
		},
		Rating: RatingConfig{
			Enabled:      false,
			ProviderURL:  "",
			CacheTTL:     30 * 24 * time.Hour,
			FailureRetry: 24 * time.Hour,
			RequestDelay: 250 * time.Millisecond,
			Timeout:      8 * time.Second,
		},
		Cache: CacheConfig{
			ListTTL:     5 * time.Minute,
			DetailTTL:   10 * time.Minute,
			TrendingTTL: 10 * time.Minute,
		},
		Aggregate: AggregateConfig{
			SourceTimeout: 3 * time.Second,
			MaxSources:    8,
			Welfare:       false,
		},
		Recommend: RecommendConfig{
			NeighborCount:     20,
			CovisitWindow:     7 * 24 * time.Hour,
			MinSharedTitles:   3,
			TrendingCacheTTL:  10 * time.Minute,
			PrecomputeEnabled: true,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			TickInterval:  time.Minute,
			WebhookURL:    "",
			WarmupOnStart: true,
		},
	}
}
