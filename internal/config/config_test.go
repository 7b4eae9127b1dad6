// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Collect.PageSize != 20 {
		t.Errorf("expected default page size 20, got %d", cfg.Collect.PageSize)
	}
	if cfg.Collect.BatchSize != 5 {
		t.Errorf("expected default batch size 5, got %d", cfg.Collect.BatchSize)
	}
	if cfg.Hits.BatchSize != 100 {
		t.Errorf("expected default hits batch 100, got %d", cfg.Hits.BatchSize)
	}
	if cfg.Hits.FlushInterval != 60*time.Second {
		t.Errorf("expected default hits flush 60s, got %v", cfg.Hits.FlushInterval)
	}
	if cfg.Rating.CacheTTL != 30*24*time.Hour {
		t.Errorf("expected 30-day rating cache, got %v", cfg.Rating.CacheTTL)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VODHIVE_SERVER_PORT", "9090")
	t.Setenv("VODHIVE_COLLECT_BATCH_SIZE", "3")
	t.Setenv("VODHIVE_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("env should override port, got %d", cfg.Server.Port)
	}
	if cfg.Collect.BatchSize != 3 {
		t.Errorf("env should override batch size, got %d", cfg.Collect.BatchSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env should override log level, got %s", cfg.Logging.Level)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("server:\n  port: 7070\ncollect:\n  page_size: 30\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VODHIVE_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("file should override default port, got %d", cfg.Server.Port)
	}
	if cfg.Collect.PageSize != 30 {
		t.Errorf("file should override page size, got %d", cfg.Collect.PageSize)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VODHIVE_CONFIG_PATH", path)
	t.Setenv("VODHIVE_SERVER_PORT", "6060")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("env should beat file, got %d", cfg.Server.Port)
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("VODHIVE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("origins should be trimmed, got %q", cfg.Server.CORSOrigins[1])
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	t.Setenv("VODHIVE_SERVER_PORT", "99999")
	if _, err := Load(); err == nil {
		t.Error("port 99999 should fail validation")
	}
}

func TestValidateRatingNeedsURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Rating.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("rating enabled without provider_url should fail validation")
	}
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"VODHIVE_SERVER_PORT":          "server.port",
		"VODHIVE_DATABASE_PATH":        "database.path",
		"VODHIVE_COLLECT_BATCH_SIZE":   "collect.batch_size",
		"VODHIVE_HITS_FLUSH_INTERVAL":  "hits.flush_interval",
		"VODHIVE_CATALOG_STRICT_MERGE": "catalog.strict_merge",
	}
	for in, want := range cases {
		if got := envTransformFunc(in); got != want {
			t.Errorf("%s: expected %s, got %s", in, want, got)
		}
	}
}
