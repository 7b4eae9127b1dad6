// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vodhive/config.yaml",
	"/etc/vodhive/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "VODHIVE_CONFIG_PATH"

// envPrefix namespaces every VodHive environment variable.
const envPrefix = "VODHIVE_"

// Load builds the configuration from layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file
//  3. Environment variables: highest priority, VODHIVE_ prefixed
//
// Examples of the env mapping:
//   - VODHIVE_SERVER_PORT -> server.port
//   - VODHIVE_DATABASE_PATH -> database.path
//   - VODHIVE_COLLECT_BATCH_SIZE -> collect.batch_size
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks structural constraints via validator tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid value for %s (rule %s)", f.Namespace(), f.Tag())
		}
		return err
	}

	if c.Collect.RequestTimeout <= 0 {
		return fmt.Errorf("collect.request_timeout must be positive")
	}
	if c.Hits.FlushInterval <= 0 {
		return fmt.Errorf("hits.flush_interval must be positive")
	}
	if c.Health.SlowResponse >= c.Health.ErrorResponse {
		return fmt.Errorf("health.slow_response must be below health.error_response")
	}
	if c.Rating.Enabled && c.Rating.ProviderURL == "" {
		return fmt.Errorf("rating.provider_url is required when rating.enabled=true")
	}
	if c.Scheduler.Enabled && c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive when enabled")
	}
	return nil
}

// findConfigFile returns the first readable config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps VODHIVE_SECTION_SOME_KEY to section.some_key. Only
// the first underscore becomes a separator; section names are single words.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// sliceConfigPaths lists paths parsed as comma-separated slices when they
// arrive as env var strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			continue // already a slice from YAML or defaults
		}
		parts := strings.Split(str, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
