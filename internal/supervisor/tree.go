// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package supervisor builds the suture supervision tree that keeps the
// long-running services alive: the hit tracker and other data plumbing,
// the collection dispatcher and scheduler, and the HTTP API server.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/vodhive/vodhive/internal/logging"
)

// TreeConfig holds the restart policy shared by every layer.
type TreeConfig struct {
	// FailureThreshold is the failure score before a layer enters backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64

	// FailureBackoff is how long a layer waits once the threshold trips.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds graceful shutdown of each service.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the three-layer supervision hierarchy.
//
//   - data: hit tracker flush loop and other storage-side loops
//   - collect: task dispatcher and the maintenance scheduler
//   - api: the HTTP server
//
// The layers isolate failures: a crashing crawl cannot take down the read
// path, which keeps serving from the catalog and caches.
type Tree struct {
	root    *suture.Supervisor
	data    *suture.Supervisor
	collect *suture.Supervisor
	api     *suture.Supervisor
	config  TreeConfig
}

// NewTree builds the tree. Zero config fields fall back to defaults.
func NewTree(config TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	handler := &sutureslog.Handler{Logger: logging.Slog()}
	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("vodhive", rootSpec)
	data := suture.New("data-layer", childSpec)
	collect := suture.New("collect-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(data)
	root.Add(collect)
	root.Add(api)

	return &Tree{root: root, data: data, collect: collect, api: api, config: config}
}

// AddDataService supervises a storage-side loop.
func (t *Tree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.data.Add(svc)
}

// AddCollectService supervises a collection-side loop.
func (t *Tree) AddCollectService(svc suture.Service) suture.ServiceToken {
	return t.collect.Add(svc)
}

// AddAPIService supervises the HTTP server.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until the context is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine and reports its exit.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// Remove stops and removes a service by token.
func (t *Tree) Remove(token suture.ServiceToken) error {
	return t.root.Remove(token)
}
