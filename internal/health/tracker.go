// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package health probes upstream sources and maintains their rolling
// health records: smoothed latency, success counters and derived status.
package health

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/metrics"
	"github.com/vodhive/vodhive/internal/models"
)

// emaAlpha weights the newest probe latency in the moving average.
const emaAlpha = 0.3

// Store is the persistence the tracker needs.
type Store interface {
	ListSources(ctx context.Context, activeOnly bool) ([]*models.Source, error)
	GetSourceHealth(ctx context.Context, sourceID int64) (*models.SourceHealth, error)
	UpsertSourceHealth(ctx context.Context, h *models.SourceHealth) error
	ListSourceHealth(ctx context.Context) ([]*models.SourceHealth, error)
}

// Prober issues the actual upstream probe. *upstream.Client satisfies it.
type Prober interface {
	Probe(ctx context.Context, src *models.Source) (time.Duration, int, error)
}

// Tracker records probe outcomes and classifies sources.
type Tracker struct {
	store  Store
	prober Prober
	cfg    config.HealthConfig
}

// New builds a Tracker.
func New(store Store, prober Prober, cfg config.HealthConfig) *Tracker {
	return &Tracker{store: store, prober: prober, cfg: cfg}
}

// Check probes one source and persists the updated health record.
func (t *Tracker) Check(ctx context.Context, src *models.Source) (*models.SourceHealth, error) {
	probeCtx, cancel := context.WithTimeout(ctx, t.cfg.CheckTimeout)
	elapsed, videoCount, err := t.prober.Probe(probeCtx, src)
	cancel()

	h, getErr := t.store.GetSourceHealth(ctx, src.ID)
	if getErr != nil {
		return nil, getErr
	}

	if err != nil {
		t.recordFailure(h, elapsed, err)
	} else {
		t.recordSuccess(h, elapsed, videoCount)
	}

	if err := t.store.UpsertSourceHealth(ctx, h); err != nil {
		return nil, err
	}
	metrics.SourceHealthScore.WithLabelValues(src.Name).Set(h.SuccessRate())

	logging.Debug().
		Str("source", src.Name).
		Str("status", string(h.Status)).
		Int64("avg_ms", h.AvgResponseMs).
		Int("consecutive_failures", h.ConsecutiveFailures).
		Msg("Source health check")

	return h, nil
}

// CheckAll probes every active source sequentially with pacing between
// probes so a fleet check does not hammer upstreams. Individual failures
// are recorded, not returned.
func (t *Tracker) CheckAll(ctx context.Context) error {
	sources, err := t.store.ListSources(ctx, true)
	if err != nil {
		return err
	}

	for i, src := range sources {
		if i > 0 && t.cfg.CheckPacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.cfg.CheckPacing):
			}
		}
		if _, err := t.Check(ctx, src); err != nil {
			logging.Error().Err(err).Str("source", src.Name).Msg("Health check failed to persist")
		}
	}
	return nil
}

// HealthySources returns active sources currently usable for collection,
// preserving the weight ordering from the store.
func (t *Tracker) HealthySources(ctx context.Context) ([]*models.Source, error) {
	sources, err := t.store.ListSources(ctx, true)
	if err != nil {
		return nil, err
	}

	var out []*models.Source
	for _, src := range sources {
		h, err := t.store.GetSourceHealth(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		if h.Usable(t.cfg.MaxConsecutiveFailures) {
			out = append(out, src)
		}
	}
	return out, nil
}

// Record folds an observation from regular collection traffic into the
// health record, so crawls keep health fresh between scheduled probes.
func (t *Tracker) Record(ctx context.Context, src *models.Source, elapsed time.Duration, err error) {
	h, getErr := t.store.GetSourceHealth(ctx, src.ID)
	if getErr != nil {
		logging.Error().Err(getErr).Str("source", src.Name).Msg("Failed to load health record")
		return
	}

	if err != nil {
		t.recordFailure(h, elapsed, err)
	} else {
		t.recordSuccess(h, elapsed, h.VideoCount)
	}
	if upErr := t.store.UpsertSourceHealth(ctx, h); upErr != nil {
		logging.Error().Err(upErr).Str("source", src.Name).Msg("Failed to persist health record")
	}
}

func (t *Tracker) recordSuccess(h *models.SourceHealth, elapsed time.Duration, videoCount int) {
	ms := elapsed.Milliseconds()
	h.LastResponseMs = ms
	h.AvgResponseMs = smooth(h.AvgResponseMs, ms)
	h.TotalChecks++
	h.SuccessChecks++
	h.ConsecutiveFailures = 0
	h.VideoCount = videoCount
	h.CheckedAt = time.Now()

	// Slow is keyed on the latest probe, not the smoothed average, so a
	// source that just turned sluggish is flagged immediately.
	if elapsed > t.cfg.SlowResponse {
		h.Status = models.StatusSlow
	} else {
		h.Status = models.StatusHealthy
	}
}

func (t *Tracker) recordFailure(h *models.SourceHealth, elapsed time.Duration, err error) {
	now := time.Now()
	h.LastResponseMs = elapsed.Milliseconds()
	h.TotalChecks++
	h.ConsecutiveFailures++
	h.LastError = err.Error()
	h.LastErrorAt = &now
	h.CheckedAt = now

	switch {
	case t.cfg.MaxConsecutiveFailures > 0 && h.ConsecutiveFailures >= t.cfg.MaxConsecutiveFailures:
		h.Status = models.StatusError
	case errors.Is(err, context.DeadlineExceeded):
		h.Status = models.StatusTimeout
	default:
		h.Status = models.StatusError
	}
}

// smooth applies the exponential moving average. The first observation
// seeds the average directly.
func smooth(avg, sample int64) int64 {
	if avg == 0 {
		return sample
	}
	return int64(math.Round((1-emaAlpha)*float64(avg) + emaAlpha*float64(sample)))
}
