// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/models"
)

// memStore keeps sources and health in maps.
type memStore struct {
	sources []*models.Source
	health  map[int64]*models.SourceHealth
}

func newMemStore(sources ...*models.Source) *memStore {
	return &memStore{sources: sources, health: make(map[int64]*models.SourceHealth)}
}

func (m *memStore) ListSources(ctx context.Context, activeOnly bool) ([]*models.Source, error) {
	var out []*models.Source
	for _, s := range m.sources {
		if !activeOnly || s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetSourceHealth(ctx context.Context, id int64) (*models.SourceHealth, error) {
	if h, ok := m.health[id]; ok {
		cp := *h
		return &cp, nil
	}
	return &models.SourceHealth{SourceID: id, Status: models.StatusUnknown}, nil
}

func (m *memStore) UpsertSourceHealth(ctx context.Context, h *models.SourceHealth) error {
	cp := *h
	m.health[h.SourceID] = &cp
	return nil
}

func (m *memStore) ListSourceHealth(ctx context.Context) ([]*models.SourceHealth, error) {
	var out []*models.SourceHealth
	for _, h := range m.health {
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

// stubProber returns scripted probe outcomes.
type stubProber struct {
	elapsed time.Duration
	count   int
	err     error
}

func (p *stubProber) Probe(ctx context.Context, src *models.Source) (time.Duration, int, error) {
	return p.elapsed, p.count, p.err
}

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{
		MaxConsecutiveFailures: 3,
		SlowResponse:           2 * time.Second,
		ErrorResponse:          5 * time.Second,
		CheckPacing:            0,
		CheckTimeout:           time.Second,
	}
}

func activeSource(id int64, name string) *models.Source {
	return &models.Source{ID: id, Name: name, BaseURL: "https://cms.example", Active: true}
}

func TestCheckRecordsSuccess(t *testing.T) {
	store := newMemStore(activeSource(1, "src1"))
	tr := New(store, &stubProber{elapsed: 120 * time.Millisecond, count: 900}, testHealthConfig())

	h, err := tr.Check(context.Background(), store.sources[0])
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if h.Status != models.StatusHealthy {
		t.Errorf("expected healthy, got %s", h.Status)
	}
	if h.AvgResponseMs != 120 {
		t.Errorf("first probe should seed the average, got %d", h.AvgResponseMs)
	}
	if h.VideoCount != 900 || h.SuccessChecks != 1 || h.TotalChecks != 1 {
		t.Errorf("counters wrong: %+v", h)
	}
}

func TestCheckSmoothsLatency(t *testing.T) {
	store := newMemStore(activeSource(1, "src1"))
	prober := &stubProber{elapsed: 100 * time.Millisecond}
	tr := New(store, prober, testHealthConfig())

	if _, err := tr.Check(context.Background(), store.sources[0]); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	prober.elapsed = 1000 * time.Millisecond
	h, err := tr.Check(context.Background(), store.sources[0])
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	// 0.7*100 + 0.3*1000 = 370
	if h.AvgResponseMs != 370 {
		t.Errorf("expected smoothed average 370, got %d", h.AvgResponseMs)
	}
}

func TestCheckMarksSlow(t *testing.T) {
	store := newMemStore(activeSource(1, "src1"))
	tr := New(store, &stubProber{elapsed: 3 * time.Second}, testHealthConfig())

	h, err := tr.Check(context.Background(), store.sources[0])
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if h.Status != models.StatusSlow {
		t.Errorf("3s probe should mark slow, got %s", h.Status)
	}
}

func TestCheckMarksSlowOnLatestProbe(t *testing.T) {
	store := newMemStore(activeSource(1, "src1"))
	prober := &stubProber{elapsed: 100 * time.Millisecond}
	tr := New(store, prober, testHealthConfig())

	if _, err := tr.Check(context.Background(), store.sources[0]); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	prober.elapsed = 2500 * time.Millisecond

	h, err := tr.Check(context.Background(), store.sources[0])
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	// 0.7*100 + 0.3*2500 = 820, still under the threshold; the latest
	// probe alone decides.
	if h.AvgResponseMs >= 2000 {
		t.Fatalf("average should stay under the threshold, got %d", h.AvgResponseMs)
	}
	if h.Status != models.StatusSlow {
		t.Errorf("a sluggish probe should mark slow despite a fast average, got %s", h.Status)
	}
	if h.LastResponseMs != 2500 {
		t.Errorf("expected last response 2500ms, got %d", h.LastResponseMs)
	}
}

func TestCheckRecordsFailure(t *testing.T) {
	store := newMemStore(activeSource(1, "src1"))
	prober := &stubProber{err: errors.New("connection refused")}
	tr := New(store, prober, testHealthConfig())

	h, err := tr.Check(context.Background(), store.sources[0])
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if h.Status != models.StatusError {
		t.Errorf("expected error status, got %s", h.Status)
	}
	if h.ConsecutiveFailures != 1 || h.SuccessChecks != 0 {
		t.Errorf("counters wrong: %+v", h)
	}
	if h.LastError == "" || h.LastErrorAt == nil {
		t.Error("failure details should be recorded")
	}
}

func TestCheckTimeoutStatus(t *testing.T) {
	store := newMemStore(activeSource(1, "src1"))
	tr := New(store, &stubProber{err: context.DeadlineExceeded}, testHealthConfig())

	h, err := tr.Check(context.Background(), store.sources[0])
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if h.Status != models.StatusTimeout {
		t.Errorf("expected timeout status, got %s", h.Status)
	}
}

func TestRepeatedTimeoutsEscalateToError(t *testing.T) {
	store := newMemStore(activeSource(1, "src1"))
	tr := New(store, &stubProber{err: context.DeadlineExceeded}, testHealthConfig())

	var h *models.SourceHealth
	var err error
	for i := 0; i < 3; i++ {
		h, err = tr.Check(context.Background(), store.sources[0])
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
	}
	if h.ConsecutiveFailures != 3 {
		t.Fatalf("expected 3 consecutive failures, got %d", h.ConsecutiveFailures)
	}
	if h.Status != models.StatusError {
		t.Errorf("the failure ceiling overrides the timeout status, got %s", h.Status)
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	store := newMemStore(activeSource(1, "src1"))
	prober := &stubProber{err: errors.New("boom")}
	tr := New(store, prober, testHealthConfig())

	for i := 0; i < 2; i++ {
		if _, err := tr.Check(context.Background(), store.sources[0]); err != nil {
			t.Fatalf("check failed: %v", err)
		}
	}
	prober.err = nil
	prober.elapsed = 50 * time.Millisecond

	h, err := tr.Check(context.Background(), store.sources[0])
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if h.ConsecutiveFailures != 0 {
		t.Errorf("success should reset failures, got %d", h.ConsecutiveFailures)
	}
	if h.Status != models.StatusHealthy {
		t.Errorf("expected healthy after recovery, got %s", h.Status)
	}
}

func TestHealthySourcesExcludesFailing(t *testing.T) {
	good := activeSource(1, "good")
	bad := activeSource(2, "bad")
	store := newMemStore(good, bad)
	store.health[2] = &models.SourceHealth{
		SourceID: 2, Status: models.StatusError, ConsecutiveFailures: 5,
	}
	tr := New(store, &stubProber{}, testHealthConfig())

	healthy, err := tr.HealthySources(context.Background())
	if err != nil {
		t.Fatalf("healthy sources failed: %v", err)
	}
	if len(healthy) != 1 || healthy[0].ID != 1 {
		t.Errorf("expected only the good source, got %+v", healthy)
	}
}

func TestCheckAllProbesEveryActiveSource(t *testing.T) {
	inactive := &models.Source{ID: 3, Name: "off", Active: false}
	store := newMemStore(activeSource(1, "a"), activeSource(2, "b"), inactive)
	tr := New(store, &stubProber{elapsed: 10 * time.Millisecond}, testHealthConfig())

	if err := tr.CheckAll(context.Background()); err != nil {
		t.Fatalf("check all failed: %v", err)
	}
	if len(store.health) != 2 {
		t.Errorf("expected 2 health records, got %d", len(store.health))
	}
	if _, ok := store.health[3]; ok {
		t.Error("inactive source should not be probed")
	}
}

func TestSmoothRounding(t *testing.T) {
	// 0.7*200 + 0.3*100 = 170
	if got := smooth(200, 100); got != 170 {
		t.Errorf("expected 170, got %d", got)
	}
	// Seeding from zero.
	if got := smooth(0, 333); got != 333 {
		t.Errorf("expected seed 333, got %d", got)
	}
}
