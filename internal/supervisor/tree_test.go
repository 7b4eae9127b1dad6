// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestTreeRunsServicesAcrossLayers(t *testing.T) {
	tree := NewTree(TreeConfig{})

	var dataRuns, collectRuns atomic.Int32
	tree.AddDataService(ServiceFunc{Name: "data-loop", Fn: func(ctx context.Context) error {
		dataRuns.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}})
	tree.AddCollectService(ServiceFunc{Name: "collect-loop", Fn: func(ctx context.Context) error {
		collectRuns.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for dataRuns.Load() == 0 || collectRuns.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("services did not start")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected tree exit error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancellation")
	}
}

func TestTreeRestartsCrashedService(t *testing.T) {
	tree := NewTree(TreeConfig{FailureBackoff: 10 * time.Millisecond})

	var runs atomic.Int32
	tree.AddCollectService(ServiceFunc{Name: "flaky", Fn: func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("first run crashes")
		}
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := tree.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("service was not restarted, runs=%d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

type fakeServer struct {
	started  chan struct{}
	shutdown atomic.Bool
	release  chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{started: make(chan struct{}), release: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	close(f.started)
	<-f.release
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown.Store(true)
	close(f.release)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	srv := newFakeServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	select {
	case <-srv.started:
	case <-time.After(time.Second):
		t.Fatal("server never started")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("service did not return after cancellation")
	}
	if !srv.shutdown.Load() {
		t.Error("Shutdown was never called")
	}
}

type failingServer struct{}

func (failingServer) ListenAndServe() error          { return errors.New("bind: address in use") }
func (failingServer) Shutdown(context.Context) error { return nil }

func TestHTTPServiceReportsStartupFailure(t *testing.T) {
	svc := NewHTTPService(failingServer{}, time.Second)
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("expected startup failure to surface")
	}
}
