// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/models"
)

const listBody = `{"code":1,"msg":"ok","page":1,"pagecount":3,"limit":"20","total":55,
	"list":[{"vod_id":101,"vod_name":"禁闭岛","type_id":6,"vod_time":"2024-01-02 10:00:00"}]}`

func testCollectConfig() config.CollectConfig {
	return config.CollectConfig{
		PageSize:       20,
		BatchSize:      5,
		RequestDelay:   time.Millisecond,
		MaxRetries:     2,
		RequestTimeout: 2 * time.Second,
	}
}

func testSource(baseURL string) *models.Source {
	return &models.Source{
		ID: 1, Name: "src1", BaseURL: baseURL,
		Active: true, Format: models.FormatAuto,
	}
}

func TestFetchListParsesResponse(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Encode())
		_, _ = w.Write([]byte(listBody))
	}))
	defer srv.Close()

	c := New(testCollectConfig())
	list, err := c.FetchList(context.Background(), testSource(srv.URL), ListOptions{Page: 2, TypeID: 6})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if list.Total != 55 || len(list.List) != 1 {
		t.Errorf("unexpected list: total=%d len=%d", list.Total, len(list.List))
	}
	if list.List[0].Name != "禁闭岛" {
		t.Errorf("unexpected video name %q", list.List[0].Name)
	}

	q := gotQuery.Load().(string)
	for _, want := range []string{"ac=list", "pg=2", "t=6"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %s", q, want)
		}
	}
}

func TestFetchDetailJoinsIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ac") != "detail" {
			t.Errorf("expected ac=detail, got %s", r.URL.Query().Get("ac"))
		}
		if r.URL.Query().Get("ids") != "101,102" {
			t.Errorf("expected joined ids, got %s", r.URL.Query().Get("ids"))
		}
		_, _ = w.Write([]byte(listBody))
	}))
	defer srv.Close()

	c := New(testCollectConfig())
	if _, err := c.FetchDetail(context.Background(), testSource(srv.URL), []string{"101", "102"}); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
}

func TestFetchRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(listBody))
	}))
	defer srv.Close()

	c := New(testCollectConfig())
	list, err := c.FetchList(context.Background(), testSource(srv.URL), ListOptions{Page: 1})
	if err != nil {
		t.Fatalf("fetch should recover on retry: %v", err)
	}
	if list.Total != 55 {
		t.Errorf("unexpected total %d", list.Total)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestFetchDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testCollectConfig())
	_, err := c.FetchList(context.Background(), testSource(srv.URL), ListOptions{Page: 1})
	if err == nil {
		t.Fatal("expected an error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Errorf("expected StatusError 404, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not retry, got %d attempts", calls.Load())
	}
}

func TestFetchDetailEmptyIDs(t *testing.T) {
	c := New(testCollectConfig())
	list, err := c.FetchDetail(context.Background(), testSource("http://unused.example"), nil)
	if err != nil {
		t.Fatalf("empty ids should short-circuit: %v", err)
	}
	if len(list.List) != 0 {
		t.Errorf("expected empty list, got %d", len(list.List))
	}
}

func TestProbeReportsCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listBody))
	}))
	defer srv.Close()

	c := New(testCollectConfig())
	elapsed, count, err := c.Probe(context.Background(), testSource(srv.URL))
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if count != 55 {
		t.Errorf("expected advertised total 55, got %d", count)
	}
	if elapsed <= 0 {
		t.Error("elapsed should be positive")
	}
}
