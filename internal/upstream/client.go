// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package upstream implements the HTTP client for CMS-style video list
// providers: per-source circuit breakers, request pacing and bounded retry
// with exponential backoff.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/vodhive/vodhive/internal/config"
	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/metrics"
	"github.com/vodhive/vodhive/internal/models"
	"github.com/vodhive/vodhive/internal/parser"
)

// maxBodySize caps upstream response reads at 16 MiB.
const maxBodySize = 16 << 20

// StatusError reports a non-2xx upstream response. 4xx responses are not
// retried; 5xx responses are.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d for %s", e.Code, e.URL)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500
}

// ListOptions narrows an ac=list request.
type ListOptions struct {
	Page      int
	TypeID    int    // upstream category id, 0 = all
	Keyword   string // wd= search term
	HoursBack int    // h= incremental window, 0 = full
}

// Client is a shared upstream fetcher. Safe for concurrent use; state per
// source (breaker, pacer) is created lazily.
type Client struct {
	httpClient *http.Client
	cfg        config.CollectConfig

	mu       sync.Mutex
	breakers map[int64]*gobreaker.CircuitBreaker[[]byte]
	pacers   map[int64]*rate.Limiter
}

// New builds a Client from the collection config.
func New(cfg config.CollectConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		breakers:   make(map[int64]*gobreaker.CircuitBreaker[[]byte]),
		pacers:     make(map[int64]*rate.Limiter),
	}
}

// FetchList requests one list page (ac=list) and parses it.
func (c *Client) FetchList(ctx context.Context, src *models.Source, opts ListOptions) (*parser.VideoList, error) {
	params := url.Values{}
	params.Set("ac", "list")
	if opts.Page > 0 {
		params.Set("pg", strconv.Itoa(opts.Page))
	}
	if opts.TypeID > 0 {
		params.Set("t", strconv.Itoa(opts.TypeID))
	}
	if opts.Keyword != "" {
		params.Set("wd", opts.Keyword)
	}
	if opts.HoursBack > 0 {
		params.Set("h", strconv.Itoa(opts.HoursBack))
	}
	return c.fetch(ctx, src, params)
}

// FetchDetail requests full records (ac=detail) for up to a page of ids.
func (c *Client) FetchDetail(ctx context.Context, src *models.Source, ids []string) (*parser.VideoList, error) {
	if len(ids) == 0 {
		return &parser.VideoList{}, nil
	}
	params := url.Values{}
	params.Set("ac", "detail")
	params.Set("ids", strings.Join(ids, ","))
	return c.fetch(ctx, src, params)
}

// FetchDetailPage requests a page of full records (ac=detail with paging),
// used by crawls that skip the list pass.
func (c *Client) FetchDetailPage(ctx context.Context, src *models.Source, opts ListOptions) (*parser.VideoList, error) {
	params := url.Values{}
	params.Set("ac", "detail")
	if opts.Page > 0 {
		params.Set("pg", strconv.Itoa(opts.Page))
	}
	if opts.TypeID > 0 {
		params.Set("t", strconv.Itoa(opts.TypeID))
	}
	if opts.HoursBack > 0 {
		params.Set("h", strconv.Itoa(opts.HoursBack))
	}
	return c.fetch(ctx, src, params)
}

// Probe fetches the first list page and reports latency and the advertised
// record count. Used by the health tracker.
func (c *Client) Probe(ctx context.Context, src *models.Source) (time.Duration, int, error) {
	start := time.Now()
	list, err := c.FetchList(ctx, src, ListOptions{Page: 1})
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, 0, err
	}
	count := list.Total
	if count == 0 {
		count = len(list.List)
	}
	return elapsed, count, nil
}

func (c *Client) fetch(ctx context.Context, src *models.Source, params url.Values) (*parser.VideoList, error) {
	reqURL, err := buildURL(src.BaseURL, params)
	if err != nil {
		return nil, err
	}

	if err := c.pacer(src.ID).Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.breaker(src).Execute(func() ([]byte, error) {
		return c.fetchWithRetry(ctx, src, reqURL)
	})
	if err != nil {
		return nil, err
	}

	list, err := parser.Parse(body, src.Format)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}
	return list, nil
}

// fetchWithRetry performs the request with up to MaxRetries additional
// attempts. Backoff doubles from one second and caps at five; 4xx responses
// and context cancellation abort immediately.
func (c *Client) fetchWithRetry(ctx context.Context, src *models.Source, reqURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Second << uint(attempt-1)
			if delay > 5*time.Second {
				delay = 5 * time.Second
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			logging.Debug().
				Str("source", src.Name).
				Int("attempt", attempt).
				Msg("Retrying upstream request")
		}

		body, err := c.doRequest(ctx, src, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("source %s: retries exhausted: %w", src.Name, lastErr)
}

func (c *Client) doRequest(ctx context.Context, src *models.Source, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "vodhive/1.0")
	req.Header.Set("Accept", "application/json, text/xml, */*")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.RecordUpstreamRequest(src.Name, outcome, elapsed)
		return nil, fmt.Errorf("request to %s failed: %w", src.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordUpstreamRequest(src.Name, "error", elapsed)
		return nil, &StatusError{Code: resp.StatusCode, URL: reqURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.RecordUpstreamRequest(src.Name, "error", elapsed)
		return nil, fmt.Errorf("failed to read response from %s: %w", src.Name, err)
	}

	metrics.RecordUpstreamRequest(src.Name, "ok", elapsed)
	return body, nil
}

// breaker returns (or creates) the circuit breaker for a source. Opens at a
// 60% failure rate over at least 10 requests; half-open after 2 minutes.
func (c *Client) breaker(src *models.Source) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[src.ID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        fmt.Sprintf("upstream-%d", src.ID),
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Upstream circuit breaker state changed")
		},
	})
	c.breakers[src.ID] = cb
	return cb
}

// pacer returns the per-source request pacer derived from request_delay.
func (c *Client) pacer(sourceID int64) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.pacers[sourceID]; ok {
		return l
	}
	every := c.cfg.RequestDelay
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	l := rate.NewLimiter(rate.Every(every), 1)
	c.pacers[sourceID] = l
	return l
}

func buildURL(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid source url %q: %w", base, err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
