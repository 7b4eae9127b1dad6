// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package models

import "time"

// SourceFormat declares how an upstream encodes its responses.
type SourceFormat string

const (
	FormatJSON SourceFormat = "json"
	FormatXML  SourceFormat = "xml"
	FormatAuto SourceFormat = "auto"
)

// Source is a third-party CMS-style upstream provider. Rows are immutable
// outside admin edits.
type Source struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`

	// Weight is the merge priority; higher-weight sources win field
	// tie-breaks.
	Weight int `json:"weight"`

	Active bool         `json:"active"`
	Format SourceFormat `json:"format"`

	// Family names the upstream CMS flavour ("maccms10", "feifei", ...)
	// and keys the category mapping tables.
	Family string `json:"family,omitempty"`

	// Welfare marks adult/sensitive upstreams, excluded from aggregation
	// unless both the request and system config opt in.
	Welfare bool `json:"welfare"`
}

// SourceStatus is the derived health state of an upstream.
type SourceStatus string

const (
	StatusHealthy SourceStatus = "healthy"
	StatusSlow    SourceStatus = "slow"
	StatusError   SourceStatus = "error"
	StatusTimeout SourceStatus = "timeout"
	StatusUnknown SourceStatus = "unknown"
)

// SourceHealth is the rolling health record for one source. Rows are owned
// by the health tracker; probes for the same source are serialized.
type SourceHealth struct {
	SourceID int64        `json:"source_id"`
	Status   SourceStatus `json:"status"`

	// LastResponseMs is the latency of the most recent probe.
	// AvgResponseMs is an exponential moving average with α = 0.3.
	LastResponseMs int64 `json:"last_response_ms"`
	AvgResponseMs  int64 `json:"avg_response_ms"`

	TotalChecks   int64 `json:"total_checks"`
	SuccessChecks int64 `json:"success_checks"`

	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`

	// ConsecutiveFailures resets to 0 on any success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// VideoCount is the list length observed by the last successful probe.
	VideoCount int `json:"video_count"`

	CheckedAt time.Time `json:"checked_at"`
}

// SuccessRate returns successes/checks in [0,1]; 0 when unchecked.
func (h *SourceHealth) SuccessRate() float64 {
	if h.TotalChecks == 0 {
		return 0
	}
	return float64(h.SuccessChecks) / float64(h.TotalChecks)
}

// Usable reports whether the source should receive collection traffic:
// status in {healthy, slow, unknown} and consecutive failures under the
// configured ceiling.
func (h *SourceHealth) Usable(maxConsecutiveFailures int) bool {
	switch h.Status {
	case StatusHealthy, StatusSlow, StatusUnknown:
		return h.ConsecutiveFailures < maxConsecutiveFailures
	}
	return false
}

// Rating is a third-party rating lookup result mirrored onto the video row.
type Rating struct {
	VideoID    string    `json:"video_id"`
	Score      float64   `json:"score"`
	Votes      int       `json:"votes"`
	ExternalID string    `json:"external_id,omitempty"`
	Source     string    `json:"source"`
	Status     string    `json:"status"` // success | failed
	FetchedAt  time.Time `json:"fetched_at"`
}

// AccessLog is one durable per-day hit aggregate for a video.
type AccessLog struct {
	VideoID string `json:"video_id"`
	Day     string `json:"day"` // YYYY-MM-DD
	Hits    int64  `json:"hits"`
}

// CategoryMapping maps an upstream type id (within a source family) to the
// internal taxonomy.
type CategoryMapping struct {
	ID           int64  `json:"id"`
	SourceFamily string `json:"source_family"` // "" = generic
	ExtTypeID    int    `json:"ext_type_id"`
	ExtTypeName  string `json:"ext_type_name,omitempty"`
	TypeID       int    `json:"type_id"`
}

// SubCategory is a named sub-category under a taxonomy parent.
type SubCategory struct {
	ID       int    `json:"id"`
	ParentID int    `json:"parent_id"`
	Name     string `json:"name"`
}
