// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQueryCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "videos"))
	RecordDBQuery("insert", "videos", 5*time.Millisecond, errors.New("boom"))
	RecordDBQuery("insert", "videos", 5*time.Millisecond, nil)
	after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "videos"))
	if after-before != 1 {
		t.Errorf("expected exactly one error increment, got %v", after-before)
	}
}

func TestRecordUpstreamRequest(t *testing.T) {
	before := testutil.ToFloat64(UpstreamRequests.WithLabelValues("src1", "ok"))
	RecordUpstreamRequest("src1", "ok", 120*time.Millisecond)
	after := testutil.ToFloat64(UpstreamRequests.WithLabelValues("src1", "ok"))
	if after-before != 1 {
		t.Errorf("expected one request increment, got %v", after-before)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/videos", "200"))
	RecordAPIRequest("GET", "/api/videos", "200", 10*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/videos", "200"))
	if after-before != 1 {
		t.Errorf("expected one API increment, got %v", after-before)
	}
}
