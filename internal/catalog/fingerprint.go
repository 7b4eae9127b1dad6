// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package catalog owns the deduplicated video store: identity fingerprints,
// completeness scoring, merge-on-ingest, language/quality version grouping
// and duplicate housekeeping.
package catalog

import (
	"hash/fnv"
	"strconv"
	"strings"
	"unicode"
)

// Fingerprint derives the stable video id from the identity quadruple.
// Inputs are lowercased and stripped of all whitespace before hashing, so
// "流浪地球 " and "流浪地球" land on the same row. The hash is rendered in
// base 36 to keep ids short and URL-safe.
func Fingerprint(name, year, area, firstDirector string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalize(name)))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(normalize(year)))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(normalize(area)))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(normalize(firstDirector)))
	return strconv.FormatUint(h.Sum64(), 36)
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
