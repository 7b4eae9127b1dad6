// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package catalog

import "github.com/vodhive/vodhive/internal/models"

// Completeness weights. The sum is 100; a row scoring 0 has neither media
// nor metadata and is a candidate for GC.
const (
	weightCover    = 20
	weightActor    = 15
	weightDirector = 10
	weightSynopsis = 25
	weightPlayURL  = 30

	minSynopsisLen = 20
	minPlayURLLen  = 10
)

// QualityScore computes the 0-100 completeness score for a video row. It is
// recomputed on every write so merges can only raise it.
func QualityScore(v *models.Video) int {
	score := 0
	if v.Cover != "" {
		score += weightCover
	}
	if v.Actor != "" {
		score += weightActor
	}
	if v.Director != "" {
		score += weightDirector
	}
	if len([]rune(v.Content)) >= minSynopsisLen {
		score += weightSynopsis
	}
	if hasPlayURL(v.PlayURLs) {
		score += weightPlayURL
	}
	return score
}

// hasPlayURL reports whether any route carries an episode with a usable URL.
func hasPlayURL(p models.PlayURLs) bool {
	for _, eps := range p {
		for _, ep := range eps {
			if len(ep.URL) >= minPlayURLLen {
				return true
			}
		}
	}
	return false
}
