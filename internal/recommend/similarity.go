// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package recommend

import (
	"strconv"

	"github.com/vodhive/vodhive/internal/models"
)

// Similarity component weights. The sum is 1 so scores stay in [0,1].
const (
	simTypeWeight  = 0.30
	simAreaWeight  = 0.15
	simYearWeight  = 0.10
	simActorWeight = 0.25
	simTagWeight   = 0.20

	// yearSpread is how far apart release years may be before the year
	// component bottoms out.
	yearSpread = 3.0
)

// similarity scores how well b matches the anchor a. The actor and tag
// overlaps are normalized against the anchor's list, capped at 3 actors and
// 5 tags, so sparse metadata on the anchor does not dilute strong matches.
func similarity(a, b *models.Video) float64 {
	score := 0.0
	if a.TypeID == b.TypeID {
		score += simTypeWeight
	}
	if a.Area != "" && a.Area == b.Area {
		score += simAreaWeight
	}

	ya, yb := atoiYear(a.Year), atoiYear(b.Year)
	if ya > 0 && yb > 0 {
		diff := float64(ya - yb)
		if diff < 0 {
			diff = -diff
		}
		if diff <= yearSpread {
			score += simYearWeight * (1 - diff/yearSpread)
		}
	}

	if actorsA := a.ActorList(); len(actorsA) > 0 {
		overlap := overlapCount(actorsA, b.ActorList())
		score += simActorWeight * float64(overlap) / float64(min(len(actorsA), 3))
	}
	if tagsA := a.TagList(); len(tagsA) > 0 {
		overlap := overlapCount(tagsA, b.TagList())
		score += simTagWeight * float64(overlap) / float64(min(len(tagsA), 5))
	}

	if score > 1 {
		score = 1
	}
	return score
}

// overlapCount returns how many entries the lists share.
func overlapCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	n := 0
	for _, s := range b {
		if set[s] {
			n++
		}
	}
	return n
}

func atoiYear(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
