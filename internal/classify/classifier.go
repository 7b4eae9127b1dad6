// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package classify maps heterogeneous upstream category names and ids onto
// the fixed internal taxonomy, attaching a sub-category when one can be
// extracted.
//
// Classification layers run in priority order; the first confident result
// wins and its method label is recorded on the result:
//
//  1. type_name — ordered pattern/exclude rules over the upstream category name
//  2. keywords  — content cues over name+synopsis+remarks
//  3. type_id   — DB-backed mapping table, known-family maps, id ranges
//  4. cast      — known actor/director name lists
//  5. name      — generic title heuristics
//  6. default   — Movie at confidence 0.4
package classify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vodhive/vodhive/internal/logging"
	"github.com/vodhive/vodhive/internal/models"
)

// DefaultMappingCacheTTL is how long DB mapping tables are cached.
const DefaultMappingCacheTTL = 5 * time.Minute

// Input is the subset of a parsed upstream record the classifier reads.
type Input struct {
	Name         string
	TypeID       int
	TypeName     string
	Content      string
	Remarks      string
	Actor        string
	Director     string
	Tag          string
	SourceFamily string
}

// Result is a classification outcome. Confidence is in [0,1]; Method names
// the layer that produced the result.
type Result struct {
	TypeID      int     `json:"type_id"`
	TypeName    string  `json:"type_name"`
	SubTypeID   int     `json:"sub_type_id,omitempty"`
	SubTypeName string  `json:"sub_type_name,omitempty"`
	Confidence  float64 `json:"confidence"`
	Method      string  `json:"method"`
}

// MappingStore loads the category mapping tables from storage.
type MappingStore interface {
	ListCategoryMappings(ctx context.Context) ([]models.CategoryMapping, error)
	ListSubCategories(ctx context.Context) ([]models.SubCategory, error)
}

// Classifier applies the layered rules. Mapping tables are cached with a
// timestamp + lock; expiry is lazy on the next lookup.
type Classifier struct {
	store MappingStore
	ttl   time.Duration

	mu           sync.Mutex
	mappings     map[string]map[int]int // family -> ext type id -> type id
	subsByParent map[int][]models.SubCategory
	loadedAt     time.Time
}

// New creates a classifier backed by store. A nil store disables the DB
// mapping layer (known-family maps and id ranges still apply).
func New(store MappingStore, cacheTTL time.Duration) *Classifier {
	if cacheTTL <= 0 {
		cacheTTL = DefaultMappingCacheTTL
	}
	return &Classifier{store: store, ttl: cacheTTL}
}

// Classify runs the layered rules and always returns a result: when no rule
// is confident the default is Movie at confidence 0.4.
func (c *Classifier) Classify(ctx context.Context, in Input) Result {
	corroboration := in.Name + " " + in.Remarks
	haystack := in.Name + " " + in.Content + " " + in.Remarks + " " + in.Tag

	if typeID, conf := matchTypeName(in.TypeName, corroboration); typeID != 0 {
		return c.finish(ctx, typeID, conf, "type_name", in.TypeName+" "+haystack)
	}
	if typeID, conf := matchContent(haystack); typeID != 0 {
		return c.finish(ctx, typeID, conf, "keywords", haystack)
	}
	if typeID := c.matchTypeID(ctx, in.SourceFamily, in.TypeID); typeID != 0 {
		return c.finish(ctx, typeID, 0.85, "type_id", haystack)
	}
	if typeID, conf := matchCast(in.Actor, in.Director); typeID != 0 {
		return c.finish(ctx, typeID, conf, "cast", haystack)
	}
	if typeID, conf := matchName(in.Name); typeID != 0 {
		return c.finish(ctx, typeID, conf, "name", haystack)
	}
	return c.finish(ctx, TypeMovie, 0.4, "default", haystack)
}

// finish attaches the sub-category (if any keyword under the chosen parent
// appears in text) and resolves its id through the sub-category table.
func (c *Classifier) finish(ctx context.Context, typeID int, conf float64, method, text string) Result {
	r := Result{
		TypeID:     typeID,
		TypeName:   TypeName(typeID),
		Confidence: conf,
		Method:     method,
	}
	if sub := matchSubType(typeID, text); sub != "" {
		r.SubTypeName = sub
		r.SubTypeID = c.subTypeID(ctx, typeID, sub)
	}
	return r
}

// matchTypeID resolves an upstream type id: DB mapping for the source
// family first, then family-keyed mappings for the generic family, then the
// hard-coded known-family maps, finally the id-range heuristic.
func (c *Classifier) matchTypeID(ctx context.Context, family string, extTypeID int) int {
	if extTypeID == 0 {
		return 0
	}
	mappings := c.loadMappings(ctx)
	if byExt, ok := mappings[family]; ok {
		if typeID, ok := byExt[extTypeID]; ok {
			return typeID
		}
	}
	if byExt, ok := mappings[""]; ok {
		if typeID, ok := byExt[extTypeID]; ok {
			return typeID
		}
	}
	if byExt, ok := knownFamilyMappings[strings.ToLower(family)]; ok {
		if typeID, ok := byExt[extTypeID]; ok {
			return typeID
		}
	}
	return matchTypeIDRange(extTypeID)
}

// subTypeID looks up a sub-category name under parent in the DB table.
// Returns 0 when the table has no such row.
func (c *Classifier) subTypeID(ctx context.Context, parent int, name string) int {
	c.loadMappings(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subsByParent[parent] {
		if sub.Name == name {
			return sub.ID
		}
	}
	return 0
}

// loadMappings returns the cached mapping tables, reloading from storage
// when the cache is stale.
func (c *Classifier) loadMappings(ctx context.Context) map[string]map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mappings != nil && time.Since(c.loadedAt) < c.ttl {
		return c.mappings
	}
	if c.store == nil {
		c.mappings = map[string]map[int]int{}
		c.subsByParent = map[int][]models.SubCategory{}
		c.loadedAt = time.Now()
		return c.mappings
	}

	mappings := map[string]map[int]int{}
	rows, err := c.store.ListCategoryMappings(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Category mapping load failed, keeping stale cache")
		if c.mappings == nil {
			c.mappings = map[string]map[int]int{}
		}
		return c.mappings
	}
	for _, m := range rows {
		byExt := mappings[m.SourceFamily]
		if byExt == nil {
			byExt = map[int]int{}
			mappings[m.SourceFamily] = byExt
		}
		byExt[m.ExtTypeID] = m.TypeID
	}

	subsByParent := map[int][]models.SubCategory{}
	subs, err := c.store.ListSubCategories(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Sub-category load failed, keeping stale cache")
	} else {
		for _, s := range subs {
			subsByParent[s.ParentID] = append(subsByParent[s.ParentID], s)
		}
		c.subsByParent = subsByParent
	}

	c.mappings = mappings
	c.loadedAt = time.Now()
	return c.mappings
}

// ClearMappingCache drops both the category-mapping and sub-category
// caches; the next classification reloads them from storage.
func (c *Classifier) ClearMappingCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mappings = nil
	c.subsByParent = nil
	c.loadedAt = time.Time{}
}
