// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package database

import (
	"context"
	"fmt"

	"github.com/vodhive/vodhive/internal/models"
)

// ListCategoryMappings returns all upstream type-id mappings. Implements
// the classifier's MappingStore interface.
func (db *DB) ListCategoryMappings(ctx context.Context) ([]models.CategoryMapping, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source_family, ext_type_id, ext_type_name, type_id
		FROM category_mappings ORDER BY source_family, ext_type_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list category mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.CategoryMapping
	for rows.Next() {
		var m models.CategoryMapping
		if err := rows.Scan(&m.ID, &m.SourceFamily, &m.ExtTypeID, &m.ExtTypeName, &m.TypeID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListSubCategories returns all sub-categories. Implements the classifier's
// MappingStore interface.
func (db *DB) ListSubCategories(ctx context.Context) ([]models.SubCategory, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, parent_id, name FROM sub_categories ORDER BY parent_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sub categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.SubCategory
	for rows.Next() {
		var s models.SubCategory
		if err := rows.Scan(&s.ID, &s.ParentID, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertCategoryMapping stores or replaces a mapping for (family, ext id).
func (db *DB) UpsertCategoryMapping(ctx context.Context, m *models.CategoryMapping) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO category_mappings (source_family, ext_type_id, ext_type_name, type_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_family, ext_type_id) DO UPDATE SET
			ext_type_name = excluded.ext_type_name,
			type_id = excluded.type_id`,
		m.SourceFamily, m.ExtTypeID, m.ExtTypeName, m.TypeID)
	if err != nil {
		return fmt.Errorf("failed to upsert category mapping: %w", err)
	}
	return nil
}

// UpsertSubCategory stores a sub-category under a taxonomy parent.
func (db *DB) UpsertSubCategory(ctx context.Context, s *models.SubCategory) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sub_categories (parent_id, name) VALUES (?, ?)
		ON CONFLICT(parent_id, name) DO NOTHING`,
		s.ParentID, s.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert sub category: %w", err)
	}
	return nil
}
