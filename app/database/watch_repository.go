package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SellerStore is the registry of watched seller usernames
type SellerStore struct {
	db  *DB
	now func() time.Time
}

func NewSellerStore(db *DB) *SellerStore {
	return &SellerStore{db: db, now: time.Now}
}

// AddSeller registers a seller, re-enabling it if it already exists
func (r *SellerStore) AddSeller(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("seller username is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watched_sellers (username, enabled, created_at)
		VALUES (?, TRUE, ?)
		ON CONFLICT (username) DO UPDATE SET enabled = TRUE
	`, username, dbTime(r.now()))
	if err != nil {
		return fmt.Errorf("failed to add seller: %w", err)
	}
	return nil
}

// RemoveSeller deletes the seller and reports whether it was registered
func (r *SellerStore) RemoveSeller(ctx context.Context, username string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM watched_sellers WHERE username = ?`, strings.TrimSpace(username))
	if err != nil {
		return false, fmt.Errorf("failed to remove seller: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove seller: %w", err)
	}
	return n > 0, nil
}

func (r *SellerStore) EnabledSellers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT username FROM watched_sellers WHERE enabled = TRUE ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get enabled sellers: %w", err)
	}
	defer rows.Close()

	var sellers []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("failed to scan seller row: %w", err)
		}
		sellers = append(sellers, username)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating seller rows: %w", err)
	}

	return sellers, nil
}

func (r *SellerStore) ListSellers(ctx context.Context) ([]WatchedSeller, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT username, enabled, created_at FROM watched_sellers ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sellers: %w", err)
	}
	defer rows.Close()

	var sellers []WatchedSeller
	for rows.Next() {
		var s WatchedSeller
		if err := rows.Scan(&s.Username, &s.Enabled, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan seller row: %w", err)
		}
		s.CreatedAt = s.CreatedAt.UTC()
		sellers = append(sellers, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating seller rows: %w", err)
	}

	return sellers, nil
}

// CategoryStore is the registry of watched marketplace categories
type CategoryStore struct {
	db  *DB
	now func() time.Time
}

func NewCategoryStore(db *DB) *CategoryStore {
	return &CategoryStore{db: db, now: time.Now}
}

// AddCategory registers a category, re-enabling it if it already exists
func (r *CategoryStore) AddCategory(ctx context.Context, categoryID int) error {
	if categoryID <= 0 {
		return fmt.Errorf("invalid category id %d", categoryID)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watched_categories (category_id, enabled, created_at)
		VALUES (?, TRUE, ?)
		ON CONFLICT (category_id) DO UPDATE SET enabled = TRUE
	`, categoryID, dbTime(r.now()))
	if err != nil {
		return fmt.Errorf("failed to add category: %w", err)
	}
	return nil
}

// DisableCategory keeps the row but stops polling it. Stored listings are untouched.
func (r *CategoryStore) DisableCategory(ctx context.Context, categoryID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE watched_categories SET enabled = FALSE WHERE category_id = ?
	`, categoryID)
	if err != nil {
		return false, fmt.Errorf("failed to disable category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to disable category: %w", err)
	}
	return n > 0, nil
}

func (r *CategoryStore) EnabledCategories(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category_id FROM watched_categories WHERE enabled = TRUE ORDER BY category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get enabled categories: %w", err)
	}
	defer rows.Close()

	var categories []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rows: %w", err)
	}

	return categories, nil
}

func (r *CategoryStore) ListCategories(ctx context.Context) ([]WatchedCategory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category_id, enabled, created_at FROM watched_categories ORDER BY category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []WatchedCategory
	for rows.Next() {
		var c WatchedCategory
		if err := rows.Scan(&c.CategoryID, &c.Enabled, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rows: %w", err)
	}

	return categories, nil
}
