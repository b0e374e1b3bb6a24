package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type UserStateStore struct {
	db  *DB
	now func() time.Time
}

func NewUserStateStore(db *DB) *UserStateStore {
	return &UserStateStore{db: db, now: time.Now}
}

// SetUserState creates the state row on first use and applies only the flags
// that are not nil.
func (r *UserStateStore) SetUserState(ctx context.Context, itemID string, hidden, favorite *bool) (*ListingUserState, error) {
	now := dbTime(r.now())

	var state *ListingUserState
	err := r.db.WithTx(ctx, func(tx *Tx) error {
		if err := ensureListing(ctx, tx, itemID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO listing_states (item_id, hidden, favorite, last_updated_at)
			VALUES (?, FALSE, FALSE, ?)
			ON CONFLICT (item_id) DO NOTHING
		`, itemID, now); err != nil {
			return fmt.Errorf("failed to create listing state: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE listing_states
			SET hidden = COALESCE(?, hidden), favorite = COALESCE(?, favorite), last_updated_at = ?
			WHERE item_id = ?
		`, hidden, favorite, now, itemID); err != nil {
			return fmt.Errorf("failed to update listing state: %w", err)
		}

		var err error
		state, err = getUserState(ctx, tx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// GetUserState returns nil when no flag was ever set for the listing
func (r *UserStateStore) GetUserState(ctx context.Context, itemID string) (*ListingUserState, error) {
	return getUserState(ctx, r.db, itemID)
}

func getUserState(ctx context.Context, q querier, itemID string) (*ListingUserState, error) {
	var s ListingUserState
	err := q.QueryRowContext(ctx, `
		SELECT item_id, hidden, favorite, last_updated_at
		FROM listing_states
		WHERE item_id = ?
	`, itemID).Scan(&s.ItemID, &s.Hidden, &s.Favorite, &s.LastUpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing state: %w", err)
	}

	s.LastUpdatedAt = s.LastUpdatedAt.UTC()
	return &s, nil
}

func ensureListing(ctx context.Context, q querier, itemID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM listings WHERE item_id = ?`, itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrListingNotFound, itemID)
	}
	if err != nil {
		return fmt.Errorf("failed to check listing: %w", err)
	}
	return nil
}
