package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type NoteStore struct {
	db  *DB
	now func() time.Time
}

func NewNoteStore(db *DB) *NoteStore {
	return &NoteStore{db: db, now: time.Now}
}

// UpsertNote stores the trimmed text. Blank text removes the note and returns nil.
func (r *NoteStore) UpsertNote(ctx context.Context, itemID, text string) (*ListingNote, error) {
	text = strings.TrimSpace(text)

	if text == "" {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM listing_notes WHERE item_id = ?`, itemID); err != nil {
			return nil, fmt.Errorf("failed to delete note: %w", err)
		}
		return nil, nil
	}

	now := dbTime(r.now())

	var note *ListingNote
	err := r.db.WithTx(ctx, func(tx *Tx) error {
		if err := ensureListing(ctx, tx, itemID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO listing_notes (item_id, note_text, created_at, last_modified_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (item_id) DO UPDATE SET
				note_text = excluded.note_text,
				last_modified_at = excluded.last_modified_at
		`, itemID, text, now, now); err != nil {
			return fmt.Errorf("failed to upsert note: %w", err)
		}

		var err error
		note, err = getNote(ctx, tx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return note, nil
}

// GetNote returns nil when the listing has no note
func (r *NoteStore) GetNote(ctx context.Context, itemID string) (*ListingNote, error) {
	return getNote(ctx, r.db, itemID)
}

func getNote(ctx context.Context, q querier, itemID string) (*ListingNote, error) {
	var n ListingNote
	err := q.QueryRowContext(ctx, `
		SELECT item_id, note_text, created_at, last_modified_at
		FROM listing_notes
		WHERE item_id = ?
	`, itemID).Scan(&n.ItemID, &n.Text, &n.CreatedAt, &n.LastModifiedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}

	n.CreatedAt = n.CreatedAt.UTC()
	n.LastModifiedAt = n.LastModifiedAt.UTC()
	return &n, nil
}
