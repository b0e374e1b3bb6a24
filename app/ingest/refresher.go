package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

// ErrListingGone means the marketplace no longer knows the item.
var ErrListingGone = errors.New("listing no longer available on the marketplace")

type ItemFetcher interface {
	FetchItemSnapshot(ctx context.Context, itemID string) (json.RawMessage, error)
}

type SnapshotValidator interface {
	Validate(raw json.RawMessage) (listing.Snapshot, error)
}

type Refresher struct {
	fetcher   ItemFetcher
	validator SnapshotValidator
	store     ListingStore
}

func NewRefresher(fetcher ItemFetcher, validator SnapshotValidator, store ListingStore) *Refresher {
	return &Refresher{fetcher: fetcher, validator: validator, store: store}
}

// RefreshListing re-reads a stored listing from the marketplace. The watched
// category it was scraped under is kept, and so are the stored category
// candidates when the marketplace reply names none.
func (r *Refresher) RefreshListing(ctx context.Context, itemID string) (*database.Listing, error) {
	existing, err := r.store.GetListing(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if existing == nil {
		return nil, database.ErrListingNotFound
	}

	raw, err := r.fetcher.FetchItemSnapshot(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrListingGone
	}

	snap, err := r.validator.Validate(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to validate item %s: %w", itemID, err)
	}
	if len(snap.CategoryCandidates) == 0 {
		snap.CategoryCandidates = existing.CategoryCandidates
	}

	updated, err := r.store.UpsertFromSnapshot(ctx, snap, existing.ScrapedCategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to store listing: %w", err)
	}

	slog.Info("Listing refreshed", "item_id", itemID, "bids", updated.BidCount, "ends_at", updated.EndDate)
	return updated, nil
}
