package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/ebay"
	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

const DefaultLimit = 100

type ListingFetcher interface {
	FetchLatestListings(ctx context.Context, sellers []string, categoryID int, limit int) ([]listing.Snapshot, error)
}

type ListingStore interface {
	UpsertFromSnapshot(ctx context.Context, snap listing.Snapshot, scrapedCategoryID int) (*database.Listing, error)
	GetListing(ctx context.Context, itemID string) (*database.Listing, error)
	ListingsCreatedSince(ctx context.Context, since time.Time) ([]database.Listing, error)
}

type Watchlist interface {
	EnabledSellers(ctx context.Context) ([]string, error)
	EnabledCategories(ctx context.Context) ([]int, error)
}

type Notifier interface {
	NotifyNewListings(ctx context.Context, listings []database.Listing) error
}

type RunResult struct {
	RunID      string
	StartedAt  time.Time
	Categories int
	Fetched    int
	Stored     int
	// Created holds listings first seen since StartedAt. A listing written
	// by a concurrent run inside the same window is counted as well.
	Created []database.Listing
}

type Orchestrator struct {
	fetcher   ListingFetcher
	store     ListingStore
	watchlist Watchlist
	notifier  Notifier
	limit     int
	now       func() time.Time
}

// NewOrchestrator wires one ingestion pass. notifier may be nil.
func NewOrchestrator(fetcher ListingFetcher, store ListingStore, watchlist Watchlist, notifier Notifier, limit int) *Orchestrator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Orchestrator{
		fetcher:   fetcher,
		store:     store,
		watchlist: watchlist,
		notifier:  notifier,
		limit:     limit,
		now:       time.Now,
	}
}

// RunOnce polls every enabled category with the full enabled-seller list and
// reconciles the results. A failing category does not stop the others; their
// errors are joined into the returned error alongside a non-nil result.
// An authentication failure ends the run immediately.
func (o *Orchestrator) RunOnce(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC(),
	}

	sellers, err := o.watchlist.EnabledSellers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load watched sellers: %w", err)
	}
	categories, err := o.watchlist.EnabledCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load watched categories: %w", err)
	}

	if len(categories) == 0 {
		slog.Warn("No enabled categories, nothing to fetch", "run_id", result.RunID)
		return result, nil
	}

	var errs []error
	for _, categoryID := range categories {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		fetched, stored, err := o.ingestCategory(ctx, sellers, categoryID)
		result.Categories++
		result.Fetched += fetched
		result.Stored += stored

		if err != nil {
			slog.Error("Category ingestion failed", "run_id", result.RunID, "category", categoryID, "error", err)
			errs = append(errs, fmt.Errorf("category %d: %w", categoryID, err))
			if errors.Is(err, ebay.ErrAuthentication) {
				break
			}
		}
	}

	created, err := o.store.ListingsCreatedSince(ctx, result.StartedAt)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load created listings: %w", err))
	}
	result.Created = created

	slog.Info("Ingestion run completed",
		"run_id", result.RunID,
		"categories", result.Categories,
		"sellers", len(sellers),
		"fetched", result.Fetched,
		"stored", result.Stored,
		"created", len(result.Created),
		"failed", len(errs))

	if len(result.Created) > 0 && o.notifier != nil {
		if err := o.notifier.NotifyNewListings(ctx, result.Created); err != nil {
			slog.Warn("Failed to send notifications", "run_id", result.RunID, "created", len(result.Created), "error", err)
		}
	}

	return result, errors.Join(errs...)
}

func (o *Orchestrator) ingestCategory(ctx context.Context, sellers []string, categoryID int) (int, int, error) {
	slog.Debug("Fetching category", "category", categoryID, "sellers", sellers)

	snapshots, err := o.fetcher.FetchLatestListings(ctx, sellers, categoryID, o.limit)
	if err != nil {
		return 0, 0, err
	}

	stored := 0
	for _, snap := range snapshots {
		if _, err := o.store.UpsertFromSnapshot(ctx, snap, categoryID); err != nil {
			return len(snapshots), stored, fmt.Errorf("failed to store listing %s: %w", snap.ExternalID, err)
		}
		stored++
	}

	return len(snapshots), stored, nil
}
