package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/ebay"
	"github.com/lysyi3m/ebay-watchlist/app/ingest"
)

type RefreshListingTask struct {
	Task
	refresher ListingRefresher
}

func NewRefreshListingTask(itemID string, refresher ListingRefresher) *RefreshListingTask {
	return &RefreshListingTask{
		Task:      NewTask(TaskTypeRefreshListing, itemID),
		refresher: refresher,
	}
}

func (t *RefreshListingTask) Execute(ctx context.Context) error {
	updated, err := t.refresher.RefreshListing(ctx, t.Subject)
	switch {
	case errors.Is(err, ingest.ErrListingGone), errors.Is(err, database.ErrListingNotFound):
		slog.Info("Listing not refreshed", "item_id", t.Subject, "reason", err)
		return nil
	case errors.Is(err, ebay.ErrAuthentication):
		return &FatalError{Err: err}
	case err != nil:
		return err
	}

	slog.Info("Task completed",
		"type", "RefreshListing",
		"item_id", t.Subject,
		"duration", t.GetDuration(),
		"bids", updated.BidCount)

	return nil
}
