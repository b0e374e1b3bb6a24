package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/ingest"
)

// TaskSchedulerInterface is what the HTTP API needs from a running scheduler.
type TaskSchedulerInterface interface {
	EnqueueTask(task TaskInterface) error
	EnqueueRefresh(itemID string) (string, error)
	Stats() Stats
}

type Ingester interface {
	RunOnce(ctx context.Context) (*ingest.RunResult, error)
}

type Purger interface {
	PurgeEndedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type ListingRefresher interface {
	RefreshListing(ctx context.Context, itemID string) (*database.Listing, error)
}
