package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/ebay-watchlist/app/ebay"
	"github.com/lysyi3m/ebay-watchlist/app/ingest"
)

type FetchUpdatesTask struct {
	Task
	ingester Ingester
	onResult func(*ingest.RunResult)
}

// NewFetchUpdatesTask runs one ingestion pass. onResult may be nil.
func NewFetchUpdatesTask(ingester Ingester, onResult func(*ingest.RunResult)) *FetchUpdatesTask {
	task := &FetchUpdatesTask{
		Task:     NewTask(TaskTypeFetchUpdates, "watchlist"),
		ingester: ingester,
		onResult: onResult,
	}
	task.Critical = true
	return task
}

func (t *FetchUpdatesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.ingester.RunOnce(ctx)
	if result != nil && t.onResult != nil {
		t.onResult(result)
	}
	if err != nil {
		if errors.Is(err, ebay.ErrAuthentication) {
			return &FatalError{Err: err}
		}
		return err
	}

	slog.Info("Task completed",
		"type", "FetchUpdates",
		"run_id", result.RunID,
		"duration", t.GetDuration(),
		"categories", result.Categories,
		"fetched", result.Fetched,
		"created", len(result.Created))

	return nil
}
