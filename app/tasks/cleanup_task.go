package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const DefaultRetentionDays = 180

type CleanupTask struct {
	Task
	RetentionDays int
	purger        Purger
	now           func() time.Time
}

// NewCleanupTask purges listings that ended more than retentionDays ago.
// Cleanup is never retried; the next tick tries again.
func NewCleanupTask(retentionDays int, purger Purger) *CleanupTask {
	task := &CleanupTask{
		Task:          NewTask(TaskTypeCleanup, fmt.Sprintf("%dd", retentionDays)),
		RetentionDays: retentionDays,
		purger:        purger,
		now:           time.Now,
	}
	task.MaxRetries = 0
	return task
}

func (t *CleanupTask) Cutoff() time.Time {
	return t.now().UTC().AddDate(0, 0, -t.RetentionDays)
}

func (t *CleanupTask) Execute(ctx context.Context) error {
	if t.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1, got %d", t.RetentionDays)
	}

	cutoff := t.Cutoff()
	deleted, err := t.purger.PurgeEndedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge expired listings: %w", err)
	}

	slog.Info("Task completed",
		"type", "Cleanup",
		"duration", t.GetDuration(),
		"retention_days", t.RetentionDays,
		"cutoff", cutoff,
		"deleted", deleted)

	return nil
}
