package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/ebay-watchlist/app/ingest"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultFetchInterval   = 10 * time.Minute
	DefaultCleanupInterval = 24 * time.Hour
	DefaultWorkers         = 1

	taskTimeout   = 5 * time.Minute
	maxRetryDelay = 30 * time.Second
)

type Config struct {
	FetchInterval   time.Duration
	CleanupInterval time.Duration
	RetentionDays   int
	Workers         int
}

// Stats is a point-in-time view of scheduler activity.
type Stats struct {
	Running        bool
	Workers        int
	QueueSize      int
	TotalProcessed int64
	TotalErrors    int64
	LastFetchAt    *time.Time
	LastFetchRunID string
	LastCreated    int
}

type Scheduler struct {
	ingester  Ingester
	purger    Purger
	refresher ListingRefresher

	fetchInterval   time.Duration
	cleanupInterval time.Duration
	retentionDays   int
	workerCount     int
	retryBase       time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
	errs      chan error

	mu    sync.Mutex
	stats Stats
}

func NewScheduler(ingester Ingester, purger Purger, refresher ListingRefresher, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = DefaultFetchInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	return &Scheduler{
		ingester:        ingester,
		purger:          purger,
		refresher:       refresher,
		fetchInterval:   cfg.FetchInterval,
		cleanupInterval: cfg.CleanupInterval,
		retentionDays:   cfg.RetentionDays,
		workerCount:     cfg.Workers,
		retryBase:       time.Second,
		ctx:             ctx,
		cancel:          cancel,
		taskQueue:       make(chan TaskInterface, 100),
		errs:            make(chan error, 1),
		stats:           Stats{Workers: cfg.Workers},
	}
}

// Errors delivers failures of critical tasks that could not be recovered.
func (s *Scheduler) Errors() <-chan error {
	return s.errs
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	s.stats.Running = true
	s.mu.Unlock()

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		fetchTicker := time.NewTicker(s.fetchInterval)
		defer fetchTicker.Stop()
		cleanupTicker := time.NewTicker(s.cleanupInterval)
		defer cleanupTicker.Stop()

		s.enqueueFetch()
		s.enqueueCleanup()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-fetchTicker.C:
				s.enqueueFetch()
			case <-cleanupTicker.C:
				s.enqueueCleanup()
			}
		}
	}()

	slog.Info("Scheduler started",
		"workers", s.workerCount,
		"fetch_interval", s.fetchInterval.String(),
		"cleanup_interval", s.cleanupInterval.String(),
		"retention_days", s.retentionDays)
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.stats.Running = false
	s.mu.Unlock()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueRefresh schedules a single-listing refresh.
func (s *Scheduler) EnqueueRefresh(itemID string) (string, error) {
	if s.refresher == nil {
		return "", fmt.Errorf("listing refresh is not available")
	}
	task := NewRefreshListingTask(itemID, s.refresher)
	return task.GetID(), s.EnqueueTask(task)
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.QueueSize = len(s.taskQueue)
	return stats
}

func (s *Scheduler) enqueueFetch() {
	if err := s.EnqueueTask(NewFetchUpdatesTask(s.ingester, s.recordFetch)); err != nil {
		slog.Warn("Failed to enqueue FetchUpdatesTask", "error", err)
	}
}

func (s *Scheduler) enqueueCleanup() {
	if s.purger == nil {
		return
	}
	if err := s.EnqueueTask(NewCleanupTask(s.retentionDays, s.purger)); err != nil {
		slog.Warn("Failed to enqueue CleanupTask", "error", err)
	}
}

func (s *Scheduler) recordFetch(result *ingest.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := result.StartedAt
	s.stats.LastFetchAt = &at
	s.stats.LastFetchRunID = result.RunID
	s.stats.LastCreated = len(result.Created)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)

	s.mu.Lock()
	s.stats.TotalProcessed++
	if err != nil {
		s.stats.TotalErrors++
	}
	s.mu.Unlock()

	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if s.ctx.Err() != nil {
		return
	}

	if !isFatal(err) && task.CanRetry() {
		task.IncrementRetryCount()
		retryDelay := s.retryBase * time.Duration(1<<uint(task.GetRetryCount()-1))
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}

		slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

		go func() {
			select {
			case <-time.After(retryDelay):
			case <-s.ctx.Done():
				slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
				return
			}
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}()
		return
	}

	if isFatal(err) {
		slog.Error("Task failed with unrecoverable error", "type", string(task.GetType()), "id", task.GetID(), "error", err)
	} else if task.GetMaxRetries() > 0 {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
	}

	if task.IsCritical() {
		s.report(fmt.Errorf("%s task failed: %w", task.GetType(), err))
	}
}

// report keeps the first unread failure.
func (s *Scheduler) report(err error) {
	select {
	case s.errs <- err:
	default:
	}
}
