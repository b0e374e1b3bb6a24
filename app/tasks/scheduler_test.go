package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/ebay"
	"github.com/lysyi3m/ebay-watchlist/app/ingest"
)

// MockIngester fails the first failures runs with err, then succeeds.
type MockIngester struct {
	mu       sync.Mutex
	runs     int
	failures int
	err      error
}

func (m *MockIngester) RunOnce(ctx context.Context) (*ingest.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs++
	result := &ingest.RunResult{RunID: fmt.Sprintf("run-%d", m.runs), StartedAt: time.Now().UTC()}
	if m.runs <= m.failures {
		return result, m.err
	}
	result.Created = []database.Listing{{ItemID: "new"}}
	return result, nil
}

func (m *MockIngester) Runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}

type MockPurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (m *MockPurger) PurgeEndedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 2, m.err
}

func (m *MockPurger) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cutoffs)
}

type MockRefresher struct {
	mu   sync.Mutex
	ids  []string
	err  error
	done chan struct{}
}

func (m *MockRefresher) RefreshListing(ctx context.Context, itemID string) (*database.Listing, error) {
	m.mu.Lock()
	m.ids = append(m.ids, itemID)
	m.mu.Unlock()
	if m.done != nil {
		defer close(m.done)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &database.Listing{ItemID: itemID, BidCount: 3}, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestNewSchedulerDefaults(t *testing.T) {
	scheduler := NewScheduler(&MockIngester{}, &MockPurger{}, nil, Config{})

	if scheduler.workerCount != DefaultWorkers {
		t.Errorf("Expected worker count %d, got %d", DefaultWorkers, scheduler.workerCount)
	}
	if scheduler.fetchInterval != 10*time.Minute {
		t.Errorf("Expected fetch interval 10m, got %v", scheduler.fetchInterval)
	}
	if scheduler.cleanupInterval != 24*time.Hour {
		t.Errorf("Expected cleanup interval 24h, got %v", scheduler.cleanupInterval)
	}
	if scheduler.retentionDays != 180 {
		t.Errorf("Expected retention 180 days, got %d", scheduler.retentionDays)
	}

	stats := scheduler.Stats()
	if stats.Running || stats.Workers != 1 || stats.TotalProcessed != 0 {
		t.Errorf("Unexpected initial stats: %+v", stats)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	ingester := &MockIngester{}
	purger := &MockPurger{}
	scheduler := NewScheduler(ingester, purger, nil, Config{
		FetchInterval:   30 * time.Millisecond,
		CleanupInterval: time.Hour,
		RetentionDays:   30,
		Workers:         2,
	})

	scheduler.Start()
	waitFor(t, 2*time.Second, func() bool { return ingester.Runs() >= 2 && purger.Calls() >= 1 })
	scheduler.Stop()

	stats := scheduler.Stats()
	if stats.Running {
		t.Error("Expected scheduler to be stopped")
	}
	if stats.TotalProcessed < 3 {
		t.Errorf("Expected at least 3 processed tasks, got %d", stats.TotalProcessed)
	}
	if stats.LastFetchAt == nil || stats.LastCreated != 1 {
		t.Errorf("Expected last fetch to be recorded, got %+v", stats)
	}

	purger.mu.Lock()
	cutoff := purger.cutoffs[0]
	purger.mu.Unlock()
	expected := time.Now().UTC().AddDate(0, 0, -30)
	if diff := expected.Sub(cutoff); diff < 0 || diff > time.Minute {
		t.Errorf("Expected cutoff ~30 days ago, got %v", cutoff)
	}

	select {
	case err := <-scheduler.Errors():
		t.Errorf("Expected no reported errors, got %v", err)
	default:
	}
}

func TestSchedulerRetriesFailedFetch(t *testing.T) {
	ingester := &MockIngester{failures: 1, err: errors.New("marketplace returned 503")}
	scheduler := NewScheduler(ingester, nil, nil, Config{FetchInterval: time.Hour, CleanupInterval: time.Hour})
	scheduler.retryBase = 10 * time.Millisecond

	scheduler.Start()
	waitFor(t, 2*time.Second, func() bool { return ingester.Runs() >= 2 })
	scheduler.Stop()

	stats := scheduler.Stats()
	if stats.TotalErrors != 1 {
		t.Errorf("Expected 1 failed execution, got %d", stats.TotalErrors)
	}
	select {
	case err := <-scheduler.Errors():
		t.Errorf("Expected recovered fetch not to be reported, got %v", err)
	default:
	}
}

func TestSchedulerReportsExhaustedRetries(t *testing.T) {
	ingester := &MockIngester{failures: 100, err: errors.New("marketplace returned 503")}
	scheduler := NewScheduler(ingester, nil, nil, Config{FetchInterval: time.Hour, CleanupInterval: time.Hour})
	scheduler.retryBase = time.Millisecond

	scheduler.Start()
	defer scheduler.Stop()

	select {
	case err := <-scheduler.Errors():
		if ingester.Runs() != DefaultMaxRetries+1 {
			t.Errorf("Expected %d attempts, got %d", DefaultMaxRetries+1, ingester.Runs())
		}
		if err == nil {
			t.Error("Expected an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected exhausted retries to be reported")
	}
}

func TestSchedulerReportsAuthenticationFailure(t *testing.T) {
	ingester := &MockIngester{failures: 100, err: fmt.Errorf("category 619: %w", ebay.ErrAuthentication)}
	scheduler := NewScheduler(ingester, nil, nil, Config{FetchInterval: time.Hour, CleanupInterval: time.Hour})

	scheduler.Start()
	defer scheduler.Stop()

	select {
	case err := <-scheduler.Errors():
		if !errors.Is(err, ebay.ErrAuthentication) {
			t.Errorf("Expected ErrAuthentication, got %v", err)
		}
		if ingester.Runs() != 1 {
			t.Errorf("Expected no retry for an authentication failure, got %d runs", ingester.Runs())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected authentication failure to be reported")
	}
}

func TestSchedulerCleanupFailureIsNotReported(t *testing.T) {
	purger := &MockPurger{err: errors.New("database is locked")}
	scheduler := NewScheduler(&MockIngester{}, purger, nil, Config{
		FetchInterval:   time.Hour,
		CleanupInterval: 20 * time.Millisecond,
	})
	scheduler.retryBase = time.Millisecond

	scheduler.Start()
	waitFor(t, 2*time.Second, func() bool { return purger.Calls() >= 2 })
	scheduler.Stop()

	select {
	case err := <-scheduler.Errors():
		t.Errorf("Expected cleanup failures to stay local, got %v", err)
	default:
	}
}

func TestEnqueueRefresh(t *testing.T) {
	refresher := &MockRefresher{done: make(chan struct{})}
	scheduler := NewScheduler(&MockIngester{}, nil, refresher, Config{FetchInterval: time.Hour, CleanupInterval: time.Hour})

	scheduler.Start()
	defer scheduler.Stop()

	id, err := scheduler.EnqueueRefresh("v1|9|0")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if id == "" {
		t.Error("Expected a task id")
	}

	select {
	case <-refresher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected refresh to run")
	}

	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	if len(refresher.ids) != 1 || refresher.ids[0] != "v1|9|0" {
		t.Errorf("Expected refresh of v1|9|0, got %v", refresher.ids)
	}
}

func TestEnqueueRefreshWithoutRefresher(t *testing.T) {
	scheduler := NewScheduler(&MockIngester{}, nil, nil, Config{})
	if _, err := scheduler.EnqueueRefresh("x"); err == nil {
		t.Error("Expected error without a refresher")
	}
}

func TestEnqueueTaskQueueFull(t *testing.T) {
	scheduler := NewScheduler(&MockIngester{}, nil, nil, Config{})
	for i := 0; i < cap(scheduler.taskQueue); i++ {
		if err := scheduler.EnqueueTask(NewFetchUpdatesTask(&MockIngester{}, nil)); err != nil {
			t.Fatalf("Unexpected error at %d: %v", i, err)
		}
	}
	if err := scheduler.EnqueueTask(NewFetchUpdatesTask(&MockIngester{}, nil)); err == nil {
		t.Error("Expected queue full error")
	}
	if scheduler.Stats().QueueSize != cap(scheduler.taskQueue) {
		t.Errorf("Expected queue size %d, got %d", cap(scheduler.taskQueue), scheduler.Stats().QueueSize)
	}
}
