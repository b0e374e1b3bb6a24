package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/shopspring/decimal"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

func TestLoopOptionsValidate(t *testing.T) {
	valid := loopOptions{FetchInterval: 10, CleanupInterval: 1440, RetentionDays: 180, Workers: 1, Limit: 100}
	if err := valid.validate(); err != nil {
		t.Fatalf("Expected defaults to be valid, got: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(o *loopOptions)
		errText string
	}{
		{"fetch interval", func(o *loopOptions) { o.FetchInterval = 0 }, "fetch interval"},
		{"cleanup interval", func(o *loopOptions) { o.CleanupInterval = -5 }, "cleanup interval"},
		{"retention", func(o *loopOptions) { o.RetentionDays = 0 }, "retention days"},
		{"workers", func(o *loopOptions) { o.Workers = 0 }, "workers"},
		{"limit too low", func(o *loopOptions) { o.Limit = 0 }, "limit"},
		{"limit too high", func(o *loopOptions) { o.Limit = 201 }, "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			err := o.validate()
			if err == nil || !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Expected error containing %q, got %v", tt.errText, err)
			}
		})
	}
}

func TestSchedulerConfig(t *testing.T) {
	c := loopOptions{FetchInterval: 5, CleanupInterval: 60, RetentionDays: 30, Workers: 2}.schedulerConfig()

	if c.FetchInterval != 5*time.Minute || c.CleanupInterval != time.Hour {
		t.Errorf("Expected intervals 5m and 1h, got %v and %v", c.FetchInterval, c.CleanupInterval)
	}
	if c.RetentionDays != 30 || c.Workers != 2 {
		t.Errorf("Unexpected scheduler config: %+v", c)
	}
}

func parseCommand(t *testing.T, name string, command flags.Commander, args ...string) {
	t.Helper()

	var global struct{}
	p := flags.NewParser(&global, flags.None)
	if _, err := p.AddCommand(name, "", "", command); err != nil {
		t.Fatal(err)
	}
	p.CommandHandler = func(flags.Commander, []string) error { return nil }

	if _, err := p.ParseArgs(append([]string{name}, args...)); err != nil {
		t.Fatalf("Failed to parse %s: %v", name, err)
	}
}

func TestCommandDefaults(t *testing.T) {
	loop := &RunLoopCommand{}
	parseCommand(t, "run-loop", loop, "--workers", "3")
	if loop.Loop.FetchInterval != 10 || loop.Loop.CleanupInterval != 1440 || loop.Loop.Workers != 3 || loop.Loop.RetentionDays != 180 {
		t.Errorf("Unexpected run-loop options: %+v", loop.Loop)
	}

	fetch := &FetchUpdatesCommand{}
	parseCommand(t, "fetch-updates", fetch)
	if fetch.Limit != 100 {
		t.Errorf("Expected default limit 100, got %d", fetch.Limit)
	}

	cleanup := &CleanupCommand{}
	parseCommand(t, "cleanup", cleanup)
	if cleanup.Days != 180 {
		t.Errorf("Expected default retention 180, got %d", cleanup.Days)
	}

	refresh := &RefreshItemCommand{}
	parseCommand(t, "refresh-item", refresh, "146213547890")
	if refresh.Args.ItemID != "146213547890" {
		t.Errorf("Expected positional item id, got %q", refresh.Args.ItemID)
	}
}

func TestPrintListings(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	listings := []database.Listing{
		{
			ItemID:          "146213547890",
			Title:           "Roland Juno-106",
			SellerName:      "synthbarn",
			BidCount:        4,
			CurrentBidPrice: &listing.Price{Amount: decimal.RequireFromString("912.5"), Currency: "GBP"},
			EndDate:         now.Add(50 * time.Hour),
		},
		{
			ItemID:     "146213547891",
			Title:      "Snare",
			SellerName: "drumshop",
			EndDate:    now.Add(-2 * time.Hour),
		},
	}

	var buf bytes.Buffer
	if err := printListings(&buf, listings, now); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ITEM") {
		t.Errorf("Expected header row, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "912.50 GBP") || !strings.Contains(lines[1], "from now") {
		t.Errorf("Unexpected first row: %q", lines[1])
	}
	if !strings.Contains(lines[2], "n/a") || !strings.Contains(lines[2], "2 hours ago") {
		t.Errorf("Unexpected second row: %q", lines[2])
	}
}

func TestValidateLimit(t *testing.T) {
	for _, limit := range []int{1, 100, 200} {
		if err := validateLimit(limit); err != nil {
			t.Errorf("Expected limit %d to be valid, got %v", limit, err)
		}
	}
	for _, limit := range []int{0, -1, 201} {
		if err := validateLimit(limit); err == nil {
			t.Errorf("Expected limit %d to be rejected", limit)
		}
	}
}
