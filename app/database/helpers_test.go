package database

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "watchlist.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSnapshot(id, seller string, end time.Time) listing.Snapshot {
	listed := end.Add(-7 * 24 * time.Hour)
	return listing.Snapshot{
		ExternalID:         id,
		Title:              "Vintage synth " + id,
		CategoryCandidates: []listing.CategoryCandidate{{ID: 777, Name: "Keyboards"}},
		ImageURL:           "https://i.ebayimg.com/images/" + id + ".jpg",
		SellerUsername:     seller,
		Condition:          "Used",
		ShippingOptions:    json.RawMessage(`[{"shippingCostType":"FIXED"}]`),
		BuyingOptions:      json.RawMessage(`["AUCTION"]`),
		ListPrice:          &listing.Price{Amount: decimal.RequireFromString("10.00"), Currency: "GBP"},
		BidCount:           0,
		WebURL:             "https://www.ebay.co.uk/itm/" + id,
		OriginDate:         listed,
		ListedDate:         listed,
		EndDate:            end,
	}
}
