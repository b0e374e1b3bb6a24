package database

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

func rowIDs(rows []ListingRow) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ItemID)
	}
	return ids
}

func TestQueryListingsEndingSoonExcludesEnded(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewListingStore(db)
	store.now = func() time.Time { return now }

	for id, end := range map[string]time.Time{
		"ended": now.Add(-time.Hour),
		"soon":  now.Add(time.Hour),
		"later": now.Add(3 * time.Hour),
	} {
		if _, err := store.UpsertFromSnapshot(ctx, newTestSnapshot(id, "s", end), 1); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := store.QueryListings(ctx, ListingQuery{Sort: SortEndingSoonActive})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := rowIDs(rows); !slices.Equal(got, []string{"soon", "later"}) {
		t.Errorf("Expected [soon later], got %v", got)
	}

	all, err := store.CountListings(ctx, ListingQuery{Sort: SortNewest})
	if err != nil {
		t.Fatal(err)
	}
	if all != 3 {
		t.Errorf("Expected newest sort to keep ended listings, got %d", all)
	}
}

func TestQueryListingsFilters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewListingStore(db)
	states := NewUserStateStore(db)
	notes := NewNoteStore(db)
	end := time.Now().Add(48 * time.Hour)

	fixtures := []struct {
		id, seller, title string
		scraped           int
	}{
		{"1", "alpha", "Moog Minimoog Model D", 10},
		{"2", "alpha", "Roland Juno-106", 10},
		{"3", "beta", "Korg MS-20 mini", 20},
		{"4", "gamma", "100% working Moog_Sub 37", 20},
		{"5", "gamma", "Über Synth Émulateur", 30},
	}
	for _, f := range fixtures {
		snap := newTestSnapshot(f.id, f.seller, end)
		snap.Title = f.title
		if _, err := store.UpsertFromSnapshot(ctx, snap, f.scraped); err != nil {
			t.Fatal(err)
		}
	}

	yes := true
	if _, err := states.SetUserState(ctx, "2", &yes, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := states.SetUserState(ctx, "3", nil, &yes); err != nil {
		t.Fatal(err)
	}
	if _, err := notes.UpsertNote(ctx, "3", "check pots"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		query    ListingQuery
		expected []string
	}{
		{"hidden excluded by default", ListingQuery{}, []string{"1", "3", "4", "5"}},
		{"hidden included", ListingQuery{IncludeHidden: true}, []string{"1", "2", "3", "4", "5"}},
		{"seller filter", ListingQuery{Sellers: []string{"alpha"}, IncludeHidden: true}, []string{"1", "2"}},
		{"scraped category filter", ListingQuery{ScrapedCategoryIDs: []int{20}}, []string{"3", "4"}},
		{"category name filter", ListingQuery{CategoryNames: []string{"Keyboards"}}, []string{"1", "3", "4", "5"}},
		{"case-insensitive search", ListingQuery{Search: "MOOG"}, []string{"1", "4"}},
		{"non-ASCII exact case", ListingQuery{Search: "Über"}, []string{"5"}},
		{"non-ASCII folded", ListingQuery{Search: "über"}, []string{"5"}},
		{"non-ASCII upper", ListingQuery{Search: "ÉMULATEUR"}, []string{"5"}},
		{"search wildcards are literal", ListingQuery{Search: "100%"}, []string{"4"}},
		{"underscore is literal", ListingQuery{Search: "g_s"}, []string{"4"}},
		{"favorites only", ListingQuery{FavoritesOnly: true}, []string{"3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.QueryListings(ctx, tt.query)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			got := rowIDs(rows)
			slices.Sort(got)
			if !slices.Equal(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}

			count, err := store.CountListings(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if count != len(tt.expected) {
				t.Errorf("Expected count %d, got %d", len(tt.expected), count)
			}
		})
	}

	rows, err := store.QueryListings(ctx, ListingQuery{FavoritesOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Note == nil || rows[0].Note.Text != "check pots" || !rows[0].Favorite {
		t.Errorf("Expected joined favorite state and note, got %+v", rows)
	}
}

func TestQueryListingsPriceSortAndPagination(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewListingStore(db)
	end := time.Now().Add(48 * time.Hour)

	prices := map[string]*listing.Price{
		"cheap":   {Amount: decimal.RequireFromString("5.00"), Currency: "GBP"},
		"mid":     {Amount: decimal.RequireFromString("50.00"), Currency: "GBP"},
		"pricey":  {Amount: decimal.RequireFromString("500.00"), Currency: "GBP"},
		"noprice": nil,
	}
	for id, p := range prices {
		snap := newTestSnapshot(id, "s", end)
		snap.ListPrice = p
		if id == "mid" {
			// bid outranks list price
			snap.ListPrice = &listing.Price{Amount: decimal.RequireFromString("1.00"), Currency: "GBP"}
			snap.CurrentBidPrice = p
		}
		if _, err := store.UpsertFromSnapshot(ctx, snap, 1); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := store.QueryListings(ctx, ListingQuery{Sort: SortPriceLow})
	if err != nil {
		t.Fatal(err)
	}
	if got := rowIDs(rows); !slices.Equal(got, []string{"cheap", "mid", "pricey", "noprice"}) {
		t.Errorf("Expected ascending price with missing last, got %v", got)
	}

	rows, err = store.QueryListings(ctx, ListingQuery{Sort: SortPriceHigh})
	if err != nil {
		t.Fatal(err)
	}
	if got := rowIDs(rows); !slices.Equal(got, []string{"pricey", "mid", "cheap", "noprice"}) {
		t.Errorf("Expected descending price with missing last, got %v", got)
	}

	page, err := store.QueryListings(ctx, ListingQuery{Sort: SortPriceLow, Page: 2, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got := rowIDs(page); !slices.Equal(got, []string{"pricey", "noprice"}) {
		t.Errorf("Expected second page [pricey noprice], got %v", got)
	}
}

func TestQueryListingsBidsDesc(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewListingStore(db)
	end := time.Now().Add(48 * time.Hour)

	for id, bids := range map[string]int{"few": 1, "many": 9, "none": 0} {
		snap := newTestSnapshot(id, "s", end)
		snap.BidCount = bids
		if _, err := store.UpsertFromSnapshot(ctx, snap, 1); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := store.QueryListings(ctx, ListingQuery{Sort: SortBidsDesc})
	if err != nil {
		t.Fatal(err)
	}
	if got := rowIDs(rows); !slices.Equal(got, []string{"many", "few", "none"}) {
		t.Errorf("Expected [many few none], got %v", got)
	}
}

func TestSuggestionsFoldNonASCII(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewListingStore(db)

	snap := newTestSnapshot("u", "Ärzte_Audio", time.Now().Add(time.Hour))
	snap.CategoryCandidates = []listing.CategoryCandidate{{ID: 555, Name: "Équipement DJ"}}
	if _, err := store.UpsertFromSnapshot(ctx, snap, 10); err != nil {
		t.Fatal(err)
	}

	sellers, err := store.DistinctSellers(ctx, "ärzte", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sellers, []string{"Ärzte_Audio"}) {
		t.Errorf("Expected [Ärzte_Audio], got %v", sellers)
	}

	names, err := store.DistinctCategoryNames(ctx, "ÉQUIPEMENT", nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names, []string{"Équipement DJ"}) {
		t.Errorf("Expected [Équipement DJ], got %v", names)
	}
}

func TestSuggestionsAndStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewListingStore(db)
	store.now = func() time.Time { return now }

	a := newTestSnapshot("a", "AnalogHeaven", now.Add(time.Hour))
	b := newTestSnapshot("b", "analogue_dreams", now.Add(-time.Hour))
	b.CategoryCandidates = []listing.CategoryCandidate{{ID: 888, Name: "Drum Machines"}}
	c := newTestSnapshot("c", "tapeworld", now.Add(time.Hour))
	c.CategoryCandidates = []listing.CategoryCandidate{{ID: 999, Name: "Tape Decks"}}
	for scraped, snap := range map[int]listing.Snapshot{10: a, 11: b, 20: c} {
		if _, err := store.UpsertFromSnapshot(ctx, snap, scraped); err != nil {
			t.Fatal(err)
		}
	}

	sellers, err := store.DistinctSellers(ctx, "analog", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sellers, []string{"AnalogHeaven", "analogue_dreams"}) {
		t.Errorf("Expected analog sellers, got %v", sellers)
	}

	names, err := store.DistinctCategoryNames(ctx, "", []int{10, 11}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names, []string{"Drum Machines", "Keyboards"}) {
		t.Errorf("Expected [Drum Machines Keyboards], got %v", names)
	}

	scraped, err := store.ScrapedCategories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(scraped) != 3 || scraped[2].ID != 20 || scraped[2].Name != "Tape Decks" {
		t.Errorf("Expected three scraped categories ending with (20, Tape Decks), got %+v", scraped)
	}

	yes := true
	if _, err := NewUserStateStore(db).SetUserState(ctx, "a", &yes, &yes); err != nil {
		t.Fatal(err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Active != 2 || stats.Hidden != 1 || stats.Favorites != 1 || stats.Notes != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestParseSortMode(t *testing.T) {
	tests := map[string]SortMode{
		"newest":             SortNewest,
		"ending_soon_active": SortEndingSoonActive,
		"ending_soon":        SortEndingSoonActive,
		"price_low":          SortPriceLow,
		"price_high":         SortPriceHigh,
		"bids_desc":          SortBidsDesc,
		"":                   SortNewest,
		"bogus":              SortNewest,
	}
	for input, expected := range tests {
		if got := ParseSortMode(input); got != expected {
			t.Errorf("ParseSortMode(%q): expected %s, got %s", input, expected, got)
		}
	}
}
