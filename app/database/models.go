package database

import (
	"encoding/json"
	"time"

	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

// Listing is one persisted auction, keyed by the marketplace item id.
type Listing struct {
	ItemID             string
	Title              string
	ScrapedCategoryID  int // watched category the listing was last seen under
	CategoryID         int
	CategoryName       string
	LeafCategoryID     *int
	CategoryCandidates []listing.CategoryCandidate
	ImageURL           string
	SellerName         string
	Condition          string
	ShippingOptions    json.RawMessage
	BuyingOptions      json.RawMessage
	ListPrice          *listing.Price
	CurrentBidPrice    *listing.Price
	BidCount           int
	WebURL             string
	OriginDate         time.Time
	ListedDate         time.Time
	EndDate            time.Time
	FirstSeenAt        time.Time
	LastUpdatedAt      time.Time
}

func (l Listing) DisplayPrice() *listing.Price {
	if l.CurrentBidPrice != nil {
		return l.CurrentBidPrice
	}
	return l.ListPrice
}

type ListingUserState struct {
	ItemID        string
	Hidden        bool
	Favorite      bool
	LastUpdatedAt time.Time
}

type ListingNote struct {
	ItemID         string
	Text           string
	CreatedAt      time.Time
	LastModifiedAt time.Time
}

// ListingRow is a listing joined with its user state and note.
type ListingRow struct {
	Listing
	Hidden   bool
	Favorite bool
	Note     *ListingNote
}

type WatchedSeller struct {
	Username  string
	Enabled   bool
	CreatedAt time.Time
}

type WatchedCategory struct {
	CategoryID int
	Enabled    bool
	CreatedAt  time.Time
}

type ScrapedCategory struct {
	ID   int
	Name string
}

type Stats struct {
	Total     int
	Active    int
	Hidden    int
	Favorites int
	Notes     int
}
