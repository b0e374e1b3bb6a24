package database

import (
	"errors"
	"time"
)

var ErrListingNotFound = errors.New("listing not found")

type SortMode string

const (
	SortNewest           SortMode = "newest"
	SortEndingSoonActive SortMode = "ending_soon_active"
	SortPriceLow         SortMode = "price_low"
	SortPriceHigh        SortMode = "price_high"
	SortBidsDesc         SortMode = "bids_desc"
)

// ParseSortMode maps user input to a sort mode, falling back to newest.
func ParseSortMode(s string) SortMode {
	switch SortMode(s) {
	case SortNewest, SortEndingSoonActive, SortPriceLow, SortPriceHigh, SortBidsDesc:
		return SortMode(s)
	case "ending_soon":
		return SortEndingSoonActive
	default:
		return SortNewest
	}
}

// ListingQuery composes the filters of the listing browser. Empty slices do
// not filter. PageSize 0 returns every match.
type ListingQuery struct {
	Sellers            []string
	CategoryNames      []string
	ScrapedCategoryIDs []int
	Search             string
	FavoritesOnly      bool
	IncludeHidden      bool
	ListedSince        *time.Time
	Sort               SortMode
	Page               int
	PageSize           int
}
