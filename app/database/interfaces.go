package database

import (
	"context"
	"time"

	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

type ListingRepository interface {
	UpsertFromSnapshot(ctx context.Context, snap listing.Snapshot, scrapedCategoryID int) (*Listing, error)
	GetListing(ctx context.Context, itemID string) (*Listing, error)
	PurgeEndedBefore(ctx context.Context, cutoff time.Time) (int, error)

	ListingsCreatedSince(ctx context.Context, since time.Time) ([]Listing, error)
	Latest(ctx context.Context, limit int) ([]Listing, error)
	LatestForSeller(ctx context.Context, seller string, limit int) ([]Listing, error)
	LatestForCategory(ctx context.Context, scrapedCategoryID int, limit int) ([]Listing, error)

	QueryListings(ctx context.Context, q ListingQuery) ([]ListingRow, error)
	CountListings(ctx context.Context, q ListingQuery) (int, error)
	DistinctSellers(ctx context.Context, search string, limit int) ([]string, error)
	DistinctCategoryNames(ctx context.Context, search string, scrapedCategoryIDs []int, limit int) ([]string, error)
	ScrapedCategories(ctx context.Context) ([]ScrapedCategory, error)
	Stats(ctx context.Context) (*Stats, error)
}

type UserStateRepository interface {
	SetUserState(ctx context.Context, itemID string, hidden, favorite *bool) (*ListingUserState, error)
	GetUserState(ctx context.Context, itemID string) (*ListingUserState, error)
}

type NoteRepository interface {
	UpsertNote(ctx context.Context, itemID, text string) (*ListingNote, error)
	GetNote(ctx context.Context, itemID string) (*ListingNote, error)
}

type SellerRepository interface {
	AddSeller(ctx context.Context, username string) error
	RemoveSeller(ctx context.Context, username string) (bool, error)
	EnabledSellers(ctx context.Context) ([]string, error)
	ListSellers(ctx context.Context) ([]WatchedSeller, error)
}

type CategoryRepository interface {
	AddCategory(ctx context.Context, categoryID int) error
	DisableCategory(ctx context.Context, categoryID int) (bool, error)
	EnabledCategories(ctx context.Context) ([]int, error)
	ListCategories(ctx context.Context) ([]WatchedCategory, error)
}

var (
	_ ListingRepository   = (*ListingStore)(nil)
	_ UserStateRepository = (*UserStateStore)(nil)
	_ NoteRepository      = (*NoteStore)(nil)
	_ SellerRepository    = (*SellerStore)(nil)
	_ CategoryRepository  = (*CategoryStore)(nil)
)
