package api

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/feed"
	"github.com/lysyi3m/ebay-watchlist/app/ingest"
	"github.com/lysyi3m/ebay-watchlist/app/tasks"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 500

	defaultFeedLimit  = 100
	suggestionLimit   = 20
	recentListingSpan = 24 * time.Hour
)

type GeneratorInterface interface {
	Run(channel feed.Channel, listings []database.Listing) (string, error)
}

type RefresherInterface interface {
	RefreshListing(ctx context.Context, itemID string) (*database.Listing, error)
}

var (
	_ GeneratorInterface = (*feed.Generator)(nil)
	_ RefresherInterface = (*ingest.Refresher)(nil)
)

// Deps are the collaborators of the HTTP handlers. Refresher and Scheduler
// are optional.
type Deps struct {
	Listings   database.ListingRepository
	States     database.UserStateRepository
	Notes      database.NoteRepository
	Sellers    database.SellerRepository
	Categories database.CategoryRepository
	Generator  GeneratorInterface
	Refresher  RefresherInterface
	Scheduler  tasks.TaskSchedulerInterface
	// BaseURL is the public address of the service, used for feed self links.
	BaseURL string
	Version string
}

type Handler struct {
	listings   database.ListingRepository
	states     database.UserStateRepository
	notes      database.NoteRepository
	sellers    database.SellerRepository
	categories database.CategoryRepository
	generator  GeneratorInterface
	refresher  RefresherInterface
	scheduler  tasks.TaskSchedulerInterface
	baseURL    string
	version    string
	now        func() time.Time
}

type ItemRow struct {
	ItemID           string     `json:"item_id"`
	Title            string     `json:"title"`
	ImageURL         string     `json:"image_url"`
	Price            *string    `json:"price"`
	Currency         *string    `json:"currency"`
	Bids             int        `json:"bids"`
	Seller           string     `json:"seller"`
	Category         string     `json:"category"`
	PostedAt         time.Time  `json:"posted_at"`
	EndsAt           time.Time  `json:"ends_at"`
	EndsIn           string     `json:"ends_in"`
	WebURL           string     `json:"web_url"`
	Hidden           bool       `json:"hidden"`
	Favorite         bool       `json:"favorite"`
	NoteText         *string    `json:"note_text"`
	NoteCreatedAt    *time.Time `json:"note_created_at"`
	NoteLastModified *time.Time `json:"note_last_modified"`
}

func newItemRow(row database.ListingRow, now time.Time) ItemRow {
	item := ItemRow{
		ItemID:   row.ItemID,
		Title:    row.Title,
		ImageURL: row.ImageURL,
		Bids:     row.BidCount,
		Seller:   row.SellerName,
		Category: row.CategoryName,
		PostedAt: row.ListedDate,
		EndsAt:   row.EndDate,
		EndsIn:   humanize.RelTime(row.EndDate, now, "ago", "from now"),
		WebURL:   row.WebURL,
		Hidden:   row.Hidden,
		Favorite: row.Favorite,
	}

	if price := row.DisplayPrice(); price != nil {
		amount := price.Amount.StringFixed(2)
		item.Price = &amount
		item.Currency = &price.Currency
	}

	if row.Note != nil {
		item.NoteText = &row.Note.Text
		item.NoteCreatedAt = &row.Note.CreatedAt
		item.NoteLastModified = &row.Note.LastModifiedAt
	}

	return item
}

type ItemsPage struct {
	Items      []ItemRow `json:"items"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
	HasNext    bool      `json:"has_next"`
	HasPrev    bool      `json:"has_prev"`
	Sort       string    `json:"sort"`
}

type flagRequest struct {
	Value *bool `json:"value" binding:"required"`
}

type noteRequest struct {
	NoteText *string `json:"note_text" binding:"required"`
}

type sellerRequest struct {
	Username string `json:"username" binding:"required"`
}

type categoryRequest struct {
	CategoryID int `json:"category_id" binding:"required,gt=0"`
}
