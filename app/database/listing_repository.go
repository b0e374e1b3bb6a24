package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

const listingColumns = `l.item_id, l.title, l.scraped_category_id, l.category_id, l.category_name,
	l.leaf_category_id, l.category_candidates, l.image_url, l.seller_name, l.item_condition,
	l.shipping_options, l.buying_options, l.price, l.price_currency,
	l.current_bid_price, l.current_bid_price_currency, l.bid_count, l.web_url,
	l.origin_date, l.creation_date, l.end_date, l.first_seen_at, l.last_updated_at`

// ListingStore handles database operations for listings
type ListingStore struct {
	db  *DB
	now func() time.Time
}

func NewListingStore(db *DB) *ListingStore {
	return &ListingStore{db: db, now: time.Now}
}

// UpsertFromSnapshot reconciles one marketplace observation into the listings
// table. The row is keyed by item id; first_seen_at is only written on insert.
func (r *ListingStore) UpsertFromSnapshot(ctx context.Context, snap listing.Snapshot, scrapedCategoryID int) (*Listing, error) {
	categoryID, categoryName := listing.ResolveCategory(snap, scrapedCategoryID)

	candidates, err := encodeCandidates(snap.CategoryCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode category candidates: %w", err)
	}

	var leaf any
	if snap.LeafCategoryID != nil {
		leaf = *snap.LeafCategoryID
	}
	listAmount, listCurrency := priceArgs(snap.ListPrice)
	bidAmount, bidCurrency := priceArgs(snap.CurrentBidPrice)
	now := dbTime(r.now())

	var stored *Listing
	err = r.db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO listings (
				item_id, title, scraped_category_id, category_id, category_name,
				leaf_category_id, category_candidates, image_url, seller_name, item_condition,
				shipping_options, buying_options, price, price_currency,
				current_bid_price, current_bid_price_currency, bid_count, web_url,
				origin_date, creation_date, end_date, first_seen_at, last_updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (item_id) DO UPDATE SET
				title = excluded.title,
				scraped_category_id = excluded.scraped_category_id,
				category_id = excluded.category_id,
				category_name = excluded.category_name,
				leaf_category_id = excluded.leaf_category_id,
				category_candidates = excluded.category_candidates,
				image_url = excluded.image_url,
				seller_name = excluded.seller_name,
				item_condition = excluded.item_condition,
				shipping_options = excluded.shipping_options,
				buying_options = excluded.buying_options,
				price = excluded.price,
				price_currency = excluded.price_currency,
				current_bid_price = excluded.current_bid_price,
				current_bid_price_currency = excluded.current_bid_price_currency,
				bid_count = excluded.bid_count,
				web_url = excluded.web_url,
				origin_date = excluded.origin_date,
				creation_date = excluded.creation_date,
				end_date = excluded.end_date,
				last_updated_at = excluded.last_updated_at
		`, snap.ExternalID, snap.Title, scrapedCategoryID, categoryID, categoryName,
			leaf, candidates, nullString(snap.ImageURL), snap.SellerUsername, nullString(snap.Condition),
			nullJSON(snap.ShippingOptions), nullJSON(snap.BuyingOptions), listAmount, listCurrency,
			bidAmount, bidCurrency, snap.BidCount, snap.WebURL,
			dbTime(snap.OriginDate), dbTime(snap.ListedDate), dbTime(snap.EndDate), now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert listing: %w", err)
		}

		stored, err = getListing(ctx, tx, snap.ExternalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("listing %s missing after upsert", snap.ExternalID)
	}

	return stored, nil
}

// GetListing returns nil when the listing does not exist
func (r *ListingStore) GetListing(ctx context.Context, itemID string) (*Listing, error) {
	return getListing(ctx, r.db, itemID)
}

func getListing(ctx context.Context, q querier, itemID string) (*Listing, error) {
	row := q.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings l WHERE l.item_id = ?`, itemID)

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// PurgeEndedBefore deletes listings that ended before cutoff together with
// their notes and user state, and returns how many listings were removed.
func (r *ListingStore) PurgeEndedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	cutoff = dbTime(cutoff)

	var deleted int64
	err := r.db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM listing_notes
			WHERE item_id IN (SELECT item_id FROM listings WHERE end_date < ?)
		`, cutoff); err != nil {
			return fmt.Errorf("failed to delete notes of expired listings: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM listing_states
			WHERE item_id IN (SELECT item_id FROM listings WHERE end_date < ?)
		`, cutoff); err != nil {
			return fmt.Errorf("failed to delete state of expired listings: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE end_date < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to delete expired listings: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	return int(deleted), nil
}

// ListingsCreatedSince returns listings first stored at or after since, newest first.
func (r *ListingStore) ListingsCreatedSince(ctx context.Context, since time.Time) ([]Listing, error) {
	return r.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings l
		WHERE l.first_seen_at >= ?
		ORDER BY l.creation_date DESC, l.item_id
	`, dbTime(since))
}

func (r *ListingStore) LatestForSeller(ctx context.Context, seller string, limit int) ([]Listing, error) {
	return r.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings l
		WHERE l.seller_name = ?
		ORDER BY l.creation_date DESC, l.item_id
		LIMIT ?
	`, seller, limit)
}

func (r *ListingStore) LatestForCategory(ctx context.Context, scrapedCategoryID int, limit int) ([]Listing, error) {
	return r.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings l
		WHERE l.scraped_category_id = ?
		ORDER BY l.creation_date DESC, l.item_id
		LIMIT ?
	`, scrapedCategoryID, limit)
}

func (r *ListingStore) Latest(ctx context.Context, limit int) ([]Listing, error) {
	return r.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings l
		ORDER BY l.creation_date DESC, l.item_id
		LIMIT ?
	`, limit)
}

func (r *ListingStore) queryListings(ctx context.Context, query string, args ...any) ([]Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		listings = append(listings, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listing rows: %w", err)
	}

	return listings, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(s scanner, extra ...any) (*Listing, error) {
	var (
		l            Listing
		leaf         sql.NullInt64
		candidates   sql.NullString
		imageURL     sql.NullString
		condition    sql.NullString
		shipping     sql.NullString
		buying       sql.NullString
		listAmount   decimal.NullDecimal
		listCurrency sql.NullString
		bidAmount    decimal.NullDecimal
		bidCurrency  sql.NullString
	)

	dest := []any{
		&l.ItemID, &l.Title, &l.ScrapedCategoryID, &l.CategoryID, &l.CategoryName,
		&leaf, &candidates, &imageURL, &l.SellerName, &condition,
		&shipping, &buying, &listAmount, &listCurrency,
		&bidAmount, &bidCurrency, &l.BidCount, &l.WebURL,
		&l.OriginDate, &l.ListedDate, &l.EndDate, &l.FirstSeenAt, &l.LastUpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if leaf.Valid {
		v := int(leaf.Int64)
		l.LeafCategoryID = &v
	}
	if candidates.Valid && candidates.String != "" {
		if err := json.Unmarshal([]byte(candidates.String), &l.CategoryCandidates); err != nil {
			return nil, fmt.Errorf("failed to decode category candidates: %w", err)
		}
	}
	l.ImageURL = imageURL.String
	l.Condition = condition.String
	if shipping.Valid {
		l.ShippingOptions = json.RawMessage(shipping.String)
	}
	if buying.Valid {
		l.BuyingOptions = json.RawMessage(buying.String)
	}
	l.ListPrice = scanPrice(listAmount, listCurrency)
	l.CurrentBidPrice = scanPrice(bidAmount, bidCurrency)

	l.OriginDate = l.OriginDate.UTC()
	l.ListedDate = l.ListedDate.UTC()
	l.EndDate = l.EndDate.UTC()
	l.FirstSeenAt = l.FirstSeenAt.UTC()
	l.LastUpdatedAt = l.LastUpdatedAt.UTC()

	return &l, nil
}

func scanPrice(amount decimal.NullDecimal, currency sql.NullString) *listing.Price {
	if !amount.Valid || !currency.Valid || currency.String == "" {
		return nil
	}
	return &listing.Price{Amount: amount.Decimal, Currency: currency.String}
}

func priceArgs(p *listing.Price) (any, any) {
	if p == nil {
		return nil, nil
	}
	return p.Amount, p.Currency
}

func encodeCandidates(candidates []listing.CategoryCandidate) (any, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}
