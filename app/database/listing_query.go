package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const likeEscaper = `\`

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeReplacer.Replace(strings.ToLower(s)) + "%"
}

// whereClause builds the filter part shared by QueryListings and CountListings.
func (r *ListingStore) whereClause(q ListingQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if len(q.Sellers) > 0 {
		conds = append(conds, "l.seller_name IN ("+placeholders(len(q.Sellers))+")")
		for _, s := range q.Sellers {
			args = append(args, s)
		}
	}
	if len(q.CategoryNames) > 0 {
		conds = append(conds, "l.category_name IN ("+placeholders(len(q.CategoryNames))+")")
		for _, c := range q.CategoryNames {
			args = append(args, c)
		}
	}
	if len(q.ScrapedCategoryIDs) > 0 {
		conds = append(conds, "l.scraped_category_id IN ("+placeholders(len(q.ScrapedCategoryIDs))+")")
		for _, id := range q.ScrapedCategoryIDs {
			args = append(args, id)
		}
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		conds = append(conds, r.db.lower("l.title")+" LIKE ? ESCAPE '"+likeEscaper+"'")
		args = append(args, containsPattern(search))
	}
	if !q.IncludeHidden {
		conds = append(conds, "COALESCE(s.hidden, FALSE) = FALSE")
	}
	if q.FavoritesOnly {
		conds = append(conds, "COALESCE(s.favorite, FALSE) = TRUE")
	}
	if q.ListedSince != nil {
		conds = append(conds, "l.creation_date >= ?")
		args = append(args, dbTime(*q.ListedSince))
	}
	// ending-soon only ever shows auctions that are still running
	if q.Sort == SortEndingSoonActive {
		conds = append(conds, "l.end_date >= ?")
		args = append(args, dbTime(r.now()))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(sort SortMode) string {
	const effectivePrice = "COALESCE(l.current_bid_price, l.price)"

	switch sort {
	case SortEndingSoonActive:
		return " ORDER BY l.end_date ASC, l.item_id"
	case SortPriceLow:
		return " ORDER BY " + effectivePrice + " IS NULL, " + effectivePrice + " ASC, l.item_id"
	case SortPriceHigh:
		return " ORDER BY " + effectivePrice + " IS NULL, " + effectivePrice + " DESC, l.item_id"
	case SortBidsDesc:
		return " ORDER BY l.bid_count DESC, l.creation_date DESC, l.item_id"
	default:
		return " ORDER BY l.creation_date DESC, l.item_id"
	}
}

const listingJoins = `
	FROM listings l
	LEFT JOIN listing_states s ON s.item_id = l.item_id
	LEFT JOIN listing_notes n ON n.item_id = l.item_id`

// QueryListings returns one page of listings with their user state and note.
func (r *ListingStore) QueryListings(ctx context.Context, q ListingQuery) ([]ListingRow, error) {
	where, args := r.whereClause(q)

	query := `SELECT ` + listingColumns + `, s.hidden, s.favorite, n.note_text, n.created_at, n.last_modified_at` +
		listingJoins + where + orderClause(q.Sort)

	if q.PageSize > 0 {
		page := max(q.Page, 1)
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.PageSize, (page-1)*q.PageSize)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var result []ListingRow
	for rows.Next() {
		var (
			hidden, favorite         sql.NullBool
			noteText                 sql.NullString
			noteCreated, noteChanged sql.NullTime
		)

		l, err := scanListing(rows, &hidden, &favorite, &noteText, &noteCreated, &noteChanged)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}

		row := ListingRow{Listing: *l, Hidden: hidden.Bool, Favorite: favorite.Bool}
		if noteText.Valid {
			row.Note = &ListingNote{
				ItemID:         l.ItemID,
				Text:           noteText.String,
				CreatedAt:      noteCreated.Time.UTC(),
				LastModifiedAt: noteChanged.Time.UTC(),
			}
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listing rows: %w", err)
	}

	return result, nil
}

// CountListings counts every listing matching q, ignoring pagination.
func (r *ListingStore) CountListings(ctx context.Context, q ListingQuery) (int, error) {
	where, args := r.whereClause(q)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+listingJoins+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

// DistinctSellers suggests seller names containing search.
func (r *ListingStore) DistinctSellers(ctx context.Context, search string, limit int) ([]string, error) {
	return r.queryStrings(ctx, `
		SELECT DISTINCT seller_name FROM listings
		WHERE `+r.db.lower("seller_name")+` LIKE ? ESCAPE '`+likeEscaper+`'
		ORDER BY seller_name
		LIMIT ?
	`, containsPattern(search), limit)
}

// DistinctCategoryNames suggests category names containing search, optionally
// restricted to listings seen under the given watched categories.
func (r *ListingStore) DistinctCategoryNames(ctx context.Context, search string, scrapedCategoryIDs []int, limit int) ([]string, error) {
	query := `SELECT DISTINCT category_name FROM listings WHERE ` + r.db.lower("category_name") + ` LIKE ? ESCAPE '` + likeEscaper + `'`
	args := []any{containsPattern(search)}

	if len(scrapedCategoryIDs) > 0 {
		query += " AND scraped_category_id IN (" + placeholders(len(scrapedCategoryIDs)) + ")"
		for _, id := range scrapedCategoryIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY category_name LIMIT ?"
	args = append(args, limit)

	return r.queryStrings(ctx, query, args...)
}

// ScrapedCategories lists the watched categories that have listings, named
// after the alphabetically first category seen under each.
func (r *ListingStore) ScrapedCategories(ctx context.Context) ([]ScrapedCategory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT scraped_category_id, MIN(category_name)
		FROM listings
		GROUP BY scraped_category_id
		ORDER BY scraped_category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get scraped categories: %w", err)
	}
	defer rows.Close()

	var categories []ScrapedCategory
	for rows.Next() {
		var c ScrapedCategory
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan scraped category row: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scraped category rows: %w", err)
	}

	return categories, nil
}

// Stats returns counts of listings overall, still running, and with user state.
func (r *ListingStore) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN l.end_date >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN s.hidden = TRUE THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN s.favorite = TRUE THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN n.item_id IS NOT NULL THEN 1 ELSE 0 END), 0)
	`+listingJoins, dbTime(r.now())).Scan(&s.Total, &s.Active, &s.Hidden, &s.Favorites, &s.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing stats: %w", err)
	}
	return &s, nil
}

func (r *ListingStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion row: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestion rows: %w", err)
	}

	return values, nil
}
