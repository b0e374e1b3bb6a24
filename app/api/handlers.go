package api

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/feed"
	"github.com/lysyi3m/ebay-watchlist/app/ingest"
)

func NewHandler(deps Deps) *Handler {
	generator := deps.Generator
	if generator == nil {
		generator = feed.NewGenerator(deps.Version)
	}

	return &Handler{
		listings:   deps.Listings,
		states:     deps.States,
		notes:      deps.Notes,
		sellers:    deps.Sellers,
		categories: deps.Categories,
		generator:  generator,
		refresher:  deps.Refresher,
		scheduler:  deps.Scheduler,
		baseURL:    strings.TrimRight(deps.BaseURL, "/"),
		version:    deps.Version,
		now:        time.Now,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	ctx := c.Request.Context()

	limit := defaultFeedLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPageSize {
			c.Status(http.StatusBadRequest)
			return
		}
		limit = n
	}

	var (
		listings []database.Listing
		err      error
		channel  = feed.Channel{Link: h.baseURL}
	)

	switch {
	case c.Query("seller") != "":
		seller := c.Query("seller")
		listings, err = h.listings.LatestForSeller(ctx, seller, limit)
		channel.Title = "eBay Watchlist: " + seller
	case c.Query("category") != "":
		categoryID, convErr := strconv.Atoi(c.Query("category"))
		if convErr != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		listings, err = h.listings.LatestForCategory(ctx, categoryID, limit)
		channel.Title = "eBay Watchlist: category " + strconv.Itoa(categoryID)
	default:
		listings, err = h.listings.Latest(ctx, limit)
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_feed_listings", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if h.baseURL != "" {
		channel.SelfURL = h.baseURL + c.Request.URL.RequestURI()
	}

	rss, err := h.generator.Run(channel, listings)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(listings)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": h.now().In(time.Local).Format(time.RFC3339),
	}

	if h.scheduler != nil {
		stats := h.scheduler.Stats()
		scheduler := map[string]interface{}{
			"running":         stats.Running,
			"workers":         stats.Workers,
			"queue_size":      stats.QueueSize,
			"total_processed": stats.TotalProcessed,
			"total_errors":    stats.TotalErrors,
		}
		if stats.LastFetchAt != nil {
			scheduler["last_fetch_at"] = stats.LastFetchAt.Format(time.RFC3339)
			scheduler["last_fetch_run_id"] = stats.LastFetchRunID
			scheduler["last_created"] = stats.LastCreated
		}
		health["scheduler"] = scheduler
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.listings.Stats(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings":  stats.Total,
		"active":    stats.Active,
		"hidden":    stats.Hidden,
		"favorites": stats.Favorites,
		"notes":     stats.Notes,
	})
}

func (h *Handler) APIListItems(c *gin.Context) {
	ctx := c.Request.Context()

	q := database.ListingQuery{
		Sellers:       normalizeMulti(c.QueryArray("seller")),
		CategoryNames: normalizeMulti(c.QueryArray("category")),
		Search:        strings.TrimSpace(c.Query("q")),
		FavoritesOnly: isTruthy(c.Query("favorite")),
		IncludeHidden: isTruthy(c.Query("show_hidden")),
		Sort:          database.ParseSortMode(c.Query("sort")),
		Page:          positiveInt(c.Query("page"), 1),
		PageSize:      min(positiveInt(c.Query("page_size"), DefaultPageSize), MaxPageSize),
	}

	if isTruthy(c.Query("last_24h")) {
		since := h.now().UTC().Add(-recentListingSpan)
		q.ListedSince = &since
	}

	if mains := normalizeMulti(c.QueryArray("main_category")); len(mains) > 0 {
		ids, err := h.resolveMainCategories(c, mains)
		if err != nil {
			slog.Error("Database error", "operation", "resolve_main_categories", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		q.ScrapedCategoryIDs = ids
	}

	total, err := h.listings.CountListings(ctx, q)
	if err != nil {
		slog.Error("Database error", "operation", "count_listings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	totalPages := max(1, (total+q.PageSize-1)/q.PageSize)
	q.Page = min(q.Page, totalPages)

	rows, err := h.listings.QueryListings(ctx, q)
	if err != nil {
		slog.Error("Database error", "operation", "query_listings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	now := h.now()
	items := make([]ItemRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, newItemRow(row, now))
	}

	c.JSON(http.StatusOK, ItemsPage{
		Items:      items,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    q.Page < totalPages,
		HasPrev:    q.Page > 1,
		Sort:       string(q.Sort),
	})
}

// resolveMainCategories accepts watched category ids or their display names.
// Names that match no watched category are ignored.
func (h *Handler) resolveMainCategories(c *gin.Context, values []string) ([]int, error) {
	var (
		ids    []int
		byName map[string]int
	)

	for _, v := range values {
		if id, err := strconv.Atoi(v); err == nil && id > 0 {
			ids = append(ids, id)
			continue
		}

		if byName == nil {
			categories, err := h.listings.ScrapedCategories(c.Request.Context())
			if err != nil {
				return nil, err
			}
			byName = make(map[string]int, len(categories))
			for _, cat := range categories {
				byName[strings.ToLower(cat.Name)] = cat.ID
			}
		}

		if id, ok := byName[strings.ToLower(v)]; ok && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (h *Handler) APISetFavorite(c *gin.Context) {
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	h.setUserState(c, nil, req.Value)
}

func (h *Handler) APISetHidden(c *gin.Context) {
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	h.setUserState(c, req.Value, nil)
}

func (h *Handler) setUserState(c *gin.Context, hidden, favorite *bool) {
	itemID := c.Param("id")

	state, err := h.states.SetUserState(c.Request.Context(), itemID, hidden, favorite)
	if errors.Is(err, database.ErrListingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "set_user_state", "item_id", itemID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item_id":  state.ItemID,
		"hidden":   state.Hidden,
		"favorite": state.Favorite,
	})
}

func (h *Handler) APISetNote(c *gin.Context) {
	itemID := c.Param("id")

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()

	// clearing a note on an unknown item would otherwise succeed silently
	existing, err := h.listings.GetListing(ctx, itemID)
	if err != nil {
		slog.Error("Database error", "operation", "get_listing", "item_id", itemID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	note, err := h.notes.UpsertNote(ctx, itemID, *req.NoteText)
	if errors.Is(err, database.ErrListingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "upsert_note", "item_id", itemID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if note == nil {
		c.JSON(http.StatusOK, gin.H{"item_id": itemID, "note_text": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item_id":            note.ItemID,
		"note_text":          note.Text,
		"note_created_at":    note.CreatedAt,
		"note_last_modified": note.LastModifiedAt,
	})
}

func (h *Handler) APIRefreshItem(c *gin.Context) {
	itemID := c.Param("id")

	if h.scheduler != nil {
		taskID, err := h.scheduler.EnqueueRefresh(itemID)
		if err != nil {
			slog.Error("Error enqueueing refresh task", "item_id", itemID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Failed to enqueue refresh task",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"message": "Refresh task enqueued",
			"item_id": itemID,
			"task_id": taskID,
		})
		return
	}

	if h.refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Item refresh is not configured"})
		return
	}

	updated, err := h.refresher.RefreshListing(c.Request.Context(), itemID)
	switch {
	case errors.Is(err, database.ErrListingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	case errors.Is(err, ingest.ErrListingGone):
		c.JSON(http.StatusGone, gin.H{"error": "Item is no longer available on the marketplace"})
		return
	case err != nil:
		slog.Error("Item refresh failed", "item_id", itemID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Item refresh failed", "details": err.Error()})
		return
	}

	row := database.ListingRow{Listing: *updated}
	if state, err := h.states.GetUserState(c.Request.Context(), itemID); err == nil && state != nil {
		row.Hidden = state.Hidden
		row.Favorite = state.Favorite
	}
	if note, err := h.notes.GetNote(c.Request.Context(), itemID); err == nil {
		row.Note = note
	}

	c.JSON(http.StatusOK, newItemRow(row, h.now()))
}

func (h *Handler) APISuggestSellers(c *gin.Context) {
	sellers, err := h.listings.DistinctSellers(c.Request.Context(), strings.TrimSpace(c.Query("q")), suggestionLimit)
	if err != nil {
		slog.Error("Database error", "operation", "suggest_sellers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": nonNil(sellers)})
}

func (h *Handler) APISuggestCategories(c *gin.Context) {
	var scraped []int
	if mains := normalizeMulti(c.QueryArray("main_category")); len(mains) > 0 {
		ids, err := h.resolveMainCategories(c, mains)
		if err != nil {
			slog.Error("Database error", "operation", "resolve_main_categories", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		scraped = ids
	}

	names, err := h.listings.DistinctCategoryNames(c.Request.Context(), strings.TrimSpace(c.Query("q")), scraped, suggestionLimit)
	if err != nil {
		slog.Error("Database error", "operation", "suggest_categories", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": nonNil(names)})
}

func (h *Handler) APISuggestMainCategories(c *gin.Context) {
	categories, err := h.listings.ScrapedCategories(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "scraped_categories", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	suggestions := make([]gin.H, 0, len(categories))
	for _, cat := range categories {
		suggestions = append(suggestions, gin.H{"id": cat.ID, "name": cat.Name})
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h *Handler) APIGetWatchlist(c *gin.Context) {
	ctx := c.Request.Context()

	sellers, err := h.sellers.ListSellers(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "list_sellers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	categories, err := h.categories.ListCategories(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "list_categories", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	sellerRows := make([]gin.H, 0, len(sellers))
	for _, s := range sellers {
		sellerRows = append(sellerRows, gin.H{"username": s.Username, "enabled": s.Enabled, "created_at": s.CreatedAt})
	}
	categoryRows := make([]gin.H, 0, len(categories))
	for _, cat := range categories {
		categoryRows = append(categoryRows, gin.H{"category_id": cat.CategoryID, "enabled": cat.Enabled, "created_at": cat.CreatedAt})
	}

	c.JSON(http.StatusOK, gin.H{
		"sellers":    sellerRows,
		"categories": categoryRows,
	})
}

func (h *Handler) APIAddSeller(c *gin.Context) {
	var req sellerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username must not be empty"})
		return
	}

	if err := h.sellers.AddSeller(c.Request.Context(), username); err != nil {
		slog.Error("Database error", "operation", "add_seller", "seller", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Seller added to watchlist", "seller", username)
	c.JSON(http.StatusCreated, gin.H{"username": username, "enabled": true})
}

func (h *Handler) APIRemoveSeller(c *gin.Context) {
	username := c.Param("username")

	removed, err := h.sellers.RemoveSeller(c.Request.Context(), username)
	if err != nil {
		slog.Error("Database error", "operation", "remove_seller", "seller", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Seller not found"})
		return
	}

	slog.Info("Seller removed from watchlist", "seller", username)
	c.Status(http.StatusNoContent)
}

func (h *Handler) APIAddCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.categories.AddCategory(c.Request.Context(), req.CategoryID); err != nil {
		slog.Error("Database error", "operation", "add_category", "category_id", req.CategoryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Category added to watchlist", "category_id", req.CategoryID)
	c.JSON(http.StatusCreated, gin.H{"category_id": req.CategoryID, "enabled": true})
}

func (h *Handler) APIDisableCategory(c *gin.Context) {
	categoryID, err := strconv.Atoi(c.Param("id"))
	if err != nil || categoryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category id"})
		return
	}

	disabled, err := h.categories.DisableCategory(c.Request.Context(), categoryID)
	if err != nil {
		slog.Error("Database error", "operation", "disable_category", "category_id", categoryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !disabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
		return
	}

	slog.Info("Category disabled", "category_id", categoryID)
	c.Status(http.StatusNoContent)
}

func normalizeMulti(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func positiveInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
