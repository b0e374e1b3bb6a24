package ebay

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

const (
	DefaultBaseURL       = "https://api.ebay.com"
	DefaultMarketplaceID = "EBAY_GB"
	APIScope             = "https://api.ebay.com/oauth/api_scope"

	searchPath = "/buy/browse/v1/item_summary/search"
	itemPath   = "/buy/browse/v1/item/"
	tokenPath  = "/identity/v1/oauth2/token"

	maxResponseBytes = 10 << 20
)

type Options struct {
	ClientID      string
	ClientSecret  string
	MarketplaceID string
	BaseURL       string // defaults to the production API
	TokenURL      string // defaults to BaseURL + token path
	HTTPClient    *http.Client
	// RequestsPerSecond caps outbound API calls; 0 disables the limiter.
	RequestsPerSecond float64
}

// Client talks to the Browse API. A bearer token is fetched lazily and
// replaced once when the API answers 401.
type Client struct {
	httpClient    *http.Client
	oauth         *clientcredentials.Config
	baseURL       string
	marketplaceID string
	limiter       *rate.Limiter
	validator     *Validator

	mu    sync.Mutex
	token string
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(cmp.Or(opts.BaseURL, DefaultBaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: httpClient,
		oauth: &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     cmp.Or(opts.TokenURL, baseURL+tokenPath),
			Scopes:       []string{APIScope},
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		baseURL:       baseURL,
		marketplaceID: cmp.Or(opts.MarketplaceID, DefaultMarketplaceID),
		limiter:       limiter,
		validator:     NewValidator(),
	}
}

// Authenticate exchanges the client credentials for a new bearer token,
// replacing any previous one.
func (c *Client) Authenticate(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token endpoint refused credentials: %w", ErrAuthentication, err)
		}
		return fmt.Errorf("failed to obtain marketplace token: %w", err)
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()

	slog.Debug("Marketplace token acquired", "expires_at", tok.Expiry)
	return nil
}

func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// BuildFilter restricts results to auctions and, when sellers is not empty,
// to those sellers.
func BuildFilter(sellers []string) string {
	filter := "buyingOptions:{AUCTION}"
	if len(sellers) > 0 {
		filter += ",sellers:{" + strings.Join(sellers, "|") + "}"
	}
	return filter
}

type searchResponse struct {
	Total         int               `json:"total"`
	ItemSummaries []json.RawMessage `json:"itemSummaries"`
}

// FetchLatestListings returns up to limit newly listed auctions in the
// category. Items that fail validation are logged and skipped.
func (c *Client) FetchLatestListings(ctx context.Context, sellers []string, categoryID int, limit int) ([]listing.Snapshot, error) {
	params := url.Values{}
	params.Set("category_ids", strconv.Itoa(categoryID))
	params.Set("sort", "newlyListed")
	params.Set("filter", BuildFilter(sellers))
	params.Set("limit", strconv.Itoa(limit))

	_, body, err := c.do(ctx, http.MethodGet, c.baseURL+searchPath+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to search category %d: %w", categoryID, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	snapshots, rejections := c.validator.ValidateBatch(resp.ItemSummaries)
	for _, r := range rejections {
		slog.Warn("Skipping malformed listing", "category", categoryID, "index", r.Index, "item_id", r.ItemID, "error", r.Err)
	}

	slog.Debug("Fetched listings", "category", categoryID, "sellers", len(sellers), "received", len(resp.ItemSummaries), "valid", len(snapshots))
	return snapshots, nil
}

// FetchItemSnapshot returns the raw item detail payload, or nil when the
// marketplace no longer knows the item.
func (c *Client) FetchItemSnapshot(ctx context.Context, itemID string) (json.RawMessage, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.baseURL+itemPath+url.PathEscape(itemID), http.StatusNotFound)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item %s: %w", itemID, err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// do sends an authenticated request. A 401 triggers exactly one
// re-authentication and one retry; allowed statuses are handed back as-is.
func (c *Client) do(ctx context.Context, method, endpoint string, allowed ...int) (int, []byte, error) {
	if !c.Authenticated() {
		if err := c.Authenticate(ctx); err != nil {
			return 0, nil, err
		}
	}

	status, body, err := c.send(ctx, method, endpoint)
	if err != nil {
		return 0, nil, err
	}

	if status == http.StatusUnauthorized {
		slog.Warn("Marketplace token rejected, re-authenticating", "method", method, "url", endpoint)
		c.invalidate()
		if err := c.Authenticate(ctx); err != nil {
			return 0, nil, err
		}

		status, body, err = c.send(ctx, method, endpoint)
		if err != nil {
			return 0, nil, err
		}
		if status == http.StatusUnauthorized {
			return 0, nil, fmt.Errorf("%w: %w", ErrAuthentication,
				&APIError{Method: method, URL: endpoint, StatusCode: status, Body: truncate(body)})
		}
	}

	if status >= 200 && status < 300 || slices.Contains(allowed, status) {
		return status, body, nil
	}

	return 0, nil, &APIError{Method: method, URL: endpoint, StatusCode: status, Body: truncate(body)}
}

func (c *Client) send(ctx context.Context, method, endpoint string) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.currentToken())
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.marketplaceID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to call marketplace: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
