package notify

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

const (
	DefaultServer = "https://ntfy.sh"

	// groupThreshold is the batch size from which one summary replaces
	// individual messages.
	groupThreshold = 3
	alertTag       = "rotating_light"
)

type Options struct {
	Server        string
	Topic         string
	WebserviceURL string
	HTTPClient    *http.Client
}

// Notifier publishes new-listing alerts to an ntfy topic.
type Notifier struct {
	httpClient    *http.Client
	server        string
	topic         string
	webserviceURL string
	printer       *message.Printer
}

type Action struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url"`
}

type Message struct {
	Topic   string   `json:"topic"`
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Tags    []string `json:"tags,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

func NewNotifier(opts Options) *Notifier {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{
		httpClient:    httpClient,
		server:        strings.TrimRight(cmp.Or(opts.Server, DefaultServer), "/"),
		topic:         opts.Topic,
		webserviceURL: strings.TrimRight(opts.WebserviceURL, "/"),
		printer:       message.NewPrinter(language.BritishEnglish),
	}
}

// NotifyNewListings sends one message per listing for small batches and a
// single per-seller summary otherwise. Delivery errors are joined.
func (n *Notifier) NotifyNewListings(ctx context.Context, listings []database.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	if n.topic == "" {
		slog.Warn("Notification topic is not configured, skipping notifications", "listings", len(listings))
		return nil
	}

	if len(listings) >= groupThreshold {
		return n.publish(ctx, n.groupedMessage(listings))
	}

	var errs []error
	for _, l := range listings {
		if err := n.publish(ctx, n.individualMessage(l)); err != nil {
			errs = append(errs, fmt.Errorf("listing %s: %w", l.ItemID, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) individualMessage(l database.Listing) Message {
	msg := Message{
		Topic:   n.topic,
		Title:   "New item from " + l.SellerName,
		Message: l.Title + "\nCurrent Price: " + n.FormatPrice(l.DisplayPrice()),
		Tags:    []string{alertTag},
		Actions: []Action{{Action: "view", Label: "View on ebay", URL: l.WebURL}},
	}
	if n.webserviceURL != "" {
		msg.Actions = append(msg.Actions, Action{
			Action: "view",
			Label:  "Items by " + l.SellerName,
			URL:    n.webserviceURL + "/feed.xml?seller=" + url.QueryEscape(l.SellerName),
		})
	}
	return msg
}

func (n *Notifier) groupedMessage(listings []database.Listing) Message {
	var sellers []string
	counts := map[string]int{}
	for _, l := range listings {
		if _, seen := counts[l.SellerName]; !seen {
			sellers = append(sellers, l.SellerName)
		}
		counts[l.SellerName]++
	}

	lines := make([]string, 0, len(sellers))
	for _, seller := range sellers {
		lines = append(lines, n.printer.Sprintf("%d items from: %s", counts[seller], seller))
	}

	msg := Message{
		Topic:   n.topic,
		Title:   n.printer.Sprintf("%d new items published", len(listings)),
		Message: strings.Join(lines, "\n"),
		Tags:    []string{alertTag},
	}
	if n.webserviceURL != "" {
		msg.Actions = []Action{{Action: "view", Label: "View all items", URL: n.webserviceURL + "/feed.xml"}}
	}
	return msg
}

// FormatPrice renders a price with its currency symbol, e.g. "£ 162.50".
// Codes unknown to the currency tables fall back to "162.50 XYZ".
func (n *Notifier) FormatPrice(p *listing.Price) string {
	if p == nil {
		return "n/a"
	}
	unit, err := currency.ParseISO(p.Currency)
	if err != nil {
		return p.Amount.StringFixed(2) + " " + p.Currency
	}
	return n.printer.Sprint(currency.Symbol(unit.Amount(p.Amount.InexactFloat64())))
}

func (n *Notifier) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.server, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	slog.Debug("Notification sent", "title", msg.Title)
	return nil
}
