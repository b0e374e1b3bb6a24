package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

type ntfyRecorder struct {
	mu       sync.Mutex
	messages []Message
	status   int
}

func (r *ntfyRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", req.Method)
		}
		if req.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", req.Header.Get("Content-Type"))
		}

		var msg Message
		if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
			t.Errorf("Failed to decode message: %v", err)
		}

		r.mu.Lock()
		r.messages = append(r.messages, msg)
		status := r.status
		r.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		w.Write([]byte(`{"id":"abc"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func (r *ntfyRecorder) sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

func newListing(id, seller string) database.Listing {
	return database.Listing{
		ItemID:          id,
		Title:           "Sequential Prophet " + id,
		SellerName:      seller,
		WebURL:          "https://www.ebay.co.uk/itm/" + id,
		ListPrice:       &listing.Price{Amount: decimal.RequireFromString("900.00"), Currency: "GBP"},
		CurrentBidPrice: &listing.Price{Amount: decimal.RequireFromString("1012.5"), Currency: "GBP"},
	}
}

func TestNotifyIndividualMessages(t *testing.T) {
	rec := &ntfyRecorder{}
	server := rec.server(t)
	n := NewNotifier(Options{Server: server.URL, Topic: "synths", WebserviceURL: "https://watch.example.com/", HTTPClient: server.Client()})

	err := n.NotifyNewListings(context.Background(), []database.Listing{newListing("1", "synthbarn"), newListing("2", "drum shop")})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(rec.sent()) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(rec.sent()))
	}

	msg := rec.sent()[0]
	if msg.Topic != "synths" {
		t.Errorf("Expected topic 'synths', got '%s'", msg.Topic)
	}
	if msg.Title != "New item from synthbarn" {
		t.Errorf("Unexpected title: %s", msg.Title)
	}
	if !strings.HasPrefix(msg.Message, "Sequential Prophet 1\nCurrent Price: ") || !strings.Contains(msg.Message, "1,012.50") {
		t.Errorf("Expected title and current bid in message, got %q", msg.Message)
	}
	if len(msg.Tags) != 1 || msg.Tags[0] != "rotating_light" {
		t.Errorf("Expected rotating_light tag, got %v", msg.Tags)
	}
	if len(msg.Actions) != 2 {
		t.Fatalf("Expected 2 actions, got %+v", msg.Actions)
	}
	if msg.Actions[0].Label != "View on ebay" || msg.Actions[0].URL != "https://www.ebay.co.uk/itm/1" {
		t.Errorf("Unexpected listing action: %+v", msg.Actions[0])
	}
	if msg.Actions[1].Label != "Items by synthbarn" {
		t.Errorf("Unexpected seller action: %+v", msg.Actions[1])
	}

	if got := rec.sent()[1].Actions[1].URL; got != "https://watch.example.com/feed.xml?seller=drum+shop" {
		t.Errorf("Expected escaped seller link, got %s", got)
	}
}

func TestNotifyWithoutWebserviceURL(t *testing.T) {
	rec := &ntfyRecorder{}
	server := rec.server(t)
	n := NewNotifier(Options{Server: server.URL, Topic: "synths", HTTPClient: server.Client()})

	if err := n.NotifyNewListings(context.Background(), []database.Listing{newListing("1", "a")}); err != nil {
		t.Fatal(err)
	}
	if len(rec.sent()[0].Actions) != 1 {
		t.Errorf("Expected only the listing action, got %+v", rec.sent()[0].Actions)
	}
}

func TestNotifyGroupedMessage(t *testing.T) {
	rec := &ntfyRecorder{}
	server := rec.server(t)
	n := NewNotifier(Options{Server: server.URL, Topic: "synths", WebserviceURL: "https://watch.example.com", HTTPClient: server.Client()})

	listings := []database.Listing{
		newListing("1", "synthbarn"),
		newListing("2", "drumshop"),
		newListing("3", "synthbarn"),
		newListing("4", "synthbarn"),
	}
	if err := n.NotifyNewListings(context.Background(), listings); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(rec.sent()) != 1 {
		t.Fatalf("Expected a single grouped message, got %d", len(rec.sent()))
	}
	msg := rec.sent()[0]
	if msg.Title != "4 new items published" {
		t.Errorf("Unexpected title: %s", msg.Title)
	}
	expected := "3 items from: synthbarn\n1 items from: drumshop"
	if msg.Message != expected {
		t.Errorf("Expected message %q, got %q", expected, msg.Message)
	}
	if len(msg.Actions) != 1 || msg.Actions[0].URL != "https://watch.example.com/feed.xml" {
		t.Errorf("Unexpected actions: %+v", msg.Actions)
	}
}

func TestNotifyDeliveryFailure(t *testing.T) {
	rec := &ntfyRecorder{status: http.StatusTooManyRequests}
	server := rec.server(t)
	n := NewNotifier(Options{Server: server.URL, Topic: "synths", HTTPClient: server.Client()})

	err := n.NotifyNewListings(context.Background(), []database.Listing{newListing("1", "a"), newListing("2", "b")})
	if err == nil {
		t.Fatal("Expected delivery error")
	}
	if !strings.Contains(err.Error(), "listing 1") || !strings.Contains(err.Error(), "listing 2") {
		t.Errorf("Expected both failures to be reported, got %v", err)
	}
	if len(rec.sent()) != 2 {
		t.Errorf("Expected the second message to be attempted after the first failed, got %d", len(rec.sent()))
	}
}

func TestNotifySkipsWithoutTopic(t *testing.T) {
	rec := &ntfyRecorder{}
	server := rec.server(t)
	n := NewNotifier(Options{Server: server.URL, HTTPClient: server.Client()})

	if err := n.NotifyNewListings(context.Background(), []database.Listing{newListing("1", "a")}); err != nil {
		t.Fatal(err)
	}
	if len(rec.sent()) != 0 {
		t.Errorf("Expected no messages, got %d", len(rec.sent()))
	}
}

func TestFormatPrice(t *testing.T) {
	n := NewNotifier(Options{Topic: "t"})

	tests := []struct {
		price    *listing.Price
		contains []string
	}{
		{&listing.Price{Amount: decimal.RequireFromString("162.5"), Currency: "GBP"}, []string{"£", "162.50"}},
		{&listing.Price{Amount: decimal.RequireFromString("1500"), Currency: "EUR"}, []string{"€", "1,500.00"}},
		{&listing.Price{Amount: decimal.RequireFromString("12"), Currency: "ZZZ"}, []string{"12.00 ZZZ"}},
		{nil, []string{"n/a"}},
	}

	for _, tt := range tests {
		got := n.FormatPrice(tt.price)
		for _, want := range tt.contains {
			if !strings.Contains(got, want) {
				t.Errorf("FormatPrice(%+v): expected %q in %q", tt.price, want, got)
			}
		}
	}
}
