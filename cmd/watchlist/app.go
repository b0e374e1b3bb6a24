package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lysyi3m/ebay-watchlist/app/cfg"
	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/ebay"
	"github.com/lysyi3m/ebay-watchlist/app/ingest"
	"github.com/lysyi3m/ebay-watchlist/app/notify"
	"github.com/lysyi3m/ebay-watchlist/app/watchlist"
)

// services holds the components shared by all commands.
type services struct {
	cfg        *cfg.Cfg
	db         *database.DB
	listings   *database.ListingStore
	states     *database.UserStateStore
	notes      *database.NoteStore
	sellers    *database.SellerStore
	categories *database.CategoryStore
	registry   *watchlist.Registry
}

func openServices() (*services, error) {
	c, err := opts.Resolve()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.Open(c.DatabaseURL)
	if err != nil {
		return nil, err
	}

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Database ready", "dialect", db.Dialect(), "migration_version", version, "dirty", dirty)

	s := &services{
		cfg:        c,
		db:         db,
		listings:   database.NewListingStore(db),
		states:     database.NewUserStateStore(db),
		notes:      database.NewNoteStore(db),
		sellers:    database.NewSellerStore(db),
		categories: database.NewCategoryStore(db),
	}
	s.registry = watchlist.NewRegistry(s.sellers, s.categories)
	return s, nil
}

func (s *services) Close() {
	if err := s.db.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

func (s *services) marketplace() (*ebay.Client, error) {
	if err := s.cfg.RequireMarketplace(); err != nil {
		return nil, err
	}
	return ebay.NewClient(ebay.Options{
		ClientID:          s.cfg.ClientID,
		ClientSecret:      s.cfg.ClientSecret,
		MarketplaceID:     s.cfg.MarketplaceID,
		HTTPClient:        &http.Client{Timeout: s.cfg.HTTPTimeout},
		RequestsPerSecond: s.cfg.RequestsPerSecond,
	}), nil
}

func (s *services) notifier() ingest.Notifier {
	if !s.cfg.NotificationsEnabled {
		return nil
	}
	return notify.NewNotifier(notify.Options{
		Server:        s.cfg.NtfyServer,
		Topic:         s.cfg.NtfyTopic,
		WebserviceURL: s.cfg.WebserviceURL,
		HTTPClient:    &http.Client{Timeout: s.cfg.HTTPTimeout},
	})
}

func (s *services) orchestrator(client *ebay.Client, limit int) *ingest.Orchestrator {
	return ingest.NewOrchestrator(client, s.listings, s.registry, s.notifier(), limit)
}

func (s *services) refresher(client *ebay.Client) *ingest.Refresher {
	return ingest.NewRefresher(client, ebay.NewValidator(), s.listings)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
