package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lysyi3m/ebay-watchlist/app/api"
	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/feed"
	"github.com/lysyi3m/ebay-watchlist/app/ingest"
	"github.com/lysyi3m/ebay-watchlist/app/tasks"
)

const maxFetchLimit = 200

type FetchUpdatesCommand struct {
	Limit int `long:"limit" default:"100" description:"Maximum listings requested per category (1-200)"`
}

func (c *FetchUpdatesCommand) Execute(args []string) error {
	if err := validateLimit(c.Limit); err != nil {
		return err
	}

	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	client, err := s.marketplace()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	result, err := s.orchestrator(client, c.Limit).RunOnce(ctx)
	if result != nil {
		message.NewPrinter(language.BritishEnglish).Printf("Run %s: %d categories, %d listings fetched, %d stored, %d new\n",
			result.RunID, result.Categories, result.Fetched, result.Stored, len(result.Created))
	}
	return err
}

type ShowLatestCommand struct {
	Seller   string `long:"seller" description:"Only listings from this seller"`
	Category int    `long:"category" description:"Only listings found under this watched category id"`
	Count    int    `long:"count" default:"10" description:"Number of listings to print"`
}

func (c *ShowLatestCommand) Execute(args []string) error {
	if c.Seller != "" && c.Category != 0 {
		return fmt.Errorf("--seller and --category cannot be combined")
	}
	if c.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", c.Count)
	}

	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	var listings []database.Listing
	switch {
	case c.Seller != "":
		listings, err = s.listings.LatestForSeller(ctx, c.Seller, c.Count)
	case c.Category != 0:
		listings, err = s.listings.LatestForCategory(ctx, c.Category, c.Count)
	default:
		listings, err = s.listings.Latest(ctx, c.Count)
	}
	if err != nil {
		return err
	}

	if len(listings) == 0 {
		fmt.Println("No listings stored yet")
		return nil
	}
	return printListings(os.Stdout, listings, time.Now())
}

func printListings(out io.Writer, listings []database.Listing, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tSELLER\tPRICE\tBIDS\tENDS\tTITLE")
	for _, l := range listings {
		price := "n/a"
		if p := l.DisplayPrice(); p != nil {
			price = p.Amount.StringFixed(2) + " " + p.Currency
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			l.ItemID, l.SellerName, price, l.BidCount,
			humanize.RelTime(l.EndDate, now, "ago", "from now"), l.Title)
	}
	return w.Flush()
}

type CleanupCommand struct {
	Days int `long:"days" default:"180" description:"Delete listings that ended more than this many days ago"`
}

func (c *CleanupCommand) Execute(args []string) error {
	if c.Days < 1 {
		return fmt.Errorf("retention days must be at least 1, got %d", c.Days)
	}

	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	task := tasks.NewCleanupTask(c.Days, s.listings)
	task.Start()
	return task.Execute(context.Background())
}

type RefreshItemCommand struct {
	Args struct {
		ItemID string `positional-arg-name:"ITEM_ID" required:"yes"`
	} `positional-args:"yes"`
}

func (c *RefreshItemCommand) Execute(args []string) error {
	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	client, err := s.marketplace()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	updated, err := s.refresher(client).RefreshListing(ctx, c.Args.ItemID)
	if errors.Is(err, ingest.ErrListingGone) {
		fmt.Printf("Item %s is no longer available on the marketplace\n", c.Args.ItemID)
		return nil
	}
	if err != nil {
		return err
	}

	return printListings(os.Stdout, []database.Listing{*updated}, time.Now())
}

type loopOptions struct {
	FetchInterval   int `long:"fetch-interval" default:"10" description:"Minutes between fetch runs"`
	CleanupInterval int `long:"cleanup-interval" default:"1440" description:"Minutes between cleanup runs"`
	RetentionDays   int `long:"retention-days" default:"180" description:"Days after the auction end before a listing is deleted"`
	Workers         int `long:"workers" default:"1" description:"Number of background workers"`
	Limit           int `long:"limit" default:"100" description:"Maximum listings requested per category (1-200)"`
}

func (o loopOptions) validate() error {
	if o.FetchInterval < 1 {
		return fmt.Errorf("fetch interval must be at least 1 minute, got %d", o.FetchInterval)
	}
	if o.CleanupInterval < 1 {
		return fmt.Errorf("cleanup interval must be at least 1 minute, got %d", o.CleanupInterval)
	}
	if o.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1, got %d", o.RetentionDays)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	return validateLimit(o.Limit)
}

func (o loopOptions) schedulerConfig() tasks.Config {
	return tasks.Config{
		FetchInterval:   time.Duration(o.FetchInterval) * time.Minute,
		CleanupInterval: time.Duration(o.CleanupInterval) * time.Minute,
		RetentionDays:   o.RetentionDays,
		Workers:         o.Workers,
	}
}

func (s *services) scheduler(o loopOptions) (*tasks.Scheduler, error) {
	client, err := s.marketplace()
	if err != nil {
		return nil, err
	}
	return tasks.NewScheduler(s.orchestrator(client, o.Limit), s.listings, s.refresher(client), o.schedulerConfig()), nil
}

type RunLoopCommand struct {
	Loop loopOptions `group:"Loop Options"`
}

func (c *RunLoopCommand) Execute(args []string) error {
	if err := c.Loop.validate(); err != nil {
		return err
	}

	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	scheduler, err := s.scheduler(c.Loop)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	scheduler.Start()
	defer scheduler.Stop()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down fetch loop")
		return nil
	case err := <-scheduler.Errors():
		return err
	}
}

type ServeCommand struct {
	WithLoop bool        `long:"with-loop" description:"Also run the fetch and cleanup loop"`
	Loop     loopOptions `group:"Loop Options"`
}

func (c *ServeCommand) Execute(args []string) error {
	if c.WithLoop {
		if err := c.Loop.validate(); err != nil {
			return err
		}
	}

	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	deps := api.Deps{
		Listings:   s.listings,
		States:     s.states,
		Notes:      s.notes,
		Sellers:    s.sellers,
		Categories: s.categories,
		Generator:  feed.NewGenerator(s.cfg.Version),
		BaseURL:    s.cfg.WebserviceURL,
		Version:    s.cfg.Version,
	}

	var scheduler *tasks.Scheduler
	if c.WithLoop {
		scheduler, err = s.scheduler(c.Loop)
		if err != nil {
			return err
		}
		deps.Scheduler = scheduler
	} else if client, err := s.marketplace(); err == nil {
		deps.Refresher = s.refresher(client)
	} else {
		slog.Warn("Item refresh disabled", "reason", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      api.NewServer(api.NewHandler(deps), s.cfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting HTTP server", "port", s.cfg.Port, "with_loop", c.WithLoop)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err := <-scheduler.Errors():
				return err
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		slog.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}

func validateLimit(limit int) error {
	if limit < 1 || limit > maxFetchLimit {
		return fmt.Errorf("limit must be between 1 and %d, got %d", maxFetchLimit, limit)
	}
	return nil
}
