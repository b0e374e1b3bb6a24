package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/ebay-watchlist/app/cfg"
)

var (
	opts   cfg.Options
	parser = flags.NewParser(&opts, flags.Default)
)

func main() {
	// .env must be in the environment before flags read their env defaults
	if err := cfg.LoadDotEnv(".env"); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}

	parser.LongDescription = "Tracks newly listed eBay auctions from watched sellers in watched categories."
	registerCommands(parser)

	parser.CommandHandler = func(command flags.Commander, args []string) error {
		if command == nil {
			return nil
		}
		if opts.Debug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
		return command.Execute(args)
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				return
			}
			os.Exit(2)
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func registerCommands(p *flags.Parser) {
	p.AddCommand("fetch-updates",
		"Fetch new listings once",
		"Queries every enabled category for the newest auctions from enabled sellers and stores them.",
		&FetchUpdatesCommand{})
	p.AddCommand("show-latest",
		"Print the newest stored listings",
		"Prints the newest stored listings, optionally for one seller or one watched category.",
		&ShowLatestCommand{})
	p.AddCommand("cleanup",
		"Delete listings that ended long ago",
		"Deletes listings whose auction ended more than the retention period ago, together with their state and notes.",
		&CleanupCommand{})
	p.AddCommand("refresh-item",
		"Refresh one listing from the marketplace",
		"Fetches the current state of a stored listing and updates it.",
		&RefreshItemCommand{})
	p.AddCommand("run-loop",
		"Fetch and clean up on a schedule",
		"Runs fetch-updates and cleanup periodically until interrupted or until fetching fails for good.",
		&RunLoopCommand{})
	p.AddCommand("serve",
		"Serve the HTTP API and RSS feed",
		"Serves the listing browser API and the RSS feed, optionally running the fetch loop in the same process.",
		&ServeCommand{})

	config, _ := p.AddCommand("config",
		"Manage watched sellers and categories",
		"Adds, removes and lists the sellers and categories that fetch-updates polls.",
		&struct{}{})
	config.AddCommand("add-seller", "Watch a seller", "", &AddSellerCommand{})
	config.AddCommand("remove-seller", "Stop watching a seller", "", &RemoveSellerCommand{})
	config.AddCommand("list-sellers", "List watched sellers", "", &ListSellersCommand{})
	config.AddCommand("add-category", "Watch a category", "", &AddCategoryCommand{})
	config.AddCommand("disable-category", "Stop polling a category", "", &DisableCategoryCommand{})
	config.AddCommand("list-categories", "List watched categories", "", &ListCategoriesCommand{})
	config.AddCommand("load-defaults",
		"Register sellers and categories from a YAML file",
		"Registers the sellers and categories listed in FILE, or the built-in list when FILE is omitted.",
		&LoadDefaultsCommand{})
}
