package watchlist

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/ebay-watchlist/app/database"
)

//go:embed defaults.yml
var builtinDefaults []byte

// Defaults is a seed list of sellers and categories to watch.
type Defaults struct {
	Sellers    []string `yaml:"sellers"`
	Categories []int    `yaml:"categories"`
}

// LoadDefaults reads a seed file. An empty path selects the built-in list.
func LoadDefaults(path string) (*Defaults, error) {
	data := builtinDefaults
	source := "built-in defaults"

	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		source = path
	}

	defaults, err := parseDefaults(data)
	if err != nil {
		return nil, fmt.Errorf("invalid defaults %s: %w", source, err)
	}

	slog.Debug("Watchlist defaults loaded", "source", source, "sellers", len(defaults.Sellers), "categories", len(defaults.Categories))
	return defaults, nil
}

func parseDefaults(data []byte) (*Defaults, error) {
	var raw Defaults
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	defaults := &Defaults{}
	for i, seller := range raw.Sellers {
		seller = strings.TrimSpace(seller)
		if seller == "" {
			return nil, fmt.Errorf("seller at index %d is empty", i)
		}
		if !slices.Contains(defaults.Sellers, seller) {
			defaults.Sellers = append(defaults.Sellers, seller)
		}
	}
	for i, id := range raw.Categories {
		if id <= 0 {
			return nil, fmt.Errorf("category at index %d must be positive, got %d", i, id)
		}
		if !slices.Contains(defaults.Categories, id) {
			defaults.Categories = append(defaults.Categories, id)
		}
	}

	if len(defaults.Sellers) == 0 && len(defaults.Categories) == 0 {
		return nil, fmt.Errorf("no sellers or categories defined")
	}
	return defaults, nil
}

// Apply registers every seller and category as enabled. Entries already
// present are re-enabled.
func Apply(ctx context.Context, d *Defaults, sellers database.SellerRepository, categories database.CategoryRepository) error {
	for _, seller := range d.Sellers {
		if err := sellers.AddSeller(ctx, seller); err != nil {
			return fmt.Errorf("failed to add seller %s: %w", seller, err)
		}
	}
	for _, id := range d.Categories {
		if err := categories.AddCategory(ctx, id); err != nil {
			return fmt.Errorf("failed to add category %d: %w", id, err)
		}
	}

	slog.Info("Watchlist defaults applied", "sellers", len(d.Sellers), "categories", len(d.Categories))
	return nil
}
