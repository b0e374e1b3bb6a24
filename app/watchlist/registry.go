package watchlist

import (
	"context"

	"github.com/lysyi3m/ebay-watchlist/app/database"
)

// Registry combines the seller and category watch lists.
type Registry struct {
	Sellers    database.SellerRepository
	Categories database.CategoryRepository
}

func NewRegistry(sellers database.SellerRepository, categories database.CategoryRepository) *Registry {
	return &Registry{Sellers: sellers, Categories: categories}
}

func (r *Registry) EnabledSellers(ctx context.Context) ([]string, error) {
	return r.Sellers.EnabledSellers(ctx)
}

func (r *Registry) EnabledCategories(ctx context.Context) ([]int, error) {
	return r.Categories.EnabledCategories(ctx)
}

// Overview is the full watch configuration, disabled entries included.
type Overview struct {
	Sellers    []database.WatchedSeller
	Categories []database.WatchedCategory
}

func (r *Registry) Overview(ctx context.Context) (*Overview, error) {
	sellers, err := r.Sellers.ListSellers(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := r.Categories.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{Sellers: sellers, Categories: categories}, nil
}
