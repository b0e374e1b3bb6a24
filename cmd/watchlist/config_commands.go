package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/lysyi3m/ebay-watchlist/app/watchlist"
)

type AddSellerCommand struct {
	Args struct {
		Username string `positional-arg-name:"USERNAME" required:"yes"`
	} `positional-args:"yes"`
}

func (c *AddSellerCommand) Execute(args []string) error {
	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	username := strings.TrimSpace(c.Args.Username)
	if err := s.sellers.AddSeller(context.Background(), username); err != nil {
		return err
	}
	fmt.Printf("Watching seller %s\n", username)
	return nil
}

type RemoveSellerCommand struct {
	Args struct {
		Username string `positional-arg-name:"USERNAME" required:"yes"`
	} `positional-args:"yes"`
}

func (c *RemoveSellerCommand) Execute(args []string) error {
	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.sellers.RemoveSeller(context.Background(), c.Args.Username)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("seller %s is not watched", c.Args.Username)
	}
	fmt.Printf("Removed seller %s\n", c.Args.Username)
	return nil
}

type ListSellersCommand struct{}

func (c *ListSellersCommand) Execute(args []string) error {
	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	sellers, err := s.sellers.ListSellers(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SELLER\tENABLED\tADDED")
	for _, seller := range sellers {
		fmt.Fprintf(w, "%s\t%t\t%s\n", seller.Username, seller.Enabled, seller.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

type AddCategoryCommand struct {
	Args struct {
		CategoryID int `positional-arg-name:"CATEGORY_ID" required:"yes"`
	} `positional-args:"yes"`
}

func (c *AddCategoryCommand) Execute(args []string) error {
	if c.Args.CategoryID <= 0 {
		return fmt.Errorf("category id must be positive, got %d", c.Args.CategoryID)
	}

	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.categories.AddCategory(context.Background(), c.Args.CategoryID); err != nil {
		return err
	}
	fmt.Printf("Watching category %d\n", c.Args.CategoryID)
	return nil
}

type DisableCategoryCommand struct {
	Args struct {
		CategoryID int `positional-arg-name:"CATEGORY_ID" required:"yes"`
	} `positional-args:"yes"`
}

func (c *DisableCategoryCommand) Execute(args []string) error {
	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	disabled, err := s.categories.DisableCategory(context.Background(), c.Args.CategoryID)
	if err != nil {
		return err
	}
	if !disabled {
		return fmt.Errorf("category %d is not watched", c.Args.CategoryID)
	}
	fmt.Printf("Disabled category %d\n", c.Args.CategoryID)
	return nil
}

type ListCategoriesCommand struct{}

func (c *ListCategoriesCommand) Execute(args []string) error {
	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	categories, err := s.categories.ListCategories(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tENABLED\tADDED")
	for _, category := range categories {
		fmt.Fprintf(w, "%d\t%t\t%s\n", category.CategoryID, category.Enabled, category.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

type LoadDefaultsCommand struct {
	Args struct {
		File string `positional-arg-name:"FILE"`
	} `positional-args:"yes"`
}

func (c *LoadDefaultsCommand) Execute(args []string) error {
	defaults, err := watchlist.LoadDefaults(c.Args.File)
	if err != nil {
		return err
	}

	s, err := openServices()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := watchlist.Apply(context.Background(), defaults, s.sellers, s.categories); err != nil {
		return err
	}
	fmt.Printf("Registered %d sellers and %d categories\n", len(defaults.Sellers), len(defaults.Categories))
	return nil
}
