// Package catalog owns the expense category seed list and keeps storage in sync with it.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultSeed is the built-in category list every deployment starts with.
var DefaultSeed = []string{
	"Groceries",
	"Dining Out",
	"Housing",
	"Utilities",
	"Transport",
	"Healthcare",
	"Insurance",
	"Entertainment",
	"Clothing",
	"Education",
	"Gifts",
	"Travel",
	"Personal Care",
	"Household Supplies",
	"Subscriptions",
	"Other",
}

// Store is the storage the catalog is synchronized into.
type Store interface {
	CategoryNames(ctx context.Context) ([]string, error)
	// InsertCategories adds all names in one atomic write, ignoring names
	// that already exist.
	InsertCategories(ctx context.Context, names []string) error
}

type seedFile struct {
	Categories []string `toml:"categories"`
}

// LoadSeed returns DefaultSeed extended with the categories listed in the
// TOML file at path. An empty path returns DefaultSeed alone.
//
//	categories = ["Pets", "Childcare"]
func LoadSeed(path string) ([]string, error) {
	if path == "" {
		return Normalize(DefaultSeed), nil
	}
	var f seedFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("read category seed %s: %w", path, err)
	}
	return Normalize(append(append([]string{}, DefaultSeed...), f.Categories...)), nil
}

// Normalize trims names and drops blanks and duplicates, keeping first-seen order.
func Normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Sync makes sure every seed name exists in store exactly once. It reads the
// existing names once and writes the missing ones in a single batch; nothing
// is removed. It returns the names it inserted.
func Sync(ctx context.Context, store Store, seed []string) ([]string, error) {
	existing, err := store.CategoryNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	have := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		have[name] = struct{}{}
	}

	var missing []string
	for _, name := range Normalize(seed) {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	if err := store.InsertCategories(ctx, missing); err != nil {
		return nil, fmt.Errorf("insert categories: %w", err)
	}
	return missing, nil
}
