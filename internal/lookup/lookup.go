// Package lookup caches the answers of the flat query accessors (search,
// type, level, slug). These answers never feed the category tree.
package lookup

import (
	"context"
	"strconv"
	"strings"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
)

// Cache stores query results by key.
type Cache interface {
	// Get returns the cached nodes for key and whether they were present.
	Get(ctx context.Context, key string) ([]domain.CategoryNode, bool, error)

	// Set stores nodes under key, replacing any previous value.
	Set(ctx context.Context, key string, nodes []domain.CategoryNode) error

	// Purge drops every cached result.
	Purge(ctx context.Context) error
}

// SearchKey keys a text search. Queries differing only in case or
// surrounding space share a key.
func SearchKey(query string) string {
	return "search:" + strings.ToLower(strings.TrimSpace(query))
}

// TypeKey keys a by-type listing.
func TypeKey(t domain.CategoryType) string { return "type:" + string(t) }

// LevelKey keys a by-level listing.
func LevelKey(level int) string { return "level:" + strconv.Itoa(level) }

// SlugKey keys a slug lookup.
func SlugKey(slug string) string { return "slug:" + slug }
