// Package source defines the boundary to the category service that owns the
// taxonomy. Implementations return errors from pkg/errors: NotFound for a
// missing id, slug or parent, Network for transport failures and Server for
// failed upstream answers.
package source

import (
	"context"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
)

// Reader fetches taxonomy data.
type Reader interface {
	// MainCategories returns every main category.
	MainCategories(ctx context.Context) ([]domain.CategoryNode, error)

	// Subcategories returns the subcategories of a main category.
	Subcategories(ctx context.Context, parentID string) ([]domain.CategoryNode, error)

	// Elements returns the elements of a subcategory.
	Elements(ctx context.Context, subcategoryID string) ([]domain.CategoryNode, error)

	// Hierarchy returns the whole tree with children nested.
	Hierarchy(ctx context.Context) ([]*domain.TreeNode, error)

	// Search returns nodes of any type matching the text.
	Search(ctx context.Context, query string) ([]domain.CategoryNode, error)

	// BySlug returns the node carrying the slug.
	BySlug(ctx context.Context, slug string) (domain.CategoryNode, error)

	// ByType returns every node of a type.
	ByType(ctx context.Context, t domain.CategoryType) ([]domain.CategoryNode, error)

	// ByLevel returns every node on a level.
	ByLevel(ctx context.Context, level int) ([]domain.CategoryNode, error)

	// Statistics returns aggregate counts.
	Statistics(ctx context.Context) (domain.Statistics, error)
}

// Writer mutates taxonomy data.
type Writer interface {
	Create(ctx context.Context, draft domain.Draft) (domain.CategoryNode, error)
	Update(ctx context.Context, id string, patch domain.Patch) (domain.CategoryNode, error)
	Delete(ctx context.Context, id string) error
}

// Source is the full category service.
type Source interface {
	Reader
	Writer
}
