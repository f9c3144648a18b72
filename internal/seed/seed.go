// Package seed loads a category tree into a writable category source.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/slug"
)

//go:embed default.json
var defaultTree []byte

// Node is one category of a seed file. Depth decides the type: roots are
// main categories, their children sub categories and the next level elements.
type Node struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Children    []Node `json:"children,omitempty"`
}

// Store is the part of a category source the seeder writes through.
type Store interface {
	Create(ctx context.Context, draft domain.Draft) (domain.CategoryNode, error)
	BySlug(ctx context.Context, slug string) (domain.CategoryNode, error)
}

// Result counts what a run did.
type Result struct {
	Created  int
	Existing int
}

var levels = []domain.CategoryType{domain.TypeMain, domain.TypeSub, domain.TypeElement}

// Default returns the built-in sample taxonomy.
func Default() ([]Node, error) {
	var roots []Node
	if err := json.Unmarshal(defaultTree, &roots); err != nil {
		return nil, fmt.Errorf("decode built-in taxonomy: %w", err)
	}
	return roots, nil
}

// Parse decodes and checks a seed file.
func Parse(r io.Reader) ([]Node, error) {
	var roots []Node
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&roots); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	seen := make(map[string]string)
	if err := check(roots, 0, seen); err != nil {
		return nil, err
	}
	return roots, nil
}

func check(nodes []Node, depth int, seen map[string]string) error {
	if len(nodes) > 0 && depth >= len(levels) {
		return fmt.Errorf("%q is nested deeper than %s categories", nodes[0].Name, domain.TypeElement)
	}
	for _, n := range nodes {
		if n.Name == "" {
			return errors.New("category without a name")
		}
		s := n.slugOrGenerated()
		if prev, ok := seen[s]; ok {
			return fmt.Errorf("slug %q is used by both %q and %q", s, prev, n.Name)
		}
		seen[s] = n.Name
		if err := check(n.Children, depth+1, seen); err != nil {
			return err
		}
	}
	return nil
}

func (n Node) slugOrGenerated() string {
	if n.Slug != "" {
		return n.Slug
	}
	return slug.Generate(n.Name)
}

// Seeder writes seed trees parents first. Categories whose slug already
// exists are reused, so running it twice is harmless.
type Seeder struct {
	store  Store
	logger *slog.Logger
}

// New creates a Seeder.
func New(store Store, logger *slog.Logger) *Seeder {
	return &Seeder{store: store, logger: logger}
}

// Run seeds roots as main categories.
func (s *Seeder) Run(ctx context.Context, roots []Node) (Result, error) {
	var res Result
	err := s.level(ctx, roots, nil, 0, &res)
	return res, err
}

func (s *Seeder) level(ctx context.Context, nodes []Node, parentID *string, depth int, res *Result) error {
	for i, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		node, err := s.ensure(ctx, n, domain.Draft{
			Name:        n.Name,
			Description: n.Description,
			Slug:        n.slugOrGenerated(),
			Type:        levels[depth],
			ParentID:    parentID,
			SortOrder:   i,
			Icon:        n.Icon,
		}, res)
		if err != nil {
			return err
		}
		if len(n.Children) == 0 {
			continue
		}
		id := node.ID
		if err := s.level(ctx, n.Children, &id, depth+1, res); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) ensure(ctx context.Context, n Node, draft domain.Draft, res *Result) (domain.CategoryNode, error) {
	created, err := s.store.Create(ctx, draft)
	if err == nil {
		res.Created++
		s.logger.InfoContext(ctx, "category created",
			slog.String("id", created.ID),
			slog.String("slug", created.Slug),
			slog.String("type", created.Type.String()),
		)
		return created, nil
	}
	if !errors.Is(err, apperrors.ErrAlreadyExists) {
		return domain.CategoryNode{}, fmt.Errorf("create %s %q: %w", draft.Type, n.Name, err)
	}

	existing, err := s.store.BySlug(ctx, draft.Slug)
	if err != nil {
		return domain.CategoryNode{}, fmt.Errorf("look up existing %s %q: %w", draft.Type, draft.Slug, err)
	}
	if existing.Type != draft.Type {
		return domain.CategoryNode{}, fmt.Errorf("slug %q already belongs to a %s category", draft.Slug, existing.Type)
	}
	res.Existing++
	s.logger.DebugContext(ctx, "category exists", slog.String("slug", draft.Slug))
	return existing, nil
}
