// Package admin creates, updates and deletes categories in the category
// service and keeps the local store, the lookup caches and the live
// selections consistent with the change.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/lookup"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/source"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/store"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

// Publisher announces category changes to other instances.
type Publisher interface {
	PublishCategoryCreated(ctx context.Context, n domain.CategoryNode) error
	PublishCategoryUpdated(ctx context.Context, n domain.CategoryNode) error
	PublishCategoryDeleted(ctx context.Context, id string, removed []string) error
}

// SelectionPurger drops ids from every live selection.
type SelectionPurger interface {
	PurgeAll(ids []string) int
}

// Service implements the category admin operations.
type Service struct {
	src        source.Writer
	store      *store.Store
	lookups    lookup.Cache
	publisher  Publisher
	selections SelectionPurger
	logger     *slog.Logger
}

// NewService creates the admin service. publisher and selections may be nil.
func NewService(
	src source.Writer,
	st *store.Store,
	lookups lookup.Cache,
	publisher Publisher,
	selections SelectionPurger,
	logger *slog.Logger,
) *Service {
	return &Service{
		src:        src,
		store:      st,
		lookups:    lookups,
		publisher:  publisher,
		selections: selections,
		logger:     logger,
	}
}

// Create validates draft, creates the category upstream and adds it to the
// cached bucket of its parent when that bucket has been fetched.
func (s *Service) Create(ctx context.Context, draft domain.Draft) (domain.CategoryNode, error) {
	if err := draft.Validate(); err != nil {
		return domain.CategoryNode{}, err
	}
	if err := s.checkDraftParent(draft); err != nil {
		return domain.CategoryNode{}, err
	}

	n, err := s.src.Create(ctx, draft)
	if errors.Is(err, apperrors.ErrNotFound) && draft.ParentID != nil {
		return domain.CategoryNode{}, apperrors.Validation(fmt.Sprintf("parent category %s does not exist", *draft.ParentID))
	}
	if err != nil {
		return domain.CategoryNode{}, fmt.Errorf("create category: %w", err)
	}
	if err := s.ApplyCreated(ctx, n); err != nil {
		return domain.CategoryNode{}, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishCategoryCreated(ctx, n); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish category.created event",
				slog.String("category_id", n.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "category created",
		slog.String("category_id", n.ID),
		slog.String("type", n.Type.String()),
		slog.String("slug", n.Slug),
	)
	return n, nil
}

// checkDraftParent enforces that only main categories lack a parent and, when
// the parent is cached, that it has the type the draft requires. An uncached
// parent is left for the category service to check; its NotFound is reported
// as a validation error by Create.
func (s *Service) checkDraftParent(draft domain.Draft) error {
	want, needsParent := draft.Type.ParentType()
	switch {
	case !needsParent && draft.ParentID != nil:
		return apperrors.Validation("a main category cannot have a parent")
	case !needsParent:
		return nil
	case draft.ParentID == nil || *draft.ParentID == "":
		return apperrors.Validation(fmt.Sprintf("a %s category needs a %s parent", draft.Type, want))
	}

	parent, err := s.store.Get(*draft.ParentID)
	if err != nil {
		return nil
	}
	if parent.Type != want {
		return apperrors.Validation(fmt.Sprintf("parent %s is a %s category, a %s category needs a %s parent",
			parent.ID, parent.Type, draft.Type, want))
	}
	return nil
}

// Update replaces the display fields of category id. Changing its type or
// parent is an invalid transition. Type and parent are only ever compared
// against the cached node and never sent to the category service, so a patch
// naming them for an uncached category is refused.
func (s *Service) Update(ctx context.Context, id string, patch domain.Patch) (domain.CategoryNode, error) {
	if err := patch.Validate(); err != nil {
		return domain.CategoryNode{}, err
	}
	if patch.Empty() {
		return domain.CategoryNode{}, apperrors.Validation("update changes nothing")
	}
	cached, err := s.store.Get(id)
	switch {
	case err == nil:
		if err := checkTransition(cached, patch); err != nil {
			return domain.CategoryNode{}, err
		}
	case patch.Type != nil || patch.ParentID != nil:
		return domain.CategoryNode{}, apperrors.InvalidTransition(fmt.Sprintf(
			"category %s is not cached, its type and parent cannot be confirmed; send display fields only", id))
	}

	fields := patch.DisplayFields()
	if fields.Empty() {
		return domain.CategoryNode{}, apperrors.Validation("update changes nothing")
	}

	n, err := s.src.Update(ctx, id, fields)
	if err != nil {
		return domain.CategoryNode{}, fmt.Errorf("update category: %w", err)
	}
	if err := s.ApplyUpdated(ctx, n); err != nil {
		return domain.CategoryNode{}, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishCategoryUpdated(ctx, n); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish category.updated event",
				slog.String("category_id", n.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "category updated", slog.String("category_id", n.ID))
	return n, nil
}

func checkTransition(current domain.CategoryNode, patch domain.Patch) error {
	if patch.Type != nil && *patch.Type != current.Type {
		return apperrors.InvalidTransition(fmt.Sprintf("category %s cannot change type from %s to %s",
			current.ID, current.Type, *patch.Type))
	}
	if patch.ParentID != nil && *patch.ParentID != current.Parent() {
		return apperrors.InvalidTransition(fmt.Sprintf("category %s cannot move to parent %q",
			current.ID, *patch.ParentID))
	}
	return nil
}

// Delete removes category id and its descendants upstream and from the
// store. It returns every removed id, id first. Descendants that were never
// fetched are unknown locally and not listed.
func (s *Service) Delete(ctx context.Context, id string) ([]string, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("id is required")
	}
	if err := s.src.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete category: %w", err)
	}

	removed, err := s.ApplyDeleted(ctx, id, nil)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishCategoryDeleted(ctx, id, removed); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish category.deleted event",
				slog.String("category_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "category deleted",
		slog.String("category_id", id),
		slog.Int("removed", len(removed)),
	)
	return removed, nil
}

// ApplyCreated adds n to the store when the bucket it belongs to is known and
// invalidates the lookup caches. It does not call the category service.
func (s *Service) ApplyCreated(ctx context.Context, n domain.CategoryNode) error {
	if _, known := s.store.ChildrenOf(n.Parent()); known {
		if err := s.store.Insert(n); err != nil {
			return fmt.Errorf("cache created category %s: %w", n.ID, err)
		}
	}
	s.purgeLookups(ctx)
	return nil
}

// ApplyUpdated replaces the cached copy of n, if any, and invalidates the
// lookup caches.
func (s *Service) ApplyUpdated(ctx context.Context, n domain.CategoryNode) error {
	if s.store.Has(n.ID) {
		if err := s.store.Replace(n); err != nil {
			return fmt.Errorf("cache updated category %s: %w", n.ID, err)
		}
	}
	s.purgeLookups(ctx)
	return nil
}

// ApplyDeleted removes id and its cached descendants from the store, drops
// them from every selection and invalidates the lookup caches. known lists
// ids the caller already knows were removed; they are merged into the
// result.
func (s *Service) ApplyDeleted(ctx context.Context, id string, known []string) ([]string, error) {
	removed := []string{id}
	if s.store.Has(id) {
		var err error
		if removed, err = s.store.RemoveCascade(id); err != nil {
			return nil, fmt.Errorf("remove deleted category %s from cache: %w", id, err)
		}
	}
	removed = mergeIDs(removed, known)

	if s.selections != nil {
		if n := s.selections.PurgeAll(removed); n > 0 {
			s.logger.DebugContext(ctx, "purged deleted categories from selections", slog.Int("count", n))
		}
	}
	s.purgeLookups(ctx)
	return removed, nil
}

func (s *Service) purgeLookups(ctx context.Context) {
	if err := s.lookups.Purge(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to purge lookup cache", slog.String("error", err.Error()))
	}
}

func mergeIDs(ids, extra []string) []string {
	seen := make(map[string]struct{}, len(ids)+len(extra))
	out := make([]string, 0, len(ids)+len(extra))
	for _, list := range [][]string{ids, extra} {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
