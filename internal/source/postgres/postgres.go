// Package postgres implements source.Source directly on a categories table.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/database"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/slug"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the schema files for the categories table, suitable for
// database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const categoryColumns = `id, name, description, slug, type, parent_id, sort_order, icon, created_at, updated_at`

const siblingOrder = `ORDER BY sort_order, name, id`

// Source reads and writes categories through pgx.
type Source struct {
	pool database.DBTX
}

// New creates a Source over pool.
func New(pool database.DBTX) *Source {
	return &Source{pool: pool}
}

// MainCategories returns every main category in sibling order.
func (s *Source) MainCategories(ctx context.Context) ([]domain.CategoryNode, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE type = 'main' ` + siblingOrder
	return s.list(ctx, "ListMain", query)
}

// Subcategories returns the children of a main category. A missing or
// non-main parent is NotFound.
func (s *Source) Subcategories(ctx context.Context, parentID string) ([]domain.CategoryNode, error) {
	return s.children(ctx, "ListSubcategories", parentID, domain.TypeMain)
}

// Elements returns the children of a subcategory. A missing or non-sub parent
// is NotFound.
func (s *Source) Elements(ctx context.Context, subcategoryID string) ([]domain.CategoryNode, error) {
	return s.children(ctx, "ListElements", subcategoryID, domain.TypeSub)
}

func (s *Source) children(ctx context.Context, op, parentID string, parentType domain.CategoryType) ([]domain.CategoryNode, error) {
	t, err := s.typeOf(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if t != parentType {
		return nil, apperrors.NotFound(parentType.String()+" category", parentID)
	}
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE parent_id = $1 ` + siblingOrder
	return s.list(ctx, op, query, parentID)
}

// Hierarchy returns the whole tree. Rows whose parent is missing are dropped.
func (s *Source) Hierarchy(ctx context.Context) ([]*domain.TreeNode, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories ` + siblingOrder
	nodes, err := s.list(ctx, "ListHierarchy", query)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &domain.TreeNode{CategoryNode: n, Children: []*domain.TreeNode{}}
	}

	roots := []*domain.TreeNode{}
	for _, n := range nodes {
		tn := byID[n.ID]
		if n.ParentID == nil {
			roots = append(roots, tn)
			continue
		}
		if parent, ok := byID[*n.ParentID]; ok {
			parent.Children = append(parent.Children, tn)
		}
	}
	return roots, nil
}

// Search matches the text against name, description and slug, case-insensitively.
func (s *Source) Search(ctx context.Context, query string) ([]domain.CategoryNode, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []domain.CategoryNode{}, nil
	}
	stmt := `SELECT ` + categoryColumns + ` FROM categories
		WHERE name ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\' OR slug ILIKE $1 ESCAPE '\'
		ORDER BY CASE type WHEN 'main' THEN 1 WHEN 'sub' THEN 2 ELSE 3 END, sort_order, name, id`
	return s.list(ctx, "SearchCategories", stmt, "%"+escapeLike(q)+"%")
}

// BySlug returns the shallowest category carrying slug.
func (s *Source) BySlug(ctx context.Context, slugValue string) (domain.CategoryNode, error) {
	stmt := `SELECT ` + categoryColumns + ` FROM categories WHERE slug = $1
		ORDER BY CASE type WHEN 'main' THEN 1 WHEN 'sub' THEN 2 ELSE 3 END LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "GetBySlug", stmt)
	n, err := scanNode(s.pool.QueryRow(ctx, stmt, slugValue))
	end(err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CategoryNode{}, apperrors.NotFound("category slug", slugValue)
	}
	if err != nil {
		return domain.CategoryNode{}, fmt.Errorf("get category by slug: %w", err)
	}
	return n, nil
}

// ByType returns every category of type t.
func (s *Source) ByType(ctx context.Context, t domain.CategoryType) ([]domain.CategoryNode, error) {
	if !t.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown category type %q", t))
	}
	stmt := `SELECT ` + categoryColumns + ` FROM categories WHERE type = $1 ` + siblingOrder
	return s.list(ctx, "ListByType", stmt, string(t))
}

// ByLevel returns every category on level (1..3).
func (s *Source) ByLevel(ctx context.Context, level int) ([]domain.CategoryNode, error) {
	t, ok := domain.TypeForLevel(level)
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("level must be between 1 and 3, got %d", level))
	}
	stmt := `SELECT ` + categoryColumns + ` FROM categories WHERE type = $1 ` + siblingOrder
	return s.list(ctx, "ListByLevel", stmt, string(t))
}

// Statistics counts categories per type and level.
func (s *Source) Statistics(ctx context.Context) (domain.Statistics, error) {
	stmt := `SELECT type, COUNT(*) FROM categories GROUP BY type`

	ctx, end := database.TraceQuery(ctx, "CountByType", stmt)
	stats, err := s.countByType(ctx, stmt)
	end(err)
	return stats, err
}

func (s *Source) countByType(ctx context.Context, stmt string) (domain.Statistics, error) {
	stats := domain.Statistics{
		ByType:  make(map[domain.CategoryType]int, 3),
		ByLevel: make(map[int]int, 3),
	}
	rows, err := s.pool.Query(ctx, stmt)
	if err != nil {
		return stats, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.CategoryType
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return stats, fmt.Errorf("scan category count: %w", err)
		}
		stats.ByType[t] = int(n)
		stats.ByLevel[t.Level()] = int(n)
		stats.Total += int(n)
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate category counts: %w", err)
	}
	return stats, nil
}

// Create inserts a category with a fresh id. The parent must exist and be of
// the parent type; a missing slug is generated from the name.
func (s *Source) Create(ctx context.Context, draft domain.Draft) (domain.CategoryNode, error) {
	n := domain.CategoryNode{
		ID:          uuid.NewString(),
		Name:        draft.Name,
		Description: draft.Description,
		Slug:        draft.Slug,
		Type:        draft.Type,
		ParentID:    draft.ParentID,
		SortOrder:   draft.SortOrder,
		Icon:        draft.Icon,
	}
	if n.Slug == "" {
		n.Slug = slug.Generate(n.Name)
	}
	if err := n.CheckShape(); err != nil {
		return domain.CategoryNode{}, apperrors.Validation(err.Error())
	}
	if want, hasParent := n.Type.ParentType(); hasParent {
		t, err := s.typeOf(ctx, n.Parent())
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.CategoryNode{}, apperrors.Validation(fmt.Sprintf("parent category %s does not exist", n.Parent()))
		}
		if err != nil {
			return domain.CategoryNode{}, err
		}
		if t != want {
			return domain.CategoryNode{}, apperrors.Validation(fmt.Sprintf("%s category needs a %s parent, %s is %s", n.Type, want, n.Parent(), t))
		}
	}

	stmt := `INSERT INTO categories (id, name, description, slug, type, parent_id, sort_order, icon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + categoryColumns

	ctx, end := database.TraceQuery(ctx, "CreateCategory", stmt)
	created, err := scanNode(s.pool.QueryRow(ctx, stmt,
		n.ID, n.Name, n.Description, n.Slug, string(n.Type), n.ParentID, n.SortOrder, n.Icon,
	))
	end(err)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CategoryNode{}, apperrors.AlreadyExists(n.Type.String()+" category", "slug", n.Slug)
		}
		return domain.CategoryNode{}, fmt.Errorf("insert category: %w", err)
	}
	return created, nil
}

// Update replaces the display fields of a category. Changing type or parent
// is an InvalidTransition.
func (s *Source) Update(ctx context.Context, id string, patch domain.Patch) (updated domain.CategoryNode, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.CategoryNode{}, fmt.Errorf("begin update category: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	lock := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1 FOR UPDATE`
	qctx, end := database.TraceQuery(ctx, "LockCategory", lock)
	current, err := scanNode(tx.QueryRow(qctx, lock, id))
	end(err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CategoryNode{}, apperrors.NotFound("category", id)
	}
	if err != nil {
		return domain.CategoryNode{}, fmt.Errorf("lock category: %w", err)
	}

	if patch.Type != nil && *patch.Type != current.Type {
		return domain.CategoryNode{}, apperrors.InvalidTransition(fmt.Sprintf("category %s cannot change type from %s to %s", id, current.Type, *patch.Type))
	}
	if patch.ParentID != nil && *patch.ParentID != current.Parent() {
		return domain.CategoryNode{}, apperrors.InvalidTransition(fmt.Sprintf("category %s cannot move to parent %s", id, *patch.ParentID))
	}

	next := patch.Apply(current)
	stmt := `UPDATE categories
		SET name = $2, description = $3, slug = $4, sort_order = $5, icon = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + categoryColumns
	qctx, end = database.TraceQuery(ctx, "UpdateCategory", stmt)
	updated, err = scanNode(tx.QueryRow(qctx, stmt, id, next.Name, next.Description, next.Slug, next.SortOrder, next.Icon))
	end(err)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CategoryNode{}, apperrors.AlreadyExists(current.Type.String()+" category", "slug", next.Slug)
		}
		return domain.CategoryNode{}, fmt.Errorf("update category: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.CategoryNode{}, fmt.Errorf("commit update category: %w", err)
	}
	return updated, nil
}

// Delete removes a category. The foreign key cascades to its descendants.
func (s *Source) Delete(ctx context.Context, id string) error {
	stmt := `DELETE FROM categories WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteCategory", stmt)
	ct, err := s.pool.Exec(ctx, stmt, id)
	end(err)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("category", id)
	}
	return nil
}

func (s *Source) typeOf(ctx context.Context, id string) (domain.CategoryType, error) {
	stmt := `SELECT type FROM categories WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetCategoryType", stmt)
	var t domain.CategoryType
	err := s.pool.QueryRow(ctx, stmt, id).Scan(&t)
	end(err)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.NotFound("category", id)
	}
	if err != nil {
		return "", fmt.Errorf("get category type: %w", err)
	}
	return t, nil
}

func (s *Source) list(ctx context.Context, op, stmt string, args ...any) (nodes []domain.CategoryNode, err error) {
	ctx, end := database.TraceQuery(ctx, op, stmt)
	defer func() { end(err) }()

	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	nodes = []domain.CategoryNode{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan category row: %w", op, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate category rows: %w", op, err)
	}
	return nodes, nil
}

func scanNode(row pgx.Row) (domain.CategoryNode, error) {
	var n domain.CategoryNode
	err := row.Scan(
		&n.ID,
		&n.Name,
		&n.Description,
		&n.Slug,
		&n.Type,
		&n.ParentID,
		&n.SortOrder,
		&n.Icon,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	return n, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}
