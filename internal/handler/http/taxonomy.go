package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/httputil"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/validator"
)

// TaxonomyReader serves the read side of the taxonomy.
type TaxonomyReader interface {
	MainCategories(ctx context.Context) ([]domain.CategoryNode, error)
	Detail(ctx context.Context, id string) (domain.NodeDetail, error)
	Children(ctx context.Context, parentID string) ([]domain.CategoryNode, error)
	FetchHierarchy(ctx context.Context) ([]*domain.TreeNode, error)
	Search(ctx context.Context, query string) ([]domain.CategoryNode, error)
	BySlug(ctx context.Context, slug string) (domain.CategoryNode, error)
	ByType(ctx context.Context, t domain.CategoryType) ([]domain.CategoryNode, error)
	ByLevel(ctx context.Context, level int) ([]domain.CategoryNode, error)
	Statistics(ctx context.Context) (domain.Statistics, error)
}

// TaxonomyAdmin applies category mutations.
type TaxonomyAdmin interface {
	Create(ctx context.Context, draft domain.Draft) (domain.CategoryNode, error)
	Update(ctx context.Context, id string, patch domain.Patch) (domain.CategoryNode, error)
	Delete(ctx context.Context, id string) ([]string, error)
}

// TaxonomyHandler handles HTTP requests for taxonomy endpoints.
type TaxonomyHandler struct {
	reader TaxonomyReader
	admin  TaxonomyAdmin
	logger *slog.Logger
}

// NewTaxonomyHandler creates a new taxonomy HTTP handler.
func NewTaxonomyHandler(reader TaxonomyReader, admin TaxonomyAdmin, logger *slog.Logger) *TaxonomyHandler {
	return &TaxonomyHandler{
		reader: reader,
		admin:  admin,
		logger: logger,
	}
}

// DeleteResponse lists every id a delete removed.
type DeleteResponse struct {
	Removed []string `json:"removed"`
}

// --- Reads ---

// MainCategories handles GET /api/v1/taxonomy/main
func (h *TaxonomyHandler) MainCategories(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.reader.MainCategories(r.Context())
	h.respond(w, r, nodes, err)
}

// GetNode handles GET /api/v1/taxonomy/nodes/{id}
func (h *TaxonomyHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	detail, err := h.reader.Detail(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, detail, err)
}

// Children handles GET /api/v1/taxonomy/nodes/{id}/children
func (h *TaxonomyHandler) Children(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.reader.Children(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, nodes, err)
}

// Hierarchy handles GET /api/v1/taxonomy/hierarchy
func (h *TaxonomyHandler) Hierarchy(w http.ResponseWriter, r *http.Request) {
	roots, err := h.reader.FetchHierarchy(r.Context())
	if roots == nil {
		roots = []*domain.TreeNode{}
	}
	h.respond(w, r, roots, err)
}

// Search handles GET /api/v1/taxonomy/search?q=
func (h *TaxonomyHandler) Search(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.reader.Search(r.Context(), r.URL.Query().Get("q"))
	h.respond(w, r, nodes, err)
}

// BySlug handles GET /api/v1/taxonomy/slug/{slug}
func (h *TaxonomyHandler) BySlug(w http.ResponseWriter, r *http.Request) {
	node, err := h.reader.BySlug(r.Context(), chi.URLParam(r, "slug"))
	h.respond(w, r, node, err)
}

// ByType handles GET /api/v1/taxonomy/type/{type}
func (h *TaxonomyHandler) ByType(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseCategoryType(chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}
	nodes, err := h.reader.ByType(r.Context(), t)
	h.respond(w, r, nodes, err)
}

// ByLevel handles GET /api/v1/taxonomy/level/{level}
func (h *TaxonomyHandler) ByLevel(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		httputil.WriteBadRequest(w, r, "level must be an integer between 1 and 3")
		return
	}
	nodes, err := h.reader.ByLevel(r.Context(), level)
	h.respond(w, r, nodes, err)
}

// Statistics handles GET /api/v1/taxonomy/statistics
func (h *TaxonomyHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reader.Statistics(r.Context())
	h.respond(w, r, stats, err)
}

// --- Admin ---

// CreateNode handles POST /api/v1/taxonomy/nodes
func (h *TaxonomyHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var draft domain.Draft
	if err := validator.DecodeAndValidate(r, &draft); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	node, err := h.admin.Create(r.Context(), draft)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, node)
}

// UpdateNode handles PUT /api/v1/taxonomy/nodes/{id}
func (h *TaxonomyHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var patch domain.Patch
	if err := validator.DecodeAndValidate(r, &patch); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	node, err := h.admin.Update(r.Context(), chi.URLParam(r, "id"), patch)
	h.respond(w, r, node, err)
}

// DeleteNode handles DELETE /api/v1/taxonomy/nodes/{id}
func (h *TaxonomyHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	removed, err := h.admin.Delete(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, DeleteResponse{Removed: removed}, err)
}

func (h *TaxonomyHandler) respond(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, data)
}
