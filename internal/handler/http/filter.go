package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/filter"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/httputil"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/logger"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/pagination"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/validator"
)

// FilterHandler applies category, search and price criteria to a product list.
type FilterHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewFilterHandler creates a new product filter HTTP handler.
func NewFilterHandler(sessions Sessions, logger *slog.Logger) *FilterHandler {
	return &FilterHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// FilterRequest is the JSON request body of a filter call. The criteria
// travel in the query string, encoded as filter.Criteria.Values does.
type FilterRequest struct {
	Products []domain.Product `json:"products" validate:"dive"`
}

// FilterProducts handles POST /api/v1/products/filter
//
// When the query names no category, subcategory or element ids, the
// caller's session selection is used instead.
func (h *FilterHandler) FilterProducts(w http.ResponseWriter, r *http.Request) {
	criteria, err := filter.ParseCriteria(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var req FilterRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if criteria.Selection.Empty() {
		if sel, ok := h.sessions.Lookup(logger.SessionIDFromContext(r.Context())); ok {
			criteria.Selection = sel.Snapshot()
		}
	}

	page, total, err := filter.Apply(req.Products, criteria)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, pagination.NewResult(page, total, criteria.Page))
}
