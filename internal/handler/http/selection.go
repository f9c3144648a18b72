package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/selection"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/httputil"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/logger"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/validator"
)

// Sessions hands out the selection of a browsing session.
type Sessions interface {
	Get(id string) (*selection.Selection, error)
	Lookup(id string) (*selection.Selection, bool)
}

// SelectionHandler handles HTTP requests for the caller's category selection.
// The session is identified by the id middleware.SessionID put in the
// request context.
type SelectionHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewSelectionHandler creates a new selection HTTP handler.
func NewSelectionHandler(sessions Sessions, logger *slog.Logger) *SelectionHandler {
	return &SelectionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// ToggleRequest is the JSON request body for toggling one id.
type ToggleRequest struct {
	Type domain.CategoryType `json:"type" validate:"required,category_type"`
	ID   string              `json:"id" validate:"required,max=255"`
}

// ToggleResponse reports the id's membership after the toggle.
type ToggleResponse struct {
	Selected  bool               `json:"selected"`
	Selection selection.Snapshot `json:"selection"`
}

// SetRequest is the JSON request body for replacing one level.
type SetRequest struct {
	IDs []string `json:"ids" validate:"dive,max=255"`
}

// GetSelection handles GET /api/v1/selection
func (h *SelectionHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	sel, ok := h.sessions.Lookup(logger.SessionIDFromContext(r.Context()))
	if !ok {
		httputil.WriteData(w, http.StatusOK, selection.New().Snapshot())
		return
	}
	httputil.WriteData(w, http.StatusOK, sel.Snapshot())
}

// Toggle handles POST /api/v1/selection/toggle
func (h *SelectionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	sel, err := h.selection(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	selected, err := sel.Toggle(req.Type, req.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, ToggleResponse{Selected: selected, Selection: sel.Snapshot()})
}

// SetLevel handles PUT /api/v1/selection/{type}
func (h *SelectionHandler) SetLevel(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseCategoryType(chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}
	var req SetRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	sel, err := h.selection(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if err := sel.SetAll(t, req.IDs); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, sel.Snapshot())
}

// ClearLevel handles DELETE /api/v1/selection/{type}
func (h *SelectionHandler) ClearLevel(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseCategoryType(chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}
	sel, err := h.selection(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if err := sel.Clear(t); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, sel.Snapshot())
}

// ClearAll handles DELETE /api/v1/selection
func (h *SelectionHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if sel, ok := h.sessions.Lookup(logger.SessionIDFromContext(r.Context())); ok {
		sel.ClearAll()
	}
	httputil.WriteData(w, http.StatusOK, selection.New().Snapshot())
}

func (h *SelectionHandler) selection(r *http.Request) (*selection.Selection, error) {
	return h.sessions.Get(logger.SessionIDFromContext(r.Context()))
}
