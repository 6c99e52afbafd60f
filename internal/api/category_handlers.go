package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/moltworks/agentrank/internal/category"
	"github.com/moltworks/agentrank/internal/middleware"
	"github.com/moltworks/agentrank/internal/rank"
)

// CategoryHandlers holds dependencies for taxonomy endpoints.
type CategoryHandlers struct {
	categories category.Repository
	store      rank.Store
}

// NewCategoryHandlers creates a new CategoryHandlers instance.
func NewCategoryHandlers(categories category.Repository, store rank.Store) *CategoryHandlers {
	return &CategoryHandlers{
		categories: categories,
		store:      store,
	}
}

// ListCategories handles GET /categories - the full seeded taxonomy.
func (h *CategoryHandlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list categories", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list categories")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"categories": categories,
		"count":      len(categories),
	})
}

// CategoryAgents handles GET /categories/{name} - the category with its
// ranked member agents.
func (h *CategoryHandlers) CategoryAgents(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/categories/")
	if name == "" || strings.Contains(name, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Category name is required")
		return
	}

	c, err := h.categories.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, category.ErrUnknownCategory) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnknownCategory)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeUnknownCategory, "Unknown category: "+name)
			return
		}
		slog.ErrorContext(r.Context(), "failed to get category", "name", name, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to get category")
		return
	}

	q, badSort := rankingQuery(r)
	if badSort != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidSort)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSort, "Unsupported sort key: "+badSort)
		return
	}
	q.Category = name

	agents, err := h.store.List(r.Context(), q)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list category agents", "name", name, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list category agents")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"category": c,
		"agents":   agents,
		"count":    len(agents),
	})
}
