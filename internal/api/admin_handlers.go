package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/moltworks/agentrank/internal/auth"
	"github.com/moltworks/agentrank/internal/middleware"
	"github.com/moltworks/agentrank/internal/rank"
)

// AdminHandlers holds dependencies for the admin surface.
type AdminHandlers struct {
	jwtService *auth.JWTService
	aggregator *rank.Aggregator
}

// NewAdminHandlers creates a new AdminHandlers instance.
func NewAdminHandlers(jwtService *auth.JWTService, aggregator *rank.Aggregator) *AdminHandlers {
	return &AdminHandlers{
		jwtService: jwtService,
		aggregator: aggregator,
	}
}

// RequireAdmin wraps a handler with bearer-token admin authentication.
func (h *AdminHandlers) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Bearer token required")
			return
		}

		claims, err := h.jwtService.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired token")
			return
		}
		if !claims.Admin {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
			WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Admin access required")
			return
		}

		ctx := middleware.SetAdminSubject(r.Context(), claims.Subject)
		next(w, r.WithContext(ctx))
	}
}

// Recompute handles POST /admin/recompute - runs one full ranking pass
// synchronously and reports its summary. A pass already in flight is a
// conflict, not an error to retry blindly.
func (h *AdminHandlers) Recompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	result, err := h.aggregator.RunPass(r.Context())
	if err != nil {
		if errors.Is(err, rank.ErrPassInProgress) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePassInProgress)
			WriteError(w, ctx, http.StatusConflict, ErrCodePassInProgress, "A recompute pass is already running")
			return
		}
		slog.ErrorContext(r.Context(), "manual recompute failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Recompute failed")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"pass":            result.Pass,
		"ranked":          result.Ranked,
		"carried_forward": result.Carried,
		"skipped":         result.Skipped,
	})
}
