package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/analytics"
	"github.com/moltworks/agentrank/internal/category"
	"github.com/moltworks/agentrank/internal/middleware"
	"github.com/moltworks/agentrank/internal/rank"
)

// topQueriesWindow is the rollup window for the stats endpoint.
const topQueriesWindow = 7 * 24 * time.Hour

// topQueriesLimit caps the query rollup size.
const topQueriesLimit = 10

// StatsHandlers holds dependencies for the directory stats endpoint.
type StatsHandlers struct {
	agents     agent.Repository
	categories category.Repository
	store      rank.Store
	analytics  analytics.Repository
}

// NewStatsHandlers creates a new StatsHandlers instance.
func NewStatsHandlers(agents agent.Repository, categories category.Repository, store rank.Store, analyticsRepo analytics.Repository) *StatsHandlers {
	return &StatsHandlers{
		agents:     agents,
		categories: categories,
		store:      store,
		analytics:  analyticsRepo,
	}
}

// StatsResponse is the directory-wide stats payload.
type StatsResponse struct {
	AgentCount    int                    `json:"agent_count"`
	CategoryCount int                    `json:"category_count"`
	LastPass      *rank.Pass             `json:"last_pass,omitempty"`
	TopQueries    []analytics.QueryCount `json:"top_queries"`
}

// Stats handles GET /stats - directory-wide counters, the last committed
// pass, and the recent search rollup.
func (h *StatsHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	ids, err := h.agents.ListAgentIDs(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to count agents", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to build stats")
		return
	}

	categories, err := h.categories.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list categories", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to build stats")
		return
	}

	resp := StatsResponse{
		AgentCount:    len(ids),
		CategoryCount: len(categories),
		TopQueries:    []analytics.QueryCount{},
	}

	pass, err := h.store.CurrentPass(r.Context())
	if err != nil && !errors.Is(err, rank.ErrNoCurrentPass) {
		slog.ErrorContext(r.Context(), "failed to get current pass", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to build stats")
		return
	}
	resp.LastPass = pass

	top, err := h.analytics.TopQueries(r.Context(), time.Now().Add(-topQueriesWindow), topQueriesLimit)
	if err != nil {
		slog.WarnContext(r.Context(), "failed to load top queries", "error", err)
	} else if top != nil {
		resp.TopQueries = top
	}

	writeJSON(w, r.Context(), http.StatusOK, resp)
}
