package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/analytics"
	"github.com/moltworks/agentrank/internal/middleware"
	"github.com/moltworks/agentrank/internal/rank"
)

// defaultSearchLimit bounds search results when no limit is requested.
const defaultSearchLimit = 25

// maxSearchLimit is the hard cap on a single search.
const maxSearchLimit = 100

// SearchHandlers holds dependencies for the search endpoint.
type SearchHandlers struct {
	agents    agent.Repository
	store     rank.Store
	analytics analytics.Repository
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(agents agent.Repository, store rank.Store, analyticsRepo analytics.Repository) *SearchHandlers {
	return &SearchHandlers{
		agents:    agents,
		store:     store,
		analytics: analyticsRepo,
	}
}

// SearchResult is one search hit: the agent plus its current scorecard when
// one exists. Unranked agents still appear, with a nil scorecard.
type SearchResult struct {
	Agent  agent.Agent       `json:"agent"`
	Scores *rank.RankedAgent `json:"ranking,omitempty"`
}

// Search handles GET /search?q= - matches agents on username, display name,
// and bio. Every search is recorded for the analytics rollup; a failed
// recording never fails the search.
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Query parameter q is required")
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	matches, err := h.agents.SearchAgents(r.Context(), query, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to search agents", "query", query, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Search failed")
		return
	}

	results := make([]SearchResult, 0, len(matches))
	for _, a := range matches {
		res := SearchResult{Agent: a}
		ra, err := h.store.Get(r.Context(), a.ID)
		if err == nil {
			res.Scores = ra
		} else if !errors.Is(err, rank.ErrRankingNotFound) {
			slog.WarnContext(r.Context(), "failed to join ranking for search result",
				"agent_id", a.ID, "error", err)
		}
		results = append(results, res)
	}

	if err := h.analytics.RecordSearch(r.Context(), query, len(results)); err != nil {
		slog.WarnContext(r.Context(), "failed to record search query", "error", err)
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}
