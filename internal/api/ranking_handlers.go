// Package api provides HTTP handlers for the agent directory API.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/moltworks/agentrank/internal/analytics"
	"github.com/moltworks/agentrank/internal/featured"
	"github.com/moltworks/agentrank/internal/middleware"
	"github.com/moltworks/agentrank/internal/rank"
)

// RankingHandlers holds dependencies for ranking read endpoints.
type RankingHandlers struct {
	store     rank.Store
	listings  featured.Repository
	analytics analytics.Repository
}

// NewRankingHandlers creates a new RankingHandlers instance.
func NewRankingHandlers(store rank.Store, listings featured.Repository, analyticsRepo analytics.Repository) *RankingHandlers {
	return &RankingHandlers{
		store:     store,
		listings:  listings,
		analytics: analyticsRepo,
	}
}

// rankingQuery parses the shared listing query parameters.
func rankingQuery(r *http.Request) (rank.Query, string) {
	q := rank.Query{
		Category: r.URL.Query().Get("category"),
		Submolt:  r.URL.Query().Get("submolt"),
		SortBy:   rank.SortOverall,
	}

	if sortBy := r.URL.Query().Get("sort"); sortBy != "" {
		if !rank.ValidSort(sortBy) {
			return q, sortBy
		}
		q.SortBy = sortBy
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			q.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		if min, err := strconv.ParseFloat(raw, 64); err == nil && min > 0 {
			q.MinScore = min
		}
	}
	if raw := r.URL.Query().Get("verified"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			q.Verified = &v
		}
	}
	if raw := r.URL.Query().Get("claimed"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			q.Claimed = &v
		}
	}

	return q, ""
}

// TopAgents handles GET /agents/top - the raw organic directory listing.
// Paid placements never reorder this view; the boosted ordering lives at
// /agents/featured.
func (h *RankingHandlers) TopAgents(w http.ResponseWriter, r *http.Request) {
	q, badSort := rankingQuery(r)
	if badSort != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidSort)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSort, "Unsupported sort key: "+badSort)
		return
	}

	agents, err := h.store.List(r.Context(), q)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list rankings", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list agents")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

// FeaturedAgents handles GET /agents/featured - the same query surface as
// /agents/top with paid placements pinned on top. The category filter is
// the placement scope: global listings pin the unfiltered view, scoped
// listings pin their category's view. A pinned agent ranked below the
// requested page is fetched explicitly so placement never depends on page
// membership.
func (h *RankingHandlers) FeaturedAgents(w http.ResponseWriter, r *http.Request) {
	q, badSort := rankingQuery(r)
	if badSort != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidSort)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSort, "Unsupported sort key: "+badSort)
		return
	}

	organic, err := h.store.List(r.Context(), q)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list rankings", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list featured agents")
		return
	}

	now := time.Now()
	listings, err := h.listings.ListCurrent(r.Context(), now)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list featured listings", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list featured agents")
		return
	}

	onPage := make(map[string]bool, len(organic))
	for _, ra := range organic {
		onPage[ra.Agent.ID] = true
	}
	for _, l := range listings {
		if l.Category != q.Category || !l.IsCurrent(now) || onPage[l.AgentID] {
			continue
		}
		onPage[l.AgentID] = true

		ra, err := h.store.Get(r.Context(), l.AgentID)
		if err != nil {
			if errors.Is(err, rank.ErrRankingNotFound) {
				continue // featured but not yet ranked
			}
			slog.ErrorContext(r.Context(), "failed to get featured agent ranking",
				"agent_id", l.AgentID, "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list featured agents")
			return
		}
		organic = append(organic, *ra)
	}

	result := featured.Apply(organic, listings, q.Category, now)
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"agents": result,
		"count":  len(result),
	})
}

// AgentDetail handles GET /agents/{id} - one agent with its full scorecard
// and category memberships.
func (h *RankingHandlers) AgentDetail(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimPrefix(r.URL.Path, "/agents/")
	if agentID == "" || strings.Contains(agentID, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Agent ID is required")
		return
	}

	ra, err := h.store.Get(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, rank.ErrRankingNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAgentNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeAgentNotFound, "Agent not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get agent", "agent_id", agentID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to get agent")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, ra)
}

// RecordReferral handles POST /agents/{id}/referral - records an inbound
// referral event for the agent.
func (h *RankingHandlers) RecordReferral(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/agents/")
	agentID := strings.TrimSuffix(path, "/referral")
	if agentID == "" || agentID == path {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Agent ID is required")
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "direct"
	}

	if err := h.analytics.RecordReferral(r.Context(), agentID, source); err != nil {
		slog.ErrorContext(r.Context(), "failed to record referral", "agent_id", agentID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record referral")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Trending handles GET /trending - agents ordered by score delta since the
// previous pass.
func (h *RankingHandlers) Trending(w http.ResponseWriter, r *http.Request) {
	q, badSort := rankingQuery(r)
	if badSort != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidSort)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSort, "Unsupported sort key: "+badSort)
		return
	}
	q.SortBy = rank.SortTrending

	agents, err := h.store.List(r.Context(), q)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list trending agents", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list trending agents")
		return
	}

	// Only positive movement counts as trending.
	rising := agents[:0]
	for _, ra := range agents {
		if ra.Scores.Trending > 0 {
			rising = append(rising, ra)
		}
	}
	for i := range rising {
		rising[i].GlobalRank = i + 1
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"agents": rising,
		"count":  len(rising),
	})
}
