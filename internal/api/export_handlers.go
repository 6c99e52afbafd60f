package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/moltworks/agentrank/internal/middleware"
	"github.com/moltworks/agentrank/internal/scoring"
)

// exportSchemaVersion identifies the export payload layout for consumers.
const exportSchemaVersion = "1.0"

// exportedAgent is one row of the public directory dump.
type exportedAgent struct {
	AgentID       string         `json:"agent_id"`
	Name          string         `json:"name"`
	Karma         float64        `json:"karma"`
	FollowerCount int            `json:"follower_count"`
	LastActive    *time.Time     `json:"last_active,omitempty"`
	IsVerified    bool           `json:"is_verified"`
	Topics        []string       `json:"topics"`
	Scores        scoring.Scores `json:"scores"`
}

// Export handles GET /export/agents.json - a public dump of every ranked
// agent in the current pass, organic order, no pagination.
func (h *RankingHandlers) Export(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.ListAll(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to export rankings", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to export agents")
		return
	}

	rows := make([]exportedAgent, 0, len(agents))
	for _, ra := range agents {
		name := ra.Agent.DisplayName
		if name == "" {
			name = ra.Agent.Username
		}
		topics := make([]string, 0, len(ra.Categories))
		for _, cc := range ra.Categories {
			topics = append(topics, cc.Category)
		}
		rows = append(rows, exportedAgent{
			AgentID:       ra.Agent.ID,
			Name:          name,
			Karma:         ra.Scores.Overall,
			FollowerCount: ra.Agent.FollowerCount,
			LastActive:    ra.Agent.LastSeenAt,
			IsVerified:    ra.Agent.IsVerified,
			Topics:        topics,
			Scores:        ra.Scores,
		})
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"exported_at":    time.Now().UTC().Format(time.RFC3339),
		"schema_version": exportSchemaVersion,
		"total_agents":   len(rows),
		"agents":         rows,
	})
}
