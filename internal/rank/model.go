// Package rank orchestrates recompute passes: it scores and categorizes
// every agent, derives tie-broken orderings, and commits the result as a
// versioned snapshot behind an atomically swapped "current" pointer.
package rank

import (
	"errors"
	"time"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/scoring"
)

// Errors surfaced by pass orchestration and the ranking store.
var (
	// ErrPassInProgress is returned when a recompute pass is requested
	// while another one is running. Passes are single-writer; callers
	// should retry after the running pass commits.
	ErrPassInProgress = errors.New("recompute pass already in progress")

	// ErrNoCurrentPass is returned by reads before the first pass commits.
	ErrNoCurrentPass = errors.New("no committed ranking pass")

	// ErrRankingNotFound is returned when an agent has no ranking row in
	// the current pass.
	ErrRankingNotFound = errors.New("ranking not found")
)

// Pass identifies one committed recompute pass.
type Pass struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	CommittedAt time.Time `json:"committed_at"`
	AgentCount  int       `json:"agent_count"`
}

// Ranking is the computed scorecard for one agent within one pass.
// Exactly one row exists per agent in the current pass.
type Ranking struct {
	AgentID        string         `json:"agent_id"`
	PassID         string         `json:"pass_id"`
	Scores         scoring.Scores `json:"scores"`
	CategoryRank   int            `json:"category_rank,omitempty"` // rank within the primary category, 0 when uncategorized
	LastCalculated time.Time      `json:"last_calculated"`
}

// CategoryConfidence is one category membership with its confidence.
type CategoryConfidence struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// RankedAgent is the read model the API serves: the agent joined with its
// current scorecard and category memberships.
type RankedAgent struct {
	Agent        agent.Agent          `json:"agent"`
	Scores       scoring.Scores       `json:"scores"`
	Categories   []CategoryConfidence `json:"categories,omitempty"`
	CategoryRank int                  `json:"category_rank,omitempty"`
	GlobalRank   int                  `json:"global_rank,omitempty"`
}

// Sort keys accepted by ranking reads.
const (
	SortOverall    = "overall"
	SortActivity   = "activity"
	SortEngagement = "engagement"
	SortQuality    = "quality"
	SortRecency    = "recency"
	SortTrending   = "trending"
)

// ValidSort reports whether key is an accepted ranking sort.
func ValidSort(key string) bool {
	switch key {
	case SortOverall, SortActivity, SortEngagement, SortQuality, SortRecency, SortTrending:
		return true
	}
	return false
}

// Query selects and orders ranked agents from the current pass.
type Query struct {
	Category string // filter by category name, empty for all
	Submolt  string // filter by agent submolt, empty for all
	MinScore float64
	Verified *bool
	Claimed  *bool
	SortBy   string // one of the Sort* keys, default SortOverall
	Limit    int
}

// Less orders two ranked agents for a given score key with the deterministic
// tie-break: score descending, then follower count descending, then agent ID
// ascending. This is a strict total order over any agent set.
func Less(a, b *RankedAgent, sortBy string) bool {
	sa, sb := scoreFor(a, sortBy), scoreFor(b, sortBy)
	if sa != sb {
		return sa > sb
	}
	if a.Agent.FollowerCount != b.Agent.FollowerCount {
		return a.Agent.FollowerCount > b.Agent.FollowerCount
	}
	return a.Agent.ID < b.Agent.ID
}

// scoreFor extracts the sort score for one agent.
func scoreFor(ra *RankedAgent, sortBy string) float64 {
	switch sortBy {
	case SortActivity:
		return ra.Scores.Activity
	case SortEngagement:
		return ra.Scores.Engagement
	case SortQuality:
		return ra.Scores.Quality
	case SortRecency:
		return ra.Scores.Recency
	case SortTrending:
		return ra.Scores.Trending
	default:
		return ra.Scores.Overall
	}
}
