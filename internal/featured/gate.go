package featured

import (
	"time"

	"github.com/moltworks/agentrank/internal/rank"
)

// Apply pins currently featured agents above the organic ordering for one
// view. scope is the category the view is filtered to, empty for the global
// directory; only listings sold for that exact scope pin there. Featured
// agents keep their computed scores untouched; only placement changes. The
// featured block is ordered by amount paid descending (start date, then ID,
// breaking ties), the remainder keeps its organic order. Agents featured but
// absent from the organic list are not invented here; a listing only pins an
// agent the ranking already knows.
func Apply(organic []rank.RankedAgent, listings []Listing, scope string, now time.Time) []rank.RankedAgent {
	if len(listings) == 0 {
		return organic
	}

	// Listings arrive ordered; keep the first current in-scope listing per
	// agent.
	pinned := make(map[string]int, len(listings)) // agent ID -> block position
	for _, l := range listings {
		if l.Category != scope || !l.IsCurrent(now) {
			continue
		}
		if _, ok := pinned[l.AgentID]; !ok {
			pinned[l.AgentID] = len(pinned)
		}
	}
	if len(pinned) == 0 {
		return organic
	}

	featured := make([]rank.RankedAgent, len(pinned))
	rest := make([]rank.RankedAgent, 0, len(organic))
	for _, ra := range organic {
		if pos, ok := pinned[ra.Agent.ID]; ok {
			featured[pos] = ra
			continue
		}
		rest = append(rest, ra)
	}

	// Compact over positions whose agent wasn't in the organic slice.
	result := make([]rank.RankedAgent, 0, len(organic))
	for _, ra := range featured {
		if ra.Agent.ID != "" {
			result = append(result, ra)
		}
	}
	result = append(result, rest...)

	for i := range result {
		result[i].GlobalRank = i + 1
	}
	return result
}
