package rank

import (
	"context"
	"sort"
	"sync"

	"github.com/moltworks/agentrank/internal/agent"
)

// InMemoryStore is an in-memory implementation of Store. Used for testing
// and development. It keeps full pass history like the Postgres store and
// flips the current pointer under one lock, so readers see either the old
// pass or the new one, never a mix.
type InMemoryStore struct {
	agents agent.Repository

	mu      sync.RWMutex
	passes  map[string]*Pass
	rows    map[string]map[string]StagedRanking // pass ID -> agent ID -> row
	order   []string                            // pass IDs, oldest first
	current string
}

// NewInMemoryStore creates an in-memory ranking store. Reads join against
// the given agent repository.
func NewInMemoryStore(agents agent.Repository) *InMemoryStore {
	return &InMemoryStore{
		agents: agents,
		passes: make(map[string]*Pass),
		rows:   make(map[string]map[string]StagedRanking),
	}
}

// CurrentPass returns the committed pass reads resolve against.
func (s *InMemoryStore) CurrentPass(ctx context.Context) (*Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == "" {
		return nil, ErrNoCurrentPass
	}
	copied := *s.passes[s.current]
	return &copied, nil
}

// PreviousOveralls returns each agent's overall score from the current pass.
func (s *InMemoryStore) PreviousOveralls(ctx context.Context) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	overalls := make(map[string]float64)
	if s.current == "" {
		return overalls, nil
	}
	for agentID, row := range s.rows[s.current] {
		overalls[agentID] = row.Ranking.Scores.Overall
	}
	return overalls, nil
}

// PreviousRanking returns the agent's staged row from the current pass.
func (s *InMemoryStore) PreviousRanking(ctx context.Context, agentID string) (*StagedRanking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == "" {
		return nil, ErrRankingNotFound
	}
	row, ok := s.rows[s.current][agentID]
	if !ok {
		return nil, ErrRankingNotFound
	}
	copied := row
	copied.Categories = append([]CategoryConfidence(nil), row.Categories...)
	return &copied, nil
}

// Get returns the agent joined with its current scorecard and categories.
func (s *InMemoryStore) Get(ctx context.Context, agentID string) (*RankedAgent, error) {
	s.mu.RLock()
	if s.current == "" {
		s.mu.RUnlock()
		return nil, ErrRankingNotFound
	}
	row, ok := s.rows[s.current][agentID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRankingNotFound
	}

	a, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	return &RankedAgent{
		Agent:        *a,
		Scores:       row.Ranking.Scores,
		Categories:   append([]CategoryConfidence(nil), row.Categories...),
		CategoryRank: row.Ranking.CategoryRank,
	}, nil
}

// List returns ranked agents from the current pass per the query.
func (s *InMemoryStore) List(ctx context.Context, q Query) ([]RankedAgent, error) {
	s.mu.RLock()
	var rows []StagedRanking
	if s.current != "" {
		for _, row := range s.rows[s.current] {
			rows = append(rows, row)
		}
	}
	s.mu.RUnlock()

	var ranked []RankedAgent
	for _, row := range rows {
		a, err := s.agents.GetAgent(ctx, row.Ranking.AgentID)
		if err != nil {
			if err == agent.ErrAgentNotFound {
				continue
			}
			return nil, err
		}

		ra := RankedAgent{
			Agent:        *a,
			Scores:       row.Ranking.Scores,
			Categories:   append([]CategoryConfidence(nil), row.Categories...),
			CategoryRank: row.Ranking.CategoryRank,
		}
		if !matches(&ra, q) {
			continue
		}
		ranked = append(ranked, ra)
	}

	sortBy := q.SortBy
	if !ValidSort(sortBy) {
		sortBy = SortOverall
	}
	sort.Slice(ranked, func(i, j int) bool {
		return Less(&ranked[i], &ranked[j], sortBy)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].GlobalRank = i + 1
	}

	return ranked, nil
}

// ListAll returns every ranked agent in the current pass.
func (s *InMemoryStore) ListAll(ctx context.Context) ([]RankedAgent, error) {
	s.mu.RLock()
	var rows []StagedRanking
	if s.current != "" {
		for _, row := range s.rows[s.current] {
			rows = append(rows, row)
		}
	}
	s.mu.RUnlock()

	ranked := make([]RankedAgent, 0, len(rows))
	for _, row := range rows {
		a, err := s.agents.GetAgent(ctx, row.Ranking.AgentID)
		if err != nil {
			if err == agent.ErrAgentNotFound {
				continue
			}
			return nil, err
		}
		ranked = append(ranked, RankedAgent{
			Agent:        *a,
			Scores:       row.Ranking.Scores,
			Categories:   append([]CategoryConfidence(nil), row.Categories...),
			CategoryRank: row.Ranking.CategoryRank,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		return Less(&ranked[i], &ranked[j], SortOverall)
	})
	for i := range ranked {
		ranked[i].GlobalRank = i + 1
	}
	return ranked, nil
}

// matches applies the query filters to one ranked agent.
func matches(ra *RankedAgent, q Query) bool {
	if q.Category != "" {
		found := false
		for _, cc := range ra.Categories {
			if cc.Category == q.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Submolt != "" && ra.Agent.Submolt != q.Submolt {
		return false
	}
	if q.MinScore > 0 && ra.Scores.Overall < q.MinScore {
		return false
	}
	if q.Verified != nil && ra.Agent.IsVerified != *q.Verified {
		return false
	}
	if q.Claimed != nil && ra.Agent.IsClaimed != *q.Claimed {
		return false
	}
	return true
}

// Commit stores the pass and flips the current pointer under one lock.
func (s *InMemoryStore) Commit(ctx context.Context, pass Pass, rows []StagedRanking) error {
	staged := make(map[string]StagedRanking, len(rows))
	for _, row := range rows {
		copied := row
		copied.Categories = append([]CategoryConfidence(nil), row.Categories...)
		staged[row.Ranking.AgentID] = copied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := pass
	s.passes[pass.ID] = &copied
	s.rows[pass.ID] = staged
	s.order = append(s.order, pass.ID)
	s.current = pass.ID

	for len(s.order) > passRetention {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.passes, oldest)
		delete(s.rows, oldest)
	}

	return nil
}
