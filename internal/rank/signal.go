package rank

import (
	"context"
	"time"

	"github.com/moltworks/agentrank/internal/agent"
)

// SignalSource provides the agent roster and per-agent post history a pass
// reads. The pass takes one roster snapshot up front; agents crawled after
// the snapshot wait for the next pass.
type SignalSource interface {
	// ListAgents returns every known agent, ordered by ID.
	ListAgents(ctx context.Context) ([]agent.Agent, error)

	// AgentPosts returns the agent's posts posted at or after since,
	// newest first.
	AgentPosts(ctx context.Context, agentID string, since time.Time) ([]agent.Post, error)
}

// RepositorySource adapts an agent.Repository into a SignalSource.
type RepositorySource struct {
	repo agent.Repository
}

// NewRepositorySource creates a SignalSource backed by the agent repository.
func NewRepositorySource(repo agent.Repository) *RepositorySource {
	return &RepositorySource{repo: repo}
}

// ListAgents returns every known agent, ordered by ID.
func (s *RepositorySource) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	ids, err := s.repo.ListAgentIDs(ctx)
	if err != nil {
		return nil, err
	}

	agents := make([]agent.Agent, 0, len(ids))
	for _, id := range ids {
		a, err := s.repo.GetAgent(ctx, id)
		if err != nil {
			if err == agent.ErrAgentNotFound {
				continue // deleted between listing and fetch
			}
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, nil
}

// AgentPosts returns the agent's posts posted at or after since, newest first.
func (s *RepositorySource) AgentPosts(ctx context.Context, agentID string, since time.Time) ([]agent.Post, error) {
	return s.repo.GetPostsByAgent(ctx, agentID, since)
}
