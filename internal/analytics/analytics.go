// Package analytics records directory usage events: search queries and
// inbound referrals. Events are append-only and never block the request
// that produced them.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyQuery is returned when a search event carries no query text.
var ErrEmptyQuery = errors.New("search query text is required")

// SearchQuery is one recorded search.
type SearchQuery struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Referral is one recorded inbound referral for an agent.
type Referral struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryCount is one aggregated query with its occurrence count.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Repository defines analytics event persistence.
type Repository interface {
	// RecordSearch appends one search event.
	RecordSearch(ctx context.Context, query string, resultCount int) error

	// RecordReferral appends one referral event.
	RecordReferral(ctx context.Context, agentID, source string) error

	// TopQueries returns the most frequent queries since the given time.
	TopQueries(ctx context.Context, since time.Time, limit int) ([]QueryCount, error)

	// ReferralCount returns how many referrals an agent received since the
	// given time.
	ReferralCount(ctx context.Context, agentID string, since time.Time) (int, error)
}

// PostgresRepository implements Repository backed by Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// RecordSearch appends one search event.
func (r *PostgresRepository) RecordSearch(ctx context.Context, query string, resultCount int) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyQuery
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO search_queries (id, query, result_count, created_at)
		VALUES ($1, $2, $3, NOW())
	`, uuid.NewString(), strings.ToLower(query), resultCount)
	if err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

// RecordReferral appends one referral event.
func (r *PostgresRepository) RecordReferral(ctx context.Context, agentID, source string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO referrals (id, agent_id, source, created_at)
		VALUES ($1, $2, $3, NOW())
	`, uuid.NewString(), agentID, source)
	if err != nil {
		return fmt.Errorf("failed to record referral: %w", err)
	}
	return nil
}

// TopQueries returns the most frequent queries since the given time.
func (r *PostgresRepository) TopQueries(ctx context.Context, since time.Time, limit int) ([]QueryCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT query, COUNT(*) AS n
		FROM search_queries
		WHERE created_at >= $1
		GROUP BY query
		ORDER BY n DESC, query ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top queries: %w", err)
	}
	defer rows.Close()

	var top []QueryCount
	for rows.Next() {
		var qc QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan query count: %w", err)
		}
		top = append(top, qc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate query counts: %w", err)
	}

	return top, nil
}

// ReferralCount returns how many referrals an agent received since the
// given time.
func (r *PostgresRepository) ReferralCount(ctx context.Context, agentID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM referrals WHERE agent_id = $1 AND created_at >= $2
	`, agentID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return count, nil
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu        sync.RWMutex
	searches  []SearchQuery
	referrals []Referral
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// RecordSearch appends one search event.
func (r *InMemoryRepository) RecordSearch(ctx context.Context, query string, resultCount int) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyQuery
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches = append(r.searches, SearchQuery{
		ID:          uuid.NewString(),
		Query:       strings.ToLower(query),
		ResultCount: resultCount,
		CreatedAt:   time.Now(),
	})
	return nil
}

// RecordReferral appends one referral event.
func (r *InMemoryRepository) RecordReferral(ctx context.Context, agentID, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referrals = append(r.referrals, Referral{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Source:    source,
		CreatedAt: time.Now(),
	})
	return nil
}

// TopQueries returns the most frequent queries since the given time.
func (r *InMemoryRepository) TopQueries(ctx context.Context, since time.Time, limit int) ([]QueryCount, error) {
	r.mu.RLock()
	counts := make(map[string]int)
	for _, s := range r.searches {
		if !s.CreatedAt.Before(since) {
			counts[s.Query]++
		}
	}
	r.mu.RUnlock()

	top := make([]QueryCount, 0, len(counts))
	for q, n := range counts {
		top = append(top, QueryCount{Query: q, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Query < top[j].Query
	})
	if limit > 0 && len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

// ReferralCount returns how many referrals an agent received since the
// given time.
func (r *InMemoryRepository) ReferralCount(ctx context.Context, agentID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, ref := range r.referrals {
		if ref.AgentID == agentID && !ref.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}
