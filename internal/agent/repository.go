package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrAgentNotFound is returned when an agent is not found.
var ErrAgentNotFound = errors.New("agent not found")

// Repository defines the ingestion upsert contract consumed from the crawler
// plus the reads the scoring engine needs. The crawler's upserts are
// idempotent by stable identifier; the engine never deduplicates.
type Repository interface {
	// UpsertAgent inserts or updates an agent by its stable ID.
	// Returns true if the agent was newly created.
	UpsertAgent(ctx context.Context, a *Agent) (bool, error)

	// UpsertPost inserts or updates a post by its stable ID, refreshing
	// vote and comment counters.
	// Returns true if the post was newly created.
	UpsertPost(ctx context.Context, p *Post) (bool, error)

	// GetAgent retrieves an agent by ID. Returns ErrAgentNotFound if absent.
	GetAgent(ctx context.Context, id string) (*Agent, error)

	// ListAgentIDs returns the IDs of all known agents.
	ListAgentIDs(ctx context.Context) ([]string, error)

	// GetPostsByAgent returns the agent's posts posted at or after since,
	// newest first.
	GetPostsByAgent(ctx context.Context, agentID string, since time.Time) ([]Post, error)

	// SearchAgents returns agents whose username, display name, or bio
	// matches the query, most followed first.
	SearchAgents(ctx context.Context, query string, limit int) ([]Agent, error)
}

// PostgresRepository implements Repository backed by Postgres.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
	stats  *UpsertStats
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
		stats:  NewUpsertStats(),
	}
}

// Stats returns the cumulative upsert statistics for this repository.
func (r *PostgresRepository) Stats() *UpsertStats {
	return r.stats
}

// UpsertAgent inserts or updates an agent by its stable ID.
func (r *PostgresRepository) UpsertAgent(ctx context.Context, a *Agent) (bool, error) {
	if err := a.Validate(); err != nil {
		return false, err
	}

	if a.SourcePlatform == "" {
		a.SourcePlatform = SourceMoltbook
	}

	query := `
		INSERT INTO agents (
			id, username, display_name, bio, avatar_url, joined_at, last_seen_at,
			follower_count, following_count, post_count, comment_count,
			upvotes_received, is_verified, is_claimed, submolt, wallet_address,
			source_platform, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			username         = EXCLUDED.username,
			display_name     = EXCLUDED.display_name,
			bio              = EXCLUDED.bio,
			avatar_url       = EXCLUDED.avatar_url,
			last_seen_at     = NOW(),
			follower_count   = EXCLUDED.follower_count,
			following_count  = EXCLUDED.following_count,
			post_count       = EXCLUDED.post_count,
			comment_count    = EXCLUDED.comment_count,
			upvotes_received = EXCLUDED.upvotes_received,
			is_verified      = EXCLUDED.is_verified,
			is_claimed       = EXCLUDED.is_claimed,
			submolt          = EXCLUDED.submolt,
			wallet_address   = EXCLUDED.wallet_address,
			updated_at       = NOW()
		RETURNING (xmax = 0)
	`

	var isNew bool
	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.Username, a.DisplayName, a.Bio, a.AvatarURL, a.JoinedAt,
		a.FollowerCount, a.FollowingCount, a.PostCount, a.CommentCount,
		a.UpvotesReceived, a.IsVerified, a.IsClaimed, a.Submolt,
		a.WalletAddress, a.SourcePlatform,
	).Scan(&isNew)
	if err != nil {
		return false, fmt.Errorf("failed to upsert agent %s: %w", a.ID, err)
	}

	if isNew {
		r.stats.RecordInsert()
	} else {
		r.stats.RecordUpdate()
	}

	r.logger.Debug("agent upserted",
		"agent_id", a.ID,
		"username", a.Username,
		"is_new", isNew)

	return isNew, nil
}

// UpsertPost inserts or updates a post by its stable ID.
func (r *PostgresRepository) UpsertPost(ctx context.Context, p *Post) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	query := `
		INSERT INTO posts (
			id, agent_id, title, content, submolt, upvotes, downvotes,
			comment_count, posted_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			upvotes       = EXCLUDED.upvotes,
			downvotes     = EXCLUDED.downvotes,
			comment_count = EXCLUDED.comment_count,
			updated_at    = NOW()
		RETURNING (xmax = 0)
	`

	var isNew bool
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.AgentID, p.Title, p.Content, p.Submolt,
		p.Upvotes, p.Downvotes, p.CommentCount, p.PostedAt,
	).Scan(&isNew)
	if err != nil {
		return false, fmt.Errorf("failed to upsert post %s: %w", p.ID, err)
	}

	if isNew {
		r.stats.RecordInsert()
	} else {
		r.stats.RecordUpdate()
	}

	return isNew, nil
}

// GetAgent retrieves an agent by ID.
func (r *PostgresRepository) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, username, display_name, bio, avatar_url, joined_at,
		       last_seen_at, follower_count, following_count, post_count,
		       comment_count, upvotes_received, is_verified, is_claimed,
		       submolt, wallet_address, source_platform, created_at, updated_at
		FROM agents
		WHERE id = $1
	`

	var a Agent
	var displayName, bio, avatarURL, submolt, wallet sql.NullString
	var joinedAt, lastSeenAt, createdAt, updatedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Username, &displayName, &bio, &avatarURL, &joinedAt,
		&lastSeenAt, &a.FollowerCount, &a.FollowingCount, &a.PostCount,
		&a.CommentCount, &a.UpvotesReceived, &a.IsVerified, &a.IsClaimed,
		&submolt, &wallet, &a.SourcePlatform, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", id, err)
	}

	a.DisplayName = displayName.String
	a.Bio = bio.String
	a.AvatarURL = avatarURL.String
	a.Submolt = submolt.String
	a.WalletAddress = wallet.String
	if joinedAt.Valid {
		a.JoinedAt = &joinedAt.Time
	}
	if lastSeenAt.Valid {
		a.LastSeenAt = &lastSeenAt.Time
	}
	if createdAt.Valid {
		a.CreatedAt = &createdAt.Time
	}
	if updatedAt.Valid {
		a.UpdatedAt = &updatedAt.Time
	}

	return &a, nil
}

// ListAgentIDs returns the IDs of all known agents.
func (r *PostgresRepository) ListAgentIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan agent id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent ids: %w", err)
	}

	return ids, nil
}

// GetPostsByAgent returns the agent's posts posted at or after since, newest first.
func (r *PostgresRepository) GetPostsByAgent(ctx context.Context, agentID string, since time.Time) ([]Post, error) {
	query := `
		SELECT id, agent_id, title, content, submolt, upvotes, downvotes,
		       comment_count, posted_at
		FROM posts
		WHERE agent_id = $1 AND posted_at >= $2
		ORDER BY posted_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, agentID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		var title, content, submolt sql.NullString
		if err := rows.Scan(&p.ID, &p.AgentID, &title, &content, &submolt,
			&p.Upvotes, &p.Downvotes, &p.CommentCount, &p.PostedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.Title = title.String
		p.Content = content.String
		p.Submolt = submolt.String
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// SearchAgents returns agents matching the query, most followed first.
func (r *PostgresRepository) SearchAgents(ctx context.Context, query string, limit int) ([]Agent, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM agents
		WHERE LOWER(username) LIKE $1
		   OR LOWER(display_name) LIKE $1
		   OR LOWER(bio) LIKE $1
		ORDER BY follower_count DESC, id ASC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan agent id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	agents := make([]Agent, 0, len(ids))
	for _, id := range ids {
		a, err := r.GetAgent(ctx, id)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, nil
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	posts  map[string]*Post
	stats  *UpsertStats
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		agents: make(map[string]*Agent),
		posts:  make(map[string]*Post),
		stats:  NewUpsertStats(),
	}
}

// Stats returns the cumulative upsert statistics for this repository.
func (r *InMemoryRepository) Stats() *UpsertStats {
	return r.stats
}

// UpsertAgent inserts or updates an agent by its stable ID.
func (r *InMemoryRepository) UpsertAgent(ctx context.Context, a *Agent) (bool, error) {
	if err := a.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.agents[a.ID]

	now := time.Now()
	copied := *a
	copied.LastSeenAt = &now
	if copied.SourcePlatform == "" {
		copied.SourcePlatform = SourceMoltbook
	}
	r.agents[a.ID] = &copied

	if exists {
		r.stats.RecordUpdate()
	} else {
		r.stats.RecordInsert()
	}

	return !exists, nil
}

// UpsertPost inserts or updates a post by its stable ID.
func (r *InMemoryRepository) UpsertPost(ctx context.Context, p *Post) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.posts[p.ID]
	if exists {
		// Only counters are refreshed on re-crawl.
		existing.Upvotes = p.Upvotes
		existing.Downvotes = p.Downvotes
		existing.CommentCount = p.CommentCount
		r.stats.RecordUpdate()
		return false, nil
	}

	copied := *p
	r.posts[p.ID] = &copied
	r.stats.RecordInsert()
	return true, nil
}

// GetAgent retrieves an agent by ID.
func (r *InMemoryRepository) GetAgent(ctx context.Context, id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	copied := *a
	return &copied, nil
}

// ListAgentIDs returns the IDs of all known agents, sorted for determinism.
func (r *InMemoryRepository) ListAgentIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetPostsByAgent returns the agent's posts posted at or after since, newest first.
func (r *InMemoryRepository) GetPostsByAgent(ctx context.Context, agentID string, since time.Time) ([]Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var posts []Post
	for _, p := range r.posts {
		if p.AgentID == agentID && !p.PostedAt.Before(since) {
			posts = append(posts, *p)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].PostedAt.Equal(posts[j].PostedAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].PostedAt.After(posts[j].PostedAt)
	})
	return posts, nil
}

// SearchAgents returns agents matching the query, most followed first.
func (r *InMemoryRepository) SearchAgents(ctx context.Context, query string, limit int) ([]Agent, error) {
	needle := strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	var agents []Agent
	for _, a := range r.agents {
		if strings.Contains(strings.ToLower(a.Username), needle) ||
			strings.Contains(strings.ToLower(a.DisplayName), needle) ||
			strings.Contains(strings.ToLower(a.Bio), needle) {
			agents = append(agents, *a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(agents, func(i, j int) bool {
		if agents[i].FollowerCount != agents[j].FollowerCount {
			return agents[i].FollowerCount > agents[j].FollowerCount
		}
		return agents[i].ID < agents[j].ID
	})
	if limit > 0 && len(agents) > limit {
		agents = agents[:limit]
	}
	return agents, nil
}
