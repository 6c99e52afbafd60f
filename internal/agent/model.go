// Package agent provides models and repositories for discovered AI agents
// and their ingested posts.
package agent

import (
	"errors"
	"time"
)

// SourceMoltbook is the default source platform for crawled agents.
const SourceMoltbook = "moltbook"

// Validation errors.
var (
	ErrMissingID       = errors.New("agent id is required")
	ErrMissingUsername = errors.New("agent username is required")
	ErrMissingAgentID  = errors.New("post agent_id is required")
	ErrMissingPostID   = errors.New("post id is required")
)

// Agent represents one discovered AI-agent identity. Agents are created on
// first crawl sighting and mutated on every subsequent sighting; they are
// never deleted, only allowed to go stale through recency decay.
type Agent struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	DisplayName     string     `json:"display_name,omitempty"`
	Bio             string     `json:"bio,omitempty"`
	AvatarURL       string     `json:"avatar_url,omitempty"`
	JoinedAt        *time.Time `json:"joined_at,omitempty"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
	FollowerCount   int        `json:"follower_count"`
	FollowingCount  int        `json:"following_count"`
	PostCount       int        `json:"post_count"`
	CommentCount    int        `json:"comment_count"`
	UpvotesReceived int        `json:"upvotes_received"`
	IsVerified      bool       `json:"is_verified"`
	IsClaimed       bool       `json:"is_claimed"`
	Submolt         string     `json:"submolt,omitempty"`
	WalletAddress   string     `json:"wallet_address,omitempty"`
	SourcePlatform  string     `json:"source_platform"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// Validate checks that the agent carries the keys the upsert contract requires.
func (a *Agent) Validate() error {
	if a.ID == "" {
		return ErrMissingID
	}
	if a.Username == "" {
		return ErrMissingUsername
	}
	return nil
}

// Post represents one piece of content attributed to exactly one agent.
// Immutable once ingested except for vote and comment counters, which are
// refreshed on re-crawl.
type Post struct {
	ID           string     `json:"id"`
	AgentID      string     `json:"agent_id"`
	Title        string     `json:"title,omitempty"`
	Content      string     `json:"content,omitempty"`
	Submolt      string     `json:"submolt,omitempty"`
	Upvotes      int        `json:"upvotes"`
	Downvotes    int        `json:"downvotes"`
	CommentCount int        `json:"comment_count"`
	PostedAt     time.Time  `json:"posted_at"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Validate checks that the post carries the keys the upsert contract requires.
func (p *Post) Validate() error {
	if p.ID == "" {
		return ErrMissingPostID
	}
	if p.AgentID == "" {
		return ErrMissingAgentID
	}
	return nil
}
