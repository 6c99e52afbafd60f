package rank

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/moltworks/agentrank/internal/agent"
)

// passRetention is how many committed passes are kept for history. Older
// passes and their rankings are pruned on commit.
const passRetention = 5

// defaultListLimit bounds reads that don't request an explicit limit.
const defaultListLimit = 50

// maxListLimit is the hard cap on a single ranking read.
const maxListLimit = 200

// StagedRanking is one agent's computed result staged for commit: the
// scorecard plus the category links that replace the prior pass's set.
type StagedRanking struct {
	Ranking    Ranking
	Categories []CategoryConfidence
}

// Store persists versioned ranking passes. Reads always resolve against the
// current pass pointer; Commit stages a whole pass and flips the pointer in
// one transaction so readers never observe a half-written pass.
type Store interface {
	// CurrentPass returns the committed pass reads resolve against.
	// Returns ErrNoCurrentPass before the first commit.
	CurrentPass(ctx context.Context) (*Pass, error)

	// PreviousOveralls returns each agent's overall score from the current
	// pass, for trending deltas. Empty (not an error) when no pass exists.
	PreviousOveralls(ctx context.Context) (map[string]float64, error)

	// PreviousRanking returns the agent's staged row from the current pass,
	// for carrying scores forward when a recompute fails. Returns
	// ErrRankingNotFound when the agent has no row.
	PreviousRanking(ctx context.Context, agentID string) (*StagedRanking, error)

	// Get returns the agent joined with its current scorecard and
	// categories. Returns ErrRankingNotFound if the agent has no row in
	// the current pass.
	Get(ctx context.Context, agentID string) (*RankedAgent, error)

	// List returns ranked agents from the current pass per the query.
	List(ctx context.Context, q Query) ([]RankedAgent, error)

	// ListAll returns every ranked agent in the current pass with category
	// memberships, in organic overall order. Serves the full directory
	// export; empty before the first commit.
	ListAll(ctx context.Context) ([]RankedAgent, error)

	// Commit writes the pass, its rankings, and its category links, then
	// flips the current pointer, all in one transaction.
	Commit(ctx context.Context, pass Pass, rows []StagedRanking) error
}

// sortColumns whitelists the SQL column for each sort key.
var sortColumns = map[string]string{
	SortOverall:    "r.overall_score",
	SortActivity:   "r.activity_score",
	SortEngagement: "r.engagement_score",
	SortQuality:    "r.quality_score",
	SortRecency:    "r.recency_score",
	SortTrending:   "r.trending_score",
}

// PostgresStore implements Store backed by Postgres.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// CurrentPass returns the committed pass reads resolve against.
func (s *PostgresStore) CurrentPass(ctx context.Context) (*Pass, error) {
	query := `
		SELECT id, started_at, committed_at, agent_count
		FROM ranking_passes
		WHERE current = TRUE
	`

	var p Pass
	err := s.db.QueryRowContext(ctx, query).Scan(&p.ID, &p.StartedAt, &p.CommittedAt, &p.AgentCount)
	if err == sql.ErrNoRows {
		return nil, ErrNoCurrentPass
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current pass: %w", err)
	}
	return &p, nil
}

// PreviousOveralls returns each agent's overall score from the current pass.
func (s *PostgresStore) PreviousOveralls(ctx context.Context) (map[string]float64, error) {
	query := `
		SELECT r.agent_id, r.overall_score
		FROM rankings r
		JOIN ranking_passes p ON p.id = r.pass_id
		WHERE p.current = TRUE
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list previous overalls: %w", err)
	}
	defer rows.Close()

	overalls := make(map[string]float64)
	for rows.Next() {
		var agentID string
		var overall float64
		if err := rows.Scan(&agentID, &overall); err != nil {
			return nil, fmt.Errorf("failed to scan previous overall: %w", err)
		}
		overalls[agentID] = overall
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate previous overalls: %w", err)
	}

	return overalls, nil
}

// PreviousRanking returns the agent's staged row from the current pass.
func (s *PostgresStore) PreviousRanking(ctx context.Context, agentID string) (*StagedRanking, error) {
	query := `
		SELECT r.agent_id, r.pass_id, r.activity_score, r.engagement_score,
		       r.quality_score, r.recency_score, r.overall_score,
		       r.trending_score, r.category_rank, r.last_calculated
		FROM rankings r
		JOIN ranking_passes p ON p.id = r.pass_id
		WHERE p.current = TRUE AND r.agent_id = $1
	`

	var staged StagedRanking
	rk := &staged.Ranking
	err := s.db.QueryRowContext(ctx, query, agentID).Scan(
		&rk.AgentID, &rk.PassID, &rk.Scores.Activity, &rk.Scores.Engagement,
		&rk.Scores.Quality, &rk.Scores.Recency, &rk.Scores.Overall,
		&rk.Scores.Trending, &rk.CategoryRank, &rk.LastCalculated,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRankingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get previous ranking for %s: %w", agentID, err)
	}

	staged.Categories, err = s.categoriesFor(ctx, rk.PassID, agentID)
	if err != nil {
		return nil, err
	}
	return &staged, nil
}

// Get returns the agent joined with its current scorecard and categories.
func (s *PostgresStore) Get(ctx context.Context, agentID string) (*RankedAgent, error) {
	query := `
		SELECT ` + agentColumns + `,
		       r.pass_id, r.activity_score, r.engagement_score, r.quality_score,
		       r.recency_score, r.overall_score, r.trending_score, r.category_rank
		FROM rankings r
		JOIN ranking_passes p ON p.id = r.pass_id
		JOIN agents a ON a.id = r.agent_id
		WHERE p.current = TRUE AND r.agent_id = $1
	`

	var ra RankedAgent
	var passID string
	scan := append(agentScanDest(&ra.Agent),
		&passID, &ra.Scores.Activity, &ra.Scores.Engagement, &ra.Scores.Quality,
		&ra.Scores.Recency, &ra.Scores.Overall, &ra.Scores.Trending, &ra.CategoryRank)

	err := s.db.QueryRowContext(ctx, query, agentID).Scan(scan...)
	if err == sql.ErrNoRows {
		return nil, ErrRankingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking for %s: %w", agentID, err)
	}

	ra.Categories, err = s.categoriesFor(ctx, passID, agentID)
	if err != nil {
		return nil, err
	}
	return &ra, nil
}

// List returns ranked agents from the current pass per the query.
func (s *PostgresStore) List(ctx context.Context, q Query) ([]RankedAgent, error) {
	sortCol, ok := sortColumns[q.SortBy]
	if !ok {
		sortCol = sortColumns[SortOverall]
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var sb strings.Builder
	var args []any

	sb.WriteString(`
		SELECT ` + agentColumns + `,
		       r.activity_score, r.engagement_score, r.quality_score,
		       r.recency_score, r.overall_score, r.trending_score, r.category_rank
		FROM rankings r
		JOIN ranking_passes p ON p.id = r.pass_id
		JOIN agents a ON a.id = r.agent_id
		WHERE p.current = TRUE
	`)

	if q.Category != "" {
		args = append(args, q.Category)
		fmt.Fprintf(&sb, ` AND EXISTS (
			SELECT 1 FROM agent_categories ac
			JOIN categories c ON c.id = ac.category_id
			WHERE ac.pass_id = r.pass_id AND ac.agent_id = r.agent_id AND c.name = $%d
		)`, len(args))
	}
	if q.Submolt != "" {
		args = append(args, q.Submolt)
		fmt.Fprintf(&sb, " AND a.submolt = $%d", len(args))
	}
	if q.MinScore > 0 {
		args = append(args, q.MinScore)
		fmt.Fprintf(&sb, " AND r.overall_score >= $%d", len(args))
	}
	if q.Verified != nil {
		args = append(args, *q.Verified)
		fmt.Fprintf(&sb, " AND a.is_verified = $%d", len(args))
	}
	if q.Claimed != nil {
		args = append(args, *q.Claimed)
		fmt.Fprintf(&sb, " AND a.is_claimed = $%d", len(args))
	}

	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY %s DESC, a.follower_count DESC, a.id ASC LIMIT $%d", sortCol, len(args))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rankings: %w", err)
	}
	defer rows.Close()

	var ranked []RankedAgent
	for rows.Next() {
		var ra RankedAgent
		scan := append(agentScanDest(&ra.Agent),
			&ra.Scores.Activity, &ra.Scores.Engagement, &ra.Scores.Quality,
			&ra.Scores.Recency, &ra.Scores.Overall, &ra.Scores.Trending, &ra.CategoryRank)
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		ra.GlobalRank = len(ranked) + 1
		ranked = append(ranked, ra)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rankings: %w", err)
	}

	return ranked, nil
}

// ListAll returns every ranked agent in the current pass.
func (s *PostgresStore) ListAll(ctx context.Context) ([]RankedAgent, error) {
	query := `
		SELECT ` + agentColumns + `,
		       r.activity_score, r.engagement_score, r.quality_score,
		       r.recency_score, r.overall_score, r.trending_score, r.category_rank
		FROM rankings r
		JOIN ranking_passes p ON p.id = r.pass_id
		JOIN agents a ON a.id = r.agent_id
		WHERE p.current = TRUE
		ORDER BY r.overall_score DESC, a.follower_count DESC, a.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list all rankings: %w", err)
	}
	defer rows.Close()

	var ranked []RankedAgent
	for rows.Next() {
		var ra RankedAgent
		scan := append(agentScanDest(&ra.Agent),
			&ra.Scores.Activity, &ra.Scores.Engagement, &ra.Scores.Quality,
			&ra.Scores.Recency, &ra.Scores.Overall, &ra.Scores.Trending, &ra.CategoryRank)
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		ra.GlobalRank = len(ranked) + 1
		ranked = append(ranked, ra)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rankings: %w", err)
	}

	// One query for every membership in the pass, attached in order.
	linkRows, err := s.db.QueryContext(ctx, `
		SELECT ac.agent_id, c.name, ac.confidence
		FROM agent_categories ac
		JOIN ranking_passes p ON p.id = ac.pass_id
		JOIN categories c ON c.id = ac.category_id
		WHERE p.current = TRUE
		ORDER BY ac.agent_id, ac.confidence DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list category links: %w", err)
	}
	defer linkRows.Close()

	byAgent := make(map[string][]CategoryConfidence)
	for linkRows.Next() {
		var agentID string
		var cc CategoryConfidence
		if err := linkRows.Scan(&agentID, &cc.Category, &cc.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan category link: %w", err)
		}
		byAgent[agentID] = append(byAgent[agentID], cc)
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category links: %w", err)
	}
	for i := range ranked {
		ranked[i].Categories = byAgent[ranked[i].Agent.ID]
	}

	return ranked, nil
}

// Commit writes the pass, rankings, and category links, flips the current
// pointer, and prunes passes beyond the retention window. All in one
// transaction: a failure anywhere leaves the previous pass untouched.
func (s *PostgresStore) Commit(ctx context.Context, pass Pass, rows []StagedRanking) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ranking_passes (id, started_at, committed_at, agent_count, current)
		VALUES ($1, $2, $3, $4, FALSE)
	`, pass.ID, pass.StartedAt, pass.CommittedAt, pass.AgentCount)
	if err != nil {
		return fmt.Errorf("failed to insert pass %s: %w", pass.ID, err)
	}

	rankStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rankings (
			pass_id, agent_id, activity_score, engagement_score, quality_score,
			recency_score, overall_score, trending_score, category_rank, last_calculated
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ranking insert: %w", err)
	}
	defer rankStmt.Close()

	linkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agent_categories (pass_id, agent_id, category_id, confidence)
		SELECT $1, $2, c.id, $4 FROM categories c WHERE c.name = $3
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare category link insert: %w", err)
	}
	defer linkStmt.Close()

	for i := range rows {
		rk := &rows[i].Ranking
		if _, err := rankStmt.ExecContext(ctx,
			pass.ID, rk.AgentID, rk.Scores.Activity, rk.Scores.Engagement,
			rk.Scores.Quality, rk.Scores.Recency, rk.Scores.Overall,
			rk.Scores.Trending, rk.CategoryRank, rk.LastCalculated,
		); err != nil {
			return fmt.Errorf("failed to insert ranking for %s: %w", rk.AgentID, err)
		}

		for _, cc := range rows[i].Categories {
			if _, err := linkStmt.ExecContext(ctx, pass.ID, rk.AgentID, cc.Category, cc.Confidence); err != nil {
				return fmt.Errorf("failed to link %s to %s: %w", rk.AgentID, cc.Category, err)
			}
		}
	}

	// Flip the current pointer. A single UPDATE keeps exactly one pass
	// current at every point readers can observe.
	if _, err := tx.ExecContext(ctx, `UPDATE ranking_passes SET current = (id = $1)`, pass.ID); err != nil {
		return fmt.Errorf("failed to flip current pass pointer: %w", err)
	}

	// Refresh taxonomy counters from the new pass's memberships.
	_, err = tx.ExecContext(ctx, `
		UPDATE categories c SET post_count = COALESCE(sub.total, 0)
		FROM (
			SELECT ac.category_id, SUM(a.post_count) AS total
			FROM agent_categories ac
			JOIN agents a ON a.id = ac.agent_id
			WHERE ac.pass_id = $1
			GROUP BY ac.category_id
		) sub
		WHERE c.id = sub.category_id
	`, pass.ID)
	if err != nil {
		return fmt.Errorf("failed to refresh category counts: %w", err)
	}

	// Prune history beyond the retention window; rankings and category
	// links cascade.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM ranking_passes
		WHERE id NOT IN (
			SELECT id FROM ranking_passes ORDER BY committed_at DESC LIMIT $1
		)
	`, passRetention)
	if err != nil {
		return fmt.Errorf("failed to prune old passes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pass %s: %w", pass.ID, err)
	}

	s.logger.Info("ranking pass committed",
		"pass_id", pass.ID,
		"agent_count", pass.AgentCount)
	return nil
}

// categoriesFor returns the agent's category links in one pass, highest
// confidence first.
func (s *PostgresStore) categoriesFor(ctx context.Context, passID, agentID string) ([]CategoryConfidence, error) {
	query := `
		SELECT c.name, ac.confidence
		FROM agent_categories ac
		JOIN categories c ON c.id = ac.category_id
		WHERE ac.pass_id = $1 AND ac.agent_id = $2
		ORDER BY ac.confidence DESC, c.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, passID, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories for %s: %w", agentID, err)
	}
	defer rows.Close()

	var links []CategoryConfidence
	for rows.Next() {
		var cc CategoryConfidence
		if err := rows.Scan(&cc.Category, &cc.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan category link: %w", err)
		}
		links = append(links, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category links: %w", err)
	}

	return links, nil
}

// agentColumns is the shared agent projection for ranking joins.
const agentColumns = `
	a.id, a.username, a.display_name, a.bio, a.avatar_url, a.joined_at,
	a.last_seen_at, a.follower_count, a.following_count, a.post_count,
	a.comment_count, a.upvotes_received, a.is_verified, a.is_claimed,
	a.submolt, a.wallet_address, a.source_platform`

// agentScanDest builds scan destinations for agentColumns into a.
// Nullable columns scan through nullStr/nullTime so the agent's plain
// fields receive zero values for NULL.
func agentScanDest(a *agent.Agent) []any {
	return []any{
		&a.ID, &a.Username, &nullStr{&a.DisplayName}, &nullStr{&a.Bio},
		&nullStr{&a.AvatarURL}, &nullTime{&a.JoinedAt}, &nullTime{&a.LastSeenAt},
		&a.FollowerCount, &a.FollowingCount, &a.PostCount, &a.CommentCount,
		&a.UpvotesReceived, &a.IsVerified, &a.IsClaimed, &nullStr{&a.Submolt},
		&nullStr{&a.WalletAddress}, &a.SourcePlatform,
	}
}

// nullStr scans a nullable text column straight into a string field.
type nullStr struct{ dst *string }

func (n *nullStr) Scan(v any) error {
	var s sql.NullString
	if err := s.Scan(v); err != nil {
		return err
	}
	*n.dst = s.String
	return nil
}

// nullTime scans a nullable timestamp column into a *time.Time field.
type nullTime struct{ dst **time.Time }

func (n *nullTime) Scan(v any) error {
	var t sql.NullTime
	if err := t.Scan(v); err != nil {
		return err
	}
	if t.Valid {
		tt := t.Time
		*n.dst = &tt
	} else {
		*n.dst = nil
	}
	return nil
}
