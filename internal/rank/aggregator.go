package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/categorize"
	"github.com/moltworks/agentrank/internal/scoring"
)

// DefaultLookback is the post window a pass reads when none is configured.
const DefaultLookback = 30 * 24 * time.Hour

// DefaultWorkers is the per-pass scoring concurrency when none is configured.
const DefaultWorkers = 8

// JobMetrics provides centralized background job metrics tracking.
// This interface allows the aggregator to report to the centralized job
// metrics system.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// AggregatorConfig configures a recompute pass aggregator.
type AggregatorConfig struct {
	// Lookback is the post window each pass reads.
	Lookback time.Duration
	// Workers is how many agents are scored concurrently.
	Workers int
	// Logger for pass activity.
	Logger *slog.Logger
	// Metrics for pass performance tracking.
	Metrics *Metrics
	// JobMetrics for centralized background job tracking.
	JobMetrics JobMetrics
	// SubWeights tunes the sub-score internals; nil uses defaults.
	SubWeights *scoring.SubWeights
	// Now overrides the pass reference clock. Nil uses time.Now.
	Now func() time.Time
}

// PassResult summarizes one committed pass.
type PassResult struct {
	Pass    Pass
	Ranked  int // agents with freshly computed rows
	Carried int // agents whose previous rows were carried forward
	Skipped int // failed agents with no previous row to carry
}

// Aggregator runs full recompute passes: score and categorize every agent,
// derive orderings, and commit the result atomically. Passes are
// single-writer; concurrent RunPass calls beyond the first get
// ErrPassInProgress.
type Aggregator struct {
	config AggregatorConfig
	source SignalSource
	store  Store

	mu      sync.Mutex
	running bool
}

// NewAggregator creates a recompute pass aggregator.
func NewAggregator(config AggregatorConfig, source SignalSource, store Store) *Aggregator {
	if config.Lookback <= 0 {
		config.Lookback = DefaultLookback
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Aggregator{
		config: config,
		source: source,
		store:  store,
	}
}

// agentOutcome is one worker's result for one agent.
type agentOutcome struct {
	agentID string
	row     StagedRanking
	err     error
}

// RunPass executes one full recompute pass and commits it. One agent's
// failure never aborts the pass: the agent's previous row is carried
// forward when one exists, otherwise the agent is skipped until the next
// pass. The previous pass stays visible until the commit lands.
func (a *Aggregator) RunPass(ctx context.Context) (*PassResult, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, ErrPassInProgress
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	start := time.Now()
	now := a.config.Now()
	passID := uuid.NewString()

	result, err := a.runPass(ctx, passID, now)

	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "failure"
		if a.config.Metrics != nil {
			a.config.Metrics.IncPassErrors()
		}
		if a.config.JobMetrics != nil {
			a.config.JobMetrics.IncJobErrors("rank_pass", "pass_error")
		}
	} else {
		if a.config.Metrics != nil {
			a.config.Metrics.IncPassTotal()
			a.config.Metrics.SetLastPassTimestamp(float64(time.Now().Unix()))
			a.config.Metrics.SetLastPassAgents(float64(result.Pass.AgentCount))
		}
	}
	if a.config.Metrics != nil {
		a.config.Metrics.ObservePassDuration(duration)
	}
	if a.config.JobMetrics != nil {
		a.config.JobMetrics.IncJobsTotal("rank_pass", status)
		a.config.JobMetrics.ObserveJobDuration("rank_pass", duration)
	}

	if err != nil {
		a.config.Logger.Error("ranking pass failed",
			"pass_id", passID,
			"duration_seconds", duration,
			"error", err)
		return nil, err
	}

	a.config.Logger.Info("ranking pass completed",
		"pass_id", passID,
		"duration_seconds", duration,
		"ranked", result.Ranked,
		"carried_forward", result.Carried,
		"skipped", result.Skipped)
	return result, nil
}

// IsRunning reports whether a pass is currently executing.
func (a *Aggregator) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// runPass does the work of one pass under the single-writer guard.
func (a *Aggregator) runPass(ctx context.Context, passID string, now time.Time) (*PassResult, error) {
	// One roster snapshot per pass. Agents crawled after this point wait
	// for the next pass.
	agents, err := a.source.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot agent roster: %w", err)
	}

	previous, err := a.store.PreviousOveralls(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous scores: %w", err)
	}

	outcomes := a.scoreAll(ctx, agents, previous, passID, now)

	result := &PassResult{}
	rows := make([]StagedRanking, 0, len(outcomes))
	for _, out := range outcomes {
		if out.err == nil {
			rows = append(rows, out.row)
			result.Ranked++
			continue
		}

		a.config.Logger.Error("agent scoring failed",
			"pass_id", passID,
			"agent_id", out.agentID,
			"error", out.err)
		if a.config.Metrics != nil {
			a.config.Metrics.IncAgentFailures()
		}
		if a.config.JobMetrics != nil {
			a.config.JobMetrics.IncJobErrors("rank_pass", "agent_error")
		}

		carried, err := a.store.PreviousRanking(ctx, out.agentID)
		if err != nil {
			// Nothing to carry forward; the agent sits this pass out.
			result.Skipped++
			continue
		}
		carried.Ranking.PassID = passID
		rows = append(rows, *carried)
		result.Carried++
	}

	assignCategoryRanks(rows, agents)

	if err := ctx.Err(); err != nil {
		// Cancelled passes are discarded whole; the previous pass stays
		// current.
		return nil, fmt.Errorf("pass cancelled before commit: %w", err)
	}

	pass := Pass{
		ID:          passID,
		StartedAt:   now,
		CommittedAt: time.Now(),
		AgentCount:  len(rows),
	}
	if err := a.store.Commit(ctx, pass, rows); err != nil {
		return nil, fmt.Errorf("failed to commit pass: %w", err)
	}

	result.Pass = pass
	return result, nil
}

// scoreAll fans the roster out over the worker pool and collects one
// outcome per agent.
func (a *Aggregator) scoreAll(ctx context.Context, agents []agent.Agent, previous map[string]float64, passID string, now time.Time) []agentOutcome {
	jobs := make(chan agent.Agent)
	results := make(chan agentOutcome, len(agents))

	var wg sync.WaitGroup
	for w := 0; w < a.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ag := range jobs {
				results <- a.scoreOne(ctx, ag, previous, passID, now)
			}
		}()
	}

	for _, ag := range agents {
		jobs <- ag
	}
	close(jobs)
	wg.Wait()
	close(results)

	outcomes := make([]agentOutcome, 0, len(agents))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// scoreOne computes one agent's scorecard and category links. A panic in
// scoring is contained to the agent and surfaces as its error.
func (a *Aggregator) scoreOne(ctx context.Context, ag agent.Agent, previous map[string]float64, passID string, now time.Time) (out agentOutcome) {
	out.agentID = ag.ID
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("panic scoring agent %s: %v", ag.ID, r)
		}
	}()

	posts, err := a.source.AgentPosts(ctx, ag.ID, now.Add(-a.config.Lookback))
	if err != nil {
		out.err = fmt.Errorf("failed to load posts: %w", err)
		return out
	}

	stats := buildPostStats(posts, now)
	profile := scoring.Profile{
		DisplayName:   ag.DisplayName,
		Bio:           ag.Bio,
		AvatarURL:     ag.AvatarURL,
		FollowerCount: ag.FollowerCount,
		IsVerified:    ag.IsVerified,
	}

	previousOverall, hasPrevious := previous[ag.ID]
	scores := scoring.Compute(profile, stats, now, previousOverall, hasPrevious, a.config.SubWeights)

	texts := make([]categorize.PostText, len(posts))
	for i, p := range posts {
		texts[i] = categorize.PostText{Title: p.Title, Content: p.Content}
	}
	confidences := categorize.Categorize(categorize.Profile{Submolt: ag.Submolt}, texts)

	links := make([]CategoryConfidence, 0, len(confidences))
	for name, conf := range confidences {
		links = append(links, CategoryConfidence{Category: name, Confidence: conf})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Confidence != links[j].Confidence {
			return links[i].Confidence > links[j].Confidence
		}
		return links[i].Category < links[j].Category
	})

	out.row = StagedRanking{
		Ranking: Ranking{
			AgentID:        ag.ID,
			PassID:         passID,
			Scores:         scores,
			LastCalculated: now,
		},
		Categories: links,
	}
	return out
}

// buildPostStats aggregates the post window into scoring inputs.
func buildPostStats(posts []agent.Post, now time.Time) scoring.PostStats {
	stats := scoring.PostStats{PostCount: len(posts)}

	times := make([]time.Time, len(posts))
	for i, p := range posts {
		times[i] = p.PostedAt
		stats.TotalUpvotes += p.Upvotes
		stats.TotalDownvote += p.Downvotes
		stats.TotalComments += p.CommentCount
		if p.PostedAt.After(stats.LastPostAt) {
			stats.LastPostAt = p.PostedAt
		}
	}
	stats.BucketCounts = scoring.BucketPosts(times, now)

	return stats
}

// assignCategoryRanks orders the members of each category with the standard
// tie-break and records each agent's rank within its primary category (the
// first entry of its confidence-sorted links).
func assignCategoryRanks(rows []StagedRanking, agents []agent.Agent) {
	followers := make(map[string]int, len(agents))
	for _, ag := range agents {
		followers[ag.ID] = ag.FollowerCount
	}

	// Collect member indices per category.
	members := make(map[string][]int)
	for i := range rows {
		for _, cc := range rows[i].Categories {
			members[cc.Category] = append(members[cc.Category], i)
		}
	}

	for name, idxs := range members {
		sort.Slice(idxs, func(x, y int) bool {
			rx, ry := &rows[idxs[x]], &rows[idxs[y]]
			if rx.Ranking.Scores.Overall != ry.Ranking.Scores.Overall {
				return rx.Ranking.Scores.Overall > ry.Ranking.Scores.Overall
			}
			fx, fy := followers[rx.Ranking.AgentID], followers[ry.Ranking.AgentID]
			if fx != fy {
				return fx > fy
			}
			return rx.Ranking.AgentID < ry.Ranking.AgentID
		})

		for rank, idx := range idxs {
			if primaryCategory(&rows[idx]) == name {
				rows[idx].Ranking.CategoryRank = rank + 1
			}
		}
	}
}

// primaryCategory returns the agent's highest-confidence category, empty
// when the agent has no links.
func primaryCategory(row *StagedRanking) string {
	if len(row.Categories) == 0 {
		return ""
	}
	return row.Categories[0].Category
}
