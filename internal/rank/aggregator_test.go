package rank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/moltworks/agentrank/internal/agent"
)

// fakeSource is a SignalSource with injectable failures.
type fakeSource struct {
	mu       sync.Mutex
	agents   []agent.Agent
	posts    map[string][]agent.Post
	failFor  map[string]bool
	panicFor map[string]bool

	listStarted chan struct{} // closed when ListAgents is first entered
	listGate    chan struct{} // ListAgents blocks until closed, when non-nil
}

func (f *fakeSource) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	f.mu.Lock()
	started := f.listStarted
	gate := f.listGate
	f.listStarted = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agent.Agent, len(f.agents))
	copy(out, f.agents)
	return out, nil
}

func (f *fakeSource) AgentPosts(ctx context.Context, agentID string, since time.Time) ([]agent.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.panicFor[agentID] {
		panic("scoring input corrupted")
	}
	if f.failFor[agentID] {
		return nil, fmt.Errorf("source unavailable for %s", agentID)
	}
	return append([]agent.Post(nil), f.posts[agentID]...), nil
}

func testAggregator(t *testing.T, source *fakeSource) (*Aggregator, *InMemoryStore) {
	t.Helper()

	repo := agent.NewInMemoryRepository()
	for i := range source.agents {
		if _, err := repo.UpsertAgent(context.Background(), &source.agents[i]); err != nil {
			t.Fatalf("failed to seed agent: %v", err)
		}
	}

	store := NewInMemoryStore(repo)
	agg := NewAggregator(AggregatorConfig{
		Workers: 2,
		Logger:  slog.New(slog.DiscardHandler),
	}, source, store)
	return agg, store
}

func TestAggregator_RunPass(t *testing.T) {
	now := time.Now()
	source := &fakeSource{
		agents: []agent.Agent{
			{ID: "a1", Username: "one", FollowerCount: 100, Submolt: "coding"},
			{ID: "a2", Username: "two", FollowerCount: 50},
		},
		posts: map[string][]agent.Post{
			"a1": {
				{ID: "p1", AgentID: "a1", Title: "python code", Content: "github developer api", Upvotes: 40, CommentCount: 5, PostedAt: now.Add(-2 * time.Hour)},
			},
		},
	}
	agg, store := testAggregator(t, source)

	result, err := agg.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if result.Ranked != 2 || result.Carried != 0 || result.Skipped != 0 {
		t.Errorf("result = %+v, want 2 ranked", result)
	}
	if result.Pass.AgentCount != 2 {
		t.Errorf("pass agent count = %d, want 2", result.Pass.AgentCount)
	}

	ra, err := store.Get(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Get(a1) error = %v", err)
	}
	if ra.Scores.Overall <= 0 {
		t.Errorf("a1 overall = %v, want > 0 with recent posts", ra.Scores.Overall)
	}
	if ra.Scores.Trending != 0 {
		t.Errorf("a1 trending = %v, want 0 on first pass", ra.Scores.Trending)
	}
	if len(ra.Categories) == 0 || ra.Categories[0].Category != "coding" {
		t.Errorf("a1 categories = %v, want coding first from submolt", ra.Categories)
	}
	if ra.CategoryRank != 1 {
		t.Errorf("a1 category rank = %d, want 1 in its primary category", ra.CategoryRank)
	}

	// An agent with no posts still gets a row, defaulted to general.
	rb, err := store.Get(context.Background(), "a2")
	if err != nil {
		t.Fatalf("Get(a2) error = %v", err)
	}
	if len(rb.Categories) != 1 || rb.Categories[0].Category != "general" {
		t.Errorf("a2 categories = %v, want general fallback", rb.Categories)
	}
}

func TestAggregator_TrendingDelta(t *testing.T) {
	now := time.Now()
	source := &fakeSource{
		agents: []agent.Agent{{ID: "a1", Username: "one"}},
		posts:  map[string][]agent.Post{},
	}
	agg, store := testAggregator(t, source)
	ctx := context.Background()

	if _, err := agg.RunPass(ctx); err != nil {
		t.Fatalf("first RunPass() error = %v", err)
	}
	first, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Give the agent activity before the second pass.
	source.mu.Lock()
	source.posts["a1"] = []agent.Post{
		{ID: "p1", AgentID: "a1", Title: "hello", Upvotes: 30, CommentCount: 4, PostedAt: now.Add(-time.Hour)},
		{ID: "p2", AgentID: "a1", Title: "again", Upvotes: 20, CommentCount: 2, PostedAt: now.Add(-2 * time.Hour)},
	}
	source.mu.Unlock()

	if _, err := agg.RunPass(ctx); err != nil {
		t.Fatalf("second RunPass() error = %v", err)
	}
	second, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	wantDelta := second.Scores.Overall - first.Scores.Overall
	if wantDelta <= 0 {
		t.Fatalf("overall did not rise: %v -> %v", first.Scores.Overall, second.Scores.Overall)
	}
	if diff := second.Scores.Trending - wantDelta; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("trending = %v, want delta %v", second.Scores.Trending, wantDelta)
	}
}

func TestAggregator_CarryForwardOnFailure(t *testing.T) {
	source := &fakeSource{
		agents: []agent.Agent{
			{ID: "a1", Username: "one"},
			{ID: "a2", Username: "two"},
		},
		posts:   map[string][]agent.Post{},
		failFor: map[string]bool{},
	}
	agg, store := testAggregator(t, source)
	ctx := context.Background()

	if _, err := agg.RunPass(ctx); err != nil {
		t.Fatalf("first RunPass() error = %v", err)
	}
	before, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	source.mu.Lock()
	source.failFor["a1"] = true
	source.mu.Unlock()

	result, err := agg.RunPass(ctx)
	if err != nil {
		t.Fatalf("second RunPass() error = %v", err)
	}
	if result.Carried != 1 || result.Ranked != 1 || result.Skipped != 0 {
		t.Errorf("result = %+v, want 1 ranked 1 carried", result)
	}

	after, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get(a1) after failure error = %v", err)
	}
	if after.Scores != before.Scores {
		t.Errorf("carried scores changed: %+v -> %+v", before.Scores, after.Scores)
	}
}

func TestAggregator_SkipWithoutPrevious(t *testing.T) {
	source := &fakeSource{
		agents: []agent.Agent{
			{ID: "a1", Username: "one"},
			{ID: "a2", Username: "two"},
		},
		posts:   map[string][]agent.Post{},
		failFor: map[string]bool{"a2": true},
	}
	agg, store := testAggregator(t, source)
	ctx := context.Background()

	result, err := agg.RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if result.Ranked != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v, want 1 ranked 1 skipped", result)
	}
	if _, err := store.Get(ctx, "a2"); !errors.Is(err, ErrRankingNotFound) {
		t.Errorf("Get(a2) error = %v, want ErrRankingNotFound for a skipped agent", err)
	}
	if result.Pass.AgentCount != 1 {
		t.Errorf("pass agent count = %d, want 1", result.Pass.AgentCount)
	}
}

func TestAggregator_PanicContained(t *testing.T) {
	source := &fakeSource{
		agents: []agent.Agent{
			{ID: "a1", Username: "one"},
			{ID: "a2", Username: "two"},
		},
		posts:    map[string][]agent.Post{},
		panicFor: map[string]bool{"a1": true},
	}
	agg, store := testAggregator(t, source)

	result, err := agg.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass() error = %v, want pass to survive an agent panic", err)
	}
	if result.Skipped != 1 || result.Ranked != 1 {
		t.Errorf("result = %+v, want the panicking agent skipped", result)
	}
	if _, err := store.Get(context.Background(), "a2"); err != nil {
		t.Errorf("Get(a2) error = %v, want healthy agent ranked", err)
	}
}

func TestAggregator_SingleWriter(t *testing.T) {
	source := &fakeSource{
		agents:      []agent.Agent{{ID: "a1", Username: "one"}},
		posts:       map[string][]agent.Post{},
		listStarted: make(chan struct{}),
		listGate:    make(chan struct{}),
	}
	agg, _ := testAggregator(t, source)

	done := make(chan error, 1)
	go func() {
		_, err := agg.RunPass(context.Background())
		done <- err
	}()

	<-source.listStarted
	if _, err := agg.RunPass(context.Background()); !errors.Is(err, ErrPassInProgress) {
		t.Errorf("concurrent RunPass() error = %v, want ErrPassInProgress", err)
	}

	close(source.listGate)
	if err := <-done; err != nil {
		t.Errorf("first RunPass() error = %v", err)
	}

	// The guard releases once the pass finishes.
	if _, err := agg.RunPass(context.Background()); err != nil {
		t.Errorf("RunPass() after completion error = %v", err)
	}
}

func TestAggregator_CancelledBeforeCommit(t *testing.T) {
	source := &fakeSource{
		agents: []agent.Agent{{ID: "a1", Username: "one"}},
		posts:  map[string][]agent.Post{},
	}
	agg, store := testAggregator(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := agg.RunPass(ctx); err == nil {
		t.Fatal("RunPass() with cancelled context succeeded, want error")
	}
	if _, err := store.CurrentPass(context.Background()); !errors.Is(err, ErrNoCurrentPass) {
		t.Errorf("CurrentPass() error = %v, want no pass committed after cancellation", err)
	}
}
