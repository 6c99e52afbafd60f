package featured

import (
	"testing"
	"time"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/rank"
	"github.com/moltworks/agentrank/internal/scoring"
)

func organicList(ids ...string) []rank.RankedAgent {
	out := make([]rank.RankedAgent, len(ids))
	for i, id := range ids {
		out[i] = rank.RankedAgent{
			Agent:      agent.Agent{ID: id, Username: id},
			Scores:     scoring.Scores{Overall: 1.0 - float64(i)*0.1},
			GlobalRank: i + 1,
		}
	}
	return out
}

func activeListing(agentID string, amount int64, now time.Time) Listing {
	end := now.AddDate(0, 0, 1)
	return Listing{
		ID:         "listing-" + agentID,
		AgentID:    agentID,
		Status:     StatusActive,
		AmountPaid: amount,
		StartDate:  now.AddDate(0, 0, -1),
		EndDate:    &end,
	}
}

func TestApply_PinsFeaturedBlock(t *testing.T) {
	now := time.Now()
	organic := organicList("a1", "a2", "a3", "a4")
	// Listings arrive ordered by amount paid; a4 paid more than a2.
	listings := []Listing{
		activeListing("a4", 7000, now),
		activeListing("a2", 3500, now),
	}

	got := Apply(organic, listings, "", now)

	wantOrder := []string{"a4", "a2", "a1", "a3"}
	if len(got) != len(wantOrder) {
		t.Fatalf("Apply() returned %d agents, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].Agent.ID != want {
			t.Errorf("position %d = %s, want %s", i, got[i].Agent.ID, want)
		}
		if got[i].GlobalRank != i+1 {
			t.Errorf("position %d GlobalRank = %d, want %d", i, got[i].GlobalRank, i+1)
		}
	}
}

func TestApply_ScopeMatching(t *testing.T) {
	now := time.Now()
	global := activeListing("a3", 3500, now)
	scoped := activeListing("a2", 3500, now)
	scoped.Category = "coding"
	listings := []Listing{global, scoped}

	t.Run("global view pins only global listings", func(t *testing.T) {
		got := Apply(organicList("a1", "a2", "a3"), listings, "", now)
		want := []string{"a3", "a1", "a2"}
		for i := range want {
			if got[i].Agent.ID != want[i] {
				t.Errorf("position %d = %s, want %s", i, got[i].Agent.ID, want[i])
			}
		}
	})

	t.Run("category view pins only its scope", func(t *testing.T) {
		got := Apply(organicList("a1", "a2", "a3"), listings, "coding", now)
		want := []string{"a2", "a1", "a3"}
		for i := range want {
			if got[i].Agent.ID != want[i] {
				t.Errorf("position %d = %s, want %s", i, got[i].Agent.ID, want[i])
			}
		}
	})

	t.Run("unrelated category stays organic", func(t *testing.T) {
		got := Apply(organicList("a1", "a2", "a3"), listings, "music", now)
		if got[0].Agent.ID != "a1" {
			t.Errorf("unrelated scope reordered: %v", got)
		}
	})
}

func TestApply_NeverTouchesScores(t *testing.T) {
	now := time.Now()
	organic := organicList("a1", "a2", "a3")
	before := make([]scoring.Scores, len(organic))
	for i, ra := range organic {
		before[i] = ra.Scores
	}

	got := Apply(organic, []Listing{activeListing("a3", 3500, now)}, "", now)

	byID := make(map[string]scoring.Scores, len(got))
	for _, ra := range got {
		byID[ra.Agent.ID] = ra.Scores
	}
	for i, ra := range organic {
		if byID[ra.Agent.ID] != before[i] {
			t.Errorf("agent %s scores changed: %+v -> %+v", ra.Agent.ID, before[i], byID[ra.Agent.ID])
		}
	}
}

func TestApply_EdgeCases(t *testing.T) {
	now := time.Now()

	t.Run("no listings", func(t *testing.T) {
		organic := organicList("a1", "a2")
		got := Apply(organic, nil, "", now)
		if len(got) != 2 || got[0].Agent.ID != "a1" {
			t.Errorf("Apply() with no listings changed the order: %v", got)
		}
	})

	t.Run("lapsed listing ignored", func(t *testing.T) {
		organic := organicList("a1", "a2")
		lapsed := activeListing("a2", 3500, now)
		end := now.AddDate(0, 0, -1)
		lapsed.StartDate = now.AddDate(0, 0, -3)
		lapsed.EndDate = &end

		got := Apply(organic, []Listing{lapsed}, "", now)
		if got[0].Agent.ID != "a1" {
			t.Errorf("lapsed listing still pinned: %v", got)
		}
	})

	t.Run("open-ended listing pins", func(t *testing.T) {
		organic := organicList("a1", "a2")
		open := activeListing("a2", 3500, now)
		open.EndDate = nil

		got := Apply(organic, []Listing{open}, "", now)
		if got[0].Agent.ID != "a2" {
			t.Errorf("open-ended listing not pinned: %v", got)
		}
	})

	t.Run("featured agent missing from organic list", func(t *testing.T) {
		organic := organicList("a1", "a2")
		got := Apply(organic, []Listing{activeListing("ghost", 3500, now)}, "", now)
		if len(got) != 2 {
			t.Fatalf("Apply() invented an agent: %v", got)
		}
		if got[0].Agent.ID != "a1" || got[1].Agent.ID != "a2" {
			t.Errorf("order changed with no pinnable agent: %v", got)
		}
	})

	t.Run("duplicate listings for one agent", func(t *testing.T) {
		organic := organicList("a1", "a2")
		got := Apply(organic, []Listing{
			activeListing("a2", 7000, now),
			activeListing("a2", 3500, now),
		}, "", now)
		if len(got) != 2 {
			t.Fatalf("Apply() duplicated an agent: %v", got)
		}
		if got[0].Agent.ID != "a2" {
			t.Errorf("expected a2 pinned once at the top: %v", got)
		}
	})
}

func TestSweep_DeactivateExpired(t *testing.T) {
	now := time.Now()
	repo := NewInMemoryRepository()
	ctx := t.Context()

	lapsed := activeListing("a1", 3500, now)
	lapsedEnd := now.AddDate(0, 0, -1)
	lapsed.StartDate = now.AddDate(0, 0, -5)
	lapsed.EndDate = &lapsedEnd
	running := activeListing("a2", 3500, now)
	open := activeListing("a3", 3500, now)
	open.EndDate = nil

	for _, l := range []Listing{lapsed, running, open} {
		listing := l
		if err := repo.Insert(ctx, &listing); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	count, err := repo.DeactivateExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeactivateExpired() error = %v", err)
	}
	if count != 1 {
		t.Errorf("DeactivateExpired() = %d, want 1", count)
	}

	got, err := repo.GetByID(ctx, lapsed.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("lapsed listing status = %s, want expired", got.Status)
	}

	for _, id := range []string{running.ID, open.ID} {
		still, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if still.Status != StatusActive {
			t.Errorf("listing %s status = %s, want active", id, still.Status)
		}
	}
}
