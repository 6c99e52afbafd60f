package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/analytics"
)

func TestSearch_MissingQuery(t *testing.T) {
	repo, store := rankedFixture(t)
	h := NewSearchHandlers(repo, store, analytics.NewInMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != ErrCodeValidation {
		t.Errorf("error code = %s, want %s", code, ErrCodeValidation)
	}
}

func TestSearch_JoinsRankings(t *testing.T) {
	repo, store := rankedFixture(t)
	ctx := context.Background()

	// An agent the crawler has seen but no pass has ranked yet.
	unranked := agent.Agent{ID: "a9", Username: "onlooker", DisplayName: "One More"}
	if _, err := repo.UpsertAgent(ctx, &unranked); err != nil {
		t.Fatalf("failed to seed agent: %v", err)
	}

	analyticsRepo := analytics.NewInMemoryRepository()
	h := NewSearchHandlers(repo, store, analyticsRepo)

	req := httptest.NewRequest(http.MethodGet, "/search?q=one", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Query   string         `json:"query"`
		Results []SearchResult `json:"results"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Query != "one" {
		t.Errorf("query = %q, want one", resp.Query)
	}

	byID := make(map[string]SearchResult, len(resp.Results))
	for _, res := range resp.Results {
		byID[res.Agent.ID] = res
	}

	ranked, ok := byID["a1"]
	if !ok {
		t.Fatal("ranked agent a1 missing from results")
	}
	if ranked.Scores == nil || ranked.Scores.Scores.Overall != 0.9 {
		t.Errorf("a1 ranking = %+v, want overall 0.9", ranked.Scores)
	}

	hit, ok := byID["a9"]
	if !ok {
		t.Fatal("unranked agent a9 missing from results")
	}
	if hit.Scores != nil {
		t.Errorf("unranked agent carries a scorecard: %+v", hit.Scores)
	}

	// The search itself is recorded for the rollup.
	top, err := analyticsRepo.TopQueries(ctx, time.Now().Add(-time.Minute), 5)
	if err != nil {
		t.Fatalf("TopQueries() error = %v", err)
	}
	if len(top) != 1 || top[0].Query != "one" || top[0].Count != 1 {
		t.Errorf("top queries = %v, want [{one 1}]", top)
	}
}

func TestSearch_LimitCapped(t *testing.T) {
	repo, store := rankedFixture(t)
	h := NewSearchHandlers(repo, store, analytics.NewInMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/search?q=o&limit=9999", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count > maxSearchLimit {
		t.Errorf("count = %d exceeds the hard cap %d", resp.Count, maxSearchLimit)
	}
}
