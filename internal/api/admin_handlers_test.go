package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/auth"
	"github.com/moltworks/agentrank/internal/middleware"
	"github.com/moltworks/agentrank/internal/rank"
)

const testJWTSecret = "admin-test-secret"

func testAggregator(t *testing.T) *rank.Aggregator {
	t.Helper()
	repo, _ := rankedFixture(t)
	store := rank.NewInMemoryStore(repo)
	return rank.NewAggregator(rank.AggregatorConfig{
		Workers: 2,
		Logger:  slog.New(slog.DiscardHandler),
	}, rank.NewRepositorySource(repo), store)
}

func adminHandlers(t *testing.T) *AdminHandlers {
	t.Helper()
	return NewAdminHandlers(auth.NewJWTService(testJWTSecret), testAggregator(t))
}

func TestRequireAdmin(t *testing.T) {
	h := adminHandlers(t)
	protected := h.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		subject := middleware.GetAdminSubject(r.Context())
		w.Header().Set("X-Subject", subject)
		w.WriteHeader(http.StatusOK)
	})

	adminToken, err := auth.NewJWTService(testJWTSecret).GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("GenerateAdminToken() error = %v", err)
	}

	// A well-formed token signed with the right secret but without the
	// admin claim.
	nonAdmin := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "viewer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	nonAdminToken, err := nonAdmin.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign non-admin token: %v", err)
	}

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantCode   string
	}{
		{"no header", "", http.StatusUnauthorized, ErrCodeAuthFailed},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ErrCodeAuthFailed},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized, ErrCodeAuthFailed},
		{"non-admin token", "Bearer " + nonAdminToken, http.StatusForbidden, ErrCodeForbidden},
		{"admin token", "Bearer " + adminToken, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/recompute", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			protected(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if code := decodeErrorCode(t, rec.Body.Bytes()); code != tt.wantCode {
					t.Errorf("error code = %s, want %s", code, tt.wantCode)
				}
			} else if got := rec.Header().Get("X-Subject"); got != "ops" {
				t.Errorf("admin subject = %q, want ops", got)
			}
		})
	}
}

func TestRecompute(t *testing.T) {
	h := adminHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/recompute", nil)
	rec := httptest.NewRecorder()
	h.Recompute(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Pass   rank.Pass `json:"pass"`
		Ranked int       `json:"ranked"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Ranked != 3 {
		t.Errorf("ranked = %d, want 3", resp.Ranked)
	}
	if resp.Pass.ID == "" {
		t.Error("committed pass has no ID")
	}
}

func TestRecompute_MethodNotAllowed(t *testing.T) {
	h := adminHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/recompute", nil)
	rec := httptest.NewRecorder()
	h.Recompute(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// gatedSource blocks ListAgents until released, so a pass can be held
// in flight from the test.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
}

func (s *gatedSource) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	close(s.started)
	<-s.release
	return nil, nil
}

func (s *gatedSource) AgentPosts(ctx context.Context, agentID string, since time.Time) ([]agent.Post, error) {
	return nil, nil
}

func TestRecompute_PassInProgress(t *testing.T) {
	source := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	aggregator := rank.NewAggregator(rank.AggregatorConfig{
		Workers: 1,
		Logger:  slog.New(slog.DiscardHandler),
	}, source, rank.NewInMemoryStore(agent.NewInMemoryRepository()))
	h := NewAdminHandlers(auth.NewJWTService(testJWTSecret), aggregator)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = aggregator.RunPass(context.Background())
	}()
	<-source.started

	req := httptest.NewRequest(http.MethodPost, "/admin/recompute", nil)
	rec := httptest.NewRecorder()
	h.Recompute(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != ErrCodePassInProgress {
		t.Errorf("error code = %s, want %s", code, ErrCodePassInProgress)
	}

	close(source.release)
	<-done
}
