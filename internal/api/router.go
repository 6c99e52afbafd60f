package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moltworks/agentrank/internal/middleware"
)

// RouterConfig wires the handler groups and cross-cutting middleware into
// one http.Handler.
type RouterConfig struct {
	Rankings   *RankingHandlers
	Search     *SearchHandlers
	Categories *CategoryHandlers
	Stats      *StatsHandlers
	Admin      *AdminHandlers
	Featured   *FeaturedHandlers
	Health     *HealthHandlers

	Logger         *slog.Logger
	Metrics        *middleware.Metrics
	Registry       *prometheus.Registry
	RateLimitStore middleware.RateLimitStore
	AllowedOrigins []string
}

// NewRouter assembles the full API surface with the standard middleware
// chain: RequestID -> Logging -> CORS -> HTTPMetrics -> rate limiting ->
// handler.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	searchLimit := middleware.RateLimiter(cfg.RateLimitStore, middleware.DefaultSearchLimit(), middleware.IPKeyFunc())
	adminLimit := middleware.RateLimiter(cfg.RateLimitStore, middleware.DefaultAdminLimit(), middleware.SubjectKeyFunc())

	mux.HandleFunc("/agents/top", get(cfg.Rankings.TopAgents))
	mux.HandleFunc("/agents/featured", get(cfg.Rankings.FeaturedAgents))
	mux.HandleFunc("/agents/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/referral") {
			post(cfg.Rankings.RecordReferral)(w, r)
			return
		}
		get(cfg.Rankings.AgentDetail)(w, r)
	})
	mux.HandleFunc("/trending", get(cfg.Rankings.Trending))
	mux.HandleFunc("/export/agents.json", get(cfg.Rankings.Export))
	mux.Handle("/search", searchLimit(http.HandlerFunc(get(cfg.Search.Search))))
	mux.HandleFunc("/categories", get(cfg.Categories.ListCategories))
	mux.HandleFunc("/categories/", get(cfg.Categories.CategoryAgents))
	mux.HandleFunc("/stats", get(cfg.Stats.Stats))

	mux.HandleFunc("/featured/checkout", post(cfg.Featured.Checkout))
	mux.HandleFunc("/internal/stripe", post(cfg.Featured.StripeWebhook))

	mux.Handle("/admin/recompute", adminLimit(http.HandlerFunc(
		cfg.Admin.RequireAdmin(cfg.Admin.Recompute))))

	mux.HandleFunc("/health", cfg.Health.Health)
	mux.HandleFunc("/ready", cfg.Health.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		writeJSON(w, r.Context(), http.StatusOK, map[string]string{
			"service": "agentrank-api",
			"version": "0.1.0",
		})
	})

	globalLimit := middleware.RateLimiter(cfg.RateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc())
	cors := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		MaxAge:         600,
	})

	var handler http.Handler = mux
	handler = globalLimit(handler)
	handler = middleware.HTTPMetrics(cfg.Metrics)(handler)
	handler = cors(handler)
	handler = middleware.Logging(cfg.Logger)(handler)
	handler = middleware.RequestID(handler)
	return handler
}

// get restricts a handler to the GET method.
func get(next http.HandlerFunc) http.HandlerFunc {
	return allowMethod(http.MethodGet, next)
}

// post restricts a handler to the POST method.
func post(next http.HandlerFunc) http.HandlerFunc {
	return allowMethod(http.MethodPost, next)
}

// allowMethod rejects requests with the wrong HTTP method.
func allowMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		next(w, r)
	}
}
