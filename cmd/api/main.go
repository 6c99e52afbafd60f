// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/analytics"
	"github.com/moltworks/agentrank/internal/api"
	"github.com/moltworks/agentrank/internal/auth"
	"github.com/moltworks/agentrank/internal/category"
	"github.com/moltworks/agentrank/internal/config"
	"github.com/moltworks/agentrank/internal/db"
	"github.com/moltworks/agentrank/internal/featured"
	"github.com/moltworks/agentrank/internal/health"
	"github.com/moltworks/agentrank/internal/jobs"
	"github.com/moltworks/agentrank/internal/middleware"
	"github.com/moltworks/agentrank/internal/rank"
	"github.com/moltworks/agentrank/internal/scoring"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if *help {
		fmt.Println("AgentRank API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	// Redis is optional; rate limiting falls back to an in-memory store.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	rankMetrics := rank.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}
	if err := rankMetrics.Register(registry); err != nil {
		logger.Error("failed to register ranking metrics", "error", err)
		os.Exit(1)
	}
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	agentRepo := agent.NewPostgresRepository(conn, logger)
	categoryRepo := category.NewPostgresRepository(conn)
	listingRepo := featured.NewPostgresRepository(conn, logger)
	analyticsRepo := analytics.NewPostgresRepository(conn)
	store := rank.NewPostgresStore(conn, logger)

	subWeights, err := scoring.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		// LoadCalibration already fell back to defaults; keep serving.
		logger.Warn("scoring calibration unavailable, using defaults", "error", err)
	}

	aggregator := rank.NewAggregator(rank.AggregatorConfig{
		Lookback:   time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		Workers:    cfg.PassWorkers,
		Logger:     logger,
		Metrics:    rankMetrics,
		JobMetrics: jobMetrics,
		SubWeights: subWeights,
	}, rank.NewRepositorySource(agentRepo), store)

	jwtService := auth.NewJWTService(cfg.JWTSecret)

	var stripeClient featured.Client
	if cfg.StripeAPIKey != "" && cfg.StripeWebhookSecret != "" {
		stripeClient = featured.NewStripeClient(cfg.StripeAPIKey, cfg.StripeWebhookSecret)
	} else {
		logger.Warn("stripe not configured, featured checkout disabled")
	}

	var rateLimitStore middleware.RateLimitStore
	if redisClient != nil {
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient, logger, httpMetrics)
	} else {
		rateLimitStore = middleware.NewInMemoryRateLimitStore()
	}

	healthConfig := api.HealthHandlersConfig{DBChecker: health.NewDBChecker(conn)}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}

	handler := api.NewRouter(api.RouterConfig{
		Rankings:       api.NewRankingHandlers(store, listingRepo, analyticsRepo),
		Search:         api.NewSearchHandlers(agentRepo, store, analyticsRepo),
		Categories:     api.NewCategoryHandlers(categoryRepo, store),
		Stats:          api.NewStatsHandlers(agentRepo, categoryRepo, store, analyticsRepo),
		Admin:          api.NewAdminHandlers(jwtService, aggregator),
		Featured:       api.NewFeaturedHandlers(agentRepo, listingRepo, stripeClient),
		Health:         api.NewHealthHandlers(healthConfig),
		Logger:         logger,
		Metrics:        httpMetrics,
		Registry:       registry,
		RateLimitStore: rateLimitStore,
		AllowedOrigins: allowedOrigins(),
	})

	passJob := rank.NewJob(rank.JobConfig{
		Interval: cfg.PassInterval,
		Logger:   logger,
	}, aggregator)
	if err := passJob.Start(ctx); err != nil {
		logger.Error("failed to start recompute job", "error", err)
		os.Exit(1)
	}
	defer passJob.Stop()

	sweepJob := featured.NewSweepJob(featured.SweepJobConfig{
		Logger:     logger,
		JobMetrics: jobMetrics,
	}, listingRepo)
	if err := sweepJob.Start(ctx); err != nil {
		logger.Error("failed to start listing sweep job", "error", err)
		os.Exit(1)
	}
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// allowedOrigins reads the comma-separated CORS allowlist from the
// environment. An empty list disables CORS handling entirely.
func allowedOrigins() []string {
	raw := os.Getenv("ALLOWED_ORIGINS")
	if raw == "" {
		return nil
	}

	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
