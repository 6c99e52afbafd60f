// Package main is the standalone ranking pass runner. It shares the scoring
// pipeline with the API server but runs without the HTTP surface, either as
// a one-shot recompute (-once) or on a fixed interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/config"
	"github.com/moltworks/agentrank/internal/db"
	"github.com/moltworks/agentrank/internal/middleware"
	"github.com/moltworks/agentrank/internal/rank"
	"github.com/moltworks/agentrank/internal/scoring"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to YAML config file (optional)")
	once := flag.Bool("once", false, "run a single pass and exit")
	interval := flag.Duration("interval", 0, "override the pass interval (e.g. 30m)")
	flag.Parse()

	if *help {
		fmt.Println("AgentRank Pass Runner")
		fmt.Println()
		fmt.Println("Usage: ranker [options]")
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
	if *interval > 0 {
		cfg.PassInterval = *interval
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

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

	subWeights, err := scoring.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("scoring calibration unavailable, using defaults", "error", err)
	}

	agentRepo := agent.NewPostgresRepository(conn, logger)
	aggregator := rank.NewAggregator(rank.AggregatorConfig{
		Lookback:   time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		Workers:    cfg.PassWorkers,
		Logger:     logger,
		SubWeights: subWeights,
	}, rank.NewRepositorySource(agentRepo), rank.NewPostgresStore(conn, logger))

	if *once {
		result, err := aggregator.RunPass(ctx)
		if err != nil {
			logger.Error("pass failed", "error", err)
			os.Exit(1)
		}
		logger.Info("pass committed",
			"pass_id", result.Pass.ID,
			"ranked", result.Ranked,
			"carried_forward", result.Carried,
			"skipped", result.Skipped)
		return
	}

	job := rank.NewJob(rank.JobConfig{
		Interval: cfg.PassInterval,
		Logger:   logger,
	}, aggregator)
	if err := job.Start(ctx); err != nil {
		logger.Error("failed to start recompute job", "error", err)
		os.Exit(1)
	}

	logger.Info("ranker started", "interval", cfg.PassInterval.String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down ranker...")
	job.Stop()
	logger.Info("ranker stopped")
}
