package rank

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultPassInterval is the default interval between recompute passes.
const DefaultPassInterval = 15 * time.Minute

// JobConfig configures the periodic recompute job.
type JobConfig struct {
	// Interval is the duration between passes.
	Interval time.Duration
	// Logger for job activity.
	Logger *slog.Logger
}

// Job runs recompute passes on a fixed interval.
type Job struct {
	config     JobConfig
	aggregator *Aggregator

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewJob creates a periodic recompute job around the aggregator.
func NewJob(config JobConfig, aggregator *Aggregator) *Job {
	if config.Interval <= 0 {
		config.Interval = DefaultPassInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Job{
		config:     config,
		aggregator: aggregator,
	}
}

// Start begins the periodic recompute job.
// Returns immediately; the job runs in a background goroutine.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the recompute job to stop and waits for it to finish.
func (j *Job) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// run is the main loop for the recompute job.
func (j *Job) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("recompute job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("recompute job stopping due to stop signal")
			return
		case <-ticker.C:
			if _, err := j.aggregator.RunPass(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
				j.config.Logger.Error("scheduled ranking pass failed", "error", err)
			}
		}
	}
}
