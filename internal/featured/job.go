package featured

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is the default interval between expiry sweeps.
const DefaultSweepInterval = 10 * time.Minute

// JobMetrics provides centralized background job metrics tracking.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// SweepJobConfig configures the listing expiry sweep job.
type SweepJobConfig struct {
	// Interval is the duration between sweeps.
	Interval time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// JobMetrics for centralized background job tracking.
	JobMetrics JobMetrics
}

// SweepJob periodically flips lapsed active listings to expired. The flip
// is bookkeeping only; reads already exclude lapsed windows by date.
type SweepJob struct {
	config SweepJobConfig
	repo   Repository

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweepJob creates a listing expiry sweep job.
func NewSweepJob(config SweepJobConfig, repo Repository) *SweepJob {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &SweepJob{
		config: config,
		repo:   repo,
	}
}

// Start begins the periodic sweep.
// Returns immediately; the job runs in a background goroutine.
func (j *SweepJob) Start(ctx context.Context) error {
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

// Stop signals the sweep job to stop and waits for it to finish.
func (j *SweepJob) Stop() {
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

// run is the main loop for the sweep job.
func (j *SweepJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("listing sweep job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("listing sweep job stopping due to stop signal")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep runs one expiry pass.
func (j *SweepJob) sweep(ctx context.Context) {
	start := time.Now()
	count, err := j.repo.DeactivateExpired(ctx, time.Now())
	duration := time.Since(start).Seconds()

	if err != nil {
		j.config.Logger.Error("listing sweep failed", "error", err)
		if j.config.JobMetrics != nil {
			j.config.JobMetrics.IncJobsTotal("listing_sweep", "failure")
			j.config.JobMetrics.IncJobErrors("listing_sweep", "sweep_error")
			j.config.JobMetrics.ObserveJobDuration("listing_sweep", duration)
		}
		return
	}

	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal("listing_sweep", "success")
		j.config.JobMetrics.ObserveJobDuration("listing_sweep", duration)
	}
	if count > 0 {
		j.config.Logger.Info("listing sweep completed",
			"expired", count,
			"duration_seconds", duration)
	}
}
