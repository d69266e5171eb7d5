// Package batch runs the periodic recomputation jobs on cron schedules.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/hrygo/recall/server/retention"
	"github.com/hrygo/recall/server/stats"
)

// StatsJob recomputes every user's statistics.
type StatsJob interface {
	RecomputeAll(ctx context.Context) (*stats.GlobalCounters, error)
}

// RetentionJob evaluates retention health and writes target adjustments.
type RetentionJob interface {
	Apply(ctx context.Context, windowDays int) (*retention.Result, error)
}

// Config holds the job schedules.
type Config struct {
	// StatsCron and RetentionCron are standard five-field specs or descriptors
	// such as "@every 15m". An empty spec disables the job.
	StatsCron           string
	RetentionCron       string
	RetentionWindowDays int
	// JobTimeout bounds a single run. Zero means no bound.
	JobTimeout time.Duration
}

// Runner schedules the batch jobs.
type Runner struct {
	stats     StatsJob
	retention RetentionJob
	config    Config

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner creates a batch runner. Either job may be nil.
func NewRunner(statsJob StatsJob, retentionJob RetentionJob, cfg Config) *Runner {
	if cfg.RetentionWindowDays <= 0 {
		cfg.RetentionWindowDays = 30
	}
	return &Runner{stats: statsJob, retention: retentionJob, config: cfg}
}

// Start registers the jobs and starts the scheduler. Jobs observe ctx, and the
// scheduler stops when it is done.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("batch runner already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if r.stats != nil && r.config.StatsCron != "" {
		if _, err := c.AddFunc(r.config.StatsCron, func() { r.RunStats(r.jobContext()) }); err != nil {
			return errors.Wrapf(err, "invalid stats schedule %q", r.config.StatsCron)
		}
	}
	if r.retention != nil && r.config.RetentionCron != "" {
		if _, err := c.AddFunc(r.config.RetentionCron, func() { r.RunRetention(r.jobContext()) }); err != nil {
			return errors.Wrapf(err, "invalid retention schedule %q", r.config.RetentionCron)
		}
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.cron = c
	c.Start()
	slog.Info("batch runner started", "jobs", len(c.Entries()))

	go func(done <-chan struct{}) {
		<-done
		r.Stop()
	}(r.ctx.Done())
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		slog.Warn("batch runner stop timed out waiting for running jobs")
	}
	slog.Info("batch runner stopped")
}

// Entries returns the number of scheduled jobs.
func (r *Runner) Entries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return 0
	}
	return len(r.cron.Entries())
}

func (r *Runner) jobContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.JobTimeout > 0 {
		return context.WithTimeout(ctx, r.config.JobTimeout)
	}
	return context.WithCancel(ctx)
}

// RunStats runs the statistics job once.
func (r *Runner) RunStats(ctx context.Context) {
	if r.stats == nil {
		return
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	counters, err := r.stats.RecomputeAll(ctx)
	if err != nil {
		slog.Error("statistics job failed", "error", err, "duration_ms", time.Since(started).Milliseconds())
		return
	}
	slog.Info("statistics job finished",
		"users", counters.Users,
		"items", counters.Total,
		"due_now", counters.DueNow,
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// RunRetention runs the retention optimization job once.
func (r *Runner) RunRetention(ctx context.Context) {
	if r.retention == nil {
		return
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	result, err := r.retention.Apply(ctx, r.config.RetentionWindowDays)
	if err != nil {
		slog.Error("retention job failed", "error", err, "duration_ms", time.Since(started).Milliseconds())
		return
	}
	slog.Info("retention job finished",
		"evaluated", result.Evaluated,
		"adjusted", len(result.Recommendations),
		"duration_ms", time.Since(started).Milliseconds(),
	)
}
