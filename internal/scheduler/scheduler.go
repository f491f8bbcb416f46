// Package scheduler drives RunDueRules on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"beanmind/internal/dates"
	"beanmind/internal/logger"
	"beanmind/internal/services"
)

// Runner executes every rule due on a date.
type Runner interface {
	RunDueRules(ctx context.Context, today time.Time) (*services.RunReport, error)
}

// Config controls the daemon loop.
type Config struct {
	Interval time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Status describes the daemon's most recent run.
type Status struct {
	StartedAt time.Time
	LastRunAt time.Time
	RunCount  int64
	LastDate  time.Time
	LastError string
}

// Daemon calls RunDueRules once at start and again on every tick.
// Repeated runs for the same date are harmless because executions are
// deduplicated per rule and date.
type Daemon struct {
	runner Runner
	cfg    Config
	log    *zap.SugaredLogger

	mu     sync.RWMutex
	status Status
}

// New returns a daemon with defaults applied to cfg.
func New(runner Runner, cfg Config) *Daemon {
	if cfg.Interval < time.Second {
		cfg.Interval = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Daemon{
		runner: runner,
		cfg:    cfg,
		log:    logger.Named("scheduler"),
	}
}

// Run blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	d.status.StartedAt = d.cfg.Now()
	d.mu.Unlock()

	d.log.Infow("scheduler started", "interval", d.cfg.Interval.String(), "location", d.cfg.Location.String())

	d.RunOnce(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			st := d.Status()
			d.log.Infow("scheduler stopped", "runs", st.RunCount, "last_error", st.LastError)
			return nil
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce runs the rules due today in the configured location.
func (d *Daemon) RunOnce(ctx context.Context) *services.RunReport {
	today := dates.Normalize(d.cfg.Now().In(d.cfg.Location))
	report, err := d.runner.RunDueRules(ctx, today)

	d.mu.Lock()
	d.status.LastRunAt = d.cfg.Now()
	d.status.LastDate = today
	d.status.RunCount++
	if err != nil {
		d.status.LastError = err.Error()
	} else {
		d.status.LastError = ""
	}
	d.mu.Unlock()

	if err != nil {
		d.log.Errorw("scheduled run failed", "date", dates.Format(today), "error", err)
		return nil
	}
	return report
}

// Status returns a copy of the daemon's run state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}
