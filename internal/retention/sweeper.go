// Package retention prunes old completed records from the status ledger on a
// fixed schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pullq/pullq/internal/task"
)

// Config holds the dependencies and settings for the sweeper.
type Config struct {
	Store  task.StatusStore
	Logger *slog.Logger

	// Window is how long completed records are kept; defaults to 7 days
	// if zero.
	Window time.Duration

	// Schedule is a cron expression or descriptor (e.g. "@daily", the
	// default) controlling when sweeps run.
	Schedule string
}

// Sweeper periodically drops completed records older than the retention
// window. Records that are not completed, or have no completion timestamp,
// are always kept.
type Sweeper struct {
	store    task.StatusStore
	logger   *slog.Logger
	window   time.Duration
	schedule string

	cron *cron.Cron
}

// NewSweeper creates a new Sweeper with the given config.
func NewSweeper(cfg Config) *Sweeper {
	window := cfg.Window
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@daily"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    cfg.Store,
		logger:   logger,
		window:   window,
		schedule: schedule,
	}
}

// Start schedules sweeps in a background goroutine until Stop is called.
// A sweep failure is logged and the next scheduled run simply retries.
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if err := s.RunOnce(context.Background(), time.Now().UTC()); err != nil {
			s.logger.Error("retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("retention sweeper started",
		"schedule", s.schedule,
		"window", s.window)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("retention sweeper stopped")
}

// RunOnce performs a single sweep relative to now, dropping every completed
// record whose completion timestamp falls outside the retention window. The
// store serializes the prune against concurrent status updates, so a record
// written mid-sweep is never lost.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.window)

	pruned, err := s.store.Prune(ctx, func(rec task.StatusRecord) bool {
		return s.expired(rec, cutoff)
	})
	if err != nil {
		return fmt.Errorf("failed to prune status ledger: %w", err)
	}

	if pruned > 0 {
		s.logger.Info("retention sweep pruned records", "count", pruned)
	}
	return nil
}

// expired reports whether a record falls outside the retention window.
func (s *Sweeper) expired(rec task.StatusRecord, cutoff time.Time) bool {
	return rec.Status == task.TaskStatusCompleted &&
		rec.CompletedAt != nil &&
		rec.CompletedAt.Before(cutoff)
}
