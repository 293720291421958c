// Package main implements the entry point for the pullq daemon, which
// schedules authenticated users' media-download requests, drives them
// through the external fetch tool, and keeps a durable status ledger.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pullq/pullq/internal/config"
	"github.com/pullq/pullq/internal/platform/logger"
	"github.com/pullq/pullq/internal/platform/statusfile"
	"github.com/pullq/pullq/internal/platform/ytdlp"
	"github.com/pullq/pullq/internal/retention"
	"github.com/pullq/pullq/internal/task"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("pullqd: %v", err)
	}
}

// run initializes every component, starts the background loops, and blocks
// until a shutdown signal arrives.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("configuration loaded",
		"max_concurrent", cfg.Scheduler.MaxConcurrent,
		"download_dir", cfg.Worker.DownloadDir,
		"store_path", cfg.Store.Path,
		"log_level", cfg.Log.Level)

	store := statusfile.New(cfg.Store.Path, appLogger)
	fetchClient := ytdlp.NewClient(ytdlp.DefaultBinary, appLogger)

	scheduler := task.NewScheduler(store, fetchClient, fetchClient, task.SchedulerConfig{
		MaxConcurrent:   cfg.Scheduler.MaxConcurrent,
		PauseRetryDelay: cfg.Scheduler.PauseRetryDelay,
		PollInterval:    cfg.Scheduler.PollInterval,
		FetchTimeout:    cfg.Worker.FetchTimeout,
		DownloadDir:     cfg.Worker.DownloadDir,
		DefaultFormat:   task.Format(cfg.Worker.DefaultFormat),
	}, appLogger)

	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	sweeper := retention.NewSweeper(retention.Config{
		Store:    store,
		Logger:   appLogger,
		Window:   time24h(cfg.Retention.Days),
		Schedule: cfg.Retention.Schedule,
	})
	if err := sweeper.Start(); err != nil {
		scheduler.Stop()
		return fmt.Errorf("failed to start retention sweeper: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	appLogger.Info("shutdown signal received", "signal", sig.String())

	// New admissions stop first; in-flight workers drain before exit.
	sweeper.Stop()
	scheduler.Stop()

	slog.Info("pullqd stopped")
	return nil
}

// time24h converts a day count into a duration.
func time24h(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
