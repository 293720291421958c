package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Worker    WorkerConfig    `mapstructure:"worker"    validate:"required"`
	Store     StoreConfig     `mapstructure:"store"     validate:"required"`
	Retention RetentionConfig `mapstructure:"retention" validate:"required"`
	Log       LogConfig       `mapstructure:"log"       validate:"required"`
}

// SchedulerConfig contains the dispatch loop settings.
type SchedulerConfig struct {
	// MaxConcurrent bounds the number of tasks allowed in the active set.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"required,gt=0"`

	// PauseRetryDelay is how long the dispatcher waits after putting a
	// paused task back at the head of the pending queue.
	PauseRetryDelay time.Duration `mapstructure:"pause_retry_delay" validate:"required"`

	// PollInterval bounds how long the dispatcher sleeps between
	// re-evaluations when no wake signal arrives.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`
}

// WorkerConfig contains per-task execution settings.
type WorkerConfig struct {
	// DownloadDir is the root directory for fetched media; each owner gets
	// a subdirectory beneath it.
	DownloadDir string `mapstructure:"download_dir" validate:"required"`

	// FetchTimeout caps the wall-clock time a single task may spend in a
	// worker, covering the probe and every fetch attempt.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"required"`

	// DefaultFormat is the output format used when a submission does not
	// name one.
	DefaultFormat string `mapstructure:"default_format" validate:"required,oneof=flac wav mp3"`
}

// StoreConfig contains the status ledger settings.
type StoreConfig struct {
	// Path is the location of the JSON status document.
	Path string `mapstructure:"path" validate:"required"`
}

// RetentionConfig contains the sweep settings for old completed records.
type RetentionConfig struct {
	// Days is the retention window for completed records.
	Days int `mapstructure:"days" validate:"required,gt=0"`

	// Schedule is a cron expression (or descriptor such as "@daily")
	// controlling when sweeps run.
	Schedule string `mapstructure:"schedule" validate:"required"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}
