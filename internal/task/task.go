package task

import (
	"errors"
	"fmt"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

// Possible task status values. Transitions are monotonic:
// queued -> in_progress -> {completed, failed}.
const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Common submission errors.
var (
	// ErrInvalidSubmission is returned when a submission fails validation.
	// This is the only failure surfaced synchronously to callers; everything
	// else is recorded on the task and observed through the query API.
	ErrInvalidSubmission = errors.New("invalid submission")

	// ErrEmptyURL is returned when a submission carries no URL.
	ErrEmptyURL = fmt.Errorf("%w: url cannot be empty", ErrInvalidSubmission)

	// ErrEmptyOwner is returned when a submission carries no owner.
	ErrEmptyOwner = fmt.Errorf("%w: owner cannot be empty", ErrInvalidSubmission)
)

// DownloadTask is a single requested download: immutable identity plus the
// mutable run-state the scheduler and worker maintain.
type DownloadTask struct {
	// ID is assigned at submission and never reused.
	ID string

	// URL and Owner are immutable after creation.
	URL   string
	Owner string

	// Priority orders dispatch; higher values are served sooner.
	Priority int

	// Paused makes the task ineligible for dispatch while it is pending.
	// A task already admitted to a worker runs to completion.
	Paused bool

	// SpeedLimit is an optional per-task data-rate cap in MiB/s.
	SpeedLimit *float64

	// Format is the owner's preferred output format, the starting point of
	// the fallback rotation.
	Format Format

	Title  string
	Status TaskStatus

	// Error carries the last diagnostic, set only on failure.
	Error string

	StartedAt   *time.Time
	CompletedAt *time.Time

	// seq is the submission sequence number assigned by the pending queue,
	// kept here so priority changes can re-enter the queue without losing
	// the task's place among equal priorities.
	seq uint64
}

// snapshot returns a deep copy safe to hand to observers.
func (t *DownloadTask) snapshot() DownloadTask {
	c := *t
	c.SpeedLimit = cloneFloat(t.SpeedLimit)
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
