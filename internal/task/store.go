package task

import (
	"context"
	"time"
)

// StatusRecord is the durable projection of a task, keyed by owner in the
// persisted document. It outlives the in-memory task until pruned by the
// retention sweeper.
type StatusRecord struct {
	ID          string     `json:"id"`
	URL         string     `json:"url,omitempty"`
	Owner       string     `json:"owner"`
	Priority    int        `json:"priority"`
	Paused      bool       `json:"paused"`
	SpeedLimit  *float64   `json:"speed_limit,omitempty"`
	Title       string     `json:"title,omitempty"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RecordUpdate is a partial update merged into a stored record. Nil fields
// are left untouched.
type RecordUpdate struct {
	Status      *TaskStatus
	URL         *string
	Title       *string
	Error       *string
	Priority    *int
	Paused      *bool
	SpeedLimit  *float64
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// StatusStore defines the interface for the durable status ledger. It is
// independent of scheduler state so status survives a process restart.
type StatusStore interface {
	// Load returns the full owner-to-records mapping. Absent or corrupt
	// backing storage yields an empty mapping, not an error.
	Load(ctx context.Context) (map[string][]StatusRecord, error)

	// Save rewrites the full mapping.
	Save(ctx context.Context, records map[string][]StatusRecord) error

	// Update merges fields into the record with the given id under owner,
	// serialized against concurrent updates. If no record exists and the
	// update carries a title, a new record is synthesized with status
	// in_progress (reconciliation for tasks created after a restart).
	Update(ctx context.Context, owner, id string, fields RecordUpdate) error

	// Prune removes every record for which expired reports true and returns
	// how many were removed. The whole read-filter-write cycle is serialized
	// against concurrent updates so none of them can be lost to a stale
	// snapshot.
	Prune(ctx context.Context, expired func(rec StatusRecord) bool) (int, error)
}
