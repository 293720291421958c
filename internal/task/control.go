package task

import (
	"context"
	"fmt"
)

// Control is the thin administrative surface layered on the scheduler and
// the status store: enumerate live tasks for display, adjust the global
// speed limit, and pause, resume, or re-prioritize individual tasks.
type Control struct {
	scheduler *Scheduler
	store     StatusStore
}

// NewControl creates a Control over the given scheduler and store.
func NewControl(scheduler *Scheduler, store StatusStore) *Control {
	return &Control{
		scheduler: scheduler,
		store:     store,
	}
}

// Active returns snapshots of the tasks currently running.
func (c *Control) Active() []DownloadTask {
	return c.scheduler.ListActive()
}

// Pending returns snapshots of the tasks waiting for dispatch.
func (c *Control) Pending() []DownloadTask {
	return c.scheduler.ListPending()
}

// Pause marks a task ineligible for dispatch. Idempotent.
func (c *Control) Pause(id string) bool {
	return c.scheduler.Pause(id)
}

// Resume makes a paused task eligible for dispatch again. Idempotent.
func (c *Control) Resume(id string) bool {
	return c.scheduler.Resume(id)
}

// SetPriority overwrites a task's priority.
func (c *Control) SetPriority(id string, priority int) bool {
	return c.scheduler.SetPriority(id, priority)
}

// SetGlobalSpeedLimit updates the shared data-rate cap, nil to remove it.
func (c *Control) SetGlobalSpeedLimit(limit *float64) {
	c.scheduler.SetGlobalSpeedLimit(limit)
}

// OwnerStatus returns the owner's stored history overlaid with the live
// state of any task still in memory. Live state wins for a given id because
// the stored record may lag it between writes.
func (c *Control) OwnerStatus(ctx context.Context, owner string) ([]StatusRecord, error) {
	stored, err := c.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load status ledger: %w", err)
	}

	records := append([]StatusRecord(nil), stored[owner]...)
	index := make(map[string]int, len(records))
	for i, rec := range records {
		index[rec.ID] = i
	}

	for _, t := range c.scheduler.ListAll() {
		if t.Owner != owner {
			continue
		}
		rec := recordFromTask(t)
		if i, ok := index[t.ID]; ok {
			records[i] = rec
		} else {
			records = append(records, rec)
		}
	}

	return records, nil
}

// recordFromTask projects a task snapshot onto the persisted record shape.
func recordFromTask(t DownloadTask) StatusRecord {
	return StatusRecord{
		ID:          t.ID,
		URL:         t.URL,
		Owner:       t.Owner,
		Priority:    t.Priority,
		Paused:      t.Paused,
		SpeedLimit:  t.SpeedLimit,
		Title:       t.Title,
		Status:      t.Status,
		Error:       t.Error,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}
