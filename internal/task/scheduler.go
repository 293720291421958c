package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	// MaxConcurrent bounds the size of the active set.
	MaxConcurrent int

	// PauseRetryDelay is how long the dispatcher waits after re-inserting a
	// paused task found at the head of the pending queue.
	PauseRetryDelay time.Duration

	// PollInterval bounds the dispatcher's sleep between evaluations when
	// no wake signal arrives.
	PollInterval time.Duration

	// FetchTimeout caps the wall-clock time one worker may spend on a task,
	// covering the title probe and every fetch attempt.
	FetchTimeout time.Duration

	// DownloadDir is the root destination directory; each owner gets a
	// subdirectory beneath it.
	DownloadDir string

	// DefaultFormat is used when a submission does not name a format.
	DefaultFormat Format
}

// DefaultSchedulerConfig returns a SchedulerConfig with reasonable defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrent:   2,
		PauseRetryDelay: 500 * time.Millisecond,
		PollInterval:    250 * time.Millisecond,
		FetchTimeout:    30 * time.Minute,
		DownloadDir:     "downloads",
		DefaultFormat:   FormatFLAC,
	}
}

// SubmitRequest describes a new download submission.
type SubmitRequest struct {
	URL      string
	Owner    string
	Priority int

	// Format is the preferred output format; empty means the scheduler's
	// default.
	Format Format

	// SpeedLimit is an optional per-task data-rate cap in MiB/s.
	SpeedLimit *float64
}

// Scheduler owns the pending queue and the active set, admits pending tasks
// into workers under the concurrency bound, and writes task state through to
// the status store.
type Scheduler struct {
	store   StatusStore
	fetcher Fetcher
	prober  TitleProber
	config  SchedulerConfig
	logger  *slog.Logger

	mu sync.Mutex
	// tasks is the single authoritative index of non-terminal tasks by id.
	// The pending queue and active set reference tasks only through it.
	tasks       map[string]*DownloadTask
	pending     *pendingQueue
	active      map[string]*DownloadTask
	globalLimit *float64

	// wake nudges the dispatch loop when a submission, a resume, a priority
	// change, or a freed slot may make dispatch possible.
	wake chan struct{}

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup // dispatch loop
	workerWG   sync.WaitGroup // in-flight workers
}

// NewScheduler creates a new Scheduler.
func NewScheduler(
	store StatusStore,
	fetcher Fetcher,
	prober TitleProber,
	config SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	// Apply defaults for invalid config values
	def := DefaultSchedulerConfig()
	if config.MaxConcurrent <= 0 {
		logger.Warn("invalid max concurrent specified, using default",
			"specified", config.MaxConcurrent,
			"default", def.MaxConcurrent)
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.PauseRetryDelay <= 0 {
		config.PauseRetryDelay = def.PauseRetryDelay
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = def.FetchTimeout
	}
	if config.DefaultFormat == "" {
		config.DefaultFormat = def.DefaultFormat
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:      store,
		fetcher:    fetcher,
		prober:     prober,
		config:     config,
		logger:     logger,
		tasks:      make(map[string]*DownloadTask),
		pending:    newPendingQueue(),
		active:     make(map[string]*DownloadTask),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Submit validates a submission, assigns it an id, and places it in the
// pending queue. It never blocks; the only synchronous failure is malformed
// input.
func (s *Scheduler) Submit(req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.URL) == "" {
		return "", ErrEmptyURL
	}
	if strings.TrimSpace(req.Owner) == "" {
		return "", ErrEmptyOwner
	}

	format := req.Format
	if format == "" {
		format = s.config.DefaultFormat
	}

	t := &DownloadTask{
		ID:         uuid.NewString(),
		URL:        req.URL,
		Owner:      req.Owner,
		Priority:   req.Priority,
		SpeedLimit: cloneFloat(req.SpeedLimit),
		Format:     format,
		Status:     TaskStatusQueued,
	}

	s.enqueue(t)

	s.logger.Debug("task submitted",
		"task_id", t.ID,
		"owner", t.Owner,
		"priority", t.Priority)

	return t.ID, nil
}

// enqueue registers a task in the index and the pending queue and wakes the
// dispatcher.
func (s *Scheduler) enqueue(t *DownloadTask) {
	s.mu.Lock()
	s.tasks[t.ID] = t
	t.seq = s.pending.push(t.ID, t.Priority)
	s.mu.Unlock()

	s.notify()
}

// ListAll returns a snapshot of every non-terminal task, pending and active,
// in unspecified order.
func (s *Scheduler) ListAll() []DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DownloadTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// ListActive returns a snapshot of the tasks currently assigned to workers.
func (s *Scheduler) ListActive() []DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DownloadTask, 0, len(s.active))
	for _, t := range s.active {
		out = append(out, t.snapshot())
	}
	return out
}

// ListPending returns a snapshot of the tasks waiting for dispatch.
func (s *Scheduler) ListPending() []DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DownloadTask, 0, len(s.tasks)-len(s.active))
	for id, t := range s.tasks {
		if _, isActive := s.active[id]; !isActive {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// Pause marks the task ineligible for dispatch. It reports whether the task
// was found. Pausing a task already running has no effect on the current
// execution.
func (s *Scheduler) Pause(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.Paused = true
	return true
}

// Resume clears the paused flag and wakes the dispatcher. It reports whether
// the task was found.
func (s *Scheduler) Resume(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		t.Paused = false
	}
	s.mu.Unlock()

	if ok {
		s.notify()
	}
	return ok
}

// SetPriority overwrites the task's priority, taking effect on the next
// dispatch evaluation. The entry already in the pending queue keeps its
// captured key; a superseding entry with the new key and the original
// submission sequence is pushed instead, and the stale one is dropped when
// it surfaces. It reports whether the task was found.
func (s *Scheduler) SetPriority(id string, priority int) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		t.Priority = priority
		if _, isActive := s.active[id]; !isActive {
			s.pending.pushWithSeq(id, priority, t.seq)
		}
	}
	s.mu.Unlock()

	if ok {
		s.notify()
	}
	return ok
}

// SetGlobalSpeedLimit updates the shared data-rate cap in MiB/s read by
// workers at dispatch time. Nil removes the cap.
func (s *Scheduler) SetGlobalSpeedLimit(limit *float64) {
	s.mu.Lock()
	s.globalLimit = cloneFloat(limit)
	s.mu.Unlock()
}

// GlobalSpeedLimit returns the current shared data-rate cap, nil when unset.
func (s *Scheduler) GlobalSpeedLimit() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFloat(s.globalLimit)
}

// Start recovers unfinished tasks from the status store and launches the
// dispatch loop.
func (s *Scheduler) Start() error {
	if err := s.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	s.wg.Add(1)
	go s.dispatchLoop()

	s.logger.Info("scheduler started",
		"max_concurrent", s.config.MaxConcurrent,
		"fetch_timeout", s.config.FetchTimeout)
	return nil
}

// Stop halts new admissions and waits for the dispatch loop and all
// in-flight workers to finish.
func (s *Scheduler) Stop() {
	s.cancelFunc()
	s.wg.Wait()
	s.workerWG.Wait()
	s.logger.Info("scheduler stopped")
}

// Recover loads the status ledger and resubmits every non-terminal record,
// resetting interrupted in_progress records back to queued. Delivery across
// restarts is at-least-once.
func (s *Scheduler) Recover() error {
	ctx := context.Background()

	records, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load status ledger: %w", err)
	}

	var requeued int
	for owner, ownerRecords := range records {
		for _, rec := range ownerRecords {
			if rec.Status.IsTerminal() {
				continue
			}
			if rec.URL == "" {
				// Reconciliation-synthesized records carry no URL and
				// cannot be re-run.
				s.logger.Warn("skipping unfinished record without url",
					"task_id", rec.ID,
					"owner", owner)
				continue
			}

			if rec.Status == TaskStatusInProgress {
				queued := TaskStatusQueued
				if err := s.store.Update(ctx, owner, rec.ID, RecordUpdate{Status: &queued}); err != nil {
					s.logger.Error("failed to reset interrupted record",
						"task_id", rec.ID,
						"owner", owner,
						"error", err)
				}
			}

			t := &DownloadTask{
				ID:         rec.ID,
				URL:        rec.URL,
				Owner:      owner,
				Priority:   rec.Priority,
				Paused:     rec.Paused,
				SpeedLimit: cloneFloat(rec.SpeedLimit),
				Format:     s.config.DefaultFormat,
				Title:      rec.Title,
				Status:     TaskStatusQueued,
			}
			s.enqueue(t)
			requeued++
		}
	}

	if requeued > 0 {
		s.logger.Info("recovered unfinished tasks", "count", requeued)
	}
	return nil
}

// dispatchLoop runs until Stop, admitting pending tasks whenever capacity
// and the queue allow.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	for {
		delay := s.dispatchReady()

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// dispatchReady admits tasks until the active set is full, the pending queue
// drains, or a paused task reaches the head. It returns how long the loop
// should wait before the next evaluation absent a wake signal.
func (s *Scheduler) dispatchReady() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.active) >= s.config.MaxConcurrent {
			return s.config.PollInterval
		}

		e := s.pending.pop()
		if e == nil {
			return s.config.PollInterval
		}

		t, ok := s.tasks[e.id]
		if !ok {
			// Stale entry for a discarded task.
			continue
		}

		if _, isActive := s.active[e.id]; isActive {
			// Duplicate left behind by a priority change on a task that
			// has since been admitted.
			continue
		}

		if t.Priority != e.priority {
			// Superseded by the entry pushed when the priority changed.
			continue
		}

		if t.Paused {
			s.pending.reinsert(e, e.priority)
			return s.config.PauseRetryDelay
		}

		s.active[t.ID] = t
		s.workerWG.Add(1)
		go s.runTask(t)
	}
}

// release removes a terminal task from the active set and the index and
// frees its capacity slot.
func (s *Scheduler) release(t *DownloadTask) {
	s.mu.Lock()
	delete(s.active, t.ID)
	delete(s.tasks, t.ID)
	s.mu.Unlock()

	s.notify()
}

// notify nudges the dispatch loop without blocking.
func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
