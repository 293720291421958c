package task

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// placeholderTitle is recorded when the metadata probe fails; the task still
// proceeds on a best-effort basis.
const placeholderTitle = "Unknown Title"

var titleSanitizer = regexp.MustCompile(`[^A-Za-z0-9_\-\s]+`)

// sanitizeTitle makes a probed title safe for use in file names.
func sanitizeTitle(title string) string {
	return titleSanitizer.ReplaceAllString(title, "_")
}

// effectiveSpeedLimit combines the global and per-task caps: the smaller of
// the two when both are set, whichever is set when only one is, nil when
// neither is.
func effectiveSpeedLimit(global, task *float64) *float64 {
	switch {
	case global == nil:
		return cloneFloat(task)
	case task == nil:
		return cloneFloat(global)
	case *task < *global:
		return cloneFloat(task)
	default:
		return cloneFloat(global)
	}
}

// runTask executes exactly one task to a terminal status: resolve the title,
// write status through to the store, walk the format fallback order, and
// finalize. It runs on its own goroutine, independent of the dispatch loop.
func (s *Scheduler) runTask(t *DownloadTask) {
	defer s.workerWG.Done()
	defer s.release(t)

	logger := s.logger.With(
		"task_id", t.ID,
		"owner", t.Owner,
		"url", t.URL,
	)

	// Any unexpected fault inside the worker becomes a failed status; it
	// must never take down the dispatch loop or other workers.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", "panic", r)
			s.failTask(t, fmt.Sprintf("worker crashed: %v", r), logger)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.FetchTimeout)
	defer cancel()

	title := s.resolveTitle(ctx, t.URL, logger)

	started := time.Now().UTC()
	s.mu.Lock()
	t.Title = title
	t.Status = TaskStatusInProgress
	t.StartedAt = &started
	limit := effectiveSpeedLimit(s.globalLimit, t.SpeedLimit)
	format := t.Format
	priority := t.Priority
	taskLimit := cloneFloat(t.SpeedLimit)
	s.mu.Unlock()

	// The first write-through carries the full submission alongside the
	// status so an interrupted record still holds everything recovery
	// needs to resubmit it.
	inProgress := TaskStatusInProgress
	s.writeStatus(t, RecordUpdate{
		Status:     &inProgress,
		URL:        &t.URL,
		Title:      &title,
		Priority:   &priority,
		SpeedLimit: taskLimit,
		StartedAt:  &started,
	}, logger)

	logger.Info("processing task", "title", title, "format", string(format))

	destDir := filepath.Join(s.config.DownloadDir, t.Owner)

	var lastDiag string
	for _, candidate := range FallbackOrder(format) {
		if ctx.Err() != nil {
			break
		}

		err := s.fetcher.Fetch(ctx, FetchRequest{
			URL:       t.URL,
			DestDir:   destDir,
			Format:    candidate,
			TitleHint: title,
			RateLimit: limit,
		})
		if err == nil {
			s.completeTask(t, logger)
			return
		}

		lastDiag = err.Error()
		logger.Warn("fetch attempt failed",
			"format", string(candidate),
			"error", err)
	}

	if ctx.Err() == context.DeadlineExceeded {
		lastDiag = fmt.Sprintf("timed out after %s", s.config.FetchTimeout)
	} else if lastDiag == "" {
		lastDiag = "no supported format could be fetched"
	}
	s.failTask(t, lastDiag, logger)
}

// resolveTitle invokes the metadata probe. Probe failure is non-fatal; the
// task continues with a placeholder title.
func (s *Scheduler) resolveTitle(ctx context.Context, url string, logger *slog.Logger) string {
	title, err := s.prober.Probe(ctx, url)
	if err != nil {
		logger.Warn("title probe failed, using placeholder", "error", err)
		return placeholderTitle
	}
	title = sanitizeTitle(strings.TrimSpace(title))
	if title == "" {
		return placeholderTitle
	}
	return title
}

// completeTask finalizes a successful task.
func (s *Scheduler) completeTask(t *DownloadTask, logger *slog.Logger) {
	completed := time.Now().UTC()
	s.mu.Lock()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &completed
	s.mu.Unlock()

	status := TaskStatusCompleted
	s.writeStatus(t, RecordUpdate{
		Status:      &status,
		CompletedAt: &completed,
	}, logger)

	logger.Info("task completed")
}

// failTask finalizes a failed task with the last diagnostic. It is a no-op
// when the task already reached a terminal status.
func (s *Scheduler) failTask(t *DownloadTask, diagnostic string, logger *slog.Logger) {
	completed := time.Now().UTC()
	s.mu.Lock()
	if t.Status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	t.Status = TaskStatusFailed
	t.Error = diagnostic
	t.CompletedAt = &completed
	s.mu.Unlock()

	status := TaskStatusFailed
	s.writeStatus(t, RecordUpdate{
		Status:      &status,
		Error:       &diagnostic,
		CompletedAt: &completed,
	}, logger)

	logger.Error("task failed", "error", diagnostic)
}

// writeStatus persists a partial update for the task. Persistence failures
// are logged, never raised; the in-memory task stays authoritative until the
// next successful save.
func (s *Scheduler) writeStatus(t *DownloadTask, fields RecordUpdate, logger *slog.Logger) {
	// Status writes use a fresh context so a worker whose fetch deadline
	// expired can still record its terminal state.
	if err := s.store.Update(context.Background(), t.Owner, t.ID, fields); err != nil {
		logger.Error("failed to persist task status", "error", err)
	}
}
