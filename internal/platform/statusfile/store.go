package statusfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pullq/pullq/internal/task"
)

// Store persists the owner-keyed status ledger to a JSON file.
type Store struct {
	path   string
	logger *slog.Logger

	// mu serializes every read-modify-write cycle. The baseline design had
	// no cross-update locking, letting interleaved updates overwrite each
	// other; the single-writer discipline here removes that lost-update
	// hazard.
	mu sync.Mutex
}

// New creates a Store backed by the JSON document at path.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Load returns the full owner-to-records mapping. A missing or unreadable
// or corrupt file is not fatal: status history is worth less than an
// in-flight download, so those cases yield an empty mapping.
func (s *Store) Load(ctx context.Context) (map[string][]task.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load reads the document without locking; callers hold s.mu.
func (s *Store) load() (map[string][]task.StatusRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read status ledger, treating as empty",
				"path", s.path,
				"error", err)
		}
		return map[string][]task.StatusRecord{}, nil
	}

	var records map[string][]task.StatusRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("status ledger is corrupt, treating as empty",
			"path", s.path,
			"error", err)
		return map[string][]task.StatusRecord{}, nil
	}
	if records == nil {
		records = map[string][]task.StatusRecord{}
	}
	return records, nil
}

// Save rewrites the full document atomically.
func (s *Store) Save(ctx context.Context, records map[string][]task.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(records)
}

// save writes the document without locking; callers hold s.mu.
func (s *Store) save(records map[string][]task.StatusRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status ledger: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create status ledger directory: %w", err)
		}
	}

	// Write-then-rename so a crash mid-write never leaves a truncated
	// document behind.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write status ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace status ledger: %w", err)
	}
	return nil
}

// Update merges fields into the record with the given id under owner and
// rewrites the document. When no record matches and the update carries a
// title, a new record is synthesized with status in_progress: the live task
// may have been created by a scheduler restart with no stored history.
func (s *Store) Update(ctx context.Context, owner, id string, fields task.RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	ownerRecords := records[owner]
	found := false
	for i := range ownerRecords {
		if ownerRecords[i].ID == id {
			applyUpdate(&ownerRecords[i], fields)
			found = true
			break
		}
	}

	if !found {
		if fields.Title == nil {
			// Nothing to reconcile against; drop the update.
			s.logger.Debug("ignoring update for unknown record without title",
				"owner", owner,
				"task_id", id)
			return nil
		}
		rec := task.StatusRecord{
			ID:     id,
			Owner:  owner,
			Status: task.TaskStatusInProgress,
		}
		applyUpdate(&rec, fields)
		ownerRecords = append(ownerRecords, rec)
	}

	records[owner] = ownerRecords
	return s.save(records)
}

// Prune removes every record for which expired reports true, dropping owner
// keys left with no records, and rewrites the document. It holds the store
// mutex for the whole cycle, so an update landing mid-sweep can never be
// erased by a stale snapshot. The document is left untouched when nothing
// expires.
func (s *Store) Prune(ctx context.Context, expired func(rec task.StatusRecord) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for owner, ownerRecords := range records {
		kept := ownerRecords[:0]
		for _, rec := range ownerRecords {
			if expired(rec) {
				pruned++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(records, owner)
			continue
		}
		records[owner] = kept
	}

	if pruned == 0 {
		return 0, nil
	}
	if err := s.save(records); err != nil {
		return 0, err
	}
	return pruned, nil
}

// applyUpdate merges the non-nil fields into rec.
func applyUpdate(rec *task.StatusRecord, fields task.RecordUpdate) {
	if fields.Status != nil {
		rec.Status = *fields.Status
	}
	if fields.URL != nil {
		rec.URL = *fields.URL
	}
	if fields.Title != nil {
		rec.Title = *fields.Title
	}
	if fields.Error != nil {
		rec.Error = *fields.Error
	}
	if fields.Priority != nil {
		rec.Priority = *fields.Priority
	}
	if fields.Paused != nil {
		rec.Paused = *fields.Paused
	}
	if fields.SpeedLimit != nil {
		v := *fields.SpeedLimit
		rec.SpeedLimit = &v
	}
	if fields.StartedAt != nil {
		v := *fields.StartedAt
		rec.StartedAt = &v
	}
	if fields.CompletedAt != nil {
		v := *fields.CompletedAt
		rec.CompletedAt = &v
	}
}
