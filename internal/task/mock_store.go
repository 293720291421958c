package task

import (
	"context"
	"sync"
)

// MockStatusStore implements the StatusStore interface for testing. Its
// default behavior mirrors the production document store, including the
// reconciliation rule, so tests can assert on final record state.
type MockStatusStore struct {
	mutex   sync.RWMutex
	records map[string][]StatusRecord

	LoadFn   func(ctx context.Context) (map[string][]StatusRecord, error)
	SaveFn   func(ctx context.Context, records map[string][]StatusRecord) error
	UpdateFn func(ctx context.Context, owner, id string, fields RecordUpdate) error
	PruneFn  func(ctx context.Context, expired func(rec StatusRecord) bool) (int, error)
}

// NewMockStatusStore creates a new MockStatusStore with default
// implementations.
func NewMockStatusStore() *MockStatusStore {
	store := &MockStatusStore{
		records: make(map[string][]StatusRecord),
	}

	store.LoadFn = func(ctx context.Context) (map[string][]StatusRecord, error) {
		store.mutex.RLock()
		defer store.mutex.RUnlock()

		out := make(map[string][]StatusRecord, len(store.records))
		for owner, recs := range store.records {
			out[owner] = append([]StatusRecord(nil), recs...)
		}
		return out, nil
	}

	store.SaveFn = func(ctx context.Context, records map[string][]StatusRecord) error {
		store.mutex.Lock()
		defer store.mutex.Unlock()

		store.records = make(map[string][]StatusRecord, len(records))
		for owner, recs := range records {
			store.records[owner] = append([]StatusRecord(nil), recs...)
		}
		return nil
	}

	store.UpdateFn = func(ctx context.Context, owner, id string, fields RecordUpdate) error {
		store.mutex.Lock()
		defer store.mutex.Unlock()

		recs := store.records[owner]
		for i := range recs {
			if recs[i].ID == id {
				applyMockUpdate(&recs[i], fields)
				return nil
			}
		}
		if fields.Title == nil {
			return nil
		}
		rec := StatusRecord{ID: id, Owner: owner, Status: TaskStatusInProgress}
		applyMockUpdate(&rec, fields)
		store.records[owner] = append(recs, rec)
		return nil
	}

	store.PruneFn = func(ctx context.Context, expired func(rec StatusRecord) bool) (int, error) {
		store.mutex.Lock()
		defer store.mutex.Unlock()

		pruned := 0
		for owner, recs := range store.records {
			kept := recs[:0]
			for _, rec := range recs {
				if expired(rec) {
					pruned++
					continue
				}
				kept = append(kept, rec)
			}
			if len(kept) == 0 {
				delete(store.records, owner)
				continue
			}
			store.records[owner] = kept
		}
		return pruned, nil
	}

	return store
}

// Load returns the stored mapping.
func (s *MockStatusStore) Load(ctx context.Context) (map[string][]StatusRecord, error) {
	return s.LoadFn(ctx)
}

// Save replaces the stored mapping.
func (s *MockStatusStore) Save(ctx context.Context, records map[string][]StatusRecord) error {
	return s.SaveFn(ctx, records)
}

// Update merges fields into a stored record.
func (s *MockStatusStore) Update(ctx context.Context, owner, id string, fields RecordUpdate) error {
	return s.UpdateFn(ctx, owner, id, fields)
}

// Prune removes records matching expired and drops emptied owner keys.
func (s *MockStatusStore) Prune(ctx context.Context, expired func(rec StatusRecord) bool) (int, error) {
	return s.PruneFn(ctx, expired)
}

// Seed installs records for an owner, bypassing the update path.
func (s *MockStatusStore) Seed(owner string, records ...StatusRecord) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.records[owner] = append(s.records[owner], records...)
}

// Record returns the stored record for owner/id and whether it exists.
func (s *MockStatusStore) Record(owner, id string) (StatusRecord, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, rec := range s.records[owner] {
		if rec.ID == id {
			return rec, true
		}
	}
	return StatusRecord{}, false
}

func applyMockUpdate(rec *StatusRecord, fields RecordUpdate) {
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
