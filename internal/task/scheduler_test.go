package task

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testConfig(t *testing.T, maxConcurrent int) SchedulerConfig {
	t.Helper()
	return SchedulerConfig{
		MaxConcurrent:   maxConcurrent,
		PauseRetryDelay: 10 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
		FetchTimeout:    5 * time.Second,
		DownloadDir:     t.TempDir(),
		DefaultFormat:   FormatFLAC,
	}
}

func TestScheduler_SubmitValidation(t *testing.T) {
	t.Parallel()

	s := NewScheduler(NewMockStatusStore(), NewMockFetcher(), NewMockProber(),
		testConfig(t, 1), testLogger())

	t.Run("empty url", func(t *testing.T) {
		_, err := s.Submit(SubmitRequest{Owner: "alice"})
		assert.ErrorIs(t, err, ErrInvalidSubmission)
		assert.ErrorIs(t, err, ErrEmptyURL)
	})

	t.Run("blank owner", func(t *testing.T) {
		_, err := s.Submit(SubmitRequest{URL: "https://example.com/a", Owner: "   "})
		assert.ErrorIs(t, err, ErrEmptyOwner)
	})

	t.Run("rejected submissions leave no task behind", func(t *testing.T) {
		assert.Empty(t, s.ListAll())
	})

	t.Run("valid submission returns an id", func(t *testing.T) {
		id, err := s.Submit(SubmitRequest{URL: "https://example.com/a", Owner: "alice"})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Len(t, s.ListAll(), 1)
	})
}

// TestScheduler_DispatchOrder covers the spec scenario: three submissions
// with priorities [5, 1, 5] under a concurrency bound of one are dispatched
// as first-5, second-5, then 1.
func TestScheduler_DispatchOrder(t *testing.T) {
	t.Parallel()

	started := make(chan string, 10)
	release := make(chan struct{})

	fetcher := NewMockFetcher()
	fetcher.FetchFn = func(ctx context.Context, req FetchRequest) error {
		started <- req.URL
		<-release
		return nil
	}

	s := NewScheduler(NewMockStatusStore(), fetcher, NewMockProber(),
		testConfig(t, 1), testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	_, err := s.Submit(SubmitRequest{URL: "url-1", Owner: "alice", Priority: 5})
	require.NoError(t, err)
	require.Equal(t, "url-1", <-started)

	// Queue the rest while the only slot is occupied.
	_, err = s.Submit(SubmitRequest{URL: "url-2", Owner: "alice", Priority: 1})
	require.NoError(t, err)
	_, err = s.Submit(SubmitRequest{URL: "url-3", Owner: "alice", Priority: 5})
	require.NoError(t, err)

	release <- struct{}{}
	assert.Equal(t, "url-3", <-started)
	release <- struct{}{}
	assert.Equal(t, "url-2", <-started)
	release <- struct{}{}
}

func TestScheduler_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	var current, peak int32

	fetcher := NewMockFetcher()
	fetcher.FetchFn = func(ctx context.Context, req FetchRequest) error {
		n := atomic.AddInt32(&current, 1)
		defer atomic.AddInt32(&current, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	s := NewScheduler(NewMockStatusStore(), fetcher, NewMockProber(),
		testConfig(t, 2), testLogger())
	require.NoError(t, s.Start())

	for i := 0; i < 6; i++ {
		_, err := s.Submit(SubmitRequest{URL: "https://example.com/a", Owner: "alice"})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return fetcher.CallCount() == 6 && len(s.ListAll()) == 0
	}, waitFor, tick)
	s.Stop()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2),
		"active set must never exceed max_concurrent")
}

func TestScheduler_PauseGatesDispatch(t *testing.T) {
	t.Parallel()

	started := make(chan string, 10)
	release := make(chan struct{})

	fetcher := NewMockFetcher()
	fetcher.FetchFn = func(ctx context.Context, req FetchRequest) error {
		started <- req.URL
		<-release
		return nil
	}

	s := NewScheduler(NewMockStatusStore(), fetcher, NewMockProber(),
		testConfig(t, 1), testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	_, err := s.Submit(SubmitRequest{URL: "blocker", Owner: "alice", Priority: 5})
	require.NoError(t, err)
	require.Equal(t, "blocker", <-started)

	pausedID, err := s.Submit(SubmitRequest{URL: "paused", Owner: "alice", Priority: 3})
	require.NoError(t, err)
	require.True(t, s.Pause(pausedID))

	// Free the slot; the paused task must stay parked.
	release <- struct{}{}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, fetcher.CallCount(), "paused task must not be dispatched")

	require.True(t, s.Resume(pausedID))
	assert.Equal(t, "paused", <-started)
	release <- struct{}{}
}

func TestScheduler_PauseResumeReportFound(t *testing.T) {
	t.Parallel()

	s := NewScheduler(NewMockStatusStore(), NewMockFetcher(), NewMockProber(),
		testConfig(t, 1), testLogger())

	id, err := s.Submit(SubmitRequest{URL: "https://example.com/a", Owner: "alice"})
	require.NoError(t, err)

	assert.True(t, s.Pause(id))
	assert.True(t, s.Pause(id), "pause is idempotent")
	assert.True(t, s.Resume(id))
	assert.False(t, s.Pause("no-such-id"))
	assert.False(t, s.Resume("no-such-id"))
	assert.False(t, s.SetPriority("no-such-id", 9))
}

// TestScheduler_SetPriorityTakesEffectOnNextDispatch raises a queued task's
// priority while the slot is occupied and expects it to jump ahead of a task
// that outranked it at submission time.
func TestScheduler_SetPriorityTakesEffectOnNextDispatch(t *testing.T) {
	t.Parallel()

	started := make(chan string, 10)
	release := make(chan struct{})

	fetcher := NewMockFetcher()
	fetcher.FetchFn = func(ctx context.Context, req FetchRequest) error {
		started <- req.URL
		<-release
		return nil
	}

	s := NewScheduler(NewMockStatusStore(), fetcher, NewMockProber(),
		testConfig(t, 1), testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	_, err := s.Submit(SubmitRequest{URL: "blocker", Owner: "alice", Priority: 100})
	require.NoError(t, err)
	require.Equal(t, "blocker", <-started)

	lowID, err := s.Submit(SubmitRequest{URL: "low", Owner: "alice", Priority: 1})
	require.NoError(t, err)
	_, err = s.Submit(SubmitRequest{URL: "mid", Owner: "alice", Priority: 5})
	require.NoError(t, err)

	require.True(t, s.SetPriority(lowID, 50))

	release <- struct{}{}
	assert.Equal(t, "low", <-started)
	release <- struct{}{}
	assert.Equal(t, "mid", <-started)
	release <- struct{}{}
}

func TestScheduler_SpeedLimitPassedToFetch(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		global *float64
		task   *float64
		want   *float64
	}{
		{name: "both set takes the smaller", global: f(2.0), task: f(5.0), want: f(2.0)},
		{name: "task limit only", global: nil, task: f(5.0), want: f(5.0)},
		{name: "global limit only", global: f(3.0), task: nil, want: f(3.0)},
		{name: "neither set", global: nil, task: nil, want: nil},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fetcher := NewMockFetcher()
			s := NewScheduler(NewMockStatusStore(), fetcher, NewMockProber(),
				testConfig(t, 1), testLogger())
			require.NoError(t, s.Start())
			defer s.Stop()

			s.SetGlobalSpeedLimit(tc.global)
			_, err := s.Submit(SubmitRequest{
				URL:        "https://example.com/a",
				Owner:      "alice",
				SpeedLimit: tc.task,
			})
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				return fetcher.CallCount() > 0
			}, waitFor, tick)

			got := fetcher.Calls()[0].RateLimit
			if tc.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tc.want, *got)
			}
		})
	}
}

func TestScheduler_TerminalTasksLeaveTheLiveSet(t *testing.T) {
	t.Parallel()

	store := NewMockStatusStore()
	s := NewScheduler(store, NewMockFetcher(), NewMockProber(),
		testConfig(t, 1), testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	id, err := s.Submit(SubmitRequest{URL: "https://example.com/a", Owner: "alice"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, ok := store.Record("alice", id)
		return ok && rec.Status == TaskStatusCompleted
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		return len(s.ListAll()) == 0
	}, waitFor, tick)
}

func TestScheduler_ListAllReturnsSnapshots(t *testing.T) {
	t.Parallel()

	s := NewScheduler(NewMockStatusStore(), NewMockFetcher(), NewMockProber(),
		testConfig(t, 1), testLogger())

	id, err := s.Submit(SubmitRequest{URL: "https://example.com/a", Owner: "alice", Priority: 4})
	require.NoError(t, err)

	snap := s.ListAll()
	require.Len(t, snap, 1)
	snap[0].Priority = 99
	snap[0].Paused = true

	require.True(t, s.SetPriority(id, 4)) // task still reachable
	fresh := s.ListAll()
	assert.Equal(t, 4, fresh[0].Priority, "mutating a snapshot must not touch scheduler state")
	assert.False(t, fresh[0].Paused)
}

func TestScheduler_Recover(t *testing.T) {
	t.Parallel()

	store := NewMockStatusStore()
	now := time.Now().UTC()
	store.Seed("alice",
		StatusRecord{ID: "done", URL: "https://example.com/done", Owner: "alice",
			Status: TaskStatusCompleted, CompletedAt: &now},
		StatusRecord{ID: "interrupted", URL: "https://example.com/interrupted", Owner: "alice",
			Status: TaskStatusInProgress, Title: "Halfway", Priority: 7},
		StatusRecord{ID: "waiting", URL: "https://example.com/waiting", Owner: "alice",
			Status: TaskStatusQueued, Priority: 2},
		// Reconciliation-synthesized records have no URL and cannot re-run.
		StatusRecord{ID: "orphan", Owner: "alice", Status: TaskStatusInProgress, Title: "X"},
	)

	s := NewScheduler(store, NewMockFetcher(), NewMockProber(),
		testConfig(t, 1), testLogger())
	require.NoError(t, s.Recover())

	live := s.ListAll()
	require.Len(t, live, 2)

	byID := make(map[string]DownloadTask, len(live))
	for _, lt := range live {
		byID[lt.ID] = lt
	}
	require.Contains(t, byID, "interrupted")
	require.Contains(t, byID, "waiting")
	assert.Equal(t, 7, byID["interrupted"].Priority)
	assert.Equal(t, TaskStatusQueued, byID["interrupted"].Status)

	rec, ok := store.Record("alice", "interrupted")
	require.True(t, ok)
	assert.Equal(t, TaskStatusQueued, rec.Status,
		"interrupted records are reset to queued in the ledger")
}

func f(v float64) *float64 {
	return &v
}
