package task

import (
	"context"
	"sync"
)

// MockFetcher implements the Fetcher interface for testing, recording every
// fetch attempt in order.
type MockFetcher struct {
	mutex sync.Mutex
	calls []FetchRequest

	// FetchFn controls the outcome of each attempt; nil means success.
	FetchFn func(ctx context.Context, req FetchRequest) error
}

// NewMockFetcher creates a MockFetcher whose attempts all succeed.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{}
}

// Fetch records the attempt and delegates to FetchFn.
func (f *MockFetcher) Fetch(ctx context.Context, req FetchRequest) error {
	f.mutex.Lock()
	f.calls = append(f.calls, req)
	f.mutex.Unlock()

	if f.FetchFn == nil {
		return nil
	}
	return f.FetchFn(ctx, req)
}

// Calls returns a copy of the recorded fetch attempts.
func (f *MockFetcher) Calls() []FetchRequest {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]FetchRequest(nil), f.calls...)
}

// CallCount returns the number of recorded fetch attempts.
func (f *MockFetcher) CallCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.calls)
}

// MockProber implements the TitleProber interface for testing.
type MockProber struct {
	// ProbeFn controls the probe outcome; nil resolves "Resolved Title".
	ProbeFn func(ctx context.Context, url string) (string, error)
}

// NewMockProber creates a MockProber resolving a fixed title.
func NewMockProber() *MockProber {
	return &MockProber{}
}

// Probe delegates to ProbeFn.
func (p *MockProber) Probe(ctx context.Context, url string) (string, error) {
	if p.ProbeFn == nil {
		return "Resolved Title", nil
	}
	return p.ProbeFn(ctx, url)
}
