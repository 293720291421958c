package task

import "context"

// FetchRequest describes one attempt of the external fetch operation.
type FetchRequest struct {
	URL     string
	DestDir string
	Format  Format

	// TitleHint is the resolved (or placeholder) title, usable by the
	// fetcher when naming output files.
	TitleHint string

	// RateLimit is the effective data-rate cap in MiB/s, nil for no cap.
	RateLimit *float64
}

// Fetcher is the external retrieval/transcoding operation a worker invokes
// once per format candidate. A nil error means the fetch succeeded; the
// error text of a failure is the diagnostic carried into the next fallback
// attempt.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) error
}

// TitleProber is the external metadata-probe operation resolving a
// human-readable title for a URL.
type TitleProber interface {
	Probe(ctx context.Context, url string) (string, error)
}
