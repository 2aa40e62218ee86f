package watcher

import (
	"context"
	"time"
)

// Page is the raw result of fetching the target URL.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Snapshot is the per-invocation view of the page used for change detection.
type Snapshot struct {
	URL  string
	HTML []byte
	Text string
	Hash string
}

// Change describes a processed content change. It is the payload handed to
// notifiers and published as a change event.
type Change struct {
	RunID        string    `json:"run_id"`
	URL          string    `json:"url"`
	PreviousHash string    `json:"previous_hash,omitempty"`
	CurrentHash  string    `json:"current_hash"`
	Summary      string    `json:"summary"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Fetcher retrieves a page over HTTP. Non-success statuses are errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Extractor reduces HTML to the plain text that gets hashed and summarized.
type Extractor interface {
	Text(html []byte) (string, error)
}

// Hasher computes a deterministic digest of extracted text.
type Hasher interface {
	Hash(text string) string
}

// Summarizer turns page text into a short summary of what changed.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Notifier delivers a processed change to operators.
type Notifier interface {
	Notify(ctx context.Context, change Change) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
