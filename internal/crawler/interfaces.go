package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves a page. Failures should be *NetworkError. Implementations
// must be safe for concurrent use and keep no per-request state.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (Page, error)
}

// Discoverer returns candidate outbound URLs for a page. It performs no I/O and
// never fails: malformed content yields an empty slice. The result may contain
// duplicates.
type Discoverer interface {
	Discover(page Page) []string
}

// Pipeline processes a fetched page for its side effects. A failure is
// reported as *StageError and never aborts the crawl.
type Pipeline interface {
	Process(ctx context.Context, page Page) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// RecordStore persists page records.
type RecordStore interface {
	SaveRecord(ctx context.Context, record Record) error
}

// Publisher pushes per-page notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
