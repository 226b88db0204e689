package harvest

import (
	"context"
	"io"
	"time"
)

// Generator calls the generative model once and returns its raw text.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string) (string, error)
}

// ArchiveWriter inserts archive records.
type ArchiveWriter interface {
	InsertArchivedTab(ctx context.Context, record ArchivedTab) error
}

// MetricsStore reads the aggregate row. Stores must also implement
// AtomicMetricsStore or VersionedMetricsStore.
type MetricsStore interface {
	ReadMetrics(ctx context.Context) (Metrics, error)
}

// AtomicMetricsStore applies an increment server side in one statement.
type AtomicMetricsStore interface {
	MetricsStore
	IncrementMetrics(ctx context.Context, delta MetricsDelta) error
}

// VersionedMetricsStore writes next only if the stored version still equals
// expectedVersion.
type VersionedMetricsStore interface {
	MetricsStore
	CompareAndSwapMetrics(ctx context.Context, expectedVersion int64, next Metrics) (bool, error)
}

// SnapshotStore writes raw page content and returns a URI.
type SnapshotStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes archive events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
