package ports

import (
	"context"
	"time"

	"contentmaker/internal/domain"
)

// Source pulls a batch of fresh items from one upstream origin. A successful
// poll returns zero or more well-formed items; failures are confined to the
// returned error and never mutate shared state.
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]domain.Item, error)
}

// Sink delivers a single summarized item to one publishing channel.
type Sink interface {
	Name() string
	Publish(ctx context.Context, item domain.Item) error
}

// Enricher produces a generated summary for an item. It returns a new value
// with the summary populated and never mutates its input.
type Enricher interface {
	Summarize(ctx context.Context, item domain.Item) (domain.Item, error)
}

// ItemStore persists items, answers seen-set membership, tracks enrichment
// failures, and prunes history past the retention horizon.
type ItemStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	// Save is an idempotent upsert keyed by identity; saving an identity
	// that already exists is a no-op.
	Save(ctx context.Context, item domain.Item) error
	// Prune deletes items strictly older than now minus olderThan and
	// returns the number deleted.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	// RecordEnrichFailure increments the per-identity failure counter and
	// returns the new total.
	RecordEnrichFailure(ctx context.Context, id string) (int, error)
}

// LinkResolver fetches and extracts readable text behind an item link.
type LinkResolver interface {
	Resolve(ctx context.Context, url string) (domain.LinkContent, error)
}

// Scheduler controls when pipeline passes execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
