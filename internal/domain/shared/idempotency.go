package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys of work that already completed, such as
// processed webhook deliveries. Keys are marked only after the work
// succeeded so a failed attempt can be retried by redelivery.
type IdempotencyStore interface {
	// MarkProcessed records key for ttl. It returns false if key was
	// already recorded.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether key is recorded and not yet expired.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases resources held by the store
	Close() error
}
