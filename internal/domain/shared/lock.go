package shared

import (
	"context"
	"errors"
	"time"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context was done.
var ErrLockTimeout = errors.New("lock: not acquired before deadline")

// Locker provides named mutual exclusion. Implementations may span
// processes; a held lock expires after ttl even if never released.
type Locker interface {
	// Acquire blocks until key is held or ctx is done. The returned func
	// releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
