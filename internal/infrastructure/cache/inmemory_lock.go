package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labfix/backend/internal/domain/shared"
)

// InMemoryLocker serializes holders of the same key within one process.
// The ttl is honoured so a leaked lock does not block forever.
type InMemoryLocker struct {
	mu    sync.Mutex
	held  map[string]*heldLock
	gen   uint64
	retry time.Duration
}

type heldLock struct {
	expiresAt time.Time
	gen       uint64
}

// NewInMemoryLocker creates an empty locker.
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{
		held:  make(map[string]*heldLock),
		retry: 5 * time.Millisecond,
	}
}

func (l *InMemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	for {
		if gen, ok := l.tryAcquire(key, ttl); ok {
			var once sync.Once
			return func() {
				once.Do(func() { l.release(key, gen) })
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", shared.ErrLockTimeout, key)
		case <-time.After(l.retry):
		}
	}
}

func (l *InMemoryLocker) tryAcquire(key string, ttl time.Duration) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if h, ok := l.held[key]; ok && now.Before(h.expiresAt) {
		return 0, false
	}
	l.gen++
	l.held[key] = &heldLock{expiresAt: now.Add(ttl), gen: l.gen}
	return l.gen, true
}

func (l *InMemoryLocker) release(key string, gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok && h.gen == gen {
		delete(l.held, key)
	}
}

var _ shared.Locker = (*InMemoryLocker)(nil)
