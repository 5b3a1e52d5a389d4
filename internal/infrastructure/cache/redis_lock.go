package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/domain/shared"
)

// releaseScript deletes the lock only if it still carries our token, so an
// expired holder cannot release a lock re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance redis lock used to serialize billing
// provisioning across API replicas.
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
	retry     time.Duration
	logger    *zap.Logger
}

// NewRedisLocker builds a locker on an existing client.
func NewRedisLocker(client *redis.Client, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:    client,
		keyPrefix: "lock:",
		retry:     50 * time.Millisecond,
		logger:    logger,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	full := l.keyPrefix + key

	for {
		ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", shared.ErrLockTimeout, key)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", shared.ErrLockTimeout, key)
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// release must outlive a cancelled request context
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{full}, token).Err(); err != nil {
				l.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}
	return release, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

var _ shared.Locker = (*RedisLocker)(nil)
