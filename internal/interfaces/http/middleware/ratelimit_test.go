package middleware

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/labfix/backend/internal/interfaces/http/dto"
	"github.com/labfix/backend/tests/testutil"
)

func TestRateLimiter(t *testing.T) {
	t.Run("blocks requests exceeding limit", func(t *testing.T) {
		limiter := NewRateLimiter(3, time.Minute)
		defer limiter.Stop()

		for i := 0; i < 3; i++ {
			ok, _ := limiter.Allow("client")
			assert.True(t, ok, "request %d should be allowed", i+1)
		}
		ok, remaining := limiter.Allow("client")
		assert.False(t, ok)
		assert.Zero(t, remaining)
	})

	t.Run("separate limits per client", func(t *testing.T) {
		limiter := NewRateLimiter(1, time.Minute)
		defer limiter.Stop()

		ok, _ := limiter.Allow("a")
		assert.True(t, ok)
		ok, _ = limiter.Allow("a")
		assert.False(t, ok)
		ok, _ = limiter.Allow("b")
		assert.True(t, ok)
	})

	t.Run("resets after window", func(t *testing.T) {
		limiter := NewRateLimiter(1, time.Minute)
		defer limiter.Stop()
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		limiter.now = func() time.Time { return now }

		ok, _ := limiter.Allow("a")
		assert.True(t, ok)
		ok, _ = limiter.Allow("a")
		assert.False(t, ok)

		now = now.Add(time.Minute)
		ok, _ = limiter.Allow("a")
		assert.True(t, ok)
	})

	t.Run("concurrent access admits exactly the limit", func(t *testing.T) {
		limiter := NewRateLimiter(100, time.Minute)
		defer limiter.Stop()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for i := 0; i < 150; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := limiter.Allow("shared"); ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 100, allowed)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	defer limiter.Stop()

	r := gin.New()
	r.Use(RequestID(), RateLimit(limiter))
	r.POST("/api/v1/billing/webhook", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := testutil.Do(t, r, testutil.Request{Method: http.MethodPost, Path: "/api/v1/billing/webhook"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := testutil.Do(t, r, testutil.Request{Method: http.MethodPost, Path: "/api/v1/billing/webhook"})
	testutil.AssertErrorResponse(t, w, http.StatusTooManyRequests, dto.ErrCodeRateLimited)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}
