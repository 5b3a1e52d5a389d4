package billing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoginFunc exchanges credentials for a provider session token.
type LoginFunc func(ctx context.Context) (string, error)

// SessionHolder owns the provider session token for one Client. Concurrent
// callers that find no token, or a rejected one, share a single login.
type SessionHolder struct {
	login   LoginFunc
	timeout time.Duration
	group   singleflight.Group

	mu    sync.RWMutex
	token string
}

// NewSessionHolder creates a holder that logs in with login on demand. A
// shared login is bounded by timeout, not by any one caller's context.
func NewSessionHolder(login LoginFunc, timeout time.Duration) *SessionHolder {
	return &SessionHolder{login: login, timeout: timeout}
}

// Token returns the cached token, logging in first if none is cached.
func (h *SessionHolder) Token(ctx context.Context) (string, error) {
	h.mu.RLock()
	token := h.token
	h.mu.RUnlock()
	if token != "" {
		return token, nil
	}
	return h.Refresh(ctx, "")
}

// Refresh discards stale and logs in again. If another caller already
// replaced stale, the newer token is returned without a second login.
func (h *SessionHolder) Refresh(ctx context.Context, stale string) (string, error) {
	h.mu.Lock()
	if h.token != "" && h.token != stale {
		token := h.token
		h.mu.Unlock()
		return token, nil
	}
	h.token = ""
	h.mu.Unlock()

	// The login is shared by every waiter, so the first caller's
	// cancellation must not fail the others.
	ch := h.group.DoChan("login", func() (any, error) {
		loginCtx := context.WithoutCancel(ctx)
		if h.timeout > 0 {
			var cancel context.CancelFunc
			loginCtx, cancel = context.WithTimeout(loginCtx, h.timeout)
			defer cancel()
		}
		token, err := h.login(loginCtx)
		if err != nil {
			return "", err
		}
		h.mu.Lock()
		h.token = token
		h.mu.Unlock()
		return token, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token if it still equals stale.
func (h *SessionHolder) Invalidate(stale string) {
	h.mu.Lock()
	if h.token == stale {
		h.token = ""
	}
	h.mu.Unlock()
}
