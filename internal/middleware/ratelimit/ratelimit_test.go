package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"struk/internal/cache"
	"struk/internal/core"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type downStore struct{ cache.Store }

func (downStore) IncrementAndExpire(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestCheckLoginRate_WindowAndReset(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore(100).WithClock(clk.Now)
	limiter := NewLoginLimiter(store, Config{MaxAttempts: 5, WindowSeconds: 900}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.CheckLoginRate(ctx, "10.0.0.1"), "attempt %d", i+1)
		clk.Advance(time.Minute)
	}

	err := limiter.CheckLoginRate(ctx, "10.0.0.1")
	assert.ErrorIs(t, err, core.ErrThrottled)
	var te *core.ThrottledError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 900*time.Second, te.RetryAfter)

	// other origins are counted separately
	assert.NoError(t, limiter.CheckLoginRate(ctx, "10.0.0.2"))

	// the window started at the first attempt and does not slide
	clk.Advance(10 * time.Minute)
	assert.NoError(t, limiter.CheckLoginRate(ctx, "10.0.0.1"))
	assert.Equal(t, int64(1), limiter.GetMetrics().TotalHits)
}

func TestCheck_FailsOpen(t *testing.T) {
	limiter := NewLoginLimiter(downStore{}, DefaultLoginConfig(), nil)

	for i := 0; i < 10; i++ {
		assert.NoError(t, limiter.CheckLoginRate(context.Background(), "10.0.0.1"))
	}
	assert.Equal(t, int64(10), limiter.GetMetrics().FailOpenCount)
}

func TestNewLimiter_InvalidConfigUsesDefaults(t *testing.T) {
	limiter := NewLoginLimiter(cache.NewMemoryStore(10), Config{}, nil)

	assert.Equal(t, int64(5), limiter.max)
	assert.Equal(t, 900*time.Second, limiter.window)
}

func TestMiddleware(t *testing.T) {
	limiter := NewRequestLimiter(cache.NewMemoryStore(10), 2, nil)
	handler := limiter.Middleware(func(r *http.Request) string { return r.RemoteAddr }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/receipts", nil)
		req.RemoteAddr = "192.0.2.1"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
