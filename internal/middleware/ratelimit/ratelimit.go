// Package ratelimit bounds attempts per client origin using the shared
// cache's atomic counters, so every instance sees the same counts.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"struk/internal/cache"
	"struk/internal/core"
	"struk/internal/log"
)

// Config holds the attempt budget per window
type Config struct {
	MaxAttempts   int
	WindowSeconds int
}

// DefaultLoginConfig allows 5 attempts per 15 minutes
func DefaultLoginConfig() Config {
	return Config{MaxAttempts: 5, WindowSeconds: 900}
}

// Decision is the outcome of one counted attempt.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Limiter provides rate limiting functionality
type Limiter struct {
	store   cache.Store
	keyFor  func(origin string) string
	max     int64
	window  time.Duration
	metrics *MetricsCollector
	logger  *log.Logger
}

// NewLoginLimiter limits login attempts per origin.
func NewLoginLimiter(store cache.Store, config Config, logger *log.Logger) *Limiter {
	return newLimiter(store, cache.LoginAttemptsKey, config, logger)
}

// NewRequestLimiter limits general API requests per origin per minute.
func NewRequestLimiter(store cache.Store, requestsPerMinute int, logger *log.Logger) *Limiter {
	return newLimiter(store, cache.RequestsKey, Config{MaxAttempts: requestsPerMinute, WindowSeconds: 60}, logger)
}

func newLimiter(store cache.Store, keyFor func(string) string, config Config, logger *log.Logger) *Limiter {
	if config.MaxAttempts <= 0 || config.WindowSeconds <= 0 {
		config = DefaultLoginConfig()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Limiter{
		store:   store,
		keyFor:  keyFor,
		max:     int64(config.MaxAttempts),
		window:  time.Duration(config.WindowSeconds) * time.Second,
		metrics: NewMetricsCollector(),
		logger:  logger.WithComponent(log.ComponentRateLimit),
	}
}

// Check counts one attempt from origin. When the cache is unreachable the
// attempt is allowed and the failure logged.
func (l *Limiter) Check(ctx context.Context, origin string) Decision {
	key := l.keyFor(origin)
	n, err := l.store.IncrementAndExpire(ctx, key, l.window)
	if err != nil {
		l.metrics.RecordFailOpen()
		l.logger.WarnContext(ctx, "Rate limit counter unavailable, allowing request",
			log.FieldCacheKey, key,
			log.FieldError, err)
		return Decision{Allowed: true}
	}
	if n > l.max {
		l.metrics.RecordHit()
		return Decision{Allowed: false, Count: n, RetryAfter: l.window}
	}
	return Decision{Allowed: true, Count: n}
}

// CheckLoginRate returns nil when allowed and a *core.ThrottledError otherwise.
func (l *Limiter) CheckLoginRate(ctx context.Context, origin string) error {
	d := l.Check(ctx, origin)
	if d.Allowed {
		return nil
	}
	l.logger.WarnContext(ctx, "Too many attempts",
		log.FieldClientIP, origin,
		log.FieldCount, d.Count)
	return &core.ThrottledError{RetryAfter: d.RetryAfter}
}

// GetMetrics returns current rate limiting metrics
func (l *Limiter) GetMetrics() Metrics {
	return l.metrics.GetMetrics()
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	TotalHits     int64
	FailOpenCount int64
}

// MetricsCollector tracks rate limiting metrics
type MetricsCollector struct {
	totalHits int64
	failOpen  int64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordHit records a rejected attempt
func (m *MetricsCollector) RecordHit() {
	atomic.AddInt64(&m.totalHits, 1)
}

// RecordFailOpen records an attempt allowed because the counter was unavailable
func (m *MetricsCollector) RecordFailOpen() {
	atomic.AddInt64(&m.failOpen, 1)
}

// GetMetrics returns current metrics
func (m *MetricsCollector) GetMetrics() Metrics {
	return Metrics{
		TotalHits:     atomic.LoadInt64(&m.totalHits),
		FailOpenCount: atomic.LoadInt64(&m.failOpen),
	}
}

// Middleware creates HTTP middleware for rate limiting
func (l *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request, Decision)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Check(r.Context(), extractIP(r))
			if !d.Allowed {
				if onLimit != nil {
					onLimit(w, r, d)
				} else {
					w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
