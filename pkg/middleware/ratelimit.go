package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// Limit is a fixed-window threshold
type Limit struct {
	Requests int
	Window   time.Duration
}

// CounterStore counts requests per key within a window. Increment returns the
// count after incrementing. Counters may be approximate under concurrency.
type CounterStore interface {
	Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
}

type counterKey struct {
	key         string
	windowStart int64
}

type counter struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounterStore keeps counters in process memory. Counts are not shared
// between replicas.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[counterKey]*counter
	now      func() time.Time
}

// NewMemoryCounterStore creates an empty in-memory counter store
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counters: make(map[counterKey]*counter),
		now:      time.Now,
	}
}

// Increment implements CounterStore
func (s *MemoryCounterStore) Increment(_ context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := counterKey{key: key, windowStart: windowStart.UnixNano()}
	c, ok := s.counters[k]
	if !ok {
		c = &counter{expiresAt: windowStart.Add(window)}
		s.counters[k] = c
	}
	c.count++
	return c.count, nil
}

// Cleanup removes counters of windows that have ended and returns how many were removed
func (s *MemoryCounterStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live counters
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

// LimitResult describes one rate limit check
type LimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the time left in the window
	RetryAfter time.Duration
}

// FixedWindowLimiter counts requests per key in windows aligned to Limit.Window
type FixedWindowLimiter struct {
	store CounterStore
	limit Limit
	now   func() time.Time
}

// NewFixedWindowLimiter creates a limiter backed by store
func NewFixedWindowLimiter(store CounterStore, limit Limit) *FixedWindowLimiter {
	return &FixedWindowLimiter{store: store, limit: limit, now: time.Now}
}

// Allow counts a request for key. On a store error the request is allowed and
// the error is returned for logging.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (LimitResult, error) {
	now := l.now()
	windowStart := now.Truncate(l.limit.Window)
	result := LimitResult{
		Allowed:   true,
		Limit:     l.limit.Requests,
		Remaining: l.limit.Requests,
		ResetAt:   windowStart.Add(l.limit.Window),
	}
	result.RetryAfter = result.ResetAt.Sub(now)

	count, err := l.store.Increment(ctx, key, windowStart, l.limit.Window)
	if err != nil {
		return result, err
	}

	result.Allowed = count <= int64(l.limit.Requests)
	result.Remaining = l.limit.Requests - int(count)
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result, nil
}

// RateLimitObserver records rate limiter outcomes
type RateLimitObserver interface {
	ObserveRateLimited(class string)
	ObserveRateLimitStoreError()
}

// RateLimitMiddleware applies a fixed-window limit per route class. Requests
// are keyed by user id when a session is present, otherwise by client IP.
type RateLimitMiddleware struct {
	limiters   map[RouteClass]*FixedWindowLimiter
	classify   func(path string) RouteClass
	observer   RateLimitObserver
	logger     logrus.FieldLogger
	trustProxy bool
}

// NewRateLimitMiddleware creates a rate limit middleware. Classes without a
// limit are not limited. observer may be nil.
func NewRateLimitMiddleware(store CounterStore, limits map[RouteClass]Limit, classify func(path string) RouteClass, observer RateLimitObserver, logger logrus.FieldLogger) *RateLimitMiddleware {
	limiters := make(map[RouteClass]*FixedWindowLimiter, len(limits))
	for class, limit := range limits {
		if limit.Requests <= 0 || limit.Window <= 0 {
			continue
		}
		limiters[class] = NewFixedWindowLimiter(store, limit)
	}
	return &RateLimitMiddleware{
		limiters: limiters,
		classify: classify,
		observer: observer,
		logger:   logger,
	}
}

// TrustProxyHeaders makes the client IP come from X-Forwarded-For or X-Real-IP.
// Enable it only when a proxy in front of the server overwrites those headers;
// otherwise any client can pick its own rate limit key.
func (m *RateLimitMiddleware) TrustProxyHeaders(trust bool) *RateLimitMiddleware {
	m.trustProxy = trust
	return m
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := m.classify(r.URL.Path)
		limiter, ok := m.limiters[class]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := string(class) + ":" + rateLimitKey(r, m.trustProxy)
		result, err := limiter.Allow(r.Context(), key)
		if err != nil {
			m.logger.WithError(err).WithField("class", class).Warn("rate limit store unavailable, allowing request")
			if m.observer != nil {
				m.observer.ObserveRateLimitStoreError()
			}
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

		if !result.Allowed {
			if m.observer != nil {
				m.observer.ObserveRateLimited(string(class))
			}
			httputil.WriteAppError(w, r, &httputil.RateLimitedError{RetryAfter: result.RetryAfter})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request, trustProxy bool) string {
	if user := auth.UserFromContext(r.Context()); user != nil {
		return "user:" + user.ID
	}
	return "ip:" + clientIP(r, trustProxy)
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
