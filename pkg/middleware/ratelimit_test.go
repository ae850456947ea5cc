package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/auth"
)

var windowNow = time.Date(2026, 5, 4, 10, 15, 0, 0, time.UTC)

type recordingLimitObserver struct {
	mu          sync.Mutex
	rejected    map[string]int
	storeErrors int
}

func (o *recordingLimitObserver) ObserveRateLimited(class string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rejected == nil {
		o.rejected = make(map[string]int)
	}
	o.rejected[class]++
}

func (o *recordingLimitObserver) ObserveRateLimitStoreError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storeErrors++
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Time, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func newTestRateLimiter(store CounterStore, limits map[RouteClass]Limit, observer RateLimitObserver) *RateLimitMiddleware {
	logger, _ := test.NewNullLogger()
	m := NewRateLimitMiddleware(store, limits, testRules().Classify, observer, logger)
	for _, l := range m.limiters {
		l.now = func() time.Time { return windowNow }
	}
	return m
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func sendRequests(handler http.Handler, n int, path, remoteAddr string) []int {
	codes := make([]int, 0, n)
	for i := 0; i < n; i++ {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	return codes
}

func TestRateLimit_SixRequestsInOneWindow(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  []int
	}{
		{
			name:  "three per hour rejects the 4th to 6th",
			limit: 3,
			want:  []int{200, 200, 200, 429, 429, 429},
		},
		{
			name:  "one per hour rejects the 2nd to 6th",
			limit: 1,
			want:  []int{200, 429, 429, 429, 429, 429},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &recordingLimitObserver{}
			m := newTestRateLimiter(NewMemoryCounterStore(), map[RouteClass]Limit{
				ClassAuth: {Requests: tt.limit, Window: time.Hour},
			}, observer)

			codes := sendRequests(m.Handler(okHandler()), 6, "/auth/sign-in", "203.0.113.9:5000")
			assert.Equal(t, tt.want, codes)
			assert.Equal(t, 6-tt.limit, observer.rejected["auth"])
		})
	}
}

func TestRateLimit_RejectionResponse(t *testing.T) {
	m := newTestRateLimiter(NewMemoryCounterStore(), map[RouteClass]Limit{
		ClassProtected: {Requests: 1, Window: time.Hour},
	}, nil)
	handler := m.Handler(okHandler())

	sendRequests(handler, 1, "/dashboard", "198.51.100.1:1234")

	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r.RemoteAddr = "198.51.100.1:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	// windowNow is 15 minutes into the hour
	assert.Equal(t, "2700", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, w.Body.String(), `"retry_after":2700`)
}

func TestRateLimit_Keys(t *testing.T) {
	m := newTestRateLimiter(NewMemoryCounterStore(), map[RouteClass]Limit{
		ClassProtected: {Requests: 1, Window: time.Minute},
		ClassPublic:    {Requests: 1, Window: time.Minute},
	}, nil)
	handler := m.Handler(okHandler())

	t.Run("separate IPs have separate windows", func(t *testing.T) {
		assert.Equal(t, []int{200}, sendRequests(handler, 1, "/pricing", "192.0.2.1:1"))
		assert.Equal(t, []int{200}, sendRequests(handler, 1, "/pricing", "192.0.2.2:1"))
		assert.Equal(t, []int{429}, sendRequests(handler, 1, "/pricing", "192.0.2.1:2"))
	})

	t.Run("route classes have separate windows", func(t *testing.T) {
		assert.Equal(t, []int{200}, sendRequests(handler, 1, "/dashboard", "192.0.2.1:1"))
	})

	t.Run("users are keyed by id, not address", func(t *testing.T) {
		serveAs := func(user, addr string) int {
			r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			r.RemoteAddr = addr
			r = r.WithContext(auth.WithSession(r.Context(), &auth.Session{User: auth.User{ID: user}}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			return w.Code
		}
		assert.Equal(t, http.StatusOK, serveAs("user-1", "192.0.2.50:1"))
		assert.Equal(t, http.StatusTooManyRequests, serveAs("user-1", "192.0.2.51:1"))
		assert.Equal(t, http.StatusOK, serveAs("user-2", "192.0.2.50:1"))
	})

	t.Run("unlimited class", func(t *testing.T) {
		assert.Equal(t, []int{200, 200, 200}, sendRequests(handler, 3, "/admin", "192.0.2.9:1"))
	})
}

func TestRateLimit_StoreErrorFailsOpen(t *testing.T) {
	observer := &recordingLimitObserver{}
	logger, hook := test.NewNullLogger()
	m := NewRateLimitMiddleware(failingStore{}, map[RouteClass]Limit{
		ClassPublic: {Requests: 1, Window: time.Minute},
	}, testRules().Classify, observer, logger)

	codes := sendRequests(m.Handler(okHandler()), 3, "/", "192.0.2.1:1")
	assert.Equal(t, []int{200, 200, 200}, codes)
	assert.Equal(t, 3, observer.storeErrors)
	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestFixedWindowLimiter_WindowReset(t *testing.T) {
	now := windowNow
	limiter := NewFixedWindowLimiter(NewMemoryCounterStore(), Limit{Requests: 2, Window: time.Minute})
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		res, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, want, res.Allowed, "request %d", i+1)
	}

	now = now.Add(time.Minute)
	res, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, now.Add(time.Minute), res.ResetAt)
}

func TestMemoryCounterStore_Cleanup(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	_, err := store.Increment(ctx, "old", windowNow.Add(-2*time.Minute), time.Minute)
	require.NoError(t, err)
	_, err = store.Increment(ctx, "current", windowNow, time.Minute)
	require.NoError(t, err)

	store.now = func() time.Time { return windowNow.Add(30 * time.Second) }
	assert.Equal(t, 1, store.Cleanup())
	assert.Equal(t, 1, store.Len())
}

func TestMemoryCounterStore_Concurrent(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Increment(ctx, "shared", windowNow, time.Minute)
		}()
	}
	wg.Wait()

	count, err := store.Increment(ctx, "shared", windowNow, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(51), count)
}

func newMiniredisStore(t *testing.T) (*RedisCounterStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCounterStore(client, "test"), mr
}

func TestRedisCounterStore(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()
	mr.SetTime(windowNow)
	windowStart := windowNow.Truncate(time.Minute)

	for i := int64(1); i <= 3; i++ {
		count, err := store.Increment(ctx, "ip:192.0.2.1", windowStart, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	key := fmt.Sprintf("test:ip:192.0.2.1:%d", windowStart.Unix())
	assert.True(t, mr.Exists(key))
	assert.Equal(t, "3", mustGet(t, mr, key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	count, err := store.Increment(ctx, "ip:192.0.2.1", windowStart.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists(key))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestRedisCounterStore_WithMiddleware(t *testing.T) {
	store, mr := newMiniredisStore(t)
	mr.SetTime(windowNow)

	m := newTestRateLimiter(store, map[RouteClass]Limit{
		ClassAuth: {Requests: 3, Window: time.Hour},
	}, nil)

	codes := sendRequests(m.Handler(okHandler()), 6, "/auth/sign-up", "203.0.113.7:1")
	assert.Equal(t, []int{200, 200, 200, 429, 429, 429}, codes)
}

func TestRedisCounterStore_Unavailable(t *testing.T) {
	store, mr := newMiniredisStore(t)
	mr.Close()

	_, err := store.Increment(context.Background(), "k", windowNow, time.Minute)
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		trust   bool
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:5555", false, "192.0.2.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.2:1", true, "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.6"}, "10.0.0.2:1", true, "203.0.113.6"},
		{"forwarded ignored", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "10.0.0.2:1", false, "10.0.0.2"},
		{"real ip ignored", map[string]string{"X-Real-IP": "203.0.113.6"}, "10.0.0.2:1", false, "10.0.0.2"},
		{"no port", nil, "192.0.2.7", false, "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(r, tt.trust))
		})
	}
}

func TestRateLimit_ForwardedHeaders(t *testing.T) {
	limits := map[RouteClass]Limit{ClassAuth: {Requests: 2, Window: time.Minute}}
	send := func(handler http.Handler, forwarded string) int {
		r := httptest.NewRequest(http.MethodGet, "/auth/sign-in", nil)
		r.RemoteAddr = "198.51.100.1:4000"
		r.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	t.Run("rotating the header does not reset the window by default", func(t *testing.T) {
		handler := newTestRateLimiter(NewMemoryCounterStore(), limits, nil).Handler(okHandler())
		var codes []int
		for i := 0; i < 4; i++ {
			codes = append(codes, send(handler, fmt.Sprintf("203.0.113.%d", i)))
		}
		assert.Equal(t, []int{200, 200, 429, 429}, codes)
	})

	t.Run("trusted proxy", func(t *testing.T) {
		handler := newTestRateLimiter(NewMemoryCounterStore(), limits, nil).TrustProxyHeaders(true).Handler(okHandler())
		assert.Equal(t, http.StatusOK, send(handler, "203.0.113.1"))
		assert.Equal(t, http.StatusOK, send(handler, "203.0.113.1"))
		assert.Equal(t, http.StatusTooManyRequests, send(handler, "203.0.113.1"))
		assert.Equal(t, http.StatusOK, send(handler, "203.0.113.2"))
	})
}
