package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_UnlimitedGeneral(t *testing.T) {
	mw := NewRateLimitMiddleware(0, 1)
	handler := mw.Handler(okHandler())

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
}

func TestRateLimitMiddleware_LimitedLogin(t *testing.T) {
	mw := NewRateLimitMiddleware(0, 1)
	observer := &countingObserver{}
	handler := mw.WithObserver(observer).Handler(okHandler())

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, httptest.NewRequest(http.MethodPost, LoginPath, nil))
	assert.Equal(t, http.StatusOK, rec1.Code)

	// Burst of 1: the second immediate attempt has no token left.
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, LoginPath, nil))
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.Equal(t, "60", rec2.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"detail":"Too many requests","code":"RATE_LIMITED"}`, rec2.Body.String())
	assert.Equal(t, []string{"rate_limited"}, observer.outcomes)

	// Other routes keep working for the same client.
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusOK, rec3.Code)
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	handler := NewRateLimitMiddleware(0, 1).Handler(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodPost, LoginPath, nil)
		req.RemoteAddr = ip + ":40000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, ip)
	}
}

func TestRateLimitMiddleware_GeneralBudget(t *testing.T) {
	handler := NewRateLimitMiddleware(2, 10).Handler(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimitMiddleware_Configuration(t *testing.T) {
	mw := NewRateLimitMiddleware(-1, 0)
	assert.Equal(t, -1, mw.generalRPM)
	assert.Equal(t, 10, mw.loginRPM)
}

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

type countingObserver struct {
	outcomes []string
}

func (c *countingObserver) RecordLogin(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

func TestRateLimitMiddleware_SharedLimiter(t *testing.T) {
	shared := &stubLimiter{allowed: false}
	handler := NewRateLimitMiddleware(0, 100).WithSharedLoginLimiter(shared).Handler(okHandler())

	req := httptest.NewRequest(http.MethodPost, LoginPath, nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, []string{"login:10.1.2.3"}, shared.keys)
}

func TestRateLimitMiddleware_SharedLimiterFailure(t *testing.T) {
	shared := &stubLimiter{allowed: true, err: errors.New("connection refused")}
	handler := NewRateLimitMiddleware(0, 1).WithSharedLoginLimiter(shared).Handler(okHandler())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, LoginPath, nil))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, LoginPath, nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRateLimitMiddleware_IgnoresSpoofedForwardingHeaders(t *testing.T) {
	handler := NewRateLimitMiddleware(0, 2).Handler(okHandler())

	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, LoginPath, nil)
		req.RemoteAddr = "203.0.113.9:52000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.Equal(t, 18, limited)
}

func TestRateLimitMiddleware_TrustedProxyForwardsClient(t *testing.T) {
	shared := &stubLimiter{allowed: true}
	handler := NewRateLimitMiddleware(0, 10).
		WithClientIPResolver(NewClientIPResolver([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})).
		WithSharedLoginLimiter(shared).
		Handler(okHandler())

	req := httptest.NewRequest(http.MethodPost, LoginPath, nil)
	req.RemoteAddr = "10.0.0.2:8080"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"login:203.0.113.5"}, shared.keys)
}

func TestClientIPResolver(t *testing.T) {
	trusted := NewClientIPResolver([]netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
	})

	cases := []struct {
		name     string
		resolver *ClientIPResolver
		remote   string
		xff      string
		realIP   string
		want     string
	}{
		{"peer only", nil, "172.16.0.9:41000", "", "", "172.16.0.9"},
		{"untrusted peer ignores headers", nil, "203.0.113.9:41000", "1.2.3.4", "5.6.7.8", "203.0.113.9"},
		{"untrusted peer with trust list", trusted, "203.0.113.9:41000", "1.2.3.4", "", "203.0.113.9"},
		{"trusted peer uses real ip", trusted, "10.1.1.1:80", "", "198.51.100.4", "198.51.100.4"},
		{"spoofed leftmost hop is skipped", trusted, "10.1.1.1:80", "6.6.6.6, 198.51.100.4, 172.16.3.3", "", "198.51.100.4"},
		{"all hops trusted", trusted, "10.1.1.1:80", "10.2.2.2", "", "10.2.2.2"},
		{"malformed hop stops walk", trusted, "10.1.1.1:80", "junk, 10.2.2.2", "", "10.2.2.2"},
		{"ipv4 mapped peer", nil, "[::ffff:192.0.2.1]:443", "", "", "192.0.2.1"},
		{"missing remote", nil, "", "", "", "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			assert.Equal(t, tc.want, tc.resolver.ClientIP(req))
		})
	}
}
