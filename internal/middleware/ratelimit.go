package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"netmon-auth/internal/metrics"
	"netmon-auth/pkg/apierror"
)

const LoginPath = "/token"

// Limiter decides whether the client identified by key may make another
// request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type loginObserver interface {
	RecordLogin(outcome string)
}

type clientLimiter struct {
	general  *rate.Limiter
	login    *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware applies a per-IP budget to every request and a
// stricter one to login attempts. A shared Limiter may replace the
// in-process login budget.
type RateLimitMiddleware struct {
	generalRPM int
	loginRPM   int
	mu         sync.Mutex
	clients    map[string]*clientLimiter
	shared     Limiter
	observer   loginObserver
	clientIPs  *ClientIPResolver
	lastGC     time.Time
}

// NewRateLimitMiddleware builds the limiter. generalRPM <= 0 disables the
// general budget; loginRPM <= 0 falls back to 10 per minute.
func NewRateLimitMiddleware(generalRPM int, loginRPM int) *RateLimitMiddleware {
	if loginRPM <= 0 {
		loginRPM = 10
	}

	return &RateLimitMiddleware{
		generalRPM: generalRPM,
		loginRPM:   loginRPM,
		clients:    map[string]*clientLimiter{},
	}
}

// WithSharedLoginLimiter routes login budget checks through l.
func (m *RateLimitMiddleware) WithSharedLoginLimiter(l Limiter) *RateLimitMiddleware {
	m.shared = l
	return m
}

// WithClientIPResolver sets how callers are identified. Without one the
// budget is keyed on the connecting peer address.
func (m *RateLimitMiddleware) WithClientIPResolver(c *ClientIPResolver) *RateLimitMiddleware {
	m.clientIPs = c
	return m
}

// WithObserver reports rejected logins to o.
func (m *RateLimitMiddleware) WithObserver(o loginObserver) *RateLimitMiddleware {
	m.observer = o
	return m
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := m.clientIPs.ClientIP(r)
		limiter := m.getLimiter(clientIP)

		if limiter.general != nil && !limiter.general.Allow() {
			rejectRateLimited(w)
			return
		}

		if r.Method == http.MethodPost && r.URL.Path == LoginPath && !m.allowLogin(r.Context(), clientIP, limiter) {
			if m.observer != nil {
				m.observer.RecordLogin(metrics.LoginLimited)
			}
			rejectRateLimited(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) allowLogin(ctx context.Context, clientIP string, limiter *clientLimiter) bool {
	if m.shared == nil {
		return limiter.login.Allow()
	}

	allowed, err := m.shared.Allow(ctx, "login:"+clientIP)
	if err != nil {
		// Fall back to the local budget while the shared store is unavailable.
		slog.Warn("shared login limiter unavailable", "error", err)
		return limiter.login.Allow()
	}
	return allowed
}

func rejectRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	writeJSONError(w, http.StatusTooManyRequests, apierror.CodeRateLimited, "Too many requests")
}

func (m *RateLimitMiddleware) getLimiter(clientIP string) *clientLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists := m.clients[clientIP]; exists {
		limiter.lastSeen = time.Now()
		m.gcLocked()
		return limiter
	}

	created := &clientLimiter{
		login:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.loginRPM)), m.loginRPM),
		lastSeen: time.Now(),
	}
	if m.generalRPM > 0 {
		created.general = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.generalRPM)), m.generalRPM)
	}
	m.clients[clientIP] = created
	m.gcLocked()

	return created
}

// gcLocked drops idle clients once the table grows, at most once a minute.
func (m *RateLimitMiddleware) gcLocked() {
	if len(m.clients) < 1000 || time.Since(m.lastGC) < time.Minute {
		return
	}

	m.lastGC = time.Now()
	cutoff := m.lastGC.Add(-10 * time.Minute)
	for ip, limiter := range m.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}
