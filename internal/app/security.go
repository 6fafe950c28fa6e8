package app

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"testprep/internal/app/apiresp"
	"testprep/internal/app/observability"
)

const csrfCookieName = "testprep_csrf"
const csrfHeaderName = "X-CSRF-Token"

// Past this many live buckets, Allow drops expired ones before admitting.
const rateStorePruneSize = 4096

type rateBucket struct {
	Count      int
	WindowEnds time.Time
}

type IPRateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	store  map[string]rateBucket
}

func NewIPRateLimiter(max int, window time.Duration) *IPRateLimiter {
	if max <= 0 {
		max = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	return &IPRateLimiter{
		max:    max,
		window: window,
		store:  make(map[string]rateBucket),
	}
}

func (l *IPRateLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.store) > rateStorePruneSize {
		for k, b := range l.store {
			if now.After(b.WindowEnds) {
				delete(l.store, k)
			}
		}
	}

	b := l.store[key]
	if now.After(b.WindowEnds) {
		b = rateBucket{Count: 0, WindowEnds: now.Add(l.window)}
	}
	if b.Count >= l.max {
		l.store[key] = b
		return false
	}
	b.Count++
	l.store[key] = b
	return true
}

// rateKey buckets by client and route class. Session and test paths embed
// per-resource UUIDs; keying on the raw path would mint a fresh bucket per
// session and let a client sidestep the limit, so ids collapse to {id}.
func rateKey(r *http.Request) string {
	ip := strings.TrimSpace(r.RemoteAddr)
	return ip + "|" + r.Method + "|" + observability.NormalizedPath(r.URL.Path)
}

func RateLimitMiddleware(l *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(rateKey(r)) {
				apiresp.WriteErrorCode(w, r, http.StatusTooManyRequests, apiresp.CodeRateLimited, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFMiddleware double-submit-checks cookie-authenticated browser mutations.
// Requests carrying a bearer token have no ambient credential a cross-site
// page could ride on, so they pass through.
func CSRFMiddleware(enforced bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enforced {
				next.ServeHTTP(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if hasBearerToken(r) {
				next.ServeHTTP(w, r)
				return
			}

			c, err := r.Cookie(csrfCookieName)
			if err != nil || strings.TrimSpace(c.Value) == "" {
				apiresp.WriteErrorCode(w, r, http.StatusForbidden, apiresp.CodeCSRF, "csrf token missing")
				return
			}
			h := strings.TrimSpace(r.Header.Get(csrfHeaderName))
			if h == "" || h != c.Value {
				apiresp.WriteErrorCode(w, r, http.StatusForbidden, apiresp.CodeCSRF, "csrf token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasBearerToken(r *http.Request) bool {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	return len(h) > 7 && strings.EqualFold(h[:7], "Bearer ")
}
