package http

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type rateLimitResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// AuthMiddleware requires the configured API token via Authorization bearer
// or X-API-KEY header. An empty token disables auth.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if strings.TrimSpace(token) == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}
		if !isAuthorized(r, token) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAuthorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token {
		return true
	}
	return r.Header.Get("X-API-KEY") == token
}

type rateLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	entries     map[string]*rateEntry
	lastCleanup time.Time
}

type rateEntry struct {
	count int
	reset time.Time
}

// RateLimitMiddleware applies a per-IP fixed-window request limit. A limit of
// zero disables it.
func RateLimitMiddleware(limit int, window time.Duration, next http.Handler) http.Handler {
	if limit <= 0 || window <= 0 {
		return next
	}
	limiter := &rateLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*rateEntry),
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}
		key := clientIP(r)
		allowed, retryAfter, remaining := limiter.allow(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		if remaining >= 0 {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !allowed {
			seconds := int(retryAfter.Round(time.Second).Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSON(w, http.StatusTooManyRequests, rateLimitResponse{
				Error:      "rate limit exceeded",
				RetryAfter: seconds,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *rateLimiter) allow(key string) (bool, time.Duration, int) {
	if rl == nil || rl.limit <= 0 || rl.window <= 0 {
		return true, 0, -1
	}
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry := rl.entries[key]
	if entry == nil || now.After(entry.reset) {
		entry = &rateEntry{count: 0, reset: now.Add(rl.window)}
		rl.entries[key] = entry
	}

	if entry.count >= rl.limit {
		rl.cleanupLocked(now)
		retryAfter := time.Until(entry.reset)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, 0
	}

	entry.count++
	remaining := rl.limit - entry.count
	rl.cleanupLocked(now)
	return true, 0, remaining
}

func (rl *rateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < rl.window {
		return
	}
	for key, entry := range rl.entries {
		if now.After(entry.reset) {
			delete(rl.entries, key)
		}
	}
	rl.lastCleanup = now
}

func clientIP(r *http.Request) string {
	if r == nil {
		return "unknown"
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
