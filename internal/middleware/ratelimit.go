package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AccountHeader identifies the calling account on the task API.
const AccountHeader = "X-Account-ID"

type bucket struct {
	count int
	until time.Time
}

// RateLimit allows limit requests per window per account, falling back to
// the client IP for anonymous calls.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	var mu sync.Mutex
	buckets := make(map[string]*bucket)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			mu.Lock()
			now := time.Now()
			b, ok := buckets[key]
			if !ok || now.After(b.until) {
				b = &bucket{until: now.Add(per)}
				buckets[key] = b
			}
			if b.count >= limit {
				retry := int(time.Until(b.until).Seconds()) + 1
				mu.Unlock()
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			b.count++
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(AccountHeader)); id != "" {
		if _, err := strconv.ParseInt(id, 10, 64); err == nil {
			return "account:" + id
		}
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the best-effort client address for the request.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	}
	return r.RemoteAddr
}
