package devserver

import (
	"net"
	"net/http"
	"sync"
	"time"

	"argus/internal/logging"
	"argus/internal/stream"

	"golang.org/x/time/rate"
)

// RateLimitMessage is the 429 body text after the error prefix.
const RateLimitMessage = "too many requests"

// keyedLimiter keeps one token bucket per client address.
type keyedLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// newKeyedLimiter allows perMinute requests per client. perMinute <= 0
// disables limiting.
func newKeyedLimiter(perMinute, burst int) *keyedLimiter {
	if perMinute <= 0 {
		return &keyedLimiter{limit: rate.Inf}
	}
	if burst <= 0 {
		burst = 1
	}
	return &keyedLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (k *keyedLimiter) allow(key string) bool {
	if k.limit == rate.Inf {
		return true
	}
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}

func (k *keyedLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !k.allow(key) {
			logging.DevServerWarn("rate limit exceeded for %s on %s", key, r.URL.Path)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(stream.ErrorPrefix + RateLimitMessage))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey uses X-Forwarded-For behind a proxy, otherwise the remote host.
func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
