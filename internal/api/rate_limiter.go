package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// apiRateLimiter keeps one token bucket per client and forgets clients idle
// for longer than idleTTL.
type apiRateLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	clients   map[string]*clientLimiter
	now       func() time.Time
	onLimited func()
}

func newAPIRateLimiter(requestsPerSec float64, burst int) *apiRateLimiter {
	if requestsPerSec <= 0 || burst <= 0 {
		return nil
	}

	return &apiRateLimiter{
		rps:     rate.Limit(requestsPerSec),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (l *apiRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			if l.onLimited != nil {
				l.onLimited()
			}
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *apiRateLimiter) allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTTL {
		for candidate, client := range l.clients {
			if now.Sub(client.lastSeen) > l.idleTTL {
				delete(l.clients, candidate)
			}
		}
		l.lastSweep = now
	}

	client, exists := l.clients[key]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = client
	}
	client.lastSeen = now

	return client.limiter.AllowN(now, 1)
}

func (l *apiRateLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// clientKey buckets by ingest key when one is sent, so every browser profile
// sharing a NAT address is not throttled as one client. RealIP middleware has
// already resolved forwarded addresses into RemoteAddr.
func clientKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(ingestKeyHeader)); key != "" {
		return "key:" + key
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
