package server

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter rate-limits requests per client address. Entries idle for
// longer than staleAfter are pruned lazily.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	limit   rate.Limit
	burst   int
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const staleAfter = 3 * time.Hour

// newClientLimiter allows perHour requests per hour per client. A
// non-positive perHour disables limiting.
func newClientLimiter(perHour int) *clientLimiter {
	if perHour <= 0 {
		return &clientLimiter{}
	}
	return &clientLimiter{
		clients: make(map[string]*clientEntry),
		limit:   rate.Every(time.Hour / time.Duration(perHour)),
		burst:   perHour,
	}
}

func (l *clientLimiter) allow(client string) bool {
	if l.clients == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.clients[client]
	if !ok {
		if len(l.clients) > 1024 {
			l.pruneLocked(now)
		}
		entry = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

func (l *clientLimiter) pruneLocked(now time.Time) {
	for client, entry := range l.clients {
		if now.Sub(entry.lastSeen) > staleAfter {
			delete(l.clients, client)
		}
	}
}

// Middleware rejects over-limit requests with 429.
func (l *clientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r.RemoteAddr) {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
