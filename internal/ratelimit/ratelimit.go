// Package ratelimit implements a per-client sliding-window request limiter.
package ratelimit

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"golang.org/x/time/rate"
)

// ErrLimitExceeded is returned when a client used up its window.
var ErrLimitExceeded = errors.New("rate limit exceeded")

const unknownClient = "unknown"

// Limiter admits at most limit requests per client key within any window-long interval.
// Check and record happen in one critical section.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients *simplelru.LRU
	global  *rate.Limiter
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithGlobalLimit adds a process-wide token bucket checked after the per-client window.
// A non-positive rps disables it.
func WithGlobalLimit(rps float64, burst int) Option {
	return func(l *Limiter) {
		if rps <= 0 {
			return
		}

		if burst < 1 {
			burst = 1
		}

		l.global = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a limiter tracking at most maxClients keys; the least recently
// seen key is evicted when the bound is reached.
func New(limit int, window time.Duration, maxClients int, opts ...Option) (*Limiter, error) {
	if limit < 1 {
		return nil, errors.New("rate limit must be positive")
	}

	if window <= 0 {
		return nil, errors.New("rate window must be positive")
	}

	clients, err := simplelru.NewLRU(maxClients, nil)
	if err != nil {
		return nil, err
	}

	l := &Limiter{
		limit:   limit,
		window:  window,
		clients: clients,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Admit records a request for key and reports whether it is within the limit.
// A denied request is not recorded.
func (l *Limiter) Admit(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	var hits []time.Time
	if v, ok := l.clients.Get(key); ok {
		hits = prune(v.([]time.Time), now.Add(-l.window))
	}

	if len(hits) >= l.limit {
		l.clients.Add(key, hits)

		return false
	}

	if l.global != nil && !l.global.AllowN(now, 1) {
		l.clients.Add(key, hits)

		return false
	}

	l.clients.Add(key, append(hits, now))

	return true
}

// Limit returns the per-client request budget.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the sliding window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Remaining returns how many requests key may still make in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.clients.Peek(key)
	if !ok {
		return l.limit
	}

	return l.limit - len(prune(v.([]time.Time), l.now().Add(-l.window)))
}

// Prune drops keys without a request inside the current window and returns how many were dropped.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	dropped := 0

	for _, k := range l.clients.Keys() {
		v, ok := l.clients.Peek(k)
		if !ok {
			continue
		}

		hits := v.([]time.Time)
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			l.clients.Remove(k)
			dropped++
		}
	}

	return dropped
}

// Len returns the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.clients.Len()
}

// prune keeps the timestamps strictly after cutoff. hits is in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}

	if i == 0 {
		return hits
	}

	out := make([]time.Time, len(hits)-i, len(hits)-i+1)
	copy(out, hits[i:])

	return out
}

// ClientKey derives the rate-limit key for r: the first X-Forwarded-For entry,
// then the peer address, then a shared "unknown" bucket.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}

		return r.RemoteAddr
	}

	return unknownClient
}
