package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key, typically a client IP.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*client
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

// New returns a limiter granting rps requests per second with the given
// burst to every key. Keys idle for longer than ten minutes are forgotten.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		m:       make(map[string]*client),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether one request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.m[key]
	if !ok {
		l.evictIdle(now)
		c = &client{lim: rate.NewLimiter(l.rps, l.burst)}
		l.m[key] = c
	}
	c.lastSeen = now
	return c.lim.AllowN(now, 1)
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) evictIdle(now time.Time) {
	for k, c := range l.m {
		if now.Sub(c.lastSeen) > l.idleTTL {
			delete(l.m, k)
		}
	}
}
