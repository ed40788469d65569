package rate

import (
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

type entry struct {
	lim    *xrate.Limiter
	limit  int
	window time.Duration
	seen   time.Time
}

// Limiter keeps one token bucket per key. A key allows limit requests per
// window, refilled evenly.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	lastGC  time.Time
	now     func() time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{entries: map[string]*entry{}, lastGC: time.Now().UTC(), now: func() time.Time { return time.Now().UTC() }}
}

func (l *Limiter) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 || window <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastGC) > time.Minute {
		for k, e := range l.entries {
			if now.Sub(e.seen) > 3*e.window {
				delete(l.entries, k)
			}
		}
		l.lastGC = now
	}
	e, ok := l.entries[key]
	if !ok || e.limit != limit || e.window != window {
		e = &entry{lim: xrate.NewLimiter(xrate.Every(window/time.Duration(limit)), limit), limit: limit, window: window}
		l.entries[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}
