package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long the caller should wait before the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// InMemory is a fixed-window counter per key. Counters are process local
// and lost on restart; a denied attempt does not count against the window.
type InMemory struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	items  map[string]entry
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	count   int
	resetAt time.Time
}

type Option func(*InMemory)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *InMemory) { l.now = now }
}

// WithCleanup starts a goroutine that drops expired keys every interval.
// Call Stop to end it.
func WithCleanup(interval time.Duration) Option {
	return func(l *InMemory) {
		if interval > 0 {
			go l.cleanupLoop(interval)
		}
	}
}

func NewInMemory(limit int, window time.Duration, opts ...Option) *InMemory {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &InMemory{
		limit:  limit,
		window: window,
		items:  make(map[string]entry),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *InMemory) Allow(_ context.Context, key string) Decision {
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	curr, ok := l.items[key]
	if !ok || !now.Before(curr.resetAt) {
		curr = entry{resetAt: now.Add(l.window)}
	}

	allowed := curr.count < l.limit
	if allowed {
		curr.count++
	}
	l.items[key] = curr

	return Decision{
		Allowed:   allowed,
		Count:     curr.count,
		Limit:     l.limit,
		Remaining: l.limit - curr.count,
		ResetAt:   curr.resetAt,
	}
}

// Len reports how many keys are tracked.
func (l *InMemory) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Cleanup drops every key whose window has ended.
func (l *InMemory) Cleanup() {
	now := l.now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.items {
		if !now.Before(v.resetAt) {
			delete(l.items, k)
		}
	}
}

func (l *InMemory) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *InMemory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stop:
			return
		}
	}
}
