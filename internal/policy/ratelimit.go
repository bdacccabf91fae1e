package policy

import (
	"sync"
	"time"
)

// Cooldown is how long a client identity stays throttled after it
// triggers a fresh probe.
const Cooldown = 10 * time.Second

// RateLimiter tracks recently-throttled client identities. It gates fresh
// probes only; cached responses are never rate limited. The table is the
// single source of truth for concurrent requests, so every check-and-set
// holds the mutex.
type RateLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	entries  map[string]*limitEntry
}

type limitEntry struct {
	expiresAt time.Time
	timer     *time.Timer
}

// NewRateLimiter creates a limiter with the standard cool-down.
func NewRateLimiter() *RateLimiter {
	return newRateLimiter(Cooldown)
}

func newRateLimiter(cooldown time.Duration) *RateLimiter {
	return &RateLimiter{
		cooldown: cooldown,
		entries:  make(map[string]*limitEntry),
	}
}

// TryAcquire reports whether identity may trigger a fresh probe right
// now. On success the identity is throttled for the cool-down window;
// removal is scheduled, there is no early release.
func (l *RateLimiter) TryAcquire(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if e, ok := l.entries[identity]; ok && now.Before(e.expiresAt) {
		return false
	}

	e := &limitEntry{expiresAt: now.Add(l.cooldown)}
	e.timer = time.AfterFunc(l.cooldown, func() { l.remove(identity, e) })
	l.entries[identity] = e
	return true
}

// IsThrottled is a read-only check for identity.
func (l *RateLimiter) IsThrottled(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identity]
	return ok && time.Now().Before(e.expiresAt)
}

// remove deletes the entry only if it is still the one the timer was
// armed for, so a re-acquired identity is not dropped by a stale timer.
func (l *RateLimiter) remove(identity string, e *limitEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.entries[identity]; ok && current == e {
		delete(l.entries, identity)
	}
}

// Close stops all pending expiry timers. Entries are dropped immediately;
// intended for process shutdown and tests.
func (l *RateLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for identity, e := range l.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(l.entries, identity)
	}
}
