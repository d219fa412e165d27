package realtime

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// attemptLimiter bounds connection attempts per identity so a
// reconnect-looping or abusive client cannot churn the gateway. Excess
// attempts are rejected with a retry signal, never silently dropped.
type attemptLimiter struct {
	limiters map[string]*attemptEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

type attemptEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newAttemptLimiter starts a cleanup goroutine that runs until done is
// closed; the gateway closes it on shutdown.
func newAttemptLimiter(attemptsPerSecond float64, burst int, done <-chan struct{}) *attemptLimiter {
	al := &attemptLimiter{
		limiters: make(map[string]*attemptEntry),
		rate:     rate.Limit(attemptsPerSecond),
		burst:    burst,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				al.cleanup(5 * time.Minute)
			case <-done:
				return
			}
		}
	}()

	return al
}

// cleanup drops identities idle longer than olderThan.
func (al *attemptLimiter) cleanup(olderThan time.Duration) {
	al.mu.Lock()
	defer al.mu.Unlock()

	for key, e := range al.limiters {
		if time.Since(e.lastSeen) > olderThan {
			delete(al.limiters, key)
		}
	}
}

// Allow checks if an attempt by the given identity is allowed.
func (al *attemptLimiter) Allow(key string) bool {
	al.mu.Lock()
	defer al.mu.Unlock()

	e, exists := al.limiters[key]
	if !exists {
		limiter := rate.NewLimiter(al.rate, al.burst)
		al.limiters[key] = &attemptEntry{limiter: limiter, lastSeen: time.Now()}
		return limiter.Allow()
	}

	e.lastSeen = time.Now()
	return e.limiter.Allow()
}
