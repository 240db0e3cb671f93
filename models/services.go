// forum/models/services.go
package models

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// --- Stateful Services ---

type RateLimiter struct {
	Mu       sync.RWMutex
	Limiters map[string]*rate.Limiter
	LastSeen map[string]time.Time

	every  time.Duration
	burst  int
	prune  time.Duration
	expire time.Duration
}

// NewRateLimiter creates a per-key token bucket limiter. Pruning of idle keys
// starts with Run.
func NewRateLimiter(every time.Duration, burst int, prune, expire time.Duration) *RateLimiter {
	return &RateLimiter{
		Limiters: make(map[string]*rate.Limiter),
		LastSeen: make(map[string]time.Time),
		every:    every,
		burst:    burst,
		prune:    prune,
		expire:   expire,
	}
}

// GetLimiter retrieves or creates a rate limiter for a given key (usually an IP).
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.Mu.Lock()
	defer rl.Mu.Unlock()
	limiter, exists := rl.Limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(rl.every), rl.burst)
		rl.Limiters[key] = limiter
	}
	rl.LastSeen[key] = time.Now()
	return limiter
}

// Allow is shorthand for GetLimiter(key).Allow().
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// Run prunes idle entries until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.prune)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

// cleanup removes entries not seen since now-expire.
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.Mu.Lock()
	defer rl.Mu.Unlock()
	cutoff := now.Add(-rl.expire)
	for key, lastSeen := range rl.LastSeen {
		if lastSeen.Before(cutoff) {
			delete(rl.Limiters, key)
			delete(rl.LastSeen, key)
		}
	}
}
