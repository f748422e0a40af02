package common

import (
	"log"
	"sync"
	"time"
)

// RateLimitStatus is the per-limit usage the venue reports on every correlated
// reply (ws-api responses carry a rateLimits array).
type RateLimitStatus struct {
	RateLimitType string `json:"rateLimitType"`
	Interval      string `json:"interval"`
	IntervalNum   int    `json:"intervalNum"`
	Limit         int    `json:"limit"`
	Count         int    `json:"count"`
}

// RateLimiter tracks request-weight usage as reported by the venue.
type RateLimiter struct {
	usedWeight    int
	limit         int
	lastUpdate    time.Time
	resetInterval time.Duration
	mu            sync.RWMutex
}

// NewRateLimiter creates a rate limiter.
// limit: maximum weight allowed per window (e.g. 6000 for the ws-api).
func NewRateLimiter(limit int, resetInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:         limit,
		resetInterval: resetInterval,
		lastUpdate:    time.Now(),
	}
}

// Update absorbs the rateLimits payload from a venue reply.
func (rl *RateLimiter) Update(statuses []RateLimitStatus) {
	for _, s := range statuses {
		if s.RateLimitType != "REQUEST_WEIGHT" {
			continue
		}

		rl.mu.Lock()
		rl.usedWeight = s.Count
		if s.Limit > 0 {
			rl.limit = s.Limit
		}
		rl.lastUpdate = time.Now()
		pct := float64(rl.usedWeight) / float64(rl.limit) * 100
		rl.mu.Unlock()

		if pct >= 95 {
			log.Printf("ratelimit: critical %d/%d (%.1f%%), approaching ban threshold", s.Count, s.Limit, pct)
		} else if pct >= 80 {
			log.Printf("ratelimit: warning %d/%d (%.1f%%)", s.Count, s.Limit, pct)
		}
	}
}

// Usage returns current usage information. Usage decays to zero once a full
// window passes without updates.
func (rl *RateLimiter) Usage() (used, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if time.Since(rl.lastUpdate) >= rl.resetInterval {
		return 0, rl.limit, 0
	}
	return rl.usedWeight, rl.limit, float64(rl.usedWeight) / float64(rl.limit) * 100
}

// ShouldDelay reports whether the caller should hold off non-essential requests.
func (rl *RateLimiter) ShouldDelay() bool {
	_, _, pct := rl.Usage()
	return pct >= 90
}
