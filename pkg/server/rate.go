package server

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const rateWindow = time.Minute

// RateLimiter caps how many commands a session may issue per minute.
// Counters live in a TTL cache keyed by session id, so a session's
// window resets on its own without bookkeeping and counters for closed
// sessions age out.
type RateLimiter struct {
	limit    int
	counters *cache.Cache
}

// NewRateLimiter creates a limiter allowing limit commands per session
// per minute. A limit of zero disables limiting and returns nil.
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:    limit,
		counters: cache.New(rateWindow, 2*rateWindow),
	}
}

// Allow reports whether the session may issue another command in the
// current window.
func (rl *RateLimiter) Allow(sessionID string) bool {
	if err := rl.counters.Add(sessionID, 1, rateWindow); err == nil {
		return true
	}
	n, err := rl.counters.IncrementInt(sessionID, 1)
	if err != nil {
		// Entry expired between Add and Increment; start a new window.
		rl.counters.Set(sessionID, 1, rateWindow)
		return true
	}
	return n <= rl.limit
}
