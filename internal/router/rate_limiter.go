package router

import (
	"sync"
	"time"
)

const (
	rateLimitWindow   = time.Minute
	rateLimitMessages = 100
)

// RateLimiter tracks per-user message rates over a fixed window.
type RateLimiter struct {
	mu    sync.Mutex
	users map[string]*userWindow
}

type userWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		users: make(map[string]*userWindow),
	}
}

// Allow reports whether userID may send another message in the current
// window (100 messages per minute).
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.users[userID]
	if !exists || now.Sub(window.windowStart) >= rateLimitWindow {
		rl.users[userID] = &userWindow{count: 1, windowStart: now}
		return true
	}

	if window.count >= rateLimitMessages {
		return false
	}
	window.count++
	return true
}

// Forget drops the tracking state for a disconnected user.
func (rl *RateLimiter) Forget(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.users, userID)
}

// Cleanup removes windows idle for longer than five windows; called
// periodically to keep the map from growing with departed users.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, window := range rl.users {
		if now.Sub(window.windowStart) > 5*rateLimitWindow {
			delete(rl.users, userID)
		}
	}
}
