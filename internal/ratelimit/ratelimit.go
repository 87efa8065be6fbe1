// Package ratelimit implements the fixed-window per-sender counter guarding the relay.
//
// A window opens on the first request from a key and lasts Window. Within it at most
// Limit requests are admitted; once the window has passed the next request opens a
// fresh one with a count of 1.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// Record is the state kept per key.
type Record struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"resetAt"`
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// Remaining requests in the current window.
func (d Decision) Remaining() int {
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// RetryAfter is how long a denied caller should wait.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || d.ResetAt.Before(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter performs an atomic check-and-increment for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Peek(ctx context.Context, key string) (Record, bool, error)
	Reset(ctx context.Context, key string) error
}

// NormalizeKey lowercases sender addresses so checksum and lowercase forms share a window.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
