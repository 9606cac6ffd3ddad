// Package ratelimit implements the fixed-window request counter that guards
// the export and page-browsing entry points.
//
// A window opens on the first request for a key and admits maxRequests
// requests until it resets. Bursts straddling a window boundary can therefore
// admit up to twice the quota; this is the accepted behaviour of a fixed
// window counter.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// SweepThreshold is the table size above which every check sweeps expired entries.
const SweepThreshold = 1000

// Quota is the per-operation request allowance.
type Quota struct {
	Operation   string
	MaxRequests int
	Window      time.Duration
}

// Default quotas for the inbound operations.
var (
	ExportQuota   = Quota{Operation: "export", MaxRequests: 30, Window: time.Minute}
	PageQuota     = Quota{Operation: "page", MaxRequests: 120, Window: time.Minute}
	EntitiesQuota = Quota{Operation: "entities", MaxRequests: 120, Window: time.Minute}
)

// Entry is the counter state for one key.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Expired reports whether the entry's window has elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ResetAt)
}

// RetryAfter returns the time until the window resets, never negative.
func (e *Entry) RetryAfter(now time.Time) time.Duration {
	d := e.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Decision is the result of a single check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter checks and counts a request against a key.
type Limiter interface {
	Check(ctx context.Context, key string, maxRequests int, window time.Duration) (Decision, error)
}

// LimitedError is returned when a caller exceeded its quota.
type LimitedError struct {
	Operation  string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Operation, e.RetryAfter.Round(time.Millisecond))
}

// Key combines the operation and the client identity.
func Key(operation, client string) string {
	return operation + ":" + client
}
