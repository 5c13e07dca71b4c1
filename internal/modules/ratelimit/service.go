// README: Rolling-window and lifetime-cap limiters; backend failures allow the action.
package ratelimit

import (
	"context"
	"log"
	"time"

	"pulse/internal/types"
)

// CounterStore is the authoritative event counter. The local limiter state
// is only an optimistic view over it.
type CounterStore interface {
	// CountSince returns how many events the subject has recorded for the
	// resource at or after the given instant.
	CountSince(ctx context.Context, subject types.ID, res Resource, since time.Time) (int, error)
	// Record persists one event occurrence at the given instant.
	Record(ctx context.Context, subject types.ID, res Resource, at time.Time) error
}

// Limiter enforces max events per rolling window for one resource.
//
// When the counter store is unreachable the limiter fails open: blocking
// every legitimate user for the duration of a backend outage costs more
// than the few extra actions a capped user could slip through.
type Limiter struct {
	res    Resource
	max    int
	window time.Duration
	store  CounterStore
	now    func() time.Time
}

func NewLimiter(res Resource, max int, window time.Duration, store CounterStore) *Limiter {
	return &Limiter{res: res, max: max, window: window, store: store, now: time.Now}
}

// CheckAllowed reports whether the subject may perform one more action, and
// how many remain in the current window.
func (l *Limiter) CheckAllowed(ctx context.Context, subject types.ID) Decision {
	since := l.now().Add(-l.window)
	count, err := l.store.CountSince(ctx, subject, l.res, since)
	if err != nil {
		log.Printf("ratelimit: count %s for %s failed, allowing: %v", l.res, subject, err)
		return Decision{Allowed: true, Remaining: l.max}
	}
	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count < l.max, Remaining: remaining}
}

// RecordEvent persists one occurrence. A false return means the event was
// not recorded; callers treat that as non-fatal and rely on the next
// server-side check to reconcile.
func (l *Limiter) RecordEvent(ctx context.Context, subject types.ID) bool {
	if err := l.store.Record(ctx, subject, l.res, l.now()); err != nil {
		log.Printf("ratelimit: record %s for %s failed: %v", l.res, subject, err)
		return false
	}
	return true
}

// Cap enforces a lifetime total per subject, with no time window. Used for
// the per-interaction message allowance.
type Cap struct {
	res   Resource
	max   int
	store CounterStore
	now   func() time.Time
}

func NewCap(res Resource, max int, store CounterStore) *Cap {
	return &Cap{res: res, max: max, store: store, now: time.Now}
}

func (c *Cap) CheckAllowed(ctx context.Context, subject types.ID) Decision {
	count, err := c.store.CountSince(ctx, subject, c.res, time.Time{})
	if err != nil {
		log.Printf("ratelimit: count %s for %s failed, allowing: %v", c.res, subject, err)
		return Decision{Allowed: true, Remaining: c.max}
	}
	remaining := c.max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count < c.max, Remaining: remaining}
}

func (c *Cap) RecordEvent(ctx context.Context, subject types.ID) bool {
	if err := c.store.Record(ctx, subject, c.res, c.now()); err != nil {
		log.Printf("ratelimit: record %s for %s failed: %v", c.res, subject, err)
		return false
	}
	return true
}

// Max returns the configured allowance, for remaining/max style displays.
func (c *Cap) Max() int { return c.max }
