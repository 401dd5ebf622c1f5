// Package lock provides the advisory single-flight lock shared by scheduled and manual sync passes.
package lock

import (
	"context"
	"errors"
	"time"
)

// DefaultStaleAfter is the age at which a held lock is treated as abandoned
const DefaultStaleAfter = 10 * time.Minute

// DefaultKey names the lock in shared backends
const DefaultKey = "social-bridge:sync-lock"

// ErrNotHolder is returned when releasing a lock owned by someone else
var ErrNotHolder = errors.New("lock is held by another owner")

// Holder describes the current lock owner
type Holder struct {
	Owner      string
	AcquiredAt time.Time
}

// Age returns how long the holder has held the lock at now
func (h Holder) Age(now time.Time) time.Duration {
	return now.Sub(h.AcquiredAt)
}

// Service is a poll-and-check lock. Callers never block waiting for it.
type Service interface {
	// TryAcquire takes the lock for owner. A stale lock is cleared first.
	TryAcquire(ctx context.Context, owner string) (bool, error)
	// Release frees the lock if owner still holds it
	Release(ctx context.Context, owner string) error
	// IsStale reports whether a lock is held and has reached the stale age at now
	IsStale(ctx context.Context, now time.Time) (bool, error)
	// Holder returns the current holder, false when the lock is free
	Holder(ctx context.Context) (Holder, bool, error)
}

func staleAt(h Holder, now time.Time, staleAfter time.Duration) bool {
	return h.Age(now) >= staleAfter
}
