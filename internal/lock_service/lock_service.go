package lock_service

import (
	"context"
	"fmt"
	"time"
)

// Lease is an advisory, single-holder write permission for one filename.
type Lease struct {
	Filename   string
	ClientID   string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Remaining is the time left before the lease lapses on its own.
func (l Lease) Remaining(now time.Time) time.Duration {
	if d := l.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// LockHeldError is returned when another client holds the lease. It matches
// ErrLockHeld with errors.Is.
type LockHeldError struct {
	Lease Lease
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("%s: %q held by %s until %s", ErrLockHeld, e.Lease.Filename, e.Lease.ClientID, e.Lease.ExpiresAt.UTC().Format(time.RFC3339))
}

func (e *LockHeldError) Is(target error) bool {
	return target == ErrLockHeld
}

// LockService is the per-filename write lease table. A request for a name
// held by a different client fails immediately; nothing ever queues.
type LockService interface {
	// Acquire grants or refreshes the lease for clientID.
	Acquire(ctx context.Context, filename, clientID string) (Lease, error)

	// Release drops the lease if clientID holds it and none of its guarded
	// calls is still running.
	Release(filename, clientID string) bool

	// Guard acquires the lease for the lifetime of one mutating call. The
	// returned release func must run on every exit path. Concurrent guards
	// of one client share the lease until the last of them releases.
	Guard(ctx context.Context, filename, clientID string) (func(), error)

	Holder(filename string) (Lease, bool)
	Len() int
}
