// Package leases provides the per-key mutual exclusion that keeps at most
// one derivation in flight for the same (type, changeset) pair.
package leases

import (
	"context"
)

// Lease is a held single-flight lease.
type Lease interface {
	// Release releases the lease.  It returns groveerr.ErrLeaseLost if
	// the lease expired or was revoked before release.
	Release(ctx context.Context) error
}

// Leaser grants leases on opaque string keys.
type Leaser interface {
	// Acquire acquires the lease on key, blocking until it is available
	// or ctx is done.  A caller that blocked here should re-check its
	// memoization store after acquiring: the previous holder usually
	// persisted the result it was waiting for.
	Acquire(ctx context.Context, key string) (Lease, error)
	// TryAcquire is like Acquire but returns groveerr.ErrLeaseUnavailable
	// instead of blocking.
	TryAcquire(ctx context.Context, key string) (Lease, error)
}
