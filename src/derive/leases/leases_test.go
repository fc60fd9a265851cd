package leases

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
	"github.com/grovescm/grove/v2/src/internal/pctx"
	"github.com/grovescm/grove/v2/src/internal/require"
)

func TestLocalTryAcquire(t *testing.T) {
	ctx := pctx.TestContext(t)
	l := NewLocalLeaser()

	lease, err := l.TryAcquire(ctx, "k")
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, "k")
	require.YesError(t, err)
	require.ErrorIs(t, err, groveerr.ErrLeaseUnavailable)

	// Other keys are independent.
	other, err := l.TryAcquire(ctx, "k2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	lease, err = l.TryAcquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestLocalAcquireBlocks(t *testing.T) {
	ctx := pctx.TestContext(t)
	l := NewLocalLeaser()

	lease, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		l2, err := l.Acquire(ctx, "k")
		if err == nil {
			_ = l2.Release(ctx)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while the lease was held")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, lease.Release(ctx))
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not return after release")
	}
}

func TestLocalAcquireCancellation(t *testing.T) {
	ctx := pctx.TestContext(t)
	l := NewLocalLeaser()

	lease, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	defer lease.Release(ctx) //nolint:errcheck

	cctx, cancel := pctx.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := l.Acquire(cctx, "k")
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		require.YesError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire did not return")
	}
}

func TestLocalReleaseIdempotent(t *testing.T) {
	ctx := pctx.TestContext(t)
	l := NewLocalLeaser()

	lease, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	// The stale lease's second release must not free a successor's lease.
	next, err := l.TryAcquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	_, err = l.TryAcquire(ctx, "k")
	require.ErrorIs(t, err, groveerr.ErrLeaseUnavailable)
	require.NoError(t, next.Release(ctx))
}

func TestLocalSingleFlight(t *testing.T) {
	ctx := pctx.TestContext(t)
	l := NewLocalLeaser()

	var inFlight, maxInFlight atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			lease, err := l.Acquire(egCtx, "k")
			if err != nil {
				return err
			}
			n := inFlight.Add(1)
			for {
				cur := maxInFlight.Load()
				if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return errors.EnsureStack(lease.Release(egCtx))
		})
	}
	require.NoError(t, eg.Wait())
	require.Equal(t, int64(1), maxInFlight.Load())
}
