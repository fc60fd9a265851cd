package leases

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/grovescm/grove/v2/src/internal/dlock"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
)

var _ Leaser = &etcdLeaser{}

// etcdLeaser grants leases across processes, backed by etcd.  Each lease is
// a dlock on prefix/key; losing the etcd session loses the lease.
type etcdLeaser struct {
	client *etcd.Client
	prefix string
}

// NewEtcdLeaser returns a Leaser that coordinates through etcd under prefix.
func NewEtcdLeaser(client *etcd.Client, prefix string) Leaser {
	return &etcdLeaser{client: client, prefix: prefix}
}

func (l *etcdLeaser) Acquire(ctx context.Context, key string) (Lease, error) {
	lock := dlock.NewDLock(l.client, l.prefix+"/"+key)
	lockCtx, err := lock.Lock(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "acquiring lease on %q", key)
	}
	return &etcdLease{lock: lock, lockCtx: lockCtx}, nil
}

func (l *etcdLeaser) TryAcquire(ctx context.Context, key string) (Lease, error) {
	lock := dlock.NewDLock(l.client, l.prefix+"/"+key)
	lockCtx, err := lock.TryLock(ctx)
	if err != nil {
		if errors.Is(err, concurrency.ErrLocked) {
			return nil, errors.Wrapf(groveerr.ErrLeaseUnavailable, "key %q", key)
		}
		return nil, errors.Wrapf(err, "acquiring lease on %q", key)
	}
	return &etcdLease{lock: lock, lockCtx: lockCtx}, nil
}

type etcdLease struct {
	lock    dlock.DLock
	lockCtx context.Context
}

func (x *etcdLease) Release(ctx context.Context) error {
	lost := x.lockCtx.Err() != nil
	if err := x.lock.Unlock(ctx); err != nil {
		return err
	}
	if lost {
		return errors.EnsureStack(groveerr.ErrLeaseLost)
	}
	return nil
}
