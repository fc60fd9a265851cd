// Package dlock implements a distributed lock on top of etcd.
package dlock

import (
	"context"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/log"
	"github.com/grovescm/grove/v2/src/internal/pctx"
)

// The session TTL bounds how long a dead node keeps the lock.  etcd's
// default of 60s is too long for single-flight derivation.
const sessionTTL = 15

// DLock is a handle to a distributed lock.
type DLock interface {
	// Lock acquires the distributed lock, blocking if necessary.  If the
	// lock is acquired, it returns a context that should be used in any
	// subsequent blocking requests, so that if you lose the lock, the
	// requests get cancelled correctly.
	Lock(context.Context) (context.Context, error)
	// TryLock is like Lock, but returns an error if the lock is already
	// locked.
	TryLock(context.Context) (context.Context, error)
	// Unlock releases the distributed lock.
	Unlock(context.Context) error
	// IsLocked returns whether this handle currently holds the lock.
	IsLocked() bool
}

type etcdImpl struct {
	client *etcd.Client
	prefix string

	session *concurrency.Session
	mutex   *concurrency.Mutex
}

// NewDLock returns a handle to the distributed lock on prefix.  The lock is
// not held until Lock or TryLock succeeds.
func NewDLock(client *etcd.Client, prefix string) DLock {
	return &etcdImpl{
		client: client,
		prefix: prefix,
	}
}

func (d *etcdImpl) Lock(ctx context.Context) (_ context.Context, retErr error) {
	return d.lock(ctx, func(m *concurrency.Mutex) error { return m.Lock(ctx) }, "DLock.Lock")
}

func (d *etcdImpl) TryLock(ctx context.Context) (_ context.Context, retErr error) {
	return d.lock(ctx, func(m *concurrency.Mutex) error { return m.TryLock(ctx) }, "DLock.TryLock")
}

func (d *etcdImpl) lock(ctx context.Context, acquire func(*concurrency.Mutex) error, spanName string) (_ context.Context, retErr error) {
	ctx = pctx.Child(ctx, "", pctx.WithFields(zap.String("withLock", d.prefix)))
	defer log.Span(ctx, spanName)(log.Errorp(&retErr))

	session, err := concurrency.NewSession(d.client, concurrency.WithContext(ctx), concurrency.WithTTL(sessionTTL))
	if err != nil {
		return nil, errors.EnsureStack(err)
	}

	mutex := concurrency.NewMutex(session, d.prefix)
	if err := acquire(mutex); err != nil {
		return nil, errors.EnsureStack(err)
	}
	start := time.Now()
	log.Debug(ctx, "acquired lock ok")

	ctx, cancel := pctx.WithCancel(pctx.Child(ctx, "", pctx.WithFields(zap.Bool("locked", true))))
	go func() {
		select {
		case <-ctx.Done():
			log.Debug(ctx, "lock's context is done", zap.Error(context.Cause(ctx)), zap.Duration("lockLifetime", time.Since(start)))
		case <-session.Done():
			log.Debug(ctx, "lock's session is done; cancelling associated context", zap.Duration("lockLifetime", time.Since(start)))
			cancel()
		}
	}()

	d.session = session
	d.mutex = mutex
	return ctx, nil
}

func (d *etcdImpl) Unlock(ctx context.Context) (retErr error) {
	defer log.Span(ctx, "DLock.Unlock", zap.String("prefix", d.prefix))(log.Errorp(&retErr))

	if d.mutex == nil {
		return nil
	}
	if err := d.mutex.Unlock(ctx); err != nil {
		return errors.EnsureStack(err)
	}
	if err := d.session.Close(); err != nil {
		return errors.EnsureStack(err)
	}
	d.session = nil
	d.mutex = nil
	log.Debug(ctx, "relinquished lock ok", zap.String("prefix", d.prefix))
	return nil
}

func (d *etcdImpl) IsLocked() bool {
	if d.session == nil {
		return false
	}
	select {
	case <-d.session.Done():
		return false
	default:
		return true
	}
}
