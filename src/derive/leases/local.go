package leases

import (
	"context"
	"sync"

	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
)

var _ Leaser = &localLeaser{}

// localLeaser grants leases within a single process.  Waiters block on a
// channel that the holder closes on release.
type localLeaser struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocalLeaser returns a Leaser scoped to this process.
func NewLocalLeaser() Leaser {
	return &localLeaser{
		held: make(map[string]chan struct{}),
	}
}

func (l *localLeaser) Acquire(ctx context.Context, key string) (Lease, error) {
	for {
		l.mu.Lock()
		ch, ok := l.held[key]
		if !ok {
			ch = make(chan struct{})
			l.held[key] = ch
			l.mu.Unlock()
			return &localLease{l: l, key: key, ch: ch}, nil
		}
		l.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, errors.EnsureStack(context.Cause(ctx))
		}
	}
}

func (l *localLeaser) TryAcquire(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, errors.Wrapf(groveerr.ErrLeaseUnavailable, "key %q", key)
	}
	ch := make(chan struct{})
	l.held[key] = ch
	return &localLease{l: l, key: key, ch: ch}, nil
}

type localLease struct {
	l    *localLeaser
	key  string
	ch   chan struct{}
	once sync.Once
}

func (x *localLease) Release(ctx context.Context) error {
	x.once.Do(func() {
		x.l.mu.Lock()
		// Only delete our own entry; a later holder may have replaced it
		// if Release is misused after a previous Release.
		if ch, ok := x.l.held[x.key]; ok && ch == x.ch {
			delete(x.l.held, x.key)
		}
		x.l.mu.Unlock()
		close(x.ch)
	})
	return nil
}
