package derive

import (
	"context"
	"sync"

	"github.com/grovescm/grove/v2/src/changeset"
)

var _ Mapping = &RegenOverlay{}

// RegenOverlay wraps a Mapping and forces flagged changesets to look
// underived, so that the next derivation recomputes them.  Putting a fresh
// value for a flagged changeset clears the flag and accepts the value as the
// new baseline.  Unflagged changesets see the wrapped mapping unchanged.
type RegenOverlay struct {
	inner Mapping

	mu      sync.Mutex
	flagged map[changeset.ID]struct{}
}

// NewRegenOverlay wraps inner with an overlay that initially flags ids.
func NewRegenOverlay(inner Mapping, ids ...changeset.ID) *RegenOverlay {
	o := &RegenOverlay{
		inner:   inner,
		flagged: make(map[changeset.ID]struct{}),
	}
	for _, id := range ids {
		o.flagged[id] = struct{}{}
	}
	return o
}

// Flag marks id for forced regeneration.
func (o *RegenOverlay) Flag(id changeset.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flagged[id] = struct{}{}
}

// Unflag removes id from the flagged set without regenerating it.
func (o *RegenOverlay) Unflag(id changeset.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.flagged, id)
}

// IsFlagged returns whether id is currently flagged.
func (o *RegenOverlay) IsFlagged(id changeset.ID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.flagged[id]
	return ok
}

func (o *RegenOverlay) Get(ctx context.Context, ids []changeset.ID) (map[changeset.ID]Value, error) {
	ret, err := o.inner.Get(ctx, ids)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for id := range o.flagged {
		delete(ret, id)
	}
	return ret, nil
}

func (o *RegenOverlay) Put(ctx context.Context, id changeset.ID, v Value) error {
	// Clear the flag first: once the fresh value lands it is the new
	// baseline, and a concurrent Get must not hide it.
	o.mu.Lock()
	delete(o.flagged, id)
	o.mu.Unlock()
	return o.inner.Put(ctx, id, v)
}
