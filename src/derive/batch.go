package derive

import (
	"context"

	"go.uber.org/zap"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/derive/leases"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/log"
	"github.com/grovescm/grove/v2/src/internal/pctx"
)

// DeriveBatch derives typeName for heads in one pass.  gapSize controls how
// many intermediate ancestors' mapping entries are skipped between persisted
// ones to reduce write volume; entries for heads are always persisted, and
// every head's value is returned regardless of what was skipped.
//
// gapSize 0 persists every computed entry and is equivalent to Derive for
// each head.
func (e *Engine) DeriveBatch(ctx context.Context, typeName string, heads []changeset.ID, gapSize int) (_ map[changeset.ID]Value, retErr error) {
	ctx = pctx.Child(ctx, "deriveBatch", pctx.WithFields(zap.String("type", typeName), zap.Int("heads", len(heads)), zap.Int("gapSize", gapSize)))
	defer log.Span(ctx, "DeriveBatch")(log.Errorp(&retErr))

	if gapSize < 0 {
		return nil, errors.Errorf("negative gap size %d", gapSize)
	}
	d, err := e.registry.Get(typeName)
	if err != nil {
		return nil, err
	}
	m := e.mappings[typeName]

	out, err := m.Get(ctx, heads)
	if err != nil {
		return nil, err
	}
	if len(out) == len(heads) {
		return out, nil
	}

	missing := make(map[changeset.ID]*changeset.Changeset)
	for _, h := range heads {
		if _, ok := out[h]; ok {
			continue
		}
		hm, err := e.discoverMissing(ctx, m, h)
		if err != nil {
			return nil, err
		}
		for id, cs := range hm {
			missing[id] = cs
		}
	}
	for _, dep := range d.Dependencies() {
		if err := e.deriveDependency(ctx, dep, missing); err != nil {
			return nil, errors.Wrapf(err, "deriving dependency %q of %q", dep, typeName)
		}
	}

	order := topoOrder(missing)
	// Leases are taken in id order, a total order shared by every batcher,
	// so two batches over overlapping history cannot deadlock.
	leaseIDs := make([]changeset.ID, 0, len(missing))
	for id := range missing {
		leaseIDs = append(leaseIDs, id)
	}
	sortIDs(leaseIDs)
	var held []leases.Lease
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil {
				log.Error(ctx, "releasing batch lease", zap.Error(err))
			}
		}
	}()
	for _, id := range leaseIDs {
		lease, err := e.leaser.Acquire(ctx, leaseKey(typeName, id))
		if err != nil {
			return nil, err
		}
		held = append(held, lease)
	}

	// A competitor may have persisted some of these while we waited.
	orderIDs := make([]changeset.ID, len(order))
	for i, cs := range order {
		orderIDs[i] = cs.ID
	}
	persisted, err := m.Get(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	var css []*changeset.Changeset
	for _, cs := range order {
		if _, ok := persisted[cs.ID]; !ok {
			css = append(css, cs)
		}
	}

	// Frontier parent values: everything a batch computation may need that
	// is not computed inside the batch itself.
	parents := make(map[changeset.ID]Value, len(persisted))
	for id, v := range persisted {
		parents[id] = v
	}
	inBatch := make(map[changeset.ID]bool, len(css))
	for _, cs := range css {
		inBatch[cs.ID] = true
	}
	for _, cs := range css {
		for _, p := range cs.Parents {
			if inBatch[p] {
				continue
			}
			if _, ok := parents[p]; ok {
				continue
			}
			vals, err := m.Get(ctx, []changeset.ID{p})
			if err != nil {
				return nil, err
			}
			v, ok := vals[p]
			if !ok {
				return nil, errors.Errorf("frontier parent %v of %v has no %s value", p, cs.ID, typeName)
			}
			parents[p] = v
		}
	}

	dctx := e.contexts[typeName]
	vals, err := d.ComputeBatch(ctx, dctx, css, parents, gapSize)
	if err != nil {
		return nil, errors.Wrapf(err, "batch computing %s", typeName)
	}

	headSet := make(map[changeset.ID]bool, len(heads))
	for _, h := range heads {
		headSet[h] = true
	}
	for i, cs := range css {
		v, ok := vals[cs.ID]
		if !ok {
			return nil, errors.Errorf("batch computation for %s did not produce a value for %v", typeName, cs.ID)
		}
		if (i+1)%(gapSize+1) == 0 || headSet[cs.ID] {
			if err := m.Put(ctx, cs.ID, v); err != nil {
				return nil, errors.Wrapf(err, "persisting %s for %v", typeName, cs.ID)
			}
		}
	}

	for _, h := range heads {
		if _, ok := out[h]; ok {
			continue
		}
		if v, ok := vals[h]; ok {
			out[h] = v
			continue
		}
		if v, ok := persisted[h]; ok {
			out[h] = v
			continue
		}
		return nil, errors.Errorf("batch derivation did not produce a value for head %v", h)
	}
	return out, nil
}
