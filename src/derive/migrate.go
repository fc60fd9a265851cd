package derive

import (
	"context"

	"go.uber.org/zap"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
	"github.com/grovescm/grove/v2/src/internal/log"
	"github.com/grovescm/grove/v2/src/internal/pctx"
)

// Migrate computes typeName's value for each id directly from an
// already-derived predecessor type, without walking history.  It is the
// one-time migration path for a type that supersedes an older one; ids whose
// predecessors are underived produce a NotExist error (derive the
// predecessor, or use Derive, instead).
//
// Migrate is idempotent: ids that already have a value are skipped.
func (e *Engine) Migrate(ctx context.Context, typeName string, ids []changeset.ID) (_ map[changeset.ID]Value, retErr error) {
	ctx = pctx.Child(ctx, "migrate", pctx.WithFields(zap.String("type", typeName), zap.Int("changesets", len(ids))))
	defer log.Span(ctx, "Migrate")(log.Errorp(&retErr))

	d, err := e.registry.Get(typeName)
	if err != nil {
		return nil, err
	}
	preds := d.PredecessorTypes()
	if len(preds) == 0 {
		return nil, errors.Errorf("type %q has no predecessor types", typeName)
	}
	m := e.mappings[typeName]
	dctx := e.contexts[typeName]

	out, err := m.Get(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		v, err := e.migrateOne(ctx, d, m, dctx, preds, id)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

func (e *Engine) migrateOne(ctx context.Context, d Derivable, m Mapping, dctx *Context, preds []string, id changeset.ID) (_ Value, retErr error) {
	lease, err := e.leaser.Acquire(ctx, leaseKey(d.Name(), id))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			log.Error(ctx, "releasing migration lease", zap.Error(err), zap.Stringer("changeset", id))
		}
	}()

	vals, err := m.Get(ctx, []changeset.ID{id})
	if err != nil {
		return nil, err
	}
	if v, ok := vals[id]; ok {
		return v, nil
	}

	var derivedPred bool
	for _, pred := range preds {
		pm := e.mappings[pred]
		pv, err := pm.Get(ctx, []changeset.ID{id})
		if err != nil {
			return nil, err
		}
		if _, ok := pv[id]; ok {
			derivedPred = true
			break
		}
	}
	if !derivedPred {
		return nil, groveerr.NewNotExist("predecessor of "+d.Name(), id.String())
	}

	cs, err := e.graph.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := d.ComputeFromPredecessor(ctx, dctx, cs)
	if err != nil {
		return nil, errors.Wrapf(err, "computing %s from predecessor for %v", d.Name(), id)
	}
	if err := m.Put(ctx, id, v); err != nil {
		return nil, errors.Wrapf(err, "persisting %s for %v", d.Name(), id)
	}
	return v, nil
}
