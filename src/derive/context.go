package derive

import (
	"context"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

// Context is the per-derivation handle passed to a Derivable's computation
// functions.  It exposes exactly what a pure computation may touch: the
// content store, and already-derived values of declared dependency types.
type Context struct {
	store    kv.Store
	typeName string
	deps     map[string]Mapping
}

func newContext(store kv.Store, d Derivable, mappings map[string]Mapping) *Context {
	deps := make(map[string]Mapping)
	for _, dep := range d.Dependencies() {
		deps[dep] = mappings[dep]
	}
	for _, pred := range d.PredecessorTypes() {
		deps[pred] = mappings[pred]
	}
	return &Context{
		store:    store,
		typeName: d.Name(),
		deps:     deps,
	}
}

// ContentStore returns the content store, for reading payloads and writing
// the value's own data.
func (c *Context) ContentStore() kv.Store {
	return c.store
}

// DependencyValue returns the derived value of a declared dependency (or
// predecessor) type for id.  The engine guarantees dependency types are
// fully derived before computation starts, so a miss here is a NotExist
// error, not a trigger for recursive derivation.
func (c *Context) DependencyValue(ctx context.Context, typeName string, id changeset.ID) (Value, error) {
	m, ok := c.deps[typeName]
	if !ok {
		return nil, errors.Errorf("type %q did not declare a dependency on %q", c.typeName, typeName)
	}
	vals, err := m.Get(ctx, []changeset.ID{id})
	if err != nil {
		return nil, err
	}
	v, ok := vals[id]
	if !ok {
		return nil, groveerr.NewNotExist(typeName, id.String())
	}
	return v, nil
}
