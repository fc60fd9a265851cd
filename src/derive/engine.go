package derive

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/derive/leases"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/log"
	"github.com/grovescm/grove/v2/src/internal/pctx"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

// DefaultParallelism bounds how many changesets are computed concurrently
// within one derivation pass.
const DefaultParallelism = 8

// Engine orchestrates derivation: ancestor discovery, cross-type dependency
// resolution, parent-first scheduling, computation, and persistence.
type Engine struct {
	graph       changeset.Graph
	registry    *Registry
	leaser      leases.Leaser
	parallelism int64

	mappings map[string]Mapping
	contexts map[string]*Context
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	leaser      leases.Leaser
	parallelism int64
	wrapMapping func(typeName string, m Mapping) Mapping
}

// WithLeaser sets the single-flight lease mechanism.  The default leaser is
// scoped to this process; multi-process deployments should pass an etcd
// leaser.
func WithLeaser(l leases.Leaser) EngineOption {
	return func(c *engineConfig) {
		c.leaser = l
	}
}

// WithParallelism bounds concurrent computations within a pass.
func WithParallelism(n int) EngineOption {
	return func(c *engineConfig) {
		c.parallelism = int64(n)
	}
}

// WithMappingWrapper decorates each type's Mapping at engine construction,
// e.g. with a RegenOverlay.
func WithMappingWrapper(wrap func(typeName string, m Mapping) Mapping) EngineOption {
	return func(c *engineConfig) {
		c.wrapMapping = wrap
	}
}

// NewEngine returns an Engine over graph and store for the types in
// registry.
func NewEngine(graph changeset.Graph, store kv.Store, registry *Registry, opts ...EngineOption) *Engine {
	config := &engineConfig{
		leaser:      leases.NewLocalLeaser(),
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(config)
	}
	e := &Engine{
		graph:       graph,
		registry:    registry,
		leaser:      config.leaser,
		parallelism: config.parallelism,
		mappings:    make(map[string]Mapping),
		contexts:    make(map[string]*Context),
	}
	for _, name := range registry.Names() {
		d, _ := registry.Get(name)
		m := NewMapping(store, d)
		if config.wrapMapping != nil {
			m = config.wrapMapping(name, m)
		}
		e.mappings[name] = m
	}
	for _, name := range registry.Names() {
		d, _ := registry.Get(name)
		e.contexts[name] = newContext(store, d, e.mappings)
	}
	return e
}

// Mapping returns the (possibly decorated) Mapping the engine uses for
// typeName.
func (e *Engine) Mapping(typeName string) (Mapping, error) {
	m, ok := e.mappings[typeName]
	if !ok {
		return nil, errors.Errorf("derivable type %q is not registered", typeName)
	}
	return m, nil
}

// EncodeValue returns the stable wire form of v under typeName, for
// cross-process use.
func (e *Engine) EncodeValue(typeName string, v Value) ([]byte, error) {
	d, err := e.registry.Get(typeName)
	if err != nil {
		return nil, err
	}
	return d.EncodeValue(v)
}

// DecodeValue parses the stable wire form of a typeName value.
func (e *Engine) DecodeValue(typeName string, data []byte) (Value, error) {
	d, err := e.registry.Get(typeName)
	if err != nil {
		return nil, err
	}
	return d.DecodeValue(data)
}

// Derive returns the derived value of typeName for id, computing and
// persisting any missing ancestors first.  On success every ancestor of id
// has a persisted value for typeName and all of its declared dependencies.
//
// Any failure aborts the whole call; the mapping store is left at its last
// fully-persisted state and a re-invocation resumes from there.
func (e *Engine) Derive(ctx context.Context, typeName string, id changeset.ID) (_ Value, retErr error) {
	ctx = pctx.Child(ctx, "derive", pctx.WithFields(zap.String("type", typeName), zap.Stringer("changeset", id)))
	defer log.Span(ctx, "Derive")(log.Errorp(&retErr))

	d, err := e.registry.Get(typeName)
	if err != nil {
		return nil, err
	}
	m := e.mappings[typeName]

	vals, err := m.Get(ctx, []changeset.ID{id})
	if err != nil {
		return nil, err
	}
	if v, ok := vals[id]; ok {
		return v, nil
	}

	missing, err := e.discoverMissing(ctx, m, id)
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "ancestors to derive", zap.Int("count", len(missing)))

	// Dependency types first, for every commit in this pass.  A fast-path
	// hit on the target alone is not enough: batch derivation with a gap
	// size leaves holes in a mapping, so each missing commit is checked
	// individually.
	for _, dep := range d.Dependencies() {
		if err := e.deriveDependency(ctx, dep, missing); err != nil {
			return nil, errors.Wrapf(err, "deriving dependency %q of %q", dep, typeName)
		}
	}

	order := topoOrder(missing)
	results, err := e.computeAll(ctx, d, m, order)
	if err != nil {
		return nil, err
	}
	v, ok := results[id]
	if !ok {
		return nil, errors.Errorf("derivation pass for %s did not produce a value for %v", typeName, id)
	}
	return v, nil
}

// deriveDependency ensures dep has a persisted value for every commit in
// missing, deriving the ones that lack one.
func (e *Engine) deriveDependency(ctx context.Context, dep string, missing map[changeset.ID]*changeset.Changeset) error {
	dm := e.mappings[dep]
	ids := make([]changeset.ID, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	sortIDs(ids)
	vals, err := dm.Get(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := vals[id]; ok {
			continue
		}
		if _, err := e.Derive(ctx, dep, id); err != nil {
			return err
		}
	}
	return nil
}

// discoverMissing walks parents backward from target, collecting changesets
// with no mapping entry; each branch stops at the first already-derived
// changeset (the frontier).
func (e *Engine) discoverMissing(ctx context.Context, m Mapping, target changeset.ID) (map[changeset.ID]*changeset.Changeset, error) {
	missing := make(map[changeset.ID]*changeset.Changeset)
	visited := map[changeset.ID]bool{target: true}
	queue := []changeset.ID{target}
	for len(queue) > 0 {
		vals, err := m.Get(ctx, queue)
		if err != nil {
			return nil, err
		}
		var next []changeset.ID
		for _, id := range queue {
			if _, ok := vals[id]; ok {
				continue
			}
			cs, err := e.graph.Get(ctx, id)
			if err != nil {
				return nil, errors.Wrapf(err, "loading ancestor %v", id)
			}
			missing[id] = cs
			for _, p := range cs.Parents {
				if !visited[p] {
					visited[p] = true
					next = append(next, p)
				}
			}
		}
		queue = next
	}
	return missing, nil
}

// topoOrder arranges missing parents-before-children.  Ties are broken by id
// so that the order is deterministic.
func topoOrder(missing map[changeset.ID]*changeset.Changeset) []*changeset.Changeset {
	indegree := make(map[changeset.ID]int, len(missing))
	children := make(map[changeset.ID][]changeset.ID)
	for id, cs := range missing {
		for _, p := range cs.Parents {
			if _, ok := missing[p]; ok {
				indegree[id]++
				children[p] = append(children[p], id)
			}
		}
	}
	var ready []changeset.ID
	for id := range missing {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sortIDs(ready)
	order := make([]*changeset.Changeset, 0, len(missing))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, missing[id])
		released := false
		for _, c := range children[id] {
			indegree[c]--
			if indegree[c] == 0 {
				ready = append(ready, c)
				released = true
			}
		}
		if released {
			sortIDs(ready)
		}
	}
	return order
}

func sortIDs(ids []changeset.ID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
}

// computeAll computes values for order (an ancestors-first run) with bounded
// parallelism.  A changeset's computation starts only after all of its
// in-pass parents have been computed and persisted; parents outside the pass
// are read from the mapping.
func (e *Engine) computeAll(ctx context.Context, d Derivable, m Mapping, order []*changeset.Changeset) (map[changeset.ID]Value, error) {
	dctx := e.contexts[d.Name()]
	var mu sync.Mutex
	results := make(map[changeset.ID]Value, len(order))
	done := make(map[changeset.ID]chan struct{}, len(order))
	for _, cs := range order {
		done[cs.ID] = make(chan struct{})
	}
	sem := semaphore.NewWeighted(e.parallelism)
	eg, egCtx := errgroup.WithContext(ctx)
	for _, cs := range order {
		cs := cs
		eg.Go(func() error {
			for _, p := range cs.Parents {
				ch, inPass := done[p]
				if !inPass {
					continue
				}
				select {
				case <-ch:
				case <-egCtx.Done():
					return errors.EnsureStack(context.Cause(egCtx))
				}
			}
			if err := sem.Acquire(egCtx, 1); err != nil {
				return errors.EnsureStack(err)
			}
			defer sem.Release(1)
			getParent := func(p changeset.ID) (Value, bool) {
				mu.Lock()
				defer mu.Unlock()
				v, ok := results[p]
				return v, ok
			}
			v, err := e.computeOne(egCtx, d, m, dctx, cs, getParent)
			if err != nil {
				return err
			}
			mu.Lock()
			results[cs.ID] = v
			mu.Unlock()
			close(done[cs.ID])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// computeOne computes and persists d's value for cs under a single-flight
// lease.  If a competitor derived cs while we waited for the lease, its
// persisted value is returned instead of recomputing.
func (e *Engine) computeOne(ctx context.Context, d Derivable, m Mapping, dctx *Context, cs *changeset.Changeset, getParent func(changeset.ID) (Value, bool)) (_ Value, retErr error) {
	lease, err := e.leaser.Acquire(ctx, leaseKey(d.Name(), cs.ID))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			// The value is already persisted (or nothing was); losing
			// the lease after the fact cannot corrupt anything.
			log.Error(ctx, "releasing derivation lease", zap.Error(err), zap.Stringer("changeset", cs.ID))
		}
	}()

	vals, err := m.Get(ctx, []changeset.ID{cs.ID})
	if err != nil {
		return nil, err
	}
	if v, ok := vals[cs.ID]; ok {
		return v, nil
	}

	parents := make([]Value, len(cs.Parents))
	for i, p := range cs.Parents {
		if v, ok := getParent(p); ok {
			parents[i] = v
			continue
		}
		vals, err := m.Get(ctx, []changeset.ID{p})
		if err != nil {
			return nil, err
		}
		v, ok := vals[p]
		if !ok {
			return nil, errors.Errorf("parent %v of %v has no %s value; scheduling bug", p, cs.ID, d.Name())
		}
		parents[i] = v
	}

	v, err := d.ComputeSingle(ctx, dctx, cs, parents)
	if err != nil {
		return nil, errors.Wrapf(err, "computing %s for %v", d.Name(), cs.ID)
	}
	if err := m.Put(ctx, cs.ID, v); err != nil {
		return nil, errors.Wrapf(err, "persisting %s for %v", d.Name(), cs.ID)
	}
	return v, nil
}

func leaseKey(typeName string, id changeset.ID) string {
	return fmt.Sprintf("derived/%s/%s", typeName, id)
}
