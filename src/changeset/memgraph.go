package changeset

import (
	"context"
	"sync"

	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
)

var _ Graph = &MemGraph{}

// MemGraph is an in-memory Graph.  It is safe for concurrent use and is the
// graph used by tests and tools that construct histories on the fly.
type MemGraph struct {
	mu  sync.RWMutex
	css map[ID]*Changeset
}

func NewMemGraph() *MemGraph {
	return &MemGraph{
		css: make(map[ID]*Changeset),
	}
}

// Add validates cs, computes its content-addressed ID, and stores it.  All
// parents must already be present.
func (g *MemGraph) Add(cs *Changeset) (ID, error) {
	if err := cs.Validate(); err != nil {
		return ID{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range cs.Parents {
		if _, ok := g.css[p]; !ok {
			return ID{}, errors.Errorf("parent %v is not in the graph", p)
		}
	}
	id := cs.ComputeID()
	cs.ID = id
	g.css[id] = cs
	return id, nil
}

func (g *MemGraph) Get(ctx context.Context, id ID) (*Changeset, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cs, ok := g.css[id]
	if !ok {
		return nil, groveerr.NewNotExist("changeset", id.String())
	}
	return cs, nil
}

func (g *MemGraph) Parents(ctx context.Context, id ID) ([]ID, error) {
	cs, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return cs.Parents, nil
}

func (g *MemGraph) Changes(ctx context.Context, id ID) ([]Change, error) {
	cs, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return cs.Changes, nil
}

// Len returns the number of changesets in the graph.
func (g *MemGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.css)
}
