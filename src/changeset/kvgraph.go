package changeset

import (
	"context"

	"github.com/grovescm/grove/v2/src/internal/groveerr"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

var _ Graph = &KVGraph{}

// changesetPrefix is the key prefix for persisted changesets.
const changesetPrefix = "changeset/"

// KVGraph is a Graph persisted in a kv.Store.  Entries are keyed by
// changeset/<id-hex> and never overwritten with different content, because
// the id is the hash of the content.
type KVGraph struct {
	store kv.Store
}

func NewKVGraph(store kv.Store) *KVGraph {
	return &KVGraph{store: store}
}

func graphKey(id ID) []byte {
	return append([]byte(changesetPrefix), []byte(id.String())...)
}

// Add validates cs, computes its ID, and persists it.  All parents must
// already be persisted.
func (g *KVGraph) Add(ctx context.Context, cs *Changeset) (ID, error) {
	if err := cs.Validate(); err != nil {
		return ID{}, err
	}
	for _, p := range cs.Parents {
		exists, err := g.store.Exists(ctx, graphKey(p))
		if err != nil {
			return ID{}, err
		}
		if !exists {
			return ID{}, groveerr.NewNotExist("changeset", p.String())
		}
	}
	id := cs.ComputeID()
	cs.ID = id
	if err := g.store.Put(ctx, graphKey(id), Encode(cs)); err != nil {
		return ID{}, err
	}
	return id, nil
}

func (g *KVGraph) Get(ctx context.Context, id ID) (*Changeset, error) {
	data, err := g.store.Get(ctx, graphKey(id))
	if err != nil {
		if groveerr.IsNotExist(err) {
			return nil, groveerr.NewNotExist("changeset", id.String())
		}
		return nil, err
	}
	cs, err := Decode(data)
	if err != nil {
		return nil, groveerr.NewDecodeError("changeset", id.String(), err)
	}
	return cs, nil
}

func (g *KVGraph) Parents(ctx context.Context, id ID) ([]ID, error) {
	cs, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return cs.Parents, nil
}

func (g *KVGraph) Changes(ctx context.Context, id ID) ([]Change, error) {
	cs, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return cs.Changes, nil
}
