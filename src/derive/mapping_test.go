package derive

import (
	"testing"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/internal/groveerr"
	"github.com/grovescm/grove/v2/src/internal/pctx"
	"github.com/grovescm/grove/v2/src/internal/require"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

func TestMappingPutGet(t *testing.T) {
	ctx := pctx.TestContext(t)
	ct := &countType{name: "count"}
	m := NewMapping(kv.NewMemStore(), ct)
	g := changeset.NewMemGraph()
	ids := linearHistory(t, g, 3)

	// Partial results: missing ids are absent, not errors.
	vals, err := m.Get(ctx, ids)
	require.NoError(t, err)
	require.Len(t, vals, 0)

	require.NoError(t, m.Put(ctx, ids[0], countValue(7)))
	require.NoError(t, m.Put(ctx, ids[2], countValue(9)))
	vals, err = m.Get(ctx, ids)
	require.NoError(t, err)
	require.Len(t, vals, 2)
	require.Equal(t, countValue(7), vals[ids[0]])
	require.Equal(t, countValue(9), vals[ids[2]])

	// Put is idempotent.
	require.NoError(t, m.Put(ctx, ids[0], countValue(7)))
	vals, err = m.Get(ctx, []changeset.ID{ids[0]})
	require.NoError(t, err)
	require.Equal(t, countValue(7), vals[ids[0]])
}

func TestMappingSurvivesCacheMiss(t *testing.T) {
	ctx := pctx.TestContext(t)
	ct := &countType{name: "count"}
	store := kv.NewMemStore()
	g := changeset.NewMemGraph()
	ids := linearHistory(t, g, 1)

	m1 := NewMapping(store, ct)
	require.NoError(t, m1.Put(ctx, ids[0], countValue(3)))

	// A second mapping over the same store decodes the persisted entry.
	m2 := NewMapping(store, ct)
	vals, err := m2.Get(ctx, []changeset.ID{ids[0]})
	require.NoError(t, err)
	require.Equal(t, countValue(3), vals[ids[0]])
}

func TestMappingKeyLayout(t *testing.T) {
	var id changeset.ID
	id[0] = 0xab
	key := MappingKey("manifest", "v2.", id)
	require.Equal(t, "derived_root_manifest.v2."+id.String(), string(key))
}

func TestMappingDecodeError(t *testing.T) {
	ctx := pctx.TestContext(t)
	ct := &countType{name: "count"}
	store := kv.NewMemStore()
	g := changeset.NewMemGraph()
	ids := linearHistory(t, g, 1)

	// A corrupt entry surfaces as a DecodeError, not a miss.
	require.NoError(t, store.Put(ctx, MappingKey("count", "t1.", ids[0]), []byte{0xff, 0xff}))
	m := NewMapping(store, ct)
	_, err := m.Get(ctx, []changeset.ID{ids[0]})
	require.YesError(t, err)
	require.True(t, groveerr.IsDecodeError(err))
}

func TestRegenOverlayLifecycle(t *testing.T) {
	ctx := pctx.TestContext(t)
	ct := &countType{name: "count"}
	g := changeset.NewMemGraph()
	ids := linearHistory(t, g, 2)
	o := NewRegenOverlay(NewMapping(kv.NewMemStore(), ct))

	require.NoError(t, o.Put(ctx, ids[0], countValue(1)))
	require.NoError(t, o.Put(ctx, ids[1], countValue(2)))

	// Flagged ids look underived; others are untouched.
	o.Flag(ids[0])
	require.True(t, o.IsFlagged(ids[0]))
	vals, err := o.Get(ctx, ids)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	require.Equal(t, countValue(2), vals[ids[1]])

	// Unflag restores the old value without recomputation.
	o.Unflag(ids[0])
	vals, err = o.Get(ctx, ids)
	require.NoError(t, err)
	require.Len(t, vals, 2)

	// A Put for a flagged id clears the flag and becomes the baseline.
	o.Flag(ids[0])
	require.NoError(t, o.Put(ctx, ids[0], countValue(5)))
	require.False(t, o.IsFlagged(ids[0]))
	vals, err = o.Get(ctx, []changeset.ID{ids[0]})
	require.NoError(t, err)
	require.Equal(t, countValue(5), vals[ids[0]])
}
