package manifest

import (
	"testing"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/derive"
	"github.com/grovescm/grove/v2/src/internal/pctx"
	"github.com/grovescm/grove/v2/src/internal/require"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

func commit(t testing.TB, g *changeset.MemGraph, parents []changeset.ID, changes ...changeset.Change) changeset.ID {
	id, err := g.Add(&changeset.Changeset{
		Parents:  parents,
		Changes:  changes,
		Metadata: changeset.Metadata{Message: "test"},
	})
	require.NoError(t, err)
	return id
}

func newManifestEngine(t testing.TB, g *changeset.MemGraph) (*derive.Engine, kv.Store) {
	r, err := derive.NewRegistry(NewType(), NewSkeletonType(), NewTypeV2())
	require.NoError(t, err)
	store := kv.NewMemStore()
	return derive.NewEngine(g, store, r), store
}

// An empty root commit, a commit adding "a", and a commit replacing "a" with
// "b"; one derivation call at the tip fills in the whole chain.
func TestDeriveManifestChain(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := changeset.NewMemGraph()
	c0 := commit(t, g, nil)
	c1 := commit(t, g, []changeset.ID{c0},
		change("a", changeset.OpAdd, "r1"))
	c2 := commit(t, g, []changeset.ID{c1},
		change("a", changeset.OpDelete, ""),
		change("b", changeset.OpAdd, "r2"))
	e, store := newManifestEngine(t, g)

	v, err := e.Derive(ctx, TypeName, c2)
	require.NoError(t, err)

	m, err := e.Mapping(TypeName)
	require.NoError(t, err)
	vals, err := m.Get(ctx, []changeset.ID{c0, c1, c2})
	require.NoError(t, err)
	require.Len(t, vals, 3)

	files, err := List(ctx, store, vals[c0].(*RootValue).Root())
	require.NoError(t, err)
	require.Len(t, files, 0)
	files, err = List(ctx, store, vals[c1].(*RootValue).Root())
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, paths(files))
	files, err = List(ctx, store, v.(*RootValue).Root())
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, paths(files))
}

func TestManifestValueCodec(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := kv.NewMemStore()
	root := mustBuild(t, ctx, store, nil, change("a", changeset.OpAdd, "r1"))

	typ := NewType()
	data, err := typ.EncodeValue(NewRootValue(root))
	require.NoError(t, err)
	v, err := typ.DecodeValue(data)
	require.NoError(t, err)
	require.Equal(t, root, v.(*RootValue).Root())

	_, err = typ.DecodeValue([]byte("short"))
	require.YesError(t, err)
}

func TestSkeletonTracksShapeOnly(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := changeset.NewMemGraph()
	c0 := commit(t, g, nil)
	c1 := commit(t, g, []changeset.ID{c0},
		change("a", changeset.OpAdd, "r1"))
	// Same path, different content.
	c2 := commit(t, g, []changeset.ID{c1},
		change("a", changeset.OpModify, "r2"))
	e, _ := newManifestEngine(t, g)

	// Deriving the skeleton pulls in its manifest dependency.
	v2, err := e.Derive(ctx, SkeletonTypeName, c2)
	require.NoError(t, err)
	m, err := e.Mapping(TypeName)
	require.NoError(t, err)
	mvals, err := m.Get(ctx, []changeset.ID{c0, c1, c2})
	require.NoError(t, err)
	require.Len(t, mvals, 3)

	sm, err := e.Mapping(SkeletonTypeName)
	require.NoError(t, err)
	svals, err := sm.Get(ctx, []changeset.ID{c0, c1, c2})
	require.NoError(t, err)

	// c1 and c2 have identical shape but different manifests.
	require.Equal(t, svals[c1].(*SkeletonValue).ID(), v2.(*SkeletonValue).ID())
	require.False(t, SameSubtree(
		mvals[c1].(*RootValue).Root(),
		mvals[c2].(*RootValue).Root()))
	// The empty commit's shape differs.
	require.NotEqual(t, svals[c0].(*SkeletonValue).ID(), v2.(*SkeletonValue).ID())
}

func TestV2DeriveAndMigrate(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := changeset.NewMemGraph()
	c0 := commit(t, g, nil)
	c1 := commit(t, g, []changeset.ID{c0},
		change("a", changeset.OpAdd, "r1"),
		change("d/b", changeset.OpAdd, "r2"))
	e, _ := newManifestEngine(t, g)

	// Direct derivation works without any v1 values.
	v, err := e.Derive(ctx, TypeV2Name, c1)
	require.NoError(t, err)
	require.Equal(t, int64(2), v.(*V2Value).FileCount())

	// Migration lifts v1 values on a fresh engine sharing nothing with the
	// one above.
	g2 := changeset.NewMemGraph()
	d0 := commit(t, g2, nil)
	d1 := commit(t, g2, []changeset.ID{d0},
		change("a", changeset.OpAdd, "r1"),
		change("d/b", changeset.OpAdd, "r2"))
	e2, _ := newManifestEngine(t, g2)
	v1, err := e2.Derive(ctx, TypeName, d1)
	require.NoError(t, err)

	vals, err := e2.Migrate(ctx, TypeV2Name, []changeset.ID{d0, d1})
	require.NoError(t, err)
	migrated := vals[d1].(*V2Value)
	require.True(t, SameSubtree(v1.(*RootValue).Root(), migrated.Root()))
	require.Equal(t, int64(2), migrated.FileCount())
	require.Equal(t, int64(0), vals[d0].(*V2Value).FileCount())
}

func TestV2ValueCodec(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := kv.NewMemStore()
	root := mustBuild(t, ctx, store, nil, change("a", changeset.OpAdd, "r1"))

	typ := NewTypeV2()
	data, err := typ.EncodeValue(NewV2Value(root, 42))
	require.NoError(t, err)
	v, err := typ.DecodeValue(data)
	require.NoError(t, err)
	require.Equal(t, root, v.(*V2Value).Root())
	require.Equal(t, int64(42), v.(*V2Value).FileCount())
}
