package manifest

import (
	"bytes"
	"context"
	"testing"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/internal/pctx"
	"github.com/grovescm/grove/v2/src/internal/require"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

func change(path string, op changeset.Op, ref string) changeset.Change {
	c := changeset.Change{Path: path, Op: op}
	if op != changeset.OpDelete {
		c.ContentRef = []byte(ref)
	}
	return c
}

func mustBuild(t *testing.T, ctx context.Context, store kv.Store, parents [][]byte, changes ...changeset.Change) []byte {
	root, err := Build(ctx, store, parents, changes)
	require.NoError(t, err)
	return root
}

func paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestBuildAndList(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := kv.NewMemStore()

	root := mustBuild(t, ctx, store, nil,
		change("a", changeset.OpAdd, "r1"),
		change("dir/b", changeset.OpAdd, "r2"),
		change("dir/sub/c", changeset.OpAdd, "r3"),
	)
	files, err := List(ctx, store, root)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "dir/b", "dir/sub/c"}, paths(files))
	require.Equal(t, []byte("r2"), files[1].Ref)

	root2 := mustBuild(t, ctx, store, [][]byte{root},
		change("dir/b", changeset.OpModify, "r2b"),
		change("dir/sub/c", changeset.OpDelete, ""),
	)
	files, err = List(ctx, store, root2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "dir/b"}, paths(files))
	require.Equal(t, []byte("r2b"), files[1].Ref)

	// The parent tree is untouched.
	files, err = List(ctx, store, root)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "dir/b", "dir/sub/c"}, paths(files))
}

func TestBuildDeterministic(t *testing.T) {
	ctx := pctx.TestContext(t)
	changes := []changeset.Change{
		change("a", changeset.OpAdd, "r1"),
		change("d/b", changeset.OpAdd, "r2"),
	}
	r1, err := Build(ctx, kv.NewMemStore(), nil, changes)
	require.NoError(t, err)
	r2, err := Build(ctx, kv.NewMemStore(), nil, changes)
	require.NoError(t, err)
	require.True(t, SameSubtree(r1, r2))
}

func TestEmptyTreeHasRoot(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := kv.NewMemStore()

	root := mustBuild(t, ctx, store, nil)
	require.NotNil(t, root)
	files, err := List(ctx, store, root)
	require.NoError(t, err)
	require.Len(t, files, 0)

	// Deleting the last file collapses back to the same empty root.
	r1 := mustBuild(t, ctx, store, nil, change("d/x", changeset.OpAdd, "r"))
	r2 := mustBuild(t, ctx, store, [][]byte{r1}, change("d/x", changeset.OpDelete, ""))
	require.True(t, SameSubtree(root, r2))
}

// topEntry reads root's directory entry for a top-level name.
func topEntry(t *testing.T, ctx context.Context, store kv.Store, root []byte, name string) *Entry {
	data, err := getBlob(ctx, store, root)
	require.NoError(t, err)
	n, err := decodeNode(data)
	require.NoError(t, err)
	entries, err := loadShard(ctx, store, n.shards[shardOf(name)])
	require.NoError(t, err)
	return findEntry(entries, name)
}

func TestStructuralSharing(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := kv.NewMemStore()

	base := mustBuild(t, ctx, store, nil,
		change("left/one", changeset.OpAdd, "r1"),
		change("left/two", changeset.OpAdd, "r2"),
		change("right/one", changeset.OpAdd, "r3"),
	)
	next := mustBuild(t, ctx, store, [][]byte{base},
		change("left/one", changeset.OpModify, "r1b"),
	)

	// The untouched subtree is carried by reference; the touched one is not.
	baseRight := topEntry(t, ctx, store, base, "right")
	nextRight := topEntry(t, ctx, store, next, "right")
	require.NotNil(t, baseRight)
	require.NotNil(t, nextRight)
	require.True(t, SameSubtree(baseRight.Ref, nextRight.Ref))

	baseLeft := topEntry(t, ctx, store, base, "left")
	nextLeft := topEntry(t, ctx, store, next, "left")
	require.False(t, SameSubtree(baseLeft.Ref, nextLeft.Ref))
}

func TestBuildReplaceFileWithDirectory(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := kv.NewMemStore()

	base := mustBuild(t, ctx, store, nil, change("x", changeset.OpAdd, "r1"))
	// One changeset deletes the file "x" and adds files under a directory of
	// the same name.
	next := mustBuild(t, ctx, store, [][]byte{base},
		change("x", changeset.OpDelete, ""),
		change("x/inner", changeset.OpAdd, "r2"),
	)
	files, err := List(ctx, store, next)
	require.NoError(t, err)
	require.Equal(t, []string{"x/inner"}, paths(files))
}

func TestBuildErrors(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := kv.NewMemStore()

	// Deleting a path that does not exist.
	_, err := Build(ctx, store, nil, []changeset.Change{change("nope", changeset.OpDelete, "")})
	require.YesError(t, err)

	// Descending through an existing file.
	base := mustBuild(t, ctx, store, nil, change("f", changeset.OpAdd, "r"))
	_, err = Build(ctx, store, [][]byte{base}, []changeset.Change{change("f/x", changeset.OpAdd, "r")})
	require.YesError(t, err)

	// Empty path components.
	_, err = Build(ctx, store, nil, []changeset.Change{change("a//b", changeset.OpAdd, "r")})
	require.YesError(t, err)
}

func TestNodeCodecRoundTrip(t *testing.T) {
	n := &node{}
	n.shards[0] = bytes.Repeat([]byte{1}, 32)
	n.shards[15] = bytes.Repeat([]byte{2}, 32)
	got, err := decodeNode(encodeNode(n))
	require.NoError(t, err)
	for i := range n.shards {
		require.Equal(t, n.shards[i], got.shards[i])
	}

	entries := []Entry{
		{Name: "a", Ref: []byte("r1")},
		{Name: "d", IsDir: true, Ref: bytes.Repeat([]byte{3}, 32)},
	}
	gotEntries, err := decodeShard(encodeShard(entries))
	require.NoError(t, err)
	require.Equal(t, entries, gotEntries)
}
