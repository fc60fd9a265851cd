package changeset

import (
	"testing"
	"time"

	"github.com/grovescm/grove/v2/src/internal/groveerr"
	"github.com/grovescm/grove/v2/src/internal/pctx"
	"github.com/grovescm/grove/v2/src/internal/require"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

func testChangeset(parents []ID) *Changeset {
	return &Changeset{
		Parents: parents,
		Changes: []Change{
			{Path: "a/b.txt", Op: OpAdd, ContentRef: []byte("ref1")},
			{Path: "c.txt", Op: OpDelete},
		},
		Metadata: Metadata{
			Author:  "test <test@example.com>",
			Message: "add a/b.txt, delete c.txt",
			Time:    time.Unix(1700000000, 0).UTC(),
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	cs := testChangeset(nil)
	cs.ID = cs.ComputeID()
	decoded, err := Decode(Encode(cs))
	require.NoError(t, err)
	require.True(t, cs.Equal(decoded))
	require.Equal(t, cs.ID, decoded.ID)
}

func TestIDIsContentAddressed(t *testing.T) {
	a := testChangeset(nil)
	b := testChangeset(nil)
	require.Equal(t, a.ComputeID(), b.ComputeID())

	b.Metadata.Message = "something else"
	require.NotEqual(t, a.ComputeID(), b.ComputeID())
}

func TestValidate(t *testing.T) {
	for _, c := range []struct {
		name    string
		changes []Change
		ok      bool
	}{
		{"sorted", []Change{{Path: "a", Op: OpAdd, ContentRef: []byte("r")}, {Path: "b", Op: OpDelete}}, true},
		{"unsorted", []Change{{Path: "b", Op: OpDelete}, {Path: "a", Op: OpDelete}}, false},
		{"duplicate", []Change{{Path: "a", Op: OpDelete}, {Path: "a", Op: OpDelete}}, false},
		{"addWithoutRef", []Change{{Path: "a", Op: OpAdd}}, false},
		{"deleteWithRef", []Change{{Path: "a", Op: OpDelete, ContentRef: []byte("r")}}, false},
		{"emptyPath", []Change{{Path: "", Op: OpDelete}}, false},
	} {
		t.Run(c.name, func(t *testing.T) {
			cs := &Changeset{Changes: c.changes}
			if c.ok {
				require.NoError(t, cs.Validate())
			} else {
				require.YesError(t, cs.Validate())
			}
		})
	}
}

func TestMemGraph(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := NewMemGraph()

	root, err := g.Add(&Changeset{Metadata: Metadata{Message: "root"}})
	require.NoError(t, err)
	child, err := g.Add(testChangeset([]ID{root}))
	require.NoError(t, err)

	parents, err := g.Parents(ctx, child)
	require.NoError(t, err)
	require.Equal(t, []ID{root}, parents)

	// A parent that was never added is rejected.
	_, err = g.Add(testChangeset([]ID{{0xff}}))
	require.YesError(t, err)

	_, err = g.Get(ctx, ID{0xff})
	require.True(t, groveerr.IsNotExist(err))
}

func TestKVGraph(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := NewKVGraph(kv.NewMemStore())

	root, err := g.Add(ctx, &Changeset{Metadata: Metadata{Message: "root"}})
	require.NoError(t, err)
	child, err := g.Add(ctx, testChangeset([]ID{root}))
	require.NoError(t, err)

	got, err := g.Get(ctx, child)
	require.NoError(t, err)
	require.Equal(t, child, got.ID)
	changes, err := g.Changes(ctx, child)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	_, err = g.Get(ctx, ID{0xff})
	require.True(t, groveerr.IsNotExist(err))
}
