package manifest

import (
	"context"

	"github.com/zeebo/blake3"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/derive"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/grovehash"
)

// SkeletonTypeName is the stable identity of the skeleton-manifest derived
// type: the shape of the tree with content refs erased.  It tracks which
// paths exist, nothing else, and is derived from the manifest rather than
// from the change list.
const SkeletonTypeName = "skeleton_manifest"

const skeletonKeyPrefix = "skeleton/"

// SkeletonValue is the id of the stored path-list blob.
type SkeletonValue struct {
	id []byte
}

func NewSkeletonValue(id []byte) *SkeletonValue {
	return &SkeletonValue{id: append([]byte{}, id...)}
}

func (v *SkeletonValue) ID() []byte {
	return v.id
}

func (v *SkeletonValue) String() string {
	return grovehash.EncodeHash(v.id)
}

var _ derive.Derivable = &SkeletonType{}

// SkeletonType derives a skeleton manifest per changeset.  It declares a
// dependency on the manifest type and reads its tree instead of replaying
// change lists.
type SkeletonType struct{}

func NewSkeletonType() *SkeletonType {
	return &SkeletonType{}
}

func (*SkeletonType) Name() string               { return SkeletonTypeName }
func (*SkeletonType) KeyPrefix() string          { return "sk1." }
func (*SkeletonType) Dependencies() []string     { return []string{TypeName} }
func (*SkeletonType) PredecessorTypes() []string { return nil }

func (t *SkeletonType) ComputeSingle(ctx context.Context, dctx *derive.Context, cs *changeset.Changeset, parents []derive.Value) (derive.Value, error) {
	mv, err := dctx.DependencyValue(ctx, TypeName, cs.ID)
	if err != nil {
		return nil, err
	}
	rv, ok := mv.(*RootValue)
	if !ok {
		return nil, errors.Errorf("dependency value is not a %s value: %T", TypeName, mv)
	}
	files, err := List(ctx, dctx.ContentStore(), rv.Root())
	if err != nil {
		return nil, err
	}
	var blob []byte
	for _, f := range files {
		blob = protowire.AppendTag(blob, 1, protowire.BytesType)
		blob = protowire.AppendString(blob, f.Path)
	}
	sum := blake3.Sum256(blob)
	id := sum[:]
	key := append([]byte(skeletonKeyPrefix), []byte(grovehash.EncodeHash(id))...)
	if err := dctx.ContentStore().Put(ctx, key, blob); err != nil {
		return nil, err
	}
	return NewSkeletonValue(id), nil
}

func (t *SkeletonType) ComputeBatch(ctx context.Context, dctx *derive.Context, css []*changeset.Changeset, parents map[changeset.ID]derive.Value, gapSize int) (map[changeset.ID]derive.Value, error) {
	return batchFromSingle(ctx, dctx, css, parents, t.ComputeSingle)
}

func (*SkeletonType) ComputeFromPredecessor(ctx context.Context, dctx *derive.Context, cs *changeset.Changeset) (derive.Value, error) {
	return nil, errors.Errorf("%s has no predecessor types", SkeletonTypeName)
}

func (*SkeletonType) EncodeValue(v derive.Value) ([]byte, error) {
	sv, ok := v.(*SkeletonValue)
	if !ok {
		return nil, errors.Errorf("not a %s value: %T", SkeletonTypeName, v)
	}
	return append([]byte{}, sv.id...), nil
}

func (*SkeletonType) DecodeValue(data []byte) (derive.Value, error) {
	if len(data) != grovehash.OutputSize {
		return nil, errors.Errorf("%s value has wrong length: %d", SkeletonTypeName, len(data))
	}
	return NewSkeletonValue(data), nil
}
