package manifest

import (
	"context"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/derive"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/grovehash"
)

// TypeV2Name is the stable identity of the second manifest version, which
// supersedes the original manifest type.  It carries the tree root plus a
// file count, and migrates from already-derived v1 values without walking
// history.
const TypeV2Name = "manifest_v2"

// V2Value is the derived value of the manifest_v2 type.
type V2Value struct {
	root  []byte
	count int64
}

func NewV2Value(root []byte, count int64) *V2Value {
	return &V2Value{root: append([]byte{}, root...), count: count}
}

// Root returns the root node id.
func (v *V2Value) Root() []byte {
	return v.root
}

// FileCount returns the number of files in the tree.
func (v *V2Value) FileCount() int64 {
	return v.count
}

func (v *V2Value) String() string {
	return grovehash.EncodeHash(v.root)
}

var _ derive.Derivable = &TypeV2{}

// TypeV2 derives manifest_v2 values.
type TypeV2 struct{}

func NewTypeV2() *TypeV2 {
	return &TypeV2{}
}

func (*TypeV2) Name() string               { return TypeV2Name }
func (*TypeV2) KeyPrefix() string          { return "v2." }
func (*TypeV2) Dependencies() []string     { return nil }
func (*TypeV2) PredecessorTypes() []string { return []string{TypeName} }

func (t *TypeV2) ComputeSingle(ctx context.Context, dctx *derive.Context, cs *changeset.Changeset, parents []derive.Value) (derive.Value, error) {
	roots := make([][]byte, len(parents))
	for i, p := range parents {
		pv, ok := p.(*V2Value)
		if !ok {
			return nil, errors.Errorf("parent value is not a %s value: %T", TypeV2Name, p)
		}
		roots[i] = pv.root
	}
	root, err := Build(ctx, dctx.ContentStore(), roots, cs.Changes)
	if err != nil {
		return nil, err
	}
	files, err := List(ctx, dctx.ContentStore(), root)
	if err != nil {
		return nil, err
	}
	return NewV2Value(root, int64(len(files))), nil
}

func (t *TypeV2) ComputeBatch(ctx context.Context, dctx *derive.Context, css []*changeset.Changeset, parents map[changeset.ID]derive.Value, gapSize int) (map[changeset.ID]derive.Value, error) {
	return batchFromSingle(ctx, dctx, css, parents, t.ComputeSingle)
}

// ComputeFromPredecessor lifts an already-derived v1 value for the same
// changeset; no ancestor walk and no change-list replay.
func (t *TypeV2) ComputeFromPredecessor(ctx context.Context, dctx *derive.Context, cs *changeset.Changeset) (derive.Value, error) {
	pv, err := dctx.DependencyValue(ctx, TypeName, cs.ID)
	if err != nil {
		return nil, err
	}
	rv, ok := pv.(*RootValue)
	if !ok {
		return nil, errors.Errorf("predecessor value is not a %s value: %T", TypeName, pv)
	}
	files, err := List(ctx, dctx.ContentStore(), rv.Root())
	if err != nil {
		return nil, err
	}
	return NewV2Value(rv.Root(), int64(len(files))), nil
}

const (
	v2FieldRoot  = 1
	v2FieldCount = 2
)

func (*TypeV2) EncodeValue(v derive.Value) ([]byte, error) {
	vv, ok := v.(*V2Value)
	if !ok {
		return nil, errors.Errorf("not a %s value: %T", TypeV2Name, v)
	}
	var buf []byte
	buf = protowire.AppendTag(buf, v2FieldRoot, protowire.BytesType)
	buf = protowire.AppendBytes(buf, vv.root)
	buf = protowire.AppendTag(buf, v2FieldCount, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(vv.count))
	return buf, nil
}

func (*TypeV2) DecodeValue(data []byte) (derive.Value, error) {
	var root []byte
	var count int64
	for len(data) > 0 {
		num, typ, sz := protowire.ConsumeTag(data)
		if sz < 0 {
			return nil, errors.EnsureStack(protowire.ParseError(sz))
		}
		data = data[sz:]
		switch num {
		case v2FieldRoot:
			v, sz := protowire.ConsumeBytes(data)
			if sz < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
			root = append([]byte{}, v...)
		case v2FieldCount:
			v, sz := protowire.ConsumeVarint(data)
			if sz < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
			count = int64(v)
		default:
			sz := protowire.ConsumeFieldValue(num, typ, data)
			if sz < 0 {
				return nil, errors.EnsureStack(protowire.ParseError(sz))
			}
			data = data[sz:]
		}
	}
	if len(root) != grovehash.OutputSize {
		return nil, errors.Errorf("%s root has wrong length: %d", TypeV2Name, len(root))
	}
	return &V2Value{root: root, count: count}, nil
}
