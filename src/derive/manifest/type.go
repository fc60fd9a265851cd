package manifest

import (
	"context"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/derive"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/grovehash"
)

// TypeName is the stable identity of the manifest derived type.
const TypeName = "manifest"

// RootValue is the derived value of the manifest type: the root node id of
// the changeset's tree.
type RootValue struct {
	root []byte
}

func NewRootValue(root []byte) *RootValue {
	return &RootValue{root: append([]byte{}, root...)}
}

// Root returns the root node id.
func (v *RootValue) Root() []byte {
	return v.root
}

func (v *RootValue) String() string {
	return grovehash.EncodeHash(v.root)
}

var _ derive.Derivable = &Type{}

// Type derives a manifest tree per changeset.
type Type struct{}

func NewType() *Type {
	return &Type{}
}

func (*Type) Name() string               { return TypeName }
func (*Type) KeyPrefix() string          { return "" }
func (*Type) Dependencies() []string     { return nil }
func (*Type) PredecessorTypes() []string { return nil }

func (t *Type) ComputeSingle(ctx context.Context, dctx *derive.Context, cs *changeset.Changeset, parents []derive.Value) (derive.Value, error) {
	roots, err := rootsOf(parents)
	if err != nil {
		return nil, err
	}
	root, err := Build(ctx, dctx.ContentStore(), roots, cs.Changes)
	if err != nil {
		return nil, err
	}
	return NewRootValue(root), nil
}

func (t *Type) ComputeBatch(ctx context.Context, dctx *derive.Context, css []*changeset.Changeset, parents map[changeset.ID]derive.Value, gapSize int) (map[changeset.ID]derive.Value, error) {
	return batchFromSingle(ctx, dctx, css, parents, t.ComputeSingle)
}

func (*Type) ComputeFromPredecessor(ctx context.Context, dctx *derive.Context, cs *changeset.Changeset) (derive.Value, error) {
	return nil, errors.Errorf("%s has no predecessor types", TypeName)
}

func (*Type) EncodeValue(v derive.Value) ([]byte, error) {
	rv, ok := v.(*RootValue)
	if !ok {
		return nil, errors.Errorf("not a %s value: %T", TypeName, v)
	}
	return append([]byte{}, rv.root...), nil
}

func (*Type) DecodeValue(data []byte) (derive.Value, error) {
	if len(data) != grovehash.OutputSize {
		return nil, errors.Errorf("%s value has wrong length: %d", TypeName, len(data))
	}
	return NewRootValue(data), nil
}

func rootsOf(parents []derive.Value) ([][]byte, error) {
	roots := make([][]byte, len(parents))
	for i, p := range parents {
		rv, ok := p.(*RootValue)
		if !ok {
			return nil, errors.Errorf("parent value is not a %s value: %T", TypeName, p)
		}
		roots[i] = rv.root
	}
	return roots, nil
}

// batchFromSingle computes an ancestors-first run one changeset at a time,
// resolving parent values from the run's own results before falling back to
// the values supplied for the frontier.
func batchFromSingle(
	ctx context.Context,
	dctx *derive.Context,
	css []*changeset.Changeset,
	parents map[changeset.ID]derive.Value,
	single func(context.Context, *derive.Context, *changeset.Changeset, []derive.Value) (derive.Value, error),
) (map[changeset.ID]derive.Value, error) {
	vals := make(map[changeset.ID]derive.Value, len(css))
	for _, cs := range css {
		pvs := make([]derive.Value, len(cs.Parents))
		for i, p := range cs.Parents {
			if v, ok := vals[p]; ok {
				pvs[i] = v
				continue
			}
			v, ok := parents[p]
			if !ok {
				return nil, errors.Errorf("no value for parent %v of %v in batch", p, cs.ID)
			}
			pvs[i] = v
		}
		v, err := single(ctx, dctx, cs, pvs)
		if err != nil {
			return nil, err
		}
		vals[cs.ID] = v
	}
	return vals, nil
}
