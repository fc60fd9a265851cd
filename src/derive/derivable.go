// Package derive implements the derived-data computation and memoization
// engine: given a changeset and a named derived type, it walks the ancestor
// DAG, computes missing representations in dependency-correct order, persists
// each exactly once, and serves every later request from the mapping store.
package derive

import (
	"context"

	"github.com/grovescm/grove/v2/src/changeset"
)

// Value is an opaque handle for one derived representation of one changeset,
// typically a tree-root id.  Values are produced only by a Derivable's
// computation functions and are never mutated after creation.
type Value interface {
	// String returns a short human-readable form, used in logs and keys.
	String() string
}

// Derivable describes one derived-data type.  Implementations must be
// stateless: every computation function is a pure function of its inputs and
// whatever the derivation Context exposes.
type Derivable interface {
	// Name returns the stable identity of this type.  It is part of the
	// persisted key layout and must never change.
	Name() string
	// KeyPrefix returns the type-specific prefix used in mapping keys.
	KeyPrefix() string
	// Dependencies returns the names of the types that must be fully
	// derived for a changeset before this type's computation runs on it.
	Dependencies() []string
	// PredecessorTypes returns the names of legacy types this type
	// supersedes.  Used only by the migration path.
	PredecessorTypes() []string

	// ComputeSingle computes this type's value for cs.  parents holds the
	// already-computed values for cs's parents, in parent order.
	// ComputeSingle must not write to the mapping store.
	ComputeSingle(ctx context.Context, dctx *Context, cs *changeset.Changeset, parents []Value) (Value, error)
	// ComputeBatch computes values for css, an ancestors-first run of
	// changesets.  parents holds values for every parent of css that is
	// not itself in css.  Semantically equivalent to repeated
	// ComputeSingle calls; gapSize is a hint that intermediate results
	// will not be persisted.  Every changeset in css must appear in the
	// returned map.
	ComputeBatch(ctx context.Context, dctx *Context, css []*changeset.Changeset, parents map[changeset.ID]Value, gapSize int) (map[changeset.ID]Value, error)
	// ComputeFromPredecessor computes this type's value for cs directly
	// from a predecessor type's already-derived value, without walking
	// history.  Only called from the migration path.
	ComputeFromPredecessor(ctx context.Context, dctx *Context, cs *changeset.Changeset) (Value, error)

	// EncodeValue and DecodeValue are the stable wire form of a Value,
	// independent of the persistence byte layout.
	EncodeValue(v Value) ([]byte, error)
	DecodeValue(data []byte) (Value, error)
}
