// Package changeset defines the canonical commit model: content-addressed
// changesets forming a DAG, and the graph interface that supplies parent
// pointers and change lists to the derivation layer.
package changeset

import (
	"bytes"
	"time"

	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/grovehash"
)

// ID identifies a changeset.  It is the hash of the changeset's canonical
// encoding, so equal content means equal ID.
type ID grovehash.Output

// String returns the canonical hex form of the ID.
func (id ID) String() string {
	return grovehash.EncodeHash(id[:])
}

// Bytes returns the raw bytes of the ID.
func (id ID) Bytes() []byte {
	return id[:]
}

// IsZero returns true for the zero ID, which never names a changeset.
func (id ID) IsZero() bool {
	return id == ID{}
}

// ParseID parses the canonical hex form of an ID.
func ParseID(s string) (ID, error) {
	h, err := grovehash.DecodeHash(s)
	if err != nil {
		return ID{}, err
	}
	return IDFromBytes(h)
}

// IDFromBytes converts raw bytes to an ID.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != grovehash.OutputSize {
		return ID{}, errors.Errorf("changeset id has wrong length: %d, expected %d", len(b), grovehash.OutputSize)
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// Op is the kind of a change to a path.
type Op int32

const (
	OpAdd Op = iota + 1
	OpModify
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Change is one path-level change in a changeset.  ContentRef points at the
// new content in the content store; it is empty for deletes.
type Change struct {
	Path       string
	Op         Op
	ContentRef []byte
}

// Metadata carries the commit description.
type Metadata struct {
	Author  string
	Message string
	Time    time.Time
}

// Changeset is a canonical description of a commit: ordered parents plus a
// path-sorted change list plus metadata.  Changesets are immutable once
// their ID has been computed.
type Changeset struct {
	ID       ID
	Parents  []ID
	Changes  []Change
	Metadata Metadata
}

// Validate checks structural invariants that the rest of the module relies
// on: the change list is sorted by path with no duplicates, and non-delete
// changes carry a content ref.
func (cs *Changeset) Validate() error {
	for i, c := range cs.Changes {
		if c.Path == "" {
			return errors.Errorf("change %d has an empty path", i)
		}
		if i > 0 && cs.Changes[i-1].Path >= c.Path {
			return errors.Errorf("change list is not sorted at %q", c.Path)
		}
		switch c.Op {
		case OpAdd, OpModify:
			if len(c.ContentRef) == 0 {
				return errors.Errorf("%s of %q is missing a content ref", c.Op, c.Path)
			}
		case OpDelete:
			if len(c.ContentRef) != 0 {
				return errors.Errorf("delete of %q carries a content ref", c.Path)
			}
		default:
			return errors.Errorf("change %q has unknown op %d", c.Path, c.Op)
		}
	}
	return nil
}

// ComputeID returns the content hash of the changeset's canonical encoding.
func (cs *Changeset) ComputeID() ID {
	return ID(grovehash.Sum(appendChangesetBody(nil, cs)))
}

// Equal reports whether two changesets encode identically.
func (cs *Changeset) Equal(other *Changeset) bool {
	return bytes.Equal(appendChangesetBody(nil, cs), appendChangesetBody(nil, other))
}
