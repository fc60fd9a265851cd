package changeset

import (
	"context"
)

// Graph supplies parent pointers and change lists for changesets.  It is
// read-only from the derivation layer's perspective.
type Graph interface {
	// Get returns the changeset with the given id, or an error for which
	// groveerr.IsNotExist is true.
	Get(ctx context.Context, id ID) (*Changeset, error)
	// Parents returns the ordered parent ids of id.
	Parents(ctx context.Context, id ID) ([]ID, error)
	// Changes returns the change list of id.
	Changes(ctx context.Context, id ID) ([]Change, error)
}
