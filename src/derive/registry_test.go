package derive

import (
	"testing"

	"github.com/grovescm/grove/v2/src/internal/require"
)

func TestRegistry(t *testing.T) {
	a := &countType{name: "a"}
	b := &countType{name: "b", deps: []string{"a"}}
	r, err := NewRegistry(a, b)
	require.NoError(t, err)

	got, err := r.Get("a")
	require.NoError(t, err)
	require.Equal(t, "a", got.Name())
	_, err = r.Get("nope")
	require.YesError(t, err)
	require.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(&countType{name: ""})
	require.YesError(t, err)
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	_, err := NewRegistry(&countType{name: "a"}, &countType{name: "a"})
	require.YesError(t, err)
}

func TestRegistryRejectsUnknownDependency(t *testing.T) {
	_, err := NewRegistry(&countType{name: "a", deps: []string{"missing"}})
	require.YesError(t, err)
}

func TestRegistryRejectsUnknownPredecessor(t *testing.T) {
	_, err := NewRegistry(&countType{name: "a", preds: []string{"missing"}})
	require.YesError(t, err)
}

func TestRegistryRejectsCycle(t *testing.T) {
	a := &countType{name: "a", deps: []string{"b"}}
	b := &countType{name: "b", deps: []string{"a"}}
	_, err := NewRegistry(a, b)
	require.YesError(t, err)

	// Self-cycles too.
	_, err = NewRegistry(&countType{name: "a", deps: []string{"a"}})
	require.YesError(t, err)

	// Predecessor edges count toward cycles.
	c := &countType{name: "c", preds: []string{"d"}}
	d := &countType{name: "d", deps: []string{"c"}}
	_, err = NewRegistry(c, d)
	require.YesError(t, err)
}
