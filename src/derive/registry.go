package derive

import (
	"sort"

	"github.com/grovescm/grove/v2/src/internal/errors"
)

// Registry is the static table of derivable types.  It is built once at
// startup and validated: every declared dependency and predecessor must be
// registered, and the dependency relation must be acyclic.
type Registry struct {
	types map[string]Derivable
}

// NewRegistry builds a Registry from types and validates it.
func NewRegistry(types ...Derivable) (*Registry, error) {
	r := &Registry{
		types: make(map[string]Derivable, len(types)),
	}
	for _, d := range types {
		name := d.Name()
		if name == "" {
			return nil, errors.New("derivable type has an empty name")
		}
		if _, ok := r.types[name]; ok {
			return nil, errors.Errorf("derivable type %q registered twice", name)
		}
		r.types[name] = d
	}
	for _, d := range r.types {
		for _, dep := range append(d.Dependencies(), d.PredecessorTypes()...) {
			if _, ok := r.types[dep]; !ok {
				return nil, errors.Errorf("type %q depends on unregistered type %q", d.Name(), dep)
			}
		}
	}
	if err := r.checkAcyclic(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the type registered under name.
func (r *Registry) Get(name string) (Derivable, error) {
	d, ok := r.types[name]
	if !ok {
		return nil, errors.Errorf("derivable type %q is not registered", name)
	}
	return d, nil
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) checkAcyclic() error {
	const (
		white = iota // unvisited
		grey         // on the current path
		black        // done
	)
	color := make(map[string]int, len(r.types))
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case grey:
			return errors.Errorf("dependency cycle through type %q", name)
		case black:
			return nil
		}
		color[name] = grey
		d := r.types[name]
		for _, dep := range append(d.Dependencies(), d.PredecessorTypes()...) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}
	for _, name := range r.Names() {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
