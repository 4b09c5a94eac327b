// ABOUTME: Registry of vertical flow definitions, built at startup
// ABOUTME: Preserves registration order because routing is first-match-wins

package flow

import (
	"fmt"
)

// Registry holds the process-wide set of flow definitions. It is built once
// at startup and read concurrently without locking afterwards.
type Registry struct {
	defs  []*Definition
	index map[string]*Definition
}

// NewRegistry validates and registers definitions in the given order. The
// order matters: the intent router matches triggers first-match-wins.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{index: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.index[d.Name]; exists {
			return nil, fmt.Errorf("duplicate flow definition %q", d.Name)
		}
		r.defs = append(r.defs, d)
		r.index[d.Name] = d
	}
	return r, nil
}

// Get returns the definition for a vertical name.
func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.index[name]
	return d, ok
}

// All returns definitions in registration order.
func (r *Registry) All() []*Definition {
	return r.defs
}

// Defaults returns a registry with the built-in verticals in their canonical
// routing order. Info goes last so specific verticals win trigger matches.
func Defaults(maxPartySize int) (*Registry, error) {
	return NewRegistry(
		RestaurantBooking(maxPartySize),
		SalonBooking(),
		LeadQualification(),
		Support(),
		Info(),
	)
}
