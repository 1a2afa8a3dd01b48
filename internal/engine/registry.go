package engine

import (
	"fmt"
)

// Factory constructs an integration bound to an Env.
type Factory func(env *Env) (Integration, error)

// Registry maps integration kinds to factories and static metadata,
// preserving registration order. The order is what the URL resolution
// chain iterates; it is fixed at plugin-initialization time.
type Registry struct {
	order     []string
	factories map[string]Factory
	metadata  map[string]Metadata
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		metadata:  make(map[string]Metadata),
	}
}

// Register adds an integration factory under its kind key. Registering
// the same kind twice is a programming error.
func (r *Registry) Register(kind string, meta Metadata, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("kind cannot be empty")
	}
	if _, dup := r.factories[kind]; dup {
		return fmt.Errorf("integration %q already registered", kind)
	}
	r.order = append(r.order, kind)
	r.factories[kind] = factory
	r.metadata[kind] = meta
	return nil
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Metadata returns the static metadata registered for kind.
func (r *Registry) Metadata(kind string) (Metadata, bool) {
	m, ok := r.metadata[kind]
	return m, ok
}

// build instantiates every registered integration against env.
func (r *Registry) build(env *Env) (map[string]Integration, error) {
	out := make(map[string]Integration, len(r.factories))
	for _, kind := range r.order {
		integ, err := r.factories[kind](env)
		if err != nil {
			return nil, fmt.Errorf("failed to construct integration %q: %w", kind, err)
		}
		if integ.Kind() != kind {
			return nil, fmt.Errorf("integration registered as %q reports kind %q", kind, integ.Kind())
		}
		out[kind] = integ
	}
	return out, nil
}
