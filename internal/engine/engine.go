package engine

import (
	"context"
	"fmt"

	"github.com/taskdock/taskdock/internal/store"
)

// Engine drives reconciliation, URL adoption and lifecycle for every
// registered integration. Construct one per process with New; the
// scheduler calls into it, the CLI calls into it, nothing else holds
// integration state.
type Engine struct {
	env          *Env
	registry     *Registry
	integrations map[string]Integration
	problems     *Problems
}

// New constructs the engine, instantiating every registered integration
// against env.
func New(env *Env, registry *Registry) (*Engine, error) {
	integrations, err := registry.build(env)
	if err != nil {
		return nil, err
	}
	return &Engine{
		env:          env,
		registry:     registry,
		integrations: integrations,
		problems:     NewProblems(),
	}, nil
}

// Env exposes the engine's collaborator bundle.
func (e *Engine) Env() *Env {
	return e.env
}

// Kinds returns the registered integration kinds in registration order.
func (e *Engine) Kinds() []string {
	return e.registry.Kinds()
}

// Metadata returns the static metadata for an integration kind.
func (e *Engine) Metadata(kind string) (Metadata, bool) {
	return e.registry.Metadata(kind)
}

// Problems exposes the per-account failure surface.
func (e *Engine) Problems() *Problems {
	return e.problems
}

// integration resolves the integration owning an account. A missing kind
// is a data-integrity failure: the record references an integration this
// process never registered.
func (e *Engine) integration(kind string) (Integration, error) {
	integ, ok := e.integrations[kind]
	if !ok {
		return nil, fmt.Errorf("no integration registered for kind %q", kind)
	}
	return integ, nil
}

// GetItem is a pass-through used by generic item management.
func (e *Engine) GetItem(ctx context.Context, itemID string) (*store.ItemRecord, error) {
	return e.env.Store.GetItem(ctx, itemID)
}
