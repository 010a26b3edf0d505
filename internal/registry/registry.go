// Package registry provides the central glue between item types and the
// adapters that know how to convert, create, and remove them.
//
// The Registry stores mappings between the item-type tag carried by each
// template and the compiled Go adapter implementing that type's
// behavior. The orchestration core never interprets an item type itself;
// it only uses it to select an adapter here. Types without a dedicated
// adapter fall back to the registered generic adapter.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/solkit/internal/portal"
	"github.com/vk/solkit/internal/solution"
	"github.com/vk/solkit/internal/templatize"
)

// ItemAdapter is the per-item-type collaborator contract the
// orchestrators require. One implementation exists per supported type,
// plus a generic fallback.
type ItemAdapter interface {
	// ConvertToTemplate fetches one source item and produces its
	// templatized snapshot, including any dependency ids it discovers.
	ConvertToTemplate(ctx context.Context, itemID string, repo portal.Repository) (solution.ItemTemplate, error)

	// CreateFromTemplate interpolates the template against the
	// dictionary and materializes the item at the destination.
	CreateFromTemplate(ctx context.Context, tpl solution.ItemTemplate, dict *templatize.Dictionary, repo portal.Repository) (portal.CreatedItem, error)

	// Remove deletes a previously created item.
	Remove(ctx context.Context, itemID string, repo portal.Repository) error
}

// Module is the interface adapter packages implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the adapters for a single application instance.
type Registry struct {
	adapters map[string]ItemAdapter
	fallback ItemAdapter
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{adapters: make(map[string]ItemAdapter)}
}

// RegisterAdapter registers an adapter for an item type. Registering the
// same type twice is a programmer error.
func (r *Registry) RegisterAdapter(itemType string, a ItemAdapter) {
	if _, exists := r.adapters[itemType]; exists {
		panic(fmt.Sprintf("adapter for item type %q already registered", itemType))
	}
	slog.Debug("Registering item adapter.", "type", itemType)
	r.adapters[itemType] = a
}

// RegisterFallback registers the generic adapter used for item types
// without a dedicated one.
func (r *Registry) RegisterFallback(a ItemAdapter) {
	if r.fallback != nil {
		panic("fallback adapter already registered")
	}
	slog.Debug("Registering fallback item adapter.")
	r.fallback = a
}

// Adapter returns the adapter for an item type, falling back to the
// generic adapter. The error means no generic adapter was registered
// either, which leaves the type unhandleable.
func (r *Registry) Adapter(itemType string) (ItemAdapter, error) {
	if a, ok := r.adapters[itemType]; ok {
		return a, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no adapter registered for item type %q and no fallback available", itemType)
}

// Types returns the explicitly registered item types.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}
