package image

import (
	"errors"
	"fmt"
	"sort"

	"imagebot/internal/domain"
)

// ErrUnknownProvider is returned when no adapter is registered for an id.
var ErrUnknownProvider = errors.New("image: unknown provider")

// Registry maps provider ids to adapters. It is built once at startup and
// read-only afterwards.
type Registry struct {
	adapters map[domain.ProviderID]Adapter
}

// NewRegistry registers every adapter under its own ID.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[domain.ProviderID]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		id := a.ID()
		if _, dup := r.adapters[id]; dup {
			return nil, fmt.Errorf("image: provider %q registered twice", id)
		}
		r.adapters[id] = a
	}
	return r, nil
}

// Resolve returns the adapter for id.
func (r *Registry) Resolve(id domain.ProviderID) (Adapter, error) {
	if r != nil {
		if a, ok := r.adapters[id]; ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
}

// IDs lists the registered providers in stable order.
func (r *Registry) IDs() []domain.ProviderID {
	if r == nil {
		return nil
	}
	out := make([]domain.ProviderID, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
