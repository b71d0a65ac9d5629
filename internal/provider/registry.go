package provider

import (
	"fmt"
	"sort"
	"sync"

	"paylink/internal/domain/integration"

	"github.com/rs/zerolog/log"
)

// Registry manages all payment adapters
type Registry struct {
	adapters map[integration.Kind]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[integration.Kind]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any adapter of the same kind
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[a.Kind()] = a
	log.Info().
		Str("provider", string(a.Kind())).
		Str("signature_header", a.SignatureHeader()).
		Msg("registered payment adapter")
}

// Get returns the adapter for kind
func (r *Registry) Get(kind integration.Kind) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[kind]
	if !ok {
		return nil, &ProviderError{
			Code:    ErrProviderNotFound,
			Message: fmt.Sprintf("provider %s not registered", kind),
		}
	}
	return a, nil
}

// Lookup resolves a raw path segment to a registered kind. Only
// allow-listed kinds with an adapter are known.
func (r *Registry) Lookup(raw string) (integration.Kind, bool) {
	kind, ok := integration.ParseKind(raw)
	if !ok {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok = r.adapters[kind]
	return kind, ok
}

// Kinds lists registered kinds in name order
func (r *Registry) Kinds() []integration.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]integration.Kind, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
