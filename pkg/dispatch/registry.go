package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/pushkit/pushkit/pkg/device"
)

// Registry maps provider families to adapters. Adding a provider is a
// Register call; dispatch control flow never branches on platform strings.
type Registry struct {
	adapters map[device.Provider]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates an adapter registry.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[device.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register installs an adapter, replacing any previous one for the same
// provider family.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Provider()] = a
}

// Adapter returns the adapter for the provider, or nil.
func (r *Registry) Adapter(provider device.Provider) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[provider]
}

// Providers lists the registered provider families.
func (r *Registry) Providers() []device.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]device.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}

// Send routes the request to the provider's adapter. An unknown provider is
// rejected immediately without any network call.
func (r *Registry) Send(ctx context.Context, provider device.Provider, req Request) Response {
	a := r.Adapter(provider)
	if a == nil {
		return failure(ErrCodeUnsupported, fmt.Sprintf("no adapter registered for provider %q", provider), false)
	}
	return a.Send(ctx, req)
}
