package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lyrics-sync-go/services/lyrics"
)

// Provider defines the interface that all lyrics sources must implement
type Provider interface {
	// Name returns the provider's identifier (e.g., "local", "lrclib", "netease")
	Name() string

	// Priority orders providers; lower values are tried first
	Priority() int

	// FetchLyrics fetches lyrics for the given track.
	// Returns:
	//   - *lyrics.Lyrics, nil: lyrics found
	//   - nil, error wrapping ErrNotFound: this source has no lyrics for the track
	//   - nil, any other error: transient failure, try again later
	FetchLyrics(ctx context.Context, track lyrics.Track) (*lyrics.Lyrics, error)
}

// Registry holds the configured providers in priority order. It is assembled once
// at startup.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates a registry holding the given providers.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds a provider, replacing any provider with the same name. Providers
// with equal priority keep registration order.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.providers {
		if existing.Name() == p.Name() {
			r.providers = append(r.providers[:i], r.providers[i+1:]...)
			break
		}
	}
	r.providers = append(r.providers, p)
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].Priority() < r.providers[j].Priority()
	})
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.providers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("provider not found: %s", name)
}

// Ordered returns a copy of the providers in ascending priority.
func (r *Registry) Ordered() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// List returns all registered provider names in priority order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Has checks if a provider is registered
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
