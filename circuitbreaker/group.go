package circuitbreaker

import (
	"fmt"
	"sort"
	"sync"
)

// Group holds one breaker per provider, created lazily with a shared config
type Group struct {
	mu       sync.Mutex
	template Config
	breakers map[string]*CircuitBreaker
}

// NewGroup creates an empty group. cfg.Name is ignored; each breaker is named
// after its provider.
func NewGroup(cfg Config) *Group {
	return &Group{
		template: cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use
func (g *Group) Get(name string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[name]; ok {
		return cb
	}
	cfg := g.template
	cfg.Name = name
	cb := New(cfg)
	g.breakers[name] = cb
	return cb
}

// Lookup returns the breaker for name without creating one
func (g *Group) Lookup(name string) (*CircuitBreaker, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[name]
	return cb, ok
}

// Reset closes the named breaker
func (g *Group) Reset(name string) error {
	cb, ok := g.Lookup(name)
	if !ok {
		return fmt.Errorf("no circuit breaker for provider: %s", name)
	}
	cb.Reset()
	return nil
}

// ResetAll closes every breaker
func (g *Group) ResetAll() {
	for _, cb := range g.all() {
		cb.Reset()
	}
}

// Statuses returns a snapshot of every breaker, sorted by name
func (g *Group) Statuses() []Status {
	breakers := g.all()
	statuses := make([]Status, 0, len(breakers))
	for _, cb := range breakers {
		statuses = append(statuses, cb.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

func (g *Group) all() []*CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		out = append(out, cb)
	}
	return out
}
