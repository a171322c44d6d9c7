// Package presence tracks which usernames are bound to open connections,
// partitioned by tenant key.
package presence

import (
	"sort"
	"sync"
)

// Registry is a per-tenant reference-counted set of usernames.
type Registry struct {
	mu      sync.Mutex
	tenants map[string]*partition
}

type partition struct {
	mu    sync.Mutex
	names map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tenants: make(map[string]*partition)}
}

func (r *Registry) partition(tenant string, create bool) *partition {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.tenants[tenant]
	if !ok && create {
		p = &partition{names: make(map[string]int)}
		r.tenants[tenant] = p
	}
	return p
}

// Add binds one more connection to username in tenant.
func (r *Registry) Add(tenant, username string) {
	if r == nil || username == "" {
		return
	}
	p := r.partition(tenant, true)
	p.mu.Lock()
	p.names[username]++
	p.mu.Unlock()
}

// Remove releases one binding of username. The name leaves the set once no
// connection holds it.
func (r *Registry) Remove(tenant, username string) {
	if r == nil || username == "" {
		return
	}
	p := r.partition(tenant, false)
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch n := p.names[username]; {
	case n <= 1:
		delete(p.names, username)
	default:
		p.names[username] = n - 1
	}
}

// List returns the tenant's usernames sorted ascending.
func (r *Registry) List(tenant string) []string {
	users := make([]string, 0)
	if r == nil {
		return users
	}
	p := r.partition(tenant, false)
	if p == nil {
		return users
	}
	p.mu.Lock()
	for name := range p.names {
		users = append(users, name)
	}
	p.mu.Unlock()
	sort.Strings(users)
	return users
}

// Len reports the number of distinct usernames present in tenant.
func (r *Registry) Len(tenant string) int {
	if r == nil {
		return 0
	}
	p := r.partition(tenant, false)
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.names)
}

// Contains reports whether username is present in tenant.
func (r *Registry) Contains(tenant, username string) bool {
	if r == nil {
		return false
	}
	p := r.partition(tenant, false)
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.names[username] > 0
}
