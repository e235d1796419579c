package subsystem

import (
	"fmt"
	"sync"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/nqn"
)

// Registry is the subsystem registry external collaborator (spec.md
// §6): `find_subsystem(subnqn, hostnqn) -> Subsystem | none`. The
// dispatcher only ever reads from it (spec.md §5 "the subsystem registry
// is read-only from the dispatcher's perspective"); registration happens
// out of band, before pollers start dispatching.
type Registry interface {
	Find(subnqn, hostnqn string) (*Subsystem, bool)
}

// entry pairs a subsystem with the set of host NQNs allowed to connect
// to it. An empty allow-list means any host NQN is accepted, matching
// how a Discovery subsystem is normally exposed.
type entry struct {
	subsystem *Subsystem
	hosts     map[string]struct{} // empty => allow any host
}

// MemoryRegistry is an in-memory Registry, the reference implementation
// used by tests and by a single-process target daemon. It is the only
// Registry implementation in this module.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]*entry)}
}

// Register adds a subsystem to the registry, restricting it to the
// given host NQNs (pass none to allow any host, as Discovery
// subsystems conventionally do).
func (r *MemoryRegistry) Register(subsys *Subsystem, allowedHosts ...string) error {
	if err := nqn.Validate(subsys.NQN); err != nil {
		return fmt.Errorf("invalid subsystem NQN: %w", err)
	}

	hosts := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts[h] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[subsys.NQN] = &entry{subsystem: subsys, hosts: hosts}
	return nil
}

// Unregister removes a subsystem from the registry.
func (r *MemoryRegistry) Unregister(subnqn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, subnqn)
}

// Find implements Registry.
func (r *MemoryRegistry) Find(subnqn, hostnqn string) (*Subsystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[subnqn]
	if !ok {
		return nil, false
	}
	if len(e.hosts) == 0 {
		return e.subsystem, true
	}
	if _, allowed := e.hosts[hostnqn]; !allowed {
		return nil, false
	}
	return e.subsystem, true
}
