package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry holds the host's plugin instances indexed by name.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*Instance),
	}
}

// Add registers an instance. Names are unique.
func (r *Registry) Add(inst *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[inst.Name()]; exists {
		return fmt.Errorf("plugin %q already registered", inst.Name())
	}
	r.instances[inst.Name()] = inst
	return nil
}

// Get retrieves an instance by name.
func (r *Registry) Get(name string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	return inst, ok
}

// All returns every instance sorted by name.
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].Name() < out[b].Name() })
	return out
}

// CommandOwner returns the loaded instance that registered command.
func (r *Registry) CommandOwner(command string) (*Instance, bool) {
	return FindCommand(r.All(), command)
}

// FindCommand returns the first loaded instance in instances that
// registered command during its handshake.
func FindCommand(instances []*Instance, command string) (*Instance, bool) {
	for _, inst := range instances {
		if inst.IsLoaded() && inst.IsCommand(command) {
			return inst, true
		}
	}
	return nil, false
}

// LoadAll loads every instance accepted by filter (all when nil) concurrently
// and reports the result per name.
func (r *Registry) LoadAll(ctx context.Context, filter func(*Instance) bool) map[string]bool {
	var targets []*Instance
	for _, inst := range r.All() {
		if filter == nil || filter(inst) {
			targets = append(targets, inst)
		}
	}
	return each(targets, func(inst *Instance) bool { return inst.Load(ctx) })
}

// UnloadAll unloads every instance concurrently.
func (r *Registry) UnloadAll(ctx context.Context) {
	each(r.All(), func(inst *Instance) bool { return inst.Unload(ctx) })
}

// Loaded returns how many instances currently have a live process.
func (r *Registry) Loaded() int {
	n := 0
	for _, inst := range r.All() {
		if inst.IsLoaded() {
			n++
		}
	}
	return n
}

func each(instances []*Instance, fn func(*Instance) bool) map[string]bool {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out = make(map[string]bool, len(instances))
	)
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			ok := fn(inst)
			mu.Lock()
			out[inst.Name()] = ok
			mu.Unlock()
		}(inst)
	}
	wg.Wait()
	return out
}
