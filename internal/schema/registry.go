package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the models known to a process, keyed by name
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry creates a registry holding models.
func NewRegistry(models ...*Model) *Registry {
	r := &Registry{models: make(map[string]*Model)}
	for _, m := range models {
		r.models[m.Name] = m
	}
	return r
}

// Register adds or replaces a model.
func (r *Registry) Register(m *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Name] = m
}

// Get returns the model registered under name.
func (r *Registry) Get(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Link resolves relation targets given by name and rebuilds every model's
// reverse accessors. It must run after all models are registered.
func (r *Registry) Link() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.models))
	for name, m := range r.models {
		names = append(names, name)
		m.Reverse = nil
	}
	sort.Strings(names)

	for _, name := range names {
		m := r.models[name]
		for _, f := range m.Fields {
			if f.Relation == nil {
				continue
			}
			if f.Relation.To == nil {
				target, ok := r.models[f.Relation.ToName]
				if !ok {
					return fmt.Errorf("model %s: field %s references unknown model %q", m.Name, f.Name, f.Relation.ToName)
				}
				f.Relation.To = target
			}
			LinkReverse(m, f)
		}
	}
	return nil
}

// LinkReverse registers the reverse accessor of relation field f (owned by
// owner) on the relation's target model.
func LinkReverse(owner *Model, f *Field) {
	target := f.Relation.To
	if target == nil {
		return
	}
	name := f.Relation.RelatedName
	if name == "" {
		name = owner.Name
	}
	if _, exists := target.ReverseRelation(name); exists {
		return
	}
	target.Reverse = append(target.Reverse, &ReverseRelation{Name: name, Model: owner, Field: f})
}
