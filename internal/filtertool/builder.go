// Package filtertool assembles filters into definitions and evaluates a
// definition against submitted data and a base collection.
package filtertool

import (
	"fmt"

	"github.com/fluxbase-eu/filterkit/internal/filters"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// ConfigurationError reports a definition that cannot be assembled or bound
type ConfigurationError struct {
	Definition string
	Field      string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("filter definition %s: %s", e.Definition, e.Reason)
	}
	return fmt.Sprintf("filter definition %s: field %q %s", e.Definition, e.Field, e.Reason)
}

// Meta configures how filters are derived from a model
type Meta struct {
	Model *schema.Model
	// Fields limits derived filters to these paths, in this order. A path may
	// end in a lookup, e.g. "price__lt". nil derives every field.
	Fields    []string
	Exclude   []string
	OrderBy   OrderingSpec
	Overrides Overrides
}

// Definition is an immutable, ordered set of filters. Keys are the names
// filters are submitted under; a filter's Name is the field path it reads.
type Definition struct {
	name     string
	meta     Meta
	keys     []string
	filters  map[string]filters.Filter
	declared []declaration
}

type declaration struct {
	key    string
	filter filters.Filter
}

func (d *Definition) Name() string { return d.name }

func (d *Definition) Model() *schema.Model { return d.meta.Model }

func (d *Definition) Meta() Meta { return d.meta }

// Keys returns the filter keys in order
func (d *Definition) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// OrderingKeys returns the keys results can be ordered by, nil when
// ordering is disabled.
func (d *Definition) OrderingKeys() []string {
	switch d.meta.OrderBy.mode {
	case orderingDisabled:
		return nil
	case orderingFilters:
		return d.meta.OrderBy.filterKeys(d, d.meta.Model)
	default:
		return d.meta.OrderBy.Keys()
	}
}

// Filter returns a copy of the filter under key
func (d *Definition) Filter(key string) (filters.Filter, bool) {
	f, ok := d.filters[key]
	return f, ok
}

// Filters returns copies of all filters in order
func (d *Definition) Filters() []filters.Filter {
	out := make([]filters.Filter, len(d.keys))
	for i, key := range d.keys {
		out[i] = d.filters[key]
	}
	return out
}

// Builder assembles a Definition from a Meta, parent definitions and
// declared filters
type Builder struct {
	name     string
	meta     Meta
	parents  []*Definition
	declared []declaration
}

func NewBuilder(meta Meta) *Builder {
	return &Builder{meta: meta}
}

// Named sets the definition's name, used in errors, metrics and the API.
func (b *Builder) Named(name string) *Builder {
	b.name = name
	return b
}

// Extend inherits the declared filters of parents, first parent first.
func (b *Builder) Extend(parents ...*Definition) *Builder {
	b.parents = append(b.parents, parents...)
	return b
}

// Declare adds an explicit filter under key. The filter reads the field
// path key unless it sets its own Name.
func (b *Builder) Declare(key string, f filters.Filter) *Builder {
	if f.Name == "" {
		f.Name = key
	}
	f.Seq = len(b.declared)
	b.declared = append(b.declared, declaration{key: key, filter: f})
	return b
}

// orderedSet is a map that remembers where each key was first introduced
type orderedSet struct {
	keys    []string
	filters map[string]filters.Filter
}

func newOrderedSet() *orderedSet {
	return &orderedSet{filters: make(map[string]filters.Filter)}
}

func (s *orderedSet) put(key string, f filters.Filter) {
	if _, ok := s.filters[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.filters[key] = f
}

func (b *Builder) Build() (*Definition, error) {
	meta := b.meta
	if meta.Model == nil && len(b.parents) > 0 {
		meta = b.parents[0].meta
	}
	name := b.name
	if name == "" && meta.Model != nil {
		name = meta.Model.Name
	}

	// Declared filters: every parent's, then ours, each level in sequence
	// order. A redeclared key keeps its first position and the latest filter.
	var declared []declaration
	at := make(map[string]int)
	levels := make([][]declaration, 0, len(b.parents)+1)
	for _, p := range b.parents {
		levels = append(levels, p.declared)
	}
	for _, level := range append(levels, b.declared) {
		for _, d := range level {
			if i, ok := at[d.key]; ok {
				declared[i] = d
				continue
			}
			at[d.key] = len(declared)
			declared = append(declared, d)
		}
	}

	set := newOrderedSet()
	if meta.Model != nil {
		derived, err := deriveFilters(name, meta, declared)
		if err != nil {
			return nil, err
		}
		for _, d := range derived {
			set.put(d.key, d.filter)
		}
	}

	for _, d := range declared {
		if meta.Model != nil {
			if err := checkDeclared(name, meta.Model, d.filter); err != nil {
				return nil, err
			}
		}
		set.put(d.key, d.filter)
	}

	return &Definition{
		name:     name,
		meta:     meta,
		keys:     set.keys,
		filters:  set.filters,
		declared: declared,
	}, nil
}

// deriveFilters builds the model-derived filters. Without an allowlist
// every concrete field is used, then the many-to-many fields.
func deriveFilters(name string, meta Meta, declared []declaration) ([]declaration, error) {
	isDeclared := make(map[string]bool, len(declared))
	for _, d := range declared {
		isDeclared[d.key] = true
	}
	excluded := make(map[string]bool, len(meta.Exclude))
	for _, e := range meta.Exclude {
		excluded[e] = true
	}

	paths := meta.Fields
	explicit := paths != nil
	if !explicit {
		for _, f := range meta.Model.NaturalFields() {
			paths = append(paths, f.Name)
		}
	}

	var out []declaration
	for _, key := range paths {
		if excluded[key] {
			continue
		}
		path, lookup := query.SplitLookup(key)
		if path == key {
			lookup = ""
		}

		field, ok := ResolveField(meta.Model, path)
		if !ok {
			if isDeclared[key] {
				continue
			}
			return nil, &ConfigurationError{Definition: name, Field: key, Reason: "does not resolve on model " + meta.Model.Name}
		}
		f, ok := FilterForField(field, path, lookup, meta.Overrides)
		if !ok {
			if explicit && !isDeclared[key] {
				return nil, &ConfigurationError{Definition: name, Field: key, Reason: "has no default filter and is not declared"}
			}
			continue
		}
		out = append(out, declaration{key: key, filter: f})
	}
	return out, nil
}

// checkDeclared verifies a declared filter reads fields the model has.
// Filters with an Action may read virtual fields.
func checkDeclared(name string, model *schema.Model, f filters.Filter) error {
	if f.Action != nil {
		return nil
	}
	paths := []string{f.Name}
	if mf, ok := f.Kind.(filters.MultipleField); ok {
		paths = mf.Fields
	}
	for _, path := range paths {
		if _, ok := ResolveField(model, path); ok {
			continue
		}
		if stripped, _ := query.SplitLookup(path); stripped != path {
			if _, ok := ResolveField(model, stripped); ok {
				continue
			}
		}
		return &ConfigurationError{Definition: name, Field: path, Reason: "does not resolve on model " + model.Name}
	}
	return nil
}
