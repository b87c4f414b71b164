package memory

import (
	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

type resolver struct {
	store *Store
}

// matches evaluates p against one row. A comparison over a to-many path holds
// when any reached value satisfies it.
func (r resolver) matches(model *schema.Model, row collection.Record, p query.Predicate) bool {
	switch v := p.(type) {
	case nil:
		return true
	case *query.Comparison:
		values, ok := r.resolve(model, row, query.SplitPath(v.Field))
		if !ok {
			return false
		}
		if len(values) == 0 {
			// An empty to-many set is null for isnull=true
			return v.Lookup == query.IsNull && matchLookup(nil, v.Lookup, v.Value)
		}
		for _, value := range values {
			if matchLookup(value, v.Lookup, v.Value) {
				return true
			}
		}
		return false
	case *query.Group:
		if v.Op == query.OpOr {
			if len(v.Children) == 0 {
				return true
			}
			for _, child := range v.Children {
				if r.matches(model, row, child) {
					return true
				}
			}
			return false
		}
		for _, child := range v.Children {
			if !r.matches(model, row, child) {
				return false
			}
		}
		return true
	case *query.Negation:
		if v.IsEmpty() {
			return true
		}
		return !r.matches(model, row, v.Child)
	}
	return false
}

// first returns the first value reached by path, or nil.
func (r resolver) first(model *schema.Model, row collection.Record, path string) interface{} {
	values, _ := r.resolve(model, row, query.SplitPath(path))
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// resolve follows segments from row and returns every value reached. The
// second result is false when a segment names nothing on its model.
func (r resolver) resolve(model *schema.Model, row collection.Record, segments []string) ([]interface{}, bool) {
	if len(segments) == 0 {
		return nil, false
	}
	name, rest := segments[0], segments[1:]

	if f, ok := model.Field(name); ok {
		if f.Relation == nil {
			if len(rest) > 0 {
				return nil, false
			}
			return []interface{}{row[name]}, true
		}

		keys := relationKeys(row[name], f.Relation.Many)
		if len(rest) == 0 {
			return keys, true
		}
		target := f.Relation.To
		if target == nil {
			return nil, false
		}
		targetField := f.Relation.TargetField()
		if targetField == nil {
			return nil, false
		}
		var out []interface{}
		for _, key := range keys {
			for _, related := range r.rowsWhere(target, targetField.Name, key) {
				values, ok := r.resolve(target, related, rest)
				if !ok {
					return nil, false
				}
				out = append(out, values...)
			}
		}
		return out, true
	}

	if rev, ok := model.ReverseRelation(name); ok {
		targetField := rev.Field.Relation.TargetField()
		if targetField == nil {
			return nil, false
		}
		own := row[targetField.Name]
		var out []interface{}
		for _, related := range r.store.rows(rev.Model) {
			if !containsKey(relationKeys(related[rev.Field.Name], rev.Field.Relation.Many), own) {
				continue
			}
			if len(rest) == 0 {
				out = append(out, related[rev.Model.PKName()])
				continue
			}
			values, ok := r.resolve(rev.Model, related, rest)
			if !ok {
				return nil, false
			}
			out = append(out, values...)
		}
		return out, true
	}

	return nil, false
}

func (r resolver) rowsWhere(model *schema.Model, field string, key interface{}) []collection.Record {
	var out []collection.Record
	for _, row := range r.store.rows(model) {
		if v, ok := row[field]; ok && v != nil && equalValues(v, key) {
			out = append(out, row)
		}
	}
	return out
}

func relationKeys(v interface{}, many bool) []interface{} {
	if v == nil {
		return nil
	}
	if many {
		return toSlice(v)
	}
	return []interface{}{v}
}

func containsKey(keys []interface{}, key interface{}) bool {
	if key == nil {
		return false
	}
	for _, k := range keys {
		if equalValues(k, key) {
			return true
		}
	}
	return false
}
