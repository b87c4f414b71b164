// Package memory is an in-process collection backend. Records are kept per
// model and predicates are evaluated row by row, following relations through
// the stored keys.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Store holds records for any number of models
type Store struct {
	mu     sync.RWMutex
	tables map[string][]collection.Record
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{tables: make(map[string][]collection.Record)}
}

// Insert appends records to the model's table. Records are stored as given;
// callers must not mutate them afterwards.
func (s *Store) Insert(model *schema.Model, records ...collection.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[model.Name] = append(s.tables[model.Name], records...)
}

// All implements collection.Source.
func (s *Store) All(model *schema.Model) collection.QuerySet {
	return &QuerySet{store: s, model: model}
}

func (s *Store) rows(model *schema.Model) []collection.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tables[model.Name]
	out := make([]collection.Record, len(rows))
	copy(out, rows)
	return out
}

// QuerySet is a lazily evaluated view over a Store table
type QuerySet struct {
	store *Store
	model *schema.Model
	spec  collection.Spec
}

func (q *QuerySet) derive(spec collection.Spec) *QuerySet {
	return &QuerySet{store: q.store, model: q.model, spec: spec}
}

func (q *QuerySet) Model() *schema.Model { return q.model }

func (q *QuerySet) Filter(p query.Predicate) collection.QuerySet {
	return q.derive(q.spec.WithFilter(p))
}

func (q *QuerySet) Distinct() collection.QuerySet {
	return q.derive(q.spec.WithDistinct())
}

func (q *QuerySet) OrderBy(keys ...query.OrderBy) collection.QuerySet {
	return q.derive(q.spec.WithOrder(keys))
}

func (q *QuerySet) Slice(offset, limit int) collection.QuerySet {
	return q.derive(q.spec.WithSlice(offset, limit))
}

// All evaluates the query set. Rows are matched one at a time, so results never
// contain duplicates and Distinct has nothing left to remove.
func (q *QuerySet) All(ctx context.Context) ([]collection.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := resolver{store: q.store}
	pred := q.spec.Predicate()
	var out []collection.Record
	for _, row := range q.store.rows(q.model) {
		if r.matches(q.model, row, pred) {
			out = append(out, row)
		}
	}

	if len(q.spec.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, key := range q.spec.Order {
				cmp := sortCompare(r.first(q.model, out[i], key.Field), r.first(q.model, out[j], key.Field))
				if cmp == 0 {
					continue
				}
				if key.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	return window(out, q.spec), nil
}

func (q *QuerySet) Count(ctx context.Context) (int, error) {
	rows, err := q.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Values returns the distinct non-null values reached by field, ascending.
func (q *QuerySet) Values(ctx context.Context, field string) ([]interface{}, error) {
	rows, err := q.All(ctx)
	if err != nil {
		return nil, err
	}

	r := resolver{store: q.store}
	var out []interface{}
	for _, row := range rows {
		values, _ := r.resolve(q.model, row, query.SplitPath(field))
		for _, v := range values {
			if v == nil || containsValue(out, v) {
				continue
			}
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return sortCompare(out[i], out[j]) < 0 })
	return out, nil
}

func containsValue(values []interface{}, v interface{}) bool {
	for _, existing := range values {
		if equalValues(existing, v) {
			return true
		}
	}
	return false
}

func window(rows []collection.Record, spec collection.Spec) []collection.Record {
	if spec.Offset >= len(rows) {
		return nil
	}
	rows = rows[spec.Offset:]
	if spec.HasLimit && spec.Limit < len(rows) {
		rows = rows[:spec.Limit]
	}
	return rows
}
