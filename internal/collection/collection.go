// Package collection defines the lazy, immutable query set the filter engine
// narrows, and the Source that hands out a model's full collection. Backends
// live in the memory, pgset and gormset subpackages.
package collection

import (
	"context"

	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Record is one row keyed by field name. To-one relations hold the related
// key; to-many relations hold a []interface{} of related keys when loaded.
type Record map[string]interface{}

// QuerySet is a lazily evaluated, immutable view over a model's records.
// Builder methods return a new QuerySet and never touch storage.
type QuerySet interface {
	Model() *schema.Model

	Filter(p query.Predicate) QuerySet
	Distinct() QuerySet
	OrderBy(keys ...query.OrderBy) QuerySet
	Slice(offset, limit int) QuerySet

	All(ctx context.Context) ([]Record, error)
	Count(ctx context.Context) (int, error)
	// Values returns the distinct values of field, ordered ascending.
	Values(ctx context.Context, field string) ([]interface{}, error)
}

// Source hands out the full, unfiltered collection of a model
type Source interface {
	All(model *schema.Model) QuerySet
}

// Spec is the backend-independent state of a query set. Backends embed it and
// derive new sets with its copy-on-write helpers.
type Spec struct {
	Where    []query.Predicate
	Order    []query.OrderBy
	Distinct bool
	Offset   int
	Limit    int
	HasLimit bool
}

// Predicate returns the AND of all filters applied so far.
func (s Spec) Predicate() query.Predicate {
	return query.And(s.Where...)
}

// WithFilter returns a copy with p appended. nil and empty predicates are ignored.
func (s Spec) WithFilter(p query.Predicate) Spec {
	if query.IsNil(p) || p.IsEmpty() {
		return s
	}
	out := s
	out.Where = append(append([]query.Predicate(nil), s.Where...), p)
	return out
}

// WithOrder returns a copy whose ordering is replaced by keys.
func (s Spec) WithOrder(keys []query.OrderBy) Spec {
	out := s
	out.Order = append([]query.OrderBy(nil), keys...)
	return out
}

// WithDistinct returns a copy with de-duplication enabled.
func (s Spec) WithDistinct() Spec {
	out := s
	out.Distinct = true
	return out
}

// WithSlice returns a copy restricted to the window [offset, offset+limit)
// of the current window. A limit below zero leaves the end open.
func (s Spec) WithSlice(offset, limit int) Spec {
	out := s
	if offset < 0 {
		offset = 0
	}
	out.Offset = s.Offset + offset
	if s.HasLimit {
		remaining := s.Limit - offset
		if remaining < 0 {
			remaining = 0
		}
		if limit < 0 || limit > remaining {
			limit = remaining
		}
	}
	if limit >= 0 {
		out.Limit = limit
		out.HasLimit = true
	}
	return out
}
