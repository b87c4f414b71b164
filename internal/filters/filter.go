// Package filters defines the declarative filter units: each Filter names a
// model field path, builds the form field accepting its input and turns the
// cleaned value into a query predicate.
package filters

import (
	"context"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/form"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Env is the per-evaluation context a filter works in. Filters themselves
// are never mutated after a definition is built.
type Env struct {
	Model    *schema.Model
	Source   collection.Source
	Now      func() time.Time
	Location *time.Location
}

func (e Env) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

// Today returns the current time in the environment's location.
func (e Env) Today() time.Time {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().In(e.location())
}

// Action replaces a filter's predicate building. It receives the cleaned
// value and returns nil for no restriction.
type Action func(value interface{}) query.Predicate

// Filter is one filterable field
type Filter struct {
	// Name is the field path, "__"-separated across relations.
	Name     string
	Label    string
	Lookup   LookupSpec
	Required bool
	Widget   form.Widget
	Initial  interface{}
	Action   Action
	Kind     Kind

	// Seq orders declarations; assigned by the definition builder.
	Seq int
}

// DisplayLabel is the label, or the humanised name when none is set.
func (f *Filter) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return Humanize(f.Name)
}

func (f *Filter) kind() Kind {
	if f.Kind == nil {
		return Char{}
	}
	return f.Kind
}

// Field builds the form field accepting this filter's input. Selectable
// lookups wrap it into a value and lookup pair.
func (f *Filter) Field(ctx context.Context, env Env) (form.Field, error) {
	opts := form.Options{
		Label:    f.DisplayLabel(),
		Required: f.Required,
		Initial:  f.Initial,
		Widget:   f.Widget,
	}
	field, err := f.kind().field(ctx, env, f, opts)
	if err != nil {
		return nil, err
	}
	if !f.Lookup.IsSelectable() {
		return field, nil
	}

	entries := f.Lookup.Entries()
	choices := make([]form.Choice, len(entries))
	for i, e := range entries {
		choices[i] = form.Choice{Value: string(e.Type), Label: e.DisplayLabel()}
	}
	return form.NewLookupTypeField(opts, field, choices), nil
}

// predicateBuilder is implemented by kinds with their own predicate rules
type predicateBuilder interface {
	predicate(f *Filter, env Env, field form.Field, value interface{}) query.Predicate
}

// Predicate turns a cleaned value into a predicate; nil means no
// restriction. field is the form field the value was cleaned by.
func (f *Filter) Predicate(env Env, field form.Field, value interface{}) query.Predicate {
	if f.Action != nil {
		return f.Action(value)
	}
	if pb, ok := f.kind().(predicateBuilder); ok {
		return pb.predicate(f, env, field, value)
	}
	if IsEmpty(value) {
		return nil
	}
	v, lookup := f.unwrap(value)
	if IsEmpty(v) {
		return nil
	}
	return query.Compare(f.Name, lookup, v)
}

// unwrap splits a value and lookup pair. Plain values use the fixed lookup.
func (f *Filter) unwrap(value interface{}) (interface{}, query.LookupType) {
	if l, ok := value.(form.Lookup); ok {
		lookup := l.Type
		if lookup == "" {
			lookup = query.Exact
		}
		return l.Value, lookup
	}
	return value, f.Lookup.Fixed()
}

// IsEmpty reports whether a cleaned value means "not given". False and
// zero are values.
func IsEmpty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case form.Range:
		return x.IsEmpty()
	case form.Lookup, bool:
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Humanize turns a field path into a label: "first_name" becomes
// "First name" and "author__username" becomes "Author username".
func Humanize(name string) string {
	s := strings.ReplaceAll(name, query.PathSeparator, " ")
	s = strings.ReplaceAll(s, "_", " ")
	return Capfirst(s)
}

// Capfirst upper-cases the first letter of s.
func Capfirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
