package filters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fluxbase-eu/filterkit/internal/form"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Kind is the value domain of a filter. Each kind carries the options it
// needs and builds the matching form field.
type Kind interface {
	Name() string
	field(ctx context.Context, env Env, f *Filter, opts form.Options) (form.Field, error)
}

// Char filters on free text.
type Char struct{}

func (Char) Name() string { return "char" }

func (Char) field(_ context.Context, _ Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewCharField(opts), nil
}

// Boolean filters on unknown, true or false. False restricts like any other
// value; only unknown leaves the collection alone.
type Boolean struct{}

func (Boolean) Name() string { return "boolean" }

func (Boolean) field(_ context.Context, _ Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewNullBooleanField(opts), nil
}

func (Boolean) predicate(f *Filter, _ Env, _ form.Field, value interface{}) query.Predicate {
	v, lookup := f.unwrap(value)
	if v == nil {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		b = !IsEmpty(v)
	}
	return query.Compare(f.Name, lookup, b)
}

// Choice filters on one value out of a fixed list.
type Choice struct {
	Choices []form.Choice
}

func (Choice) Name() string { return "choice" }

func (k Choice) field(_ context.Context, _ Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewChoiceField(opts, k.Choices), nil
}

// MultipleChoice matches any of the selected values. Selecting nothing or
// everything leaves the collection alone.
type MultipleChoice struct {
	Choices []form.Choice
}

func (MultipleChoice) Name() string { return "multiple_choice" }

func (k MultipleChoice) field(_ context.Context, _ Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewMultipleChoiceField(opts, k.Choices), nil
}

func (MultipleChoice) predicate(f *Filter, _ Env, field form.Field, value interface{}) query.Predicate {
	return anyOf(f, field, value)
}

func anyOf(f *Filter, field form.Field, value interface{}) query.Predicate {
	v, lookup := f.unwrap(value)
	selected := toSlice(v)
	if len(selected) == 0 {
		return nil
	}
	if l, ok := field.(*form.LookupTypeField); ok {
		field = l.ValueField()
	}
	if c, ok := field.(form.Chooser); ok && distinctCount(selected) == len(c.Choices()) {
		return nil
	}

	preds := make([]query.Predicate, len(selected))
	for i, s := range selected {
		preds[i] = query.Compare(f.Name, lookup, s)
	}
	return query.Or(preds...)
}

func distinctCount(values []interface{}) int {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		seen[fmt.Sprint(v)] = true
	}
	return len(seen)
}

// Date filters on a calendar day, parsed in the environment's location.
type Date struct{}

func (Date) Name() string { return "date" }

func (Date) field(_ context.Context, env Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewDateField(opts, env.location()), nil
}

// DateTime filters on an instant.
type DateTime struct{}

func (DateTime) Name() string { return "datetime" }

func (DateTime) field(_ context.Context, env Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewDateTimeField(opts, env.location()), nil
}

// Time filters on a clock time.
type Time struct{}

func (Time) Name() string { return "time" }

func (Time) field(_ context.Context, _ Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewTimeField(opts), nil
}

// Number filters on an exact decimal.
type Number struct{}

func (Number) Name() string { return "number" }

func (Number) field(_ context.Context, _ Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewDecimalField(opts), nil
}

// ModelChoice filters a to-one relation by the key of one related record.
// Choices are the related model's records, narrowed by Scope.
type ModelChoice struct {
	Model   *schema.Model
	Scope   query.Predicate
	ToField string
}

func (ModelChoice) Name() string { return "model_choice" }

func (k ModelChoice) field(ctx context.Context, env Env, f *Filter, opts form.Options) (form.Field, error) {
	choices, err := recordChoices(ctx, env, f, k.Model, k.Scope, k.ToField)
	if err != nil {
		return nil, err
	}
	return form.NewModelChoiceField(opts, choices), nil
}

// ModelMultipleChoice filters a to-many relation by several related keys,
// matching records related to any of them.
type ModelMultipleChoice struct {
	Model *schema.Model
	Scope query.Predicate
}

func (ModelMultipleChoice) Name() string { return "model_multiple_choice" }

func (k ModelMultipleChoice) field(ctx context.Context, env Env, f *Filter, opts form.Options) (form.Field, error) {
	choices, err := recordChoices(ctx, env, f, k.Model, k.Scope, "")
	if err != nil {
		return nil, err
	}
	return form.NewMultipleChoiceField(opts, choices), nil
}

func (ModelMultipleChoice) predicate(f *Filter, _ Env, field form.Field, value interface{}) query.Predicate {
	return anyOf(f, field, value)
}

// recordChoices lists the records of model as choices keyed by keyField
// (the primary key when empty) and labelled by the model's display field.
func recordChoices(ctx context.Context, env Env, f *Filter, model *schema.Model, scope query.Predicate, keyField string) ([]form.Choice, error) {
	if model == nil {
		return nil, fmt.Errorf("filter %s: no related model to offer choices from", f.Name)
	}
	if env.Source == nil {
		return nil, fmt.Errorf("filter %s: no collection source to load %s choices", f.Name, model.Name)
	}
	if keyField == "" {
		keyField = model.PKName()
	}

	qs := env.Source.All(model)
	if scope != nil {
		qs = qs.Filter(scope)
	}
	records, err := qs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s choices: %w", model.Name, err)
	}

	choices := make([]form.Choice, 0, len(records))
	for _, r := range records {
		choices = append(choices, form.Choice{Value: r[keyField], Label: model.Display(r)})
	}
	return choices, nil
}

// Range filters on a closed numeric interval. Both ends must be given.
type Range struct{}

func (Range) Name() string { return "range" }

func (Range) field(_ context.Context, _ Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewRangeField(opts, form.NewDecimalField(form.Options{})), nil
}

func (Range) predicate(f *Filter, _ Env, _ form.Field, value interface{}) query.Predicate {
	v, _ := f.unwrap(value)
	r, ok := v.(form.Range)
	if !ok || r.Start == nil || r.Stop == nil {
		return nil
	}
	return query.Compare(f.Name, query.Range, query.Bounds{Low: r.Start, High: r.Stop})
}

// Bounds is the value type of an open range
type Bounds int

const (
	NumericBounds Bounds = iota
	DateBounds
	TimeBounds
)

// String is the name definition files use for the bounds.
func (b Bounds) String() string {
	switch b {
	case DateBounds:
		return "date"
	case TimeBounds:
		return "time"
	}
	return "numeric"
}

// OpenRange filters on an interval whose ends are each optional.
type OpenRange struct {
	Bounds Bounds
}

func (OpenRange) Name() string { return "open_range" }

func (k OpenRange) field(_ context.Context, env Env, _ *Filter, opts form.Options) (form.Field, error) {
	var bound form.Field
	switch k.Bounds {
	case DateBounds:
		bound = form.NewDateField(form.Options{}, env.location())
	case TimeBounds:
		bound = form.NewTimeField(form.Options{})
	default:
		bound = form.NewDecimalField(form.Options{})
	}
	return form.NewRangeField(opts, bound), nil
}

// predicate ANDs the given ends. With neither end the conjunction is empty
// and matches everything.
func (OpenRange) predicate(f *Filter, _ Env, _ form.Field, value interface{}) query.Predicate {
	v, _ := f.unwrap(value)
	r, _ := v.(form.Range)
	var parts []query.Predicate
	if r.Start != nil {
		parts = append(parts, query.Compare(f.Name, query.GTE, r.Start))
	}
	if r.Stop != nil {
		parts = append(parts, query.Compare(f.Name, query.LTE, r.Stop))
	}
	return query.And(parts...)
}

// AllValues filters on one of the values the field actually holds across
// the model's full collection.
type AllValues struct{}

func (AllValues) Name() string { return "all_values" }

func (AllValues) field(ctx context.Context, env Env, f *Filter, opts form.Options) (form.Field, error) {
	if env.Model == nil || env.Source == nil {
		return nil, fmt.Errorf("filter %s: distinct values need a model and a collection source", f.Name)
	}
	values, err := env.Source.All(env.Model).Values(ctx, f.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load values of %s: %w", f.Name, err)
	}
	choices := make([]form.Choice, len(values))
	for i, v := range values {
		choices[i] = form.Choice{Value: v, Label: fmt.Sprint(v)}
	}
	return form.NewChoiceField(opts, choices), nil
}

// MultipleField matches one term against several fields, any of which may hold it.
type MultipleField struct {
	Fields []string
}

func (MultipleField) Name() string { return "multiple_field" }

func (MultipleField) field(_ context.Context, _ Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewCharField(opts), nil
}

func (k MultipleField) predicate(f *Filter, _ Env, _ form.Field, value interface{}) query.Predicate {
	v, lookup := f.unwrap(value)
	if IsEmpty(v) {
		return nil
	}
	preds := make([]query.Predicate, len(k.Fields))
	for i, name := range k.Fields {
		preds[i] = query.Compare(name, lookup, v)
	}
	return query.Or(preds...)
}

func toSlice(v interface{}) []interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return x
	case []string:
		out := make([]interface{}, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return []interface{}{v}
}

// parseCode reads a small integer choice code; ok is false for anything else.
func parseCode(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	n, err := strconv.Atoi(fmt.Sprint(v))
	return n, err == nil
}
