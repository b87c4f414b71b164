package filtertool

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/filters"
	"github.com/fluxbase-eu/filterkit/internal/form"
	"github.com/fluxbase-eu/filterkit/internal/observability"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Tool is a definition bound to one request's submitted data and a base
// collection. The form and the filtered collection are built on first use
// and kept for the Tool's lifetime; bind a new Tool to see new data.
type Tool struct {
	def     *Definition
	source  collection.Source
	data    url.Values
	base    collection.QuerySet
	prefix  string
	metrics *observability.Metrics
	now     func() time.Time
	loc     *time.Location

	mu   sync.Mutex
	form *form.Form
	qs   collection.QuerySet
}

// Option configures a bound Tool
type Option func(*Tool)

// WithData binds submitted data. The Tool is bound iff data is non-nil,
// even when it is empty.
func WithData(data url.Values) Option {
	return func(t *Tool) { t.data = data }
}

// WithQuerySet sets the collection to filter instead of the model's full one.
func WithQuerySet(qs collection.QuerySet) Option {
	return func(t *Tool) { t.base = qs }
}

// WithPrefix namespaces form fields as "prefix-name".
func WithPrefix(prefix string) Option {
	return func(t *Tool) { t.prefix = prefix }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(t *Tool) { t.metrics = m }
}

// WithClock sets where relative date filters read today from.
func WithClock(now func() time.Time) Option {
	return func(t *Tool) { t.now = now }
}

// WithLocation sets the timezone dates are parsed and compared in.
func WithLocation(loc *time.Location) Option {
	return func(t *Tool) { t.loc = loc }
}

// Bind creates a Tool evaluating d against source.
func (d *Definition) Bind(source collection.Source, opts ...Option) *Tool {
	t := &Tool{def: d, source: source}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definition() *Definition { return t.def }

func (t *Tool) IsBound() bool { return t.data != nil }

func (t *Tool) model() *schema.Model {
	if t.def.Model() != nil {
		return t.def.Model()
	}
	if t.base != nil {
		return t.base.Model()
	}
	return nil
}

func (t *Tool) env() filters.Env {
	return filters.Env{
		Model:    t.model(),
		Source:   t.source,
		Now:      t.now,
		Location: t.loc,
	}
}

func (t *Tool) baseQuerySet() (collection.QuerySet, error) {
	if t.base != nil {
		return t.base, nil
	}
	if t.def.Model() == nil || t.source == nil {
		return nil, &ConfigurationError{Definition: t.def.name, Reason: "has neither a model nor a query set to filter"}
	}
	return t.source.All(t.def.Model()), nil
}

// Form returns the form holding one field per filter, plus the ordering
// field when ordering is enabled.
func (t *Tool) Form(ctx context.Context) (*form.Form, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buildForm(ctx)
}

func (t *Tool) buildForm(ctx context.Context) (*form.Form, error) {
	if t.form != nil {
		return t.form, nil
	}

	f := form.New(t.data, t.prefix)
	env := t.env()
	for _, key := range t.def.keys {
		flt := t.def.filters[key]
		field, err := flt.Field(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("failed to build field %s: %w", key, err)
		}
		f.Add(key, field)
	}
	if field := t.def.meta.OrderBy.field(t.def, t.model()); field != nil {
		f.Add(OrderByField, field)
	}

	t.form = f
	return f, nil
}

// QuerySet returns the filtered and ordered collection. It is computed once.
func (t *Tool) QuerySet(ctx context.Context) (collection.QuerySet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.qs != nil {
		return t.qs, nil
	}

	modelName := ""
	if m := t.model(); m != nil {
		modelName = m.Name
	}

	start := time.Now()
	ctx, span := observability.StartFilterSpan(ctx, t.def.name, modelName)
	qs, err := t.evaluate(ctx)
	observability.EndSpan(span, err)
	if t.metrics != nil {
		t.metrics.RecordFilterEvaluation(t.def.name, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	t.qs = qs
	return qs, nil
}

// evaluate ANDs the predicates of every filter with a usable value. Input a
// filter rejects is skipped without failing the others.
func (t *Tool) evaluate(ctx context.Context) (collection.QuerySet, error) {
	base, err := t.baseQuerySet()
	if err != nil {
		return nil, err
	}
	f, err := t.buildForm(ctx)
	if err != nil {
		return nil, err
	}

	env := t.env()
	var preds []query.Predicate
	for _, key := range t.def.keys {
		flt := t.def.filters[key]
		field, _ := f.Field(key)

		value, err := f.CleanedValue(key)
		if err != nil {
			log.Debug().
				Err(err).
				Str("definition", t.def.name).
				Str("filter", key).
				Msg("Ignoring invalid filter input")
			if t.metrics != nil {
				t.metrics.RecordRejectedInput(t.def.name, key)
			}
			continue
		}
		if filters.IsEmpty(value) {
			continue
		}

		p := flt.Predicate(env, field, value)
		if query.IsNil(p) || p.IsEmpty() {
			continue
		}
		preds = append(preds, p)
	}

	qs := base.Filter(query.And(preds...)).Distinct()

	if t.def.meta.OrderBy.Enabled() {
		value, err := f.CleanedValue(OrderByField)
		switch {
		case err != nil:
			log.Debug().Err(err).Str("definition", t.def.name).Msg("Ignoring invalid ordering")
			if t.metrics != nil {
				t.metrics.RecordRejectedOrdering(t.def.name)
			}
		case !filters.IsEmpty(value):
			qs = qs.OrderBy(t.def.meta.OrderBy.orderBy(t.def, fmt.Sprint(value)))
		}
	}

	observability.SetSpanAttributes(ctx, attribute.Int("filter.predicates", len(preds)))
	return qs, nil
}

// All returns every record of the filtered collection.
func (t *Tool) All(ctx context.Context) ([]collection.Record, error) {
	qs, err := t.QuerySet(ctx)
	if err != nil {
		return nil, err
	}
	return qs.All(ctx)
}

func (t *Tool) Count(ctx context.Context) (int, error) {
	qs, err := t.QuerySet(ctx)
	if err != nil {
		return 0, err
	}
	return qs.Count(ctx)
}

// Page returns limit records starting at offset.
func (t *Tool) Page(ctx context.Context, offset, limit int) ([]collection.Record, error) {
	qs, err := t.QuerySet(ctx)
	if err != nil {
		return nil, err
	}
	return qs.Slice(offset, limit).All(ctx)
}

// Each calls fn for every record in order, stopping at the first error.
func (t *Tool) Each(ctx context.Context, fn func(collection.Record) error) error {
	records, err := t.All(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
