package filtertool

import (
	"strings"

	"github.com/fluxbase-eu/filterkit/internal/filters"
	"github.com/fluxbase-eu/filterkit/internal/form"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// OrderByField is the form field holding the chosen ordering.
const OrderByField = "o"

type orderingMode int

const (
	orderingDisabled orderingMode = iota
	orderingFilters
	orderingChoices
)

// OrderingSpec says whether and by what a definition's results can be
// ordered. The zero value disables ordering.
type OrderingSpec struct {
	mode    orderingMode
	choices []form.Choice
}

// OrderByFilters offers one ordering per filter, labelled like the filter.
func OrderByFilters() OrderingSpec {
	return OrderingSpec{mode: orderingFilters}
}

// OrderByFields offers the given keys. A leading "-" sorts descending.
func OrderByFields(keys ...string) OrderingSpec {
	choices := make([]form.Choice, len(keys))
	for i, key := range keys {
		label := filters.Humanize(strings.TrimPrefix(key, "-"))
		if strings.HasPrefix(key, "-") {
			label += " (descending)"
		}
		choices[i] = form.Choice{Value: key, Label: label}
	}
	return OrderByChoices(choices...)
}

// OrderByChoices offers the given keys with their labels.
func OrderByChoices(choices ...form.Choice) OrderingSpec {
	return OrderingSpec{mode: orderingChoices, choices: append([]form.Choice(nil), choices...)}
}

func (o OrderingSpec) Enabled() bool {
	return o.mode != orderingDisabled
}

// Keys returns the offered ordering keys; nil when ordering follows the filters.
func (o OrderingSpec) Keys() []string {
	if o.mode != orderingChoices {
		return nil
	}
	keys := make([]string, len(o.choices))
	for i, c := range o.choices {
		keys[i] = c.Key()
	}
	return keys
}

// filterKeys returns the filter keys of def that can order results of
// model. A filter qualifies when its path yields one value per record; with
// no model to check against, every filter does.
func (o OrderingSpec) filterKeys(def *Definition, model *schema.Model) []string {
	var keys []string
	for _, key := range def.keys {
		if model != nil && !orderablePath(model, def.filters[key].Name) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// field builds the optional choice field offering the orderings of def.
func (o OrderingSpec) field(def *Definition, model *schema.Model) form.Field {
	var choices []form.Choice
	switch o.mode {
	case orderingDisabled:
		return nil
	case orderingFilters:
		for _, key := range o.filterKeys(def, model) {
			f := def.filters[key]
			choices = append(choices, form.Choice{Value: key, Label: f.DisplayLabel()})
		}
	default:
		choices = o.choices
	}
	return form.NewChoiceField(form.Options{Label: "Ordering"}, choices)
}

// orderBy converts a cleaned ordering key into a sort key. Keys naming a
// filter sort by the filter's field path.
func (o OrderingSpec) orderBy(def *Definition, key string) query.OrderBy {
	ob := query.ParseOrderBy(key)
	if f, ok := def.filters[ob.Field]; ok && o.mode == orderingFilters {
		ob.Field = f.Name
	}
	return ob
}
