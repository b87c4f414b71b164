package filters

import (
	"context"
	"time"

	"github.com/fluxbase-eu/filterkit/internal/form"
	"github.com/fluxbase-eu/filterkit/internal/query"
)

type dateOption struct {
	label     string
	predicate func(name string, today time.Time) query.Predicate
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var dateOptions = map[int]dateOption{
	1: {"Today", func(name string, today time.Time) query.Predicate {
		return query.And(
			query.Compare(name, query.Year, today.Year()),
			query.Compare(name, query.Month, int(today.Month())),
			query.Compare(name, query.Day, today.Day()),
		)
	}},
	2: {"Past 7 days", func(name string, today time.Time) query.Predicate {
		start := midnight(today)
		return query.And(
			query.Compare(name, query.GTE, start.AddDate(0, 0, -7)),
			query.Compare(name, query.LT, start.AddDate(0, 0, 1)),
		)
	}},
	3: {"This month", func(name string, today time.Time) query.Predicate {
		return query.And(
			query.Compare(name, query.Year, today.Year()),
			query.Compare(name, query.Month, int(today.Month())),
		)
	}},
	4: {"This year", func(name string, today time.Time) query.Predicate {
		return query.Compare(name, query.Year, today.Year())
	}},
}

// DateRangeChoices are the options of a DateRange filter, led by "Any Date".
func DateRangeChoices() []form.Choice {
	choices := []form.Choice{{Value: "", Label: "Any Date"}}
	for code := 1; code <= len(dateOptions); code++ {
		choices = append(choices, form.Choice{Value: code, Label: dateOptions[code].label})
	}
	return choices
}

// DateRange filters on a period relative to today: today, the past 7 days,
// this month or this year. Today is read at evaluation time.
type DateRange struct{}

func (DateRange) Name() string { return "date_range" }

func (DateRange) field(_ context.Context, _ Env, _ *Filter, opts form.Options) (form.Field, error) {
	return form.NewChoiceField(opts, DateRangeChoices()), nil
}

// predicate gives no restriction for "Any Date" and for codes it does not know.
func (DateRange) predicate(f *Filter, env Env, _ form.Field, value interface{}) query.Predicate {
	v, _ := f.unwrap(value)
	code, ok := parseCode(v)
	if !ok {
		return nil
	}
	opt, ok := dateOptions[code]
	if !ok {
		return nil
	}
	return opt.predicate(f.Name, env.Today())
}
