package form

import (
	"strings"
	"time"
)

// Accepted input layouts, tried in order.
var (
	DateLayouts = []string{"2006-01-02", "01/02/2006", "01/02/06"}

	DateTimeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999",
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
		"01/02/2006 15:04:05",
		"01/02/2006 15:04",
		"01/02/2006",
	}

	TimeLayouts = []string{"15:04:05.999999", "15:04"}
)

// TemporalField accepts a date, a date-time or a clock time, depending on
// its layouts. Times of day are returned on the zero date in UTC.
type TemporalField struct {
	base
	layouts []string
	loc     *time.Location
	message string
	trim    func(time.Time) time.Time
}

// NewDateField returns midnight of the submitted day in loc.
func NewDateField(opts Options, loc *time.Location) *TemporalField {
	return newTemporal(opts, DateLayouts, loc, "Enter a valid date.", func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	})
}

func NewDateTimeField(opts Options, loc *time.Location) *TemporalField {
	return newTemporal(opts, DateTimeLayouts, loc, "Enter a valid date/time.", nil)
}

func NewTimeField(opts Options) *TemporalField {
	return newTemporal(opts, TimeLayouts, time.UTC, "Enter a valid time.", func(t time.Time) time.Time {
		return time.Date(0, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	})
}

func newTemporal(opts Options, layouts []string, loc *time.Location, message string, trim func(time.Time) time.Time) *TemporalField {
	if loc == nil {
		loc = time.UTC
	}
	return &TemporalField{
		base:    newBase(opts, TextInput{}),
		layouts: layouts,
		loc:     loc,
		message: message,
		trim:    trim,
	}
}

func (f *TemporalField) Clean(raw interface{}) (interface{}, error) {
	v := single(raw)
	if t, ok := v.(time.Time); ok {
		return f.normalize(t), nil
	}
	s := strings.TrimSpace(valueString(v))
	if s == "" {
		if f.opts.Required {
			return nil, errRequired
		}
		return nil, nil
	}
	for _, layout := range f.layouts {
		if t, err := time.ParseInLocation(layout, s, f.loc); err == nil {
			return f.normalize(t), nil
		}
	}
	return nil, invalid("%s", f.message)
}

func (f *TemporalField) normalize(t time.Time) time.Time {
	if f.trim != nil {
		return f.trim(t)
	}
	return t
}
