package form

import "github.com/fluxbase-eu/filterkit/internal/query"

// Range is the cleaned value of a RangeField. A nil end is open.
type Range struct {
	Start interface{}
	Stop  interface{}
}

// IsEmpty reports whether neither end was given.
func (r Range) IsEmpty() bool {
	return r.Start == nil && r.Stop == nil
}

// RangeField accepts a pair of values cleaned by the same sub-field
type RangeField struct {
	base
	bound Field
}

// NewRangeField pairs two copies of bound, rendered as name_0 and name_1.
func NewRangeField(opts Options, bound Field) *RangeField {
	return &RangeField{base: newBase(opts, RangeWidget{}), bound: bound}
}

func (f *RangeField) Clean(raw interface{}) (interface{}, error) {
	pair := decompress(raw)
	start, err := f.bound.Clean(pair[0])
	if err != nil {
		return nil, err
	}
	stop, err := f.bound.Clean(pair[1])
	if err != nil {
		return nil, err
	}
	r := Range{Start: start, Stop: stop}
	if r.IsEmpty() && f.opts.Required {
		return nil, errRequired
	}
	return r, nil
}

// Lookup is the cleaned value of a LookupTypeField.
type Lookup struct {
	Value interface{}
	Type  query.LookupType
}

// LookupTypeField accepts a value together with the lookup to apply it with.
// A missing lookup falls back to exact.
type LookupTypeField struct {
	base
	value   Field
	lookups []Choice
}

// NewLookupTypeField wraps value, whose widget renders the first half of the
// pair. Each lookup choice's Value is the lookup name. opts.Widget is ignored.
func NewLookupTypeField(opts Options, value Field, lookups []Choice) *LookupTypeField {
	return &LookupTypeField{
		base:    newBase(Options{Label: opts.Label, Required: opts.Required, Initial: opts.Initial}, LookupWidget{Value: value.Widget()}),
		value:   value,
		lookups: lookups,
	}
}

// Choices are the lookups the pair's second half accepts.
func (f *LookupTypeField) Choices() []Choice { return f.lookups }

// ValueField is the field cleaning the first half of the pair.
func (f *LookupTypeField) ValueField() Field { return f.value }

func (f *LookupTypeField) Clean(raw interface{}) (interface{}, error) {
	pair := decompress(raw)
	v, err := f.value.Clean(pair[0])
	if err != nil {
		return nil, err
	}

	lookup := query.Exact
	if key := valueString(single(pair[1])); key != "" {
		found := false
		for _, c := range f.lookups {
			if c.Key() == key {
				lookup, found = query.LookupType(key), true
				break
			}
		}
		if !found {
			return nil, invalid("Select a valid choice. %s is not one of the available choices.", key)
		}
	}
	if isBlank(v) && f.opts.Required {
		return nil, errRequired
	}
	return Lookup{Value: v, Type: lookup}, nil
}

// decompress splits a pair value into its two halves.
func decompress(raw interface{}) [2]interface{} {
	switch v := raw.(type) {
	case [2]interface{}:
		return v
	case []interface{}:
		var out [2]interface{}
		copy(out[:], v)
		return out
	case []string:
		var out [2]interface{}
		for i := 0; i < len(v) && i < 2; i++ {
			out[i] = v[i]
		}
		return out
	case Range:
		return [2]interface{}{v.Start, v.Stop}
	case Lookup:
		return [2]interface{}{v.Value, string(v.Type)}
	case nil:
		return [2]interface{}{}
	}
	return [2]interface{}{raw, nil}
}

func isBlank(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}
