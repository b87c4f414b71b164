// Package form validates submitted filter input. A Field cleans one raw
// value into a typed Go value; a Form groups fields under optional name
// prefixes and renders them as an HTML table or a JSON description.
package form

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError reports input a field cannot accept
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// errRequired is returned for missing input on a required field.
var errRequired = &ValidationError{Message: "This field is required."}

// Choice is one selectable option. Values keep their Go type; they are
// compared and rendered through their string form.
type Choice struct {
	Value interface{} `json:"value"`
	Label string      `json:"label"`
}

// Key returns the submitted form of the choice value.
func (c Choice) Key() string {
	return valueString(c.Value)
}

// Field accepts one logical value of a form
type Field interface {
	Label() string
	Required() bool
	Initial() interface{}
	Widget() Widget
	// Clean converts raw input into the field's value. Raw input is what the
	// widget extracted from submitted data, or the initial value.
	Clean(raw interface{}) (interface{}, error)
}

// Chooser is implemented by fields that offer a fixed set of choices
type Chooser interface {
	Choices() []Choice
}

// Options are the settings shared by every field
type Options struct {
	Label    string
	Required bool
	Initial  interface{}
	Widget   Widget
}

type base struct {
	opts   Options
	widget Widget
}

func newBase(opts Options, fallback Widget) base {
	w := opts.Widget
	if w == nil {
		w = fallback
	}
	return base{opts: opts, widget: w}
}

func (b *base) Label() string        { return b.opts.Label }
func (b *base) Required() bool       { return b.opts.Required }
func (b *base) Initial() interface{} { return b.opts.Initial }
func (b *base) Widget() Widget       { return b.widget }

// CharField accepts free text
type CharField struct {
	base
}

func NewCharField(opts Options) *CharField {
	return &CharField{base: newBase(opts, TextInput{})}
}

func (f *CharField) Clean(raw interface{}) (interface{}, error) {
	s := valueString(single(raw))
	if s == "" {
		if f.opts.Required {
			return nil, errRequired
		}
		return "", nil
	}
	return s, nil
}

// NullBooleanField accepts unknown, true or false. Strings follow the
// NullBooleanSelect codes, so "1" is unknown rather than true.
type NullBooleanField struct {
	base
}

func NewNullBooleanField(opts Options) *NullBooleanField {
	return &NullBooleanField{base: newBase(opts, NullBooleanSelect{})}
}

func (f *NullBooleanField) Clean(raw interface{}) (interface{}, error) {
	switch v := single(raw).(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "2", "True", "true":
			return true, nil
		case "3", "False", "false":
			return false, nil
		}
	}
	return nil, nil
}

// ChoiceField accepts one value out of a list. The cleaned value is the
// matching choice's Value, so typed choices come back typed.
type ChoiceField struct {
	base
	choices []Choice
}

func NewChoiceField(opts Options, choices []Choice) *ChoiceField {
	return &ChoiceField{base: newBase(opts, Select{}), choices: choices}
}

func (f *ChoiceField) Choices() []Choice { return f.choices }

func (f *ChoiceField) Clean(raw interface{}) (interface{}, error) {
	key := valueString(single(raw))
	if key == "" {
		if f.opts.Required {
			return nil, errRequired
		}
		return "", nil
	}
	for _, c := range f.choices {
		if c.Key() == key {
			return c.Value, nil
		}
	}
	return nil, invalid("Select a valid choice. %s is not one of the available choices.", key)
}

// EmptyLabel is the label of the blank option model choice fields lead with.
const EmptyLabel = "---------"

// NewModelChoiceField is a ChoiceField over related records, led by a blank
// option so "no record" can be submitted.
func NewModelChoiceField(opts Options, choices []Choice) *ChoiceField {
	all := make([]Choice, 0, len(choices)+1)
	all = append(all, Choice{Value: "", Label: EmptyLabel})
	all = append(all, choices...)
	return NewChoiceField(opts, all)
}

// MultipleChoiceField accepts any subset of a list
type MultipleChoiceField struct {
	base
	choices []Choice
}

func NewMultipleChoiceField(opts Options, choices []Choice) *MultipleChoiceField {
	return &MultipleChoiceField{base: newBase(opts, SelectMultiple{}), choices: choices}
}

func (f *MultipleChoiceField) Choices() []Choice { return f.choices }

func (f *MultipleChoiceField) Clean(raw interface{}) (interface{}, error) {
	keys := valueStrings(raw)
	if len(keys) == 0 {
		if f.opts.Required {
			return nil, errRequired
		}
		return []interface{}{}, nil
	}

	out := make([]interface{}, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		found := false
		for _, c := range f.choices {
			if c.Key() == key {
				out = append(out, c.Value)
				found = true
				break
			}
		}
		if !found {
			return nil, invalid("Select a valid choice. %s is not one of the available choices.", key)
		}
	}
	return out, nil
}

// DecimalField accepts a number, kept exact
type DecimalField struct {
	base
}

func NewDecimalField(opts Options) *DecimalField {
	return &DecimalField{base: newBase(opts, TextInput{})}
}

func (f *DecimalField) Clean(raw interface{}) (interface{}, error) {
	v := single(raw)
	if d, ok := v.(decimal.Decimal); ok {
		return d, nil
	}
	s := strings.TrimSpace(valueString(v))
	if s == "" {
		if f.opts.Required {
			return nil, errRequired
		}
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, invalid("Enter a number.")
	}
	return d, nil
}

// single unwraps single-element slices the way a text input reads a
// repeated query parameter.
func single(raw interface{}) interface{} {
	switch v := raw.(type) {
	case []string:
		if len(v) == 0 {
			return nil
		}
		return v[len(v)-1]
	case []interface{}:
		if len(v) == 0 {
			return nil
		}
		return v[len(v)-1]
	}
	return raw
}

func valueString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

// valueStrings reads a multi-valued input. Blank entries are dropped.
func valueStrings(raw interface{}) []string {
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []string{valueString(raw)}
	}
	var out []string
	for i := 0; i < rv.Len(); i++ {
		if s := valueString(rv.Index(i).Interface()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
