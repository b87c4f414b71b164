package form

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

// Form is an ordered set of named fields, optionally bound to submitted
// data. Field names are prefixed with "prefix-" when a prefix is set.
type Form struct {
	prefix string
	data   url.Values
	names  []string
	fields map[string]Field
	errors map[string]error
}

// New creates a form. It is bound iff data is non-nil; an empty but non-nil
// url.Values is a bound form with nothing submitted.
func New(data url.Values, prefix string) *Form {
	return &Form{
		prefix: prefix,
		data:   data,
		fields: make(map[string]Field),
		errors: make(map[string]error),
	}
}

// Add appends a field. Adding an existing name replaces the field in place.
func (f *Form) Add(name string, field Field) {
	if _, ok := f.fields[name]; !ok {
		f.names = append(f.names, name)
	}
	f.fields[name] = field
}

func (f *Form) Field(name string) (Field, bool) {
	field, ok := f.fields[name]
	return field, ok
}

// Names returns field names in the order they were added
func (f *Form) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

func (f *Form) IsBound() bool { return f.data != nil }

func (f *Form) Prefix() string { return f.prefix }

// HTMLName is the parameter name a field is submitted under.
func (f *Form) HTMLName(name string) string {
	if f.prefix == "" {
		return name
	}
	return f.prefix + "-" + name
}

// RawValue returns the submitted input of a bound form or the initial value
// of an unbound one.
func (f *Form) RawValue(name string) interface{} {
	field, ok := f.fields[name]
	if !ok {
		return nil
	}
	if f.IsBound() {
		return field.Widget().ValueFromData(f.data, f.HTMLName(name))
	}
	return field.Initial()
}

// CleanedValue cleans the raw value of name. Errors are remembered for
// rendering.
func (f *Form) CleanedValue(name string) (interface{}, error) {
	field, ok := f.fields[name]
	if !ok {
		return nil, fmt.Errorf("unknown form field %q", name)
	}
	v, err := field.Clean(f.RawValue(name))
	if err != nil {
		f.errors[name] = err
		return nil, err
	}
	delete(f.errors, name)
	return v, nil
}

// Errors returns the validation messages of bound fields, keyed by name.
func (f *Form) Errors() map[string]string {
	out := make(map[string]string)
	if !f.IsBound() {
		return out
	}
	for _, name := range f.names {
		if _, err := f.CleanedValue(name); err != nil {
			out[name] = err.Error()
		}
	}
	return out
}

func (f *Form) renderContext(name string) RenderContext {
	field := f.fields[name]
	rc := RenderContext{
		Name:  f.HTMLName(name),
		ID:    "id_" + f.HTMLName(name),
		Value: f.RawValue(name),
		Data:  f.data,
	}
	if c, ok := field.(Chooser); ok {
		rc.Choices = c.Choices()
	}
	if l, ok := field.(*LookupTypeField); ok {
		if c, ok := l.value.(Chooser); ok {
			rc.ValueChoices = c.Choices()
		}
	}
	return rc
}

// labelFor is the id a field's label points at. Paired widgets and radio
// lists label their first element.
func labelFor(w Widget, id string) string {
	switch w.(type) {
	case RangeWidget, LookupWidget, RadioSelect:
		return id + "_0"
	}
	return id
}

// RenderField renders the widget of one field.
func (f *Form) RenderField(name string) string {
	field, ok := f.fields[name]
	if !ok {
		return ""
	}
	return field.Widget().Render(f.renderContext(name))
}

// AsTable renders every field as a table row with its label and any
// validation error.
func (f *Form) AsTable() string {
	errs := f.Errors()
	rows := make([]string, 0, len(f.names))
	for _, name := range f.names {
		field := f.fields[name]
		rc := f.renderContext(name)

		var b strings.Builder
		b.WriteString("<tr><th>")
		if field.Label() != "" {
			fmt.Fprintf(&b, `<label for="%s">%s:</label>`, html.EscapeString(labelFor(field.Widget(), rc.ID)), html.EscapeString(field.Label()))
		}
		b.WriteString("</th><td>")
		if msg, ok := errs[name]; ok {
			fmt.Fprintf(&b, `<ul class="errorlist"><li>%s</li></ul>`, html.EscapeString(msg))
		}
		b.WriteString(field.Widget().Render(rc))
		b.WriteString("</td></tr>")
		rows = append(rows, b.String())
	}
	return strings.Join(rows, "\n")
}

// FieldDescription is the JSON view of one field
type FieldDescription struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Widget   string      `json:"widget"`
	Required bool        `json:"required"`
	Value    interface{} `json:"value,omitempty"`
	Choices  []Choice    `json:"choices,omitempty"`
	Lookups  []Choice    `json:"lookups,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Describe lists the fields for clients that render their own controls.
func (f *Form) Describe() []FieldDescription {
	errs := f.Errors()
	out := make([]FieldDescription, 0, len(f.names))
	for _, name := range f.names {
		field := f.fields[name]
		rc := f.renderContext(name)
		d := FieldDescription{
			Name:     rc.Name,
			Label:    field.Label(),
			Widget:   field.Widget().Type(),
			Required: field.Required(),
			Value:    rc.Value,
			Choices:  rc.Choices,
			Error:    errs[name],
		}
		if _, ok := field.(*LookupTypeField); ok {
			d.Choices, d.Lookups = rc.ValueChoices, rc.Choices
		}
		out = append(out, d)
	}
	return out
}
