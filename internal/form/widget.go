package form

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"
)

// RenderContext is what a widget needs to draw one field
type RenderContext struct {
	Name    string
	ID      string
	Value   interface{}
	Choices []Choice
	// ValueChoices are the choices of the value half of a lookup pair.
	ValueChoices []Choice
	// Data is the full submitted data of the form, nil when unbound.
	Data url.Values
}

// Widget reads a field's raw value from submitted data and renders it as HTML
type Widget interface {
	Type() string
	ValueFromData(data url.Values, name string) interface{}
	Render(rc RenderContext) string
}

func getValue(data url.Values, name string) interface{} {
	if !data.Has(name) {
		return nil
	}
	return data.Get(name)
}

func attr(name, value string) string {
	return fmt.Sprintf(` %s="%s"`, name, html.EscapeString(value))
}

// formatValue renders a Go value the way the matching field parses it back.
func formatValue(v interface{}) string {
	if t, ok := v.(time.Time); ok {
		switch {
		case t.Year() == 0:
			return t.Format("15:04:05")
		case t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0:
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	}
	return valueString(v)
}

// TextInput is a single line of text
type TextInput struct{}

func (TextInput) Type() string { return "text" }

func (TextInput) ValueFromData(data url.Values, name string) interface{} {
	return getValue(data, name)
}

func (TextInput) Render(rc RenderContext) string {
	var b strings.Builder
	b.WriteString(`<input type="text"`)
	b.WriteString(attr("name", rc.Name))
	if v := formatValue(single(rc.Value)); v != "" {
		b.WriteString(attr("value", v))
	}
	b.WriteString(attr("id", rc.ID))
	b.WriteString(" />")
	return b.String()
}

// Select is a drop-down of choices
type Select struct{}

func (Select) Type() string { return "select" }

func (Select) ValueFromData(data url.Values, name string) interface{} {
	return getValue(data, name)
}

func (Select) Render(rc RenderContext) string {
	return renderSelect(rc, false, rc.Choices)
}

// SelectMultiple is a list box allowing several choices
type SelectMultiple struct{}

func (SelectMultiple) Type() string { return "select_multiple" }

func (SelectMultiple) ValueFromData(data url.Values, name string) interface{} {
	if !data.Has(name) {
		return nil
	}
	return data[name]
}

func (SelectMultiple) Render(rc RenderContext) string {
	return renderSelect(rc, true, rc.Choices)
}

func renderSelect(rc RenderContext, multiple bool, choices []Choice) string {
	selected := make(map[string]bool)
	if multiple {
		for _, key := range valueStrings(rc.Value) {
			selected[key] = true
		}
	} else {
		selected[valueString(single(rc.Value))] = true
	}

	var b strings.Builder
	b.WriteString("<select")
	if multiple {
		b.WriteString(` multiple="multiple"`)
	}
	b.WriteString(attr("name", rc.Name))
	b.WriteString(attr("id", rc.ID))
	b.WriteString(">")
	for _, c := range choices {
		b.WriteString("<option")
		b.WriteString(attr("value", c.Key()))
		if selected[c.Key()] {
			b.WriteString(` selected="selected"`)
		}
		b.WriteString(">")
		b.WriteString(html.EscapeString(c.Label))
		b.WriteString("</option>")
	}
	b.WriteString("</select>")
	return b.String()
}

// RadioSelect lists choices as radio buttons
type RadioSelect struct{}

func (RadioSelect) Type() string { return "radio" }

func (RadioSelect) ValueFromData(data url.Values, name string) interface{} {
	return getValue(data, name)
}

func (RadioSelect) Render(rc RenderContext) string {
	current := valueString(single(rc.Value))
	var b strings.Builder
	b.WriteString("<ul>")
	for i, c := range rc.Choices {
		id := fmt.Sprintf("%s_%d", rc.ID, i)
		b.WriteString(`<li><label`)
		b.WriteString(attr("for", id))
		b.WriteString(`><input type="radio"`)
		b.WriteString(attr("id", id))
		b.WriteString(attr("value", c.Key()))
		b.WriteString(attr("name", rc.Name))
		if c.Key() == current {
			b.WriteString(` checked="checked"`)
		}
		b.WriteString(" /> ")
		b.WriteString(html.EscapeString(c.Label))
		b.WriteString("</label></li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

// NullBooleanSelect offers Unknown, Yes and No, submitted as 1, 2 and 3.
type NullBooleanSelect struct{}

var nullBooleanChoices = []Choice{
	{Value: "1", Label: "Unknown"},
	{Value: "2", Label: "Yes"},
	{Value: "3", Label: "No"},
}

func (NullBooleanSelect) Type() string { return "null_boolean" }

// ValueFromData maps the submitted option to true, false or nil. The literal
// words true and false are accepted as well.
func (NullBooleanSelect) ValueFromData(data url.Values, name string) interface{} {
	switch data.Get(name) {
	case "2", "True", "true":
		return true
	case "3", "False", "false":
		return false
	}
	return nil
}

func (NullBooleanSelect) Render(rc RenderContext) string {
	key := "1"
	switch v := single(rc.Value).(type) {
	case bool:
		if v {
			key = "2"
		} else {
			key = "3"
		}
	case string:
		switch v {
		case "2", "True", "true":
			key = "2"
		case "3", "False", "false":
			key = "3"
		}
	}
	rc.Value = key
	return renderSelect(rc, false, nullBooleanChoices)
}

// LinkWidget renders each choice as a link that re-submits the current data
// with this field replaced.
type LinkWidget struct{}

func (LinkWidget) Type() string { return "links" }

func (LinkWidget) ValueFromData(data url.Values, name string) interface{} {
	return getValue(data, name)
}

func (LinkWidget) Render(rc RenderContext) string {
	current := valueString(single(rc.Value))
	var b strings.Builder
	b.WriteString("<ul")
	b.WriteString(attr("id", rc.ID))
	b.WriteString(">")
	for _, c := range rc.Choices {
		data := url.Values{}
		for k, v := range rc.Data {
			data[k] = append([]string(nil), v...)
		}
		if c.Value == nil {
			data.Del(rc.Name)
		} else {
			data.Set(rc.Name, c.Key())
		}

		label := c.Label
		if label == EmptyLabel {
			label = "All"
		}

		b.WriteString("<li><a")
		if c.Key() == current {
			b.WriteString(` class="selected"`)
		}
		b.WriteString(attr("href", "?"+data.Encode()))
		b.WriteString(">")
		b.WriteString(html.EscapeString(label))
		b.WriteString("</a></li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

func subName(name string, i int) string {
	return fmt.Sprintf("%s_%d", name, i)
}

// RangeWidget is two text inputs, name_0 and name_1
type RangeWidget struct{}

func (RangeWidget) Type() string { return "range" }

func (RangeWidget) ValueFromData(data url.Values, name string) interface{} {
	return []interface{}{getValue(data, subName(name, 0)), getValue(data, subName(name, 1))}
}

func (RangeWidget) Render(rc RenderContext) string {
	pair := decompress(rc.Value)
	parts := make([]string, 2)
	for i := range parts {
		parts[i] = TextInput{}.Render(RenderContext{
			Name:  subName(rc.Name, i),
			ID:    subName(rc.ID, i),
			Value: pair[i],
		})
	}
	return strings.Join(parts, "-")
}

// LookupWidget pairs a value widget (name_0) with a lookup select (name_1)
type LookupWidget struct {
	Value Widget
}

func (w LookupWidget) Type() string { return "lookup" }

func (w LookupWidget) value() Widget {
	if w.Value == nil {
		return TextInput{}
	}
	return w.Value
}

func (w LookupWidget) ValueFromData(data url.Values, name string) interface{} {
	return []interface{}{w.value().ValueFromData(data, subName(name, 0)), getValue(data, subName(name, 1))}
}

func (w LookupWidget) Render(rc RenderContext) string {
	pair := decompress(rc.Value)
	value := w.value().Render(RenderContext{
		Name:    subName(rc.Name, 0),
		ID:      subName(rc.ID, 0),
		Value:   pair[0],
		Choices: rc.ValueChoices,
		Data:    rc.Data,
	})
	lookup := renderSelect(RenderContext{
		Name:  subName(rc.Name, 1),
		ID:    subName(rc.ID, 1),
		Value: pair[1],
	}, false, rc.Choices)
	return value + lookup
}
