package form

import (
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/filterkit/internal/query"
)

var statusChoices = []Choice{
	{Value: 0, Label: "Regular"},
	{Value: 1, Label: "Manager"},
	{Value: 2, Label: "Admin"},
}

func TestCharField_Clean(t *testing.T) {
	f := NewCharField(Options{Label: "Username"})

	v, err := f.Clean("alex")
	require.NoError(t, err)
	assert.Equal(t, "alex", v)

	v, err = f.Clean(nil)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	v, err = f.Clean([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", v, "last repeated value wins")

	_, err = NewCharField(Options{Required: true}).Clean("")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "This field is required.", verr.Message)
}

func TestChoiceField_Clean(t *testing.T) {
	f := NewChoiceField(Options{}, statusChoices)

	v, err := f.Clean("1")
	require.NoError(t, err)
	assert.Equal(t, 1, v, "cleaned value keeps the choice's type")

	v, err = f.Clean(0)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	v, err = f.Clean("")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	_, err = f.Clean("7")
	assert.EqualError(t, err, "Select a valid choice. 7 is not one of the available choices.")
}

func TestModelChoiceField_LeadsWithEmptyChoice(t *testing.T) {
	f := NewModelChoiceField(Options{}, []Choice{{Value: 1, Label: "alex"}})
	require.Len(t, f.Choices(), 2)
	assert.Equal(t, Choice{Value: "", Label: EmptyLabel}, f.Choices()[0])

	v, err := f.Clean("1")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestMultipleChoiceField_Clean(t *testing.T) {
	f := NewMultipleChoiceField(Options{}, statusChoices)

	v, err := f.Clean([]string{"0", "2"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{0, 2}, v)

	v, err = f.Clean(nil)
	require.NoError(t, err)
	assert.Empty(t, v)

	v, err = f.Clean([]interface{}{1})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1}, v)

	v, err = f.Clean([]string{"2", "0", "2"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2, 0}, v, "repeated selections are kept once")

	_, err = f.Clean([]string{"0", "9"})
	assert.Error(t, err)
}

func TestNullBooleanSelect_ValueFromData(t *testing.T) {
	tests := []struct {
		submitted string
		expected  interface{}
	}{
		{"1", nil},
		{"2", true},
		{"3", false},
		{"true", true},
		{"True", true},
		{"false", false},
		{"False", false},
		{"", nil},
		{"maybe", nil},
	}

	for _, tt := range tests {
		t.Run(tt.submitted, func(t *testing.T) {
			data := url.Values{"is_active": {tt.submitted}}
			assert.Equal(t, tt.expected, NullBooleanSelect{}.ValueFromData(data, "is_active"))
		})
	}
}

func TestNullBooleanField_Clean(t *testing.T) {
	f := NewNullBooleanField(Options{})
	for raw, expected := range map[interface{}]interface{}{
		true: true, false: false, "true": true, "false": false, nil: nil, "other": nil,
		"1": nil, "2": true, "3": false, "0": nil,
	} {
		v, err := f.Clean(raw)
		require.NoError(t, err)
		assert.Equal(t, expected, v, "raw %v", raw)
	}
}

func TestDecimalField_Clean(t *testing.T) {
	f := NewDecimalField(Options{})

	v, err := f.Clean(" 15.50 ")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("15.5").Equal(v.(decimal.Decimal)))

	v, err = f.Clean("")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = f.Clean("abc")
	assert.EqualError(t, err, "Enter a number.")
}

func TestTemporalFields_Clean(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	t.Run("date", func(t *testing.T) {
		v, err := NewDateField(Options{}, berlin).Clean("2024-06-15")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.June, 15, 0, 0, 0, 0, berlin), v)

		v, err = NewDateField(Options{}, nil).Clean("06/15/2024")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC), v)

		_, err = NewDateField(Options{}, nil).Clean("15.06.2024")
		assert.EqualError(t, err, "Enter a valid date.")
	})

	t.Run("datetime", func(t *testing.T) {
		v, err := NewDateTimeField(Options{}, nil).Clean("2024-06-15 10:30")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC), v)

		v, err = NewDateTimeField(Options{}, nil).Clean("2024-06-15T10:30:00+02:00")
		require.NoError(t, err)
		assert.True(t, time.Date(2024, time.June, 15, 8, 30, 0, 0, time.UTC).Equal(v.(time.Time)))
	})

	t.Run("time", func(t *testing.T) {
		v, err := NewTimeField(Options{}).Clean("15:30")
		require.NoError(t, err)
		assert.Equal(t, time.Date(0, time.January, 1, 15, 30, 0, 0, time.UTC), v)

		_, err = NewTimeField(Options{}).Clean("25:00")
		assert.EqualError(t, err, "Enter a valid time.")
	})
}

func TestRangeField_Clean(t *testing.T) {
	f := NewRangeField(Options{}, NewDecimalField(Options{}))

	v, err := f.Clean([]interface{}{"5", "15"})
	require.NoError(t, err)
	r := v.(Range)
	assert.True(t, decimal.NewFromInt(5).Equal(r.Start.(decimal.Decimal)))
	assert.True(t, decimal.NewFromInt(15).Equal(r.Stop.(decimal.Decimal)))

	v, err = f.Clean([]interface{}{nil, ""})
	require.NoError(t, err)
	assert.True(t, v.(Range).IsEmpty())

	_, err = f.Clean([]interface{}{"5", "x"})
	assert.Error(t, err)
}

func TestLookupTypeField_Clean(t *testing.T) {
	f := NewLookupTypeField(Options{}, NewDecimalField(Options{}), []Choice{{Value: "lt", Label: "lt"}, {Value: "gt", Label: "greater than"}})

	v, err := f.Clean([]interface{}{"15", "lt"})
	require.NoError(t, err)
	l := v.(Lookup)
	assert.Equal(t, query.LT, l.Type)
	assert.True(t, decimal.NewFromInt(15).Equal(l.Value.(decimal.Decimal)))

	v, err = f.Clean([]interface{}{"15", nil})
	require.NoError(t, err)
	assert.Equal(t, query.Exact, v.(Lookup).Type, "missing lookup falls back to exact")

	v, err = f.Clean([]interface{}{"", "lt"})
	require.NoError(t, err)
	assert.Nil(t, v.(Lookup).Value)

	_, err = f.Clean([]interface{}{"15", "contains"})
	assert.Error(t, err)

	assert.Len(t, f.Choices(), 2)
	assert.IsType(t, &DecimalField{}, f.ValueField())
}

func TestForm_BoundAndInitial(t *testing.T) {
	unbound := New(nil, "")
	unbound.Add("status", NewChoiceField(Options{Initial: 1}, statusChoices))
	assert.False(t, unbound.IsBound())
	v, err := unbound.CleanedValue("status")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	bound := New(url.Values{}, "")
	bound.Add("status", NewChoiceField(Options{Initial: 1}, statusChoices))
	assert.True(t, bound.IsBound())
	v, err = bound.CleanedValue("status")
	require.NoError(t, err)
	assert.Equal(t, "", v, "a bound form ignores initial values")
}

func TestForm_Prefix(t *testing.T) {
	f := New(url.Values{"blah-prefix-username": {"alex"}, "username": {"jacob"}}, "blah-prefix")
	f.Add("username", NewCharField(Options{}))

	assert.Equal(t, "blah-prefix-username", f.HTMLName("username"))
	v, err := f.CleanedValue("username")
	require.NoError(t, err)
	assert.Equal(t, "alex", v)
}

func TestForm_Errors(t *testing.T) {
	f := New(url.Values{"status": {"9"}, "price": {"10"}}, "")
	f.Add("status", NewChoiceField(Options{}, statusChoices))
	f.Add("price", NewDecimalField(Options{}))

	assert.Equal(t, map[string]string{
		"status": "Select a valid choice. 9 is not one of the available choices.",
	}, f.Errors())
	assert.Empty(t, New(nil, "").Errors())
}

func TestForm_AsTable(t *testing.T) {
	f := New(nil, "p")
	f.Add("username", NewCharField(Options{Label: "Username"}))
	f.Add("price", NewRangeField(Options{Label: "Price"}, NewDecimalField(Options{})))

	expected := `<tr><th><label for="id_p-username">Username:</label></th><td><input type="text" name="p-username" id="id_p-username" /></td></tr>` + "\n" +
		`<tr><th><label for="id_p-price_0">Price:</label></th><td><input type="text" name="p-price_0" id="id_p-price_0" />-<input type="text" name="p-price_1" id="id_p-price_1" /></td></tr>`
	assert.Equal(t, expected, f.AsTable())
}

func TestForm_AsTableShowsErrors(t *testing.T) {
	f := New(url.Values{"price": {"abc"}}, "")
	f.Add("price", NewDecimalField(Options{Label: "Price"}))

	assert.Equal(t,
		`<tr><th><label for="id_price">Price:</label></th><td><ul class="errorlist"><li>Enter a number.</li></ul><input type="text" name="price" value="abc" id="id_price" /></td></tr>`,
		f.AsTable())
}

func TestForm_Describe(t *testing.T) {
	f := New(url.Values{"price_0": {"10"}, "price_1": {"lt"}}, "")
	f.Add("price", NewLookupTypeField(Options{Label: "Price"}, NewDecimalField(Options{}), []Choice{{Value: "lt", Label: "lt"}}))

	d := f.Describe()
	require.Len(t, d, 1)
	assert.Equal(t, "price", d[0].Name)
	assert.Equal(t, "lookup", d[0].Widget)
	assert.Equal(t, []Choice{{Value: "lt", Label: "lt"}}, d[0].Lookups)
	assert.Empty(t, d[0].Choices)
	assert.Equal(t, []interface{}{"10", "lt"}, d[0].Value)
}

func TestSelect_Render(t *testing.T) {
	html := Select{}.Render(RenderContext{Name: "status", ID: "id_status", Value: "1", Choices: statusChoices})
	assert.Equal(t,
		`<select name="status" id="id_status"><option value="0">Regular</option><option value="1" selected="selected">Manager</option><option value="2">Admin</option></select>`,
		html)

	html = SelectMultiple{}.Render(RenderContext{Name: "status", ID: "id_status", Value: []string{"0", "2"}, Choices: statusChoices})
	assert.Equal(t,
		`<select multiple="multiple" name="status" id="id_status"><option value="0" selected="selected">Regular</option><option value="1">Manager</option><option value="2" selected="selected">Admin</option></select>`,
		html)
}

func TestRadioSelect_Render(t *testing.T) {
	html := RadioSelect{}.Render(RenderContext{Name: "status", ID: "id_status", Value: 0, Choices: statusChoices[:2]})
	assert.Equal(t,
		`<ul><li><label for="id_status_0"><input type="radio" id="id_status_0" value="0" name="status" checked="checked" /> Regular</label></li>`+
			`<li><label for="id_status_1"><input type="radio" id="id_status_1" value="1" name="status" /> Manager</label></li></ul>`,
		html)
}

func TestNullBooleanSelect_Render(t *testing.T) {
	html := NullBooleanSelect{}.Render(RenderContext{Name: "is_active", ID: "id_is_active", Value: false})
	assert.Equal(t,
		`<select name="is_active" id="id_is_active"><option value="1">Unknown</option><option value="2">Yes</option><option value="3" selected="selected">No</option></select>`,
		html)
}

func TestLinkWidget_Render(t *testing.T) {
	choices := append([]Choice{{Value: nil, Label: EmptyLabel}}, statusChoices[:2]...)
	data := url.Values{"status": {"0"}, "username": {"alex"}}

	html := LinkWidget{}.Render(RenderContext{Name: "status", ID: "id_status", Value: "0", Choices: choices, Data: data})
	assert.Equal(t,
		`<ul id="id_status">`+
			`<li><a href="?username=alex">All</a></li>`+
			`<li><a class="selected" href="?status=0&amp;username=alex">Regular</a></li>`+
			`<li><a href="?status=1&amp;username=alex">Manager</a></li></ul>`,
		html)
	assert.Equal(t, []string{"0"}, data["status"], "rendering leaves the submitted data untouched")
}

func TestLinkWidget_UnboundSelectsEmptyChoice(t *testing.T) {
	choices := []Choice{{Value: "", Label: "Any date"}, {Value: "1", Label: "Today"}}
	html := LinkWidget{}.Render(RenderContext{Name: "date", ID: "id_date", Choices: choices})
	assert.Equal(t,
		`<ul id="id_date"><li><a class="selected" href="?date=">Any date</a></li><li><a href="?date=1">Today</a></li></ul>`,
		html)
}

func TestTextInput_RendersTimes(t *testing.T) {
	assert.Equal(t, "2024-06-15", formatValue(time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-06-15 10:30:00", formatValue(time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, "15:30:00", formatValue(time.Date(0, time.January, 1, 15, 30, 0, 0, time.UTC)))
}
