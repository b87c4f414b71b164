package memory

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxbase-eu/filterkit/internal/query"
)

// matchLookup applies one lookup to a single stored value.
func matchLookup(value interface{}, lookup query.LookupType, arg interface{}) bool {
	switch lookup {
	case query.Exact:
		if arg == nil {
			return value == nil
		}
		return value != nil && equalValues(value, arg)
	case query.IExact:
		return value != nil && strings.EqualFold(toString(value), toString(arg))
	case query.Contains:
		return value != nil && strings.Contains(toString(value), toString(arg))
	case query.IContains:
		return value != nil && strings.Contains(strings.ToLower(toString(value)), strings.ToLower(toString(arg)))
	case query.StartsWith:
		return value != nil && strings.HasPrefix(toString(value), toString(arg))
	case query.IStartsWith:
		return value != nil && strings.HasPrefix(strings.ToLower(toString(value)), strings.ToLower(toString(arg)))
	case query.EndsWith:
		return value != nil && strings.HasSuffix(toString(value), toString(arg))
	case query.IEndsWith:
		return value != nil && strings.HasSuffix(strings.ToLower(toString(value)), strings.ToLower(toString(arg)))
	case query.In:
		for _, candidate := range toSlice(arg) {
			if value != nil && equalValues(value, candidate) {
				return true
			}
		}
		return false
	case query.GT, query.GTE, query.LT, query.LTE:
		cmp, ok := compareValues(value, arg)
		if !ok {
			return false
		}
		switch lookup {
		case query.GT:
			return cmp > 0
		case query.GTE:
			return cmp >= 0
		case query.LT:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case query.Range:
		b, ok := arg.(query.Bounds)
		if !ok {
			return false
		}
		low, okLow := compareValues(value, b.Low)
		high, okHigh := compareValues(value, b.High)
		return okLow && okHigh && low >= 0 && high <= 0
	case query.Year, query.Month, query.Day, query.WeekDay:
		t, ok := value.(time.Time)
		if !ok {
			return false
		}
		var part int
		switch lookup {
		case query.Year:
			part = t.Year()
		case query.Month:
			part = int(t.Month())
		case query.Day:
			part = t.Day()
		default:
			part = int(t.Weekday()) + 1
		}
		return equalValues(part, arg)
	case query.IsNull:
		want, _ := arg.(bool)
		return (value == nil) == want
	case query.Search:
		if value == nil {
			return false
		}
		haystack := strings.ToLower(toString(value))
		for _, word := range strings.Fields(strings.ToLower(toString(arg))) {
			if !strings.Contains(haystack, word) {
				return false
			}
		}
		return true
	case query.Regex, query.IRegex:
		if value == nil {
			return false
		}
		pattern := toString(arg)
		if lookup == query.IRegex {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(toString(value))
	}
	return false
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func toSlice(v interface{}) []interface{} {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{v}
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// toDecimal converts numeric values, and strings holding numbers, to a decimal.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromUint64(uint64(n)), true
	case uint8:
		return decimal.NewFromUint64(uint64(n)), true
	case uint16:
		return decimal.NewFromUint64(uint64(n)), true
	case uint32:
		return decimal.NewFromUint64(uint64(n)), true
	case uint64:
		return decimal.NewFromUint64(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		if _, err := strconv.ParseFloat(n, 64); err != nil {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(n)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func isNumber(v interface{}) bool {
	if _, ok := v.(string); ok {
		return false
	}
	_, ok := toDecimal(v)
	return ok
}

func equalValues(a, b interface{}) bool {
	if isNumber(a) || isNumber(b) {
		da, okA := toDecimal(a)
		db, okB := toDecimal(b)
		if okA && okB {
			return da.Equal(db)
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	return toString(a) == toString(b)
}

// compareValues returns -1, 0 or 1. The second result is false when either
// side is nil or the values cannot be ordered against each other.
func compareValues(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if isNumber(a) || isNumber(b) {
		da, okA := toDecimal(a)
		db, okB := toDecimal(b)
		if okA && okB {
			return da.Cmp(db), true
		}
		return 0, false
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case ta.Before(tb):
			return -1, true
		case ta.After(tb):
			return 1, true
		}
		return 0, true
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ba == bb:
			return 0, true
		case !ba:
			return -1, true
		}
		return 1, true
	}
	return strings.Compare(toString(a), toString(b)), true
}

// sortCompare orders values with nils last.
func sortCompare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	cmp, ok := compareValues(a, b)
	if !ok {
		return strings.Compare(toString(a), toString(b))
	}
	return cmp
}
