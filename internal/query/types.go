// Package query provides the lookup catalog and the structured predicate tree shared by the
// filter definitions and every collection backend.
package query

import (
	"sort"
	"strings"
)

// PathSeparator joins relation segments and the trailing lookup in a field path,
// e.g. "author__username__icontains".
const PathSeparator = "__"

// LookupType represents a named comparison operator
type LookupType string

const (
	Exact       LookupType = "exact"
	IExact      LookupType = "iexact"
	Contains    LookupType = "contains"
	IContains   LookupType = "icontains"
	In          LookupType = "in"
	GT          LookupType = "gt"
	GTE         LookupType = "gte"
	LT          LookupType = "lt"
	LTE         LookupType = "lte"
	StartsWith  LookupType = "startswith"
	IStartsWith LookupType = "istartswith"
	EndsWith    LookupType = "endswith"
	IEndsWith   LookupType = "iendswith"
	Range       LookupType = "range"
	Year        LookupType = "year"
	Month       LookupType = "month"
	Day         LookupType = "day"
	WeekDay     LookupType = "week_day" // 1 = Sunday .. 7 = Saturday
	IsNull      LookupType = "isnull"
	Search      LookupType = "search" // full text search
	Regex       LookupType = "regex"
	IRegex      LookupType = "iregex"
)

// recognised is the set of operators every collection backend compiles.
var recognised = map[LookupType]struct{}{
	Exact: {}, IExact: {}, Contains: {}, IContains: {}, In: {},
	GT: {}, GTE: {}, LT: {}, LTE: {},
	StartsWith: {}, IStartsWith: {}, EndsWith: {}, IEndsWith: {},
	Range: {}, Year: {}, Month: {}, Day: {}, WeekDay: {},
	IsNull: {}, Search: {}, Regex: {}, IRegex: {},
}

var catalog = func() []LookupType {
	out := make([]LookupType, 0, len(recognised))
	for lt := range recognised {
		out = append(out, lt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}()

// LookupTypes returns the catalog of supported lookups, sorted ascending.
// The returned slice is a copy.
func LookupTypes() []LookupType {
	out := make([]LookupType, len(catalog))
	copy(out, catalog)
	return out
}

// IsLookupType reports whether s names a supported lookup.
func IsLookupType(s string) bool {
	_, ok := recognised[LookupType(s)]
	return ok
}

// ParseLookupType converts s into a LookupType.
func ParseLookupType(s string) (LookupType, bool) {
	if !IsLookupType(s) {
		return "", false
	}
	return LookupType(s), true
}

// SplitLookup strips a trailing lookup suffix from a field path.
// "published__gt" yields ("published", GT); a path without a recognised
// suffix is returned unchanged with Exact.
func SplitLookup(path string) (string, LookupType) {
	idx := strings.LastIndex(path, PathSeparator)
	if idx <= 0 {
		return path, Exact
	}
	if lt, ok := ParseLookupType(path[idx+len(PathSeparator):]); ok {
		return path[:idx], lt
	}
	return path, Exact
}

// SplitPath breaks a relation path into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}
