package query

import "strings"

// OrderBy represents one ordering key
type OrderBy struct {
	Field string
	Desc  bool
}

// ParseOrderBy reads "field" or "-field".
func ParseOrderBy(s string) OrderBy {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return OrderBy{Field: s[1:], Desc: true}
	}
	return OrderBy{Field: s}
}

func (o OrderBy) String() string {
	if o.Desc {
		return "-" + o.Field
	}
	return o.Field
}
