package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluxbase-eu/filterkit/internal/query"
)

func TestSpec_WithFilterCopies(t *testing.T) {
	base := Spec{}.WithFilter(query.Compare("status", query.Exact, 1))
	a := base.WithFilter(query.Compare("username", query.Exact, "alex"))
	b := base.WithFilter(query.Compare("username", query.Exact, "jacob"))

	assert.Len(t, base.Where, 1)
	assert.Len(t, a.Where, 2)
	assert.Len(t, b.Where, 2)
	assert.NotEqual(t, a.Where[1], b.Where[1], "derived specs do not share storage")

	assert.Equal(t, base, base.WithFilter(nil))
	assert.Equal(t, base, base.WithFilter(query.And()))
}

func TestSpec_WithSlice(t *testing.T) {
	tests := []struct {
		name       string
		spec       Spec
		wantOffset int
		wantLimit  int
		wantHas    bool
	}{
		{"window", Spec{}.WithSlice(10, 5), 10, 5, true},
		{"open end", Spec{}.WithSlice(3, -1), 3, 0, false},
		{"nested", Spec{}.WithSlice(10, 20).WithSlice(5, 10), 15, 10, true},
		{"nested past end", Spec{}.WithSlice(10, 20).WithSlice(15, 10), 25, 5, true},
		{"nested beyond", Spec{}.WithSlice(0, 5).WithSlice(8, 2), 8, 0, true},
		{"negative offset", Spec{}.WithSlice(-4, 2), 0, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantOffset, tt.spec.Offset)
			assert.Equal(t, tt.wantLimit, tt.spec.Limit)
			assert.Equal(t, tt.wantHas, tt.spec.HasLimit)
		})
	}
}

func TestSpec_OrderAndDistinct(t *testing.T) {
	keys := []query.OrderBy{{Field: "status", Desc: true}}
	s := Spec{}.WithOrder(keys).WithDistinct()
	keys[0].Field = "username"

	assert.Equal(t, "status", s.Order[0].Field, "ordering is copied")
	assert.True(t, s.Distinct)
	assert.True(t, s.Predicate().IsEmpty())
}
