package filtertool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/filterkit/internal/filters"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
	fixtures "github.com/fluxbase-eu/filterkit/internal/testutil"
)

func TestResolveField(t *testing.T) {
	fx := fixtures.NewFixture()

	tests := []struct {
		name  string
		model *schema.Model
		path  string
		field string
		ok    bool
	}{
		{"plain", fx.User, "username", "username", true},
		{"forward relation", fx.Comment, "author__username", "username", true},
		{"many-to-many", fx.User, "favorite_books__price", "price", true},
		{"reverse relation", fx.User, "comments__date", "date", true},
		{"reverse relation itself", fx.User, "comments", "id", true},
		{"unknown", fx.User, "nickname", "", false},
		{"through a plain field", fx.User, "username__length", "", false},
		{"empty", fx.User, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := ResolveField(tt.model, tt.path)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.field, f.Name)
			}
		})
	}
}

func TestFilterForField(t *testing.T) {
	kindOf := func(k *schema.Kind) filters.Kind {
		f, ok := FilterForField(&schema.Field{Name: "x", Kind: k}, "x", "", nil)
		require.True(t, ok, k.Name())
		return f.Kind
	}

	assert.IsType(t, filters.Char{}, kindOf(schema.Char))
	assert.IsType(t, filters.Char{}, kindOf(schema.Email), "inherits from char")
	assert.IsType(t, filters.Char{}, kindOf(schema.UUID))
	assert.IsType(t, filters.Boolean{}, kindOf(schema.NullBoolean))
	assert.IsType(t, filters.Number{}, kindOf(schema.BigInteger))
	assert.IsType(t, filters.DateTime{}, kindOf(schema.DateTime))
	assert.IsType(t, filters.Time{}, kindOf(schema.Time))

	_, ok := FilterForField(&schema.Field{Name: "id", Kind: schema.Auto}, "id", "", nil)
	assert.False(t, ok)
	_, ok = FilterForField(&schema.Field{Name: "author", Kind: schema.ForeignKey}, "author", "", nil)
	assert.False(t, ok, "relation kinds need a relation")

	f, ok := FilterForField(&schema.Field{Name: "first_name", Kind: schema.Char, VerboseName: "given name"}, "author__first_name", query.IContains, nil)
	require.True(t, ok)
	assert.Equal(t, "Given name", f.Label)
	assert.Equal(t, "author__first_name", f.Name)
	assert.Equal(t, query.IContains, f.Lookup.Fixed())

	fx := fixtures.NewFixture()
	status, _ := fx.User.Field("status")
	f, ok = FilterForField(status, "status", "", nil)
	require.True(t, ok)
	choice, isChoice := f.Kind.(filters.Choice)
	require.True(t, isChoice)
	assert.Len(t, choice.Choices, 3)

	author, _ := fx.Comment.Field("author")
	f, ok = FilterForField(author, "author", "", nil)
	require.True(t, ok)
	assert.Equal(t, filters.ModelChoice{Model: fx.User}, f.Kind)
}

func TestFilterForField_OverrideOnAncestor(t *testing.T) {
	overrides := Overrides{schema.Char: func(*schema.Field) filters.Kind { return filters.AllValues{} }}
	f, ok := FilterForField(&schema.Field{Name: "slug", Kind: schema.Slug}, "slug", "", overrides)
	require.True(t, ok)
	assert.IsType(t, filters.AllValues{}, f.Kind)
}
