package sqlbuild_test

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/collection/sqlbuild"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
	"github.com/fluxbase-eu/filterkit/internal/testutil"
)

func assertValidSQL(t *testing.T, sql string) {
	t.Helper()
	_, err := pg_query.Parse(sql)
	assert.NoError(t, err, "generated SQL does not parse: %s", sql)
}

func TestBuilder_BuildSelect(t *testing.T) {
	fx := testutil.NewFixture()

	tests := []struct {
		name         string
		model        *schema.Model
		spec         collection.Spec
		expectedSQL  string
		expectedArgs []interface{}
	}{
		{
			name:        "full collection in natural order",
			model:       fx.User,
			spec:        collection.Spec{},
			expectedSQL: `SELECT "t0".* FROM "public"."users" AS "t0" ORDER BY "t0"."id" ASC`,
		},
		{
			name:         "single comparison",
			model:        fx.User,
			spec:         collection.Spec{}.WithFilter(query.Compare("username", query.Exact, "alex")),
			expectedSQL:  `SELECT "t0".* FROM "public"."users" AS "t0" WHERE "t0"."username" = $1 ORDER BY "t0"."id" ASC`,
			expectedArgs: []interface{}{"alex"},
		},
		{
			name:  "or group inside and",
			model: fx.User,
			spec: collection.Spec{}.
				WithFilter(query.Or(query.Compare("status", query.Exact, 0), query.Compare("status", query.Exact, 1))).
				WithFilter(query.Compare("is_active", query.Exact, false)),
			expectedSQL:  `SELECT "t0".* FROM "public"."users" AS "t0" WHERE (("t0"."status" = $1 OR "t0"."status" = $2) AND "t0"."is_active" = $3) ORDER BY "t0"."id" ASC`,
			expectedArgs: []interface{}{0, 1, false},
		},
		{
			name:  "distinct over to-one joins adds nothing",
			model: fx.Comment,
			spec: collection.Spec{}.
				WithFilter(query.Compare("author__username", query.Exact, "aaron")).
				WithDistinct().
				WithOrder([]query.OrderBy{query.ParseOrderBy("-date")}),
			expectedSQL: `SELECT "t0".* ` +
				`FROM "public"."comments" AS "t0" LEFT JOIN "public"."users" AS "t1" ON "t1"."id" = "t0"."author_id" ` +
				`WHERE "t1"."username" = $1 ORDER BY "t0"."date" DESC, "t0"."id" ASC`,
			expectedArgs: []interface{}{"aaron"},
		},
		{
			name:  "ordering by a related field reuses the join",
			model: fx.Comment,
			spec: collection.Spec{}.
				WithFilter(query.Compare("author__is_active", query.Exact, true)).
				WithOrder([]query.OrderBy{{Field: "author__username"}}),
			expectedSQL: `SELECT "t0".* FROM "public"."comments" AS "t0" LEFT JOIN "public"."users" AS "t1" ON "t1"."id" = "t0"."author_id" ` +
				`WHERE "t1"."is_active" = $1 ORDER BY "t1"."username" ASC, "t0"."id" ASC`,
			expectedArgs: []interface{}{true},
		},
		{
			name:         "to-one relation compares the key column",
			model:        fx.Comment,
			spec:         collection.Spec{}.WithFilter(query.Compare("author", query.Exact, 2)),
			expectedSQL:  `SELECT "t0".* FROM "public"."comments" AS "t0" WHERE "t0"."author_id" = $1 ORDER BY "t0"."id" ASC`,
			expectedArgs: []interface{}{2},
		},
		{
			name:  "many-to-many key becomes exists",
			model: fx.User,
			spec:  collection.Spec{}.WithFilter(query.Compare("favorite_books", query.Exact, 3)),
			expectedSQL: `SELECT "t0".* FROM "public"."users" AS "t0" WHERE EXISTS (SELECT 1 FROM "public"."users_favorite_books" AS "t1" ` +
				`WHERE "t1"."user_id" = "t0"."id" AND "t1"."book_id" = $1) ORDER BY "t0"."id" ASC`,
			expectedArgs: []interface{}{3},
		},
		{
			name:  "many-to-many path joins the target inside exists",
			model: fx.User,
			spec:  collection.Spec{}.WithFilter(query.Compare("favorite_books__title", query.IContains, "rain")),
			expectedSQL: `SELECT "t0".* FROM "public"."users" AS "t0" WHERE EXISTS (SELECT 1 FROM "public"."users_favorite_books" AS "t1" ` +
				`JOIN "public"."books" AS "t2" ON "t2"."id" = "t1"."book_id" ` +
				`WHERE "t1"."user_id" = "t0"."id" AND UPPER("t2"."title"::text) LIKE UPPER($1)) ORDER BY "t0"."id" ASC`,
			expectedArgs: []interface{}{"%rain%"},
		},
		{
			name:  "empty many-to-many is null",
			model: fx.User,
			spec:  collection.Spec{}.WithFilter(query.Compare("favorite_books", query.IsNull, true)),
			expectedSQL: `SELECT "t0".* FROM "public"."users" AS "t0" WHERE NOT EXISTS (SELECT 1 FROM "public"."users_favorite_books" AS "t1" ` +
				`WHERE "t1"."user_id" = "t0"."id") ORDER BY "t0"."id" ASC`,
		},
		{
			name:  "reverse relation",
			model: fx.User,
			spec:  collection.Spec{}.WithFilter(query.Compare("comments__text", query.Exact, "comment 5")),
			expectedSQL: `SELECT "t0".* FROM "public"."users" AS "t0" WHERE EXISTS (SELECT 1 FROM "public"."comments" AS "t1" ` +
				`WHERE "t1"."author_id" = "t0"."id" AND "t1"."text" = $1) ORDER BY "t0"."id" ASC`,
			expectedArgs: []interface{}{"comment 5"},
		},
		{
			name:  "negation and window",
			model: fx.User,
			spec: collection.Spec{}.
				WithFilter(query.Not(query.Compare("status", query.Exact, 0))).
				WithSlice(10, 5),
			expectedSQL:  `SELECT "t0".* FROM "public"."users" AS "t0" WHERE NOT ("t0"."status" = $1) ORDER BY "t0"."id" ASC LIMIT 5 OFFSET 10`,
			expectedArgs: []interface{}{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := sqlbuild.NewBuilder(tt.model, tt.spec).BuildSelect()
			require.NoError(t, err)
			assert.Equal(t, tt.expectedSQL, sql)
			assert.Equal(t, tt.expectedArgs, args)
			assertValidSQL(t, sql)
		})
	}
}

func TestBuilder_Lookups(t *testing.T) {
	fx := testutil.NewFixture()

	tests := []struct {
		name          string
		model         *schema.Model
		pred          query.Predicate
		expectedWhere string
		expectedArgs  []interface{}
	}{
		{"exact null", fx.Book, query.Compare("price", query.Exact, nil), `"t0"."price" IS NULL`, nil},
		{"iexact", fx.User, query.Compare("username", query.IExact, "ALEX"), `UPPER("t0"."username"::text) = UPPER($1)`, []interface{}{"ALEX"}},
		{"contains escapes wildcards", fx.User, query.Compare("username", query.Contains, "50%_off"), `"t0"."username"::text LIKE $1`, []interface{}{`%50\%\_off%`}},
		{"istartswith", fx.User, query.Compare("username", query.IStartsWith, "a"), `UPPER("t0"."username"::text) LIKE UPPER($1)`, []interface{}{"a%"}},
		{"endswith", fx.User, query.Compare("username", query.EndsWith, "b"), `"t0"."username"::text LIKE $1`, []interface{}{"%b"}},
		{"in", fx.User, query.Compare("status", query.In, []int{1, 2}), `"t0"."status" IN ($1, $2)`, []interface{}{1, 2}},
		{"empty in", fx.User, query.Compare("status", query.In, []int{}), `FALSE`, nil},
		{"gte", fx.Book, query.Compare("price", query.GTE, decimal.RequireFromString("10")), `"t0"."price" >= $1`, []interface{}{"10"}},
		{"range", fx.Book, query.Compare("price", query.Range, query.Bounds{Low: 5, High: 15}), `"t0"."price" BETWEEN $1 AND $2`, []interface{}{5, 15}},
		{"year", fx.Article, query.Compare("published", query.Year, 2024), `EXTRACT(YEAR FROM "t0"."published") = $1`, []interface{}{2024}},
		{"month", fx.Article, query.Compare("published", query.Month, 6), `EXTRACT(MONTH FROM "t0"."published") = $1`, []interface{}{6}},
		{"day", fx.Article, query.Compare("published", query.Day, 15), `EXTRACT(DAY FROM "t0"."published") = $1`, []interface{}{15}},
		{"week day", fx.Article, query.Compare("published", query.WeekDay, 7), `EXTRACT(DOW FROM "t0"."published") + 1 = $1`, []interface{}{7}},
		{"isnull false", fx.Book, query.Compare("price", query.IsNull, false), `"t0"."price" IS NOT NULL`, nil},
		{"search", fx.Comment, query.Compare("text", query.Search, "comment"), `to_tsvector("t0"."text"::text) @@ plainto_tsquery($1)`, []interface{}{"comment"}},
		{"regex", fx.User, query.Compare("username", query.Regex, "^a"), `"t0"."username"::text ~ $1`, []interface{}{"^a"}},
		{"iregex", fx.User, query.Compare("username", query.IRegex, "^A"), `"t0"."username"::text ~* $1`, []interface{}{"^A"}},
		{"time of day sent as text", fx.Comment, query.Compare("time", query.GTE, testutil.TimeOfDay(10, 0)), `"t0"."time" >= $1`, []interface{}{"10:00:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := sqlbuild.NewBuilder(tt.model, collection.Spec{}.WithFilter(tt.pred)).BuildSelect()
			require.NoError(t, err)
			assert.Contains(t, sql, " WHERE "+tt.expectedWhere+" ORDER BY")
			assert.Equal(t, tt.expectedArgs, args)
			assertValidSQL(t, sql)
		})
	}
}

func TestBuilder_EveryCatalogLookupCompiles(t *testing.T) {
	fx := testutil.NewFixture()
	for _, lt := range query.LookupTypes() {
		var value interface{} = "x"
		switch lt {
		case query.Range:
			value = query.Bounds{Low: 1, High: 2}
		case query.IsNull:
			value = true
		case query.In:
			value = []interface{}{1}
		}
		_, _, err := sqlbuild.NewBuilder(fx.User, collection.Spec{}.WithFilter(query.Compare("username", lt, value))).BuildSelect()
		assert.NoError(t, err, "lookup %s", lt)
	}
}

func TestBuilder_BuildCount(t *testing.T) {
	fx := testutil.NewFixture()
	spec := collection.Spec{}.WithFilter(query.Compare("status", query.Exact, 0)).WithDistinct()

	sql, args, err := sqlbuild.NewBuilder(fx.User, spec).BuildCount()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT "t0".* FROM "public"."users" AS "t0" WHERE "t0"."status" = $1) AS "sub"`, sql)
	assert.Equal(t, []interface{}{0}, args)
	assertValidSQL(t, sql)
}

func TestBuilder_BuildValues(t *testing.T) {
	fx := testutil.NewFixture()

	t.Run("to-one path", func(t *testing.T) {
		sql, args, err := sqlbuild.NewBuilder(fx.Comment, collection.Spec{}).BuildValues("author__username")
		require.NoError(t, err)
		assert.Equal(t, `SELECT DISTINCT "t1"."username" AS "value" FROM "public"."comments" AS "t0" `+
			`LEFT JOIN "public"."users" AS "t1" ON "t1"."id" = "t0"."author_id" WHERE "t1"."username" IS NOT NULL ORDER BY 1`, sql)
		assert.Nil(t, args)
		assertValidSQL(t, sql)
	})

	t.Run("to-many path", func(t *testing.T) {
		sql, _, err := sqlbuild.NewBuilder(fx.User, collection.Spec{}).BuildValues("favorite_books__title")
		require.NoError(t, err)
		assert.Equal(t, `SELECT DISTINCT "t2"."title" AS "value" FROM "public"."users" AS "t0" `+
			`LEFT JOIN "public"."users_favorite_books" AS "t1" ON "t1"."user_id" = "t0"."id" `+
			`LEFT JOIN "public"."books" AS "t2" ON "t2"."id" = "t1"."book_id" WHERE "t2"."title" IS NOT NULL ORDER BY 1`, sql)
		assertValidSQL(t, sql)
	})
}

func TestBuilder_Placeholders(t *testing.T) {
	fx := testutil.NewFixture()
	spec := collection.Spec{}.WithFilter(query.And(
		query.Compare("status", query.Exact, 0),
		query.Compare("username", query.StartsWith, "a"),
	))

	sql, args, err := sqlbuild.NewBuilder(fx.User, spec).WithPlaceholder(sqlbuild.Question).BuildSelect()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "t0".* FROM "public"."users" AS "t0" WHERE ("t0"."status" = ? AND "t0"."username"::text LIKE ?) ORDER BY "t0"."id" ASC`, sql)
	assert.Equal(t, []interface{}{0, "a%"}, args)
}

func TestBuilder_Errors(t *testing.T) {
	fx := testutil.NewFixture()

	t.Run("unknown field", func(t *testing.T) {
		_, _, err := sqlbuild.NewBuilder(fx.User, collection.Spec{}.WithFilter(query.Compare("nickname", query.Exact, "x"))).BuildSelect()
		assert.ErrorIs(t, err, sqlbuild.ErrUnknownField)
	})

	t.Run("path through a scalar", func(t *testing.T) {
		_, _, err := sqlbuild.NewBuilder(fx.User, collection.Spec{}.WithFilter(query.Compare("username__first", query.Exact, "x"))).BuildSelect()
		assert.ErrorIs(t, err, sqlbuild.ErrUnknownField)
	})

	t.Run("ordering by a to-many path", func(t *testing.T) {
		_, _, err := sqlbuild.NewBuilder(fx.User, collection.Spec{}.WithOrder([]query.OrderBy{{Field: "favorite_books__title"}})).BuildSelect()
		assert.Error(t, err)
	})

	t.Run("range without bounds", func(t *testing.T) {
		_, _, err := sqlbuild.NewBuilder(fx.Book, collection.Spec{}.WithFilter(query.Compare("price", query.Range, 5))).BuildSelect()
		assert.Error(t, err)
	})
}
