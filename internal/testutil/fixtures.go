// Package testutil provides the sample models and records shared by the unit
// tests and by the in-memory demo backend.
package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/collection/memory"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Today is the reference date the fixture data is laid out around (a Saturday).
var Today = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

// Clock returns Today; pass it wherever a clock is injected.
func Clock() time.Time { return Today }

// StatusChoices are the declared choices of User.status
var StatusChoices = []schema.Choice{
	{Value: 0, Label: "Regular"},
	{Value: 1, Label: "Manager"},
	{Value: 2, Label: "Admin"},
}

// Fixture bundles the test models and a store populated with known records.
// Every call to NewFixture returns independent models.
type Fixture struct {
	Registry   *schema.Registry
	User       *schema.Model
	Book       *schema.Model
	Comment    *schema.Model
	Article    *schema.Model
	Restaurant *schema.Model
	Store      *memory.Store
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimeOfDay returns a clock time on the zero date, the shape time.Parse gives "15:04".
func TimeOfDay(hour, minute int) time.Time {
	return time.Date(0, time.January, 1, hour, minute, 0, 0, time.UTC)
}

// NewFixture builds the models and loads:
//
//	users:    alex (status 1, active), aaron (status 0, active), jacob (status 0, inactive)
//	books:    Ender's Game (10, 4.7), Rainbow Six (15, 4.6), Snowcrash (20, 4.3)
//	comments: five comments spread from 2023-12-31 to Today
//	articles: three articles by alex and aaron
func NewFixture() *Fixture {
	book := &schema.Model{
		Name:         "book",
		Table:        "books",
		DisplayField: "title",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.Auto},
			{Name: "title", Kind: schema.Char},
			{Name: "price", Kind: schema.Decimal},
			{Name: "average_rating", Kind: schema.Float},
		},
	}

	user := &schema.Model{
		Name:         "user",
		Table:        "users",
		DisplayField: "username",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.Auto},
			{Name: "username", Kind: schema.Char},
			{Name: "first_name", Kind: schema.Char},
			{Name: "last_name", Kind: schema.Char},
			{Name: "status", Kind: schema.Integer, Choices: StatusChoices},
			{Name: "is_active", Kind: schema.Boolean},
			{Name: "favorite_books", Kind: schema.ManyToMany, Relation: &schema.Relation{
				To:          book,
				Many:        true,
				Through:     &schema.Through{Table: "users_favorite_books", SourceColumn: "user_id", TargetColumn: "book_id"},
				RelatedName: "lovers",
			}},
		},
	}

	comment := &schema.Model{
		Name:  "comment",
		Table: "comments",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.Auto},
			{Name: "text", Kind: schema.Text},
			{Name: "author", Kind: schema.ForeignKey, Relation: &schema.Relation{To: user, RelatedName: "comments"}},
			{Name: "date", Kind: schema.Date},
			{Name: "time", Kind: schema.Time},
		},
	}

	article := &schema.Model{
		Name:  "article",
		Table: "articles",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.Auto},
			{Name: "published", Kind: schema.DateTime},
			{Name: "author", Kind: schema.ForeignKey, Relation: &schema.Relation{To: user}},
		},
	}

	restaurant := &schema.Model{
		Name:  "restaurant",
		Table: "restaurants",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.Auto},
			{Name: "name", Kind: schema.Char},
			{Name: "serves_pizza", Kind: schema.Boolean},
		},
	}

	registry := schema.NewRegistry(user, book, comment, article, restaurant)
	if err := registry.Link(); err != nil {
		panic(err)
	}

	store := memory.NewStore()
	store.Insert(book,
		collection.Record{"id": 1, "title": "Ender's Game", "price": decimal.RequireFromString("10"), "average_rating": 4.7},
		collection.Record{"id": 2, "title": "Rainbow Six", "price": decimal.RequireFromString("15"), "average_rating": 4.6},
		collection.Record{"id": 3, "title": "Snowcrash", "price": decimal.RequireFromString("20"), "average_rating": 4.3},
	)
	store.Insert(user,
		collection.Record{"id": 1, "username": "alex", "first_name": "Alex", "last_name": "Gaynor", "status": 1, "is_active": true, "favorite_books": []interface{}{1, 2}},
		collection.Record{"id": 2, "username": "aaron", "first_name": "Aaron", "last_name": "Smith", "status": 0, "is_active": true, "favorite_books": []interface{}{1, 3}},
		collection.Record{"id": 3, "username": "jacob", "first_name": "Jacob", "last_name": "Kaplan", "status": 0, "is_active": false, "favorite_books": []interface{}{}},
	)
	store.Insert(comment,
		collection.Record{"id": 1, "text": "comment 1", "author": 1, "date": Date(2024, time.June, 15), "time": TimeOfDay(10, 0)},
		collection.Record{"id": 2, "text": "comment 2", "author": 2, "date": Date(2024, time.June, 12), "time": TimeOfDay(15, 30)},
		collection.Record{"id": 3, "text": "comment 3", "author": 1, "date": Date(2024, time.June, 1), "time": TimeOfDay(20, 0)},
		collection.Record{"id": 4, "text": "comment 4", "author": 2, "date": Date(2024, time.January, 20), "time": TimeOfDay(8, 0)},
		collection.Record{"id": 5, "text": "comment 5", "author": 3, "date": Date(2023, time.December, 31), "time": TimeOfDay(12, 0)},
	)
	store.Insert(article,
		collection.Record{"id": 1, "published": time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC), "author": 1},
		collection.Record{"id": 2, "published": time.Date(2024, time.June, 10, 9, 30, 0, 0, time.UTC), "author": 2},
		collection.Record{"id": 3, "published": time.Date(2024, time.May, 1, 18, 0, 0, 0, time.UTC), "author": 1},
	)
	store.Insert(restaurant,
		collection.Record{"id": 1, "name": "Pizzeria Uno", "serves_pizza": true},
		collection.Record{"id": 2, "name": "Sushi Bar", "serves_pizza": false},
	)

	return &Fixture{
		Registry:   registry,
		User:       user,
		Book:       book,
		Comment:    comment,
		Article:    article,
		Restaurant: restaurant,
		Store:      store,
	}
}

// Field returns the named value of every record, in order.
func Field(records []collection.Record, name string) []interface{} {
	out := make([]interface{}, len(records))
	for i, r := range records {
		out[i] = r[name]
	}
	return out
}

// Usernames is Field(records, "username") as strings.
func Usernames(records []collection.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i], _ = r["username"].(string)
	}
	return out
}
