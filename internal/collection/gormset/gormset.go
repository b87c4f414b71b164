// Package gormset is a collection backend for applications that already hold
// a *gorm.DB. Statements come from sqlbuild with ? placeholders and run as raw
// SQL; rows are mapped back onto the model's fields.
package gormset

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/collection/sqlbuild"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Source hands out query sets over a gorm connection
type Source struct {
	db *gorm.DB
}

// New creates a source using db
func New(db *gorm.DB) *Source {
	return &Source{db: db}
}

// All implements collection.Source.
func (s *Source) All(model *schema.Model) collection.QuerySet {
	return &QuerySet{db: s.db, model: model}
}

// QuerySet is a lazily evaluated view over one table
type QuerySet struct {
	db    *gorm.DB
	model *schema.Model
	spec  collection.Spec
}

func (q *QuerySet) derive(spec collection.Spec) *QuerySet {
	return &QuerySet{db: q.db, model: q.model, spec: spec}
}

func (q *QuerySet) Model() *schema.Model { return q.model }

func (q *QuerySet) Filter(p query.Predicate) collection.QuerySet {
	return q.derive(q.spec.WithFilter(p))
}

func (q *QuerySet) Distinct() collection.QuerySet {
	return q.derive(q.spec.WithDistinct())
}

func (q *QuerySet) OrderBy(keys ...query.OrderBy) collection.QuerySet {
	return q.derive(q.spec.WithOrder(keys))
}

func (q *QuerySet) Slice(offset, limit int) collection.QuerySet {
	return q.derive(q.spec.WithSlice(offset, limit))
}

func (q *QuerySet) builder() *sqlbuild.Builder {
	return sqlbuild.NewBuilder(q.model, q.spec).WithPlaceholder(sqlbuild.Question)
}

// Statement returns the SELECT All would run, with values inlined by the
// dialector. Meant for logging and debugging only.
func (q *QuerySet) Statement() (string, error) {
	sql, args, err := q.builder().BuildSelect()
	if err != nil {
		return "", err
	}
	return q.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Raw(sql, args...)
	}), nil
}

func (q *QuerySet) All(ctx context.Context) ([]collection.Record, error) {
	sql, args, err := q.builder().BuildSelect()
	if err != nil {
		return nil, err
	}

	rows, err := q.db.WithContext(ctx).Raw(sql, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.model.Name, err)
	}
	defer rows.Close()

	records, err := scanRecords(q.model, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", q.model.Name, err)
	}
	return records, nil
}

func (q *QuerySet) Count(ctx context.Context) (int, error) {
	sql, args, err := q.builder().BuildCount()
	if err != nil {
		return 0, err
	}

	var n int64
	if err := q.db.WithContext(ctx).Raw(sql, args...).Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.model.Name, err)
	}
	return int(n), nil
}

func (q *QuerySet) Values(ctx context.Context, field string) ([]interface{}, error) {
	b := q.builder()
	sql, args, err := b.BuildValues(field)
	if err != nil {
		return nil, err
	}

	rows, err := q.db.WithContext(ctx).Raw(sql, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s values: %w", field, err)
	}
	defer rows.Close()

	f := fieldAt(q.model, field)
	var out []interface{}
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, convertValue(f, v))
	}
	return out, rows.Err()
}

// rowScanner is the part of *sql.Rows the scanner needs
type rowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanRecords(model *schema.Model, rows rowScanner) ([]collection.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	fields := make([]*schema.Field, len(columns))
	for i, c := range columns {
		if f, ok := model.FieldByColumn(c); ok {
			fields[i] = f
		}
	}

	records := []collection.Record{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		record := make(collection.Record, len(columns))
		for i, f := range fields {
			if f == nil {
				continue
			}
			record[f.Name] = convertValue(f, values[i])
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// fieldAt follows a relation path to the field it ends on, or nil.
func fieldAt(model *schema.Model, path string) *schema.Field {
	var f *schema.Field
	for _, seg := range query.SplitPath(path) {
		if model == nil {
			return nil
		}
		next, ok := model.Field(seg)
		if !ok {
			rev, ok := model.ReverseRelation(seg)
			if !ok {
				return nil
			}
			model = rev.Model
			f = model.PrimaryKey()
			continue
		}
		f = next
		if f.Relation != nil {
			model = f.Relation.To
			if f.Relation.Many && model != nil {
				f = model.PrimaryKey()
			}
		}
	}
	return f
}

// convertValue undoes the database/sql driver's text fallback for types it
// does not decode natively.
func convertValue(f *schema.Field, v interface{}) interface{} {
	switch v := v.(type) {
	case nil:
		return nil
	case []byte:
		return convertValue(f, string(v))
	case int64:
		return int(v)
	case int32:
		return int(v)
	case string:
		if f == nil || f.Kind == nil {
			return v
		}
		switch {
		case f.Kind.Is(schema.Decimal):
			if d, err := decimal.NewFromString(v); err == nil {
				return d
			}
		case f.Kind.Is(schema.Time):
			for _, layout := range []string{"15:04:05.999999", "15:04:05.999999-07", "15:04"} {
				if t, err := time.Parse(layout, v); err == nil {
					return t
				}
			}
		}
		return v
	}
	return v
}
