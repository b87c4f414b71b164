// Package pgset is the PostgreSQL collection backend. Query sets compile to
// SQL with sqlbuild and run through a database.Executor, so the pool's
// tracing, metrics and slow query logging apply to every filtered read.
package pgset

import (
	"context"
	"fmt"
	"math/big"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/collection/sqlbuild"
	"github.com/fluxbase-eu/filterkit/internal/database"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Source hands out query sets backed by PostgreSQL tables
type Source struct {
	exec database.Executor
}

// New creates a source running its statements on exec
func New(exec database.Executor) *Source {
	return &Source{exec: exec}
}

// All implements collection.Source.
func (s *Source) All(model *schema.Model) collection.QuerySet {
	return &QuerySet{exec: s.exec, model: model}
}

// QuerySet is a lazily evaluated view over one table
type QuerySet struct {
	exec  database.Executor
	model *schema.Model
	spec  collection.Spec
}

func (q *QuerySet) derive(spec collection.Spec) *QuerySet {
	return &QuerySet{exec: q.exec, model: q.model, spec: spec}
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

// SQL returns the SELECT statement All would run.
func (q *QuerySet) SQL() (string, []interface{}, error) {
	return sqlbuild.NewBuilder(q.model, q.spec).BuildSelect()
}

// All runs the SELECT and maps columns back to field names.
func (q *QuerySet) All(ctx context.Context) ([]collection.Record, error) {
	sql, args, err := q.SQL()
	if err != nil {
		return nil, err
	}

	rows, err := q.exec.Query(ctx, sql, args...)
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
	sql, args, err := sqlbuild.NewBuilder(q.model, q.spec).BuildCount()
	if err != nil {
		return 0, err
	}

	var n int64
	if err := q.exec.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.model.Name, err)
	}
	return int(n), nil
}

func (q *QuerySet) Values(ctx context.Context, field string) ([]interface{}, error) {
	sql, args, err := sqlbuild.NewBuilder(q.model, q.spec).BuildValues(field)
	if err != nil {
		return nil, err
	}

	rows, err := q.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s values: %w", field, err)
	}
	defer rows.Close()

	var out []interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		if len(values) > 0 {
			out = append(out, convertValue(values[0]))
		}
	}
	return out, rows.Err()
}

// scanRecords reads every row into a Record keyed by field name. Columns
// without a field (unsupported types) are dropped.
func scanRecords(model *schema.Model, rows pgx.Rows) ([]collection.Record, error) {
	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		if f, ok := model.FieldByColumn(fd.Name); ok {
			names[i] = f.Name
		}
	}

	records := []collection.Record{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		record := make(collection.Record, len(fields))
		for i, v := range values {
			if names[i] == "" {
				continue
			}
			record[names[i]] = convertValue(v)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// convertValue turns pgx's decoded values into the plain Go values the
// filters and the memory backend work with.
func convertValue(v interface{}) interface{} {
	switch v := v.(type) {
	case [16]byte:
		return uuid.UUID(v).String()
	case pgtype.Numeric:
		return numericValue(v)
	case pgtype.Time:
		if !v.Valid {
			return nil
		}
		return time.Date(0, time.January, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(v.Microseconds) * time.Microsecond)
	case netip.Prefix:
		if v.IsSingleIP() {
			return v.Addr().String()
		}
		return v.String()
	case netip.Addr:
		return v.String()
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return v
}

func numericValue(n pgtype.Numeric) interface{} {
	if !n.Valid {
		return nil
	}
	if n.NaN {
		return nil
	}
	if n.InfinityModifier != pgtype.Finite {
		f, err := n.Float64Value()
		if err != nil {
			return nil
		}
		return f.Float64
	}
	i := n.Int
	if i == nil {
		i = new(big.Int)
	}
	return decimal.NewFromBigInt(i, n.Exp)
}
