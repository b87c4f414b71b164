package sqlbuild

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// scope is one FROM clause: the outer query or an EXISTS subquery. To-one
// hops are LEFT JOINed into the scope once per path.
type scope struct {
	model  *schema.Model
	alias  string
	base   string
	joins  []string
	joined map[string]string
}

func newScope(model *schema.Model, alias string) *scope {
	return &scope{
		model:  model,
		alias:  alias,
		base:   quoteTable(model) + " AS " + quoteIdentifier(alias),
		joined: make(map[string]string),
	}
}

func (sc *scope) from() string {
	if len(sc.joins) == 0 {
		return sc.base
	}
	return sc.base + " " + strings.Join(sc.joins, " ")
}

// join adds a LEFT JOIN for key unless the scope already has one, and returns
// the joined alias.
func (sc *scope) join(b *Builder, key, table string, on func(alias string) string) string {
	if alias, ok := sc.joined[key]; ok {
		return alias
	}
	alias := b.newAlias()
	sc.joins = append(sc.joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s", table, quoteIdentifier(alias), on(alias)))
	sc.joined[key] = alias
	return alias
}

func (b *Builder) compile(sc *scope, p query.Predicate) (string, error) {
	switch v := p.(type) {
	case *query.Comparison:
		return b.condition(sc, sc.model, sc.alias, "", query.SplitPath(v.Field), v)
	case *query.Group:
		if len(v.Children) == 0 {
			return "TRUE", nil
		}
		parts := make([]string, 0, len(v.Children))
		for _, child := range v.Children {
			part, err := b.compile(sc, child)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		return "(" + strings.Join(parts, " "+string(v.Op)+" ") + ")", nil
	case *query.Negation:
		if v.IsEmpty() {
			return "TRUE", nil
		}
		inner, err := b.compile(sc, v.Child)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	}
	return "", fmt.Errorf("unsupported predicate %T", p)
}

// condition compiles comparison c reached through segments from alias. To-many
// hops become EXISTS subqueries so the outer rows are never multiplied.
func (b *Builder) condition(sc *scope, model *schema.Model, alias, key string, segments []string, c *query.Comparison) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: empty path", ErrUnknownField)
	}
	seg, rest := segments[0], segments[1:]
	last := len(rest) == 0
	key += query.PathSeparator + seg

	if f, ok := model.Field(seg); ok {
		switch {
		case f.Relation == nil:
			if !last {
				return "", fmt.Errorf("%w: %s is not a relation", ErrUnknownField, seg)
			}
			return b.lookup(column(alias, f.GetColumn()), f, c)

		case !f.Relation.Many:
			target, targetField, err := relationTarget(f)
			if err != nil {
				return "", err
			}
			if last {
				return b.lookup(column(alias, f.GetColumn()), targetField, c)
			}
			joined := sc.join(b, key, quoteTable(target), func(a string) string {
				return column(a, targetField.GetColumn()) + " = " + column(alias, f.GetColumn())
			})
			return b.condition(sc, target, joined, key, rest, c)

		default:
			target, _, err := relationTarget(f)
			if err != nil {
				return "", err
			}
			through := throughOf(model, f)
			jt := b.newAlias()
			link := column(jt, through.SourceColumn) + " = " + column(alias, ownKeyColumn(model))
			sub := &scope{
				model:  target,
				base:   quoteThrough(model, through) + " AS " + quoteIdentifier(jt),
				joined: make(map[string]string),
			}
			if last {
				if c.Lookup == query.IsNull {
					return b.existence(sub, link, c.Value)
				}
				cond, err := b.lookup(column(jt, through.TargetColumn), target.PrimaryKey(), c)
				if err != nil {
					return "", err
				}
				return exists(sub, link+" AND "+cond), nil
			}
			ta := b.newAlias()
			sub.alias = ta
			sub.joins = append(sub.joins, fmt.Sprintf("JOIN %s AS %s ON %s = %s",
				quoteTable(target), quoteIdentifier(ta), column(ta, ownKeyColumn(target)), column(jt, through.TargetColumn)))
			cond, err := b.condition(sub, target, ta, "", rest, c)
			if err != nil {
				return "", err
			}
			return exists(sub, link+" AND "+cond), nil
		}
	}

	if rev, ok := model.ReverseRelation(seg); ok {
		targetField := rev.Field.Relation.TargetField()
		if targetField == nil {
			return "", fmt.Errorf("%w: %s", ErrUnknownField, seg)
		}
		owner := rev.Model
		oa := b.newAlias()
		sub := &scope{model: owner, alias: oa, joined: make(map[string]string)}
		var link string
		if rev.Field.Relation.Many {
			through := throughOf(owner, rev.Field)
			jt := b.newAlias()
			sub.base = quoteThrough(owner, through) + " AS " + quoteIdentifier(jt)
			sub.joins = append(sub.joins, fmt.Sprintf("JOIN %s AS %s ON %s = %s",
				quoteTable(owner), quoteIdentifier(oa), column(oa, ownKeyColumn(owner)), column(jt, through.SourceColumn)))
			link = column(jt, through.TargetColumn) + " = " + column(alias, targetField.GetColumn())
		} else {
			sub.base = quoteTable(owner) + " AS " + quoteIdentifier(oa)
			link = column(oa, rev.Field.GetColumn()) + " = " + column(alias, targetField.GetColumn())
		}
		if last {
			if c.Lookup == query.IsNull {
				return b.existence(sub, link, c.Value)
			}
			cond, err := b.lookup(column(oa, ownKeyColumn(owner)), owner.PrimaryKey(), c)
			if err != nil {
				return "", err
			}
			return exists(sub, link+" AND "+cond), nil
		}
		cond, err := b.condition(sub, owner, oa, "", rest, c)
		if err != nil {
			return "", err
		}
		return exists(sub, link+" AND "+cond), nil
	}

	return "", fmt.Errorf("%w: %s on %s", ErrUnknownField, seg, model.Name)
}

func exists(sub *scope, where string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)", sub.from(), where)
}

// existence compiles isnull over a to-many hop: null means no related rows.
func (b *Builder) existence(sub *scope, link string, value interface{}) (string, error) {
	want, ok := value.(bool)
	if !ok {
		return "", fmt.Errorf("isnull expects a boolean, got %T", value)
	}
	if want {
		return "NOT " + exists(sub, link), nil
	}
	return exists(sub, link), nil
}

// lookup renders one lookup applied to col. f describes the compared values
// and may be nil.
func (b *Builder) lookup(col string, f *schema.Field, c *query.Comparison) (string, error) {
	value := normalize(f, c.Value)

	switch c.Lookup {
	case query.Exact:
		if value == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + b.arg(value), nil
	case query.IExact:
		return fmt.Sprintf("UPPER(%s::text) = UPPER(%s)", col, b.arg(fmt.Sprint(value))), nil
	case query.Contains:
		return fmt.Sprintf("%s::text LIKE %s", col, b.arg("%"+escapeLike(value)+"%")), nil
	case query.IContains:
		return fmt.Sprintf("UPPER(%s::text) LIKE UPPER(%s)", col, b.arg("%"+escapeLike(value)+"%")), nil
	case query.StartsWith:
		return fmt.Sprintf("%s::text LIKE %s", col, b.arg(escapeLike(value)+"%")), nil
	case query.IStartsWith:
		return fmt.Sprintf("UPPER(%s::text) LIKE UPPER(%s)", col, b.arg(escapeLike(value)+"%")), nil
	case query.EndsWith:
		return fmt.Sprintf("%s::text LIKE %s", col, b.arg("%"+escapeLike(value))), nil
	case query.IEndsWith:
		return fmt.Sprintf("UPPER(%s::text) LIKE UPPER(%s)", col, b.arg("%"+escapeLike(value))), nil
	case query.In:
		items := toSlice(value)
		if len(items) == 0 {
			return "FALSE", nil
		}
		placeholders := make([]string, len(items))
		for i, item := range items {
			placeholders[i] = b.arg(item)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), nil
	case query.GT:
		return col + " > " + b.arg(value), nil
	case query.GTE:
		return col + " >= " + b.arg(value), nil
	case query.LT:
		return col + " < " + b.arg(value), nil
	case query.LTE:
		return col + " <= " + b.arg(value), nil
	case query.Range:
		bounds, ok := value.(query.Bounds)
		if !ok {
			return "", fmt.Errorf("range expects query.Bounds, got %T", value)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, b.arg(bounds.Low), b.arg(bounds.High)), nil
	case query.Year:
		return fmt.Sprintf("EXTRACT(YEAR FROM %s) = %s", col, b.arg(value)), nil
	case query.Month:
		return fmt.Sprintf("EXTRACT(MONTH FROM %s) = %s", col, b.arg(value)), nil
	case query.Day:
		return fmt.Sprintf("EXTRACT(DAY FROM %s) = %s", col, b.arg(value)), nil
	case query.WeekDay:
		return fmt.Sprintf("EXTRACT(DOW FROM %s) + 1 = %s", col, b.arg(value)), nil
	case query.IsNull:
		want, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("isnull expects a boolean, got %T", value)
		}
		if want {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil
	case query.Search:
		return fmt.Sprintf("to_tsvector(%s::text) @@ plainto_tsquery(%s)", col, b.arg(fmt.Sprint(value))), nil
	case query.Regex:
		return fmt.Sprintf("%s::text ~ %s", col, b.arg(fmt.Sprint(value))), nil
	case query.IRegex:
		return fmt.Sprintf("%s::text ~* %s", col, b.arg(fmt.Sprint(value))), nil
	}
	return "", fmt.Errorf("unsupported lookup %q", c.Lookup)
}

// normalize converts values the drivers cannot bind to the field's column
// directly. Times of day and decimals are sent as text and cast by the server.
func normalize(f *schema.Field, value interface{}) interface{} {
	switch v := value.(type) {
	case query.Bounds:
		return query.Bounds{Low: normalize(f, v.Low), High: normalize(f, v.High)}
	case time.Time:
		if f != nil && f.Kind != nil && f.Kind.Is(schema.Time) {
			return v.Format("15:04:05.999999")
		}
		return v
	case decimal.Decimal:
		return v.String()
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = normalize(f, item)
		}
		return out
	}
	return value
}

func escapeLike(v interface{}) string {
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func toSlice(v interface{}) []interface{} {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{v}
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
