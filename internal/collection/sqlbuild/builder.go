// Package sqlbuild compiles a model, a predicate tree and query set state into
// PostgreSQL statements. It separates query construction from execution so the
// pgx and gorm backends share one compiler and the generated SQL can be unit
// tested without a database.
package sqlbuild

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// ErrUnknownField is returned when a path names nothing on its model.
var ErrUnknownField = errors.New("unknown field")

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Dollar renders pgx style placeholders: $1, $2, ...
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question renders database/sql and gorm style placeholders.
func Question(int) string { return "?" }

const baseAlias = "t0"

// Builder compiles statements for one model. It is not safe for concurrent
// use; each Build call resets its state.
type Builder struct {
	model       *schema.Model
	spec        collection.Spec
	placeholder Placeholder

	args    []interface{}
	aliases int
}

// NewBuilder creates a builder for model using $n placeholders.
func NewBuilder(model *schema.Model, spec collection.Spec) *Builder {
	return &Builder{model: model, spec: spec, placeholder: Dollar}
}

// WithPlaceholder sets the placeholder style.
func (b *Builder) WithPlaceholder(p Placeholder) *Builder {
	b.placeholder = p
	return b
}

func (b *Builder) reset() {
	b.args = nil
	b.aliases = 0
}

func (b *Builder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return b.placeholder(len(b.args))
}

func (b *Builder) newAlias() string {
	b.aliases++
	return fmt.Sprintf("t%d", b.aliases)
}

// BuildSelect builds the SELECT returning the base table's columns.
//
// Distinct needs no SQL: outer joins only follow to-one relations and to-many
// predicates compile to EXISTS, so each base row appears at most once. A
// DISTINCT over "t0".* would also fail on json, xml and point columns.
func (b *Builder) BuildSelect() (string, []interface{}, error) {
	b.reset()
	sc := newScope(b.model, baseAlias)

	where, err := b.compileWhere(sc)
	if err != nil {
		return "", nil, err
	}
	orderParts, err := b.compileOrder(sc)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s.* FROM %s", quoteIdentifier(baseAlias), sc.from())
	if where != "" {
		sql += " WHERE " + where
	}
	if len(orderParts) > 0 {
		sql += " ORDER BY " + strings.Join(orderParts, ", ")
	}
	sql += b.window()
	return sql, b.args, nil
}

// BuildCount builds a statement counting the rows BuildSelect would return.
func (b *Builder) BuildCount() (string, []interface{}, error) {
	b.reset()
	sc := newScope(b.model, baseAlias)

	where, err := b.compileWhere(sc)
	if err != nil {
		return "", nil, err
	}

	inner := "SELECT " + quoteIdentifier(baseAlias) + ".* FROM " + sc.from()
	if where != "" {
		inner += " WHERE " + where
	}
	inner += b.window()
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS %s", inner, quoteIdentifier("sub")), b.args, nil
}

// BuildValues builds a statement selecting the distinct non-null values of
// field, ascending. The path may cross to-many relations.
func (b *Builder) BuildValues(field string) (string, []interface{}, error) {
	b.reset()
	sc := newScope(b.model, baseAlias)

	where, err := b.compileWhere(sc)
	if err != nil {
		return "", nil, err
	}
	expr, _, err := b.projection(sc, query.SplitPath(field), true)
	if err != nil {
		return "", nil, err
	}

	conds := []string{expr + " IS NOT NULL"}
	if where != "" {
		conds = append([]string{where}, conds...)
	}
	sql := fmt.Sprintf("SELECT DISTINCT %s AS %s FROM %s WHERE %s ORDER BY 1",
		expr, quoteIdentifier("value"), sc.from(), strings.Join(conds, " AND "))
	return sql, b.args, nil
}

func (b *Builder) compileWhere(sc *scope) (string, error) {
	pred := b.spec.Predicate()
	if pred.IsEmpty() {
		return "", nil
	}
	return b.compile(sc, pred)
}

func (b *Builder) window() string {
	out := ""
	if b.spec.HasLimit {
		out += fmt.Sprintf(" LIMIT %d", b.spec.Limit)
	}
	if b.spec.Offset > 0 {
		out += fmt.Sprintf(" OFFSET %d", b.spec.Offset)
	}
	return out
}

// compileOrder renders the ORDER BY clauses. The primary key is appended as
// a tiebreaker so results are deterministic.
func (b *Builder) compileOrder(sc *scope) ([]string, error) {
	var parts []string
	pkSeen := false
	for _, key := range b.spec.Order {
		expr, _, err := b.projection(sc, query.SplitPath(key.Field), false)
		if err != nil {
			return nil, fmt.Errorf("order by %s: %w", key.Field, err)
		}
		if key.Field == b.model.PKName() {
			pkSeen = true
		}
		dir := " ASC"
		if key.Desc {
			dir = " DESC"
		}
		parts = append(parts, expr+dir)
	}
	if !pkSeen && b.model.PrimaryKey() != nil {
		parts = append(parts, column(sc.alias, b.model.PrimaryKey().GetColumn())+" ASC")
	}
	return parts, nil
}

// projection resolves a path to a column expression in the outer scope,
// joining relations as needed. To-many segments are only joined when allowed.
func (b *Builder) projection(sc *scope, segments []string, allowMany bool) (string, *schema.Field, error) {
	model, alias, key := sc.model, sc.alias, ""
	for i, seg := range segments {
		last := i == len(segments)-1
		key += query.PathSeparator + seg

		if f, ok := model.Field(seg); ok {
			switch {
			case f.Relation == nil:
				if !last {
					return "", nil, fmt.Errorf("%w: %s is not a relation", ErrUnknownField, seg)
				}
				return column(alias, f.GetColumn()), f, nil
			case !f.Relation.Many:
				if last {
					return column(alias, f.GetColumn()), f, nil
				}
				target, targetField, err := relationTarget(f)
				if err != nil {
					return "", nil, err
				}
				from := alias
				alias = sc.join(b, key, quoteTable(target), func(a string) string {
					return column(a, targetField.GetColumn()) + " = " + column(from, f.GetColumn())
				})
				model = target
			default:
				if !allowMany {
					return "", nil, fmt.Errorf("cannot order by to-many path %s", seg)
				}
				target, _, err := relationTarget(f)
				if err != nil {
					return "", nil, err
				}
				through := throughOf(model, f)
				from, owner := alias, model
				jt := sc.join(b, key+"#through", quoteThrough(owner, through), func(a string) string {
					return column(a, through.SourceColumn) + " = " + column(from, ownKeyColumn(owner))
				})
				alias = sc.join(b, key, quoteTable(target), func(a string) string {
					return column(a, ownKeyColumn(target)) + " = " + column(jt, through.TargetColumn)
				})
				model = target
				if last {
					return column(alias, ownKeyColumn(target)), target.PrimaryKey(), nil
				}
			}
			continue
		}

		if rev, ok := model.ReverseRelation(seg); ok {
			if !allowMany {
				return "", nil, fmt.Errorf("cannot order by reverse relation %s", seg)
			}
			targetField := rev.Field.Relation.TargetField()
			if targetField == nil {
				return "", nil, fmt.Errorf("%w: %s", ErrUnknownField, seg)
			}
			owner, from := rev.Model, alias
			if rev.Field.Relation.Many {
				through := throughOf(owner, rev.Field)
				jt := sc.join(b, key+"#through", quoteThrough(owner, through), func(a string) string {
					return column(a, through.TargetColumn) + " = " + column(from, targetField.GetColumn())
				})
				alias = sc.join(b, key, quoteTable(owner), func(a string) string {
					return column(a, ownKeyColumn(owner)) + " = " + column(jt, through.SourceColumn)
				})
			} else {
				alias = sc.join(b, key, quoteTable(owner), func(a string) string {
					return column(a, rev.Field.GetColumn()) + " = " + column(from, targetField.GetColumn())
				})
			}
			model = owner
			if last {
				return column(alias, ownKeyColumn(owner)), owner.PrimaryKey(), nil
			}
			continue
		}

		return "", nil, fmt.Errorf("%w: %s on %s", ErrUnknownField, seg, model.Name)
	}
	return "", nil, fmt.Errorf("%w: empty path", ErrUnknownField)
}

func relationTarget(f *schema.Field) (*schema.Model, *schema.Field, error) {
	target := f.Relation.To
	if target == nil {
		return nil, nil, fmt.Errorf("relation %s has no target model", f.Name)
	}
	targetField := f.Relation.TargetField()
	if targetField == nil {
		return nil, nil, fmt.Errorf("%w: relation %s has no target field", ErrUnknownField, f.Name)
	}
	return target, targetField, nil
}

// throughOf returns the join table of a many-to-many field, defaulting to
// <table>_<field> with <model>_id and <target>_id columns.
func throughOf(owner *schema.Model, f *schema.Field) *schema.Through {
	if f.Relation.Through != nil {
		return f.Relation.Through
	}
	_, table := owner.QualifiedTable()
	target := ""
	if f.Relation.To != nil {
		target = f.Relation.To.Name
	}
	return &schema.Through{
		Table:        table + "_" + f.Name,
		SourceColumn: owner.Name + "_id",
		TargetColumn: target + "_id",
	}
}

func ownKeyColumn(m *schema.Model) string {
	if pk := m.PrimaryKey(); pk != nil {
		return pk.GetColumn()
	}
	return m.PKName()
}

// quoteIdentifier quotes a PostgreSQL identifier
func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func quoteTable(m *schema.Model) string {
	schemaName, table := m.QualifiedTable()
	return quoteIdentifier(schemaName) + "." + quoteIdentifier(table)
}

// quoteThrough quotes a join table; it lives in the owning model's schema.
func quoteThrough(owner *schema.Model, through *schema.Through) string {
	schemaName, _ := owner.QualifiedTable()
	return quoteIdentifier(schemaName) + "." + quoteIdentifier(through.Table)
}

func column(alias, name string) string {
	return quoteIdentifier(alias) + "." + quoteIdentifier(name)
}
