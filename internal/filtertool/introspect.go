package filtertool

import (
	"github.com/fluxbase-eu/filterkit/internal/filters"
	"github.com/fluxbase-eu/filterkit/internal/form"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// KindFor builds the filter kind for a model field
type KindFor func(f *schema.Field) filters.Kind

// Overrides replace the default filter kind of a field kind
type Overrides map[*schema.Kind]KindFor

func constKind(k filters.Kind) KindFor {
	return func(*schema.Field) filters.Kind { return k }
}

func modelChoice(f *schema.Field) filters.Kind {
	return filters.ModelChoice{Model: f.Relation.To, Scope: f.Relation.LimitChoicesTo, ToField: f.Relation.ToField}
}

func modelMultipleChoice(f *schema.Field) filters.Kind {
	return filters.ModelMultipleChoice{Model: f.Relation.To, Scope: f.Relation.LimitChoicesTo}
}

// defaultKinds maps field kinds to filter kinds. Kinds missing here are
// looked up through their ancestors; auto keys have no default.
var defaultKinds = map[*schema.Kind]KindFor{
	schema.Char:                  constKind(filters.Char{}),
	schema.Text:                  constKind(filters.Char{}),
	schema.Slug:                  constKind(filters.Char{}),
	schema.Email:                 constKind(filters.Char{}),
	schema.URL:                   constKind(filters.Char{}),
	schema.UUID:                  constKind(filters.Char{}),
	schema.FilePath:              constKind(filters.Char{}),
	schema.IPAddress:             constKind(filters.Char{}),
	schema.CommaSeparatedInteger: constKind(filters.Char{}),
	schema.Boolean:               constKind(filters.Boolean{}),
	schema.NullBoolean:           constKind(filters.Boolean{}),
	schema.Date:                  constKind(filters.Date{}),
	schema.DateTime:              constKind(filters.DateTime{}),
	schema.Time:                  constKind(filters.Time{}),
	schema.Decimal:               constKind(filters.Number{}),
	schema.Float:                 constKind(filters.Number{}),
	schema.Integer:               constKind(filters.Number{}),
	schema.SmallInteger:          constKind(filters.Number{}),
	schema.PositiveInteger:       constKind(filters.Number{}),
	schema.PositiveSmallInteger:  constKind(filters.Number{}),
	schema.ForeignKey:            modelChoice,
	schema.OneToOne:              modelChoice,
	schema.ManyToMany:            modelMultipleChoice,
}

// ResolveField walks a "__"-separated path from model across relations and
// returns the field it ends on. A final segment naming a reverse relation
// resolves to the related model's primary key. ok is false when any segment
// names nothing, or a non-final segment is not a relation.
func ResolveField(model *schema.Model, path string) (*schema.Field, bool) {
	segments := query.SplitPath(path)
	if model == nil || len(segments) == 0 {
		return nil, false
	}

	for _, name := range segments[:len(segments)-1] {
		if f, ok := model.Field(name); ok {
			if f.Relation == nil || f.Relation.To == nil {
				return nil, false
			}
			model = f.Relation.To
			continue
		}
		if rev, ok := model.ReverseRelation(name); ok {
			model = rev.Model
			continue
		}
		return nil, false
	}

	last := segments[len(segments)-1]
	if f, ok := model.Field(last); ok {
		return f, true
	}
	if rev, ok := model.ReverseRelation(last); ok {
		if pk := rev.Model.PrimaryKey(); pk != nil {
			return pk, true
		}
	}
	return nil, false
}

// orderablePath reports whether path names one value per record: every
// segment is a concrete field, and all but the last are to-one relations.
func orderablePath(model *schema.Model, path string) bool {
	segments := query.SplitPath(path)
	for i, name := range segments {
		f, ok := model.Field(name)
		if !ok || f.IsManyToMany() {
			return false
		}
		if i == len(segments)-1 {
			return true
		}
		if f.Relation == nil || f.Relation.To == nil {
			return false
		}
		model = f.Relation.To
	}
	return false
}

// FilterForField derives the default filter for a model field. Declared
// choices always give a Choice filter; otherwise the kind's ancestors are
// tried nearest first, overrides before defaults. ok is false when no kind
// matches.
func FilterForField(field *schema.Field, name string, lookup query.LookupType, overrides Overrides) (filters.Filter, bool) {
	f := filters.Filter{
		Name:  name,
		Label: filters.Capfirst(field.GetVerboseName()),
	}
	if lookup != "" {
		f.Lookup = filters.Fixed(lookup)
	}

	if len(field.Choices) > 0 {
		choices := make([]form.Choice, len(field.Choices))
		for i, c := range field.Choices {
			choices[i] = form.Choice{Value: c.Value, Label: c.Label}
		}
		f.Kind = filters.Choice{Choices: choices}
		return f, true
	}

	if field.Kind == nil {
		return filters.Filter{}, false
	}
	for _, k := range field.Kind.Ancestors() {
		if build, ok := overrides[k]; ok {
			f.Kind = build(field)
			return f, true
		}
		build, ok := defaultKinds[k]
		if !ok {
			continue
		}
		if (k.Is(schema.ForeignKey) || k.Is(schema.ManyToMany)) && field.Relation == nil {
			return filters.Filter{}, false
		}
		f.Kind = build(field)
		return f, true
	}
	return filters.Filter{}, false
}
