package database

import (
	"fmt"
	"strings"

	"github.com/fluxbase-eu/filterkit/internal/schema"
	"github.com/rs/zerolog/log"
)

// displayCandidates are column names preferred when presenting a record.
var displayCandidates = []string{"name", "title", "username", "label", "slug", "email", "code"}

// kindForColumn maps an information_schema column type to a field kind.
// Unsupported types return nil and the column is left out of the model.
func kindForColumn(col ColumnInfo) *schema.Kind {
	if col.IsAutoIncrement {
		return schema.Auto
	}
	if len(col.EnumValues) > 0 {
		return schema.Char
	}

	switch col.DataType {
	case "smallint":
		return schema.SmallInteger
	case "integer":
		return schema.Integer
	case "bigint":
		return schema.BigInteger
	case "numeric":
		return schema.Decimal
	case "real", "double precision":
		return schema.Float
	case "boolean":
		if col.IsNullable {
			return schema.NullBoolean
		}
		return schema.Boolean
	case "date":
		return schema.Date
	case "timestamp without time zone", "timestamp with time zone":
		return schema.DateTime
	case "time without time zone", "time with time zone":
		return schema.Time
	case "character varying", "character":
		return schema.Char
	case "text":
		return schema.Text
	case "uuid":
		return schema.UUID
	case "inet", "cidr":
		return schema.IPAddress
	case "USER-DEFINED":
		if col.UDTName == "citext" {
			return schema.Char
		}
	}
	return nil
}

// relationName derives the field name of a foreign key column: author_id
// becomes author unless another column already uses that name.
func relationName(table TableInfo, column string) string {
	name := strings.TrimSuffix(column, "_id")
	if name == column || name == "" {
		return column
	}
	for _, col := range table.Columns {
		if col.Name == name {
			return column
		}
	}
	return name
}

// joinTable reports whether table only links two other tables, returning its
// foreign keys in column order.
func joinTable(table TableInfo) (ForeignKey, ForeignKey, bool) {
	if len(table.ForeignKeys) != 2 {
		return ForeignKey{}, ForeignKey{}, false
	}
	source, target := table.ForeignKeys[0], table.ForeignKeys[1]
	if !source.ReferencedIsPK || !target.ReferencedIsPK {
		return ForeignKey{}, ForeignKey{}, false
	}
	// A single key column that is also a foreign key makes a one-to-one row.
	if len(table.PrimaryKey) == 1 && (table.PrimaryKey[0] == source.ColumnName || table.PrimaryKey[0] == target.ColumnName) {
		return ForeignKey{}, ForeignKey{}, false
	}
	for _, col := range table.Columns {
		switch {
		case col.Name == source.ColumnName, col.Name == target.ColumnName:
		case col.IsPrimaryKey && col.IsAutoIncrement:
		default:
			return ForeignKey{}, ForeignKey{}, false
		}
	}
	return source, target, true
}

// modelNames assigns each table a model name: the bare table name, or
// schema_table when the table name occurs in more than one schema.
func modelNames(tables []TableInfo) map[string]string {
	seen := make(map[string]int)
	for _, t := range tables {
		seen[t.Name]++
	}
	names := make(map[string]string, len(tables))
	for _, t := range tables {
		name := t.Name
		if seen[t.Name] > 1 && t.Schema != "public" {
			name = t.Schema + "_" + t.Name
		}
		names[makeKey(t.Schema, t.Name)] = name
	}
	return names
}

// BuildModels converts inspected tables into linked models. Foreign keys
// become to-one relation fields; tables that only join two others become
// many-to-many fields on the table referenced by their first key.
func BuildModels(tables []TableInfo) (*schema.Registry, error) {
	names := modelNames(tables)
	registry := schema.NewRegistry()
	models := make(map[string]*schema.Model, len(tables))
	fieldNames := make(map[string]map[string]string, len(tables)) // table key -> column -> field

	for _, t := range tables {
		key := makeKey(t.Schema, t.Name)
		m := &schema.Model{
			Name:        names[key],
			Table:       t.Name,
			Schema:      t.Schema,
			VerboseName: t.Comment,
		}
		columns := make(map[string]string)

		fks := make(map[string]ForeignKey, len(t.ForeignKeys))
		for _, fk := range t.ForeignKeys {
			fks[fk.ColumnName] = fk
		}

		for _, col := range t.Columns {
			f := &schema.Field{
				Name:        col.Name,
				Column:      col.Name,
				VerboseName: col.Comment,
				Null:        col.IsNullable,
			}

			if fk, ok := fks[col.Name]; ok {
				target, known := names[makeKey(fk.ReferencedSchema, fk.ReferencedTable)]
				if !known {
					log.Debug().Str("table", key).Str("column", col.Name).Msg("Foreign key target not inspected, keeping plain column")
				} else {
					f.Name = relationName(t, col.Name)
					f.Kind = schema.ForeignKey
					if col.IsPrimaryKey && len(t.PrimaryKey) == 1 {
						f.Kind = schema.OneToOne
					}
					f.Relation = &schema.Relation{ToName: target}
					if !fk.ReferencedIsPK {
						// Resolved below once every table's fields are known.
						f.Relation.ToField = fk.ReferencedColumn
					}
				}
			}

			if f.Kind == nil {
				f.Kind = kindForColumn(col)
				if f.Kind == nil {
					log.Debug().Str("table", key).Str("column", col.Name).Str("type", col.DataType).Msg("Skipping column of unsupported type")
					continue
				}
				for _, v := range col.EnumValues {
					f.Choices = append(f.Choices, schema.Choice{Value: v, Label: v})
				}
			}

			m.Fields = append(m.Fields, f)
			columns[col.Name] = f.Name
		}

		if len(t.PrimaryKey) > 0 {
			m.PK = columns[t.PrimaryKey[0]]
		}
		for _, candidate := range displayCandidates {
			if f, ok := m.Field(candidate); ok && f.Kind.Is(schema.Char) {
				m.DisplayField = candidate
				break
			}
		}

		models[key] = m
		fieldNames[key] = columns
		registry.Register(m)
	}

	// Point to_field relations at field names rather than columns.
	for _, t := range tables {
		m := models[makeKey(t.Schema, t.Name)]
		for _, fk := range t.ForeignKeys {
			f, ok := m.FieldByColumn(fk.ColumnName)
			if !ok || f.Relation == nil || f.Relation.ToField == "" {
				continue
			}
			if name, ok := fieldNames[makeKey(fk.ReferencedSchema, fk.ReferencedTable)][fk.ReferencedColumn]; ok {
				f.Relation.ToField = name
			}
		}
	}

	for _, t := range tables {
		source, target, ok := joinTable(t)
		if !ok {
			continue
		}
		owner, ok := models[makeKey(source.ReferencedSchema, source.ReferencedTable)]
		if !ok {
			continue
		}
		targetName, ok := names[makeKey(target.ReferencedSchema, target.ReferencedTable)]
		if !ok {
			continue
		}
		name := strings.TrimPrefix(t.Name, owner.Table+"_")
		if _, clash := owner.Field(name); clash {
			log.Debug().Str("table", t.Name).Str("field", name).Msg("Join table field name already used, skipping many-to-many")
			continue
		}
		if t.Schema != owner.Schema {
			continue
		}
		owner.Fields = append(owner.Fields, &schema.Field{
			Name: name,
			Kind: schema.ManyToMany,
			Relation: &schema.Relation{
				ToName: targetName,
				Many:   true,
				Through: &schema.Through{
					Table:        t.Name,
					SourceColumn: source.ColumnName,
					TargetColumn: target.ColumnName,
				},
			},
		})
	}

	if err := registry.Link(); err != nil {
		return nil, fmt.Errorf("failed to link models: %w", err)
	}
	return registry, nil
}
