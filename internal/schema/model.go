package schema

import (
	"fmt"
	"strings"

	"github.com/fluxbase-eu/filterkit/internal/query"
)

// Choice is one entry of an enumerated value set
type Choice struct {
	Value interface{}
	Label string
}

// Field describes one attribute of a model
type Field struct {
	Name        string
	Column      string // storage column; defaults to Name, or Name+"_id" for to-one relations
	Kind        *Kind
	VerboseName string // defaults to Name with underscores replaced by spaces
	Choices     []Choice
	Null        bool
	Relation    *Relation
}

// Through names the join table of a many-to-many relation
type Through struct {
	Table        string
	SourceColumn string // references the owning model's key
	TargetColumn string // references the related model's key
}

// Relation links a field to another model
type Relation struct {
	To             *Model
	ToName         string // resolved into To by Registry.Link
	ToField        string // target field the relation points at; empty means the primary key
	Many           bool
	Through        *Through
	LimitChoicesTo query.Predicate
	RelatedName    string // accessor name on the target model; defaults to the owning model's name
}

// ReverseRelation is the accessor a model gets for every relation pointing at it
type ReverseRelation struct {
	Name  string
	Model *Model // the model owning the relation field
	Field *Field // the relation field on Model
}

// Model describes a collection of records
type Model struct {
	Name         string
	Table        string
	Schema       string
	VerboseName  string
	PK           string // primary key field name; defaults to "id"
	DisplayField string // field used to present a record; defaults to PK
	Fields       []*Field
	Reverse      []*ReverseRelation
}

// GetVerboseName returns the verbose name or the humanised field name.
func (f *Field) GetVerboseName() string {
	if f.VerboseName != "" {
		return f.VerboseName
	}
	return strings.ReplaceAll(f.Name, "_", " ")
}

// GetColumn returns the storage column of the field.
func (f *Field) GetColumn() string {
	if f.Column != "" {
		return f.Column
	}
	if f.Relation != nil && !f.Relation.Many {
		return f.Name + "_id"
	}
	return f.Name
}

// IsRelation reports whether the field points at another model.
func (f *Field) IsRelation() bool { return f.Relation != nil }

// IsManyToMany reports whether the field is a to-many relation.
func (f *Field) IsManyToMany() bool { return f.Relation != nil && f.Relation.Many }

// TargetField returns the field on the related model the relation points at.
func (r *Relation) TargetField() *Field {
	if r.To == nil {
		return nil
	}
	if r.ToField != "" {
		if f, ok := r.To.Field(r.ToField); ok {
			return f
		}
		return nil
	}
	return r.To.PrimaryKey()
}

// Field looks up a field by name.
func (m *Model) Field(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// FieldByColumn looks up a field by storage column.
func (m *Model) FieldByColumn(column string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.GetColumn() == column {
			return f, true
		}
	}
	return nil, false
}

// ReverseRelation looks up a reverse accessor by name.
func (m *Model) ReverseRelation(name string) (*ReverseRelation, bool) {
	for _, r := range m.Reverse {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// PrimaryKey returns the primary key field, or nil when the model declares none.
func (m *Model) PrimaryKey() *Field {
	name := m.PK
	if name == "" {
		name = "id"
	}
	f, _ := m.Field(name)
	return f
}

// PKName returns the primary key field name.
func (m *Model) PKName() string {
	if m.PK == "" {
		return "id"
	}
	return m.PK
}

// ConcreteFields returns the fields stored on the model's own table, in declaration order.
func (m *Model) ConcreteFields() []*Field {
	var out []*Field
	for _, f := range m.Fields {
		if !f.IsManyToMany() {
			out = append(out, f)
		}
	}
	return out
}

// ManyToManyFields returns the to-many relation fields, in declaration order.
func (m *Model) ManyToManyFields() []*Field {
	var out []*Field
	for _, f := range m.Fields {
		if f.IsManyToMany() {
			out = append(out, f)
		}
	}
	return out
}

// NaturalFields returns concrete fields followed by many-to-many fields.
func (m *Model) NaturalFields() []*Field {
	return append(m.ConcreteFields(), m.ManyToManyFields()...)
}

// QualifiedTable returns the schema-qualified table name.
func (m *Model) QualifiedTable() (string, string) {
	schemaName := m.Schema
	if schemaName == "" {
		schemaName = "public"
	}
	table := m.Table
	if table == "" {
		table = m.Name
	}
	return schemaName, table
}

// Display renders a record the way it is shown in choice lists.
func (m *Model) Display(record map[string]interface{}) string {
	name := m.DisplayField
	if name == "" {
		name = m.PKName()
	}
	v, ok := record[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
