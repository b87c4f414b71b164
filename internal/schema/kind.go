// Package schema describes data models: their fields, field kinds and relations.
// Model metadata is either declared in code, loaded from YAML, or read from
// PostgreSQL by the database package's inspector.
package schema

// Kind identifies the storage kind of a field. Kinds form a hierarchy: a custom
// kind names the built-in kind it specialises, so lookups keyed by kind can fall
// back to an ancestor.
type Kind struct {
	name   string
	parent *Kind
}

// NewKind creates a kind that specialises parent. parent may be nil.
func NewKind(name string, parent *Kind) *Kind {
	return &Kind{name: name, parent: parent}
}

func (k *Kind) Name() string { return k.name }

func (k *Kind) Parent() *Kind { return k.parent }

func (k *Kind) String() string { return k.name }

// Ancestors returns k followed by its parents, nearest first.
func (k *Kind) Ancestors() []*Kind {
	var out []*Kind
	for cur := k; cur != nil; cur = cur.parent {
		out = append(out, cur)
	}
	return out
}

// Is reports whether k is other or specialises it.
func (k *Kind) Is(other *Kind) bool {
	for cur := k; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// Built-in kinds.
var (
	Auto                  = NewKind("auto", nil)
	UUID                  = NewKind("uuid", nil)
	Char                  = NewKind("char", nil)
	Text                  = NewKind("text", nil)
	Slug                  = NewKind("slug", Char)
	Email                 = NewKind("email", Char)
	URL                   = NewKind("url", Char)
	CommaSeparatedInteger = NewKind("comma_separated_integer", Char)
	FilePath              = NewKind("file_path", nil)
	IPAddress             = NewKind("ip_address", nil)
	Boolean               = NewKind("boolean", nil)
	NullBoolean           = NewKind("null_boolean", nil)
	Date                  = NewKind("date", nil)
	DateTime              = NewKind("datetime", Date)
	Time                  = NewKind("time", nil)
	Decimal               = NewKind("decimal", nil)
	Float                 = NewKind("float", nil)
	Integer               = NewKind("integer", nil)
	BigInteger            = NewKind("big_integer", Integer)
	SmallInteger          = NewKind("small_integer", Integer)
	PositiveInteger       = NewKind("positive_integer", Integer)
	PositiveSmallInteger  = NewKind("positive_small_integer", Integer)
	ForeignKey            = NewKind("foreign_key", nil)
	OneToOne              = NewKind("one_to_one", ForeignKey)
	ManyToMany            = NewKind("many_to_many", nil)
)

var builtinKinds = []*Kind{
	Auto, UUID, Char, Text, Slug, Email, URL, CommaSeparatedInteger, FilePath, IPAddress,
	Boolean, NullBoolean, Date, DateTime, Time, Decimal, Float, Integer, BigInteger,
	SmallInteger, PositiveInteger, PositiveSmallInteger, ForeignKey, OneToOne, ManyToMany,
}

// KindByName returns the built-in kind with the given name.
func KindByName(name string) (*Kind, bool) {
	for _, k := range builtinKinds {
		if k.name == name {
			return k, true
		}
	}
	return nil, false
}
