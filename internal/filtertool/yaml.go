package filtertool

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fluxbase-eu/filterkit/internal/filters"
	"github.com/fluxbase-eu/filterkit/internal/form"
	"github.com/fluxbase-eu/filterkit/internal/query"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Set is a named collection of definitions
type Set struct {
	names []string
	defs  map[string]*Definition
}

func NewSet() *Set {
	return &Set{defs: make(map[string]*Definition)}
}

// Add registers def under its name, replacing any previous one.
func (s *Set) Add(def *Definition) {
	if _, ok := s.defs[def.Name()]; !ok {
		s.names = append(s.names, def.Name())
	}
	s.defs[def.Name()] = def
}

func (s *Set) Get(name string) (*Definition, bool) {
	d, ok := s.defs[name]
	return d, ok
}

// Names returns definition names in the order they were added
func (s *Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Set) Len() int { return len(s.names) }

// DefaultDefinitions derives one definition per registered model, filtering
// on every field and ordering by any of them.
func DefaultDefinitions(registry *schema.Registry) (*Set, error) {
	set := NewSet()
	for _, name := range registry.Names() {
		m, _ := registry.Get(name)
		def, err := NewBuilder(Meta{Model: m, OrderBy: OrderByFilters()}).Named(name).Build()
		if err != nil {
			return nil, err
		}
		set.Add(def)
	}
	return set, nil
}

type fileSpec struct {
	Definitions []definitionSpec `yaml:"definitions"`
}

type definitionSpec struct {
	Name    string       `yaml:"name"`
	Model   string       `yaml:"model"`
	Fields  []string     `yaml:"fields"`
	Exclude []string     `yaml:"exclude"`
	OrderBy yaml.Node    `yaml:"order_by"`
	Extends []string     `yaml:"extends"`
	Filters []filterSpec `yaml:"filters"`
}

type choiceSpec struct {
	Value interface{} `yaml:"value"`
	Label string      `yaml:"label"`
}

type filterSpec struct {
	Key      string       `yaml:"key"`
	Name     string       `yaml:"name"`
	Kind     string       `yaml:"kind"`
	Label    string       `yaml:"label"`
	Required bool         `yaml:"required"`
	Initial  interface{}  `yaml:"initial"`
	Widget   string       `yaml:"widget"`
	Lookup   yaml.Node    `yaml:"lookup"`
	Choices  []choiceSpec `yaml:"choices"`
	Fields   []string     `yaml:"fields"`
	Bounds   string       `yaml:"bounds"`
	Model    string       `yaml:"model"`
	ToField  string       `yaml:"to_field"`
}

// LoadDefinitionsFile reads definitions from a YAML file.
func LoadDefinitionsFile(path string, registry *schema.Registry) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open definitions file: %w", err)
	}
	defer f.Close()
	return LoadDefinitions(f, registry)
}

// LoadDefinitions reads definitions from YAML. Models are looked up in
// registry; a definition may extend definitions listed before it.
func LoadDefinitions(r io.Reader, registry *schema.Registry) (*Set, error) {
	var spec fileSpec
	if err := yaml.NewDecoder(r).Decode(&spec); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}

	set := NewSet()
	for _, ds := range spec.Definitions {
		def, err := buildDefinition(ds, registry, set)
		if err != nil {
			return nil, err
		}
		set.Add(def)
	}
	return set, nil
}

func buildDefinition(ds definitionSpec, registry *schema.Registry, known *Set) (*Definition, error) {
	if ds.Name == "" {
		return nil, &ConfigurationError{Definition: "(unnamed)", Reason: "needs a name"}
	}
	configErr := func(field, format string, args ...interface{}) error {
		return &ConfigurationError{Definition: ds.Name, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	meta := Meta{Fields: ds.Fields, Exclude: ds.Exclude}
	if ds.Model != "" {
		m, ok := registry.Get(ds.Model)
		if !ok {
			return nil, configErr("", "references unknown model %q", ds.Model)
		}
		meta.Model = m
	}
	ordering, err := parseOrdering(&ds.OrderBy)
	if err != nil {
		return nil, configErr(OrderByField, "%v", err)
	}
	meta.OrderBy = ordering

	b := NewBuilder(meta).Named(ds.Name)
	for _, parent := range ds.Extends {
		p, ok := known.Get(parent)
		if !ok {
			return nil, configErr("", "extends unknown definition %q", parent)
		}
		b.Extend(p)
	}

	for _, fs := range ds.Filters {
		if fs.Key == "" {
			return nil, configErr("", "has a filter without a key")
		}
		f, err := buildFilter(fs, registry)
		if err != nil {
			return nil, configErr(fs.Key, "%v", err)
		}
		b.Declare(fs.Key, f)
	}
	return b.Build()
}

func buildFilter(fs filterSpec, registry *schema.Registry) (filters.Filter, error) {
	f := filters.Filter{
		Name:     fs.Name,
		Label:    fs.Label,
		Required: fs.Required,
		Initial:  fs.Initial,
	}

	lookup, err := parseLookup(&fs.Lookup)
	if err != nil {
		return f, err
	}
	f.Lookup = lookup

	if fs.Widget != "" {
		w, ok := widgets[fs.Widget]
		if !ok {
			return f, fmt.Errorf("unknown widget %q", fs.Widget)
		}
		f.Widget = w
	}

	choices := make([]form.Choice, len(fs.Choices))
	for i, c := range fs.Choices {
		label := c.Label
		if label == "" {
			label = fmt.Sprint(c.Value)
		}
		choices[i] = form.Choice{Value: c.Value, Label: label}
	}

	relatedModel := func() (*schema.Model, error) {
		m, ok := registry.Get(fs.Model)
		if !ok {
			return nil, fmt.Errorf("references unknown model %q", fs.Model)
		}
		return m, nil
	}

	switch fs.Kind {
	case "", "char":
		f.Kind = filters.Char{}
	case "boolean":
		f.Kind = filters.Boolean{}
	case "choice":
		f.Kind = filters.Choice{Choices: choices}
	case "multiple_choice":
		f.Kind = filters.MultipleChoice{Choices: choices}
	case "date":
		f.Kind = filters.Date{}
	case "datetime":
		f.Kind = filters.DateTime{}
	case "time":
		f.Kind = filters.Time{}
	case "number":
		f.Kind = filters.Number{}
	case "model_choice":
		m, err := relatedModel()
		if err != nil {
			return f, err
		}
		f.Kind = filters.ModelChoice{Model: m, ToField: fs.ToField}
	case "model_multiple_choice":
		m, err := relatedModel()
		if err != nil {
			return f, err
		}
		f.Kind = filters.ModelMultipleChoice{Model: m}
	case "range":
		f.Kind = filters.Range{}
	case "open_range":
		bounds, err := parseBounds(fs.Bounds)
		if err != nil {
			return f, err
		}
		f.Kind = filters.OpenRange{Bounds: bounds}
	case "date_range":
		f.Kind = filters.DateRange{}
	case "all_values":
		f.Kind = filters.AllValues{}
	case "multiple_field":
		if len(fs.Fields) == 0 {
			return f, fmt.Errorf("multiple_field needs fields")
		}
		f.Kind = filters.MultipleField{Fields: fs.Fields}
	default:
		return f, fmt.Errorf("unknown filter kind %q", fs.Kind)
	}
	return f, nil
}

var widgets = map[string]form.Widget{
	"text":            form.TextInput{},
	"select":          form.Select{},
	"select_multiple": form.SelectMultiple{},
	"radio":           form.RadioSelect{},
	"links":           form.LinkWidget{},
	"null_boolean":    form.NullBooleanSelect{},
}

// WidgetNames lists the widget names definition files may use.
func WidgetNames() []string {
	names := make([]string, 0, len(widgets))
	for name := range widgets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseBounds(s string) (filters.Bounds, error) {
	switch s {
	case "", "numeric":
		return filters.NumericBounds, nil
	case "date":
		return filters.DateBounds, nil
	case "time":
		return filters.TimeBounds, nil
	}
	return 0, fmt.Errorf("unknown range bounds %q", s)
}

// parseLookup reads "gt", "any", or a list of lookups where each entry is a
// name or a [name, label] pair.
func parseLookup(n *yaml.Node) (filters.LookupSpec, error) {
	switch n.Kind {
	case 0:
		return filters.LookupSpec{}, nil
	case yaml.ScalarNode:
		if n.Value == "any" {
			return filters.AnyLookup(), nil
		}
		lt, ok := query.ParseLookupType(n.Value)
		if !ok {
			return filters.LookupSpec{}, fmt.Errorf("unknown lookup %q", n.Value)
		}
		return filters.Fixed(lt), nil
	case yaml.SequenceNode:
		var entries []filters.LookupEntry
		for _, item := range n.Content {
			switch {
			case item.Kind == yaml.ScalarNode:
				entries = append(entries, filters.LookupEntry{Type: query.LookupType(item.Value)})
			case item.Kind == yaml.SequenceNode && len(item.Content) == 2:
				entries = append(entries, filters.LookupEntry{
					Type:  query.LookupType(item.Content[0].Value),
					Label: item.Content[1].Value,
				})
			default:
				return filters.LookupSpec{}, fmt.Errorf("lookup entries must be names or [name, label] pairs")
			}
		}
		return filters.SelectableEntries(entries...), nil
	}
	return filters.LookupSpec{}, fmt.Errorf("lookup must be a name or a list")
}

// parseOrdering reads true/false, a list of keys, or a list of
// {value, label} choices.
func parseOrdering(n *yaml.Node) (OrderingSpec, error) {
	switch n.Kind {
	case 0:
		return OrderingSpec{}, nil
	case yaml.ScalarNode:
		var enabled bool
		if err := n.Decode(&enabled); err != nil {
			return OrderingSpec{}, fmt.Errorf("order_by must be a boolean or a list")
		}
		if enabled {
			return OrderByFilters(), nil
		}
		return OrderingSpec{}, nil
	case yaml.SequenceNode:
		if len(n.Content) > 0 && n.Content[0].Kind == yaml.MappingNode {
			var specs []choiceSpec
			if err := n.Decode(&specs); err != nil {
				return OrderingSpec{}, err
			}
			choices := make([]form.Choice, len(specs))
			for i, c := range specs {
				choices[i] = form.Choice{Value: fmt.Sprint(c.Value), Label: c.Label}
			}
			return OrderByChoices(choices...), nil
		}
		var keys []string
		if err := n.Decode(&keys); err != nil {
			return OrderingSpec{}, err
		}
		return OrderByFields(keys...), nil
	}
	return OrderingSpec{}, fmt.Errorf("order_by must be a boolean or a list")
}
