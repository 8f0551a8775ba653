package form

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field describes one input of a form.
type Field struct {
	Name  string `yaml:"name" json:"name"`
	Kind  Kind   `yaml:"kind" json:"kind"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`

	// Default is the value used when the query string does not carry the
	// field. Its YAML type must match the kind.
	Default any `yaml:"default,omitempty" json:"-"`

	// Options names the catalog set enumerated fields validate against.
	Options string `yaml:"options,omitempty" json:"options,omitempty"`

	// Parent names the field whose value filters this field's options
	// (province -> ward).
	Parent string `yaml:"parent,omitempty" json:"parent,omitempty"`

	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Rules    string `yaml:"rules,omitempty" json:"rules,omitempty"`

	// SubmitAs renames the field in the CRM payload. Empty keeps Name.
	SubmitAs string `yaml:"submitAs,omitempty" json:"-"`

	// ItemKey turns a multiselect into CRM child rows [{ItemKey: value}].
	ItemKey string `yaml:"itemKey,omitempty" json:"-"`

	// Omit keeps the field out of the CRM payload.
	Omit bool `yaml:"omit,omitempty" json:"-"`

	defaultValue Value
	validators   []Validator
}

// DefaultValue returns the compiled default, never unset.
func (f *Field) DefaultValue() Value {
	if f.defaultValue.IsSet() {
		if f.defaultValue.Shape() == ShapeList {
			return List(f.defaultValue.items...)
		}
		return f.defaultValue
	}
	return zeroFor(f.Kind)
}

func zeroFor(k Kind) Value {
	switch k.Shape() {
	case ShapeList:
		return List()
	case ShapeBool:
		return Bool(false)
	}
	return String("")
}

// MirrorPair copies From into To.
type MirrorPair struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// MirrorRule keeps target fields equal to source fields while Flag is true.
type MirrorRule struct {
	Flag  string       `yaml:"flag" json:"flag"`
	Pairs []MirrorPair `yaml:"pairs" json:"pairs"`
}

// Schema is the definition of one form.
type Schema struct {
	Name    string       `yaml:"name" json:"name"`
	Title   string       `yaml:"title,omitempty" json:"title,omitempty"`
	Doctype string       `yaml:"doctype" json:"doctype"`
	Fields  []Field      `yaml:"fields" json:"fields"`
	Mirrors []MirrorRule `yaml:"mirrors,omitempty" json:"mirrors,omitempty"`

	index map[string]int
	order []int
}

// Parse decodes and compiles a YAML schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("form: parse schema: %w", err)
	}
	if err := s.Compile(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Compile checks the schema and prepares defaults, validators and the
// dependency order. It must be called on schemas built in code.
func (s *Schema) Compile() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("form: schema name is required")
	}
	s.index = make(map[string]int, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("form %s: field %d has no name", s.Name, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return fmt.Errorf("form %s: duplicate field %q", s.Name, f.Name)
		}
		if !f.Kind.Valid() {
			return fmt.Errorf("form %s: field %q has unknown kind %q", s.Name, f.Name, f.Kind)
		}
		def, err := compileDefault(f.Kind, f.Default)
		if err != nil {
			return fmt.Errorf("form %s: field %q: %w", s.Name, f.Name, err)
		}
		f.defaultValue = def
		validators, err := parseRules(f.Rules)
		if err != nil {
			return fmt.Errorf("form %s: field %q: %w", s.Name, f.Name, err)
		}
		if f.Required {
			validators = append([]Validator{Required("")}, validators...)
		}
		f.validators = validators
		s.index[f.Name] = i
	}

	for _, f := range s.Fields {
		if f.Parent == "" {
			continue
		}
		parent, ok := s.Field(f.Parent)
		if !ok {
			return fmt.Errorf("form %s: field %q has unknown parent %q", s.Name, f.Name, f.Parent)
		}
		if parent.Kind != KindSelect {
			return fmt.Errorf("form %s: parent %q of %q must be a select", s.Name, parent.Name, f.Name)
		}
	}

	order, err := s.dependencyOrder()
	if err != nil {
		return err
	}
	s.order = order

	for _, rule := range s.Mirrors {
		flag, ok := s.Field(rule.Flag)
		if !ok || flag.Kind != KindBool {
			return fmt.Errorf("form %s: mirror flag %q must be a bool field", s.Name, rule.Flag)
		}
		for _, pair := range rule.Pairs {
			from, okFrom := s.Field(pair.From)
			to, okTo := s.Field(pair.To)
			if !okFrom || !okTo {
				return fmt.Errorf("form %s: mirror pair %s -> %s names an unknown field", s.Name, pair.From, pair.To)
			}
			if from.Kind.Shape() != to.Kind.Shape() {
				return fmt.Errorf("form %s: mirror pair %s -> %s mixes shapes", s.Name, pair.From, pair.To)
			}
		}
	}
	return nil
}

// dependencyOrder returns field indexes with every parent before its
// children. Declaration order is kept otherwise.
func (s *Schema) dependencyOrder() ([]int, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make([]int, len(s.Fields))
	order := make([]int, 0, len(s.Fields))

	var visit func(i int) error
	visit = func(i int) error {
		switch marks[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("form %s: parent cycle at field %q", s.Name, s.Fields[i].Name)
		}
		marks[i] = visiting
		if p := s.Fields[i].Parent; p != "" {
			if err := visit(s.index[p]); err != nil {
				return err
			}
		}
		marks[i] = done
		order = append(order, i)
		return nil
	}

	for i := range s.Fields {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func compileDefault(k Kind, raw any) (Value, error) {
	if raw == nil {
		return Value{}, nil
	}
	switch k.Shape() {
	case ShapeString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("default %v is not a string", raw)
		}
		return String(s), nil
	case ShapeBool:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("default %v is not a bool", raw)
		}
		return Bool(b), nil
	case ShapeList:
		v, err := valueFromAny(raw)
		if err != nil || v.Shape() != ShapeList {
			return Value{}, fmt.Errorf("default %v is not a list of strings", raw)
		}
		return v, nil
	}
	return Value{}, nil
}

// Field returns the named field.
func (s *Schema) Field(name string) (*Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return &s.Fields[i], true
}

// Ordered returns the fields with parents ahead of their children.
func (s *Schema) Ordered() []*Field {
	out := make([]*Field, 0, len(s.order))
	for _, i := range s.order {
		out = append(out, &s.Fields[i])
	}
	return out
}

// Defaults returns a state holding every field's default.
func (s *Schema) Defaults() State {
	out := make(State, len(s.Fields))
	for i := range s.Fields {
		out[s.Fields[i].Name] = s.Fields[i].DefaultValue()
	}
	return out
}

// Check reports whether v can be stored in the named field.
func (s *Schema) Check(name string, v Value) error {
	f, ok := s.Field(name)
	if !ok {
		return fmt.Errorf("form %s: unknown field %q", s.Name, name)
	}
	if v.Shape() != f.Kind.Shape() {
		return fmt.Errorf("form %s: field %q wants a %s value, got %s", s.Name, name, f.Kind.Shape(), v.Shape())
	}
	return nil
}

// Complete fills every field missing from st with its default.
func (s *Schema) Complete(st State) State {
	out := s.Defaults()
	for name, v := range st {
		if _, ok := s.index[name]; ok && v.IsSet() {
			out[name] = v
		}
	}
	return out
}
