package form

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Kind is the type of a form field.
type Kind string

const (
	KindText        Kind = "text"
	KindSelect      Kind = "select"
	KindMultiSelect Kind = "multiselect"
	KindBool        Kind = "bool"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindSelect, KindMultiSelect, KindBool:
		return true
	}
	return false
}

// Shape returns the value shape fields of this kind hold.
func (k Kind) Shape() Shape {
	switch k {
	case KindText, KindSelect:
		return ShapeString
	case KindMultiSelect:
		return ShapeList
	case KindBool:
		return ShapeBool
	}
	return ShapeUnset
}

// Enumerated reports whether values of this kind come from an option set.
func (k Kind) Enumerated() bool {
	return k == KindSelect || k == KindMultiSelect
}

// Shape is the physical representation of a Value.
type Shape int

const (
	ShapeUnset Shape = iota
	ShapeString
	ShapeList
	ShapeBool
)

func (s Shape) String() string {
	switch s {
	case ShapeString:
		return "string"
	case ShapeList:
		return "list"
	case ShapeBool:
		return "bool"
	}
	return "unset"
}

// Value is the value of one field. The zero Value is unset, which is how a
// partial state says "use the default".
type Value struct {
	shape Shape
	text  string
	items []string
	flag  bool
}

// String returns a text or single-selection value.
func String(s string) Value {
	return Value{shape: ShapeString, text: s}
}

// List returns a multi-selection value. A nil or empty argument is an
// explicitly empty list, not an unset value.
func List(items ...string) Value {
	out := make([]string, len(items))
	copy(out, items)
	return Value{shape: ShapeList, items: out}
}

// Bool returns a flag value.
func Bool(b bool) Value {
	return Value{shape: ShapeBool, flag: b}
}

// Shape returns the representation of v.
func (v Value) Shape() Shape { return v.shape }

// IsSet reports whether v holds a value.
func (v Value) IsSet() bool { return v.shape != ShapeUnset }

// Text returns the string held by v, or "" for other shapes.
func (v Value) Text() string { return v.text }

// Items returns a copy of the list held by v.
func (v Value) Items() []string {
	if v.shape != ShapeList {
		return nil
	}
	out := make([]string, len(v.items))
	copy(out, v.items)
	return out
}

// Flag returns the flag held by v.
func (v Value) Flag() bool { return v.flag }

// IsEmpty reports whether v is unset, an empty string or an empty list.
// A false flag is not empty.
func (v Value) IsEmpty() bool {
	switch v.shape {
	case ShapeString:
		return strings.TrimSpace(v.text) == ""
	case ShapeList:
		return len(v.items) == 0
	case ShapeBool:
		return false
	}
	return true
}

// Equal reports deep value equality.
func (v Value) Equal(o Value) bool {
	if v.shape != o.shape {
		return false
	}
	switch v.shape {
	case ShapeString:
		return v.text == o.text
	case ShapeList:
		return slices.Equal(v.items, o.items)
	case ShapeBool:
		return v.flag == o.flag
	}
	return true
}

func (v Value) String() string {
	switch v.shape {
	case ShapeString:
		return v.text
	case ShapeList:
		return "[" + strings.Join(v.items, ",") + "]"
	case ShapeBool:
		if v.flag {
			return "true"
		}
		return "false"
	}
	return "<unset>"
}

// MarshalJSON writes strings, arrays and booleans. Unset values are null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.shape {
	case ShapeString:
		return json.Marshal(v.text)
	case ShapeList:
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	case ShapeBool:
		return json.Marshal(v.flag)
	}
	return []byte("null"), nil
}

// UnmarshalJSON infers the shape from the JSON type.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := valueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case []string:
		return List(t...), nil
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("form: list item %v is not a string", item)
			}
			items = append(items, s)
		}
		return List(items...), nil
	}
	return Value{}, fmt.Errorf("form: unsupported value %T", raw)
}

// State maps field names to values.
type State map[string]Value

// Clone returns an independent copy of s.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		if v.shape == ShapeList {
			v = List(v.items...)
		}
		out[k] = v
	}
	return out
}

// Equal reports deep equality. Unset entries count as absent.
func (s State) Equal(o State) bool {
	for k, v := range s {
		if !v.Equal(o[k]) {
			return false
		}
	}
	for k, v := range o {
		if _, ok := s[k]; !ok && v.IsSet() {
			return false
		}
	}
	return true
}
