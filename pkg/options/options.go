// Package options holds the enumerated option sets that back select fields.
//
// Option data reaches the service from several places (the CRM metadata
// method, the bundled defaults, query strings built by link generators) and
// in several shapes. Every ingestion boundary funnels through Normalize so the
// rest of the code only ever sees OptionItem.
package options

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Style carries optional presentation hints attached to an option, such as
// the colour of a status pill.
type Style struct {
	Color      string `json:"color,omitempty" yaml:"color,omitempty"`
	Background string `json:"background,omitempty" yaml:"background,omitempty"`
	Icon       string `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// IsZero reports whether no styling is set.
func (s Style) IsZero() bool {
	return s.Color == "" && s.Background == "" && s.Icon == ""
}

// OptionItem is one allowed value of an enumerated field.
type OptionItem struct {
	// Value is the canonical machine identifier.
	Value string `json:"value"`

	// Display is the user-facing label. Falls back to Value.
	Display string `json:"display"`

	// Parent is the value of the parent option this item belongs to for
	// cascading sets (a ward belongs to a province). Empty for flat sets.
	Parent string `json:"parent,omitempty"`

	Style Style `json:"style,omitzero"`
}

// Raw is an option as it arrives from outside: either a bare string or an
// object with value/display keys.
type Raw struct {
	text   string
	object map[string]any
}

// RawString wraps a plain string option.
func RawString(s string) Raw {
	return Raw{text: s}
}

// RawObject wraps an object option.
func RawObject(m map[string]any) Raw {
	return Raw{object: m}
}

// IsObject reports whether the raw option was an object.
func (r Raw) IsObject() bool {
	return r.object != nil
}

// UnmarshalJSON accepts a string, a number or an object.
func (r *Raw) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*r = RawString(t)
	case float64:
		*r = RawString(strconv.FormatFloat(t, 'f', -1, 64))
	case map[string]any:
		*r = RawObject(t)
	case nil:
		*r = Raw{}
	default:
		return fmt.Errorf("options: unsupported option shape %T", v)
	}
	return nil
}

// MarshalJSON writes the raw option back in its original shape.
func (r Raw) MarshalJSON() ([]byte, error) {
	if r.object != nil {
		return json.Marshal(r.object)
	}
	return json.Marshal(r.text)
}

var (
	valueKeys      = []string{"value", "name", "id", "code"}
	displayKeys    = []string{"display", "label", "title", "text"}
	parentKeys     = []string{"parent", "parent_value", "province"}
	colorKeys      = []string{"color", "text_color"}
	backgroundKeys = []string{"background", "bg_color", "background_color"}
	iconKeys       = []string{"icon"}
)

// Normalize converts a raw option into its canonical form. The second result
// is false when the raw option carries no usable value.
func Normalize(r Raw) (OptionItem, bool) {
	if r.object == nil {
		v := strings.TrimSpace(r.text)
		if v == "" {
			return OptionItem{}, false
		}
		return OptionItem{Value: v, Display: v}, true
	}

	item := OptionItem{
		Value:   firstString(r.object, valueKeys),
		Display: firstString(r.object, displayKeys),
		Parent:  firstString(r.object, parentKeys),
		Style: Style{
			Color:      firstString(r.object, colorKeys),
			Background: firstString(r.object, backgroundKeys),
			Icon:       firstString(r.object, iconKeys),
		},
	}
	if nested, ok := r.object["style"].(map[string]any); ok {
		if item.Style.Color == "" {
			item.Style.Color = firstString(nested, colorKeys)
		}
		if item.Style.Background == "" {
			item.Style.Background = firstString(nested, backgroundKeys)
		}
		if item.Style.Icon == "" {
			item.Style.Icon = firstString(nested, iconKeys)
		}
	}
	if item.Value == "" {
		item.Value = item.Display
	}
	if item.Value == "" {
		return OptionItem{}, false
	}
	if item.Display == "" {
		item.Display = item.Value
	}
	return item, true
}

func firstString(m map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// Set is an ordered collection of options, unique by value. The zero Set is
// empty and ready to use.
type Set struct {
	items []OptionItem
	index map[string]int
}

// NewSet builds a set from items. Duplicate values keep the first occurrence.
func NewSet(items ...OptionItem) Set {
	s := Set{}
	for _, item := range items {
		s.add(item)
	}
	return s
}

// FromRaw normalises and collects raw options, dropping unusable entries.
func FromRaw(raws []Raw) Set {
	s := Set{}
	for _, raw := range raws {
		if item, ok := Normalize(raw); ok {
			s.add(item)
		}
	}
	return s
}

// Strings builds a set where value and display are the same text.
func Strings(values ...string) Set {
	s := Set{}
	for _, v := range values {
		if item, ok := Normalize(RawString(v)); ok {
			s.add(item)
		}
	}
	return s
}

func (s *Set) add(item OptionItem) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, exists := s.index[item.Value]; exists {
		return
	}
	s.index[item.Value] = len(s.items)
	s.items = append(s.items, item)
}

// Len returns the number of options.
func (s Set) Len() int { return len(s.items) }

// Items returns a copy of the options in order.
func (s Set) Items() []OptionItem {
	out := make([]OptionItem, len(s.items))
	copy(out, s.items)
	return out
}

// Values returns the option values in order.
func (s Set) Values() []string {
	out := make([]string, len(s.items))
	for i, item := range s.items {
		out[i] = item.Value
	}
	return out
}

// Contains reports whether value is a member of the set.
func (s Set) Contains(value string) bool {
	_, ok := s.index[value]
	return ok
}

// Get returns the option with the given value.
func (s Set) Get(value string) (OptionItem, bool) {
	i, ok := s.index[value]
	if !ok {
		return OptionItem{}, false
	}
	return s.items[i], true
}

// Lookup resolves text against the set: exact value match first, then exact
// display match.
func (s Set) Lookup(text string) (OptionItem, bool) {
	if item, ok := s.Get(text); ok {
		return item, true
	}
	for _, item := range s.items {
		if item.Display == text {
			return item, true
		}
	}
	return OptionItem{}, false
}

// HasParents reports whether any option is attached to a parent value.
func (s Set) HasParents() bool {
	for _, item := range s.items {
		if item.Parent != "" {
			return true
		}
	}
	return false
}

// ChildrenOf returns the options whose parent is the given value.
func (s Set) ChildrenOf(parent string) Set {
	out := Set{}
	for _, item := range s.items {
		if item.Parent == parent {
			out.add(item)
		}
	}
	return out
}

// MarshalJSON encodes the set as an array of options.
func (s Set) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// UnmarshalJSON accepts an array of raw options.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raws []Raw
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	*s = FromRaw(raws)
	return nil
}

// Catalog is a named collection of option sets, the metadata snapshot a form
// validates against.
type Catalog map[string]Set

// Set returns the named option set, empty if unknown.
func (c Catalog) Set(name string) Set {
	if c == nil {
		return Set{}
	}
	return c[name]
}

// Names returns the set names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a catalog holding base's sets overridden by over's non-empty
// sets.
func Merge(base, over Catalog) Catalog {
	out := make(Catalog, len(base)+len(over))
	for name, set := range base {
		out[name] = set
	}
	for name, set := range over {
		if set.Len() > 0 {
			out[name] = set
		}
	}
	return out
}

// ParseCatalog decodes a JSON document mapping set names to raw option arrays.
func ParseCatalog(data []byte) (Catalog, error) {
	var raw map[string][]Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("options: parse catalog: %w", err)
	}
	out := make(Catalog, len(raw))
	for name, items := range raw {
		out[name] = FromRaw(items)
	}
	return out, nil
}
