// Package urlparam encodes form state into query strings and back.
//
// The encoding is flat and meant to be readable in a shared link:
//
//	?fullName=Nguyen+Van+A&gender=nam&confirmAccuracy=true&aspirations=CNTT,Luat
//
// Two reserved tokens keep "present but empty" apart from "absent":
//
//   - __empty stands for an empty string
//   - none stands for an empty list
//
// An absent key always means "use the field default". Lists are joined with
// commas; commas inside list items are not escaped.
//
// Decoding never fails. Every malformed or unknown input degrades to a
// defined fallback (raw text, the field default, or an empty value).
package urlparam

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/options"
)

const (
	// EmptySentinel encodes an empty string.
	EmptySentinel = "__empty"

	// NoneSentinel encodes an empty list.
	NoneSentinel = "none"
)

// EncodeValue returns the query text for v. The second result is false for
// unset values, which are omitted from the query.
func EncodeValue(v form.Value) (string, bool) {
	switch v.Shape() {
	case form.ShapeBool:
		return strconv.FormatBool(v.Flag()), true
	case form.ShapeString:
		if v.Text() == "" {
			return EmptySentinel, true
		}
		return v.Text(), true
	case form.ShapeList:
		items := v.Items()
		if len(items) == 0 {
			return NoneSentinel, true
		}
		return strings.Join(items, ","), true
	}
	return "", false
}

// Encode serialises st into a canonical query string (keys sorted, no
// leading '?'). Equal states always produce equal strings.
func Encode(st form.State) string {
	vals := make(url.Values, len(st))
	for name, v := range st {
		if s, ok := EncodeValue(v); ok {
			vals.Set(name, s)
		}
	}
	return vals.Encode()
}

// ParseQuery parses a raw query string, with or without a leading '?'.
// Malformed pairs are skipped.
func ParseQuery(query string) url.Values {
	query = strings.TrimPrefix(query, "?")
	vals, _ := url.ParseQuery(query)
	if vals == nil {
		vals = url.Values{}
	}
	return vals
}

// Canonical re-encodes a raw query string with sorted keys so two spellings
// of the same parameters compare equal.
func Canonical(query string) string {
	return ParseQuery(query).Encode()
}

// DecodeScalar applies the second percent-decoding pass to a value that was
// already query-unescaped once. Link generators upstream sometimes encode
// twice; when the second pass fails, or yields invalid UTF-8, the
// once-decoded text is kept. '+' is
// left alone here because the first pass already turned it into a space.
func DecodeScalar(raw string) string {
	if !strings.Contains(raw, "%") {
		return raw
	}
	s, err := url.PathUnescape(raw)
	if err != nil || !utf8.ValidString(s) {
		return raw
	}
	return s
}

// DecodeList splits a comma joined list, decoding each item and dropping
// empty segments. Items are kept verbatim, surrounding spaces included.
func DecodeList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := DecodeScalar(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// CoerceOption resolves text against allowed by value, then by display label.
// Unmatched text comes back unchanged.
func CoerceOption(text string, allowed options.Set) string {
	if item, ok := allowed.Lookup(text); ok {
		return item.Value
	}
	return text
}

// EnsureOption keeps value if it is a member of allowed, otherwise falls back
// to def when that is a member, and finally to "". An empty allowed set means
// the options are not known yet and value passes through.
func EnsureOption(value string, allowed options.Set, def string) string {
	if allowed.Len() == 0 || allowed.Contains(value) {
		return value
	}
	if allowed.Contains(def) {
		return def
	}
	return ""
}

// Outcome describes how a field was decoded.
type Outcome int

const (
	// Absent means the key was missing or unusable; the caller applies the
	// default.
	Absent Outcome = iota

	// Accepted means the decoded value is used as is.
	Accepted

	// Fallback means the decoded value was not an allowed option and was
	// replaced by the default or "".
	Fallback
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Fallback:
		return "fallback"
	}
	return "absent"
}

// DecodeField decodes one field from parsed query values, validating
// enumerated fields against allowed.
func DecodeField(params url.Values, f *form.Field, allowed options.Set) (form.Value, Outcome) {
	vals, ok := params[f.Name]
	if !ok || len(vals) == 0 {
		return form.Value{}, Absent
	}
	raw := vals[0]

	switch f.Kind {
	case form.KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return form.Value{}, Absent
		}
		return form.Bool(b), Accepted

	case form.KindMultiSelect:
		if raw == NoneSentinel || raw == EmptySentinel {
			return form.List(), Accepted
		}
		items := DecodeList(raw)
		if allowed.Len() == 0 {
			return form.List(items...), Accepted
		}
		kept := make([]string, 0, len(items))
		outcome := Accepted
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			v := CoerceOption(item, allowed)
			if !allowed.Contains(v) {
				outcome = Fallback
				continue
			}
			if seen[v] {
				continue
			}
			seen[v] = true
			kept = append(kept, v)
		}
		return form.List(kept...), outcome

	case form.KindSelect:
		if raw == EmptySentinel {
			return form.String(""), Accepted
		}
		coerced := CoerceOption(DecodeScalar(raw), allowed)
		resolved := EnsureOption(coerced, allowed, f.DefaultValue().Text())
		if resolved != coerced {
			return form.String(resolved), Fallback
		}
		return form.String(resolved), Accepted

	default:
		if raw == EmptySentinel {
			return form.String(""), Accepted
		}
		return form.String(DecodeScalar(raw)), Accepted
	}
}

// Decode parses query into a partial state for s. Keys the query does not
// carry are left out of the result. allowed maps field names to the option
// sets their values must belong to; fields without an entry are not
// validated.
func Decode(query string, s *form.Schema, allowed map[string]options.Set) form.State {
	params := ParseQuery(query)
	out := make(form.State)
	for _, f := range s.Ordered() {
		v, outcome := DecodeField(params, f, allowed[f.Name])
		if outcome == Absent {
			continue
		}
		out[f.Name] = v
	}
	return out
}
