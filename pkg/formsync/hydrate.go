package formsync

import (
	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/options"
	"github.com/admitly/admissions/pkg/urlparam"
)

// Hydrate decodes query into a complete state for s: every field holds
// either its decoded value or its default. Cascading fields are resolved
// parent first and validated against the parent-filtered option set.
func Hydrate(s *form.Schema, query string, catalog options.Catalog) form.State {
	params := urlparam.ParseQuery(query)
	out := s.Defaults()
	outcomes := make(map[string]urlparam.Outcome, len(s.Fields))

	for _, f := range s.Ordered() {
		allowed := allowedFor(f, out, catalog)

		if f.Parent != "" && (outcomes[f.Parent] == urlparam.Fallback || orphaned(f, out, catalog)) {
			// The parent was rejected or left empty; a decoded child would
			// belong to a parent that is not selected.
			outcomes[f.Name] = urlparam.Fallback
			out[f.Name] = EnsureDefault(f, allowed)
			continue
		}

		v, outcome := urlparam.DecodeField(params, f, allowed)
		outcomes[f.Name] = outcome
		if outcome == urlparam.Absent {
			continue
		}
		out[f.Name] = v
	}
	return out
}

// allowedFor returns the option set f validates against given the values
// resolved so far.
func allowedFor(f *form.Field, resolved form.State, catalog options.Catalog) options.Set {
	if !f.Kind.Enumerated() || f.Options == "" {
		return options.Set{}
	}
	set := catalog.Set(f.Options)
	if f.Parent == "" || !set.HasParents() {
		return set
	}
	return set.ChildrenOf(resolved[f.Parent].Text())
}

// orphaned reports whether f is a cascading child whose parent is empty. No
// option can belong to an empty parent, so such a child takes its default.
func orphaned(f *form.Field, resolved form.State, catalog options.Catalog) bool {
	if !f.Kind.Enumerated() || f.Options == "" {
		return false
	}
	return catalog.Set(f.Options).HasParents() && resolved[f.Parent].Text() == ""
}

// EnsureDefault returns f's default, validated against allowed when the
// field is a select.
func EnsureDefault(f *form.Field, allowed options.Set) form.Value {
	def := f.DefaultValue()
	if f.Kind != form.KindSelect {
		return def
	}
	return form.String(urlparam.EnsureOption(def.Text(), allowed, ""))
}

// AllowedSets returns the option set of every enumerated field of s for the
// given state, honouring parent filtering.
func AllowedSets(s *form.Schema, st form.State, catalog options.Catalog) map[string]options.Set {
	out := make(map[string]options.Set)
	for _, f := range s.Ordered() {
		if f.Kind.Enumerated() {
			out[f.Name] = allowedFor(f, st, catalog)
		}
	}
	return out
}
