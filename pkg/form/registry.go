package form

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed schemas/*.yaml
var builtinFS embed.FS

// Registry holds the schemas the service knows by name.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry indexes compiled schemas by name.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		if _, dup := r.schemas[s.Name]; dup {
			return nil, fmt.Errorf("form: duplicate schema %q", s.Name)
		}
		r.schemas[s.Name] = s
	}
	return r, nil
}

// Builtin loads the schemas embedded in the binary.
func Builtin() (*Registry, error) {
	return LoadFS(builtinFS, "schemas/*.yaml")
}

// LoadFS parses every file matching pattern in fsys.
func LoadFS(fsys fs.FS, pattern string) (*Registry, error) {
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("form: glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("form: no schemas match %s", pattern)
	}
	schemas := make([]*Schema, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("form: read %s: %w", name, err)
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		schemas = append(schemas, s)
	}
	return NewRegistry(schemas...)
}

// Get returns the named schema.
func (r *Registry) Get(name string) (*Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// With returns a registry holding r's schemas, replaced or extended by o's.
func (r *Registry) With(o *Registry) *Registry {
	out := &Registry{schemas: make(map[string]*Schema, len(r.schemas)+len(o.schemas))}
	for name, s := range r.schemas {
		out.schemas[name] = s
	}
	for name, s := range o.schemas {
		out.schemas[name] = s
	}
	return out
}

// Names returns the schema names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
