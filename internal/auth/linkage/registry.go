package linkage

import (
	"fmt"
	"sort"

	"identity-link/internal/auth"
)

// Registry holds the linker of every local type and allows lookup by type
// name. It performs no linking itself.
type Registry struct {
	linkers     map[string]*Linker
	defaultType string
}

// NewRegistry registers the given linkers by declaration name. Names must be
// unique.
func NewRegistry(defaultType string, list ...*Linker) *Registry {
	m := make(map[string]*Linker, len(list))
	for _, l := range list {
		m[l.Name()] = l
	}
	return &Registry{linkers: m, defaultType: defaultType}
}

// Get returns the linker of a local type or an error if not registered.
func (r *Registry) Get(name string) (*Linker, error) {
	l, ok := r.linkers[name]
	if !ok {
		return nil, fmt.Errorf("unknown local type: %s", name)
	}
	return l, nil
}

// Default returns the linker of the configured default local type.
func (r *Registry) Default() (*Linker, error) {
	if r.defaultType == "" {
		return nil, &auth.ConfigurationError{Key: "DEFAULT_LOCAL_TYPE"}
	}
	return r.Get(r.defaultType)
}

// Names lists the registered types in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.linkers))
	for name := range r.linkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
