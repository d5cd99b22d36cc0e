package provider

import "fmt"

// Registry holds the federated providers enabled for this deployment and
// allows lookup by name. It performs no auth logic itself.
type Registry struct {
	providers map[Provider]struct{}
}

// NewRegistry registers the given providers. Unsupported is ignored.
func NewRegistry(list ...Provider) *Registry {
	m := make(map[Provider]struct{})
	for _, p := range list {
		if p == Unsupported {
			continue
		}
		m[p] = struct{}{}
	}
	return &Registry{providers: m}
}

// RegistryFromNames builds a registry from configured provider names.
func RegistryFromNames(names []string) (*Registry, error) {
	list := make([]Provider, 0, len(names))
	for _, name := range names {
		p, err := Parse(name)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return NewRegistry(list...), nil
}

// Get returns the provider by name or an error if it is unknown or disabled.
func (r *Registry) Get(name string) (Provider, error) {
	p, err := Parse(name)
	if err != nil {
		return Unsupported, err
	}
	if _, ok := r.providers[p]; !ok {
		return Unsupported, fmt.Errorf("oauth provider not enabled: %s", p.Name())
	}
	return p, nil
}
