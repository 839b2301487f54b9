package resource

import "fmt"

// Locator resolves registered resource services by name. Components that
// only need cross-resource addressing depend on this interface rather
// than the concrete registry.
type Locator interface {
	Service(name string) (*Service, bool)
}

// Registry maps resource names to their services. It is populated once
// at process start and read-only afterwards; it is passed by reference
// into components that need resource lookup instead of living as an
// ambient singleton.
type Registry struct {
	services map[string]*Service
	sealed   bool
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// Register adds a service under its resource name. Registration after
// Seal or double registration indicates a wiring bug and panics.
func (r *Registry) Register(svc *Service) {
	if r.sealed {
		panic("resource: registry sealed")
	}
	name := svc.Name()
	if _, exists := r.services[name]; exists {
		panic(fmt.Sprintf("resource: %s already registered", name))
	}
	r.services[name] = svc
}

// Seal freezes the registry; call after wiring completes.
func (r *Registry) Seal() { r.sealed = true }

// Service resolves a service by resource name.
func (r *Registry) Service(name string) (*Service, bool) {
	svc, ok := r.services[name]
	return svc, ok
}

// MustService resolves a service or panics; for wiring-time lookups only.
func (r *Registry) MustService(name string) *Service {
	svc, ok := r.services[name]
	if !ok {
		panic(fmt.Sprintf("resource: %s not registered", name))
	}
	return svc
}
