package naming

import "fmt"

// CollisionError reports a name registered twice within one scope.
type CollisionError struct {
	Scope    string
	Name     string
	Existing string
	Source   string
}

func (e *CollisionError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("name %q from %s already used by %s", e.Name, e.Source, e.Existing)
	}
	return fmt.Sprintf("name %q in %s from %s already used by %s", e.Name, e.Scope, e.Source, e.Existing)
}

// Registry tracks registered names per scope and rejects duplicates.
type Registry struct {
	seen map[string]map[string]string // scope → name → source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]map[string]string)}
}

// Register records name within scope. It returns a *CollisionError when the
// name is already taken.
func (r *Registry) Register(scope, name, source string) error {
	names := r.seen[scope]
	if names == nil {
		names = make(map[string]string)
		r.seen[scope] = names
	}
	if existing, ok := names[name]; ok {
		return &CollisionError{Scope: scope, Name: name, Existing: existing, Source: source}
	}
	names[name] = source
	return nil
}

// Exists checks if a name is registered within scope.
func (r *Registry) Exists(scope, name string) bool {
	_, ok := r.seen[scope][name]
	return ok
}
