package registry

import (
	"sync"

	"github.com/wizzardx/davinci/pkg/schema"
)

// Entry is one registration: the scope it was filed under and the property.
type Entry struct {
	Scope    string
	Property schema.Property
}

// Registry maps scope ids to the properties asserted for them. It is
// append-only; once sealed, no further registrations are accepted.
// Thread-safe.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	byScope map[string][]int    // scope → indexes into entries
	ids     map[string]struct{} // scope + "\x00" + property id
	sealed  bool

	canonical func(string) string
}

// Option configures a Registry.
type Option func(*Registry)

// WithScopeResolver maps every scope to its canonical form before it is
// filed, so that aliases of one scope share a duplicate-id namespace.
func WithScopeResolver(fn func(scope string) string) Option {
	return func(r *Registry) { r.canonical = fn }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byScope: make(map[string][]int),
		ids:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register files p under scopeID, canonicalised when a scope resolver is
// configured. The property's Scope is set to the filed scope.
func (r *Registry) Register(scopeID string, p schema.Property) error {
	if scopeID == "" {
		scopeID = schema.ScopeGlobal
	}
	if r.canonical != nil {
		scopeID = r.canonical(scopeID)
	}
	if p.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "property id is empty")
	}
	if !schema.ValidMethods[p.Method] {
		return schema.NewErrorf(schema.ErrCodeValidation, "property %q has unknown method %q", p.ID, p.Method)
	}
	if p.Severity == "" {
		p.Severity = schema.SeverityHigh
	}
	if p.Severity.Rank() == len(schema.Severities) {
		return schema.NewErrorf(schema.ErrCodeValidation, "property %q has unknown severity %q", p.ID, p.Severity)
	}
	p.Scope = scopeID

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return schema.NewErrorf(schema.ErrCodeRegistrySealed, "registry is sealed; cannot register %q", p.ID)
	}
	key := scopeID + "\x00" + p.ID
	if _, exists := r.ids[key]; exists {
		return schema.NewErrorf(schema.ErrCodeDuplicatePropertyID,
			"property %q already registered for scope %q", p.ID, scopeID).
			WithDetails(map[string]any{"scope": scopeID, "property_id": p.ID})
	}

	r.ids[key] = struct{}{}
	r.byScope[scopeID] = append(r.byScope[scopeID], len(r.entries))
	r.entries = append(r.entries, Entry{Scope: scopeID, Property: p})
	return nil
}

// RegisterDecls registers document-level declarations in order, stopping at
// the first failure.
func (r *Registry) RegisterDecls(decls []schema.PropertyDecl) error {
	for _, d := range decls {
		p := d.ToProperty()
		if err := r.Register(p.Scope, p); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the properties registered for scopeID in insertion order.
func (r *Registry) Lookup(scopeID string) []schema.Property {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.byScope[scopeID]
	out := make([]schema.Property, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.entries[i].Property)
	}
	return out
}

// All returns every registration in global insertion order.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Seal stops further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Len returns the number of registered properties.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
