// Package registry resolves (view name, version) pairs to view definitions and builds
// view instances from descriptors, validating instance properties against the JSON
// schema a definition declares for them.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/GoCodeAlone/viewhost"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

type entry struct {
	def    *viewhost.ViewDefinition
	schema *jsonschema.Schema
}

// MemoryRegistry is an in-process viewhost.ViewRegistry. It is safe for concurrent use;
// GetDefinition is called from every dispatching goroutine.
type MemoryRegistry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	reserved []string
}

// Option configures a MemoryRegistry.
type Option func(*MemoryRegistry)

// WithReservedPaths keeps instances away from routes the host serves itself. An
// instance may not be mounted at a reserved path, below one, or above one.
func WithReservedPaths(paths ...string) Option {
	return func(r *MemoryRegistry) {
		for _, p := range paths {
			if p = strings.Trim(p, "/"); p != "" {
				r.reserved = append(r.reserved, "/"+p)
			}
		}
	}
}

func NewMemoryRegistry(opts ...Option) *MemoryRegistry {
	r := &MemoryRegistry{entries: make(map[string]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds def. A definition with a ParameterSchema has the schema compiled here, so
// a broken schema is rejected before any instance refers to it.
func (r *MemoryRegistry) Register(def *viewhost.ViewDefinition) error {
	if def == nil || !validSegment(def.Name) || !validSegment(def.Version) {
		return ErrInvalidDefinition
	}
	if def.View == nil {
		return fmt.Errorf("%w: %s has no view", ErrInvalidDefinition, def.Key())
	}

	e := &entry{def: def}
	if def.ParameterSchema != "" {
		schema, err := compileSchema(def.Key(), def.ParameterSchema)
		if err != nil {
			return err
		}
		e.schema = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDefinition, def.Key())
	}
	r.entries[def.Key()] = e
	return nil
}

// Unregister removes the definition and reports whether it was present.
func (r *MemoryRegistry) Unregister(name, version string) bool {
	key := definitionKey(name, version)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	delete(r.entries, key)
	return ok
}

func (r *MemoryRegistry) GetDefinition(name, version string) (*viewhost.ViewDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[definitionKey(name, version)]
	if !ok {
		return nil, false
	}
	return e.def, true
}

// Definitions returns every registered definition ordered by key.
func (r *MemoryRegistry) Definitions() []*viewhost.ViewDefinition {
	r.mu.RLock()
	defs := make([]*viewhost.ViewDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	r.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].Key() < defs[j].Key() })
	return defs
}

// ValidateProperties checks props against the parameter schema of the named view. Views
// without a schema accept any properties.
func (r *MemoryRegistry) ValidateProperties(name, version string, props map[string]string) error {
	r.mu.RLock()
	e, ok := r.entries[definitionKey(name, version)]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, definitionKey(name, version))
	}
	if e.schema == nil {
		return nil
	}

	doc := make(map[string]any, len(props))
	for k, v := range props {
		doc[k] = v
	}
	if err := e.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProperties, err)
	}
	return nil
}

// NewInstance resolves the descriptor's view and builds an instance mounted at the
// descriptor's context path, or at viewhost.DefaultContextPath when none is given.
func (r *MemoryRegistry) NewInstance(desc InstanceDescriptor) (*viewhost.ViewInstance, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	def, ok := r.GetDefinition(desc.View, desc.Version)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, definitionKey(desc.View, desc.Version))
	}
	if err := r.ValidateProperties(desc.View, desc.Version, desc.Properties); err != nil {
		return nil, fmt.Errorf("instance %s: %w", desc.Name, err)
	}

	contextPath := desc.ContextPath
	if contextPath == "" {
		contextPath = viewhost.DefaultContextPath(def.Name, def.Version, desc.Name)
	}
	contextPath = strings.TrimSuffix(contextPath, "/")
	if err := viewhost.ValidateContextPath(contextPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	if p, ok := r.overlapsReserved(contextPath); ok {
		return nil, fmt.Errorf("%w: %s conflicts with %s", ErrReservedContextPath, contextPath, p)
	}
	props := make(map[string]string, len(desc.Properties))
	for k, v := range desc.Properties {
		props[k] = v
	}
	return &viewhost.ViewInstance{
		Name:        desc.Name,
		Definition:  def,
		ContextPath: contextPath,
		Properties:  props,
	}, nil
}

func (r *MemoryRegistry) overlapsReserved(contextPath string) (string, bool) {
	for _, p := range r.reserved {
		if contextPath == p || strings.HasPrefix(contextPath, p+"/") || strings.HasPrefix(p, contextPath+"/") {
			return p, true
		}
	}
	return "", false
}

func compileSchema(key, source string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrInvalidSchema, key, err)
	}

	url := "mem://views/" + key + "/parameters.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrInvalidSchema, key, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrInvalidSchema, key, err)
	}
	return schema, nil
}

func definitionKey(name, version string) string {
	return name + "{" + version + "}"
}

func validSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t\r\n/")
}
