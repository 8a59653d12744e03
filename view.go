package viewhost

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

// View is the compiled-in code of a view module. Routes registers the view's
// endpoints on a router that is already mounted at the instance context path.
type View interface {
	Routes(r chi.Router, vc *ViewContext)
}

// ResourceProvider is implemented by views that expose resources under the host API,
// i.e. /api/{v}/views/{name}/versions/{ver}/instances/{id}/resources/{path}.
// ServeResource runs with the view's isolation unit active on the request context.
type ResourceProvider interface {
	ServeResource(w http.ResponseWriter, r *http.Request, vc *ViewContext, resourcePath string)
}

// ViewFunc adapts a plain function to the View interface.
type ViewFunc func(r chi.Router, vc *ViewContext)

// Routes calls f(r, vc).
func (f ViewFunc) Routes(r chi.Router, vc *ViewContext) {
	f(r, vc)
}

// ViewDefinition is the immutable identity of a deployed view module.
type ViewDefinition struct {
	Name    string
	Version string

	// Archive is the location of the unpacked view archive.
	Archive string

	// Unit resolves the view's own resources and services. It may be nil, in which
	// case resource requests are dispatched without isolation.
	Unit IsolationUnit

	// View is the view implementation.
	View View

	// ParameterSchema is an optional JSON schema describing instance properties.
	ParameterSchema string
}

// Key returns the registry key of the definition, e.g. "HIVE{1.0.0}".
func (d *ViewDefinition) Key() string {
	return fmt.Sprintf("%s{%s}", d.Name, d.Version)
}

// InstanceKey uniquely identifies a view instance across all views and versions.
type InstanceKey struct {
	View     string
	Version  string
	Instance string
}

func (k InstanceKey) String() string {
	return fmt.Sprintf("%s{%s}/%s", k.View, k.Version, k.Instance)
}

// ViewInstance is one mounted, configured deployment of a view.
type ViewInstance struct {
	Name        string
	Definition  *ViewDefinition
	ContextPath string
	Properties  map[string]string
}

// Key returns the handler map key of the instance.
func (i *ViewInstance) Key() InstanceKey {
	if i.Definition == nil {
		return InstanceKey{Instance: i.Name}
	}
	return InstanceKey{View: i.Definition.Name, Version: i.Definition.Version, Instance: i.Name}
}

// DefaultContextPath returns the conventional mount path of an instance.
func DefaultContextPath(view, version, instance string) string {
	return fmt.Sprintf("/views/%s/%s/%s", view, version, instance)
}

// ValidateContextPath reports whether path can be mounted as an instance context path.
// It must be absolute, must not be the host root, and must not contain empty or dot
// segments, whitespace, or router pattern characters. One trailing slash is allowed.
func ValidateContextPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidContextPath, path)
	}
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		return fmt.Errorf("%w: %q would mount over the whole host", ErrInvalidContextPath, path)
	}
	if i := strings.IndexFunc(trimmed, reservedPathRune); i >= 0 {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidContextPath, path, trimmed[i:i+1])
	}
	for _, seg := range strings.Split(trimmed[1:], "/") {
		switch seg {
		case "":
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidContextPath, path)
		case ".", "..":
			return fmt.Errorf("%w: %q has a dot segment", ErrInvalidContextPath, path)
		}
	}
	return nil
}

func reservedPathRune(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune("{}*?#%", r)
}

// ViewRegistry resolves a view name and version to its definition.
// Implementations must be safe for concurrent use.
type ViewRegistry interface {
	GetDefinition(name, version string) (*ViewDefinition, bool)
}

// ViewContext is the per-instance context made available to view code.
type ViewContext struct {
	instance *ViewInstance
	registry ViewRegistry
}

// NewViewContext creates the context for an instance.
func NewViewContext(instance *ViewInstance, registry ViewRegistry) *ViewContext {
	return &ViewContext{instance: instance, registry: registry}
}

func (vc *ViewContext) InstanceName() string { return vc.instance.Name }

func (vc *ViewContext) ViewName() string {
	if vc.instance.Definition == nil {
		return ""
	}
	return vc.instance.Definition.Name
}

func (vc *ViewContext) ViewVersion() string {
	if vc.instance.Definition == nil {
		return ""
	}
	return vc.instance.Definition.Version
}

func (vc *ViewContext) ContextPath() string { return vc.instance.ContextPath }

// Property returns the named instance property, or "" when unset.
func (vc *ViewContext) Property(name string) string {
	return vc.instance.Properties[name]
}

// Properties returns a copy of the instance properties.
func (vc *ViewContext) Properties() map[string]string {
	return maps.Clone(vc.instance.Properties)
}

// Registry gives view code access to other view definitions.
func (vc *ViewContext) Registry() ViewRegistry { return vc.registry }

type viewContextKey struct{}

// WithViewContext returns a copy of ctx carrying vc.
func WithViewContext(ctx context.Context, vc *ViewContext) context.Context {
	return context.WithValue(ctx, viewContextKey{}, vc)
}

// ViewContextFromContext returns the view context attached to ctx, if any.
func ViewContextFromContext(ctx context.Context) (*ViewContext, bool) {
	vc, ok := ctx.Value(viewContextKey{}).(*ViewContext)
	return vc, ok
}

// ViewContextFromRequest is shorthand for ViewContextFromContext(r.Context()).
func ViewContextFromRequest(r *http.Request) (*ViewContext, bool) {
	return ViewContextFromContext(r.Context())
}
