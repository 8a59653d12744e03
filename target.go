package viewhost

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

// ViewResourcePattern is the route shape of a view resource request.
const ViewResourcePattern = "/api/{apiVersion}/views/{viewName}/versions/{viewVersion}/instances/{instanceName}/resources/*"

// ResourceTarget is the parsed form of a view resource request path.
type ResourceTarget struct {
	APIVersion   string
	ViewName     string
	ViewVersion  string
	InstanceName string
	ResourcePath string
}

// TargetMatcher recognises view resource request paths.
// A TargetMatcher is immutable after construction and safe for concurrent use.
type TargetMatcher struct {
	mux *chi.Mux
}

// NewTargetMatcher builds a matcher for ViewResourcePattern.
func NewTargetMatcher() *TargetMatcher {
	mux := chi.NewMux()
	mux.Handle(ViewResourcePattern, http.NotFoundHandler())
	return &TargetMatcher{mux: mux}
}

var defaultTargetMatcher = NewTargetMatcher()

// MatchTarget parses path against ViewResourcePattern using the package matcher.
func MatchTarget(path string) (ResourceTarget, bool) {
	return defaultTargetMatcher.Match(path)
}

// Match parses path. A false result means the request is not view scoped; it is not
// an error.
func (m *TargetMatcher) Match(path string) (ResourceTarget, bool) {
	rctx := chi.NewRouteContext()
	if !m.mux.Match(rctx, http.MethodGet, path) {
		return ResourceTarget{}, false
	}

	target := ResourceTarget{
		APIVersion:   rctx.URLParam("apiVersion"),
		ViewName:     rctx.URLParam("viewName"),
		ViewVersion:  rctx.URLParam("viewVersion"),
		InstanceName: rctx.URLParam("instanceName"),
		ResourcePath: rctx.URLParam("*"),
	}

	for _, part := range []string{target.APIVersion, target.ViewName, target.ViewVersion, target.InstanceName, target.ResourcePath} {
		if part == "" || strings.IndexFunc(part, unicode.IsSpace) >= 0 {
			return ResourceTarget{}, false
		}
	}
	return target, true
}

// InstanceKey returns the key of the instance the target addresses.
func (t ResourceTarget) InstanceKey() InstanceKey {
	return InstanceKey{View: t.ViewName, Version: t.ViewVersion, Instance: t.InstanceName}
}
