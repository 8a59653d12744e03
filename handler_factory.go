package viewhost

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// HandlerFactory builds the handler that serves one view instance.
type HandlerFactory interface {
	Create(instance *ViewInstance, archive, contextPath string) (Handler, error)
}

// HandlerFactoryFunc adapts a function to HandlerFactory.
type HandlerFactoryFunc func(instance *ViewInstance, archive, contextPath string) (Handler, error)

func (f HandlerFactoryFunc) Create(instance *ViewInstance, archive, contextPath string) (Handler, error) {
	return f(instance, archive, contextPath)
}

// InstanceStarter is implemented by views that need per-instance startup.
type InstanceStarter interface {
	StartInstance(ctx context.Context, vc *ViewContext) error
}

// InstanceStopper is implemented by views that need per-instance shutdown.
type InstanceStopper interface {
	StopInstance(ctx context.Context, vc *ViewContext) error
}

// WebAppOption customises a WebAppFactory.
type WebAppOption func(*WebAppFactory)

// WithSessionOptions configures the session handler of every web app.
func WithSessionOptions(opts ...SessionOption) WebAppOption {
	return func(f *WebAppFactory) { f.sessionOpts = append(f.sessionOpts, opts...) }
}

// WithFactoryLogger sets the logger handed to web apps.
func WithFactoryLogger(l Logger) WebAppOption {
	return func(f *WebAppFactory) { f.logger = loggerOrNop(l) }
}

// WebAppFactory is the default HandlerFactory. Each instance gets a web app mounted at
// its context path that carries the view's isolation unit, the instance ViewContext,
// the host security filter and a SharedSessionHandler over the host session store.
type WebAppFactory struct {
	store       SessionStore
	filter      func(http.Handler) http.Handler
	registry    ViewRegistry
	logger      Logger
	sessionOpts []SessionOption
}

// NewWebAppFactory creates a factory. filter may be nil.
func NewWebAppFactory(store SessionStore, filter func(http.Handler) http.Handler, registry ViewRegistry, opts ...WebAppOption) *WebAppFactory {
	f := &WebAppFactory{
		store:    store,
		filter:   filter,
		registry: registry,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *WebAppFactory) Create(instance *ViewInstance, archive, contextPath string) (Handler, error) {
	def := instance.Definition
	if def == nil {
		return nil, ErrNilDefinition
	}
	if def.View == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoView, def.Key())
	}
	if f.store == nil {
		return nil, ErrSessionStoreNil
	}
	if contextPath == "" {
		contextPath = DefaultContextPath(def.Name, def.Version, instance.Name)
	}
	contextPath = "/" + strings.Trim(contextPath, "/")
	if err := ValidateContextPath(contextPath); err != nil {
		return nil, err
	}

	sessionOpts := append([]SessionOption{WithSessionLogger(f.logger)}, f.sessionOpts...)
	app := &webAppHandler{
		name:        instance.Key().String(),
		archive:     archive,
		contextPath: contextPath,
		unit:        def.Unit,
		view:        def.View,
		vc:          NewViewContext(instance, f.registry),
		sessions:    NewSharedSessionHandler(f.store, sessionOpts...),
		logger:      f.logger,
	}
	router, err := app.buildRouter(f.filter)
	if err != nil {
		return nil, err
	}
	app.router = router
	return app, nil
}

// webAppHandler serves one view instance below its context path.
type webAppHandler struct {
	name        string
	archive     string
	contextPath string
	unit        IsolationUnit
	view        View
	vc          *ViewContext
	sessions    *SharedSessionHandler
	router      chi.Router
	logger      Logger

	mu      sync.Mutex
	started bool
}

func (h *webAppHandler) Name() string { return h.name }

// buildRouter mounts the view below its context path. chi panics on malformed
// patterns, whether they come from the context path or from the view's own routes.
func (h *webAppHandler) buildRouter(filter func(http.Handler) http.Handler) (router chi.Router, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			router = nil
			err = fmt.Errorf("building routes for %s at %s: %v", h.name, h.contextPath, rec)
		}
	}()

	root := chi.NewRouter()
	root.Route(h.contextPath, func(r chi.Router) {
		r.Use(h.sessions.Wrap)
		if filter != nil {
			r.Use(filter)
		}
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(WithViewContext(req.Context(), h.vc)))
			})
		})
		if h.unit != nil {
			r.Handle("/resources/static/*", http.StripPrefix(h.contextPath+"/resources/", http.FileServer(http.FS(h.unit))))
		}
		h.view.Routes(r, h.vc)
	})
	return root, nil
}

// ServeHTTP claims only requests below the context path, and only while started.
func (h *webAppHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.IsStarted() || !h.owns(r.URL.Path) {
		return
	}

	ctx, restore := EnterIsolationUnit(r.Context(), h.unit)
	defer restore()
	h.router.ServeHTTP(w, r.WithContext(ctx))
}

func (h *webAppHandler) owns(path string) bool {
	return path == h.contextPath || strings.HasPrefix(path, h.contextPath+"/")
}

func (h *webAppHandler) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}

	if err := h.sessions.Start(ctx); err != nil {
		return fmt.Errorf("starting session handler: %w", err)
	}
	if starter, ok := h.view.(InstanceStarter); ok {
		ctx, restore := EnterIsolationUnit(ctx, h.unit)
		err := starter.StartInstance(ctx, h.vc)
		restore()
		if err != nil {
			return fmt.Errorf("starting view instance: %w", err)
		}
	}

	h.started = true
	h.logger.Debug("View web app started", "instance", h.name, "contextPath", h.contextPath, "archive", h.archive)
	return nil
}

func (h *webAppHandler) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return nil
	}
	h.started = false

	var err error
	if stopper, ok := h.view.(InstanceStopper); ok {
		ctx, restore := EnterIsolationUnit(ctx, h.unit)
		err = stopper.StopInstance(ctx, h.vc)
		restore()
	}
	if serr := h.sessions.Stop(ctx); serr != nil && err == nil {
		err = serr
	}
	h.logger.Debug("View web app stopped", "instance", h.name)
	return err
}

func (h *webAppHandler) IsStarted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}
