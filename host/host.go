// Package host assembles a complete view host: the view registry, the shared session
// store, the security filter, the view handler list with its admin API, Prometheus
// metrics, the instance descriptor watcher and the HTTP server.
package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/GoCodeAlone/viewhost"
	"github.com/GoCodeAlone/viewhost/httpserver"
	"github.com/GoCodeAlone/viewhost/instancewatch"
	"github.com/GoCodeAlone/viewhost/registry"
	"github.com/GoCodeAlone/viewhost/security"
	"github.com/GoCodeAlone/viewhost/sessions"
)

var ErrAlreadyStarted = errors.New("host already started")

type Option func(*Host)

// WithViews registers view definitions when the host is built.
func WithViews(defs ...*viewhost.ViewDefinition) Option {
	return func(h *Host) { h.views = append(h.views, defs...) }
}

func WithLogger(l viewhost.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithSessionStore replaces the store selected by the sessions config.
func WithSessionStore(store viewhost.SessionStore) Option {
	return func(h *Host) { h.store = store }
}

// WithObserver registers an observer for host, instance and dispatch events.
func WithObserver(o viewhost.Observer, eventTypes ...string) Option {
	return func(h *Host) {
		h.observers = append(h.observers, observerRegistration{observer: o, eventTypes: eventTypes})
	}
}

type observerRegistration struct {
	observer   viewhost.Observer
	eventTypes []string
}

type Host struct {
	cfg       *Config
	logger    viewhost.Logger
	views     []*viewhost.ViewDefinition
	observers []observerRegistration

	registry *registry.MemoryRegistry
	store    viewhost.SessionStore
	sweeper  *sessions.Sweeper
	filter   *security.Filter
	events   *viewhost.EventEmitter
	list     *viewhost.ViewHandlerList
	metrics  *prometheus.Registry
	watcher  *instancewatch.Watcher
	server   *httpserver.Server

	started []stopFunc
}

type stopFunc struct {
	name string
	stop func(context.Context) error
}

// New validates cfg, applying its defaults, and wires the host. Nothing is started.
func New(cfg *Config, opts ...Option) (*Host, error) {
	if err := viewhost.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	h := &Host{cfg: cfg, logger: nopLogger{}, registry: registry.NewMemoryRegistry(registry.WithReservedPaths(reservedPaths(cfg)...))}
	for _, opt := range opts {
		opt(h)
	}

	for _, def := range h.views {
		if err := h.registry.Register(def); err != nil {
			return nil, err
		}
	}

	if h.store == nil {
		store, sweeper, err := sessions.New(&cfg.Sessions, h.logger)
		if err != nil {
			return nil, err
		}
		h.store, h.sweeper = store, sweeper
	}

	filter, err := security.NewFilter(&cfg.Security, h.logger)
	if err != nil {
		return nil, err
	}
	h.filter = filter

	h.events = viewhost.NewEventEmitter(h.logger)
	if err := h.events.RegisterObserver(viewhost.NewFunctionalObserver("host-log", h.logEvent)); err != nil {
		return nil, err
	}
	for _, o := range h.observers {
		if err := h.events.RegisterObserver(o.observer, o.eventTypes...); err != nil {
			return nil, err
		}
	}

	factory := viewhost.NewWebAppFactory(h.store, filter.Middleware, h.registry,
		viewhost.WithSessionOptions(
			viewhost.WithSessionCookie(cfg.Sessions.Cookie),
			viewhost.WithSessionMaxAge(cfg.Sessions.MaxAge),
		),
		viewhost.WithFactoryLogger(h.logger),
	)
	h.list = viewhost.NewViewHandlerList(h.registry, factory, h.logger, viewhost.WithSubject(h.events))

	h.metrics = prometheus.NewRegistry()
	if !cfg.Metrics.Disabled {
		h.metrics.MustRegister(
			viewhost.NewPrometheusCollector(h.list, cfg.Metrics.Namespace),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	h.list.AddHandler(viewhost.AdaptHandler(h.routes()))

	if cfg.Views.InstanceDir != "" {
		h.watcher = instancewatch.New(cfg.Views.InstanceDir, h.registry, h.list,
			instancewatch.WithDebounce(cfg.Views.WatchDebounce),
			instancewatch.WithLogger(h.logger),
		)
	}
	h.server = httpserver.New(&cfg.Server, h.list, h.logger)
	return h, nil
}

// reservedPaths lists the prefixes served by the host router; no instance may mount there.
func reservedPaths(cfg *Config) []string {
	paths := []string{"/api", "/healthz"}
	if !cfg.Metrics.Disabled {
		paths = append(paths, cfg.Metrics.Path)
	}
	return paths
}

func (h *Host) Registry() *registry.MemoryRegistry     { return h.registry }
func (h *Host) HandlerList() *viewhost.ViewHandlerList { return h.list }
func (h *Host) SessionStore() viewhost.SessionStore    { return h.store }
func (h *Host) Filter() *security.Filter               { return h.filter }
func (h *Host) Events() *viewhost.EventEmitter         { return h.events }
func (h *Host) Server() *httpserver.Server             { return h.server }
func (h *Host) MetricsRegistry() *prometheus.Registry  { return h.metrics }

// Handler is the root HTTP handler, the view handler list.
func (h *Host) Handler() http.Handler { return h.list }

// Start brings the host up in dependency order: session store, sweeper, handler list,
// configured instances, watcher, HTTP server. If a step fails, the steps already taken
// are undone.
func (h *Host) Start(ctx context.Context) error {
	if len(h.started) > 0 {
		return ErrAlreadyStarted
	}

	steps := []struct {
		name  string
		start func(context.Context) error
		stop  func(context.Context) error
	}{
		{"session store", h.store.Start, h.store.Stop},
		{"session sweeper", h.startSweeper, h.stopSweeper},
		{"handler list", h.list.Start, h.list.Stop},
		{"instances", h.addConfiguredInstances, nil},
		{"instance watcher", h.startWatcher, h.stopWatcher},
		{"http server", h.server.Start, h.server.Stop},
	}
	for _, step := range steps {
		if err := step.start(ctx); err != nil {
			h.logger.Error("Host failed to start", "step", step.name, "error", err)
			if stopErr := h.Stop(context.WithoutCancel(ctx)); stopErr != nil {
				h.logger.Warn("Errors while undoing a failed start", "error", stopErr)
			}
			return fmt.Errorf("starting %s: %w", step.name, err)
		}
		if step.stop != nil {
			h.started = append(h.started, stopFunc{name: step.name, stop: step.stop})
		}
	}

	h.notify(ctx, viewhost.EventTypeHostStarted, map[string]any{
		"address":   h.server.Addr().String(),
		"instances": h.list.InstanceCount(),
	})
	h.logger.Info("View host started", "address", h.server.Addr().String(), "instances", h.list.InstanceCount())
	return nil
}

// Stop undoes Start in reverse order and reports every failure.
func (h *Host) Stop(ctx context.Context) error {
	if len(h.started) == 0 {
		return nil
	}
	var errs []error
	for i := len(h.started) - 1; i >= 0; i-- {
		s := h.started[i]
		if err := s.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", s.name, err))
		}
	}
	h.started = nil

	h.notify(ctx, viewhost.EventTypeHostStopped, nil)
	h.logger.Info("View host stopped")
	return errors.Join(errs...)
}

// Run starts the host, blocks until ctx is done, then stops it within the server's
// shutdown timeout.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	timeout := h.cfg.Server.ShutdownTimeout + 5*time.Second
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return h.Stop(stopCtx)
}

func (h *Host) startSweeper(ctx context.Context) error {
	if h.sweeper == nil {
		return nil
	}
	return h.sweeper.Start(ctx)
}

func (h *Host) stopSweeper(ctx context.Context) error {
	if h.sweeper == nil {
		return nil
	}
	return h.sweeper.Stop(ctx)
}

func (h *Host) startWatcher(ctx context.Context) error {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Start(ctx)
}

func (h *Host) stopWatcher(ctx context.Context) error {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Stop(ctx)
}

// addConfiguredInstances mounts the instances listed in the views config. A descriptor
// that does not resolve fails the start; an instance that fails to start stays
// registered and is only logged.
func (h *Host) addConfiguredInstances(ctx context.Context) error {
	for _, desc := range h.cfg.Views.Instances {
		inst, err := h.registry.NewInstance(desc)
		if err != nil {
			return err
		}
		if err := h.list.AddViewInstance(ctx, inst); err != nil {
			h.logger.Warn("Configured instance did not start", "instance", inst.Key().String(), "error", err)
		}
	}
	return nil
}

func (h *Host) notify(ctx context.Context, eventType string, data map[string]any) {
	event := viewhost.NewCloudEvent(eventType, "host", data, nil)
	if err := h.events.NotifyObservers(context.WithoutCancel(ctx), event); err != nil {
		h.logger.Debug("Failed to notify observers", "event", eventType, "error", err)
	}
}

func (h *Host) logEvent(_ context.Context, event cloudevents.Event) error {
	h.logger.Debug("Event", "type", event.Type(), "id", event.ID(), "source", event.Source())
	return nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
