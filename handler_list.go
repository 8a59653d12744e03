package viewhost

import (
	"cmp"
	"context"
	"net/http"
	"slices"
)

type registration struct {
	instance *ViewInstance
	handler  Handler
}

// ViewHandlerList is a FailsafeHandlerList to which view instances can be added and
// removed at runtime. Each instance gets its own fail-safe handler built by a
// HandlerFactory; the host's own handlers are added with AddHandler and form the
// fallback path. Fallback requests addressed to a view resource run with that
// view's isolation unit active on the request context.
type ViewHandlerList struct {
	*FailsafeHandlerList
	registry ViewRegistry
	factory  HandlerFactory
	matcher  *TargetMatcher

	// handlerMap is guarded by FailsafeHandlerList.mu.
	handlerMap map[InstanceKey]*registration
}

// ListOption customises a ViewHandlerList.
type ListOption func(*ViewHandlerList)

// WithSubject emits instance and dispatch events to subject.
func WithSubject(subject Subject) ListOption {
	return func(l *ViewHandlerList) { l.SetSubject(subject) }
}

// WithTargetMatcher replaces the default resource target matcher.
func WithTargetMatcher(m *TargetMatcher) ListOption {
	return func(l *ViewHandlerList) { l.matcher = m }
}

// NewViewHandlerList creates an empty list that resolves resource targets through
// registry and builds instance handlers with factory.
func NewViewHandlerList(registry ViewRegistry, factory HandlerFactory, logger Logger, opts ...ListOption) *ViewHandlerList {
	l := &ViewHandlerList{
		FailsafeHandlerList: NewFailsafeHandlerList(logger),
		registry:            registry,
		factory:             factory,
		matcher:             defaultTargetMatcher,
		handlerMap:          make(map[InstanceKey]*registration),
	}
	l.dispatchNonFailsafe = l.handleNonFailsafe
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddViewInstance builds a handler for instance and appends it to the list. When the
// list is running the handler is started as well; if that fails the instance stays
// registered but inert and a *SystemError is returned. A previous registration of the
// same instance key is replaced and its handler stopped.
func (l *ViewHandlerList) AddViewInstance(ctx context.Context, instance *ViewInstance) error {
	if instance == nil {
		return NewSystemError("cannot add view instance", ErrNilInstance)
	}
	def := instance.Definition
	if def == nil {
		return NewSystemError("cannot add view instance "+instance.Name, ErrNilDefinition)
	}
	if l.factory == nil {
		return NewSystemError("cannot add view instance "+instance.Name, ErrNilFactory)
	}

	handler, err := l.factory.Create(instance, def.Archive, instance.ContextPath)
	if err != nil {
		return NewSystemError("failed to create handler for view instance "+instance.Key().String(), err)
	}
	if handler == nil {
		return NewSystemError("failed to create handler for view instance "+instance.Key().String(), ErrNilHandler)
	}

	key := instance.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.handlerMap[key]; ok {
		l.removeLocked(prev.handler)
		l.stopHandler(ctx, key, prev.handler)
	}
	l.handlerMap[key] = &registration{instance: instance, handler: handler}
	l.addLocked(handler, true)
	l.logger.Info("View instance added", "instance", key.String(), "contextPath", instance.ContextPath)
	emit(ctx, l.subject, l.logger, EventTypeInstanceAdded, "handlerlist", instanceEventData(instance))

	if !l.IsRunning() {
		return nil
	}
	return l.startLocked(ctx, instance, handler)
}

// StartViewInstance starts the handler of a registered instance whose earlier start
// failed. It is a no-op for started handlers.
func (l *ViewHandlerList) StartViewInstance(ctx context.Context, instance *ViewInstance) error {
	if instance == nil {
		return NewSystemError("cannot start view instance", ErrNilInstance)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	reg, ok := l.handlerMap[instance.Key()]
	if !ok || reg.handler.IsStarted() {
		return nil
	}
	if !l.IsRunning() {
		return NewSystemError("cannot start view instance "+instance.Key().String(), ErrNotRunning)
	}
	return l.startLocked(ctx, reg.instance, reg.handler)
}

func (l *ViewHandlerList) startLocked(ctx context.Context, instance *ViewInstance, handler Handler) error {
	if err := handler.Start(ctx); err != nil {
		l.logger.Error("Failed to start view instance", "instance", instance.Key().String(), "error", err)
		data := instanceEventData(instance)
		data["error"] = err.Error()
		emit(ctx, l.subject, l.logger, EventTypeInstanceStartFailed, "handlerlist", data)
		return NewSystemError("caught exception adding view instance "+instance.Key().String(), err)
	}
	return nil
}

// RemoveViewInstance removes the instance's handler from the list and stops it.
// Removing an unknown instance does nothing.
func (l *ViewHandlerList) RemoveViewInstance(ctx context.Context, instance *ViewInstance) {
	if instance == nil {
		return
	}
	key := instance.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	reg, ok := l.handlerMap[key]
	if !ok {
		return
	}
	delete(l.handlerMap, key)
	l.removeLocked(reg.handler)
	l.stopHandler(ctx, key, reg.handler)
	l.logger.Info("View instance removed", "instance", key.String())
	emit(ctx, l.subject, l.logger, EventTypeInstanceRemoved, "handlerlist", instanceEventData(reg.instance))
}

func (l *ViewHandlerList) stopHandler(ctx context.Context, key InstanceKey, h Handler) {
	if !h.IsStarted() {
		return
	}
	if err := h.Stop(ctx); err != nil {
		l.logger.Warn("Failed to stop view instance handler", "instance", key.String(), "error", err)
	}
}

// Instances returns the registered instances ordered by key.
func (l *ViewHandlerList) Instances() []*ViewInstance {
	l.mu.Lock()
	out := make([]*ViewInstance, 0, len(l.handlerMap))
	for _, reg := range l.handlerMap {
		out = append(out, reg.instance)
	}
	l.mu.Unlock()

	slices.SortFunc(out, func(a, b *ViewInstance) int {
		return cmp.Compare(a.Key().String(), b.Key().String())
	})
	return out
}

// Instance returns the registered instance for key.
func (l *ViewHandlerList) Instance(key InstanceKey) (*ViewInstance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reg, ok := l.handlerMap[key]
	if !ok {
		return nil, false
	}
	return reg.instance, true
}

// HandlerFor returns the handler registered for key.
func (l *ViewHandlerList) HandlerFor(key InstanceKey) (Handler, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reg, ok := l.handlerMap[key]
	if !ok {
		return nil, false
	}
	return reg.handler, true
}

// InstanceCount returns the number of registered instances.
func (l *ViewHandlerList) InstanceCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlerMap)
}

// handleNonFailsafe runs the fallback path, switching to the target view's isolation
// unit for view resource requests.
func (l *ViewHandlerList) handleNonFailsafe(w http.ResponseWriter, r *http.Request, handlers []Handler) {
	def := l.targetView(r.URL.Path)
	if def == nil {
		l.HandleNonFailsafe(w, r, handlers)
		return
	}

	if def.Unit == nil {
		l.logger.Warn("No isolation unit associated with view", "view", def.Key())
		l.HandleNonFailsafe(w, r, handlers)
		return
	}

	ctx, restore := EnterIsolationUnit(r.Context(), def.Unit)
	defer restore()
	l.HandleNonFailsafe(w, r.WithContext(ctx), handlers)
}

// targetView returns the view a resource request addresses, or nil.
func (l *ViewHandlerList) targetView(path string) *ViewDefinition {
	if l.registry == nil {
		return nil
	}
	target, ok := l.matcher.Match(path)
	if !ok {
		return nil
	}
	def, ok := l.registry.GetDefinition(target.ViewName, target.ViewVersion)
	if !ok {
		return nil
	}
	return def
}

func instanceEventData(instance *ViewInstance) map[string]any {
	data := map[string]any{
		"instance":    instance.Name,
		"contextPath": instance.ContextPath,
	}
	if instance.Definition != nil {
		data["view"] = instance.Definition.Name
		data["version"] = instance.Definition.Version
	}
	return data
}
