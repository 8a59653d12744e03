package viewhost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
)

type handlerEntry struct {
	handler  Handler
	failsafe bool
}

// NonFailsafeDispatch processes a request with the non-fail-safe handlers once every
// fail-safe handler has declined or failed.
type NonFailsafeDispatch func(w http.ResponseWriter, r *http.Request, handlers []Handler)

// FailsafeHandlerList is an ordered handler list in which a subset of handlers are
// fail-safe: a fail-safe handler that panics is logged and skipped, and its partial
// response is discarded, so the request continues with the next handler. Handlers are
// tried in registration order; the first one that writes a response wins, whatever its
// status. A view answering 503 is answering, not failing.
//
// Fail-safe attempts are buffered in memory until the handler returns, so Flush has no
// effect inside them: server-sent events and large streamed downloads cannot be served
// by a fail-safe handler. Register such handlers with AddHandler instead.
//
// Mutations are serialised by a mutex and publish a new immutable snapshot, so a
// request walks the list as it was when the request arrived and is never blocked by
// concurrent registration.
type FailsafeHandlerList struct {
	lifecycle
	mu       sync.Mutex
	handlers atomic.Pointer[[]handlerEntry]
	logger   Logger
	stats    DispatchStats
	subject  Subject

	// dispatchNonFailsafe is the fallback path; it defaults to HandleNonFailsafe.
	dispatchNonFailsafe NonFailsafeDispatch
}

// NewFailsafeHandlerList creates an empty, not yet running list.
func NewFailsafeHandlerList(logger Logger) *FailsafeHandlerList {
	l := &FailsafeHandlerList{logger: loggerOrNop(logger)}
	l.handlers.Store(&[]handlerEntry{})
	l.dispatchNonFailsafe = l.HandleNonFailsafe
	return l
}

// SetSubject sets the subject dispatch events are emitted to.
func (l *FailsafeHandlerList) SetSubject(subject Subject) {
	l.subject = subject
}

// AddHandler appends a non-fail-safe handler.
func (l *FailsafeHandlerList) AddHandler(h Handler) {
	l.add(h, false)
}

// AddFailsafeHandler appends a fail-safe handler.
func (l *FailsafeHandlerList) AddFailsafeHandler(h Handler) {
	l.add(h, true)
}

func (l *FailsafeHandlerList) add(h Handler, failsafe bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addLocked(h, failsafe)
}

func (l *FailsafeHandlerList) addLocked(h Handler, failsafe bool) {
	current := *l.handlers.Load()
	next := make([]handlerEntry, len(current), len(current)+1)
	copy(next, current)
	next = append(next, handlerEntry{handler: h, failsafe: failsafe})
	l.handlers.Store(&next)
}

// RemoveHandler removes h and reports whether it was present.
func (l *FailsafeHandlerList) RemoveHandler(h Handler) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(h)
}

func (l *FailsafeHandlerList) removeLocked(h Handler) bool {
	current := *l.handlers.Load()
	idx := slices.IndexFunc(current, func(e handlerEntry) bool { return e.handler == h })
	if idx < 0 {
		return false
	}
	next := make([]handlerEntry, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	l.handlers.Store(&next)
	return true
}

// Handlers returns the current handlers in dispatch order.
func (l *FailsafeHandlerList) Handlers() []Handler {
	entries := *l.handlers.Load()
	out := make([]Handler, len(entries))
	for i, e := range entries {
		out[i] = e.handler
	}
	return out
}

// IsFailsafe reports whether h is registered as a fail-safe handler.
func (l *FailsafeHandlerList) IsFailsafe(h Handler) bool {
	for _, e := range *l.handlers.Load() {
		if e.handler == h {
			return e.failsafe
		}
	}
	return false
}

// Stats returns the dispatch counters.
func (l *FailsafeHandlerList) Stats() DispatchSnapshot {
	return l.stats.Snapshot()
}

// Start starts every handler and marks the list running. A fail-safe handler that
// fails to start is logged and left registered; a non-fail-safe start failure stops
// the handlers started so far and is returned.
func (l *FailsafeHandlerList) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var started []Handler
	for _, e := range *l.handlers.Load() {
		if e.handler.IsStarted() {
			continue
		}
		if err := e.handler.Start(ctx); err != nil {
			if e.failsafe {
				l.logger.Error("Fail-safe handler failed to start", "handler", fmt.Sprintf("%T", e.handler), "error", err)
				continue
			}
			for i := len(started) - 1; i >= 0; i-- {
				_ = started[i].Stop(ctx)
			}
			l.setState(StateStopped)
			return fmt.Errorf("starting handler %T: %w", e.handler, err)
		}
		started = append(started, e.handler)
	}

	l.setState(StateRunning)
	l.logger.Info("Handler list started", "handlers", len(*l.handlers.Load()))
	return nil
}

// Stop stops every started handler in reverse order and joins their errors.
func (l *FailsafeHandlerList) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setState(StateStopping)
	entries := *l.handlers.Load()
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		h := entries[i].handler
		if !h.IsStarted() {
			continue
		}
		if err := h.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping handler %T: %w", h, err))
		}
	}
	l.setState(StateStopped)
	l.logger.Info("Handler list stopped", "handlers", len(entries))
	return errors.Join(errs...)
}

// ServeHTTP dispatches r: fail-safe handlers first, in order, each inside a fault
// boundary; then, if none claimed the request, the non-fail-safe handlers.
func (l *FailsafeHandlerList) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.stats.requests.Add(1)
	if !l.IsRunning() {
		l.stats.unavailable.Add(1)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	entries := *l.handlers.Load()
	var nonFailsafe []Handler
	for _, e := range entries {
		if !e.failsafe {
			nonFailsafe = append(nonFailsafe, e.handler)
			continue
		}
		if l.tryFailsafe(e.handler, w, r) {
			l.stats.handled.Add(1)
			return
		}
	}

	l.stats.fallbacks.Add(1)
	tw := &trackingResponseWriter{ResponseWriter: w}
	l.dispatchNonFailsafe(tw, r, nonFailsafe)
	if !tw.written {
		l.stats.notFound.Add(1)
		http.NotFound(w, r)
	}
}

// tryFailsafe runs one fail-safe attempt and reports whether it handled the request.
func (l *FailsafeHandlerList) tryFailsafe(h Handler, w http.ResponseWriter, r *http.Request) (handled bool) {
	buf := newFailsafeResponse()

	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			handled = false
			l.recordFailure(r, h, fmt.Sprintf("panic: %v", rec))
		}
	}()

	h.ServeHTTP(buf, r)

	if !buf.handled() {
		return false
	}
	if err := buf.commit(w); err != nil {
		l.logger.Debug("Failed to write response", "path", r.URL.Path, "error", err)
	}
	return true
}

func (l *FailsafeHandlerList) recordFailure(r *http.Request, h Handler, reason string) {
	l.stats.failures.Add(1)
	name := fmt.Sprintf("%T", h)
	if n, ok := h.(interface{ Name() string }); ok {
		name = n.Name()
	}
	l.logger.Warn("Fail-safe handler failed", "handler", name, "path", r.URL.Path, "reason", reason)
	emit(r.Context(), l.subject, l.logger, EventTypeDispatchFailed, "handlerlist", map[string]any{
		"handler": name,
		"path":    r.URL.Path,
		"reason":  reason,
	})
}

// HandleNonFailsafe walks handlers until one writes a response. Faults are not
// contained here.
func (l *FailsafeHandlerList) HandleNonFailsafe(w http.ResponseWriter, r *http.Request, handlers []Handler) {
	tw, ok := w.(*trackingResponseWriter)
	if !ok {
		tw = &trackingResponseWriter{ResponseWriter: w}
	}
	for _, h := range handlers {
		h.ServeHTTP(tw, r)
		if tw.written {
			return
		}
	}
}
