package viewhost

import (
	"context"
	"net/http"
	"sync/atomic"
)

// Handler is a request handler with a start/stop lifecycle, such as the web
// application serving one view instance.
//
// A handler signals that it claimed a request by writing a response. Handlers that
// leave the response untouched let the request continue down the list.
type Handler interface {
	http.Handler
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsStarted() bool
}

// LifecycleState is the running state of a handler list.
type LifecycleState int32

const (
	StateConstructing LifecycleState = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s LifecycleState) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) State() LifecycleState {
	return LifecycleState(l.state.Load())
}

func (l *lifecycle) setState(s LifecycleState) {
	l.state.Store(int32(s))
}

// IsRunning reports whether handlers added now are started immediately.
func (l *lifecycle) IsRunning() bool {
	return l.State() == StateRunning
}

// HandlerAdapter turns a plain http.Handler into a Handler with a trivial lifecycle.
type HandlerAdapter struct {
	http.Handler
	started atomic.Bool
}

// AdaptHandler wraps h.
func AdaptHandler(h http.Handler) *HandlerAdapter {
	return &HandlerAdapter{Handler: h}
}

func (a *HandlerAdapter) Start(context.Context) error {
	a.started.Store(true)
	return nil
}

func (a *HandlerAdapter) Stop(context.Context) error {
	a.started.Store(false)
	return nil
}

func (a *HandlerAdapter) IsStarted() bool { return a.started.Load() }
