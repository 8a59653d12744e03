// Package viewhost hosts independently packaged, versioned view modules inside a
// single HTTP server process.
//
// Every mounted view instance is served by its own Handler. A ViewHandlerList walks
// those handlers in registration order for each request, contains faults raised by
// any single handler, and falls back to the host's default handlers when no view
// claims the request. Requests addressed to a view resource are dispatched with the
// view's IsolationUnit active on the request context, and all views share one
// SessionStore that only the host may shut down.
//
// Basic usage:
//
//	list := viewhost.NewViewHandlerList(registry, viewhost.NewWebAppFactory(store, filter, registry), logger)
//	list.AddHandler(adminRouter)
//	if err := list.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	_ = list.AddViewInstance(ctx, instance)
//	http.ListenAndServe(":8080", list)
package viewhost

// Logger defines the structured logging interface used throughout viewhost.
// Arguments are alternating key-value pairs, which makes *slog.Logger a drop-in
// implementation:
//
//	logger.Info("View instance added", "view", "hive", "instance", "main")
type Logger interface {
	// Info logs routine lifecycle events such as instance registration.
	Info(msg string, args ...any)

	// Error logs failures that were contained, e.g. a view handler panicking.
	Error(msg string, args ...any)

	// Warn logs unusual but non-fatal conditions, e.g. a view without an isolation unit.
	Warn(msg string, args ...any)

	// Debug logs per-request diagnostics.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
