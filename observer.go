package viewhost

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Observer is notified of CloudEvents emitted by a Subject.
type Observer interface {
	// OnEvent handles one event. Observers should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID identifies the observer for registration tracking.
	ObserverID() string
}

// Subject manages observers and fans events out to them.
type Subject interface {
	// RegisterObserver subscribes observer to eventTypes, or to everything when none
	// are given.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver is idempotent.
	UnregisterObserver(observer Observer) error

	NotifyObservers(ctx context.Context, event cloudevents.Event) error
}

// Event types emitted by viewhost components.
const (
	EventTypeInstanceAdded       = "com.viewhost.instance.added"
	EventTypeInstanceRemoved     = "com.viewhost.instance.removed"
	EventTypeInstanceStartFailed = "com.viewhost.instance.start_failed"
	EventTypeDispatchFailed      = "com.viewhost.dispatch.failed"
	EventTypeHostStarted         = "com.viewhost.host.started"
	EventTypeHostStopped         = "com.viewhost.host.stopped"
)

// FunctionalObserver adapts a function to Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FunctionalObserver {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string { return f.id }

// NewCloudEvent creates a CloudEvent with a time-ordered id.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// EventEmitter is the standard Subject. Observers are invoked on their own
// goroutines; a panicking or failing observer is logged and otherwise ignored.
type EventEmitter struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	logger    Logger
	wg        sync.WaitGroup
}

// NewEventEmitter creates an emitter that logs observer failures to logger.
func NewEventEmitter(logger Logger) *EventEmitter {
	return &EventEmitter{
		observers: make(map[string]*observerRegistration),
		logger:    loggerOrNop(logger),
	}
}

func (e *EventEmitter) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	e.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

func (e *EventEmitter) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.observers, observer.ObserverID())
	return nil
}

func (e *EventEmitter) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid CloudEvent %q: %w", event.Type(), err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, reg := range e.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		e.wg.Add(1)
		go func(reg *observerRegistration) {
			defer e.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Observer panicked", "observerID", reg.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()
			if err := reg.observer.OnEvent(ctx, event); err != nil {
				e.logger.Error("Observer error", "observerID", reg.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}(reg)
	}
	return nil
}

// Wait blocks until every notification started so far has been delivered.
func (e *EventEmitter) Wait() {
	e.wg.Wait()
}

// emit sends an event through subject when one is configured.
func emit(ctx context.Context, subject Subject, logger Logger, eventType, source string, data any) {
	if subject == nil {
		return
	}
	if err := subject.NotifyObservers(context.WithoutCancel(ctx), NewCloudEvent(eventType, source, data, nil)); err != nil {
		logger.Debug("Failed to emit event", "eventType", eventType, "error", err)
	}
}
