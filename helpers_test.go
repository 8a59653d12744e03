package viewhost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"
)

// logEntry is one captured log call.
type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }

func (l *recordingLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

// stubHandler is a Handler whose behaviour is a plain function.
type stubHandler struct {
	name     string
	serve    func(w http.ResponseWriter, r *http.Request)
	startErr error
	started  atomic.Bool
	starts   atomic.Int32
	stops    atomic.Int32
	hits     atomic.Int32
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.hits.Add(1)
	if h.serve != nil {
		h.serve(w, r)
	}
}

func (h *stubHandler) Start(context.Context) error {
	h.starts.Add(1)
	if h.startErr != nil {
		return h.startErr
	}
	h.started.Store(true)
	return nil
}

func (h *stubHandler) Stop(context.Context) error {
	h.stops.Add(1)
	h.started.Store(false)
	return nil
}

func (h *stubHandler) IsStarted() bool { return h.started.Load() }

func replying(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func panicking(msg string) func(http.ResponseWriter, *http.Request) {
	return func(http.ResponseWriter, *http.Request) { panic(msg) }
}

// stubFactory hands out stubHandlers and remembers them per instance key.
type stubFactory struct {
	mu       sync.Mutex
	created  map[InstanceKey]*stubHandler
	startErr error
	err      error
	serve    func(instance *ViewInstance) func(http.ResponseWriter, *http.Request)
}

func newStubFactory() *stubFactory {
	return &stubFactory{created: make(map[InstanceKey]*stubHandler)}
}

func (f *stubFactory) Create(instance *ViewInstance, _, _ string) (Handler, error) {
	if f.err != nil {
		return nil, f.err
	}
	h := &stubHandler{name: instance.Key().String(), startErr: f.startErr}
	if f.serve != nil {
		h.serve = f.serve(instance)
	}
	f.mu.Lock()
	f.created[instance.Key()] = h
	f.mu.Unlock()
	return h, nil
}

func (f *stubFactory) handler(key InstanceKey) *stubHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[key]
}

// mapRegistry is a fixed ViewRegistry.
type mapRegistry map[string]*ViewDefinition

func (m mapRegistry) GetDefinition(name, version string) (*ViewDefinition, bool) {
	def, ok := m[name+"{"+version+"}"]
	return def, ok
}

func (m mapRegistry) add(def *ViewDefinition) mapRegistry {
	m[def.Key()] = def
	return m
}

// trackingUnit is an IsolationUnit that counts activations.
type trackingUnit struct {
	*ArchiveUnit
	activated   atomic.Int32
	deactivated atomic.Int32
}

func newTrackingUnit(id string) *trackingUnit {
	return &trackingUnit{ArchiveUnit: NewFSUnit(id, fstest.MapFS{
		"static/hello.txt": &fstest.MapFile{Data: []byte("hello from " + id)},
	})}
}

func (u *trackingUnit) Activated(context.Context)   { u.activated.Add(1) }
func (u *trackingUnit) Deactivated(context.Context) { u.deactivated.Add(1) }

func newDefinition(name, version string, unit IsolationUnit) *ViewDefinition {
	return &ViewDefinition{
		Name:    name,
		Version: version,
		Archive: fmt.Sprintf("/var/lib/viewhost/views/%s-%s", name, version),
		Unit:    unit,
		View:    ViewFunc(func(chi.Router, *ViewContext) {}),
	}
}

func newInstance(def *ViewDefinition, name string) *ViewInstance {
	return &ViewInstance{
		Name:        name,
		Definition:  def,
		ContextPath: DefaultContextPath(def.Name, def.Version, name),
		Properties:  map[string]string{},
	}
}

// memStore is an in-package SessionStore double.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	running  bool
	starts   int
	stops    int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*Session)}
}

func (s *memStore) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.running = true
	return nil
}

func (s *memStore) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.running = false
	return nil
}

var errStoreStopped = errors.New("store stopped")

func (s *memStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, errStoreStopped
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *memStore) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return errStoreStopped
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
