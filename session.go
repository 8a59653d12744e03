package viewhost

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionCookie is the cookie that carries the session id.
const DefaultSessionCookie = "VIEWHOST_SESSIONID"

// Session is a user session. A *Session obtained from a request context is private
// to that request; stores hand out copies.
type Session struct {
	ID           string            `json:"id"`
	Values       map[string]string `json:"values"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastAccessed time.Time         `json:"lastAccessed"`
	MaxAge       time.Duration     `json:"maxAge"`

	isNew bool
	dirty bool
}

// NewSession creates an unsaved session with a fresh id.
func NewSession(maxAge time.Duration) *Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := time.Now()
	return &Session{
		ID:           id.String(),
		Values:       make(map[string]string),
		CreatedAt:    now,
		LastAccessed: now,
		MaxAge:       maxAge,
		isNew:        true,
	}
}

// Expired reports whether the session has been idle longer than MaxAge.
func (s *Session) Expired(now time.Time) bool {
	return s.MaxAge > 0 && now.Sub(s.LastAccessed) > s.MaxAge
}

func (s *Session) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[key] = value
	s.dirty = true
}

func (s *Session) Delete(key string) {
	if _, ok := s.Values[key]; ok {
		delete(s.Values, key)
		s.dirty = true
	}
}

// IsNew reports whether the session was created during the current request.
func (s *Session) IsNew() bool { return s.isNew }

// Clone returns a deep copy without request-local state.
func (s *Session) Clone() *Session {
	return &Session{
		ID:           s.ID,
		Values:       maps.Clone(s.Values),
		CreatedAt:    s.CreatedAt,
		LastAccessed: s.LastAccessed,
		MaxAge:       s.MaxAge,
	}
}

// SessionStore is the process-wide session storage shared by the host and all views.
// Start must be idempotent: every view's session handler starts it.
type SessionStore interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type sessionKey struct{}

// SessionFromContext returns the session attached by a SessionHandler.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}

// SessionOption customises a SessionHandler.
type SessionOption func(*SessionHandler)

func WithSessionCookie(name string) SessionOption {
	return func(h *SessionHandler) { h.cookieName = name }
}

func WithSessionMaxAge(d time.Duration) SessionOption {
	return func(h *SessionHandler) { h.maxAge = d }
}

func WithSessionLogger(l Logger) SessionOption {
	return func(h *SessionHandler) { h.logger = loggerOrNop(l) }
}

// SessionHandler attaches sessions from a SessionStore to requests.
type SessionHandler struct {
	store      SessionStore
	cookieName string
	maxAge     time.Duration
	logger     Logger
}

// NewSessionHandler creates a handler that owns the lifecycle of store.
func NewSessionHandler(store SessionStore, opts ...SessionOption) *SessionHandler {
	h := &SessionHandler{
		store:      store,
		cookieName: DefaultSessionCookie,
		maxAge:     30 * time.Minute,
		logger:     nopLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Store returns the underlying store.
func (h *SessionHandler) Store() SessionStore { return h.store }

func (h *SessionHandler) Start(ctx context.Context) error {
	if h.store == nil {
		return ErrSessionStoreNil
	}
	return h.store.Start(ctx)
}

func (h *SessionHandler) Stop(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	return h.store.Stop(ctx)
}

// Wrap returns middleware that loads the request's session before next runs and
// persists it afterwards. A new session is only saved, and its cookie only issued,
// once a value has been set on it.
func (h *SessionHandler) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := h.load(ctx, r)

		sw := &sessionResponseWriter{ResponseWriter: w, handler: h, session: sess, path: "/"}
		next.ServeHTTP(sw, r.WithContext(context.WithValue(ctx, sessionKey{}, sess)))
		sw.issueCookie()

		if sess.isNew && !sess.dirty {
			return
		}
		sess.LastAccessed = time.Now()
		if err := h.store.Save(ctx, sess.Clone()); err != nil {
			h.logger.Error("Failed to save session", "session", sess.ID, "error", err)
		}
	})
}

func (h *SessionHandler) load(ctx context.Context, r *http.Request) *Session {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		return NewSession(h.maxAge)
	}

	sess, err := h.store.Get(ctx, cookie.Value)
	switch {
	case err == nil && !sess.Expired(time.Now()):
		return sess
	case err == nil, errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
		h.logger.Debug("Session not usable, starting a new one", "session", cookie.Value)
	default:
		h.logger.Warn("Failed to load session", "session", cookie.Value, "error", err)
	}
	return NewSession(h.maxAge)
}

type sessionResponseWriter struct {
	http.ResponseWriter
	handler *SessionHandler
	session *Session
	path    string
	issued  bool
}

func (w *sessionResponseWriter) issueCookie() {
	if w.issued || !w.session.isNew || !w.session.dirty {
		return
	}
	w.issued = true
	http.SetCookie(w.ResponseWriter, &http.Cookie{
		Name:     w.handler.cookieName,
		Value:    w.session.ID,
		Path:     w.path,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (w *sessionResponseWriter) WriteHeader(code int) {
	w.issueCookie()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionResponseWriter) Write(b []byte) (int, error) {
	w.issueCookie()
	return w.ResponseWriter.Write(b)
}

// SharedSessionHandler is a SessionHandler over a store owned by someone else.
// Stop does not stop the store: other views and the host still depend on it.
type SharedSessionHandler struct {
	*SessionHandler
}

// NewSharedSessionHandler wraps the shared store.
func NewSharedSessionHandler(store SessionStore, opts ...SessionOption) *SharedSessionHandler {
	return &SharedSessionHandler{SessionHandler: NewSessionHandler(store, opts...)}
}

// Stop is a no-op.
func (h *SharedSessionHandler) Stop(context.Context) error {
	return nil
}
