package viewhost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// greeterView is a small view used to exercise the web app handler.
type greeterView struct {
	startedIn string
	stopped   bool
	failStart error
}

func (v *greeterView) Routes(r chi.Router, vc *ViewContext) {
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		got, ok := ViewContextFromRequest(req)
		if !ok || got != vc {
			http.Error(w, "missing view context", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(vc.Property("greeting") + " from " + vc.InstanceName()))
	})
	r.Get("/unit", func(w http.ResponseWriter, req *http.Request) {
		unit, _ := IsolationUnitFromContext(req.Context())
		_, _ = w.Write([]byte(unit.ID()))
	})
	r.Post("/remember", func(w http.ResponseWriter, req *http.Request) {
		sess, _ := SessionFromContext(req.Context())
		sess.Set("who", req.URL.Query().Get("who"))
		w.WriteHeader(http.StatusNoContent)
	})
}

func (v *greeterView) StartInstance(ctx context.Context, vc *ViewContext) error {
	if v.failStart != nil {
		return v.failStart
	}
	if unit, ok := IsolationUnitFromContext(ctx); ok {
		v.startedIn = unit.ID()
	}
	return nil
}

func (v *greeterView) StopInstance(context.Context, *ViewContext) error {
	v.stopped = true
	return nil
}

func newGreeterInstance(view *greeterView, unit IsolationUnit) *ViewInstance {
	def := &ViewDefinition{Name: "GREETER", Version: "1.0", Unit: unit, View: view}
	inst := newInstance(def, "main")
	inst.Properties["greeting"] = "hello"
	return inst
}

func TestWebAppFactory_ServesViewRoutes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	view := &greeterView{}
	unit := newTrackingUnit("greeter-unit")
	inst := newGreeterInstance(view, unit)

	var filtered int
	filter := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			filtered++
			next.ServeHTTP(w, r)
		})
	}

	h, err := NewWebAppFactory(store, filter, mapRegistry{}).Create(inst, inst.Definition.Archive, inst.ContextPath)
	require.NoError(t, err)
	require.NoError(t, h.Start(ctx))
	assert.Equal(t, "greeter-unit", view.startedIn, "view startup runs inside the unit")
	assert.Equal(t, 1, store.starts)

	rec := serve(h, "/views/GREETER/1.0/main/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello from main", rec.Body.String())
	assert.Equal(t, 1, filtered)

	assert.Equal(t, "greeter-unit", serve(h, "/views/GREETER/1.0/main/unit").Body.String())

	rec = serve(h, "/views/GREETER/1.0/main/resources/static/hello.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello from greeter-unit", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/views/GREETER/1.0/main/remember?who=ada", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, store.len())
}

func TestWebAppFactory_IgnoresForeignPaths(t *testing.T) {
	t.Parallel()

	inst := newGreeterInstance(&greeterView{}, nil)
	h, err := NewWebAppFactory(newMemStore(), nil, nil).Create(inst, "", "")
	require.NoError(t, err)

	rec := serve(h, "/views/GREETER/1.0/main/")
	assert.False(t, rec.Flushed)
	assert.Empty(t, rec.Body.String(), "not started handlers never write")

	require.NoError(t, h.Start(context.Background()))
	for _, p := range []string{"/", "/views/GREETER/1.0/mainframe", "/api/v1/views/instances"} {
		rec = serve(h, p)
		assert.Empty(t, rec.Body.String(), p)
		assert.Equal(t, http.StatusOK, rec.Code, "%s must be left untouched", p)
	}
}

func TestWebAppFactory_StopKeepsSharedStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	view := &greeterView{}
	inst := newGreeterInstance(view, nil)
	h, err := NewWebAppFactory(store, nil, nil).Create(inst, "", inst.ContextPath)
	require.NoError(t, err)
	require.NoError(t, h.Start(ctx))

	require.NoError(t, h.Stop(ctx))
	assert.True(t, view.stopped)
	assert.False(t, h.IsStarted())
	assert.Equal(t, 0, store.stops)
	assert.NoError(t, h.Stop(ctx))
}

func TestWebAppFactory_StartFailure(t *testing.T) {
	t.Parallel()

	view := &greeterView{failStart: errors.New("schema mismatch")}
	inst := newGreeterInstance(view, nil)
	h, err := NewWebAppFactory(newMemStore(), nil, nil).Create(inst, "", "")
	require.NoError(t, err)

	err = h.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema mismatch")
	assert.False(t, h.IsStarted())
}

func TestWebAppFactory_CreateErrors(t *testing.T) {
	t.Parallel()

	f := NewWebAppFactory(newMemStore(), nil, nil)
	_, err := f.Create(&ViewInstance{Name: "x"}, "", "")
	assert.ErrorIs(t, err, ErrNilDefinition)

	_, err = f.Create(&ViewInstance{Name: "x", Definition: &ViewDefinition{Name: "V", Version: "1"}}, "", "")
	assert.ErrorIs(t, err, ErrNoView)

	_, err = NewWebAppFactory(nil, nil, nil).Create(newGreeterInstance(&greeterView{}, nil), "", "")
	assert.ErrorIs(t, err, ErrSessionStoreNil)
}

func TestWebAppFactory_RejectsUnroutableContextPath(t *testing.T) {
	t.Parallel()

	f := NewWebAppFactory(newMemStore(), nil, nil)
	for _, p := range []string{"/views/x/{broken", "/views/*", "/views/a b", "/views/../admin"} {
		h, err := f.Create(newGreeterInstance(&greeterView{}, nil), "", p)
		assert.ErrorIs(t, err, ErrInvalidContextPath, p)
		assert.Nil(t, h, p)
	}
}

func TestWebAppFactory_RoutePanicBecomesError(t *testing.T) {
	t.Parallel()

	broken := ViewFunc(func(r chi.Router, _ *ViewContext) {
		r.Get("/{id", func(http.ResponseWriter, *http.Request) {})
	})
	inst := newInstance(&ViewDefinition{Name: "BROKEN", Version: "1.0", View: broken}, "main")

	var h Handler
	var err error
	require.NotPanics(t, func() {
		h, err = NewWebAppFactory(newMemStore(), nil, nil).Create(inst, "", inst.ContextPath)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/views/BROKEN/1.0/main")
	assert.Nil(t, h)
}

func TestWebAppFactory_BadRoutesFailAddViewInstance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	registry := mapRegistry{}
	l := newTestList(t, registry, NewWebAppFactory(newMemStore(), nil, registry), nil)

	inst := newGreeterInstance(&greeterView{}, nil)
	inst.ContextPath = "/views/x/{broken"
	err := l.AddViewInstance(ctx, inst)

	var sysErr *SystemError
	require.ErrorAs(t, err, &sysErr)
	assert.ErrorIs(t, err, ErrInvalidContextPath)
	assert.Equal(t, 0, l.InstanceCount())

	healthy := newGreeterInstance(&greeterView{}, nil)
	require.NoError(t, l.AddViewInstance(ctx, healthy))
	assert.Equal(t, "hello from main", serve(l, "/views/GREETER/1.0/main/").Body.String())
}

func TestWebAppFactory_InsideHandlerList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	registry := mapRegistry{}
	l := newTestList(t, registry, NewWebAppFactory(store, nil, registry), nil)
	l.AddHandler(AdaptHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("host"))
	})))

	view := &greeterView{}
	inst := newGreeterInstance(view, newTrackingUnit("u"))
	require.NoError(t, l.AddViewInstance(ctx, inst))

	assert.Equal(t, "hello from main", serve(l, "/views/GREETER/1.0/main/").Body.String())
	assert.Equal(t, "host", serve(l, "/elsewhere").Body.String())

	l.RemoveViewInstance(ctx, inst)
	assert.True(t, view.stopped)
	assert.Equal(t, "host", serve(l, "/views/GREETER/1.0/main/").Body.String())
	assert.Equal(t, 0, store.stops)
}
