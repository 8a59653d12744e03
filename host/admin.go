package host

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/viewhost"
	"github.com/GoCodeAlone/viewhost/registry"
)

const instancePath = "/api/v1/views/{view}/versions/{version}/instances/{instance}"

// instanceStatus is the admin API representation of a mounted instance.
type instanceStatus struct {
	registry.InstanceDescriptor
	Started bool `json:"started"`
}

type definitionInfo struct {
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Archive         string          `json:"archive,omitempty"`
	ParameterSchema json.RawMessage `json:"parameterSchema,omitempty"`
}

// instanceRequest is the body of PUT on an instance.
type instanceRequest struct {
	ContextPath string            `json:"contextPath,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// routes builds the host handler that sits behind every view instance in the list.
func (h *Host) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/healthz", h.handleHealth)
	if !h.cfg.Metrics.Disabled {
		r.Handle(h.cfg.Metrics.Path, promhttp.HandlerFor(h.metrics, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.filter.Middleware)

		r.Get("/api/v1/views", h.listDefinitions)
		r.Get("/api/v1/views/instances", h.listInstances)
		r.Get(instancePath, h.getInstance)
		r.Put(instancePath, h.putInstance)
		r.Delete(instancePath, h.deleteInstance)

		r.Get(viewhost.ViewResourcePattern, h.serveResource)
	})
	return r
}

func (h *Host) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, code := "ok", http.StatusOK
	if !h.list.IsRunning() {
		status, code = "stopping", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "instances": h.list.InstanceCount()})
}

func (h *Host) listDefinitions(w http.ResponseWriter, _ *http.Request) {
	defs := h.registry.Definitions()
	out := make([]definitionInfo, 0, len(defs))
	for _, def := range defs {
		info := definitionInfo{Name: def.Name, Version: def.Version, Archive: def.Archive}
		if def.ParameterSchema != "" {
			info.ParameterSchema = json.RawMessage(def.ParameterSchema)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Host) listInstances(w http.ResponseWriter, _ *http.Request) {
	instances := h.list.Instances()
	out := make([]instanceStatus, 0, len(instances))
	for _, inst := range instances {
		out = append(out, h.status(inst))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Host) getInstance(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.list.Instance(instanceKey(r))
	if !ok {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, h.status(inst))
}

// putInstance adds or replaces an instance. A start failure is reported with 500 but
// the instance stays registered, as AddViewInstance leaves it.
func (h *Host) putInstance(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	key := instanceKey(r)
	inst, err := h.registry.NewInstance(registry.InstanceDescriptor{
		View:        key.View,
		Version:     key.Version,
		Name:        key.Instance,
		ContextPath: req.ContextPath,
		Properties:  req.Properties,
	})
	switch {
	case errors.Is(err, registry.ErrUnknownView):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, existed := h.list.Instance(key)
	if err := h.list.AddViewInstance(r.Context(), inst); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, h.status(inst))
}

// deleteInstance is idempotent: removing an unknown instance also answers 204.
func (h *Host) deleteInstance(w http.ResponseWriter, r *http.Request) {
	if inst, ok := h.list.Instance(instanceKey(r)); ok {
		h.list.RemoveViewInstance(r.Context(), inst)
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveResource answers view resource requests. The handler list has already entered
// the view's isolation unit for them.
func (h *Host) serveResource(w http.ResponseWriter, r *http.Request) {
	target, ok := viewhost.MatchTarget(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	inst, ok := h.list.Instance(target.InstanceKey())
	if !ok {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	provider, ok := inst.Definition.View.(viewhost.ResourceProvider)
	if !ok {
		writeError(w, http.StatusNotFound, "view has no resources")
		return
	}
	vc := viewhost.NewViewContext(inst, h.registry)
	provider.ServeResource(w, r.WithContext(viewhost.WithViewContext(r.Context(), vc)), vc, target.ResourcePath)
}

func (h *Host) status(inst *viewhost.ViewInstance) instanceStatus {
	s := instanceStatus{InstanceDescriptor: registry.Describe(inst)}
	if handler, ok := h.list.HandlerFor(inst.Key()); ok {
		s.Started = handler.IsStarted()
	}
	return s
}

func instanceKey(r *http.Request) viewhost.InstanceKey {
	return viewhost.InstanceKey{
		View:     chi.URLParam(r, "view"),
		Version:  chi.URLParam(r, "version"),
		Instance: chi.URLParam(r, "instance"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
