// Package demoview is a small view used by the viewhost CLI and end-to-end tests. Each
// instance greets with its "greeting" property, counts visits in the shared session and
// serves files from its own archive.
package demoview

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/GoCodeAlone/viewhost"
	"github.com/go-chi/chi/v5"
)

const (
	Name    = "ECHO"
	Version = "1.0.0"
)

//go:embed static
var archive embed.FS

// ParameterSchema constrains instance properties.
const ParameterSchema = `{
  "type": "object",
  "properties": {
    "greeting": {"type": "string", "minLength": 1, "maxLength": 64},
    "failOnStart": {"enum": ["true", "false"]}
  }
}`

// View implements viewhost.View, viewhost.ResourceProvider and the instance lifecycle
// hooks.
type View struct {
	running atomic.Int32
}

// Definition returns the ECHO definition backed by the embedded archive.
func Definition() *viewhost.ViewDefinition {
	return &viewhost.ViewDefinition{
		Name:            Name,
		Version:         Version,
		Archive:         "embedded:demoview",
		Unit:            viewhost.NewFSUnit(Name+"{"+Version+"}", archive),
		View:            &View{},
		ParameterSchema: ParameterSchema,
	}
}

// Running returns how many instances are started.
func (v *View) Running() int { return int(v.running.Load()) }

func (v *View) Routes(r chi.Router, vc *viewhost.ViewContext) {
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		unitID := ""
		if unit, ok := viewhost.IsolationUnitFromContext(req.Context()); ok {
			unitID = unit.ID()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"view":       vc.ViewName(),
			"version":    vc.ViewVersion(),
			"instance":   vc.InstanceName(),
			"unit":       unitID,
			"properties": vc.Properties(),
		})
	})

	r.Get("/greeting", func(w http.ResponseWriter, _ *http.Request) {
		greeting := vc.Property("greeting")
		if greeting == "" {
			greeting = "hello"
		}
		_, _ = w.Write([]byte(greeting + " from " + vc.InstanceName()))
	})

	r.Post("/visits", func(w http.ResponseWriter, req *http.Request) {
		sess, ok := viewhost.SessionFromContext(req.Context())
		if !ok {
			http.Error(w, "no session", http.StatusInternalServerError)
			return
		}
		key := "visits." + vc.InstanceName()
		n, _ := sess.Get(key)
		count, _ := strconv.Atoi(n)
		count++
		sess.Set(key, strconv.Itoa(count))
		writeJSON(w, http.StatusOK, map[string]int{"visits": count})
	})
}

// ServeResource serves files of the active isolation unit below the host resource API.
func (v *View) ServeResource(w http.ResponseWriter, r *http.Request, vc *viewhost.ViewContext, resourcePath string) {
	unit, ok := viewhost.IsolationUnitFromContext(r.Context())
	if !ok {
		http.Error(w, "view archive unavailable", http.StatusServiceUnavailable)
		return
	}
	if resourcePath == "info" {
		writeJSON(w, http.StatusOK, map[string]string{"instance": vc.InstanceName(), "unit": unit.ID()})
		return
	}

	data, err := fs.ReadFile(unit, resourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}

var errStartRefused = errors.New("instance configured to fail on start")

func (v *View) StartInstance(_ context.Context, vc *viewhost.ViewContext) error {
	if vc.Property("failOnStart") == "true" {
		return errStartRefused
	}
	v.running.Add(1)
	return nil
}

func (v *View) StopInstance(context.Context, *viewhost.ViewContext) error {
	v.running.Add(-1)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
