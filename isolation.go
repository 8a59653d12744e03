package viewhost

import (
	"context"
	"io/fs"
	"os"
	"sync"
)

// IsolationUnit is the resolution boundary of a view: its own resources and its own
// services, independent of the host and of other views.
//
// A unit is activated per request by attaching it to the request context; it is never
// installed in process-wide state, so concurrent requests for different views cannot
// observe each other's unit.
type IsolationUnit interface {
	fs.FS

	// ID identifies the unit in logs.
	ID() string

	// Lookup resolves a view-private service by name.
	Lookup(name string) (any, bool)
}

// ScopeListener is implemented by units that want to observe activation windows.
type ScopeListener interface {
	Activated(ctx context.Context)
	Deactivated(ctx context.Context)
}

// ArchiveUnit is an IsolationUnit over an unpacked view archive directory.
type ArchiveUnit struct {
	fs.FS
	id       string
	mu       sync.RWMutex
	services map[string]any
}

// NewArchiveUnit creates a unit rooted at dir.
func NewArchiveUnit(id, dir string) *ArchiveUnit {
	return NewFSUnit(id, os.DirFS(dir))
}

// NewFSUnit creates a unit over an arbitrary file system.
func NewFSUnit(id string, fsys fs.FS) *ArchiveUnit {
	return &ArchiveUnit{FS: fsys, id: id, services: make(map[string]any)}
}

func (u *ArchiveUnit) ID() string { return u.id }

// Provide registers a view-private service.
func (u *ArchiveUnit) Provide(name string, service any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.services[name] = service
}

func (u *ArchiveUnit) Lookup(name string) (any, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	svc, ok := u.services[name]
	return svc, ok
}

type isolationUnitKey struct{}

// IsolationUnitFromContext returns the unit active for ctx, if any.
func IsolationUnitFromContext(ctx context.Context) (IsolationUnit, bool) {
	u, ok := ctx.Value(isolationUnitKey{}).(IsolationUnit)
	return u, ok
}

// EnterIsolationUnit activates unit for the returned context. The restore function
// deactivates it and is safe to call more than once; only the first call has effect.
// Callers defer restore immediately so it also runs while a panic unwinds:
//
//	ctx, restore := viewhost.EnterIsolationUnit(ctx, unit)
//	defer restore()
func EnterIsolationUnit(ctx context.Context, unit IsolationUnit) (context.Context, func()) {
	if unit == nil {
		return ctx, func() {}
	}

	scoped := context.WithValue(ctx, isolationUnitKey{}, unit)
	listener, _ := unit.(ScopeListener)
	if listener != nil {
		listener.Activated(scoped)
	}

	var once sync.Once
	return scoped, func() {
		once.Do(func() {
			if listener != nil {
				listener.Deactivated(ctx)
			}
		})
	}
}
