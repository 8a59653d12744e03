// Package instancewatch keeps a view handler list in step with a directory of YAML
// instance descriptors. Creating or editing a descriptor adds (or replaces) the instance;
// deleting or renaming it away removes the instance.
//
// A file only removes the registration it made. If the instance key has since been
// replaced by someone else, such as the admin API, deleting the file leaves the newer
// registration alone. If two files declare the same key, the one written last is
// registered; deleting it hands the key back to the remaining file.
package instancewatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/viewhost"
	"github.com/GoCodeAlone/viewhost/registry"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotDirectory    = errors.New("instance directory is not a directory")
	ErrAlreadyWatching = errors.New("watcher already started")
)

// InstanceManager is the administrative side of a viewhost.ViewHandlerList.
type InstanceManager interface {
	AddViewInstance(ctx context.Context, instance *viewhost.ViewInstance) error
	RemoveViewInstance(ctx context.Context, instance *viewhost.ViewInstance)
	Instance(key viewhost.InstanceKey) (*viewhost.ViewInstance, bool)
}

// InstanceBuilder resolves a descriptor into an instance, usually a registry.MemoryRegistry.
type InstanceBuilder interface {
	NewInstance(desc registry.InstanceDescriptor) (*viewhost.ViewInstance, error)
}

type Option func(*Watcher)

// WithDebounce sets how long a descriptor must stay unchanged before it is applied.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func WithLogger(l viewhost.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

type Watcher struct {
	dir      string
	builder  InstanceBuilder
	manager  InstanceManager
	logger   viewhost.Logger
	debounce time.Duration

	mu      sync.Mutex
	applied map[string]*viewhost.ViewInstance
	pending map[string]*time.Timer
	fsw     *fsnotify.Watcher
	ctx     context.Context
	done    chan struct{}
}

func New(dir string, builder InstanceBuilder, manager InstanceManager, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		builder:  builder,
		manager:  manager,
		logger:   nopLogger{},
		debounce: 100 * time.Millisecond,
		applied:  make(map[string]*viewhost.ViewInstance),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start applies every descriptor already present and then watches for changes.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("instance directory %s: %w", w.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.mu.Lock()
	if w.fsw != nil {
		w.mu.Unlock()
		_ = fsw.Close()
		return ErrAlreadyWatching
	}
	w.fsw = fsw
	w.ctx = context.WithoutCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	if err := w.Sync(ctx); err != nil {
		w.logger.Warn("Initial instance sync incomplete", "dir", w.dir, "error", err)
	}
	go w.loop(fsw, w.done)
	w.logger.Info("Watching instance descriptors", "dir", w.dir)
	return nil
}

// Stop ends the watch. Instances stay registered; the handler list owns them.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	fsw, done := w.fsw, w.done
	w.fsw = nil
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if fsw == nil {
		return nil
	}

	err := fsw.Close()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("closing file watcher: %w", err)
	}
	return nil
}

// Sync applies every descriptor in the directory and removes instances whose descriptor
// is gone. Errors for individual files are joined; the remaining files are still applied.
func (w *Watcher) Sync(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}

	present := make(map[string]bool)
	var errs []error
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.IsDir() || !isDescriptor(path) {
			continue
		}
		present[path] = true
		if err := w.apply(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}

	for _, path := range w.appliedPaths() {
		if !present[path] {
			w.remove(ctx, path)
		}
	}
	return errors.Join(errs...)
}

// Instances returns the instances currently applied from descriptors, keyed by file.
func (w *Watcher) Instances() map[string]viewhost.InstanceKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]viewhost.InstanceKey, len(w.applied))
	for path, inst := range w.applied {
		out[path] = inst.Key()
	}
	return out
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Instance watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !isDescriptor(ev.Name) {
		return
	}
	path := filepath.Clean(ev.Name)

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.schedule(path, func(ctx context.Context) {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				w.remove(ctx, path)
			}
		})
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(path, func(ctx context.Context) {
			if err := w.apply(ctx, path); err != nil {
				w.logger.Error("Failed to apply instance descriptor", "file", path, "error", err)
			}
		})
	}
}

// schedule runs fn once path has been quiet for the debounce interval.
func (w *Watcher) schedule(path string, fn func(ctx context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	ctx := w.ctx
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		stopped := w.fsw == nil
		w.mu.Unlock()
		if !stopped {
			fn(ctx)
		}
	})
}

func (w *Watcher) apply(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var desc registry.InstanceDescriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	inst, err := w.builder.NewInstance(desc)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	w.mu.Lock()
	prev := w.applied[path]
	w.applied[path] = inst
	w.mu.Unlock()

	if prev != nil && prev.Key() != inst.Key() {
		w.release(ctx, prev)
	}
	if err := w.manager.AddViewInstance(ctx, inst); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	w.logger.Info("Applied instance descriptor", "file", path, "instance", inst.Key().String())
	return nil
}

func (w *Watcher) remove(ctx context.Context, path string) {
	w.mu.Lock()
	inst, ok := w.applied[path]
	delete(w.applied, path)
	w.mu.Unlock()
	if !ok {
		return
	}
	w.release(ctx, inst)
	w.logger.Info("Removed instance descriptor", "file", path, "instance", inst.Key().String())
}

// release drops a registration made from a descriptor that no longer declares it.
func (w *Watcher) release(ctx context.Context, inst *viewhost.ViewInstance) {
	key := inst.Key()
	if current, ok := w.manager.Instance(key); ok && current != inst {
		w.logger.Debug("Instance replaced elsewhere, leaving it registered", "instance", key.String())
		return
	}
	if path, next := w.claimant(key); next != nil {
		if err := w.manager.AddViewInstance(ctx, next); err != nil {
			w.logger.Error("Failed to restore instance descriptor", "file", path, "error", err)
		}
		return
	}
	w.manager.RemoveViewInstance(ctx, inst)
}

// claimant returns the first applied descriptor, by file name, that declares key.
func (w *Watcher) claimant(key viewhost.InstanceKey) (string, *viewhost.ViewInstance) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var (
		found string
		inst  *viewhost.ViewInstance
	)
	for path, candidate := range w.applied {
		if candidate.Key() == key && (inst == nil || path < found) {
			found, inst = path, candidate
		}
	}
	return found, inst
}

func (w *Watcher) appliedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.applied))
	for path := range w.applied {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func isDescriptor(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".yaml" || ext == ".yml"
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
