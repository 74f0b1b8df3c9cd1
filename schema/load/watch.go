package load

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/syssam/relgraph/schema"
)

// Registry holds the current schema version. Transactions capture the
// schema once when they begin, so a reload never affects a running one.
type Registry struct {
	current atomic.Pointer[schema.Schema]
}

// NewRegistry returns a registry holding s.
func NewRegistry(s *schema.Schema) *Registry {
	r := &Registry{}
	r.current.Store(s)
	return r
}

// Current returns the current schema.
func (r *Registry) Current() *schema.Schema { return r.current.Load() }

// Swap replaces the current schema and returns the previous one.
func (r *Registry) Swap(s *schema.Schema) *schema.Schema { return r.current.Swap(s) }

// Watcher reloads a schema file when it changes on disk.
type Watcher struct {
	path     string
	opts     []Option
	debounce time.Duration
	registry *Registry
	logger   *slog.Logger
	onReload func(*schema.Schema)

	mu    sync.Mutex
	timer *time.Timer
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period after the last change before reloading.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger of the watcher.
func WithLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) { w.logger = l }
}

// OnReload registers a callback invoked after every successful reload.
func OnReload(fn func(*schema.Schema)) WatchOption {
	return func(w *Watcher) { w.onReload = fn }
}

// WithLoadOptions sets the options used when re-parsing the file.
func WithLoadOptions(opts ...Option) WatchOption {
	return func(w *Watcher) { w.opts = append(w.opts, opts...) }
}

// NewWatcher returns a watcher updating registry from the file at path.
func NewWatcher(path string, registry *Registry, opts ...WatchOption) (*Watcher, error) {
	if path == "" || registry == nil {
		return nil, os.ErrInvalid
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		debounce: 200 * time.Millisecond,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches the schema file until ctx is done. Invalid revisions are
// logged and ignored; the registry keeps the last valid schema.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	// Watch the directory: editors often replace the file instead of writing it.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.schedule()
				continue
			}
			w.logger.Error("schema watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	s, err := File(w.path, w.opts...)
	if err != nil {
		w.logger.Warn("schema reload rejected", "path", w.path, "error", err)
		return
	}
	prev := w.registry.Swap(s)
	prevVersion := 0
	if prev != nil {
		prevVersion = prev.Version
	}
	w.logger.Info("schema reloaded", "path", w.path, "version", s.Version, "previous_version", prevVersion)
	if w.onReload != nil {
		w.onReload(s)
	}
}
