package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a file through a typed loader whenever it changes and hands
// the fresh value to every registered handler. The parent directory is
// watched so editors that replace the file are seen too.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[int]func(T)
	nextID   int
	fsw      *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets how long the file must stay quiet before a reload.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler receives loader errors. Handlers are not called for a
// failed load.
func WithErrorHandler[T any](fn func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = fn
	}
}

// NewConfigWatcher creates a watcher for path.
func NewConfigWatcher[T any](path string, loader func(string) (T, error), logger *slog.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: defaultDebounce,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers fn and returns a function that removes it.
func (w *Watcher[T]) OnReload(fn func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching until ctx is done or Stop is called.
func (w *Watcher[T]) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return fmt.Errorf("watcher for %s already started", w.path)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.loop(ctx, fsw, w.done)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher[T]) Stop() error {
	w.mu.Lock()
	fsw, cancel, done := w.fsw, w.cancel, w.done
	w.fsw, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	cancel()
	<-done
	return fsw.Close()
}

func (w *Watcher[T]) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Config watcher stopped", "path", w.path)
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("Config file change detected", "path", w.path, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "path", w.path, "error", err)
		}
	}
}

// reload loads once and fans the result out.
func (w *Watcher[T]) reload() {
	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Failed to reload config", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	handlers := make([]func(T), 0, len(w.handlers))
	for id := 0; id < w.nextID; id++ {
		if fn, ok := w.handlers[id]; ok {
			handlers = append(handlers, fn)
		}
	}
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path, "handlers", len(handlers))
	for _, fn := range handlers {
		fn(value)
	}
}
