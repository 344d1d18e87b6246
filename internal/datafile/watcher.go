package datafile

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the change file and notifies subscribers when the
// worker rewrites it. Events are debounced because the worker may issue
// several writes per rewrite. The parent directory is watched rather
// than the file itself: the file may not exist yet, and some producers
// replace it atomically.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewWatcher(path string, debounce time.Duration, logger *slog.Logger) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     path,
		debounce: debounce,
		logger:   logger,
		subs:     make(map[int]chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe returns a channel that receives a token after each debounced
// change, and an unsubscribe function. The channel is never closed by
// the watcher; slow subscribers miss notifications instead of blocking
// the watch loop.
func (w *Watcher) Subscribe() (<-chan struct{}, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	ch := make(chan struct{}, 1)
	w.subs[id] = ch

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, id)
	}
}

// Done is closed when the watcher stops; long-lived consumers such as
// event streams use it to terminate with the server.
func (w *Watcher) Done() <-chan struct{} {
	return w.ctx.Done()
}

// Start begins watching the change file's directory.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	dir := filepath.Dir(w.path)
	if addErr := watcher.Add(dir); addErr != nil {
		watcher.Close()
		return addErr
	}

	w.logger.Info("change file watcher started", "path", w.path, "debounce", w.debounce.String())
	go w.watch()
	return nil
}

// Stop stops watching and cleans up resources.
func (w *Watcher) Stop() error {
	w.cancel()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) watch() {
	var timer *time.Timer
	var timerC <-chan time.Time

	base := filepath.Base(w.path)

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Debug("change file watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			// Write for in-place rewrites, Create/Rename for atomic
			// replacement.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("change file event", "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.broadcast()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("change file watcher error", "error", err)
		}
	}
}

func (w *Watcher) broadcast() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ch := range w.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
