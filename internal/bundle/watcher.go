package bundle

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultDebounce batches the event bursts editors and sync jobs
// produce into a single reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the handle whenever the bundle files change on disk.
type Watcher struct {
	dir      string
	handle   *Handle
	logger   *zap.Logger
	debounce time.Duration

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates a watcher for the given bundle directory. A
// non-positive debounce falls back to DefaultDebounce.
func NewWatcher(dir string, handle *Handle, logger *zap.Logger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		handle:   handle,
		logger:   logger,
		debounce: debounce,
	}
}

// Start begins watching. Reloads happen on a background goroutine
// until Stop is called.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "bundle: start watcher")
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return eris.Wrapf(err, "bundle: watch %s", w.dir)
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	go w.loop()
	w.logger.Info("Watching bundle directory", zap.String("dir", w.dir))
	return nil
}

// Stop ends watching. Safe to call when Start never ran.
func (w *Watcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevantEvent(ev) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Bundle watcher error", zap.Error(err))
		case <-timer.C:
			w.reload()
		case <-w.done:
			return
		}
	}
}

func relevantEvent(ev fsnotify.Event) bool {
	name := filepath.Base(ev.Name)
	if name != RulesFile && name != ModelFile {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	previous := w.handle.Bundle().Version
	b, err := Reload(w.dir, w.handle)
	if err != nil {
		w.logger.Error("Bundle reload failed, keeping active bundle",
			zap.String("dir", w.dir),
			zap.String("active", previous),
			zap.Error(err))
		return
	}
	w.logger.Info("Bundle reloaded",
		zap.String("previous", previous),
		zap.String("version", b.Version),
		zap.Bool("degraded", b.Degraded()))
}
