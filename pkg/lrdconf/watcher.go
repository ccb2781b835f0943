package lrdconf

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sammck-go/logger"
)

// Watcher watches a config file for changes and delivers each reloaded
// Config to a callback. Events are debounced so editors that write
// files in several steps trigger one reload.
type Watcher struct {
	logger.Logger

	path     string
	debounce time.Duration
	onReload func(*Config)

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stop     chan struct{}
}

// NewWatcher starts watching path and calls onReload with each
// successfully reloaded Config. The caller applies what it wants from
// the reloaded values (typically Config.Apply onto a running bridge).
func NewWatcher(lg logger.Logger, path string, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		Logger:   lg.ForkLogStr("<ConfigWatcher " + path + ">"),
		path:     path,
		debounce: 100 * time.Millisecond,
		onReload: onReload,
		watcher:  fsw,
		stop:     make(chan struct{}),
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var timer *time.Timer
	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.DLogf("watch error: %s", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.DLogf("reload failed: %s", err)
		return
	}
	w.DLogf("config reloaded")
	w.onReload(cfg)
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	return w.watcher.Close()
}
