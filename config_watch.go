package server

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads the server configuration when its file changes and
// hands the result to a callback. Only navigation tunables can be applied
// at runtime; transport settings require a restart.
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(ServerConfig)
	onError  func(error)
	closeCh  chan struct{}
	once     sync.Once
}

// WatchConfig watches the directory containing path and invokes onReload
// with the freshly parsed configuration after each write. Reload errors go
// to onError, which may be nil.
func WatchConfig(path string, onReload func(ServerConfig), onError func(error)) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory rather than the file: editors replace files on
	// save, which drops a watch registered on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		path:     filepath.Clean(path),
		watcher:  w,
		onReload: onReload,
		onError:  onError,
		closeCh:  make(chan struct{}),
	}
	go cw.run()
	return cw, nil
}

// Close stops the watcher. Safe to call more than once.
func (cw *ConfigWatcher) Close() error {
	var err error
	cw.once.Do(func() {
		close(cw.closeCh)
		err = cw.watcher.Close()
	})
	return err
}

func (cw *ConfigWatcher) run() {
	var lastReload time.Time
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			now := time.Now()
			if now.Sub(lastReload) < 100*time.Millisecond {
				continue
			}
			lastReload = now
			cfg, err := LoadConfig(cw.path)
			if err != nil {
				if cw.onError != nil {
					cw.onError(err)
				}
				continue
			}
			if cw.onReload != nil {
				cw.onReload(cfg)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			if cw.onError != nil {
				cw.onError(err)
			}
		case <-cw.closeCh:
			return
		}
	}
}
