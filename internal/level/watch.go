package level

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AaronLay10/holoquest/internal/logging"
)

// DefaultDebounce groups bursts of editor writes into one reload.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a directory-backed Catalog when its level files change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	catalog  *Catalog
	log      *logging.Logger
	debounce time.Duration

	// Reloaded receives the result of every reload. Sends never block.
	Reloaded chan error

	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Watch starts watching the catalog's directory.
func Watch(c *Catalog, debounce time.Duration, log *logging.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(c.Dir()); err != nil {
		_ = w.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher := &Watcher{
		watcher:  w,
		catalog:  c,
		log:      log,
		debounce: debounce,
		Reloaded: make(chan error, 1),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !isLevelFile(event.Name) {
				continue
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			err := w.catalog.Reload()
			if err != nil {
				w.log.Warn("level.reload_failed", "level reload failed, keeping previous definitions", map[string]interface{}{
					"dir":   w.catalog.Dir(),
					"error": err,
				})
			}
			select {
			case w.Reloaded <- err:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("level.watch_error", "level watcher error", map[string]interface{}{
				"error": err,
			})
		case <-w.closeCh:
			return
		}
	}
}
