package runtime

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/pkg/plugin"
)

// DefaultDebounce is how long the watcher waits after the last relevant
// filesystem event before triggering a reload. Editors and scaffolders
// touch descriptor files in bursts.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the plugin tree for descriptor changes and calls the
// reload callback after a quiet period. It watches every directory under
// the root because fsnotify watches are not recursive.
type Watcher struct {
	root     string
	reload   func() error
	debounce time.Duration

	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher over the plugin root. The reload callback
// runs on the watcher goroutine.
func NewWatcher(root string, reload func() error) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		reload:   reload,
		debounce: DefaultDebounce,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// addRecursive registers a watch on dir and every directory below it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Start launches the watch loop.
func (w *Watcher) Start() {
	go w.loop()
	logger.Info("Watching plugin tree for changes", "root", w.root)
}

// Stop terminates the watch loop and waits for it to exit. Safe to call
// more than once.
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
		// Already stopping
	default:
		close(w.stopCh)
	}
	w.fsw.Close()
	<-w.stopped
}

func (w *Watcher) loop() {
	defer close(w.stopped)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug("Plugin tree changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Plugin tree watch error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.reload(); err != nil {
				logger.Error("Plugin reload after tree change failed", "error", err)
			}
		}
	}
}

// relevant filters the event stream down to changes that can alter the
// catalog: descriptor file writes and directory create/remove/rename. A
// newly created plugin directory is also added to the watch set so its
// descriptor is seen when it lands.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				logger.Warn("Failed to watch new plugin directory", "path", event.Name, "error", err)
			}
			return true
		}
	}
	if filepath.Base(event.Name) == plugin.DescriptorFileName {
		return event.Op&fsnotify.Write == fsnotify.Write ||
			event.Op&fsnotify.Create == fsnotify.Create ||
			event.Op&fsnotify.Remove == fsnotify.Remove ||
			event.Op&fsnotify.Rename == fsnotify.Rename
	}
	return event.Op&fsnotify.Remove == fsnotify.Remove ||
		event.Op&fsnotify.Rename == fsnotify.Rename
}
