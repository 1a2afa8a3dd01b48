package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches the configuration file and invokes a callback
// after changes settle. Editors write config files with several rapid
// events (truncate, write, rename), so changes are debounced before the
// callback fires.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	onChange func()
	logger   *log.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConfigWatcher watches path and calls onChange after edits settle for
// debounce.
func NewConfigWatcher(path string, debounce time.Duration, onChange func(), logger *log.Logger) (*ConfigWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &ConfigWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
	}

	// Watch the directory, not the file: editors replace config files by
	// rename, which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.wg.Add(2)
	go w.watchEvents()
	go w.flushLoop()
	return w, nil
}

// Stop shuts the watcher down.
func (w *ConfigWatcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()
	w.wg.Wait()
}

func (w *ConfigWatcher) watchEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Config watcher error: %v", err)
		}
	}
}

func (w *ConfigWatcher) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			fire := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if fire {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if fire {
				w.logger.Printf("Config change detected: %s", w.path)
				w.onChange()
			}
		}
	}
}
