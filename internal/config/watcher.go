package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"deepresearch/internal/logging"
)

// Watcher hot-reloads the config file. Only the tunable subset (scoring
// defaults, batch options, cache TTLs) should be applied by the callback;
// a changed database path cannot take effect without a restart and is
// reported once per reload.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	current     *Config
	onChange    func(*Config)
	debounceDur time.Duration
	pending     *time.Timer
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher for the given config file. onChange runs on
// every successful reload with the new configuration.
func NewWatcher(path string, current *Config, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		path:        path,
		current:     current,
		onChange:    onChange,
		debounceDur: 500 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watch loop exits when ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory, not the file: editors replace files on save and
	// a file watch dies with the old inode.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		logging.Config().Warnf("config watch failed for %s: %v", dir, err)
	}

	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	_ = w.watcher.Close()
	<-w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Config().Warnf("config watcher error: %v", err)
		}
	}
}

// scheduleReload debounces rapid successive saves into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceDur, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.Config().Warnf("config reload rejected, keeping previous: %v", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = cfg
	w.mu.Unlock()

	if prev != nil && prev.Database.Path != cfg.Database.Path {
		logging.Config().Warnf("database.path changed (%s -> %s); restart required, keeping current store",
			prev.Database.Path, cfg.Database.Path)
		cfg.Database.Path = prev.Database.Path
	}

	logging.Config().Infof("config reloaded from %s", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
