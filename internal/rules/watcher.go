package rules

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/logger"
)

// Watcher reloads rule documents when their files change. Reload callbacks
// are expected to rebuild their rule set and swap it atomically, so readers
// never observe a partially-applied document.
type Watcher struct {
	watcher   *fsnotify.Watcher
	logger    *logger.Logger
	mu        sync.Mutex
	callbacks map[string]func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher creates a rule-document watcher.
func NewWatcher(log *logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:   fsw,
		logger:    log,
		callbacks: make(map[string]func()),
		done:      make(chan struct{}),
	}, nil
}

// Add registers a reload callback for a rules file. An empty path is
// ignored so unconfigured documents do not need special handling.
func (w *Watcher) Add(path string, reload func()) error {
	if path == "" {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.callbacks[abs] = reload
	w.mu.Unlock()

	// Watch the directory: editors replace files on save, which drops
	// a direct file watch.
	return w.watcher.Add(filepath.Dir(abs))
}

// Run processes filesystem events until Close is called.
func (w *Watcher) Run() {
	// Debounce per path: a single save can emit several events.
	pending := make(map[string]*time.Timer)
	var pendingMu sync.Mutex

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			w.mu.Lock()
			reload, watched := w.callbacks[abs]
			w.mu.Unlock()
			if !watched {
				continue
			}

			pendingMu.Lock()
			if t, exists := pending[abs]; exists {
				t.Stop()
			}
			pending[abs] = time.AfterFunc(250*time.Millisecond, func() {
				w.logger.Info("Rules file changed, reloading", zap.String("path", abs))
				reload()
				pendingMu.Lock()
				delete(pending, abs)
				pendingMu.Unlock()
			})
			pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Rules watcher error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.watcher.Close()
}
