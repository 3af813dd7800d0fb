package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mcpconnect/pkg/logging"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 500 * time.Millisecond

// Operation is what happened to a definition file.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Change is a debounced change of one definition file.
type Change struct {
	ID        string
	Operation Operation
	Path      string
}

// Watcher reports changes to the definitions directory.
type Watcher struct {
	mu sync.Mutex

	dir      string
	debounce time.Duration
	onChange func(ctx context.Context, change Change)

	watcher *fsnotify.Watcher
	pending map[string]*pendingChange
	stopCh  chan struct{}
	running bool
}

type pendingChange struct {
	change Change
	timer  *time.Timer
}

// NewWatcher creates a Watcher for dir. onChange runs on a timer goroutine
// once per debounced change.
func NewWatcher(dir string, debounce time.Duration, onChange func(ctx context.Context, change Change)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		pending:  make(map[string]*pendingChange),
	}
}

// Start creates the directory if needed and begins watching it. It
// returns once the watch is established.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return err
	}

	w.watcher = fsw
	w.stopCh = make(chan struct{})
	w.running = true
	go w.processEvents(ctx, fsw, w.stopCh)

	logging.Info("Registry", "Watching %s for server definition changes", w.dir)
	return nil
}

// Stop ends the watch and drops pending changes.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	for key, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, key)
	}
	if err := w.watcher.Close(); err != nil {
		logging.Error("Registry", err, "Error closing definitions watcher")
	}
	w.watcher = nil
}

func (w *Watcher) processEvents(ctx context.Context, fsw *fsnotify.Watcher, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-stopCh:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Registry", err, "Definitions watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !isYAMLFile(event.Name) {
		return
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OperationCreate
	case event.Has(fsnotify.Write):
		op = OperationUpdate
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename shows up again as a create under the new name.
		op = OperationDelete
	default:
		return
	}

	base := filepath.Base(event.Name)
	w.schedule(ctx, Change{
		ID:        strings.TrimSuffix(base, filepath.Ext(base)),
		Operation: op,
		Path:      event.Name,
	})
}

func (w *Watcher) schedule(ctx context.Context, change Change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	key := change.Path
	if p, ok := w.pending[key]; ok {
		p.timer.Stop()
		change.Operation = mergeOperations(p.change.Operation, change.Operation)
	}

	w.pending[key] = &pendingChange{
		change: change,
		timer: time.AfterFunc(w.debounce, func() {
			w.mu.Lock()
			p, ok := w.pending[key]
			if ok {
				delete(w.pending, key)
			}
			w.mu.Unlock()

			if ok {
				logging.Debug("Registry", "Definition %s: %s", p.change.ID, p.change.Operation)
				w.onChange(ctx, p.change)
			}
		}),
	}
}

// mergeOperations folds two operations on the same file into one.
func mergeOperations(previous, next Operation) Operation {
	if next == OperationDelete {
		return OperationDelete
	}
	if previous == OperationCreate {
		return OperationCreate
	}
	return next
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Watch starts a Watcher that resyncs the store on every change.
func (s *Syncer) Watch(ctx context.Context, debounce time.Duration) (*Watcher, error) {
	w := NewWatcher(s.dir, debounce, func(ctx context.Context, change Change) {
		if change.Operation == OperationDelete {
			logging.Info("Registry", "Definition %s removed; its OAuth record is kept until the server is removed explicitly", change.ID)
			return
		}
		result, err := s.Sync(ctx)
		if err != nil {
			logging.Error("Registry", err, "Failed to sync server definitions after change to %s", change.Path)
			return
		}
		logging.Info("Registry", "Server definitions changed: %s", result)
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
