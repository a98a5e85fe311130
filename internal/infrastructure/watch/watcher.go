package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent represents a change to a watched file.
type ChangeEvent struct {
	Path       string
	ChangeType string // "create", "write", "remove", "rename"
}

// FileWatcher watches individual files for changes using fsnotify. Parent
// directories are watched so that editors replacing a file by rename are seen.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	files    map[string]bool
	onChange func(ChangeEvent)
}

// NewFileWatcher creates a new file watcher.
func NewFileWatcher(debounce time.Duration, onChange func(ChangeEvent)) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce == 0 {
		debounce = 200 * time.Millisecond
	}
	return &FileWatcher{
		watcher:  w,
		debounce: debounce,
		files:    make(map[string]bool),
		onChange: onChange,
	}, nil
}

// Add starts watching path. The file does not need to exist yet.
func (w *FileWatcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.files[abs] = true
	return nil
}

// Close releases the underlying watcher without running the event loop.
func (w *FileWatcher) Close() error {
	return w.watcher.Close()
}

// Run starts the event loop. It blocks until the context is cancelled.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	pending := newCoalescer(w.debounce, w.onChange)
	defer pending.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			changeType := opToChangeType(event.Op)
			if changeType == "" {
				continue
			}

			pending.add(ChangeEvent{Path: event.Name, ChangeType: changeType})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func opToChangeType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}
