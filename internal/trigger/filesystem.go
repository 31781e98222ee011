// internal/trigger/filesystem.go
package trigger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Filesystem watches individual files for modification. It watches their
// parent directories so editors that replace the file on save are seen.
type Filesystem struct {
	name     string
	files    map[string]bool
	dirs     []string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	started bool
	stopped bool
}

// NewFilesystem creates a trigger for files. Events for one file arriving
// within debounce of each other are coalesced into one.
func NewFilesystem(name string, files []string, debounce time.Duration) (*Filesystem, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("filesystem trigger %s: no files to watch", name)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	f := &Filesystem{
		name:     name,
		files:    make(map[string]bool),
		debounce: debounce,
		watcher:  watcher,
		pending:  make(map[string]*time.Timer),
	}
	seen := make(map[string]bool)
	for _, p := range files {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		f.files[abs] = true
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			f.dirs = append(f.dirs, dir)
		}
	}
	return f, nil
}

func (f *Filesystem) Name() string {
	return f.name
}

func (f *Filesystem) Start(ctx context.Context, events chan<- Event) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("filesystem trigger already started")
	}
	f.started = true
	f.mu.Unlock()

	for _, dir := range f.dirs {
		if err := f.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			f.handleEvent(ctx, event, events)
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func (f *Filesystem) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return nil
	}
	f.stopped = true

	for path, timer := range f.pending {
		timer.Stop()
		delete(f.pending, path)
	}
	return f.watcher.Close()
}

func (f *Filesystem) handleEvent(ctx context.Context, fsEvent fsnotify.Event, events chan<- Event) {
	path := filepath.Clean(fsEvent.Name)
	if !f.files[path] {
		return
	}
	if !fsEvent.Has(fsnotify.Write) && !fsEvent.Has(fsnotify.Create) {
		return
	}

	if f.debounce > 0 {
		f.schedule(ctx, path, events)
		return
	}
	f.sendEvent(ctx, path, events)
}

func (f *Filesystem) schedule(ctx context.Context, path string, events chan<- Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}

	if timer, exists := f.pending[path]; exists {
		timer.Stop()
	}
	f.pending[path] = time.AfterFunc(f.debounce, func() {
		f.mu.Lock()
		delete(f.pending, path)
		f.mu.Unlock()
		f.sendEvent(ctx, path, events)
	})
}

func (f *Filesystem) sendEvent(ctx context.Context, path string, events chan<- Event) {
	if ctx.Err() != nil {
		return
	}
	select {
	case events <- Event{
		Name:      f.name,
		Type:      TypeFileModified,
		Timestamp: time.Now(),
		Path:      path,
	}:
	default:
		// channel full, drop event
	}
}
