// Package watch triggers rebuilds when files a build depends on change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounceInterval is the quiet period before a change is reported
const DefaultDebounceInterval = 100 * time.Millisecond

// ErrAlreadyRunning indicates Watch was called twice
var ErrAlreadyRunning = errors.New("watcher already running")

// Watcher watches the directories holding a set of tracked files and reports changes to
// those files. Files that do not exist yet are tracked through their nearest existing
// parent directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce *Debouncer

	// held while onChange runs so callbacks never overlap
	changeMu sync.Mutex

	mu      sync.Mutex
	files   map[string]struct{}
	dirs    map[string]struct{}
	pending map[string]struct{}
	running bool
}

// New creates a watcher that reports changes after interval of quiet
func New(interval time.Duration) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  watcher,
		debounce: NewDebouncer(interval),
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		pending:  make(map[string]struct{}),
	}, nil
}

// Sync replaces the tracked files with paths and adjusts the watched directories.
func (w *Watcher) Sync(paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, path := range paths {
		path = filepath.Clean(path)
		files[path] = struct{}{}
		if dir, ok := existingDir(filepath.Dir(path)); ok {
			dirs[dir] = struct{}{}
		}
	}

	for dir := range w.dirs {
		if _, ok := dirs[dir]; !ok {
			// the directory may already be gone
			_ = w.watcher.Remove(dir)
		}
	}

	var errs []error
	for dir := range dirs {
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			errs = append(errs, fmt.Errorf("failed to watch directory %q: %w", dir, err))
			delete(dirs, dir)
			continue
		}
		log.Debug().Str("path", dir).Msg("Watching directory")
	}

	w.files = files
	w.dirs = dirs

	return errors.Join(errs...)
}

// Files returns the tracked files
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make([]string, 0, len(w.files))
	for file := range w.files {
		files = append(files, file)
	}
	slices.Sort(files)
	return files
}

// Watch reports changes to tracked files until ctx is cancelled. onChange receives the
// changed paths collected during one debounce window. Calls to onChange are serialized,
// changes arriving while one runs are reported by the next call.
func (w *Watcher) Watch(ctx context.Context, onChange func(changed []string)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	log.Info().Int("files", len(w.Files())).Msg("File watcher started")

	for {
		select {
		case <-ctx.Done():
			w.debounce.Stop()
			log.Info().Msg("File watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}

			if !w.shouldProcessEvent(event) {
				continue
			}

			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("File event detected")

			w.mu.Lock()
			w.pending[filepath.Clean(event.Name)] = struct{}{}
			w.mu.Unlock()

			w.debounce.Trigger(func() {
				w.changeMu.Lock()
				defer w.changeMu.Unlock()

				if changed := w.drain(); len(changed) > 0 {
					onChange(changed)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			log.Error().Err(err).Msg("File watcher error")
		}
	}
}

// Close releases the underlying fsnotify watcher
func (w *Watcher) Close() error {
	w.debounce.Stop()
	return w.watcher.Close()
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := make([]string, 0, len(w.pending))
	for path := range w.pending {
		changed = append(changed, path)
	}
	clear(w.pending)
	slices.Sort(changed)
	return changed
}

// shouldProcessEvent reports whether event touches a tracked file or a directory on the
// way to one.
func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	name := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[name]; ok {
		return true
	}

	prefix := name + string(filepath.Separator)
	for file := range w.files {
		if strings.HasPrefix(file, prefix) {
			return true
		}
	}
	return false
}

// existingDir walks up from dir to the nearest directory that exists
func existingDir(dir string) (string, bool) {
	for {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
