package rules

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a Processor in sync with rule files on disk. A file is
// reloaded when it is written or created and removed when it is deleted or
// renamed away. A reload that fails keeps the previous rules.
type Watcher struct {
	processor *Processor
	fsWatcher *fsnotify.Watcher
	paths     map[string]bool

	baseContext context.Context

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher creates a watcher for the given rule files. Nothing is loaded
// until Start.
func NewWatcher(processor *Processor, paths ...string) (*Watcher, error) {
	tracked := make(map[string]bool, len(paths))
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve rule file %s: %w", path, err)
		}
		tracked[absPath] = true
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		processor:   processor,
		fsWatcher:   fsWatcher,
		paths:       tracked,
		baseContext: context.Background(),
		done:        make(chan struct{}),
	}, nil
}

// Start loads every watched file and begins watching their directories.
// Files that fail to load are reported in the joined error but stay
// watched, so fixing them on disk loads them.
func (w *Watcher) Start(ctx context.Context) error {
	if ctx != nil {
		w.baseContext = ctx
	}

	var loadErrs []error
	dirs := map[string]bool{}
	for path := range w.paths {
		if err := w.processor.Load(w.baseContext, path); err != nil {
			loadErrs = append(loadErrs, err)
		}

		// Watch the directory so replace-by-rename saves are seen.
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.wg.Add(1)
	go w.eventLoop()

	return errors.Join(loadErrs...)
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Warn("rule file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path, err := filepath.Abs(event.Name)
	if err != nil || !w.paths[path] {
		return
	}

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if err := w.processor.Load(w.baseContext, path); err != nil {
			logger.Warn("keeping previous rules after failed reload", "path", path, "error", err)
			return
		}
		logger.Info("reloaded rule set", "path", path)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if w.processor.Remove(path) {
			logger.Info("removed rule set", "path", path)
		}
	}
}
