package watcher

import (
	"context"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Event represents a file change detected by the watcher.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher monitors files for changes using OS-level notifications.
type Watcher struct {
	fsw    *fsnotify.Watcher
	Events chan Event
	paths  []string
	logger log.Logger
}

// New creates a Watcher for the given glob patterns.
// Patterns are expanded once at startup and the resulting files are watched.
func New(patterns []string, logger log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsnotify watcher")
	}

	w := &Watcher{
		fsw:    fsw,
		Events: make(chan Event, 256),
		logger: log.With(logger, "component", "watcher"),
	}

	paths, err := Expand(patterns)
	if err != nil {
		level.Warn(w.logger).Log("msg", "failed to expand some patterns", "err", err)
	}
	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			level.Warn(w.logger).Log("msg", "cannot watch file", "path", p, "err", err)
			continue
		}
		w.paths = append(w.paths, p)
	}

	return w, nil
}

// Start forwards write, create, remove and rename events until ctx is
// cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.Events <- Event{Path: ev.Name, Op: ev.Op}:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			level.Error(w.logger).Log("msg", "watch error", "err", err)
		}
	}
}

// Paths returns the files currently being watched.
func (w *Watcher) Paths() []string {
	return w.paths
}

// ReWatch adds a path back to the watcher after rotation.
func (w *Watcher) ReWatch(path string) error {
	return w.fsw.Add(path)
}

// Expand resolves glob patterns to absolute file paths, in pattern order and
// without duplicates. Recursive patterns like /var/log/**/*.log are supported.
// Patterns that match nothing are named in the returned error; the paths that
// did match are still returned.
func Expand(patterns []string) ([]string, error) {
	var paths, failed []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil || len(matches) == 0 {
			failed = append(failed, pattern)
			continue
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				abs = m
			}
			if !seen[abs] {
				seen[abs] = true
				paths = append(paths, abs)
			}
		}
	}

	if len(failed) > 0 {
		return paths, errors.Errorf("no files matched %q", failed)
	}
	return paths, nil
}
