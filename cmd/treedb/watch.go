package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher reports changes to one file.
type fileWatcher struct {
	w    *fsnotify.Watcher
	path string
}

// newFileWatcher starts watching path. The directory is watched rather than
// the file since saves rename a new file over it.
func newFileWatcher(path string) (*fileWatcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	return &fileWatcher{w: w, path: path}, nil
}

// run calls onChange after each write or replacement of the file until ctx
// is done. It closes the watcher.
func (f *fileWatcher) run(ctx context.Context, onChange func()) error {
	defer func() { _ = f.w.Close() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-f.w.Events:
			if !ok {
				return nil
			}
			if event.Name != f.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				slog.DebugContext(ctx, "Database file changed", "op", event.Op.String())
				onChange()
			}
		case err, ok := <-f.w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching database", "err", err)
		}
	}
}

// Close stops watching without running.
func (f *fileWatcher) Close() error {
	return f.w.Close()
}
