package library

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Rescanner is the part of Library the watcher drives.
type Rescanner interface {
	Roots() []string
	RescanFile(ctx context.Context, path string) error
}

// Watcher rescans a deck document whenever it changes on disk.
type Watcher struct {
	lib     Rescanner
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	stop    chan struct{}
	done    chan struct{}
}

func NewWatcher(lib Rescanner, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	return &Watcher{
		lib:     lib,
		watcher: w,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start watches every directory under the library's deck roots and
// processes events in a background goroutine until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.lib.Roots() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		})
		if err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
	}

	go w.run(ctx)
	return nil
}

// Stop ends event processing and releases the watcher. It is safe to call twice.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !isMarkdown(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if err := w.lib.RescanFile(ctx, event.Name); err != nil {
		w.logger.Warn("rescanning deck document", "path", event.Name, "error", err)
	}
}
