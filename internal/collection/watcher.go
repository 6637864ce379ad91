package collection

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher evicts cached indexes when index files change on disk behind the
// store's back, e.g. when another process edits or restores a collection.
// The store's own writes also trigger an eviction; the next access simply
// rereads the index.
type Watcher struct {
	store  *Store
	root   string
	fsw    *fsnotify.Watcher
	logger *slog.Logger
}

// NewWatcher watches the store root and every collection directory under it.
func NewWatcher(s *Store, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{store: s, root: s.fs.Root(), fsw: fsw, logger: logger}
	if err := fsw.Add(w.root); err != nil {
		fsw.Close()
		return nil, err
	}
	dirs, err := s.fs.ListDirs("")
	if err != nil {
		fsw.Close()
		return nil, err
	}
	for _, d := range dirs {
		if err := fsw.Add(filepath.Join(w.root, d)); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.logger.Info("watcher: started", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case watchErr, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	name := parts[0]
	if name == "." || strings.HasPrefix(name, ".") {
		return
	}

	switch len(parts) {
	case 1:
		// A collection directory appeared or went away.
		if ev.Op&fsnotify.Create != 0 {
			if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
				if addErr := w.fsw.Add(ev.Name); addErr != nil {
					w.logger.Warn("watcher: add collection dir failed",
						slog.String("collection", name),
						slog.String("error", addErr.Error()))
				}
			}
		}
		if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
			w.store.Evict(name)
			w.logger.Debug("watcher: collection dir changed", slog.String("collection", name))
		}

	case 2:
		if parts[1] != w.store.layout.IndexFile() {
			return
		}
		if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
			w.store.Evict(name)
			w.logger.Debug("watcher: index changed",
				slog.String("collection", name),
				slog.String("op", ev.Op.String()))
		}
	}
}

// Close stops the underlying watcher without waiting for Run.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
