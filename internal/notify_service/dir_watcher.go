package notify_service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/transfer"
	"github.com/fsnotify/fsnotify"
)

// DirWatcher publishes a change whenever something edits the mount root
// behind the server's back (an operator copying files in, for example).
// Changes made through Store and Delete are published by the file service
// itself; the duplicate wake-ups this watcher adds for them are harmless.
type DirWatcher struct {
	dir      string
	notifier *ChangeNotifier
	ls       log_service.LogService
}

func NewDirWatcher(dir string, notifier *ChangeNotifier, ls log_service.LogService) *DirWatcher {
	return &DirWatcher{dir: dir, notifier: notifier, ls: ls}
}

// Run watches until ctx is done.
func (w *DirWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create mount watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch mount root: %w", err)
	}

	w.ls.Info(log_service.LogEvent{
		Message:  "Watching mount root",
		Metadata: map[string]any{"dir": w.dir},
	})

	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if transfer.IsTempName(name) || event.Op&relevant == 0 {
				continue
			}
			w.notifier.Publish(name, "mount "+event.Op.String())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.ls.Warn(log_service.LogEvent{
				Message:  "Mount watcher error",
				Metadata: map[string]any{"dir": w.dir, "error": err.Error()},
			})
		}
	}
}
