package sandlib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/transfer"
	"github.com/fsnotify/fsnotify"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// localName maps a watcher event path to a mirrored file name, or "" when the
// event should be ignored.
func (c *SyncClient) localName(path string) string {
	base := filepath.Base(path)
	if transfer.IsTempName(base) {
		return ""
	}
	name, err := c.root.Name(path)
	if err != nil || strings.Contains(name, "/") {
		return ""
	}
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return name
}

// onLocalChange uploads name under the sync mutex.
func (c *SyncClient) onLocalChange(ctx context.Context, name string) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	err := c.Store(ctx, name)
	switch status.Code(err) {
	case codes.OK:
	case codes.AlreadyExists:
		c.ls.Debug(log_service.LogEvent{
			Message:  "Local change already on server",
			Metadata: map[string]any{"filename": name},
		})
	case codes.NotFound:
		c.ls.Debug(log_service.LogEvent{
			Message:  "Changed file vanished before upload",
			Metadata: map[string]any{"filename": name},
		})
	default:
		c.ls.Warn(log_service.LogEvent{
			Message:  "Failed to upload local change",
			Metadata: map[string]any{"filename": name, "code": status.Code(err).String(), "error": err.Error()},
		})
	}
}

// pushLocalChanges uploads files changed while no watcher was running: files
// the server does not have, and files whose local copy is newer.
func (c *SyncClient) pushLocalChanges(ctx context.Context) error {
	remote, err := c.List(ctx)
	if err != nil {
		return err
	}
	local, err := file_record.ScanDir(c.root.Dir(), true)
	if err != nil {
		return localError(err)
	}
	index := file_record.Index(remote)

	for _, rec := range local {
		r, exists := index[rec.Name]
		if exists && (r.Checksum == rec.Checksum || r.Mtime >= rec.Mtime) {
			continue
		}
		c.onLocalChange(ctx, rec.Name)
	}
	return nil
}

// debouncer runs fn for a name once no new event has arrived for delay.
type debouncer struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	delay  time.Duration
	timers map[string]*time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) trigger(name string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[name]; ok && t.Stop() {
		d.wg.Done()
	}

	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[name] == t {
			delete(d.timers, name)
		}
		d.mu.Unlock()
		fn()
	})
	d.timers[name] = t
}

// stop cancels pending timers and waits for running callbacks.
func (d *debouncer) stop() {
	d.mu.Lock()
	for name, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, name)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// RunWatchBridge uploads local creations and writes in the mirror until ctx
// is done. Temporary transfer files and directories are ignored.
func (c *SyncClient) RunWatchBridge(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(c.root.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.root.Dir(), err)
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Watch bridge started",
		Metadata: map[string]any{"dir": c.root.Dir(), "debounce": c.opts.Debounce.String()},
	})

	if err := c.pushLocalChanges(ctx); err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Initial upload of local changes failed",
			Metadata: map[string]any{"error": err.Error()},
		})
	}

	var deb *debouncer
	if c.opts.Debounce > 0 {
		deb = newDebouncer(c.opts.Debounce)
		defer deb.stop()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := c.localName(event.Name)
			if name == "" {
				continue
			}
			if deb == nil {
				c.onLocalChange(ctx, name)
				continue
			}
			deb.trigger(name, func() { c.onLocalChange(ctx, name) })

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.ls.Warn(log_service.LogEvent{
				Message:  "Watcher error",
				Metadata: map[string]any{"dir": c.root.Dir(), "error": err.Error()},
			})
		}
	}
}
