package sandlib

import (
	"context"
	"time"

	"github.com/AnishMulay/sandsync/internal/communication"
	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/log_service"

	"golang.org/x/exp/rand"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// arm launches one CallbackList request in the background. Its completion is
// delivered on c.completions under the returned tag.
func (c *SyncClient) arm(ctx context.Context) uint64 {
	tag := c.nextTag.Add(1)
	since := c.version.Load()

	go func() {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		resp, err := c.rpc.CallbackList(callCtx, &communication.CallbackListRequest{
			ClientID: c.opts.ClientID,
			Version:  since,
		})
		select {
		case c.completions <- pendingCall{tag: tag, resp: resp, err: err}:
		case <-ctx.Done():
		}
	}()
	return tag
}

func (c *SyncClient) backoff() time.Duration {
	d := c.opts.ResetTimeout
	if c.opts.ResetJitter > 0 {
		d += time.Duration(rand.Int63n(int64(c.opts.ResetJitter)))
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// RunCallbackLoop keeps exactly one CallbackList request outstanding and
// reconciles the mirror each time the server answers. Failures are logged and
// retried after the reset timeout. It returns when ctx is done.
func (c *SyncClient) RunCallbackLoop(ctx context.Context) error {
	c.ls.Info(log_service.LogEvent{
		Message:  "Callback loop started",
		Metadata: map[string]any{"clientID": c.opts.ClientID, "server": c.opts.ServerAddr},
	})

	armed := c.arm(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil

		case call := <-c.completions:
			if call.tag != armed {
				continue
			}

			if call.err != nil {
				c.ls.Warn(log_service.LogEvent{
					Message:  "Callback list failed, backing off",
					Metadata: map[string]any{"code": status.Code(call.err).String(), "error": call.err.Error()},
				})
				if !sleepContext(ctx, c.backoff()) {
					return nil
				}
				armed = c.arm(ctx)
				continue
			}

			if failed := c.reconcile(ctx, call.resp); failed > 0 {
				c.ls.Warn(log_service.LogEvent{
					Message:  "Reconciliation incomplete, backing off",
					Metadata: map[string]any{"failed": failed},
				})
				if !sleepContext(ctx, c.backoff()) {
					return nil
				}
			} else {
				c.version.Store(call.resp.Version)
			}
			armed = c.arm(ctx)
		}
	}
}

// needsFetch decides whether a server entry should replace the local copy.
// Local copies that are strictly newer are left for the watch bridge to push.
func needsFetch(remote communication.FileEntry, local file_record.FileRecord, exists bool) bool {
	if !exists {
		return true
	}
	if remote.Checksum == local.Checksum {
		return false
	}
	return remote.Mtime >= local.Mtime
}

// reconcile fetches every server file the mirror is missing or holds an
// older copy of. Local-only files are left alone. It returns the number of
// files that could not be brought up to date.
func (c *SyncClient) reconcile(ctx context.Context, resp *communication.ListResponse) int {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	local, err := file_record.ScanDir(c.root.Dir(), true)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to scan mirror",
			Metadata: map[string]any{"dir": c.root.Dir(), "error": err.Error()},
		})
		return 1
	}
	index := file_record.Index(local)

	failed := 0
	for _, entry := range resp.Files {
		rec, exists := index[entry.Filename]
		if !needsFetch(entry, rec, exists) {
			continue
		}

		err := c.Fetch(ctx, entry.Filename)
		switch status.Code(err) {
		case codes.OK, codes.AlreadyExists:
		case codes.NotFound:
			// Deleted on the server since the listing was taken.
		default:
			failed++
			c.ls.Warn(log_service.LogEvent{
				Message:  "Failed to fetch changed file",
				Metadata: map[string]any{"filename": entry.Filename, "error": err.Error()},
			})
		}
	}

	c.ls.Debug(log_service.LogEvent{
		Message:  "Reconciled with server",
		Metadata: map[string]any{"version": resp.Version, "files": len(resp.Files), "failed": failed},
	})
	return failed
}
