package sandlib

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Mount runs the callback loop and the watch bridge together until ctx is
// done or one of them fails.
func (c *SyncClient) Mount(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.RunCallbackLoop(ctx) })
	g.Go(func() error { return c.RunWatchBridge(ctx) })
	return g.Wait()
}
