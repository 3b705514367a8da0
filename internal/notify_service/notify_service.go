// Package notify_service tracks a monotonically increasing change counter for
// the server's file set and lets CallbackList calls park until it moves.
package notify_service

import (
	"context"
	"sync"

	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/metrics"
)

type ChangeNotifier struct {
	mu      sync.Mutex
	version uint64
	changed chan struct{}
	ls      log_service.LogService
	metrics metrics.ServerMetrics
}

// NewChangeNotifier starts at version 1 so that a client presenting the zero
// version always receives an immediate listing.
func NewChangeNotifier(ls log_service.LogService, m metrics.ServerMetrics) *ChangeNotifier {
	return &ChangeNotifier{
		version: 1,
		changed: make(chan struct{}),
		ls:      ls,
		metrics: m,
	}
}

func (n *ChangeNotifier) Version() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.version
}

// Publish advances the version and wakes every waiter.
func (n *ChangeNotifier) Publish(filename, reason string) uint64 {
	n.mu.Lock()
	n.version++
	v := n.version
	close(n.changed)
	n.changed = make(chan struct{})
	n.mu.Unlock()

	n.ls.Debug(log_service.LogEvent{
		Message:  "File set changed",
		Metadata: map[string]any{"filename": filename, "reason": reason, "version": v},
	})
	if n.metrics != nil {
		n.metrics.RecordNotification()
	}
	return v
}

// Wait returns as soon as the version is greater than since. If ctx ends
// first it returns the unchanged version together with ctx.Err().
func (n *ChangeNotifier) Wait(ctx context.Context, since uint64) (uint64, error) {
	for {
		n.mu.Lock()
		if n.version > since {
			v := n.version
			n.mu.Unlock()
			return v, nil
		}
		ch := n.changed
		v := n.version
		n.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}
