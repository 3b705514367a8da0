package notify_service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AnishMulay/sandsync/internal/log_service/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeNotifier_Wait(t *testing.T) {
	tests := []struct {
		name        string
		since       func(n *ChangeNotifier) uint64
		publish     bool
		wantErr     error
		wantAdvance bool
	}{
		{
			name:        "behind returns immediately",
			since:       func(*ChangeNotifier) uint64 { return 0 },
			wantAdvance: true,
		},
		{
			name:        "current version waits for publish",
			since:       func(n *ChangeNotifier) uint64 { return n.Version() },
			publish:     true,
			wantAdvance: true,
		},
		{
			name:    "current version times out without change",
			since:   func(n *ChangeNotifier) uint64 { return n.Version() },
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewChangeNotifier(console.NewDiscardLogService(), nil)
			since := tt.since(n)

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			if tt.publish {
				go func() {
					time.Sleep(20 * time.Millisecond)
					n.Publish("a.txt", "test")
				}()
			}

			v, err := n.Wait(ctx, since)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, since, v)
				return
			}
			require.NoError(t, err)
			if tt.wantAdvance {
				assert.Greater(t, v, since)
			}
		})
	}
}

func TestChangeNotifier_WakesAllWaiters(t *testing.T) {
	n := NewChangeNotifier(console.NewDiscardLogService(), nil)
	since := n.Version()

	results := make(chan uint64, 3)
	for i := 0; i < 3; i++ {
		go func() {
			v, _ := n.Wait(context.Background(), since)
			results <- v
		}()
	}

	time.Sleep(20 * time.Millisecond)
	published := n.Publish("a.txt", "test")

	for i := 0; i < 3; i++ {
		select {
		case v := <-results:
			assert.Equal(t, published, v)
		case <-time.After(time.Second):
			t.Fatal("waiter was not woken")
		}
	}
}

func TestDirWatcher_PublishesOutOfBandChanges(t *testing.T) {
	dir := t.TempDir()
	n := NewChangeNotifier(console.NewDiscardLogService(), nil)
	w := NewDirWatcher(dir, n, console.NewDiscardLogService())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	start := n.Version()
	require.Eventually(t, func() bool {
		// Keep touching the file until the watcher is registered and sees it.
		_ = os.WriteFile(filepath.Join(dir, "dropped-in.txt"), []byte("x"), 0644)
		return n.Version() > start
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
