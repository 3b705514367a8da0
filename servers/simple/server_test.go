package simple

import (
	"context"
	"testing"
	"time"

	"github.com/AnishMulay/sandsync/internal/log_service/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_RequiresLogService(t *testing.T) {
	_, err := Build(Options{ListenAddr: "127.0.0.1:0", MountDir: t.TempDir()})
	assert.Error(t, err)
}

func TestBuild_RunUntilCancelled(t *testing.T) {
	r, err := Build(Options{
		NodeID:       "test",
		ListenAddr:   "127.0.0.1:0",
		MountDir:     t.TempDir(),
		LeaseTTL:     time.Second,
		CallbackHold: 100 * time.Millisecond,
		WatchMount:   true,
		ChunkSize:    1024,
		LogService:   console.NewDiscardLogService(),
	})
	require.NoError(t, err)

	srv, ok := r.(*singleNodeServer)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunContext(ctx) }()

	assert.Eventually(t, func() bool { return srv.server.Address() != "127.0.0.1:0" }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
