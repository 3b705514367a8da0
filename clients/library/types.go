package sandlib

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/AnishMulay/sandsync/internal/communication"
	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/mount"
	"github.com/AnishMulay/sandsync/internal/transfer"

	"google.golang.org/grpc"
)

const (
	DefaultDeadline     = 10 * time.Second
	DefaultResetTimeout = time.Second

	releaseTimeout = 2 * time.Second
)

type Options struct {
	ServerAddr string
	MountDir   string

	// ClientID identifies this client to the write lock coordinator.
	ClientID string

	// Deadline bounds every remote call.
	Deadline time.Duration

	// ResetTimeout is the fixed backoff after a failed CallbackList, plus a
	// random extra of up to ResetJitter.
	ResetTimeout time.Duration
	ResetJitter  time.Duration

	// Debounce delays uploads until a file has been quiet this long. Zero
	// uploads on every event.
	Debounce time.Duration

	ChunkSize   int
	Compression transfer.Compression
	DialOptions []grpc.DialOption
}

// pendingCall is the completion of one armed CallbackList request. Only the
// callback loop creates and consumes these.
type pendingCall struct {
	tag  uint64
	resp *communication.ListResponse
	err  error
}

// SyncClient keeps a local mirror directory in step with the server.
//
// syncMu serializes every decision that touches mirrored files: uploads
// triggered by the watch bridge and reconciliation after a server push. It
// is never held across the wait for a push.
type SyncClient struct {
	opts Options
	conn *grpc.ClientConn
	rpc  communication.DFSClient
	root *mount.Root
	ls   log_service.LogService

	syncMu sync.Mutex

	completions chan pendingCall
	nextTag     atomic.Uint64

	// version is the server change counter reflected by the mirror.
	version atomic.Uint64
}
