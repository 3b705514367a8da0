package file_service

import (
	"context"

	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/lock_service"
	"github.com/AnishMulay/sandsync/internal/transfer"
)

// StoreHeader is the metadata a client announces before sending any data.
type StoreHeader struct {
	Name        string
	Checksum    string
	Mtime       int64
	Size        int64
	Compression transfer.Compression
}

// FileService applies client operations to the mount root. Mutating calls
// hold the caller's write lease for their whole duration.
type FileService interface {
	// BeginStore binds the lease and opens a temporary file. It returns
	// ErrUnchanged when the server already has the announced content.
	BeginStore(ctx context.Context, clientID string, header StoreHeader) (*StoreSession, error)

	// OpenFetch returns ErrUnchanged when knownChecksum matches the server copy.
	OpenFetch(ctx context.Context, name, knownChecksum string, compression transfer.Compression) (*FetchSession, error)

	Delete(ctx context.Context, clientID, name string) error
	Stat(ctx context.Context, name string) (file_record.FileRecord, error)
	List(ctx context.Context) ([]file_record.FileRecord, error)
	RequestWriteLock(ctx context.Context, name, clientID string) (lock_service.Lease, error)

	// ReleaseWriteLock reports whether clientID's lease on name was dropped.
	ReleaseWriteLock(ctx context.Context, name, clientID string) (bool, error)

	// Version is the current change counter.
	Version() uint64

	// WaitForChange blocks until the change counter passes since.
	WaitForChange(ctx context.Context, since uint64) (uint64, error)
}
