package file_service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/lock_service"
	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/mount"
	"github.com/AnishMulay/sandsync/internal/notify_service"
	"github.com/AnishMulay/sandsync/internal/transfer"
)

type DefaultFileService struct {
	root      *mount.Root
	locks     lock_service.LockService
	notifier  *notify_service.ChangeNotifier
	ls        log_service.LogService
	chunkSize int
	now       func() time.Time
}

func NewDefaultFileService(root *mount.Root, locks lock_service.LockService, notifier *notify_service.ChangeNotifier, ls log_service.LogService, chunkSize int) *DefaultFileService {
	if chunkSize <= 0 {
		chunkSize = transfer.DefaultChunkSize
	}
	return &DefaultFileService{
		root:      root,
		locks:     locks,
		notifier:  notifier,
		ls:        ls,
		chunkSize: chunkSize,
		now:       time.Now,
	}
}

func (fs *DefaultFileService) ChunkSize() int {
	return fs.chunkSize
}

// resolve returns the cleaned name and its absolute path. Names are flat: the
// mount root is mirrored one level deep.
func (fs *DefaultFileService) resolve(name string) (string, string, error) {
	cleaned, err := mount.Clean(name)
	if err != nil {
		return "", "", err
	}
	if strings.Contains(cleaned, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrNestedPath, name)
	}
	path, err := fs.root.Resolve(cleaned)
	if err != nil {
		return "", "", err
	}
	return cleaned, path, nil
}

func (fs *DefaultFileService) BeginStore(ctx context.Context, clientID string, header StoreHeader) (*StoreSession, error) {
	name, path, err := fs.resolve(header.Name)
	if err != nil {
		return nil, err
	}

	release, err := fs.locks.Guard(ctx, name, clientID)
	if err != nil {
		return nil, err
	}

	current, err := file_record.Checksum(path)
	switch {
	case err == nil && header.Checksum != "" && current == header.Checksum:
		release()
		fs.ls.Debug(log_service.LogEvent{
			Message:  "Store skipped, content unchanged",
			Metadata: map[string]any{"filename": name, "clientID": clientID},
		})
		return nil, ErrUnchanged
	case err != nil && !errors.Is(err, file_record.ErrNotFound):
		release()
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	codec, err := transfer.NewCodec(header.Compression, fs.chunkSize)
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	file, err := transfer.NewAtomicFile(path)
	if err != nil {
		codec.Close()
		release()
		fs.ls.Error(log_service.LogEvent{
			Message:  "Failed to open store target",
			Metadata: map[string]any{"filename": name, "error": err.Error()},
		})
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	fs.ls.Info(log_service.LogEvent{
		Message:  "Store started",
		Metadata: map[string]any{"filename": name, "clientID": clientID, "size": header.Size},
	})

	return &StoreSession{
		fs:       fs,
		name:     name,
		clientID: clientID,
		header:   header,
		file:     file,
		codec:    codec,
		digest:   file_record.NewDigest(),
		release:  release,
	}, nil
}

func (fs *DefaultFileService) OpenFetch(ctx context.Context, name, knownChecksum string, compression transfer.Compression) (*FetchSession, error) {
	name, path, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	// Stores replace files by rename, so everything read through f describes
	// one consistent version.
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	sum, err := file_record.ChecksumReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if knownChecksum != "" && knownChecksum == sum {
		f.Close()
		return nil, ErrUnchanged
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	codec, err := transfer.NewCodec(compression, fs.chunkSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	return &FetchSession{
		Record: file_record.FileRecord{
			Name:     name,
			Size:     info.Size(),
			Mtime:    info.ModTime().Unix(),
			Checksum: sum,
		},
		file:      f,
		codec:     codec,
		chunkSize: fs.chunkSize,
	}, nil
}

func (fs *DefaultFileService) Delete(ctx context.Context, clientID, name string) error {
	name, path, err := fs.resolve(name)
	if err != nil {
		return err
	}

	release, err := fs.locks.Guard(ctx, name, clientID)
	if err != nil {
		return err
	}
	defer release()

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	fs.ls.Info(log_service.LogEvent{
		Message:  "File deleted",
		Metadata: map[string]any{"filename": name, "clientID": clientID},
	})
	fs.notifier.Publish(name, "delete")
	return nil
}

func (fs *DefaultFileService) Stat(ctx context.Context, name string) (file_record.FileRecord, error) {
	name, path, err := fs.resolve(name)
	if err != nil {
		return file_record.FileRecord{}, err
	}

	rec, err := file_record.Stat(path, name)
	if errors.Is(err, file_record.ErrNotFound) || errors.Is(err, file_record.ErrNotFile) {
		return file_record.FileRecord{}, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return file_record.FileRecord{}, err
	}
	return rec, nil
}

func (fs *DefaultFileService) List(ctx context.Context) ([]file_record.FileRecord, error) {
	records, err := file_record.ScanDir(fs.root.Dir(), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}
	return records, nil
}

func (fs *DefaultFileService) RequestWriteLock(ctx context.Context, name, clientID string) (lock_service.Lease, error) {
	name, _, err := fs.resolve(name)
	if err != nil {
		return lock_service.Lease{}, err
	}
	return fs.locks.Acquire(ctx, name, clientID)
}

func (fs *DefaultFileService) ReleaseWriteLock(ctx context.Context, name, clientID string) (bool, error) {
	name, _, err := fs.resolve(name)
	if err != nil {
		return false, err
	}
	if clientID == "" {
		return false, lock_service.ErrInvalidClientID
	}
	return fs.locks.Release(name, clientID), nil
}

func (fs *DefaultFileService) Version() uint64 {
	return fs.notifier.Version()
}

func (fs *DefaultFileService) WaitForChange(ctx context.Context, since uint64) (uint64, error) {
	return fs.notifier.Wait(ctx, since)
}
