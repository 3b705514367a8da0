package file_service

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/transfer"
)

// StoreSession receives the data chunks of one Store call. Exactly one of
// Commit or Abort ends it, and either releases the write lease.
type StoreSession struct {
	fs       *DefaultFileService
	name     string
	clientID string
	header   StoreHeader
	file     *transfer.AtomicFile
	codec    *transfer.Codec
	digest   *file_record.Digest
	release  func()
	once     sync.Once
}

func (s *StoreSession) Name() string {
	return s.name
}

// Write decodes one chunk payload and appends it.
func (s *StoreSession) Write(payload []byte) (int, error) {
	raw, err := s.codec.Decode(payload)
	if err != nil {
		return 0, err
	}
	n, err := s.file.Write(raw)
	if err != nil {
		return n, err
	}
	_, _ = s.digest.Write(raw[:n])
	return n, nil
}

// Commit renames the received content into place, stamped with the server's
// clock, and publishes the change.
func (s *StoreSession) Commit() (file_record.FileRecord, error) {
	defer s.finish()

	sum := s.digest.Sum()
	if s.header.Checksum != "" && sum != s.header.Checksum {
		s.file.Abort()
		return file_record.FileRecord{}, fmt.Errorf("%w: %s", ErrChecksumMismatch, s.name)
	}

	mtime := s.fs.now().Unix()
	if err := s.file.Commit(mtime); err != nil {
		s.fs.ls.Error(log_service.LogEvent{
			Message:  "Failed to commit stored file",
			Metadata: map[string]any{"filename": s.name, "error": err.Error()},
		})
		return file_record.FileRecord{}, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	rec := file_record.FileRecord{
		Name:     s.name,
		Size:     s.file.Written(),
		Mtime:    mtime,
		Checksum: sum,
	}
	s.fs.ls.Info(log_service.LogEvent{
		Message:  "File stored",
		Metadata: map[string]any{"filename": s.name, "clientID": s.clientID, "size": rec.Size},
	})
	s.fs.notifier.Publish(s.name, "store")
	return rec, nil
}

// Abort discards the received content. Safe after Commit.
func (s *StoreSession) Abort() {
	s.file.Abort()
	s.finish()
}

func (s *StoreSession) finish() {
	s.once.Do(func() {
		s.codec.Close()
		s.release()
	})
}

// FetchSession streams one consistent version of a file.
type FetchSession struct {
	Record    file_record.FileRecord
	file      *os.File
	codec     *transfer.Codec
	chunkSize int
}

func (s *FetchSession) Compression() transfer.Compression {
	return s.codec.Compression()
}

// Send passes every encoded chunk to send in order and returns the number of
// raw bytes read.
func (s *FetchSession) Send(ctx context.Context, send transfer.SendFunc) (int64, error) {
	return transfer.SendFile(ctx, s.file, s.chunkSize, s.codec, send)
}

func (s *FetchSession) Close() {
	s.codec.Close()
	s.file.Close()
}
