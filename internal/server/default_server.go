package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/AnishMulay/sandsync/internal/communication"
	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/file_service"
	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/metrics"
	"github.com/AnishMulay/sandsync/internal/transfer"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCallbackHold is how long a CallbackList call is parked waiting for a
// change before the server answers with the unchanged listing.
const DefaultCallbackHold = 5 * time.Second

// Watcher is a background task that runs for the lifetime of the server,
// such as the mount root watcher.
type Watcher interface {
	Run(ctx context.Context) error
}

type DefaultServer struct {
	comm         *communication.GRPCServer
	fs           file_service.FileService
	ls           log_service.LogService
	metrics      metrics.ServerMetrics
	callbackHold time.Duration
	watchers     []Watcher
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewDefaultServer(comm *communication.GRPCServer, fs file_service.FileService, ls log_service.LogService, m metrics.ServerMetrics, callbackHold time.Duration, watchers ...Watcher) *DefaultServer {
	if callbackHold <= 0 {
		callbackHold = DefaultCallbackHold
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &DefaultServer{
		comm:         comm,
		fs:           fs,
		ls:           ls,
		metrics:      m,
		callbackHold: callbackHold,
		watchers:     watchers,
		ctx:          ctx,
		cancel:       cancel,
	}
	comm.Register(s)
	return s
}

func (s *DefaultServer) Address() string {
	return s.comm.Address()
}

func (s *DefaultServer) Start() error {
	s.startWatchers()
	if err := s.comm.Start(); err != nil {
		s.cancel()
		return errors.Join(ErrServerStartFailed, err)
	}
	return nil
}

// StartListener serves on lis instead of the configured address.
func (s *DefaultServer) StartListener(lis net.Listener) error {
	s.startWatchers()
	if err := s.comm.StartListener(lis); err != nil {
		s.cancel()
		return errors.Join(ErrServerStartFailed, err)
	}
	return nil
}

func (s *DefaultServer) startWatchers() {
	for _, w := range s.watchers {
		go func(w Watcher) {
			if err := w.Run(s.ctx); err != nil {
				s.ls.Error(log_service.LogEvent{
					Message:  "Background watcher stopped",
					Metadata: map[string]any{"error": err.Error()},
				})
			}
		}(w)
	}
}

func (s *DefaultServer) Stop() error {
	s.cancel()
	if err := s.comm.Stop(); err != nil {
		return errors.Join(ErrServerStopFailed, err)
	}
	return nil
}

func (s *DefaultServer) recordBytes(direction string, n int64) {
	if s.metrics != nil && n > 0 {
		s.metrics.RecordBytes(direction, n)
	}
}

func toEntries(records []file_record.FileRecord) []communication.FileEntry {
	entries := make([]communication.FileEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, communication.FileEntry{
			Filename: r.Name,
			Size:     r.Size,
			Mtime:    r.Mtime,
			Checksum: r.Checksum,
		})
	}
	return entries
}

func (s *DefaultServer) Store(stream grpc.BidiStreamingServer[communication.StoreChunk, communication.StoreReply]) error {
	ctx := stream.Context()
	clientID := communication.ClientIDFromContext(ctx)

	header, err := stream.Recv()
	if errors.Is(err, io.EOF) {
		return status.Error(codes.Canceled, ErrNoData.Error())
	}
	if err != nil {
		return toStatus(err)
	}

	compression, err := transfer.ParseCompression(header.Compression)
	if err != nil {
		return toStatus(err)
	}

	session, err := s.fs.BeginStore(ctx, clientID, file_service.StoreHeader{
		Name:        header.Filename,
		Checksum:    header.Checksum,
		Mtime:       header.Mtime,
		Size:        header.Size,
		Compression: compression,
	})
	if err != nil {
		return toStatus(err)
	}
	defer session.Abort()

	if err := stream.Send(&communication.StoreReply{Ready: true}); err != nil {
		return toStatus(err)
	}

	var received int64
	write := func(payload []byte) error {
		if len(payload) == 0 {
			return nil
		}
		n, err := session.Write(payload)
		received += int64(n)
		return err
	}

	if err := write(header.Data); err != nil {
		return toStatus(err)
	}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.ls.Warn(log_service.LogEvent{
				Message:  "Store stream broke before completion",
				Metadata: map[string]any{"filename": session.Name(), "clientID": clientID, "received": received, "error": err.Error()},
			})
			return toStatus(err)
		}
		if err := write(chunk.Data); err != nil {
			return toStatus(err)
		}
	}

	rec, err := session.Commit()
	s.recordBytes("in", received)
	if err != nil {
		return toStatus(err)
	}

	return stream.Send(&communication.StoreReply{
		Done:     true,
		Filename: rec.Name,
		Mtime:    rec.Mtime,
		Size:     rec.Size,
		Checksum: rec.Checksum,
	})
}

func (s *DefaultServer) Fetch(req *communication.FetchRequest, stream grpc.ServerStreamingServer[communication.FetchChunk]) error {
	ctx := stream.Context()

	compression, err := transfer.ParseCompression(req.Compression)
	if err != nil {
		return toStatus(err)
	}

	session, err := s.fs.OpenFetch(ctx, req.Filename, req.Checksum, compression)
	if err != nil {
		return toStatus(err)
	}
	defer session.Close()

	// Content decides; a newer client copy is still overwritten.
	if req.Mtime > session.Record.Mtime {
		s.ls.Debug(log_service.LogEvent{
			Message:  "Client copy is newer than the server's",
			Metadata: map[string]any{"filename": session.Record.Name, "clientMtime": req.Mtime, "serverMtime": session.Record.Mtime},
		})
	}

	header := &communication.FetchChunk{
		Filename:    session.Record.Name,
		Mtime:       session.Record.Mtime,
		Size:        session.Record.Size,
		Checksum:    session.Record.Checksum,
		Compression: string(session.Compression()),
	}

	headerSent := false
	sent, err := session.Send(ctx, func(payload []byte) error {
		if !headerSent {
			headerSent = true
			header.Data = payload
			return stream.Send(header)
		}
		return stream.Send(&communication.FetchChunk{Data: payload})
	})
	s.recordBytes("out", sent)
	if err != nil {
		return toStatus(err)
	}
	if !headerSent {
		if err := stream.Send(header); err != nil {
			return toStatus(err)
		}
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "File fetched",
		Metadata: map[string]any{"filename": header.Filename, "size": sent},
	})
	return nil
}

func (s *DefaultServer) Delete(ctx context.Context, req *communication.DeleteRequest) (*communication.DeleteResponse, error) {
	clientID := req.ClientID
	if clientID == "" {
		clientID = communication.ClientIDFromContext(ctx)
	}
	if err := s.fs.Delete(ctx, clientID, req.Filename); err != nil {
		return nil, toStatus(err)
	}
	return &communication.DeleteResponse{Filename: req.Filename}, nil
}

func (s *DefaultServer) Stat(ctx context.Context, req *communication.StatRequest) (*communication.StatResponse, error) {
	rec, err := s.fs.Stat(ctx, req.Filename)
	if err != nil {
		return nil, toStatus(err)
	}
	return &communication.StatResponse{
		Filename: rec.Name,
		Size:     rec.Size,
		Mtime:    rec.Mtime,
		Checksum: rec.Checksum,
	}, nil
}

// listing reads the version before scanning, so a change racing with the
// scan is reported again on the next CallbackList.
func (s *DefaultServer) listing(ctx context.Context) (*communication.ListResponse, error) {
	version := s.fs.Version()
	records, err := s.fs.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &communication.ListResponse{Files: toEntries(records), Version: version}, nil
}

func (s *DefaultServer) List(ctx context.Context, _ *communication.ListRequest) (*communication.ListResponse, error) {
	return s.listing(ctx)
}

func (s *DefaultServer) RequestWriteLock(ctx context.Context, req *communication.WriteLockRequest) (*communication.WriteLockResponse, error) {
	clientID := req.ClientID
	if clientID == "" {
		clientID = communication.ClientIDFromContext(ctx)
	}
	lease, err := s.fs.RequestWriteLock(ctx, req.Filename, clientID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &communication.WriteLockResponse{
		Filename:  lease.Filename,
		ExpiresAt: lease.ExpiresAt.UnixMilli(),
	}, nil
}

// ReleaseWriteLock lets a client give back a lease whose mutating call never
// reached the server.
func (s *DefaultServer) ReleaseWriteLock(ctx context.Context, req *communication.WriteLockRequest) (*communication.ReleaseWriteLockResponse, error) {
	clientID := req.ClientID
	if clientID == "" {
		clientID = communication.ClientIDFromContext(ctx)
	}
	released, err := s.fs.ReleaseWriteLock(ctx, req.Filename, clientID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &communication.ReleaseWriteLockResponse{Released: released}, nil
}

// CallbackList answers at once when the caller is behind. Otherwise it parks
// until the next change, or until the hold elapses, and then answers with the
// current listing either way. The hold never outlives the caller's deadline.
func (s *DefaultServer) CallbackList(ctx context.Context, req *communication.CallbackListRequest) (*communication.ListResponse, error) {
	hold := s.callbackHold
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline) * 9 / 10; remaining < hold {
			hold = remaining
		}
	}

	holdCtx, cancel := context.WithTimeout(ctx, hold)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if _, err := s.fs.WaitForChange(holdCtx, req.Version); err != nil && ctx.Err() != nil {
		return nil, toStatus(ctx.Err())
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Answering callback list",
		Metadata: map[string]any{"clientID": req.ClientID, "since": req.Version},
	})
	return s.listing(ctx)
}
