package sandlib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/AnishMulay/sandsync/internal/communication"
	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/mount"
	"github.com/AnishMulay/sandsync/internal/transfer"
	"github.com/google/uuid"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func NewSyncClient(opts Options, ls log_service.LogService) (*SyncClient, error) {
	if opts.ServerAddr == "" {
		return nil, ErrMissingServer
	}
	if opts.MountDir == "" {
		return nil, ErrMissingMount
	}
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = DefaultResetTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultChunkSize
	}
	if opts.Compression == "" {
		opts.Compression = transfer.CompressionNone
	}

	root, err := mount.New(opts.MountDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocalIO, err)
	}

	dialOpts := append([]grpc.DialOption{communication.ClientMessageOptions(opts.ChunkSize)}, opts.DialOptions...)
	conn, err := communication.Dial(opts.ServerAddr, dialOpts...)
	if err != nil {
		return nil, err
	}

	return &SyncClient{
		opts:        opts,
		conn:        conn,
		rpc:         communication.NewDFSClient(conn),
		root:        root,
		ls:          ls,
		completions: make(chan pendingCall, 1),
	}, nil
}

func (c *SyncClient) ClientID() string {
	return c.opts.ClientID
}

func (c *SyncClient) MountDir() string {
	return c.root.Dir()
}

func (c *SyncClient) Close() error {
	return c.conn.Close()
}

// callContext bounds one remote call by the configured deadline and tags it
// with the client id.
func (c *SyncClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Deadline)
	return communication.WithClientID(ctx, c.opts.ClientID), cancel
}

// resolve accepts only names directly inside the mirror root.
func (c *SyncClient) resolve(name string) (string, string, error) {
	cleaned, err := mount.Clean(name)
	if err != nil {
		return "", "", err
	}
	if strings.Contains(cleaned, "/") {
		return "", "", fmt.Errorf("%w: nested path %q", mount.ErrInvalidName, name)
	}
	path, err := c.root.Resolve(cleaned)
	if err != nil {
		return "", "", err
	}
	return cleaned, path, nil
}

// normalize folds a remote failure into the calling operation's status
// vocabulary. DeadlineExceeded is always allowed; any other code not listed
// becomes Canceled. ResourceExhausted is kept only when it reports a held
// write lock; transport limits use the same code.
func normalize(err error, allowed ...codes.Code) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return status.Error(codes.DeadlineExceeded, err.Error())
		default:
			return status.Error(codes.Canceled, err.Error())
		}
	}

	code := st.Code()
	if code == codes.ResourceExhausted {
		if _, _, held := communication.WriteLockHolder(err); !held {
			return status.Error(codes.Canceled, st.Message())
		}
	}
	if code == codes.DeadlineExceeded || code == codes.Canceled || slices.Contains(allowed, code) {
		return err
	}
	return status.Error(codes.Canceled, st.Message())
}

func localError(err error) error {
	return fmt.Errorf("%w: %v", ErrLocalIO, err)
}

func (c *SyncClient) requestWriteLock(ctx context.Context, name string) error {
	_, err := c.rpc.RequestWriteLock(ctx, &communication.WriteLockRequest{Filename: name, ClientID: c.opts.ClientID})
	if err != nil {
		if holder, retry, ok := communication.WriteLockHolder(err); ok {
			c.ls.Info(log_service.LogEvent{
				Message:  "Write lock held by another client",
				Metadata: map[string]any{"filename": name, "holder": holder, "retryAfter": retry.String()},
			})
		}
		return err
	}
	return nil
}

// releaseWriteLock gives back a lease taken for a call that then failed. It
// outlives the caller's context; the lease lapses on its own if this fails.
func (c *SyncClient) releaseWriteLock(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	resp, err := c.rpc.ReleaseWriteLock(ctx, &communication.WriteLockRequest{Filename: name, ClientID: c.opts.ClientID})
	if err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Failed to release write lock",
			Metadata: map[string]any{"filename": name, "error": err.Error()},
		})
		return
	}
	c.ls.Debug(log_service.LogEvent{
		Message:  "Write lock given back",
		Metadata: map[string]any{"filename": name, "released": resp.Released},
	})
}

// RequestWriteLock takes or refreshes the write lease for name. The lease is
// dropped by the next Store or Delete of name, or when it expires.
func (c *SyncClient) RequestWriteLock(ctx context.Context, name string) error {
	cleaned, _, err := c.resolve(name)
	if err != nil {
		return err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return normalize(c.requestWriteLock(ctx, cleaned), codes.ResourceExhausted)
}

// Store uploads the local copy of name. It returns AlreadyExists when the
// server has identical content and ResourceExhausted when another client
// holds the write lease. On success the local mtime matches the server's.
func (c *SyncClient) Store(ctx context.Context, name string) error {
	cleaned, path, err := c.resolve(name)
	if err != nil {
		return err
	}

	checksum, err := file_record.Checksum(path)
	if errors.Is(err, file_record.ErrNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	if err != nil {
		return localError(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return localError(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return localError(err)
	}

	codec, err := transfer.NewCodec(c.opts.Compression, c.opts.ChunkSize)
	if err != nil {
		return err
	}
	defer codec.Close()

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	if err := c.requestWriteLock(ctx, cleaned); err != nil {
		return normalize(err, codes.ResourceExhausted)
	}

	reply, err := c.storeStream(ctx, cleaned, checksum, info, f, codec)
	if err != nil {
		c.releaseWriteLock(ctx, cleaned)
		return err
	}

	t := time.Unix(reply.Mtime, 0)
	if err := os.Chtimes(path, t, t); err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Failed to stamp server mtime on local copy",
			Metadata: map[string]any{"filename": cleaned, "error": err.Error()},
		})
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "File stored",
		Metadata: map[string]any{"filename": cleaned, "size": reply.Size, "mtime": reply.Mtime},
	})
	return nil
}

func (c *SyncClient) storeStream(ctx context.Context, name, checksum string, info os.FileInfo, r io.Reader, codec *transfer.Codec) (*communication.StoreReply, error) {
	vocabulary := []codes.Code{codes.AlreadyExists, codes.ResourceExhausted}

	stream, err := c.rpc.Store(ctx)
	if err != nil {
		return nil, normalize(err, vocabulary...)
	}

	// A failed Send only reports io.EOF; the real status comes from Recv.
	remoteErr := func(err error) error {
		if errors.Is(err, io.EOF) {
			_, err = stream.Recv()
			if err == nil || errors.Is(err, io.EOF) {
				err = status.Error(codes.Canceled, "store stream closed early")
			}
		}
		return normalize(err, vocabulary...)
	}

	if err := stream.Send(&communication.StoreChunk{
		Filename:    name,
		Checksum:    checksum,
		Mtime:       info.ModTime().Unix(),
		Size:        info.Size(),
		Compression: string(codec.Compression()),
	}); err != nil {
		return nil, remoteErr(err)
	}

	ready, err := stream.Recv()
	if err != nil {
		return nil, remoteErr(err)
	}
	if !ready.Ready {
		return nil, status.Error(codes.Canceled, "server did not accept store header")
	}

	_, err = transfer.SendFile(ctx, r, c.opts.ChunkSize, codec, func(payload []byte) error {
		return stream.Send(&communication.StoreChunk{Data: payload})
	})
	if errors.Is(err, transfer.ErrReadFailed) {
		return nil, localError(err)
	}
	if err != nil {
		return nil, remoteErr(err)
	}

	if err := stream.CloseSend(); err != nil {
		return nil, remoteErr(err)
	}
	reply, err := stream.Recv()
	if err != nil {
		return nil, remoteErr(err)
	}
	if !reply.Done {
		return nil, status.Error(codes.Canceled, "store was not committed")
	}
	return reply, nil
}

// Fetch downloads name into the mirror. It returns AlreadyExists when the
// local copy already matches. The local file is replaced only by a complete
// download; on any failure it is left as it was.
func (c *SyncClient) Fetch(ctx context.Context, name string) error {
	vocabulary := []codes.Code{codes.NotFound, codes.AlreadyExists}

	cleaned, path, err := c.resolve(name)
	if err != nil {
		return err
	}

	known, err := file_record.Stat(path, cleaned)
	if err != nil && !errors.Is(err, file_record.ErrNotFound) {
		return localError(err)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	stream, err := c.rpc.Fetch(ctx, &communication.FetchRequest{
		Filename:    cleaned,
		Checksum:    known.Checksum,
		Mtime:       known.Mtime,
		Compression: string(c.opts.Compression),
	})
	if err != nil {
		return normalize(err, vocabulary...)
	}

	header, err := stream.Recv()
	if errors.Is(err, io.EOF) {
		return status.Error(codes.Canceled, "fetch stream ended without a header")
	}
	if err != nil {
		return normalize(err, vocabulary...)
	}

	compression, err := transfer.ParseCompression(header.Compression)
	if err != nil {
		return status.Error(codes.Canceled, err.Error())
	}
	codec, err := transfer.NewCodec(compression, c.opts.ChunkSize)
	if err != nil {
		return status.Error(codes.Canceled, err.Error())
	}
	defer codec.Close()

	file, err := transfer.NewAtomicFile(path)
	if err != nil {
		return localError(err)
	}
	defer file.Abort()

	digest := file_record.NewDigest()
	write := func(payload []byte) error {
		raw, err := codec.Decode(payload)
		if err != nil {
			return status.Error(codes.Canceled, err.Error())
		}
		if _, err := file.Write(raw); err != nil {
			return localError(err)
		}
		_, _ = digest.Write(raw)
		return nil
	}

	if err := write(header.Data); err != nil {
		return err
	}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return normalize(err, vocabulary...)
		}
		if err := write(chunk.Data); err != nil {
			return err
		}
	}

	if header.Checksum != "" && digest.Sum() != header.Checksum {
		return status.Errorf(codes.Canceled, "fetched content of %q does not match its checksum", cleaned)
	}
	if err := file.Commit(header.Mtime); err != nil {
		return localError(err)
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "File fetched",
		Metadata: map[string]any{"filename": cleaned, "size": file.Written(), "mtime": header.Mtime},
	})
	return nil
}

// Delete removes name on the server and, once that succeeds, from the mirror.
func (c *SyncClient) Delete(ctx context.Context, name string) error {
	cleaned, path, err := c.resolve(name)
	if err != nil {
		return err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	if err := c.requestWriteLock(ctx, cleaned); err != nil {
		return normalize(err, codes.ResourceExhausted)
	}

	if _, err := c.rpc.Delete(ctx, &communication.DeleteRequest{Filename: cleaned, ClientID: c.opts.ClientID}); err != nil {
		c.releaseWriteLock(ctx, cleaned)
		return normalize(err, codes.NotFound, codes.ResourceExhausted)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Failed to remove local copy after delete",
			Metadata: map[string]any{"filename": cleaned, "error": err.Error()},
		})
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "File deleted",
		Metadata: map[string]any{"filename": cleaned},
	})
	return nil
}

func toRecords(entries []communication.FileEntry) []file_record.FileRecord {
	records := make([]file_record.FileRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, file_record.FileRecord{
			Name:     e.Filename,
			Size:     e.Size,
			Mtime:    e.Mtime,
			Checksum: e.Checksum,
		})
	}
	return records
}

func (c *SyncClient) List(ctx context.Context) ([]file_record.FileRecord, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.rpc.List(ctx, &communication.ListRequest{})
	if err != nil {
		return nil, normalize(err)
	}
	return toRecords(resp.Files), nil
}

func (c *SyncClient) Stat(ctx context.Context, name string) (file_record.FileRecord, error) {
	cleaned, _, err := c.resolve(name)
	if err != nil {
		return file_record.FileRecord{}, err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.rpc.Stat(ctx, &communication.StatRequest{Filename: cleaned})
	if err != nil {
		return file_record.FileRecord{}, normalize(err, codes.NotFound)
	}
	return file_record.FileRecord{
		Name:     resp.Filename,
		Size:     resp.Size,
		Mtime:    resp.Mtime,
		Checksum: resp.Checksum,
	}, nil
}
