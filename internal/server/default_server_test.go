package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AnishMulay/sandsync/internal/communication"
	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/file_service"
	"github.com/AnishMulay/sandsync/internal/lock_service"
	"github.com/AnishMulay/sandsync/internal/log_service/console"
	"github.com/AnishMulay/sandsync/internal/mount"
	"github.com/AnishMulay/sandsync/internal/notify_service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type testServer struct {
	srv    *DefaultServer
	client communication.DFSClient
	dir    string
	locks  *lock_service.InMemoryLockService
	notify *notify_service.ChangeNotifier
}

func startTestServer(t *testing.T, hold time.Duration, watch bool) *testServer {
	t.Helper()

	ls := console.NewDiscardLogService()
	root, err := mount.New(t.TempDir())
	require.NoError(t, err)

	locks := lock_service.NewInMemoryLockService(time.Minute, ls, nil)
	notifier := notify_service.NewChangeNotifier(ls, nil)
	fs := file_service.NewDefaultFileService(root, locks, notifier, ls, 256)

	var watchers []Watcher
	if watch {
		watchers = append(watchers, notify_service.NewDirWatcher(root.Dir(), notifier, ls))
	}

	comm := communication.NewGRPCServer("bufnet", ls, ServerOptions(ls, nil)...)
	srv := NewDefaultServer(comm, fs, ls, nil, hold, watchers...)

	lis := bufconn.Listen(1 << 20)
	require.NoError(t, srv.StartListener(lis))
	t.Cleanup(func() { _ = srv.Stop() })

	conn, err := communication.Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testServer{
		srv:    srv,
		client: communication.NewDFSClient(conn),
		dir:    root.Dir(),
		locks:  locks,
		notify: notifier,
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (ts *testServer) store(ctx context.Context, clientID, name string, data []byte) (*communication.StoreReply, error) {
	stream, err := ts.client.Store(communication.WithClientID(ctx, clientID))
	if err != nil {
		return nil, err
	}
	if err := stream.Send(&communication.StoreChunk{
		Filename: name,
		Checksum: file_record.ChecksumBytes(data),
		Size:     int64(len(data)),
	}); err != nil {
		return nil, err
	}
	if _, err := stream.Recv(); err != nil {
		return nil, err
	}
	for off := 0; off < len(data); off += 100 {
		end := min(off+100, len(data))
		if err := stream.Send(&communication.StoreChunk{Data: data[off:end]}); err != nil {
			return nil, err
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream.Recv()
}

func (ts *testServer) fetch(ctx context.Context, name, known string) ([]byte, *communication.FetchChunk, error) {
	stream, err := ts.client.Fetch(ctx, &communication.FetchRequest{Filename: name, Checksum: known})
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	var header *communication.FetchChunk
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), header, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if header == nil {
			header = chunk
		}
		buf.Write(chunk.Data)
	}
}

func TestDefaultServer_ReportScenario(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)
	data := bytes.Repeat([]byte("r"), 1000)

	reply, err := ts.store(ctx, "A", "report.txt", data)
	require.NoError(t, err)
	assert.True(t, reply.Done)
	assert.Equal(t, int64(1000), reply.Size)
	assert.Equal(t, file_record.ChecksumBytes(data), reply.Checksum)

	got, header, err := ts.fetch(ctx, "report.txt", "")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, reply.Mtime, header.Mtime)
	assert.Equal(t, int64(1000), header.Size)

	_, _, err = ts.fetch(ctx, "report.txt", reply.Checksum)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = ts.client.Delete(ctx, &communication.DeleteRequest{Filename: "report.txt", ClientID: "A"})
	require.NoError(t, err)

	list, err := ts.client.List(ctx, &communication.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Files)

	_, _, err = ts.fetch(ctx, "report.txt", "")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestDefaultServer_StoreUnchangedSendsNoData(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)
	data := []byte("identical")

	_, err := ts.store(ctx, "A", "same.txt", data)
	require.NoError(t, err)

	stream, err := ts.client.Store(communication.WithClientID(ctx, "A"))
	require.NoError(t, err)
	require.NoError(t, stream.Send(&communication.StoreChunk{Filename: "same.txt", Checksum: file_record.ChecksumBytes(data)}))
	_, err = stream.Recv()
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestDefaultServer_StoreEmptyStream(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)

	stream, err := ts.client.Store(communication.WithClientID(ctx, "A"))
	require.NoError(t, err)
	require.NoError(t, stream.CloseSend())

	_, err = stream.Recv()
	assert.Equal(t, codes.Canceled, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "no data")
}

func TestDefaultServer_StoreDataWithHeader(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)
	data := []byte("header carries data")

	stream, err := ts.client.Store(communication.WithClientID(ctx, "A"))
	require.NoError(t, err)
	require.NoError(t, stream.Send(&communication.StoreChunk{Filename: "h.txt", Checksum: file_record.ChecksumBytes(data), Data: data}))
	_, err = stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.CloseSend())
	done, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), done.Size)

	got, err := os.ReadFile(filepath.Join(ts.dir, "h.txt"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDefaultServer_StoreBrokenStreamKeepsOriginal(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)

	_, err := ts.store(ctx, "A", "keep.txt", []byte("original"))
	require.NoError(t, err)

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := ts.client.Store(communication.WithClientID(streamCtx, "A"))
	require.NoError(t, err)
	require.NoError(t, stream.Send(&communication.StoreChunk{Filename: "keep.txt", Checksum: file_record.ChecksumBytes([]byte("replacement"))}))
	_, err = stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.Send(&communication.StoreChunk{Data: []byte("repl")}))
	cancel()

	require.Eventually(t, func() bool {
		_, held := ts.locks.Holder("keep.txt")
		return !held
	}, 2*time.Second, 10*time.Millisecond, "lease must be released when the stream breaks")

	got, err := os.ReadFile(filepath.Join(ts.dir, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}

func TestDefaultServer_WriteLockScenario(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)

	_, err := ts.client.RequestWriteLock(ctx, &communication.WriteLockRequest{Filename: "x.txt", ClientID: "A"})
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{
			name: "lock request from B",
			call: func() error {
				_, err := ts.client.RequestWriteLock(ctx, &communication.WriteLockRequest{Filename: "x.txt", ClientID: "B"})
				return err
			},
		},
		{
			name: "store from B",
			call: func() error {
				_, err := ts.store(ctx, "B", "x.txt", []byte("from B"))
				return err
			},
		},
		{
			name: "delete from B",
			call: func() error {
				_, err := ts.client.Delete(ctx, &communication.DeleteRequest{Filename: "x.txt", ClientID: "B"})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.Equal(t, codes.ResourceExhausted, status.Code(err))

			holder, retry, ok := communication.WriteLockHolder(err)
			require.True(t, ok)
			assert.Equal(t, "A", holder)
			assert.Greater(t, retry, time.Duration(0))
		})
	}

	// A's own store releases the lease when the call unwinds.
	_, err = ts.store(ctx, "A", "x.txt", []byte("from A"))
	require.NoError(t, err)
	_, held := ts.locks.Holder("x.txt")
	assert.False(t, held)

	_, err = ts.store(ctx, "B", "x.txt", []byte("from B"))
	assert.NoError(t, err)
}

func TestDefaultServer_ReleaseWriteLock(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)

	_, err := ts.client.RequestWriteLock(ctx, &communication.WriteLockRequest{Filename: "x.txt", ClientID: "A"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		clientID string
		want     bool
	}{
		{name: "not the holder", clientID: "B", want: false},
		{name: "holder", clientID: "A", want: true},
		{name: "already released", clientID: "A", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ts.client.ReleaseWriteLock(ctx, &communication.WriteLockRequest{Filename: "x.txt", ClientID: tt.clientID})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Released)
		})
	}

	_, err = ts.client.RequestWriteLock(ctx, &communication.WriteLockRequest{Filename: "x.txt", ClientID: "B"})
	assert.NoError(t, err)

	_, err = ts.client.ReleaseWriteLock(ctx, &communication.WriteLockRequest{Filename: "../x.txt", ClientID: "B"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDefaultServer_FetchIgnoresClientMtime(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)

	data := []byte("server copy")
	reply, err := ts.store(ctx, "A", "m.txt", data)
	require.NoError(t, err)
	future := time.Now().Add(24 * time.Hour).Unix()

	tests := []struct {
		name     string
		checksum string
		mtime    int64
		wantCode codes.Code
	}{
		{name: "newer client copy with other content", checksum: file_record.ChecksumBytes([]byte("client copy")), mtime: future, wantCode: codes.OK},
		{name: "older client copy with same content", checksum: reply.Checksum, mtime: 1, wantCode: codes.AlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := ts.client.Fetch(ctx, &communication.FetchRequest{Filename: "m.txt", Checksum: tt.checksum, Mtime: tt.mtime})
			require.NoError(t, err)

			var got []byte
			for {
				chunk, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					assert.Equal(t, tt.wantCode, status.Code(err))
					return
				}
				got = append(got, chunk.Data...)
			}
			assert.Equal(t, codes.OK, tt.wantCode)
			assert.Equal(t, data, got)
		})
	}
}

func TestDefaultServer_InvalidNames(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)

	_, err := ts.client.Stat(ctx, &communication.StatRequest{Filename: "../../etc/passwd"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = ts.store(ctx, "A", "../escape.txt", []byte("x"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDefaultServer_Stat(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)

	reply, err := ts.store(ctx, "A", "s.txt", []byte("12345"))
	require.NoError(t, err)

	resp, err := ts.client.Stat(ctx, &communication.StatRequest{Filename: "s.txt"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Size)
	assert.Equal(t, reply.Mtime, resp.Mtime)
	assert.Equal(t, reply.Checksum, resp.Checksum)

	_, err = ts.client.Stat(ctx, &communication.StatRequest{Filename: "nope.txt"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestDefaultServer_FetchEmptyFile(t *testing.T) {
	ts := startTestServer(t, time.Second, false)
	ctx := testContext(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.dir, "empty.txt"), nil, 0644))

	got, header, err := ts.fetch(ctx, "empty.txt", "")
	require.NoError(t, err)
	require.NotNil(t, header, "an empty file still gets a header")
	assert.Empty(t, got)
	assert.Equal(t, "empty.txt", header.Filename)
	assert.Equal(t, file_record.ChecksumBytes(nil), header.Checksum)
}

func TestDefaultServer_CallbackList(t *testing.T) {
	tests := []struct {
		name        string
		behind      bool
		change      bool
		wantAdvance bool
		minWait     time.Duration
	}{
		{name: "behind client answered immediately", behind: true, wantAdvance: true},
		{name: "current client woken by store", change: true, wantAdvance: true},
		{name: "current client answered after hold", minWait: 150 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := startTestServer(t, 200*time.Millisecond, false)
			ctx := testContext(t)

			current := ts.notify.Version()
			since := current
			if tt.behind {
				since = 0
			}

			if tt.change {
				go func() {
					time.Sleep(30 * time.Millisecond)
					_, _ = ts.store(ctx, "A", "new.txt", []byte("new"))
				}()
			}

			start := time.Now()
			resp, err := ts.client.CallbackList(ctx, &communication.CallbackListRequest{ClientID: "C", Version: since})
			require.NoError(t, err)

			if tt.wantAdvance {
				assert.Greater(t, resp.Version, since)
			} else {
				assert.Equal(t, current, resp.Version)
			}
			assert.GreaterOrEqual(t, time.Since(start), tt.minWait)
		})
	}
}

func TestDefaultServer_CallbackListSeesOutOfBandChange(t *testing.T) {
	ts := startTestServer(t, 3*time.Second, true)
	ctx := testContext(t)

	since := ts.notify.Version()
	done := make(chan *communication.ListResponse, 1)
	go func() {
		resp, err := ts.client.CallbackList(ctx, &communication.CallbackListRequest{ClientID: "C", Version: since})
		if err == nil {
			done <- resp
		}
	}()

	deadline := time.After(3 * time.Second)
	for i := 0; ; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(ts.dir, "dropped.txt"), []byte(fmt.Sprint(i)), 0644))
		select {
		case resp := <-done:
			assert.Greater(t, resp.Version, since)
			require.Len(t, resp.Files, 1)
			assert.Equal(t, "dropped.txt", resp.Files[0].Filename)
			return
		case <-deadline:
			t.Fatal("mount watcher did not complete the pending callback")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestToStatus(t *testing.T) {
	held := &lock_service.LockHeldError{Lease: lock_service.Lease{Filename: "x.txt", ClientID: "A", ExpiresAt: time.Now().Add(time.Minute)}}

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "nil", err: nil, want: codes.OK},
		{name: "not found", err: fmt.Errorf("%w: a", file_service.ErrFileNotFound), want: codes.NotFound},
		{name: "unchanged", err: file_service.ErrUnchanged, want: codes.AlreadyExists},
		{name: "lease held", err: held, want: codes.ResourceExhausted},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{name: "canceled", err: context.Canceled, want: codes.Canceled},
		{name: "escape", err: mount.ErrPathEscapesRoot, want: codes.InvalidArgument},
		{name: "status passes through", err: status.Error(codes.NotFound, "x"), want: codes.NotFound},
		{name: "anything else", err: errors.New("disk on fire"), want: codes.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(toStatus(tt.err)))
		})
	}
}
