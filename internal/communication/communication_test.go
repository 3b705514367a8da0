package communication

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/AnishMulay/sandsync/internal/log_service/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// echoServer stores chunks in memory and replays them on Fetch.
type echoServer struct {
	stored     []byte
	lastClient string
}

func (s *echoServer) Store(stream grpc.BidiStreamingServer[StoreChunk, StoreReply]) error {
	s.lastClient = ClientIDFromContext(stream.Context())

	header, err := stream.Recv()
	if err != nil {
		return status.Error(codes.Canceled, "no data")
	}
	if err := stream.Send(&StoreReply{Ready: true}); err != nil {
		return err
	}

	var buf bytes.Buffer
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		buf.Write(chunk.Data)
	}
	s.stored = buf.Bytes()
	return stream.Send(&StoreReply{Done: true, Filename: header.Filename, Size: int64(buf.Len())})
}

func (s *echoServer) Fetch(req *FetchRequest, stream grpc.ServerStreamingServer[FetchChunk]) error {
	if s.stored == nil {
		return status.Error(codes.NotFound, req.Filename)
	}
	if err := stream.Send(&FetchChunk{Filename: req.Filename, Size: int64(len(s.stored))}); err != nil {
		return err
	}
	return stream.Send(&FetchChunk{Data: s.stored})
}

func (s *echoServer) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	s.lastClient = req.ClientID
	s.stored = nil
	return &DeleteResponse{Filename: req.Filename}, nil
}

func (s *echoServer) Stat(ctx context.Context, req *StatRequest) (*StatResponse, error) {
	return &StatResponse{Filename: req.Filename, Size: int64(len(s.stored)), Mtime: 42}, nil
}

func (s *echoServer) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	return &ListResponse{Files: []FileEntry{{Filename: "a.txt", Size: int64(len(s.stored))}}, Version: 7}, nil
}

func (s *echoServer) RequestWriteLock(ctx context.Context, req *WriteLockRequest) (*WriteLockResponse, error) {
	return nil, status.Error(codes.ResourceExhausted, "held")
}

func (s *echoServer) ReleaseWriteLock(ctx context.Context, req *WriteLockRequest) (*ReleaseWriteLockResponse, error) {
	s.lastClient = req.ClientID
	return &ReleaseWriteLockResponse{Released: true}, nil
}

func (s *echoServer) CallbackList(ctx context.Context, req *CallbackListRequest) (*ListResponse, error) {
	return &ListResponse{Version: req.Version + 1}, nil
}

func startEchoServer(t *testing.T) (*echoServer, *grpc.ClientConn) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	impl := &echoServer{}
	srv := NewGRPCServer("bufnet", console.NewDiscardLogService())
	srv.Register(impl)
	require.NoError(t, srv.StartListener(lis))
	t.Cleanup(func() { _ = srv.Stop() })

	conn, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return impl, conn
}

func TestDFSService_Unary(t *testing.T) {
	impl, conn := startEchoServer(t)
	client := NewDFSClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stat, err := client.Stat(ctx, &StatRequest{Filename: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", stat.Filename)
	assert.Equal(t, int64(42), stat.Mtime)

	list, err := client.List(ctx, &ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), list.Version)
	require.Len(t, list.Files, 1)

	cb, err := client.CallbackList(ctx, &CallbackListRequest{ClientID: "c1", Version: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), cb.Version)

	del, err := client.Delete(ctx, &DeleteRequest{Filename: "a.txt", ClientID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", del.Filename)
	assert.Equal(t, "c1", impl.lastClient)

	_, err = client.RequestWriteLock(ctx, &WriteLockRequest{Filename: "a.txt", ClientID: "c1"})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	rel, err := client.ReleaseWriteLock(ctx, &WriteLockRequest{Filename: "a.txt", ClientID: "c2"})
	require.NoError(t, err)
	assert.True(t, rel.Released)
	assert.Equal(t, "c2", impl.lastClient)
}

func TestDFSService_StoreThenFetch(t *testing.T) {
	impl, conn := startEchoServer(t)
	client := NewDFSClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := bytes.Repeat([]byte("sandsync"), 1000)

	stream, err := client.Store(WithClientID(ctx, "client-7"))
	require.NoError(t, err)
	require.NoError(t, stream.Send(&StoreChunk{Filename: "a.txt", Size: int64(len(payload))}))

	ready, err := stream.Recv()
	require.NoError(t, err)
	assert.True(t, ready.Ready)

	require.NoError(t, stream.Send(&StoreChunk{Data: payload[:4000]}))
	require.NoError(t, stream.Send(&StoreChunk{Data: payload[4000:]}))
	require.NoError(t, stream.CloseSend())

	done, err := stream.Recv()
	require.NoError(t, err)
	assert.True(t, done.Done)
	assert.Equal(t, int64(len(payload)), done.Size)
	assert.Equal(t, "client-7", impl.lastClient)

	fetch, err := client.Fetch(ctx, &FetchRequest{Filename: "a.txt"})
	require.NoError(t, err)

	var got bytes.Buffer
	for {
		chunk, err := fetch.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got.Write(chunk.Data)
	}
	assert.Equal(t, payload, got.Bytes())
}

func TestDFSService_FetchMissing(t *testing.T) {
	_, conn := startEchoServer(t)
	client := NewDFSClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fetch, err := client.Fetch(ctx, &FetchRequest{Filename: "missing.txt"})
	require.NoError(t, err)
	_, err = fetch.Recv()
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCServer_Health(t *testing.T) {
	_, conn := startEchoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestGRPCServer_StartErrors(t *testing.T) {
	tests := []struct {
		name     string
		register bool
		twice    bool
		wantErr  error
	}{
		{name: "no service registered", wantErr: ErrServiceNotRegistered},
		{name: "started twice", register: true, twice: true, wantErr: ErrServerAlreadyStarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewGRPCServer("bufnet", console.NewDiscardLogService())
			if tt.register {
				srv.Register(&echoServer{})
			}
			t.Cleanup(func() { _ = srv.Stop() })

			err := srv.StartListener(bufconn.Listen(1024))
			if tt.twice {
				require.NoError(t, err)
				err = srv.StartListener(bufconn.Listen(1024))
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDial_EmptyTarget(t *testing.T) {
	_, err := Dial("")
	assert.ErrorIs(t, err, ErrMissingTarget)
}

func TestWriteLockHeldStatus_RoundTrip(t *testing.T) {
	err := WriteLockHeldStatus("held", "x.txt", "A", 12*time.Second).Err()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	holder, retry, ok := WriteLockHolder(err)
	require.True(t, ok)
	assert.Equal(t, "A", holder)
	assert.Equal(t, 12*time.Second, retry)

	_, _, ok = WriteLockHolder(status.Error(codes.NotFound, "x.txt"))
	assert.False(t, ok)
}
