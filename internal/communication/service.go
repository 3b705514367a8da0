package communication

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "sandsync.DFSService"

const (
	DFSService_Store_FullMethodName            = "/sandsync.DFSService/Store"
	DFSService_Fetch_FullMethodName            = "/sandsync.DFSService/Fetch"
	DFSService_Delete_FullMethodName           = "/sandsync.DFSService/Delete"
	DFSService_Stat_FullMethodName             = "/sandsync.DFSService/Stat"
	DFSService_List_FullMethodName             = "/sandsync.DFSService/List"
	DFSService_RequestWriteLock_FullMethodName = "/sandsync.DFSService/RequestWriteLock"
	DFSService_ReleaseWriteLock_FullMethodName = "/sandsync.DFSService/ReleaseWriteLock"
	DFSService_CallbackList_FullMethodName     = "/sandsync.DFSService/CallbackList"
)

// DFSServer is implemented by the file server.
type DFSServer interface {
	Store(grpc.BidiStreamingServer[StoreChunk, StoreReply]) error
	Fetch(*FetchRequest, grpc.ServerStreamingServer[FetchChunk]) error
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
	Stat(context.Context, *StatRequest) (*StatResponse, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
	RequestWriteLock(context.Context, *WriteLockRequest) (*WriteLockResponse, error)
	ReleaseWriteLock(context.Context, *WriteLockRequest) (*ReleaseWriteLockResponse, error)
	CallbackList(context.Context, *CallbackListRequest) (*ListResponse, error)
}

func RegisterDFSServer(s grpc.ServiceRegistrar, srv DFSServer) {
	s.RegisterService(&DFSService_ServiceDesc, srv)
}

func unaryHandler[Req, Res any](fullMethod string, call func(DFSServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DFSServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DFSServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func storeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(DFSServer).Store(&grpc.GenericServerStream[StoreChunk, StoreReply]{ServerStream: stream})
}

func fetchHandler(srv any, stream grpc.ServerStream) error {
	in := new(FetchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DFSServer).Fetch(in, &grpc.GenericServerStream[FetchRequest, FetchChunk]{ServerStream: stream})
}

var DFSService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DFSServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Delete",
			Handler:    unaryHandler(DFSService_Delete_FullMethodName, DFSServer.Delete),
		},
		{
			MethodName: "Stat",
			Handler:    unaryHandler(DFSService_Stat_FullMethodName, DFSServer.Stat),
		},
		{
			MethodName: "List",
			Handler:    unaryHandler(DFSService_List_FullMethodName, DFSServer.List),
		},
		{
			MethodName: "RequestWriteLock",
			Handler:    unaryHandler(DFSService_RequestWriteLock_FullMethodName, DFSServer.RequestWriteLock),
		},
		{
			MethodName: "ReleaseWriteLock",
			Handler:    unaryHandler(DFSService_ReleaseWriteLock_FullMethodName, DFSServer.ReleaseWriteLock),
		},
		{
			MethodName: "CallbackList",
			Handler:    unaryHandler(DFSService_CallbackList_FullMethodName, DFSServer.CallbackList),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Store",
			Handler:       storeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "Fetch",
			Handler:       fetchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "sandsync/dfs.proto",
}

// DFSClient is the client side of DFSService. Every call is sent with the
// CBOR content-subtype.
type DFSClient interface {
	Store(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[StoreChunk, StoreReply], error)
	Fetch(ctx context.Context, in *FetchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[FetchChunk], error)
	Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error)
	Stat(ctx context.Context, in *StatRequest, opts ...grpc.CallOption) (*StatResponse, error)
	List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error)
	RequestWriteLock(ctx context.Context, in *WriteLockRequest, opts ...grpc.CallOption) (*WriteLockResponse, error)
	ReleaseWriteLock(ctx context.Context, in *WriteLockRequest, opts ...grpc.CallOption) (*ReleaseWriteLockResponse, error)
	CallbackList(ctx context.Context, in *CallbackListRequest, opts ...grpc.CallOption) (*ListResponse, error)
}

type dfsClient struct {
	cc grpc.ClientConnInterface
}

func NewDFSClient(cc grpc.ClientConnInterface) DFSClient {
	return &dfsClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *dfsClient) Store(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[StoreChunk, StoreReply], error) {
	stream, err := c.cc.NewStream(ctx, &DFSService_ServiceDesc.Streams[0], DFSService_Store_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[StoreChunk, StoreReply]{ClientStream: stream}, nil
}

func (c *dfsClient) Fetch(ctx context.Context, in *FetchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[FetchChunk], error) {
	stream, err := c.cc.NewStream(ctx, &DFSService_ServiceDesc.Streams[1], DFSService_Fetch_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[FetchRequest, FetchChunk]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *dfsClient) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	out := new(DeleteResponse)
	if err := c.cc.Invoke(ctx, DFSService_Delete_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dfsClient) Stat(ctx context.Context, in *StatRequest, opts ...grpc.CallOption) (*StatResponse, error) {
	out := new(StatResponse)
	if err := c.cc.Invoke(ctx, DFSService_Stat_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dfsClient) List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error) {
	out := new(ListResponse)
	if err := c.cc.Invoke(ctx, DFSService_List_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dfsClient) RequestWriteLock(ctx context.Context, in *WriteLockRequest, opts ...grpc.CallOption) (*WriteLockResponse, error) {
	out := new(WriteLockResponse)
	if err := c.cc.Invoke(ctx, DFSService_RequestWriteLock_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dfsClient) ReleaseWriteLock(ctx context.Context, in *WriteLockRequest, opts ...grpc.CallOption) (*ReleaseWriteLockResponse, error) {
	out := new(ReleaseWriteLockResponse)
	if err := c.cc.Invoke(ctx, DFSService_ReleaseWriteLock_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dfsClient) CallbackList(ctx context.Context, in *CallbackListRequest, opts ...grpc.CallOption) (*ListResponse, error) {
	out := new(ListResponse)
	if err := c.cc.Invoke(ctx, DFSService_CallbackList_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
