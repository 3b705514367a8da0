package communication

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// ClientIDHeader carries the caller's client id on every call, so that
// stream handlers can bind write leases before the first message arrives.
const ClientIDHeader = "x-sandsync-client-id"

func WithClientID(ctx context.Context, clientID string) context.Context {
	if clientID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, ClientIDHeader, clientID)
}

// ClientIDFromContext returns the client id sent by the caller, or "".
func ClientIDFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(ClientIDHeader); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
