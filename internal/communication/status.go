package communication

import (
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

const (
	ErrorDomain         = "sandsync"
	ReasonWriteLockHeld = "WRITE_LOCK_HELD"
)

// WriteLockHeldStatus is the ResourceExhausted status returned when another
// client holds the write lease. It names the holder and how long until the
// lease lapses on its own.
func WriteLockHeldStatus(msg, filename, holder string, retryAfter time.Duration) *status.Status {
	st := status.New(codes.ResourceExhausted, msg)
	detailed, err := st.WithDetails(
		&errdetails.ErrorInfo{
			Reason:   ReasonWriteLockHeld,
			Domain:   ErrorDomain,
			Metadata: map[string]string{"filename": filename, "holder": holder},
		},
		&errdetails.RetryInfo{RetryDelay: durationpb.New(retryAfter)},
	)
	if err != nil {
		return st
	}
	return detailed
}

// WriteLockHolder extracts the details attached by WriteLockHeldStatus.
func WriteLockHolder(err error) (holder string, retryAfter time.Duration, ok bool) {
	st, isStatus := status.FromError(err)
	if !isStatus || st.Code() != codes.ResourceExhausted {
		return "", 0, false
	}
	for _, d := range st.Details() {
		switch info := d.(type) {
		case *errdetails.ErrorInfo:
			if info.GetReason() == ReasonWriteLockHeld {
				holder = info.GetMetadata()["holder"]
				ok = true
			}
		case *errdetails.RetryInfo:
			retryAfter = info.GetRetryDelay().AsDuration()
		}
	}
	return holder, retryAfter, ok
}
