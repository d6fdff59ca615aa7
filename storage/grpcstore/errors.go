package grpcstore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/privatefs/storage"
)

// toStatus converts a block store error into the status the server sends.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.AlreadyExists, storage.ErrImmutable.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus turns a status received by the client back into the block
// store sentinel it stands for, so callers can match with errors.Is
// regardless of which backend sits behind the daemon.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		return storage.ErrInvalidCID
	case codes.DataLoss:
		return storage.ErrCIDMismatch
	case codes.AlreadyExists:
		return storage.ErrImmutable
	case codes.Canceled:
		return fmt.Errorf("grpcstore: block store call canceled: %w", context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("grpcstore: block store call timed out: %w", context.DeadlineExceeded)
	case codes.Unavailable:
		return fmt.Errorf("grpcstore: block store daemon unavailable: %s", st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("grpcstore: daemon has no block store: %s", st.Message())
	default:
		return fmt.Errorf("grpcstore: block store %s: %s", st.Code(), st.Message())
	}
}
