package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/varextract/internal/types"
)

// Auth errors are mapped in the auth interceptor. Handler errors map here:
// bad requests and configuration to INVALID_ARGUMENT, recursion limits to
// FAILED_PRECONDITION, deadlines to DEADLINE_EXCEEDED, anything else
// (storage) to UNAVAILABLE.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, types.ErrRecursionLimit):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, types.ErrConfiguration), errors.Is(err, types.ErrParse):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Unavailable, err.Error())
}

func invalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}
