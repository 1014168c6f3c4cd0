package authgrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/acme-app/authcontext/bearer"
	"github.com/acme-app/authcontext/core"
)

// ErrorHandler converts authentication errors to gRPC status errors.
type ErrorHandler func(error) error

// DefaultErrorHandler maps authentication errors to gRPC status codes.
func DefaultErrorHandler(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrMultipleAuthHeaders),
		errors.Is(err, ErrInvalidAuthFormat),
		errors.Is(err, ErrUnsupportedScheme):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, core.ErrNoPrincipalAuthenticated):
		return status.Error(codes.Unauthenticated, "missing credentials")
	case errors.Is(err, bearer.ErrInvalidToken), errors.Is(err, bearer.ErrMissingSubject):
		return status.Error(codes.Unauthenticated, "invalid or malformed token")
	case errors.Is(err, core.ErrCsrfTokenInvalid):
		return status.Error(codes.PermissionDenied, "invalid csrf token")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "unable to resolve the current user")
	}
}
