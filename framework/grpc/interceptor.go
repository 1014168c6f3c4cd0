// Package authgrpc provides gRPC server interceptors that bind the security
// token of a call to its context and optionally require a current user.
package authgrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"github.com/acme-app/authcontext"
	"github.com/acme-app/authcontext/core"
)

// Interceptor authenticates bearer tokens carried in gRPC metadata.
type Interceptor struct {
	service          *core.Service
	authenticator    authcontext.Authenticator
	tokenExtractor   TokenExtractor
	errorHandler     ErrorHandler
	excludedMethods  map[string]bool
	requirePrincipal bool
	logger           core.Logger
}

// New creates a new gRPC interceptor with the provided options.
// WithService and WithAuthenticator are required.
func New(opts ...Option) (*Interceptor, error) {
	i := &Interceptor{
		tokenExtractor:   MetadataTokenExtractor,
		errorHandler:     DefaultErrorHandler,
		excludedMethods:  make(map[string]bool),
		requirePrincipal: true,
	}

	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}

	if i.service == nil {
		return nil, errors.New("service is required, use WithService option")
	}
	if i.authenticator == nil {
		return nil, errors.New("authenticator is required, use WithAuthenticator option")
	}

	return i, nil
}

// UnaryServerInterceptor returns a grpc.UnaryServerInterceptor that binds
// the token of each call to its context.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if i.excludedMethods[info.FullMethod] {
			if i.logger != nil {
				i.logger.Debug("skipping authentication for excluded method",
					"method", info.FullMethod)
			}
			return handler(ctx, req)
		}

		authCtx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}

		return handler(authCtx, req)
	}
}

// StreamServerInterceptor returns a grpc.StreamServerInterceptor that binds
// the token of each stream to its context.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if i.excludedMethods[info.FullMethod] {
			if i.logger != nil {
				i.logger.Debug("skipping authentication for excluded method",
					"method", info.FullMethod)
			}
			return handler(srv, ss)
		}

		authCtx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}

		return handler(srv, &wrappedServerStream{
			ServerStream: ss,
			ctx:          authCtx,
		})
	}
}

func (i *Interceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	raw, err := i.tokenExtractor(ctx)
	if err != nil {
		if i.logger != nil {
			i.logger.Error("failed to extract token from gRPC metadata",
				"error", err,
				"method", method)
		}
		return ctx, i.errorHandler(err)
	}

	var token core.Token = core.AnonymousToken{}
	if raw != "" {
		token, err = i.authenticator.Authenticate(ctx, raw)
		if err != nil {
			if i.logger != nil {
				i.logger.Warn("bearer authentication failed",
					"error", err,
					"method", method)
			}
			return ctx, i.errorHandler(err)
		}
	}
	ctx = core.WithToken(ctx, token)

	if i.requirePrincipal {
		if _, err := i.service.CurrentUser(ctx); err != nil {
			if i.logger != nil {
				i.logger.Debug("call has no current user",
					"error", err,
					"method", method)
			}
			return ctx, i.errorHandler(err)
		}
	}

	return ctx, nil
}

// wrappedServerStream wraps grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context carrying the security token.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
