package core

import (
	"errors"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Option is a function that configures the Service.
// Options return errors to enable validation during construction.
type Option func(*Service) error

// New creates a new Service with the provided options.
//
// WithUserDirectory, WithCredentialVerifier and WithCsrfTokenValidator are
// required. The token holder defaults to ContextTokenHolder.
//
// Example:
//
//	svc, err := core.New(
//	    core.WithUserDirectory(users),
//	    core.WithCredentialVerifier(credential.NewBcryptVerifier()),
//	    core.WithCsrfTokenValidator(csrf.NewManager()),
//	    core.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
func New(opts ...Option) (*Service, error) {
	s := &Service{
		tokens:  ContextTokenHolder{},
		metrics: NoopMetrics{},
		tracer:  noop.NewTracerProvider().Tracer(tracerName),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// validate ensures all required collaborators are set.
func (s *Service) validate() error {
	if s.directory == nil {
		return &ConfigError{
			Code:    ErrorCodeDirectoryNotSet,
			Message: "user directory is required but not set (use WithUserDirectory option)",
		}
	}
	if s.verifier == nil {
		return &ConfigError{
			Code:    ErrorCodeVerifierNotSet,
			Message: "credential verifier is required but not set (use WithCredentialVerifier option)",
		}
	}
	if s.csrf == nil {
		return &ConfigError{
			Code:    ErrorCodeCsrfNotSet,
			Message: "csrf token validator is required but not set (use WithCsrfTokenValidator option)",
		}
	}
	return nil
}

// WithUserDirectory sets the user directory. Required.
func WithUserDirectory(d UserDirectory) Option {
	return func(s *Service) error {
		if d == nil {
			return errors.New("user directory cannot be nil")
		}
		s.directory = d
		return nil
	}
}

// WithCredentialVerifier sets the secret verifier. Required.
func WithCredentialVerifier(v CredentialVerifier) Option {
	return func(s *Service) error {
		if v == nil {
			return errors.New("credential verifier cannot be nil")
		}
		s.verifier = v
		return nil
	}
}

// WithCsrfTokenValidator sets the CSRF token validity capability. Required.
func WithCsrfTokenValidator(v CsrfTokenValidator) Option {
	return func(s *Service) error {
		if v == nil {
			return errors.New("csrf token validator cannot be nil")
		}
		s.csrf = v
		return nil
	}
}

// WithTokenHolder replaces the default ContextTokenHolder.
func WithTokenHolder(h TokenHolder) Option {
	return func(s *Service) error {
		if h == nil {
			return errors.New("token holder cannot be nil")
		}
		s.tokens = h
		return nil
	}
}

// WithLogger sets an optional logger for the Service.
//
// The logger interface is compatible with log/slog.Logger. Secrets and CSRF
// token values are never logged.
func WithLogger(logger Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink. Default: NoopMetrics.
func WithMetrics(m Metrics) Option {
	return func(s *Service) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		s.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer used for spans around directory
// and verifier calls. Default: a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) error {
		if t == nil {
			return errors.New("tracer cannot be nil")
		}
		s.tracer = t
		return nil
	}
}
