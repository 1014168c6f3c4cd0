package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Credential check outcomes used as metric labels.
const (
	outcomeGranted       = "granted"
	outcomeUnknownUser   = "unknown_user"
	outcomeInvalidSecret = "invalid_secret"
	outcomeError         = "error"
)

// VerifyCredentials looks up the user for identifier and checks secret.
//
// Unknown identifiers and wrong secrets are normal outcomes and return
// (nil, nil). Only directory or verifier faults are returned as errors.
// The identifier is passed to the directory untouched; normalisation is the
// directory's business. grantType is only used for logs and metrics.
func (s *Service) VerifyCredentials(ctx context.Context, identifier, secret, grantType string) (*Principal, error) {
	ctx, span := s.tracer.Start(ctx, "authcontext.VerifyCredentials")
	defer span.End()
	span.SetAttributes(attribute.String("auth.grant_type", grantType))

	start := time.Now()
	outcome := outcomeError
	defer func() {
		tags := map[string]string{"grant_type": grantType, "outcome": outcome}
		s.metrics.IncCounter(MetricCredentialChecks, tags)
		s.metrics.ObserveHistogram(MetricCredentialCheckSeconds, time.Since(start).Seconds(), tags)
		span.SetAttributes(attribute.String("auth.outcome", outcome))
	}()

	user, err := s.directory.FindOneByEmail(ctx, identifier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directory lookup failed")
		if s.logger != nil {
			s.logger.Error("User lookup failed", "identifier", identifier, "error", err)
		}
		return nil, err
	}
	if user == nil {
		outcome = outcomeUnknownUser
		if s.logger != nil {
			s.logger.Debug("No user matches identifier", "identifier", identifier, "grant_type", grantType)
		}
		return nil, nil
	}

	principal := PrincipalFromUser(user)

	valid, err := s.verifier.IsSecretValid(ctx, principal, secret)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "secret verification failed")
		if s.logger != nil {
			s.logger.Error("Secret verification failed", "user_id", principal.UserID, "error", err)
		}
		return nil, err
	}
	if !valid {
		outcome = outcomeInvalidSecret
		if s.logger != nil {
			s.logger.Debug("Invalid secret presented", "user_id", principal.UserID, "grant_type", grantType)
		}
		return nil, nil
	}

	outcome = outcomeGranted
	if s.logger != nil {
		s.logger.Debug("Credentials verified", "user_id", principal.UserID, "grant_type", grantType, "duration", time.Since(start))
	}
	return principal, nil
}
