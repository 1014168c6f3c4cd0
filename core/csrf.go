package core

import (
	"context"
	"strconv"
)

// CsrfChallenge pairs a token identifier (usually a form or intent name) with
// the token value a client presented.
type CsrfChallenge struct {
	ID    string
	Value string
}

// IsCsrfTokenValid reports whether token is the valid CSRF token for id.
// It hands the pair to the configured CsrfTokenValidator without caching.
// Collaborator faults are returned as errors.
func (s *Service) IsCsrfTokenValid(ctx context.Context, id, token string) (bool, error) {
	valid, err := s.csrf.IsTokenValid(ctx, CsrfChallenge{ID: id, Value: token})
	if err != nil {
		return false, err
	}

	s.metrics.IncCounter(MetricCsrfChecks, map[string]string{"valid": strconv.FormatBool(valid)})
	if !valid && s.logger != nil {
		s.logger.Debug("CSRF token rejected", "token_id", id)
	}
	return valid, nil
}
