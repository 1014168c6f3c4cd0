package core

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CurrentPrincipalID returns the id of the authenticated principal.
//
// It fails with ErrNoPrincipalAuthenticated when the token holder has no
// token or the token does not carry a *Principal (an anonymous token, for
// example). It has no side effects.
func (s *Service) CurrentPrincipalID(ctx context.Context) (UserID, error) {
	p, err := s.currentPrincipal(ctx)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

// CurrentUser resolves the authenticated principal to its domain User.
//
// A directory miss for a token-held id yields a *StalePrincipalError, which
// matches ErrNoPrincipalAuthenticated. Other directory errors are returned
// unchanged.
func (s *Service) CurrentUser(ctx context.Context) (*User, error) {
	id, err := s.CurrentPrincipalID(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "authcontext.CurrentUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id.String()))

	user, err := s.directory.FindOneByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directory lookup failed")
		if errors.Is(err, ErrUserNotFound) {
			if s.logger != nil {
				s.logger.Warn("Token references a user the directory no longer knows", "user_id", id)
			}
			return nil, &StalePrincipalError{UserID: id, Err: err}
		}
		return nil, err
	}
	if user == nil {
		// A directory that violates its contract is treated like a miss.
		return nil, &StalePrincipalError{UserID: id, Err: ErrUserNotFound}
	}

	return user, nil
}

func (s *Service) currentPrincipal(ctx context.Context) (*Principal, error) {
	token := s.tokens.Token(ctx)
	if token == nil {
		return nil, ErrNoPrincipalAuthenticated
	}

	p, ok := token.User().(*Principal)
	if !ok || p == nil {
		return nil, ErrNoPrincipalAuthenticated
	}

	return p, nil
}
