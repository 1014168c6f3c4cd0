package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
)

// Slot keys shared by the request attribute bag and the session.
const (
	AuthenticationErrorKey = "_security.last_error"
	LastUsernameKey        = "_security.last_username"
)

// DefaultFailureMessageKey is the message key given to failures that do not
// carry one.
const DefaultFailureMessageKey = "An authentication exception occurred."

// ErrNoSession is returned by SaveFailure when no session is bound to the
// context.
var ErrNoSession = errors.New("no session bound to context")

// FailureDetails is implemented by framework-level authentication errors
// that carry a numeric code and a localisable message.
type FailureDetails interface {
	Code() int
	MessageKey() string
	MessageData() map[string]any
}

// AuthenticationFailure is the normalised record of one failed
// authentication attempt.
type AuthenticationFailure struct {
	Message     string
	Code        int
	MessageKey  string
	MessageData map[string]any

	// Cause is the failure value the record was built from.
	Cause error
}

func (f *AuthenticationFailure) Error() string {
	if f.Message != "" {
		return f.Message
	}
	return f.MessageKey
}

func (f *AuthenticationFailure) Unwrap() error {
	return f.Cause
}

// StoredFailure is the session representation of a failure. Numbers inside
// Data come back as float64 after a round trip.
type StoredFailure struct {
	Msg     string         `json:"message"`
	ErrCode int            `json:"code"`
	Key     string         `json:"message_key,omitempty"`
	Data    map[string]any `json:"message_data,omitempty"`
}

func (f *StoredFailure) Error() string               { return f.Msg }
func (f *StoredFailure) Code() int                   { return f.ErrCode }
func (f *StoredFailure) MessageKey() string          { return f.Key }
func (f *StoredFailure) MessageData() map[string]any { return f.Data }

// Failure lookup sources used as metric labels.
const (
	sourceRequest = "request"
	sourceSession = "session"
	sourceNone    = "none"
)

// LastFailure returns the last authentication failure recorded for the
// request, or nil.
//
// The request attribute slot is checked first, then the session bound to
// ctx. When the session supplied the value and clearSession is true the slot
// is removed right after it is read, so a second call returns nil.
func (s *Service) LastFailure(ctx context.Context, req RequestContext, clearSession bool) (*AuthenticationFailure, error) {
	if req != nil && req.HasAttribute(AuthenticationErrorKey) {
		s.countLookup(sourceRequest)
		v := req.Attribute(AuthenticationErrorKey)
		if v == nil {
			return nil, nil
		}
		return normalizeFailure(v)
	}

	session := SessionFrom(ctx)
	if session == nil {
		s.countLookup(sourceNone)
		return nil, nil
	}

	ok, err := session.Has(ctx, AuthenticationErrorKey)
	if err != nil {
		return nil, fmt.Errorf("read session failure slot: %w", err)
	}
	if !ok {
		s.countLookup(sourceNone)
		return nil, nil
	}

	raw, err := session.Get(ctx, AuthenticationErrorKey)
	if err != nil {
		return nil, fmt.Errorf("read session failure slot: %w", err)
	}
	if clearSession {
		if err := session.Remove(ctx, AuthenticationErrorKey); err != nil {
			return nil, fmt.Errorf("clear session failure slot: %w", err)
		}
	}
	if raw == nil {
		s.countLookup(sourceNone)
		return nil, nil
	}

	s.countLookup(sourceSession)
	var stored StoredFailure
	if err := json.Unmarshal(raw, &stored); err != nil {
		if s.logger != nil {
			s.logger.Warn("Discarding undecodable session failure record", "error", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}

	return normalizeFailure(&stored)
}

// PeekLastFailure is LastFailure without consuming the session slot.
func (s *Service) PeekLastFailure(ctx context.Context, req RequestContext) (*AuthenticationFailure, error) {
	return s.LastFailure(ctx, req, false)
}

// LastFailureUsername returns the identifier of the last authentication
// attempt, or "" when none was recorded. It never clears anything.
func (s *Service) LastFailureUsername(ctx context.Context, req RequestContext) (string, error) {
	if req != nil && req.HasAttribute(LastUsernameKey) {
		username, _ := req.Attribute(LastUsernameKey).(string)
		return username, nil
	}

	session := SessionFrom(ctx)
	if session == nil {
		return "", nil
	}

	raw, err := session.Get(ctx, LastUsernameKey)
	if err != nil {
		return "", fmt.Errorf("read session username slot: %w", err)
	}
	return string(raw), nil
}

// SaveFailure records failure and the attempted username in the session
// bound to ctx, for a later request to report. Login handlers call it before
// redirecting back to the form.
func (s *Service) SaveFailure(ctx context.Context, failure error, username string) error {
	session := SessionFrom(ctx)
	if session == nil {
		return ErrNoSession
	}

	f, err := normalizeFailure(failure)
	if err != nil {
		return err
	}
	if f == nil {
		return errors.New("failure cannot be nil")
	}

	raw, err := json.Marshal(StoredFailure{
		Msg:     f.Message,
		ErrCode: f.Code,
		Key:     f.MessageKey,
		Data:    f.MessageData,
	})
	if err != nil {
		return fmt.Errorf("encode authentication failure: %w", err)
	}

	if err := session.Set(ctx, AuthenticationErrorKey, raw); err != nil {
		return fmt.Errorf("write session failure slot: %w", err)
	}
	if err := session.Set(ctx, LastUsernameKey, []byte(username)); err != nil {
		return fmt.Errorf("write session username slot: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("Recorded authentication failure in session", "username", username, "code", f.Code)
	}
	return nil
}

func (s *Service) countLookup(source string) {
	s.metrics.IncCounter(MetricFailureLookups, map[string]string{"source": source})
}

// normalizeFailure copies a collaborator failure into an
// AuthenticationFailure so callers never see the collaborator's type.
func normalizeFailure(v any) (*AuthenticationFailure, error) {
	switch f := v.(type) {
	case *AuthenticationFailure:
		if f == nil {
			return nil, nil
		}
		return &AuthenticationFailure{
			Message:     f.Message,
			Code:        f.Code,
			MessageKey:  f.MessageKey,
			MessageData: maps.Clone(f.MessageData),
			Cause:       f.Cause,
		}, nil
	case error:
		if isNilPointer(f) {
			return nil, nil
		}
		out := &AuthenticationFailure{
			Message:    f.Error(),
			MessageKey: DefaultFailureMessageKey,
			Cause:      f,
		}
		var details FailureDetails
		if errors.As(f, &details) && !isNilPointer(details) {
			out.Code = details.Code()
			if key := details.MessageKey(); key != "" {
				out.MessageKey = key
			}
			out.MessageData = maps.Clone(details.MessageData())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedFailure, v)
	}
}

// isNilPointer reports whether v holds a typed nil, which satisfies an
// interface but cannot have its methods called.
func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
