package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// badCredentials mimics a framework-level authentication error.
type badCredentials struct {
	username string
}

func (e *badCredentials) Error() string      { return "Bad credentials." }
func (e *badCredentials) Code() int          { return 401 }
func (e *badCredentials) MessageKey() string { return "Invalid credentials." }
func (e *badCredentials) MessageData() map[string]any {
	return map[string]any{"{{ username }}": e.username}
}

var ignoreCause = cmpopts.IgnoreFields(AuthenticationFailure{}, "Cause")

func sessionWithFailure(t *testing.T, svc *Service, failure error, username string) (context.Context, *memorySession) {
	t.Helper()
	s := newMemorySession()
	ctx := WithSession(context.Background(), s)
	require.NoError(t, svc.SaveFailure(ctx, failure, username))
	return ctx, s
}

func TestService_LastFailure(t *testing.T) {
	t.Run("nothing recorded", func(t *testing.T) {
		svc := newTestService(t)
		ctx := WithSession(context.Background(), newMemorySession())

		failure, err := svc.LastFailure(ctx, attributes{}, true)
		assert.NoError(t, err)
		assert.Nil(t, failure)
	})

	t.Run("no session and no request", func(t *testing.T) {
		svc := newTestService(t)

		failure, err := svc.LastFailure(context.Background(), nil, true)
		assert.NoError(t, err)
		assert.Nil(t, failure)
	})

	t.Run("request attribute is normalised verbatim", func(t *testing.T) {
		svc := newTestService(t)
		src := &badCredentials{username: "alice@example.com"}
		req := attributes{AuthenticationErrorKey: src}

		failure, err := svc.LastFailure(context.Background(), req, true)
		require.NoError(t, err)

		want := &AuthenticationFailure{
			Message:     "Bad credentials.",
			Code:        401,
			MessageKey:  "Invalid credentials.",
			MessageData: map[string]any{"{{ username }}": "alice@example.com"},
		}
		if diff := cmp.Diff(want, failure, ignoreCause); diff != "" {
			t.Errorf("LastFailure() mismatch (-want +got):\n%s", diff)
		}
		assert.Same(t, src, failure.Cause)
		assert.ErrorIs(t, failure, src)
	})

	t.Run("plain error gets the default message key", func(t *testing.T) {
		svc := newTestService(t)
		src := errors.New("account locked")

		failure, err := svc.LastFailure(context.Background(), attributes{AuthenticationErrorKey: src}, true)
		require.NoError(t, err)
		assert.Equal(t, "account locked", failure.Message)
		assert.Equal(t, 0, failure.Code)
		assert.Equal(t, DefaultFailureMessageKey, failure.MessageKey)
		assert.Nil(t, failure.MessageData)
	})

	t.Run("wrapped framework error keeps its details", func(t *testing.T) {
		svc := newTestService(t)
		src := &badCredentials{username: "bob"}
		wrapped := errors.Join(errors.New("login"), src)

		failure, err := svc.LastFailure(context.Background(), attributes{AuthenticationErrorKey: wrapped}, true)
		require.NoError(t, err)
		assert.Equal(t, 401, failure.Code)
		assert.Equal(t, "Invalid credentials.", failure.MessageKey)
	})

	t.Run("normalised copy does not alias the source data", func(t *testing.T) {
		svc := newTestService(t)
		src := &AuthenticationFailure{Message: "m", MessageData: map[string]any{"k": "v"}}

		failure, err := svc.LastFailure(context.Background(), attributes{AuthenticationErrorKey: src}, true)
		require.NoError(t, err)
		assert.NotSame(t, src, failure)
		failure.MessageData["k"] = "changed"
		assert.Equal(t, "v", src.MessageData["k"])
	})

	t.Run("nil attribute value means no failure", func(t *testing.T) {
		svc := newTestService(t)

		failure, err := svc.LastFailure(context.Background(), attributes{AuthenticationErrorKey: nil}, true)
		assert.NoError(t, err)
		assert.Nil(t, failure)
	})

	t.Run("typed nil error means no failure", func(t *testing.T) {
		svc := newTestService(t)

		for _, v := range []any{
			error((*StoredFailure)(nil)),
			error((*badCredentials)(nil)),
			(*AuthenticationFailure)(nil),
		} {
			failure, err := svc.LastFailure(context.Background(), attributes{AuthenticationErrorKey: v}, true)
			assert.NoError(t, err, "%T", v)
			assert.Nil(t, failure, "%T", v)
		}
	})

	t.Run("unsupported attribute value is a fault", func(t *testing.T) {
		svc := newTestService(t)

		_, err := svc.LastFailure(context.Background(), attributes{AuthenticationErrorKey: 42}, true)
		assert.ErrorIs(t, err, ErrUnsupportedFailure)
	})

	t.Run("session record is consumed once", func(t *testing.T) {
		svc := newTestService(t)
		ctx, s := sessionWithFailure(t, svc, &badCredentials{username: "alice@example.com"}, "alice@example.com")

		first, err := svc.LastFailure(ctx, attributes{}, true)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, "Bad credentials.", first.Message)
		assert.Equal(t, 401, first.Code)
		assert.Equal(t, "Invalid credentials.", first.MessageKey)
		assert.Equal(t, map[string]any{"{{ username }}": "alice@example.com"}, first.MessageData)
		assert.IsType(t, &StoredFailure{}, first.Cause)
		assert.Equal(t, 1, s.removes)

		second, err := svc.LastFailure(ctx, attributes{}, true)
		assert.NoError(t, err)
		assert.Nil(t, second)
	})

	t.Run("session record survives when clearSession is false", func(t *testing.T) {
		svc := newTestService(t)
		ctx, s := sessionWithFailure(t, svc, errors.New("Bad credentials."), "alice")

		for i := 0; i < 2; i++ {
			failure, err := svc.LastFailure(ctx, nil, false)
			require.NoError(t, err)
			require.NotNil(t, failure)
			assert.Equal(t, "Bad credentials.", failure.Message)
		}
		peeked, err := svc.PeekLastFailure(ctx, nil)
		require.NoError(t, err)
		assert.NotNil(t, peeked)
		assert.Zero(t, s.removes)
	})

	t.Run("request attribute wins over session", func(t *testing.T) {
		svc := newTestService(t)
		ctx, s := sessionWithFailure(t, svc, errors.New("from session"), "alice")
		req := attributes{AuthenticationErrorKey: errors.New("from request")}

		failure, err := svc.LastFailure(ctx, req, true)
		require.NoError(t, err)
		assert.Equal(t, "from request", failure.Message)

		// The session slot was not touched.
		assert.Zero(t, s.removes)
		ok, _ := s.Has(ctx, AuthenticationErrorKey)
		assert.True(t, ok)
	})

	t.Run("corrupt session record is a fault and is discarded", func(t *testing.T) {
		svc := newTestService(t)
		s := newMemorySession()
		ctx := WithSession(context.Background(), s)
		require.NoError(t, s.Set(ctx, AuthenticationErrorKey, []byte("{not json")))

		failure, err := svc.LastFailure(ctx, nil, true)
		assert.ErrorIs(t, err, ErrCorruptSession)
		assert.Nil(t, failure)

		ok, _ := s.Has(ctx, AuthenticationErrorKey)
		assert.False(t, ok)
	})

	t.Run("session read fault is propagated", func(t *testing.T) {
		svc := newTestService(t)
		boom := errors.New("redis: connection refused")
		s := newMemorySession()
		ctx := WithSession(context.Background(), s)
		require.NoError(t, s.Set(ctx, AuthenticationErrorKey, []byte(`{"message":"x"}`)))
		s.failGet = boom

		_, err := svc.LastFailure(ctx, nil, true)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("lookups are counted by source", func(t *testing.T) {
		metrics := newMockMetrics()
		svc := newTestService(t, WithMetrics(metrics))
		ctx, _ := sessionWithFailure(t, svc, errors.New("x"), "alice")

		_, _ = svc.LastFailure(ctx, attributes{AuthenticationErrorKey: errors.New("y")}, true)
		_, _ = svc.LastFailure(ctx, nil, true)
		_, _ = svc.LastFailure(ctx, nil, true)

		assert.Equal(t, []map[string]string{
			{"source": "request"},
			{"source": "session"},
			{"source": "none"},
		}, metrics.counters[MetricFailureLookups])
	})
}

func TestService_LastFailureUsername(t *testing.T) {
	t.Run("nothing recorded", func(t *testing.T) {
		svc := newTestService(t)

		username, err := svc.LastFailureUsername(context.Background(), attributes{})
		assert.NoError(t, err)
		assert.Equal(t, "", username)
	})

	t.Run("from the session, repeatable", func(t *testing.T) {
		svc := newTestService(t)
		ctx, s := sessionWithFailure(t, svc, errors.New("x"), "alice@example.com")

		first, err := svc.LastFailureUsername(ctx, attributes{})
		require.NoError(t, err)
		second, err := svc.LastFailureUsername(ctx, attributes{})
		require.NoError(t, err)

		assert.Equal(t, "alice@example.com", first)
		assert.Equal(t, first, second)
		assert.Zero(t, s.removes)
	})

	t.Run("request attribute wins over session", func(t *testing.T) {
		svc := newTestService(t)
		ctx, _ := sessionWithFailure(t, svc, errors.New("x"), "alice@example.com")

		username, err := svc.LastFailureUsername(ctx, attributes{LastUsernameKey: "bob@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", username)
	})

	t.Run("consuming the failure keeps the username", func(t *testing.T) {
		svc := newTestService(t)
		ctx, _ := sessionWithFailure(t, svc, errors.New("x"), "alice@example.com")

		_, err := svc.LastFailure(ctx, nil, true)
		require.NoError(t, err)

		username, err := svc.LastFailureUsername(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", username)
	})

	t.Run("session read fault is propagated", func(t *testing.T) {
		svc := newTestService(t)
		boom := errors.New("boom")
		s := newMemorySession()
		s.failGet = boom

		_, err := svc.LastFailureUsername(WithSession(context.Background(), s), nil)
		assert.ErrorIs(t, err, boom)
	})
}

func TestService_SaveFailure(t *testing.T) {
	t.Run("requires a session", func(t *testing.T) {
		svc := newTestService(t)

		err := svc.SaveFailure(context.Background(), errors.New("x"), "alice")
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("rejects nil failures", func(t *testing.T) {
		svc := newTestService(t)
		ctx := WithSession(context.Background(), newMemorySession())

		var failure *AuthenticationFailure
		assert.Error(t, svc.SaveFailure(ctx, failure, "alice"))

		var stored *StoredFailure
		assert.EqualError(t, svc.SaveFailure(ctx, stored, "alice"), "failure cannot be nil")
	})

	t.Run("stores an encoded record and the username", func(t *testing.T) {
		svc := newTestService(t)
		ctx, s := sessionWithFailure(t, svc, &badCredentials{username: "alice"}, "alice")

		raw, err := s.Get(ctx, AuthenticationErrorKey)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"message": "Bad credentials.",
			"code": 401,
			"message_key": "Invalid credentials.",
			"message_data": {"{{ username }}": "alice"}
		}`, string(raw))

		username, err := s.Get(ctx, LastUsernameKey)
		require.NoError(t, err)
		assert.Equal(t, "alice", string(username))
	})
}
