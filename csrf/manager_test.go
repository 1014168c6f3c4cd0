package csrf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme-app/authcontext/core"
	"github.com/acme-app/authcontext/session"
)

func sessionContext(t *testing.T) (context.Context, core.SessionStore) {
	t.Helper()
	id, err := session.NewID()
	require.NoError(t, err)
	s := session.NewMemoryBackend(0).Session(id)
	return core.WithSession(context.Background(), s), s
}

func TestManager_IsTokenValid(t *testing.T) {
	m := NewManager()
	ctx, _ := sessionContext(t)

	token, err := m.Token(ctx, "form1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	tests := []struct {
		name  string
		id    string
		value string
		want  bool
	}{
		{name: "token issued for the id", id: "form1", value: token, want: true},
		{name: "bad token", id: "form1", value: "bad-token"},
		{name: "empty token", id: "form1", value: ""},
		{name: "token issued for another id", id: "form2", value: token},
		{name: "truncated token", id: "form1", value: token[:len(token)-1]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.IsTokenValid(ctx, core.CsrfChallenge{ID: tc.id, Value: tc.value})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("no session", func(t *testing.T) {
		got, err := m.IsTokenValid(context.Background(), core.CsrfChallenge{ID: "form1", Value: token})
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("token from another session", func(t *testing.T) {
		otherCtx, _ := sessionContext(t)
		got, err := m.IsTokenValid(otherCtx, core.CsrfChallenge{ID: "form1", Value: token})
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestManager_Token(t *testing.T) {
	m := NewManager()

	t.Run("stable per id within a session", func(t *testing.T) {
		ctx, _ := sessionContext(t)
		a, err := m.Token(ctx, "form1")
		require.NoError(t, err)
		b, err := m.Token(ctx, "form1")
		require.NoError(t, err)
		c, err := m.Token(ctx, "form2")
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.NotEqual(t, a, c)
	})

	t.Run("stored under the namespace", func(t *testing.T) {
		ctx, s := sessionContext(t)
		token, err := NewManager(WithNamespace("_tokens")).Token(ctx, "login")
		require.NoError(t, err)

		raw, err := s.Get(ctx, "_tokens/login")
		require.NoError(t, err)
		assert.Equal(t, token, string(raw))
	})

	t.Run("requires a session", func(t *testing.T) {
		_, err := m.Token(context.Background(), "form1")
		assert.ErrorIs(t, err, ErrNoSession)
		_, err = m.Refresh(context.Background(), "form1")
		assert.ErrorIs(t, err, ErrNoSession)
	})
}

func TestManager_RefreshAndRemove(t *testing.T) {
	m := NewManager()
	ctx, _ := sessionContext(t)

	old, err := m.Token(ctx, "form1")
	require.NoError(t, err)

	fresh, err := m.Refresh(ctx, "form1")
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)

	valid, err := m.IsTokenValid(ctx, core.CsrfChallenge{ID: "form1", Value: old})
	require.NoError(t, err)
	assert.False(t, valid, "refreshed token invalidates the old one")

	require.NoError(t, m.Remove(ctx, "form1"))
	valid, err = m.IsTokenValid(ctx, core.CsrfChallenge{ID: "form1", Value: fresh})
	require.NoError(t, err)
	assert.False(t, valid)

	assert.NoError(t, m.Remove(context.Background(), "form1"))
}
