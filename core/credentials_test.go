package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_VerifyCredentials(t *testing.T) {
	t.Run("alice with the right secret", func(t *testing.T) {
		svc := newTestService(t)

		principal, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "s3cr3t", "password")
		require.NoError(t, err)
		require.NotNil(t, principal)
		assert.Equal(t, alice().ID, principal.UserID)
		assert.Equal(t, "alice@example.com", principal.Email)
	})

	t.Run("alice with the wrong secret", func(t *testing.T) {
		svc := newTestService(t)

		principal, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "wrong", "password")
		assert.NoError(t, err)
		assert.Nil(t, principal)
	})

	t.Run("unknown user", func(t *testing.T) {
		verifier := &mockVerifier{}
		svc := newTestService(t, WithCredentialVerifier(verifier))

		principal, err := svc.VerifyCredentials(context.Background(), "bob@example.com", "x", "password")
		assert.NoError(t, err)
		assert.Nil(t, principal)
		assert.Zero(t, verifier.calls, "verifier must not run for unknown users")
	})

	t.Run("identifier is passed to the directory untouched", func(t *testing.T) {
		var got string
		directory := &mockDirectory{
			findByEmailFunc: func(ctx context.Context, email string) (*User, error) {
				got = email
				return nil, nil
			},
		}
		svc := newTestService(t, WithUserDirectory(directory))

		_, err := svc.VerifyCredentials(context.Background(), "  Alice@Example.COM ", "s3cr3t", "password")
		require.NoError(t, err)
		assert.Equal(t, "  Alice@Example.COM ", got)
	})

	t.Run("directory fault is returned", func(t *testing.T) {
		boom := errors.New("directory unavailable")
		logger := &mockLogger{}
		directory := &mockDirectory{
			findByEmailFunc: func(ctx context.Context, email string) (*User, error) {
				return nil, boom
			},
		}
		svc := newTestService(t, WithUserDirectory(directory), WithLogger(logger))

		principal, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "s3cr3t", "password")
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, principal)
		assert.Len(t, logger.errorCalls, 1)
	})

	t.Run("verifier fault is returned", func(t *testing.T) {
		boom := errors.New("malformed hash")
		svc := newTestService(t, WithCredentialVerifier(&mockVerifier{err: boom}))

		principal, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "s3cr3t", "password")
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, principal)
	})

	t.Run("secret never reaches the logger", func(t *testing.T) {
		logger := &mockLogger{}
		svc := newTestService(t, WithLogger(logger))

		_, _ = svc.VerifyCredentials(context.Background(), "alice@example.com", "s3cr3t", "password")
		_, _ = svc.VerifyCredentials(context.Background(), "alice@example.com", "wrong", "password")

		for _, call := range append(logger.debugCalls, logger.errorCalls...) {
			assert.NotContains(t, call.args, "s3cr3t")
			assert.NotContains(t, call.args, "wrong")
		}
	})

	t.Run("outcomes are counted per grant type", func(t *testing.T) {
		metrics := newMockMetrics()
		svc := newTestService(t, WithMetrics(metrics))
		ctx := context.Background()

		_, _ = svc.VerifyCredentials(ctx, "alice@example.com", "s3cr3t", "password")
		_, _ = svc.VerifyCredentials(ctx, "alice@example.com", "wrong", "password")
		_, _ = svc.VerifyCredentials(ctx, "bob@example.com", "x", "client_credentials")

		assert.Equal(t, []map[string]string{
			{"grant_type": "password", "outcome": "granted"},
			{"grant_type": "password", "outcome": "invalid_secret"},
			{"grant_type": "client_credentials", "outcome": "unknown_user"},
		}, metrics.counters[MetricCredentialChecks])
		assert.Equal(t, 3, metrics.histograms[MetricCredentialCheckSeconds])
	})
}
