package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuedCredential(t *testing.T, expiresAt time.Time) *Credential {
	t.Helper()
	cred, err := NewCredential("https://t.me/+abc123", 42, uuid.New(), "pay-1", expiresAt)
	require.NoError(t, err)
	return cred
}

func TestNewCredential_Validation(t *testing.T) {
	_, err := NewCredential("", 42, uuid.New(), "", time.Time{})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = NewCredential("https://t.me/+abc", 0, uuid.New(), "", time.Time{})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestCredential_ConsumeOnce(t *testing.T) {
	now := time.Now().UTC()
	cred := issuedCredential(t, now.Add(time.Hour))

	require.NoError(t, cred.Consume(now))
	assert.Equal(t, StateConsumed, cred.State())

	assert.ErrorIs(t, cred.Consume(now), ErrCredentialSpent)
}

func TestCredential_Usable(t *testing.T) {
	now := time.Now().UTC()

	fresh := issuedCredential(t, now.Add(time.Hour))
	assert.True(t, fresh.Usable(now))

	timedOut := issuedCredential(t, now.Add(-time.Minute))
	assert.False(t, timedOut.Usable(now))

	// Zero expiry means no platform-side timeout.
	open := issuedCredential(t, time.Time{})
	assert.True(t, open.Usable(now))

	spent := issuedCredential(t, now.Add(time.Hour))
	require.NoError(t, spent.Consume(now))
	assert.False(t, spent.Usable(now))
}

func TestCredential_RevokeIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	cred := issuedCredential(t, now.Add(time.Hour))

	cred.Revoke(now)
	assert.Equal(t, StateRevoked, cred.State())

	cred.Revoke(now.Add(time.Minute))
	assert.Equal(t, StateRevoked, cred.State())
}

func TestCredential_RevokeConsumed(t *testing.T) {
	now := time.Now().UTC()
	cred := issuedCredential(t, now.Add(time.Hour))
	require.NoError(t, cred.Consume(now))

	cred.Revoke(now)
	assert.Equal(t, StateRevoked, cred.State())
}

func TestCredential_MarkExpiredOnlyWhenIssued(t *testing.T) {
	now := time.Now().UTC()

	cred := issuedCredential(t, now)
	cred.MarkExpired(now)
	assert.Equal(t, StateExpired, cred.State())

	consumed := issuedCredential(t, now.Add(time.Hour))
	require.NoError(t, consumed.Consume(now))
	consumed.MarkExpired(now)
	assert.Equal(t, StateConsumed, consumed.State())
}
