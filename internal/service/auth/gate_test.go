package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/inhapress/stockledger/internal/config"
)

func TestGate_PlainPassword(t *testing.T) {
	gate, err := NewGate(config.AdminConfig{Password: "s3cret", FailedLoginsPerMin: 5}, nil)
	require.NoError(t, err)

	ok, err := gate.Authorize("10.0.0.1", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Authorize("10.0.0.1", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = gate.Authorize("10.0.0.1", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGate_Hash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	gate, err := NewGate(config.AdminConfig{PasswordHash: string(hash), FailedLoginsPerMin: 5}, nil)
	require.NoError(t, err)

	ok, err := gate.Authorize("10.0.0.1", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewGate(config.AdminConfig{PasswordHash: "plain-text"}, nil)
	assert.Error(t, err)

	_, err = NewGate(config.AdminConfig{}, nil)
	assert.Error(t, err)
}

func TestGate_ThrottlesFailedAttempts(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	gate, err := NewGate(config.AdminConfig{PasswordHash: string(hash), FailedLoginsPerMin: 2}, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ok, err := gate.Authorize("10.0.0.1", "s3cret")
		require.NoError(t, err, "successful logins must not be throttled")
		assert.True(t, ok)
	}

	for i := 0; i < 2; i++ {
		ok, err := gate.Authorize("10.0.0.1", "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	_, err = gate.Authorize("10.0.0.1", "s3cret")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGate_ThrottleIsPerClient(t *testing.T) {
	gate, err := NewGate(config.AdminConfig{Password: "s3cret", FailedLoginsPerMin: 5}, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ok, err := gate.Authorize("203.0.113.9", "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	_, err = gate.Authorize("203.0.113.9", "wrong")
	assert.ErrorIs(t, err, ErrRateLimited)

	ok, err := gate.Authorize("10.0.0.1", "s3cret")
	require.NoError(t, err, "another client must not be locked out")
	assert.True(t, ok)
}

func TestGate_ForgetsIdleClients(t *testing.T) {
	gate, err := NewGate(config.AdminConfig{Password: "s3cret", FailedLoginsPerMin: 1}, nil)
	require.NoError(t, err)
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }

	_, err = gate.Authorize("203.0.113.9", "wrong")
	require.NoError(t, err)
	_, err = gate.Authorize("203.0.113.9", "s3cret")
	require.ErrorIs(t, err, ErrRateLimited)

	now = now.Add(idleLimiterTTL + time.Minute)
	_, err = gate.Authorize("198.51.100.7", "wrong")
	require.NoError(t, err)
	assert.NotContains(t, gate.limiters, "203.0.113.9")

	ok, err := gate.Authorize("203.0.113.9", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)
}
