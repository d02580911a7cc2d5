package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManagerSignAndParse(t *testing.T) {
	signer, err := NewJWTManager(&JWTConfig{SecretKey: "dashboard-secret"})
	require.NoError(t, err)

	token, err := signer.Sign(Identity{Subject: "alice", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		manager func(t *testing.T) *JWTManager
		token   string
		wantErr error
	}{
		{
			name:    "verified",
			manager: func(*testing.T) *JWTManager { return signer },
			token:   token,
		},
		{
			name: "unverified decode without secret",
			manager: func(t *testing.T) *JWTManager {
				m, err := NewJWTManager(nil)
				require.NoError(t, err)
				return m
			},
			token: "Bearer " + token,
		},
		{
			name: "wrong secret",
			manager: func(t *testing.T) *JWTManager {
				m, err := NewJWTManager(&JWTConfig{SecretKey: "other"})
				require.NoError(t, err)
				return m
			},
			token:   token,
			wantErr: ErrSignatureInvalid,
		},
		{
			name:    "empty",
			manager: func(*testing.T) *JWTManager { return signer },
			token:   "Bearer ",
			wantErr: ErrTokenMissing,
		},
		{
			name:    "garbage",
			manager: func(*testing.T) *JWTManager { return signer },
			token:   "not-a-jwt",
			wantErr: ErrTokenMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := tt.manager(t).Parse(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", id.Subject)
			assert.Equal(t, "admin", id.Role)
			assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, 5*time.Second)
		})
	}
}

func TestJWTManagerExpired(t *testing.T) {
	signer, err := NewJWTManager(&JWTConfig{SecretKey: "s", Leeway: time.Second})
	require.NoError(t, err)
	signer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := signer.Sign(Identity{Subject: "bob", Role: "employee"}, time.Hour)
	require.NoError(t, err)

	signer.now = time.Now
	_, err = signer.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	decoder, err := NewJWTManager(&JWTConfig{Leeway: time.Second})
	require.NoError(t, err)
	_, err = decoder.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTManagerRejectsNonHMAC(t *testing.T) {
	_, err := NewJWTManager(&JWTConfig{Algorithm: "RS256"})
	assert.ErrorIs(t, err, ErrAlgorithmInvalid)

	m, err := NewJWTManager(nil)
	require.NoError(t, err)
	_, err = m.Sign(Identity{Subject: "a", Role: "admin"}, 0)
	assert.ErrorIs(t, err, ErrSecretKeyEmpty)
}
