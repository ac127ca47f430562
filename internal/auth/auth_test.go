package auth

import (
	"context"
	"testing"
	"time"

	"github.com/Sp1ker2/rat/internal/errs"
	"github.com/Sp1ker2/rat/internal/storage"
	"github.com/Sp1ker2/rat/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T, expiry time.Duration) (*Verifier, *storagetest.MemStore) {
	t.Helper()
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	store := storagetest.New()
	return NewVerifier(store, "test-secret", "admin", hash, expiry), store
}

func TestVerifyAdmin(t *testing.T) {
	v, _ := newTestVerifier(t, time.Hour)

	assert.True(t, v.VerifyAdmin("admin", "hunter2"))
	assert.False(t, v.VerifyAdmin("admin", "wrong"))
	assert.False(t, v.VerifyAdmin("root", "hunter2"))
	assert.False(t, v.VerifyAdmin("", ""))
}

func TestAdminTokenRoundTrip(t *testing.T) {
	v, _ := newTestVerifier(t, time.Hour)

	token, err := v.IssueAdminToken("admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.Equal(t, "admin", v.DecodeAdminToken(token))
}

func TestDecodeAdminTokenExpired(t *testing.T) {
	v, _ := newTestVerifier(t, -time.Minute)

	token, err := v.IssueAdminToken("admin")
	require.NoError(t, err)

	assert.Empty(t, v.DecodeAdminToken(token))
}

func TestDecodeAdminTokenWrongSecret(t *testing.T) {
	v, _ := newTestVerifier(t, time.Hour)
	other := NewVerifier(nil, "other-secret", "admin", "", time.Hour)

	token, err := other.IssueAdminToken("admin")
	require.NoError(t, err)

	assert.Empty(t, v.DecodeAdminToken(token))
}

func TestDecodeAdminTokenGarbage(t *testing.T) {
	v, _ := newTestVerifier(t, time.Hour)

	assert.Empty(t, v.DecodeAdminToken(""))
	assert.Empty(t, v.DecodeAdminToken("not.a.jwt"))
}

func TestVerifyDeviceToken(t *testing.T) {
	v, store := newTestVerifier(t, time.Hour)
	_, err := store.CreateDevice(context.Background(), "d1", "phone", "tok-123", storage.DeviceAttrs{})
	require.NoError(t, err)

	dev, err := v.VerifyDeviceToken(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.Equal(t, "d1", dev.ID)

	_, err = v.VerifyDeviceToken(context.Background(), "tok-999")
	assert.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestGenerateDeviceToken(t *testing.T) {
	a := GenerateDeviceToken()
	b := GenerateDeviceToken()

	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 40)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
	assert.NotContains(t, a, "=")
}
