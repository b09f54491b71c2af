package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenVerifierRoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret")
	token := v.Issue("user.with.dots", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	userID, err := v.VerifyRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "user.with.dots", userID)
}

func TestTokenVerifierQueryToken(t *testing.T) {
	v := NewTokenVerifier("secret")
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+v.Issue("alice", time.Minute), nil)

	userID, err := v.VerifyRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestTokenVerifierRejectsTampering(t *testing.T) {
	v := NewTokenVerifier("secret")
	other := NewTokenVerifier("other-secret")

	_, err := v.Verify(other.Issue("alice", time.Minute))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token := v.Issue("alice", time.Minute)
	_, err = v.Verify(token[:len(token)-4] + "AAAA")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenVerifierExpired(t *testing.T) {
	v := NewTokenVerifier("secret")
	token := v.Issue("alice", time.Minute)
	v.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenVerifierMissing(t *testing.T) {
	_, err := NewTokenVerifier("secret").VerifyRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestTrustedHeaderVerifier(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?userId=bob", nil)
	userID, err := TrustedHeaderVerifier{}.VerifyRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "bob", userID)

	req.Header.Set("X-User-ID", "alice")
	userID, err = TrustedHeaderVerifier{}.VerifyRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	_, err = TrustedHeaderVerifier{}.VerifyRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
