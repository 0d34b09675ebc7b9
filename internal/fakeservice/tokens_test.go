package fakeservice

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, secret, err := issuer.Issue(1001, "reader")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, secret)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "reader", claims.Username)
	userID, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, int64(1001), userID)
	require.NotNil(t, claims.ExpiresAt)

	lookedUp, ok := issuer.TokenSecret(token)
	require.True(t, ok)
	require.Equal(t, secret, lookedUp)
}

func TestTokenIssuer_SecretsDifferPerToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 0)

	t1, s1, err := issuer.Issue(1, "a")
	require.NoError(t, err)
	t2, s2, err := issuer.Issue(1, "a")
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)
	require.NotEqual(t, s1, s2)
}

func TestTokenIssuer_RejectsForeignTokens(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 0)
	other := NewTokenIssuer("other-secret", 0)

	token, _, err := other.Issue(1, "a")
	require.NoError(t, err)
	_, err = issuer.Validate(token)
	require.Error(t, err)

	_, ok := issuer.TokenSecret("not-a-token")
	require.False(t, ok)
}

func TestTokenIssuer_RejectsOtherSigningMethods(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 0)

	claims := &TokenClaims{Username: "a", RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: tokenIssuer}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	require.Error(t, err)
}

func TestTokenIssuer_ExpiredTokens(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Nanosecond)

	token, _, err := issuer.Issue(1, "a")
	require.NoError(t, err)
	_, err = issuer.Validate(token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenIssuer_RevokeAll(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 0)

	token, _, err := issuer.Issue(7, "a")
	require.NoError(t, err)
	other, _, err := issuer.Issue(8, "b")
	require.NoError(t, err)

	issuer.RevokeAll(7)
	_, err = issuer.Validate(token)
	require.Error(t, err)
	_, err = issuer.Validate(other)
	require.NoError(t, err)
}
