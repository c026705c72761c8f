package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/quickeats/internal/domain/identity"
)

var testSecret = []byte("test-secret")

func TestVerify_RoundTrip(t *testing.T) {
	v := NewJWTVerifier(testSecret, "quickeats", "")
	want := identity.Identity{UID: "u1", Email: "a@x.com", DisplayName: "Asha", Admin: true}

	token, err := v.Issue(want, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVerify_UserIDClaim(t *testing.T) {
	v := NewJWTVerifier(testSecret, "", "")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u2",
		Email:  "b@x.com",
	}).SignedString(testSecret)
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u2", got.UID)
	assert.False(t, got.Admin)
}

func TestVerify_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret, "quickeats", "")
	valid, err := v.Issue(identity.Identity{UID: "u1"}, time.Hour)
	require.NoError(t, err)

	otherKey, err := NewJWTVerifier([]byte("other"), "quickeats", "").Issue(identity.Identity{UID: "u1"}, time.Hour)
	require.NoError(t, err)

	expired, err := v.Issue(identity.Identity{UID: "u1"}, -time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewJWTVerifier(testSecret, "elsewhere", "").Issue(identity.Identity{UID: "u1"}, time.Hour)
	require.NoError(t, err)

	noSubject, err := v.Issue(identity.Identity{}, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"tampered":     valid + "x",
		"other key":    otherKey,
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"alg none":     none,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			require.ErrorIs(t, err, identity.ErrInvalidToken)
		})
	}
}

func TestVerify_Audience(t *testing.T) {
	v := NewJWTVerifier(testSecret, "", "quickeats-api")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Audience: jwt.ClaimStrings{"quickeats-api"}},
	}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	require.NoError(t, err)

	missing, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), missing)
	require.ErrorIs(t, err, identity.ErrInvalidToken)
}
