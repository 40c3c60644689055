package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hust/bookingclient/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestJWTTokenizerRoundTrip(t *testing.T) {
	tok := NewJWTTokenizer(newKey(t))
	now := time.Now().Truncate(time.Second)

	grant := ports.AccessGrant{
		ID:        "jti-1",
		UserID:    42,
		Email:     "an@example.com",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}
	token, err := tok.GrantToAccessToken(grant)
	require.NoError(t, err)

	got, err := tok.AccessTokenToGrant(token)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, got.ID)
	assert.Equal(t, grant.UserID, got.UserID)
	assert.Equal(t, grant.Email, got.Email)
	assert.True(t, grant.ExpiresAt.Equal(got.ExpiresAt))
}

func TestJWTTokenizerExpired(t *testing.T) {
	tok := NewJWTTokenizer(newKey(t))
	now := time.Now()

	token, err := tok.GrantToAccessToken(ports.AccessGrant{
		UserID:    1,
		IssuedAt:  now.Add(-2 * time.Minute),
		ExpiresAt: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = tok.AccessTokenToGrant(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTTokenizerRejectsForeignKey(t *testing.T) {
	issuer := NewJWTTokenizer(newKey(t))
	verifier := NewJWTTokenizer(newKey(t))

	token, err := issuer.GrantToAccessToken(ports.AccessGrant{UserID: 1, IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Minute)})
	require.NoError(t, err)

	_, err = verifier.AccessTokenToGrant(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTTokenizerRejectsOtherAlgorithms(t *testing.T) {
	tok := NewJWTTokenizer(newKey(t))

	claims := AccessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "1",
		Audience:  jwt.ClaimStrings{AudienceAccess},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tok.AccessTokenToGrant(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tok.AccessTokenToGrant("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
