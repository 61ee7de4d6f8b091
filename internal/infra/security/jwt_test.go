package security

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayvista/internal/domain/identity"
)

var testSecret = []byte("test-secret")

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()
	issuer := JWTIssuer{Secret: testSecret, Issuer: "stayvista", TTL: time.Hour}
	token, err := issuer.Issue(identity.Claim{Subject: "host-1", Email: "h@example.com", Name: "Hana", Role: identity.RoleHost})
	require.NoError(t, err)

	claim, err := JWTVerifier{Secret: testSecret, Issuer: "stayvista"}.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "host-1", claim.Subject)
	assert.Equal(t, identity.RoleHost, claim.Role)
	assert.Equal(t, "h@example.com", claim.Email)
	assert.False(t, claim.ExpiresAt.IsZero())
}

func TestVerifyRejects(t *testing.T) {
	t.Parallel()
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := JWTIssuer{Secret: testSecret, Issuer: "stayvista", TTL: time.Hour, Now: past}.Issue(identity.Claim{Subject: "g1"})
	require.NoError(t, err)
	otherIssuer, err := JWTIssuer{Secret: testSecret, Issuer: "elsewhere"}.Issue(identity.Claim{Subject: "g1"})
	require.NoError(t, err)
	wrongKey, err := JWTIssuer{Secret: []byte("other"), Issuer: "stayvista"}.Issue(identity.Claim{Subject: "g1"})
	require.NoError(t, err)
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "root",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "g1",
			Issuer:    "stayvista",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "g1", Issuer: "stayvista"},
	}).SignedString(testSecret)
	require.NoError(t, err)

	verifier := JWTVerifier{Secret: testSecret, Issuer: "stayvista"}
	for name, token := range map[string]string{
		"expired":     expired,
		"issuer":      otherIssuer,
		"signature":   wrongKey,
		"role":        badRole,
		"no expiry":   noExpiry,
		"empty":       "",
		"not a token": "abc.def",
	} {
		_, err := verifier.Verify(token)
		assert.ErrorIs(t, err, ErrTokenInvalid, name)
	}
}

func TestVerifyHonoursClockSkew(t *testing.T) {
	t.Parallel()
	justExpired := func() time.Time { return time.Now().Add(-time.Hour - 5*time.Second) }
	token, err := JWTIssuer{Secret: testSecret, TTL: time.Hour, Now: justExpired}.Issue(identity.Claim{Subject: "g1"})
	require.NoError(t, err)

	_, err = JWTVerifier{Secret: testSecret}.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = JWTVerifier{Secret: testSecret, ClockSkew: 30 * time.Second}.Verify(token)
	assert.NoError(t, err)
}

func TestMissingSecret(t *testing.T) {
	t.Parallel()
	_, err := JWTVerifier{}.Verify("x")
	assert.ErrorIs(t, err, ErrSecretRequired)
	_, err = JWTIssuer{}.Issue(identity.Claim{Subject: "g1"})
	assert.ErrorIs(t, err, ErrSecretRequired)
}
