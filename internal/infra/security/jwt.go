package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"stayvista/internal/domain/identity"
)

var (
	ErrSecretRequired = errors.New("security: signing secret not configured")
	ErrTokenInvalid   = errors.New("security: token invalid")
)

// Claims is the token body: registered claims plus profile and role.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier turns HS256 bearer tokens into identity claims.
type JWTVerifier struct {
	Secret    []byte
	Issuer    string
	ClockSkew time.Duration
}

func (v JWTVerifier) Verify(raw string) (identity.Claim, error) {
	if len(v.Secret) == 0 {
		return identity.Claim{}, ErrSecretRequired
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return identity.Claim{}, ErrTokenInvalid
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return identity.Claim{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return identity.Claim{}, ErrTokenInvalid
	}
	role, err := identity.ParseRole(claims.Role)
	if err != nil {
		return identity.Claim{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	out := identity.Claim{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Role:    role,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if out.Subject == "" {
		return identity.Claim{}, fmt.Errorf("%w: %v", ErrTokenInvalid, identity.ErrSubjectRequired)
	}
	return out, nil
}

// JWTIssuer signs identity claims. It backs the developer token tool and tests.
type JWTIssuer struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func (i JWTIssuer) Issue(claim identity.Claim) (string, error) {
	if len(i.Secret) == 0 {
		return "", ErrSecretRequired
	}
	if _, err := identity.ParseRole(string(claim.Role)); err != nil {
		return "", err
	}
	now := time.Now()
	if i.Now != nil {
		now = i.Now()
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	body := Claims{
		Email: claim.Email,
		Name:  claim.Name,
		Role:  string(claim.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claim.Subject,
			Issuer:    i.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString(i.Secret)
}
