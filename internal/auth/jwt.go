// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/quickeats/internal/domain/identity"
)

// Claims are the token claims mapped onto identity.Identity. Tokens may
// carry the uid in either sub or user_id.
type Claims struct {
	UserID  string `json:"user_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Admin   bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

var _ identity.Verifier = (*JWTVerifier)(nil)

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

// NewJWTVerifier returns a verifier for secret. Empty issuer or audience
// disable the respective check.
func NewJWTVerifier(secret []byte, issuer, audience string) *JWTVerifier {
	v := &JWTVerifier{secret: secret, issuer: issuer, now: time.Now}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v
}

// Verify parses token and returns the identity it carries.
func (v *JWTVerifier) Verify(_ context.Context, token string) (identity.Identity, error) {
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", identity.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return identity.Identity{}, identity.ErrInvalidToken
	}

	uid := claims.Subject
	if uid == "" {
		uid = claims.UserID
	}
	if uid == "" {
		return identity.Identity{}, fmt.Errorf("%w: no subject", identity.ErrInvalidToken)
	}
	return identity.Identity{
		UID:         uid,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
		Admin:       claims.Admin,
	}, nil
}

// Issue signs a token for id valid for ttl. It backs local development and
// tests; production tokens come from the identity provider.
func (v *JWTVerifier) Issue(id identity.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Email:   id.Email,
		Name:    id.DisplayName,
		Picture: id.PhotoURL,
		Admin:   id.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
