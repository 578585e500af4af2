// ABOUTME: JWT token verification for authenticating API and stream requests
// ABOUTME: Uses HS256 signing with configurable secret, issuer, and audience

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// VerifierOption configures a JWTVerifier.
type VerifierOption func(*JWTVerifier)

// WithLeeway sets the clock-skew tolerance for exp/iat checks.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *JWTVerifier) { v.leeway = d }
}

// NewJWTVerifier creates a new JWT verifier. Issuer and audience are checked
// when non-empty.
func NewJWTVerifier(secret []byte, issuer, audience string, opts ...VerifierOption) *JWTVerifier {
	v := &JWTVerifier{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates the token and extracts the member identity from the
// "sub" and "handle" claims.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	handle, _ := claims["handle"].(string)
	return &Identity{MemberID: sub, Handle: handle}, nil
}

// Generate creates a new JWT token for the given member with expiration.
// Used by the bootstrap flow and by tests.
func (v *JWTVerifier) Generate(memberID, handle string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    memberID,
		"handle": handle,
		"iat":    now.Unix(),
		"exp":    now.Add(expiresIn).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	if v.audience != "" {
		claims["aud"] = v.audience
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
