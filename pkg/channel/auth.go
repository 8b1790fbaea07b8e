package channel

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// TokenSigner mints short-lived HS256 bearer tokens identifying a worker.
type TokenSigner struct {
	secret   []byte
	issuer   string
	audience string
	subject  string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenSigner creates a signer. subject is the worker ID.
func NewTokenSigner(secret, issuer, audience, subject string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		subject:  subject,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Token returns a freshly signed token.
func (s *TokenSigner) Token() (string, error) {
	now := s.now()
	claims := jwtlib.RegisteredClaims{
		Subject:   s.subject,
		Issuer:    s.issuer,
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
	}
	if s.audience != "" {
		claims.Audience = jwtlib.ClaimStrings{s.audience}
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token minted by a TokenSigner with the same
// secret and returns its subject. Empty issuer or audience skip the
// corresponding check.
func VerifyToken(token, secret, issuer, audience string) (string, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwtlib.WithAudience(audience))
	}

	var claims jwtlib.RegisteredClaims
	if _, err := jwtlib.ParseWithClaims(token, &claims, func(*jwtlib.Token) (any, error) {
		return []byte(secret), nil
	}, opts...); err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("invalid token: missing subject")
	}
	return claims.Subject, nil
}
