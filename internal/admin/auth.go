// Package admin exposes operator controls over the relay's ban registry, word list and
// reputation check, over gRPC and REST, behind HS256 bearer tokens.
package admin

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
)

// Issuer is the iss claim of every admin token.
const Issuer = "relay-admin"

// Claims are the validated contents of an admin token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Verifier checks admin tokens against the shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier. now defaults to time.Now.
func NewVerifier(secret []byte, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: secret, now: now}
}

// Verify parses token and returns its claims, or a CodeUnauthenticated error.
func (v *Verifier) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "admin token is required")
	}
	if len(v.secret) == 0 {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "admin access is disabled")
	}

	var parsed jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	if parsed.Subject == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "admin token has no subject")
	}
	return Claims{Subject: parsed.Subject, ExpiresAt: parsed.ExpiresAt.Time}, nil
}

// Mint signs a token for subject valid for ttl.
func Mint(secret []byte, subject string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", apperrors.New(apperrors.CodeConfigMissing, "admin secret is required")
	}
	if strings.TrimSpace(subject) == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "subject is required")
	}
	if ttl <= 0 {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "ttl must be positive")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(err, apperrors.CodeUnauthenticated, "admin token is expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(err, apperrors.CodeUnauthenticated, "admin token signature is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.Wrap(err, apperrors.CodeUnauthenticated, "admin token issuer mismatch")
	default:
		return apperrors.Wrap(err, apperrors.CodeUnauthenticated, "admin token is invalid")
	}
}
