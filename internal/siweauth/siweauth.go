// Package siweauth validates the bearer tokens minted after a sign-in with
// ethereum flow. A valid token proves control of an address and lets the
// verify endpoint skip the challenge exchange.
package siweauth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "stampd/pkg/domain-errors"
)

// Claims are the token claims we accept. Address is the wallet the token
// holder proved control of.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Service validates session tokens signed with a shared secret.
type Service struct {
	signingKey []byte
	tokenTTL   time.Duration
}

func NewService(signingKey string, tokenTTL time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
	}
}

// Enabled reports whether a signing key is configured.
func (s *Service) Enabled() bool {
	return len(s.signingKey) > 0
}

// GenerateToken mints a session token for an address. Used by the sign-in
// flow after SIWE message verification.
func (s *Service) GenerateToken(address string) (string, error) {
	now := time.Now()
	claims := Claims{
		Address: strings.ToLower(address),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSigning, "failed to sign session token")
	}
	return signed, nil
}

// VerifyAndExtractAddress validates the token and returns the address it
// attests, lower-case. Any validation failure returns an unauthorized error.
func (s *Service) VerifyAndExtractAddress(token string) (string, error) {
	if !s.Enabled() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "session tokens are not configured")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected token signing method")
		}
		return s.signingKey, nil
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid session token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Address == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "session token carries no address")
	}
	return strings.ToLower(claims.Address), nil
}

// ExtractBearerToken pulls the token out of an Authorization header. Returns
// empty when the header is absent or not a bearer scheme.
func ExtractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
