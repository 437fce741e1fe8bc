package httpapi

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionTTL is the JWT cookie lifetime (§6: "10-minute TTL").
const sessionTTL = 10 * time.Minute

// cookieName is the name of the auth cookie the spec calls "jwt".
const cookieName = "jwt"

// ErrInvalidToken is the ClientError §7 names for an expired or malformed
// jwt cookie (Testable Property 10: exp in the past => InvalidToken).
var ErrInvalidToken = errors.New("httpapi: invalid or expired token")

// claims is the JWT payload (§6: "claims {loged_in:bool, exp:unix_seconds}").
// The field name keeps the spec's own spelling rather than "correcting" it
// to logged_in, since it is the literal wire contract.
type claims struct {
	LoggedIn bool `json:"loged_in"`
	jwt.RegisteredClaims
}

// signer issues and verifies session tokens with a secret generated once
// per process start (§6: "HS256 over a 64-byte random secret regenerated
// each process start").
type signer struct {
	secret []byte
}

// newSigner generates a fresh 64-byte HS256 secret.
func newSigner() (*signer, error) {
	secret := make([]byte, 64)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("httpapi: generating signing secret: %w", err)
	}
	return &signer{secret: secret}, nil
}

// issue mints a token valid for sessionTTL from now.
func (s *signer) issue(now time.Time) (string, error) {
	c := claims{
		LoggedIn: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("httpapi: signing token: %w", err)
	}
	return signed, nil
}

// verify parses and validates token, rejecting anything expired or signed
// with a different secret.
func (s *signer) verify(token string) error {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || !c.LoggedIn {
		return ErrInvalidToken
	}

	return nil
}
