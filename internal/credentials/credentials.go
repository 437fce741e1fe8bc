// Package credentials loads and checks the admin login pair (§4.4 step 4,
// §6, Testable Property 9).
package credentials

import (
	"errors"
	"os"
	"strings"
)

// ErrMissing is returned by Load when ADMIN_USERNAME or ADMIN_PASSWORD is
// unset or empty — a StartupError per §7, not a recoverable default.
var ErrMissing = errors.New("credentials: ADMIN_USERNAME and ADMIN_PASSWORD must both be set")

// ErrWrongCredentials is the ClientError §7 names for a failed login.
var ErrWrongCredentials = errors.New("credentials: wrong username or password")

// Credentials holds the single admin login pair the HTTP control plane
// accepts. Unlike config.Config, these have no default — empty values are
// a startup failure (§4.4 step 4: "both must be non-empty").
type Credentials struct {
	Username string
	Password string
}

// Load reads ADMIN_USERNAME and ADMIN_PASSWORD from the environment.
func Load() (Credentials, error) {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")

	if username == "" || password == "" {
		return Credentials{}, ErrMissing
	}

	return Credentials{Username: username, Password: password}, nil
}

// Check validates a login attempt. Username comparison is
// case-insensitive; password comparison is case-sensitive (Testable
// Property 9). Empty input is always rejected, even if somehow c itself
// holds empty fields.
func (c Credentials) Check(username, password string) error {
	if username == "" || password == "" {
		return ErrWrongCredentials
	}
	if !strings.EqualFold(username, c.Username) {
		return ErrWrongCredentials
	}
	if password != c.Password {
		return ErrWrongCredentials
	}
	return nil
}
