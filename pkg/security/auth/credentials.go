package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingCredentials is returned when no Proxy-Authorization header is present.
	ErrMissingCredentials = errors.New("missing proxy credentials")

	// ErrMalformedCredentials is returned for headers that are not valid Basic credentials.
	ErrMalformedCredentials = errors.New("malformed proxy credentials")

	// ErrInvalidCredentials is returned when the credentials do not match.
	ErrInvalidCredentials = errors.New("invalid proxy credentials")
)

// StaticValidator accepts exactly one username/password pair.
type StaticValidator struct {
	username []byte
	password []byte
}

// NewStaticValidator creates a validator for username and password.
func NewStaticValidator(username, password string) *StaticValidator {
	return &StaticValidator{
		username: []byte(username),
		password: []byte(password),
	}
}

// Validate compares c against the configured pair in constant time.
func (v *StaticValidator) Validate(ctx context.Context, c Credentials) error {
	return compare(c, v.username, v.password)
}

func compare(c Credentials, username, password []byte) error {
	userOK := subtle.ConstantTimeCompare([]byte(c.Username), username)
	passOK := subtle.ConstantTimeCompare([]byte(c.Password), password)
	if userOK&passOK != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// SecretResolver turns a configured password into its value.
type SecretResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

// SecretValidator resolves the password on every attempt, so a rotated
// secret applies without a restart. A password that cannot be resolved
// rejects every client.
type SecretValidator struct {
	username []byte
	password string
	secrets  SecretResolver
}

// NewSecretValidator creates a validator for username whose password is
// resolved through secrets.
func NewSecretValidator(username, password string, secrets SecretResolver) *SecretValidator {
	return &SecretValidator{
		username: []byte(username),
		password: password,
		secrets:  secrets,
	}
}

// Validate resolves the password and compares c in constant time.
func (v *SecretValidator) Validate(ctx context.Context, c Credentials) error {
	password, err := v.secrets.Resolve(ctx, v.password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return compare(c, v.username, []byte(password))
}

// ParseBasic decodes the value of a Proxy-Authorization header using the
// Basic scheme.
func ParseBasic(header string) (Credentials, error) {
	if header == "" {
		return Credentials{}, ErrMissingCredentials
	}

	scheme, encoded, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return Credentials{}, ErrMalformedCredentials
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return Credentials{}, ErrMalformedCredentials
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return Credentials{}, ErrMalformedCredentials
	}
	return Credentials{Username: username, Password: password}, nil
}

// BasicHeader encodes c as a Proxy-Authorization header value.
func BasicHeader(c Credentials) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}
