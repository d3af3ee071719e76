// Package token decides whether a session credential is usable and extracts
// its subject. Credentials are JWTs issued by the external auth service; this
// package never issues or refreshes them and performs no I/O.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims captures the fields the cart session reads from a credential.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// sessionClaims is the internal claims type used for JWT parsing.
// The auth service puts the user ID in a custom "id" claim; "sub" is used as
// a fallback.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID any `json:"id,omitempty"`
}

// Validator checks credential expiry and, when Key is set, its HS256
// signature. Without a Key, claims are decoded without verification, which
// matches what a browser client can do with a token it cannot verify.
type Validator struct {
	// Key verifies HS256 signatures when non-empty.
	Key []byte

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// New creates a Validator. key may be nil to skip signature verification.
func New(key []byte) *Validator {
	return &Validator{Key: key, Now: time.Now}
}

// IsValid reports whether token is present, decodable, carries an expiry and
// has not expired. A token expiring exactly now is invalid.
func (v *Validator) IsValid(token string) bool {
	_, err := v.Claims(token)
	return err == nil
}

// SubjectID returns the subject only when the token is valid.
func (v *Validator) SubjectID(token string) (string, bool) {
	claims, err := v.Claims(token)
	if err != nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// Claims decodes and validates token, returning its subject and expiry.
func (v *Validator) Claims(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, errors.New("token is empty")
	}

	parsed, err := v.parse(token)
	if err != nil {
		return Claims{}, err
	}

	if parsed.ExpiresAt == nil {
		return Claims{}, errors.New("token exp is required")
	}
	now := v.now()
	exp := parsed.ExpiresAt.Time
	if !exp.After(now) {
		return Claims{}, fmt.Errorf("token expired at %s", exp.UTC().Format(time.RFC3339))
	}

	return Claims{
		Subject:   subject(parsed),
		ExpiresAt: exp.UTC(),
	}, nil
}

func (v *Validator) parse(token string) (*sessionClaims, error) {
	var claims sessionClaims

	if len(v.Key) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
			return nil, fmt.Errorf("decoding token: %w", err)
		}
		return &claims, nil
	}

	// Expiry is checked against v.Now, not the library clock.
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.Key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}
	return &claims, nil
}

func (v *Validator) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

// subject prefers the custom "id" claim, then "sub".
func subject(c *sessionClaims) string {
	switch id := c.UserID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return c.Subject
}

// mapJWTError translates jwt library errors to short descriptive errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("token signature is invalid: %w", err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("token alg is invalid: %w", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("token is malformed: %w", err)
	default:
		return fmt.Errorf("token is invalid: %w", err)
	}
}
