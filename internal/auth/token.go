// Package auth holds the credential primitives shared by the login flows:
// opaque session tokens, Basic credential parsing and password hashing.
package auth

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HeaderToken carries the session token on authenticated requests.
const HeaderToken = "X-Token"

var (
	ErrMalformedCredentials = errors.New("malformed credentials")
	ErrPasswordMismatch     = errors.New("password mismatch")
)

// NewSessionToken returns a random opaque token.
func NewSessionToken() string {
	return uuid.NewString()
}

// ParseBasic decodes an "Authorization: Basic base64(email:password)" value.
func ParseBasic(header string) (email, password string, err error) {
	const scheme = "Basic "
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", "", ErrMalformedCredentials
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(scheme):]))
	if err != nil {
		return "", "", ErrMalformedCredentials
	}
	email, password, ok := strings.Cut(string(decoded), ":")
	if !ok || email == "" || password == "" {
		return "", "", ErrMalformedCredentials
	}
	return email, password, nil
}

// HashPassword hashes password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports ErrPasswordMismatch when password does not match hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
