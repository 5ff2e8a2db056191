// Package credential checks passwords, API keys and time-based one-time codes
// against a user record. Nothing here stores or logs a plaintext secret.
package credential

import (
	"crypto/subtle"
	"strings"
	"unicode/utf8"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

// Verifier hashes and checks passwords with a fixed bcrypt cost
type Verifier struct {
	cost int
}

// NewVerifier returns a Verifier. Costs outside bcrypt's range fall back to
// bcrypt.DefaultCost.
func NewVerifier(cost int) *Verifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Verifier{cost: cost}
}

// HashPassword validates and hashes a new password
func (v *Verifier) HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}
	return string(hash), nil
}

// ValidatePassword enforces the minimum password policy
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword().WithDetail("min_length", MinPasswordLength)
	}
	if bcryptLimit := 72; len(password) > bcryptLimit {
		return ErrWeakPassword().WithDetail("max_bytes", bcryptLimit)
	}
	return nil
}

// PasswordMatches compares password with a bcrypt hash. An empty hash never matches.
func PasswordMatches(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// AuthenticatePassword is true iff u is not banned and password matches
func AuthenticatePassword(u user.User, password string) bool {
	if u.Banned {
		return false
	}
	return PasswordMatches(u.PasswordHash, password)
}

// AuthenticateAPIKey is true iff u is not banned, has an API key, and both
// keys match exactly.
func AuthenticateAPIKey(u user.User, accessKey, apiKey string) bool {
	if u.Banned || u.APIKey == "" {
		return false
	}
	accessOK := subtle.ConstantTimeCompare([]byte(u.AccessKey), []byte(accessKey)) == 1
	apiOK := subtle.ConstantTimeCompare([]byte(u.APIKey), []byte(apiKey)) == 1
	return accessOK && apiOK
}

// GenerateAPIKey returns a fresh random API key
func GenerateAPIKey() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
