package auth

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
)

// ============================================================================
// Token Types
// ============================================================================

// TokenKind separates short-lived access tokens from refresh tokens
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// Verification is the outcome of checking a token's signature and expiry
type Verification int

const (
	Malformed Verification = iota
	Expired
	Valid
)

func (v Verification) String() string {
	switch v {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	default:
		return "malformed"
	}
}

// TokenClaims are the fields carried by a verified token
type TokenClaims struct {
	Email        string                `json:"email"`
	Organization kernel.OrganizationID `json:"organization_id,omitempty"`
	Counter      int64                 `json:"counter"`
	Kind         TokenKind             `json:"kind"`
	ViaAPIKey    bool                  `json:"via_api_key,omitempty"`
	IssuedAt     time.Time             `json:"iat"`
	ExpiresAt    time.Time             `json:"exp"`
}

// TokenPair is what every successful authentication returns
type TokenPair struct {
	AccessToken      string                `json:"access_token"`
	RefreshToken     string                `json:"refresh_token"`
	AccessExpiresAt  time.Time             `json:"access_expires_at"`
	RefreshExpiresAt time.Time             `json:"refresh_expires_at"`
	Organization     kernel.OrganizationID `json:"organization_id,omitempty"`
}

// LoginMethod labels audit events
type LoginMethod string

const (
	MethodPassword LoginMethod = "password"
	MethodAPIKey   LoginMethod = "apikey"
	MethodTrusted  LoginMethod = "trusted"
	MethodOAuth    LoginMethod = "oauth"
)

// LoginRequest is a password login, optionally with a TFA code
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TfaCode  string `json:"tfa_code,omitempty"`
}

// ResolveRequest describes an incoming request to authenticate
type ResolveRequest struct {
	AccessToken  string
	RefreshToken string
	// Realm is the organization the request targets, empty for none
	Realm       kernel.OrganizationID
	Permissions []string
}

// Session is an authenticated request
type Session struct {
	User        user.UserData
	Claims      TokenClaims
	Realm       kernel.OrganizationID
	Role        string
	Permissions []string
	// Rotated holds the pair issued when an expired access token was renewed
	Rotated *TokenPair
}

// AuthContext converts the session for the request context
func (s Session) AuthContext() *kernel.AuthContext {
	return &kernel.AuthContext{
		UserID:         s.User.User.ID,
		Email:          s.User.User.Email,
		OrganizationID: s.Realm,
		Role:           s.Role,
		Permissions:    s.Permissions,
		IsAPIKey:       s.Claims.ViaAPIKey,
	}
}

// ExternalIdentity is what an OAuth provider vouches for
type ExternalIdentity struct {
	Email     string
	FirstName string
	LastName  string
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeInvalidOAuthProvider     = ErrRegistry.Register("INVALID_OAUTH_PROVIDER", errx.TypeValidation, http.StatusBadRequest, "Invalid OAuth provider")
	CodeOAuthAuthorizationFailed = ErrRegistry.Register("OAUTH_AUTHORIZATION_FAILED", errx.TypeExternal, http.StatusBadRequest, "OAuth authorization failed")
	CodeTokenGenerationFailed    = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
	CodeTooManyAttempts          = ErrRegistry.Register("TOO_MANY_ATTEMPTS", errx.TypeBusiness, http.StatusTooManyRequests, "Too many login attempts")
	CodeInvalidRequest           = ErrRegistry.Register("INVALID_REQUEST", errx.TypeValidation, http.StatusBadRequest, "Invalid request body")
)

func ErrInvalidOAuthProvider() *errx.Error {
	return ErrRegistry.New(CodeInvalidOAuthProvider)
}

func ErrOAuthAuthorizationFailed() *errx.Error {
	return ErrRegistry.New(CodeOAuthAuthorizationFailed)
}

func ErrTokenGenerationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenGenerationFailed)
}

func ErrTooManyAttempts() *errx.Error {
	return ErrRegistry.New(CodeTooManyAttempts)
}

func ErrInvalidRequest() *errx.Error {
	return ErrRegistry.New(CodeInvalidRequest)
}
