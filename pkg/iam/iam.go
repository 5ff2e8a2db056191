package iam

import (
	"net/http"

	"github.com/Abraxas-365/keystone/pkg/errx"
)

// Failure is the kind of an expected authentication or access outcome.
type Failure string

const (
	Unauthenticated   Failure = "UNAUTHENTICATED"
	TfaRequired       Failure = "TFA_REQUIRED"
	WrongTfaCode      Failure = "WRONG_TFA_CODE"
	Banned            Failure = "BANNED"
	NotConfirmed      Failure = "NOT_CONFIRMED"
	TokenNotValid     Failure = "TOKEN_NOT_VALID"
	TokenExpired      Failure = "TOKEN_EXPIRED"
	StaleToken        Failure = "STALE_TOKEN"
	WrongOrganization Failure = "WRONG_ORGANIZATION"
	AccessDenied      Failure = "ACCESS_DENIED"
	DuplicateKey      Failure = "DUPLICATE_KEY"
	NotFound          Failure = "NOT_FOUND"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthenticated   = ErrRegistry.Register(string(Unauthenticated), errx.TypeAuthorization, http.StatusUnauthorized, "Username or password is invalid")
	CodeTfaRequired       = ErrRegistry.Register(string(TfaRequired), errx.TypeValidation, http.StatusBadRequest, "TFA code is required")
	CodeWrongTfaCode      = ErrRegistry.Register(string(WrongTfaCode), errx.TypeValidation, http.StatusBadRequest, "TFA code is incorrect")
	CodeBanned            = ErrRegistry.Register(string(Banned), errx.TypeAuthorization, http.StatusUnauthorized, "User is banned")
	CodeNotConfirmed      = ErrRegistry.Register(string(NotConfirmed), errx.TypeAuthorization, http.StatusUnauthorized, "User is not confirmed")
	CodeTokenNotValid     = ErrRegistry.Register(string(TokenNotValid), errx.TypeAuthorization, http.StatusUnauthorized, "Token is not valid")
	CodeTokenExpired      = ErrRegistry.Register(string(TokenExpired), errx.TypeAuthorization, http.StatusUnauthorized, "Token has expired")
	CodeStaleToken        = ErrRegistry.Register(string(StaleToken), errx.TypeAuthorization, http.StatusUnauthorized, "Token has been superseded")
	CodeWrongOrganization = ErrRegistry.Register(string(WrongOrganization), errx.TypeForbidden, http.StatusForbidden, "User has no access to this organization")
	CodeAccessDenied      = ErrRegistry.Register(string(AccessDenied), errx.TypeForbidden, http.StatusForbidden, "Access denied")
	CodeDuplicateKey      = ErrRegistry.Register(string(DuplicateKey), errx.TypeConflict, http.StatusConflict, "Record already exists")
	CodeNotFound          = ErrRegistry.Register(string(NotFound), errx.TypeNotFound, http.StatusNotFound, "Record not found")
)

// failures lists every kind, each registered in ErrRegistry under its own name
var failures = []Failure{
	Unauthenticated, TfaRequired, WrongTfaCode, Banned, NotConfirmed, TokenNotValid,
	TokenExpired, StaleToken, WrongOrganization, AccessDenied, DuplicateKey, NotFound,
}

// Fail builds the error for a failure kind
func Fail(f Failure) *errx.Error {
	code, ok := ErrRegistry.Get(string(f))
	if !ok {
		return errx.Internal("unknown failure kind " + string(f))
	}
	return ErrRegistry.New(code)
}

// FailureOf recovers the failure kind carried by err. Errors that are not
// expected outcomes report ok=false.
func FailureOf(err error) (Failure, bool) {
	code := errx.CodeOf(err)
	if code == "" {
		return "", false
	}
	for _, f := range failures {
		if c, ok := ErrRegistry.Get(string(f)); ok && c.Code == code {
			return f, true
		}
	}
	return "", false
}

// Is reports whether err carries failure f
func Is(err error, f Failure) bool {
	got, ok := FailureOf(err)
	return ok && got == f
}

func ErrUnauthenticated() *errx.Error   { return ErrRegistry.New(CodeUnauthenticated) }
func ErrTfaRequired() *errx.Error       { return ErrRegistry.New(CodeTfaRequired) }
func ErrWrongTfaCode() *errx.Error      { return ErrRegistry.New(CodeWrongTfaCode) }
func ErrBanned() *errx.Error            { return ErrRegistry.New(CodeBanned) }
func ErrNotConfirmed() *errx.Error      { return ErrRegistry.New(CodeNotConfirmed) }
func ErrTokenNotValid() *errx.Error     { return ErrRegistry.New(CodeTokenNotValid) }
func ErrTokenExpired() *errx.Error      { return ErrRegistry.New(CodeTokenExpired) }
func ErrStaleToken() *errx.Error        { return ErrRegistry.New(CodeStaleToken) }
func ErrWrongOrganization() *errx.Error { return ErrRegistry.New(CodeWrongOrganization) }
func ErrAccessDenied() *errx.Error      { return ErrRegistry.New(CodeAccessDenied) }
func ErrDuplicateKey() *errx.Error      { return ErrRegistry.New(CodeDuplicateKey) }
func ErrNotFound() *errx.Error          { return ErrRegistry.New(CodeNotFound) }

// OAuthProvider names an external identity provider
type OAuthProvider string

const (
	OAuthProviderGoogle OAuthProvider = "GOOGLE"
)
