package auth

import (
	"errors"
	"time"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL  = 2 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultIssuer          = "keystone"
)

// JWTService signs and verifies HS256 session tokens. It is the only place
// that looks inside a token.
type JWTService struct {
	secretKey       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	issuer          string
	now             func() time.Time
}

// NewJWTService creates the token codec. Zero TTLs and an empty issuer take
// the defaults.
func NewJWTService(secretKey string, accessTokenTTL, refreshTokenTTL time.Duration, issuer string) *JWTService {
	if accessTokenTTL == 0 {
		accessTokenTTL = DefaultAccessTokenTTL
	}
	if refreshTokenTTL == 0 {
		refreshTokenTTL = DefaultRefreshTokenTTL
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}

	return &JWTService{
		secretKey:       []byte(secretKey),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		issuer:          issuer,
		now:             time.Now,
	}
}

// WithClock returns a copy of j that reads time from now
func (j *JWTService) WithClock(now func() time.Time) *JWTService {
	cp := *j
	cp.now = now
	return &cp
}

func (j *JWTService) TTL(kind TokenKind) time.Duration {
	if kind == RefreshToken {
		return j.refreshTokenTTL
	}
	return j.accessTokenTTL
}

// jwtClaims is the signed payload
type jwtClaims struct {
	Organization kernel.OrganizationID `json:"org,omitempty"`
	Counter      int64                 `json:"ctr"`
	Kind         TokenKind             `json:"knd"`
	ViaAPIKey    bool                  `json:"apk,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a token of kind for u scoped to org, embedding u's counter
func (j *JWTService) Issue(u user.User, org kernel.OrganizationID, kind TokenKind, viaAPIKey bool) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.TTL(kind))

	claims := jwtClaims{
		Organization: org,
		Counter:      u.Counter,
		Kind:         kind,
		ViaAPIKey:    viaAPIKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   u.Email,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, ErrTokenGenerationFailed().WithCause(err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssuePair signs an access and a refresh token for the same scope
func (j *JWTService) IssuePair(u user.User, org kernel.OrganizationID, viaAPIKey bool) (TokenPair, error) {
	access, accessExp, err := j.Issue(u, org, AccessToken, viaAPIKey)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := j.Issue(u, org, RefreshToken, viaAPIKey)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Organization:     org,
	}, nil
}

// Verify checks signature, issuer and kind first and expiry last, so a forged
// token is Malformed even when it is also expired.
func (j *JWTService) Verify(token string, kind TokenKind) Verification {
	_, v := j.parse(token, kind)
	return v
}

// Decode returns the claims of a Valid token. Expired and malformed tokens
// fail with TokenExpired and TokenNotValid.
func (j *JWTService) Decode(token string, kind TokenKind) (TokenClaims, error) {
	claims, v := j.parse(token, kind)
	switch v {
	case Valid:
		return claims, nil
	case Expired:
		return TokenClaims{}, iam.ErrTokenExpired()
	default:
		return TokenClaims{}, iam.ErrTokenNotValid()
	}
}

func (j *JWTService) parse(token string, kind TokenKind) (TokenClaims, Verification) {
	if token == "" {
		return TokenClaims{}, Malformed
	}

	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if expiredOnly(err) && claims.Kind == kind {
			return TokenClaims{}, Expired
		}
		return TokenClaims{}, Malformed
	}
	if !parsed.Valid || claims.Kind != kind || claims.Subject == "" {
		return TokenClaims{}, Malformed
	}

	return TokenClaims{
		Email:        claims.Subject,
		Organization: claims.Organization,
		Counter:      claims.Counter,
		Kind:         claims.Kind,
		ViaAPIKey:    claims.ViaAPIKey,
		IssuedAt:     claims.IssuedAt.Time,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, Valid
}

// expiredOnly reports a well formed token whose sole fault is its expiry.
// Validation errors are joined, so a foreign issuer also matches ErrTokenExpired.
func expiredOnly(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired) &&
		!errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
		!errors.Is(err, jwt.ErrTokenInvalidIssuer) &&
		!errors.Is(err, jwt.ErrTokenUsedBeforeIssued) &&
		!errors.Is(err, jwt.ErrTokenNotValidYet)
}
