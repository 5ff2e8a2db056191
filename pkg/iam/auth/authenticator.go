package auth

import (
	"context"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/logx"
	"golang.org/x/sync/singleflight"
)

// Authenticator runs the login, switch, refresh and logout flows.
//
// Every successful flow increments the user's counter through the
// repository's atomic update, which makes all earlier tokens stale. The
// Authenticator itself holds no locks.
type Authenticator struct {
	users    user.Repository
	tokens   *JWTService
	roles    *role.Registry
	audit    AuditService
	external ExternalVerifier
	now      func() time.Time

	rotations singleflight.Group
}

type Option func(*Authenticator)

// WithClock sets the time source for the Authenticator and its token codec
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
		a.tokens = a.tokens.WithClock(now)
	}
}

func WithAudit(audit AuditService) Option {
	return func(a *Authenticator) { a.audit = audit }
}

// WithExternalVerifier enables LoginExternal
func WithExternalVerifier(v ExternalVerifier) Option {
	return func(a *Authenticator) { a.external = v }
}

func NewAuthenticator(users user.Repository, tokens *JWTService, roles *role.Registry, opts ...Option) *Authenticator {
	a := &Authenticator{
		users:  users,
		tokens: tokens,
		roles:  roles,
		audit:  NopAudit(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tokens exposes the codec, mainly for handlers that need TTLs
func (a *Authenticator) Tokens() *JWTService { return a.tokens }

// ============================================================================
// Login
// ============================================================================

// Login authenticates with email, password and, when enabled, a TFA code
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (TokenPair, error) {
	ud, err := a.lookup(ctx, req.Email)
	if err != nil {
		return a.loginFailed(ctx, req.Email, MethodPassword, err)
	}
	if !credential.PasswordMatches(ud.User.PasswordHash, req.Password) {
		return a.loginFailed(ctx, req.Email, MethodPassword, iam.ErrUnauthenticated())
	}
	if err := checkStanding(ud); err != nil {
		return a.loginFailed(ctx, req.Email, MethodPassword, err)
	}
	if ud.User.TfaEnabled {
		if req.TfaCode == "" {
			return a.loginFailed(ctx, req.Email, MethodPassword, iam.ErrTfaRequired())
		}
		if !credential.VerifyTfaCode(ud.User.TfaSecret, req.TfaCode, a.now()) {
			return a.loginFailed(ctx, req.Email, MethodPassword, iam.ErrWrongTfaCode())
		}
	}
	return a.startSession(ctx, ud.ID(), MethodPassword, false)
}

// LoginTrusted starts a session for an identity verified elsewhere
func (a *Authenticator) LoginTrusted(ctx context.Context, email string) (TokenPair, error) {
	ud, err := a.lookup(ctx, email)
	if err != nil {
		return a.loginFailed(ctx, email, MethodTrusted, err)
	}
	if err := checkStanding(ud); err != nil {
		return a.loginFailed(ctx, email, MethodTrusted, err)
	}
	return a.startSession(ctx, ud.ID(), MethodTrusted, false)
}

// LoginWithAPIKey finds the user owning accessKey and checks apiKey
func (a *Authenticator) LoginWithAPIKey(ctx context.Context, accessKey, apiKey string) (TokenPair, error) {
	all, err := a.users.List(ctx)
	if err != nil {
		return TokenPair{}, errx.Wrap(err, "failed to list users", errx.TypeInternal)
	}
	for _, ud := range all {
		if ud.User.AccessKey != accessKey {
			continue
		}
		if !credential.AuthenticateAPIKey(ud.User, accessKey, apiKey) {
			break
		}
		if err := checkStanding(ud); err != nil {
			return a.loginFailed(ctx, ud.Email(), MethodAPIKey, err)
		}
		return a.startSession(ctx, ud.ID(), MethodAPIKey, true)
	}
	return a.loginFailed(ctx, accessKey, MethodAPIKey, iam.ErrUnauthenticated())
}

// LoginExternal verifies an OAuth token and logs in its owner. Unknown
// emails are Unauthenticated; registration is a separate step.
func (a *Authenticator) LoginExternal(ctx context.Context, provider iam.OAuthProvider, token string) (TokenPair, error) {
	if a.external == nil {
		return TokenPair{}, ErrInvalidOAuthProvider().WithDetail("provider", provider)
	}
	identity, err := a.external.Verify(ctx, provider, token)
	if err != nil {
		return a.loginFailed(ctx, string(provider), MethodOAuth, err)
	}
	ud, err := a.lookup(ctx, identity.Email)
	if err != nil {
		return a.loginFailed(ctx, identity.Email, MethodOAuth, err)
	}
	if err := checkStanding(ud); err != nil {
		return a.loginFailed(ctx, identity.Email, MethodOAuth, err)
	}
	return a.startSession(ctx, ud.ID(), MethodOAuth, false)
}

// VerifyExternal exposes the configured OAuth verifier
func (a *Authenticator) VerifyExternal(ctx context.Context, provider iam.OAuthProvider, token string) (ExternalIdentity, error) {
	if a.external == nil {
		return ExternalIdentity{}, ErrInvalidOAuthProvider().WithDetail("provider", provider)
	}
	return a.external.Verify(ctx, provider, token)
}

func (a *Authenticator) startSession(ctx context.Context, id kernel.UserID, method LoginMethod, viaAPIKey bool) (TokenPair, error) {
	now := a.now()
	ud, err := a.users.Update(ctx, id, func(ud user.UserData) (user.UserData, error) {
		if err := checkStanding(ud); err != nil {
			return ud, err
		}
		ud.IncCounter()
		ud.TouchLogin(now)
		return ud, nil
	}, loginActor(method))
	if err != nil {
		return a.loginFailed(ctx, id.String(), method, err)
	}

	pair, err := a.tokens.IssuePair(ud.User, ud.User.DefaultOrganization, viaAPIKey)
	if err != nil {
		return TokenPair{}, err
	}
	a.audit.LogLoginAttempt(ctx, ud.Email(), method, true, "")
	return pair, nil
}

func (a *Authenticator) loginFailed(ctx context.Context, who string, method LoginMethod, err error) (TokenPair, error) {
	failure, ok := iam.FailureOf(err)
	if !ok {
		logx.WithContext(ctx).WithError(err).Error("login failed unexpectedly")
		return TokenPair{}, err
	}
	if failure == iam.NotFound {
		failure = iam.Unauthenticated
		err = iam.ErrUnauthenticated()
	}
	a.audit.LogLoginAttempt(ctx, who, method, false, failure)
	return TokenPair{}, err
}

// ============================================================================
// Organization switch, refresh and logout
// ============================================================================

// SwitchOrganization rescopes a session to target. The current token only
// needs a valid signature and expiry; its counter is not compared.
func (a *Authenticator) SwitchOrganization(ctx context.Context, accessToken string, target kernel.OrganizationID) (TokenPair, error) {
	claims, err := a.tokens.Decode(accessToken, AccessToken)
	if err != nil {
		return TokenPair{}, err
	}
	ud, err := a.lookup(ctx, claims.Email)
	if err != nil {
		return TokenPair{}, err
	}
	if !holdsRole(ud, target) {
		return TokenPair{}, iam.ErrWrongOrganization().WithDetail("organization_id", target)
	}

	ud, err = a.users.Update(ctx, ud.ID(), func(ud user.UserData) (user.UserData, error) {
		if !holdsRole(ud, target) {
			return ud, iam.ErrWrongOrganization()
		}
		if err := checkStanding(ud); err != nil {
			return ud, err
		}
		ud.IncCounter()
		return ud, nil
	}, claims.Email)
	if err != nil {
		return TokenPair{}, err
	}

	pair, err := a.tokens.IssuePair(ud.User, target, claims.ViaAPIKey)
	if err != nil {
		return TokenPair{}, err
	}
	a.audit.LogOrganizationSwitch(ctx, claims.Email, claims.Organization, target)
	return pair, nil
}

// Refresh rotates a refresh token. A superseded token fails StaleToken.
// requested, when set, must be an organization the user holds a role in.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string, requested kernel.OrganizationID) (TokenPair, error) {
	claims, v := a.tokens.parse(refreshToken, RefreshToken)
	if v != Valid {
		return TokenPair{}, iam.ErrTokenNotValid().WithDetail("reason", v.String())
	}
	ud, err := a.lookup(ctx, claims.Email)
	if err != nil {
		return TokenPair{}, iam.ErrTokenNotValid()
	}

	ud, err = a.users.Update(ctx, ud.ID(), func(ud user.UserData) (user.UserData, error) {
		if ud.Counter() != claims.Counter {
			return ud, iam.ErrStaleToken()
		}
		if !requested.IsEmpty() && !holdsRole(ud, requested) {
			return ud, iam.ErrWrongOrganization().WithDetail("organization_id", requested)
		}
		if err := checkStanding(ud); err != nil {
			return ud, err
		}
		ud.IncCounter()
		return ud, nil
	}, claims.Email)
	if err != nil {
		return TokenPair{}, err
	}

	org := requested
	if org.IsEmpty() {
		org = ud.User.DefaultOrganization
	}
	pair, err := a.tokens.IssuePair(ud.User, org, claims.ViaAPIKey)
	if err != nil {
		return TokenPair{}, err
	}
	a.audit.LogTokenRefresh(ctx, claims.Email, org)
	return pair, nil
}

// Invalidate revokes every token issued to email so far
func (a *Authenticator) Invalidate(ctx context.Context, email string) error {
	ud, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return a.InvalidateUser(ctx, ud.ID(), email)
}

// InvalidateUser is Invalidate by id, recording actor
func (a *Authenticator) InvalidateUser(ctx context.Context, id kernel.UserID, actor string) error {
	ud, err := a.users.Update(ctx, id, func(ud user.UserData) (user.UserData, error) {
		ud.IncCounter()
		return ud, nil
	}, actor)
	if err != nil {
		return err
	}
	a.audit.LogLogout(ctx, ud.Email())
	return nil
}

// ============================================================================
// Request authentication
// ============================================================================

// Resolve authenticates a request. An expired access token is renewed from a
// valid, current refresh token without bumping the counter; the new pair is
// returned in Session.Rotated.
func (a *Authenticator) Resolve(ctx context.Context, req ResolveRequest) (Session, error) {
	if req.AccessToken == "" && req.RefreshToken == "" {
		return Session{}, iam.ErrUnauthenticated()
	}

	var session Session
	claims, v := a.tokens.parse(req.AccessToken, AccessToken)
	switch {
	case v == Valid:
	case v == Malformed && req.AccessToken != "":
		return Session{}, iam.ErrTokenNotValid()
	case req.RefreshToken == "":
		return Session{}, iam.ErrTokenExpired()
	default:
		pair, err := a.rotate(ctx, req.RefreshToken)
		if err != nil {
			return Session{}, err
		}
		claims, err = a.tokens.Decode(pair.AccessToken, AccessToken)
		if err != nil {
			return Session{}, err
		}
		session.Rotated = &pair
	}

	if realmMismatch(claims.Organization, req.Realm) {
		return Session{}, iam.ErrWrongOrganization().WithDetail("organization_id", req.Realm)
	}

	ud, err := a.lookup(ctx, claims.Email)
	if err != nil {
		return Session{}, err
	}
	if err := checkStanding(ud); err != nil {
		return Session{}, err
	}
	if ud.Counter() != claims.Counter {
		return Session{}, iam.ErrStaleToken()
	}

	realm := req.Realm
	if realm.IsEmpty() {
		realm = claims.Organization
	}
	roleName, hasRole := ud.RoleFor(realm)
	if !realm.IsEmpty() && !hasRole {
		return Session{}, iam.ErrWrongOrganization().WithDetail("organization_id", realm)
	}
	if len(req.Permissions) > 0 && !a.roles.Granted(roleName, req.Permissions...) {
		return Session{}, iam.ErrAccessDenied().WithDetail("permissions", req.Permissions)
	}

	now := a.now()
	touched, err := a.users.Update(ctx, ud.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.TouchAccess(now)
		return ud, nil
	}, claims.Email)
	if err != nil {
		logx.WithContext(ctx).WithError(err).Warn("failed to record last access")
	} else {
		ud = touched
	}

	session.User = ud
	session.Claims = claims
	session.Realm = realm
	session.Role = roleName
	session.Permissions = a.roles.PermissionsOf(roleName)
	return session, nil
}

// rotate renews a pair from a refresh token. Concurrent requests carrying the
// same refresh token share one rotation.
func (a *Authenticator) rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	result, err, _ := a.rotations.Do(refreshToken, func() (any, error) {
		claims, v := a.tokens.parse(refreshToken, RefreshToken)
		if v != Valid {
			return TokenPair{}, iam.ErrTokenExpired()
		}
		ud, err := a.lookup(ctx, claims.Email)
		if err != nil {
			return TokenPair{}, err
		}
		if ud.Counter() != claims.Counter {
			return TokenPair{}, iam.ErrStaleToken()
		}
		pair, err := a.tokens.IssuePair(ud.User, claims.Organization, claims.ViaAPIKey)
		if err != nil {
			return TokenPair{}, err
		}
		a.audit.LogTokenRefresh(ctx, claims.Email, claims.Organization)
		return pair, nil
	})
	if err != nil {
		return TokenPair{}, err
	}
	return result.(TokenPair), nil
}

// ============================================================================
// Helpers
// ============================================================================

func (a *Authenticator) lookup(ctx context.Context, email string) (user.UserData, error) {
	ud, err := a.users.GetByEmail(ctx, email)
	if iam.Is(err, iam.NotFound) {
		return user.UserData{}, iam.ErrUnauthenticated()
	}
	return ud, err
}

func checkStanding(ud user.UserData) error {
	if ud.User.Banned {
		return iam.ErrBanned()
	}
	if !ud.User.Confirmed {
		return iam.ErrNotConfirmed()
	}
	return nil
}

// holdsRole is true for an explicit role in org or any system-wide role
func holdsRole(ud user.UserData, org kernel.OrganizationID) bool {
	return ud.BelongsTo(org) || ud.BelongsTo(kernel.SystemOrganization)
}

func realmMismatch(tokenOrg, realm kernel.OrganizationID) bool {
	if tokenOrg.IsEmpty() || realm.IsEmpty() || tokenOrg == realm {
		return false
	}
	return !tokenOrg.IsSystem() && !realm.IsSystem()
}

func loginActor(method LoginMethod) string {
	return "login:" + string(method)
}
