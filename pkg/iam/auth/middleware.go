package auth

import (
	"strings"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	AccessHeader  = "X-Access-Token"
	RefreshHeader = "X-Refresh-Token"

	localsAuth    = "auth"
	localsSession = "session"
)

// CookieConfig controls how token cookies are written
type CookieConfig struct {
	Domain   string
	Secure   bool
	SameSite string
}

// TokenMiddleware authenticates fiber requests through the Authenticator
type TokenMiddleware struct {
	auth    *Authenticator
	cookies CookieConfig
}

func NewTokenMiddleware(auth *Authenticator, cookies CookieConfig) *TokenMiddleware {
	if cookies.SameSite == "" {
		cookies.SameSite = fiber.CookieSameSiteLaxMode
	}
	return &TokenMiddleware{auth: auth, cookies: cookies}
}

// Authenticate requires a session. When realmParam is set the route parameter
// of that name is the organization the request targets, and permissions are
// checked against the caller's role there.
func (m *TokenMiddleware) Authenticate(realmParam string, permissions ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := ResolveRequest{
			AccessToken:  accessTokenFrom(c),
			RefreshToken: refreshTokenFrom(c),
			Permissions:  permissions,
		}
		if realmParam != "" {
			req.Realm = kernel.OrganizationID(utils.CopyString(c.Params(realmParam)))
		}

		session, err := m.auth.Resolve(c.UserContext(), req)
		if err != nil {
			return fail(c, err)
		}
		if session.Rotated != nil {
			m.WritePair(c, *session.Rotated)
		}

		ac := session.AuthContext()
		c.Locals(localsAuth, ac)
		c.Locals(localsSession, &session)
		c.SetUserContext(kernel.WithAuth(c.UserContext(), ac))
		return c.Next()
	}
}

// RequireSystemAdmin must run after Authenticate
func (m *TokenMiddleware) RequireSystemAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, ok := SessionFrom(c)
		if !ok {
			return fail(c, iam.ErrUnauthenticated())
		}
		if !session.User.BelongsTo(kernel.SystemOrganization) {
			return fail(c, iam.ErrAccessDenied().WithDetail("required", "system role"))
		}
		return c.Next()
	}
}

// WritePair sets token cookies and headers on the response
func (m *TokenMiddleware) WritePair(c *fiber.Ctx, pair TokenPair) {
	c.Cookie(m.cookie(AccessCookie, pair.AccessToken, pair.RefreshExpiresAt))
	c.Cookie(m.cookie(RefreshCookie, pair.RefreshToken, pair.RefreshExpiresAt))
	c.Set(AccessHeader, pair.AccessToken)
	c.Set(RefreshHeader, pair.RefreshToken)
}

// ClearPair expires the token cookies
func (m *TokenMiddleware) ClearPair(c *fiber.Ctx) {
	c.Cookie(m.cookie(AccessCookie, "", time.Unix(0, 0)))
	c.Cookie(m.cookie(RefreshCookie, "", time.Unix(0, 0)))
}

func (m *TokenMiddleware) cookie(name, value string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   m.cookies.Domain,
		Expires:  expires,
		Secure:   m.cookies.Secure,
		HTTPOnly: true,
		SameSite: m.cookies.SameSite,
	}
}

// SessionFrom returns the session stored by Authenticate
func SessionFrom(c *fiber.Ctx) (*Session, bool) {
	s, ok := c.Locals(localsSession).(*Session)
	return s, ok && s != nil
}

// AuthContextFrom returns the caller stored by Authenticate
func AuthContextFrom(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(localsAuth).(*kernel.AuthContext)
	return ac, ok && ac != nil
}

func accessTokenFrom(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") && token != "" {
			return strings.TrimSpace(token)
		}
	}
	return c.Cookies(AccessCookie)
}

func refreshTokenFrom(c *fiber.Ctx) string {
	if token := c.Get(RefreshHeader); token != "" {
		return token
	}
	return c.Cookies(RefreshCookie)
}

func fail(c *fiber.Ctx, err error) error {
	status, body := errx.Response(err)
	return c.Status(status).JSON(body)
}
