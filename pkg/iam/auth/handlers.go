package auth

import (
	"strings"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// Handlers exposes the Authenticator over HTTP
type Handlers struct {
	auth       *Authenticator
	middleware *TokenMiddleware
	throttle   *Throttle
}

func NewHandlers(auth *Authenticator, middleware *TokenMiddleware, throttle *Throttle) *Handlers {
	return &Handlers{auth: auth, middleware: middleware, throttle: throttle}
}

type apiKeyLoginRequest struct {
	AccessKey string `json:"access_key"`
	APIKey    string `json:"api_key"`
}

type oauthLoginRequest struct {
	Provider iam.OAuthProvider `json:"provider"`
	Token    string            `json:"token"`
}

type refreshRequest struct {
	RefreshToken   string                `json:"refresh_token"`
	OrganizationID kernel.OrganizationID `json:"organization_id"`
}

// WhoAmI is the caller's own view of the session
type WhoAmI struct {
	User         user.SecureView       `json:"user"`
	Organization kernel.OrganizationID `json:"organization_id,omitempty"`
	Role         string                `json:"role,omitempty"`
	Permissions  []string              `json:"permissions"`
}

// RegisterRoutes mounts the /auth routes on router
func (h *Handlers) RegisterRoutes(router fiber.Router) {
	g := router.Group("/auth")

	g.Post("/login", h.throttle.Middleware(emailKey), h.Login)
	g.Post("/login/apikey", h.throttle.Middleware(accessKeyKey), h.LoginWithAPIKey)
	g.Post("/login/oauth", h.LoginOAuth)
	g.Post("/switch/:orgId", h.SwitchOrganization)
	g.Post("/refresh", h.Refresh)
	g.Post("/logout", h.middleware.Authenticate(""), h.Logout)
	g.Get("/whoami", h.middleware.Authenticate(""), h.WhoAmI)
}

func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidRequest().WithCause(err)
	}
	pair, err := h.auth.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return h.respond(c, pair)
}

func (h *Handlers) LoginWithAPIKey(c *fiber.Ctx) error {
	var req apiKeyLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidRequest().WithCause(err)
	}
	pair, err := h.auth.LoginWithAPIKey(c.UserContext(), req.AccessKey, req.APIKey)
	if err != nil {
		return err
	}
	return h.respond(c, pair)
}

func (h *Handlers) LoginOAuth(c *fiber.Ctx) error {
	var req oauthLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidRequest().WithCause(err)
	}
	provider := iam.OAuthProvider(strings.ToUpper(string(req.Provider)))
	pair, err := h.auth.LoginExternal(c.UserContext(), provider, req.Token)
	if err != nil {
		return err
	}
	return h.respond(c, pair)
}

func (h *Handlers) SwitchOrganization(c *fiber.Ctx) error {
	target := kernel.OrganizationID(utils.CopyString(c.Params("orgId")))
	pair, err := h.auth.SwitchOrganization(c.UserContext(), accessTokenFrom(c), target)
	if err != nil {
		return err
	}
	return h.respond(c, pair)
}

func (h *Handlers) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return ErrInvalidRequest().WithCause(err)
		}
	}
	if req.RefreshToken == "" {
		req.RefreshToken = refreshTokenFrom(c)
	}
	pair, err := h.auth.Refresh(c.UserContext(), req.RefreshToken, req.OrganizationID)
	if err != nil {
		return err
	}
	return h.respond(c, pair)
}

func (h *Handlers) Logout(c *fiber.Ctx) error {
	session, ok := SessionFrom(c)
	if !ok {
		return iam.ErrUnauthenticated()
	}
	if err := h.auth.InvalidateUser(c.UserContext(), session.User.ID(), session.User.Email()); err != nil {
		return err
	}
	h.middleware.ClearPair(c)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) WhoAmI(c *fiber.Ctx) error {
	session, ok := SessionFrom(c)
	if !ok {
		return iam.ErrUnauthenticated()
	}
	return c.JSON(WhoAmI{
		User:         session.User.ToSecureView(),
		Organization: session.Realm,
		Role:         session.Role,
		Permissions:  session.Permissions,
	})
}

func (h *Handlers) respond(c *fiber.Ctx, pair TokenPair) error {
	h.middleware.WritePair(c, pair)
	return c.JSON(pair)
}

func emailKey(c *fiber.Ctx) string {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.IP()
	}
	return user.NormalizeEmail(req.Email)
}

func accessKeyKey(c *fiber.Ctx) string {
	var req apiKeyLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.IP()
	}
	return req.AccessKey
}
