package organizationapi

import (
	"context"
	"net/url"
	"strings"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/iam/organization"
	"github.com/Abraxas-365/keystone/pkg/iam/organization/organizationsrv"
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// Handlers exposes organizationsrv over HTTP
type Handlers struct {
	service    *organizationsrv.Service
	auth       *auth.Authenticator
	middleware *auth.TokenMiddleware
}

func NewHandlers(service *organizationsrv.Service, authenticator *auth.Authenticator, middleware *auth.TokenMiddleware) *Handlers {
	return &Handlers{service: service, auth: authenticator, middleware: middleware}
}

type externalRegisterRequest struct {
	OrganizationName string            `json:"organization_name"`
	Provider         iam.OAuthProvider `json:"provider"`
	Token            string            `json:"token"`
}

type registration struct {
	Organization organization.OrganizationData `json:"organization"`
	User         user.View                     `json:"user"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

// RegisterRoutes mounts /organizations and /users on router
func (h *Handlers) RegisterRoutes(router fiber.Router) {
	authenticated := h.middleware.Authenticate("")
	inOrg := func(permissions ...string) fiber.Handler {
		return h.middleware.Authenticate("orgId", permissions...)
	}

	orgs := router.Group("/organizations")
	orgs.Post("/register", h.Register)
	orgs.Post("/register/oauth", h.RegisterExternal)
	orgs.Get("/", authenticated, h.ListOrganizations)
	orgs.Post("/", authenticated, h.CreateOrganization)
	orgs.Get("/:orgId", inOrg(role.OrganizationRead), h.GetOrganization)
	orgs.Post("/:orgId", inOrg(role.OrganizationUpdate), h.UpdateOrganization)
	orgs.Delete("/:orgId", inOrg(role.OrganizationDelete), h.DeleteOrganization)
	orgs.Get("/:orgId/roles", inOrg(role.AssignRole), h.Roles)
	orgs.Post("/:orgId/default", inOrg(role.ManageSelf), h.SetDefaultOrganization)

	orgs.Get("/:orgId/accounts", inOrg(role.AccountList), h.ListAccounts)
	orgs.Post("/:orgId/accounts", inOrg(role.AccountStore), h.StoreAccount)
	orgs.Get("/:orgId/accounts/:accountId", inOrg(role.AccountRead), h.GetAccount)
	orgs.Delete("/:orgId/accounts/:accountId", inOrg(role.AccountDelete), h.DeleteAccount)
	orgs.Post("/:orgId/accounts/:accountId/default", inOrg(role.ManageSelf), h.SetDefaultAccount)

	orgs.Get("/:orgId/users", inOrg(role.OrganizationListUsers), h.ListUsers)
	orgs.Post("/:orgId/users", inOrg(role.OrganizationStoreUser), h.StoreUser)
	orgs.Post("/:orgId/users/:email/membership", inOrg(), h.AddUserToOrganization)
	orgs.Delete("/:orgId/users/:email/membership", inOrg(), h.RemoveUserFromOrganization)
	orgs.Post("/:orgId/users/:email/role", inOrg(role.AssignRole), h.AssignRole)
	orgs.Post("/:orgId/users/:email/accounts/:accountId", inOrg(role.AccountAdd), h.GrantAccount)
	orgs.Delete("/:orgId/users/:email/accounts/:accountId", inOrg(role.AccountAdd), h.RevokeAccount)
	orgs.Post("/:orgId/users/:email/ban", inOrg(role.UserBan), h.Ban)
	orgs.Post("/:orgId/users/:email/unban", inOrg(role.UserUnban), h.Unban)
	orgs.Post("/:orgId/users/:email/passwd", inOrg(), h.ChangePassword)
	orgs.Post("/:orgId/users/:email/apikey", inOrg(), h.RefreshAPIKey)

	users := router.Group("/users", authenticated)
	users.Post("/tfa", h.GenerateTFA)
	users.Post("/tfa/enable", h.EnableTFA)
	users.Post("/:email/tfa/disable", h.DisableTFA)
	users.Post("/:email/confirm", h.Confirm)
	users.Delete("/:email", h.middleware.RequireSystemAdmin(), h.DeleteUser)
}

// ============================================================================
// Registration
// ============================================================================

func (h *Handlers) Register(c *fiber.Ctx) error {
	var req organizationsrv.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidRequest().WithCause(err)
	}
	reg, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(registration{Organization: reg.Organization, User: reg.User.ToView()})
}

func (h *Handlers) RegisterExternal(c *fiber.Ctx) error {
	var req externalRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidRequest().WithCause(err)
	}
	provider := iam.OAuthProvider(strings.ToUpper(string(req.Provider)))
	identity, err := h.auth.VerifyExternal(c.UserContext(), provider, req.Token)
	if err != nil {
		return err
	}
	reg, err := h.service.RegisterExternal(c.UserContext(), req.OrganizationName, identity)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(registration{Organization: reg.Organization, User: reg.User.ToView()})
}

// ============================================================================
// Organizations
// ============================================================================

func (h *Handlers) ListOrganizations(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	orgs, err := h.service.ListOrganizations(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(orgs)
}

func (h *Handlers) CreateOrganization(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var org organization.Organization
	if err := c.BodyParser(&org); err != nil {
		return auth.ErrInvalidRequest().WithCause(err)
	}
	org.ID = ""
	od, err := h.service.StoreOrganization(c.UserContext(), caller, org)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(od)
}

func (h *Handlers) GetOrganization(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	od, err := h.service.GetOrganization(c.UserContext(), caller, orgParam(c))
	if err != nil {
		return err
	}
	return c.JSON(od)
}

func (h *Handlers) UpdateOrganization(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var org organization.Organization
	if err := c.BodyParser(&org); err != nil {
		return auth.ErrInvalidRequest().WithCause(err)
	}
	org.ID = orgParam(c)
	od, err := h.service.StoreOrganization(c.UserContext(), caller, org)
	if err != nil {
		return err
	}
	return c.JSON(od)
}

func (h *Handlers) DeleteOrganization(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteOrganization(c.UserContext(), caller, orgParam(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) Roles(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	table, err := h.service.Roles(caller, orgParam(c))
	if err != nil {
		return err
	}
	return c.JSON(table)
}

func (h *Handlers) SetDefaultOrganization(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	ud, err := h.service.SetDefaultOrganization(c.UserContext(), caller, orgParam(c))
	if err != nil {
		return err
	}
	return c.JSON(ud.ToSecureView())
}

// ============================================================================
// Accounts
// ============================================================================

func (h *Handlers) ListAccounts(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	accounts, err := h.service.ListAccounts(c.UserContext(), caller, orgParam(c))
	if err != nil {
		return err
	}
	return c.JSON(accounts)
}

func (h *Handlers) StoreAccount(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var account organization.Account
	if err := c.BodyParser(&account); err != nil {
		return auth.ErrInvalidRequest().WithCause(err)
	}
	stored, err := h.service.StoreAccount(c.UserContext(), caller, orgParam(c), account)
	if err != nil {
		return err
	}
	return c.JSON(stored)
}

func (h *Handlers) GetAccount(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	account, err := h.service.GetAccount(c.UserContext(), caller, orgParam(c), accountParam(c))
	if err != nil {
		return err
	}
	return c.JSON(account)
}

func (h *Handlers) DeleteAccount(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteAccount(c.UserContext(), caller, orgParam(c), accountParam(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) SetDefaultAccount(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	ud, err := h.service.SetDefaultAccount(c.UserContext(), caller, orgParam(c), accountParam(c))
	if err != nil {
		return err
	}
	return c.JSON(ud.ToSecureView())
}

// ============================================================================
// Members
// ============================================================================

func (h *Handlers) ListUsers(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	members, err := h.service.ListUsers(c.UserContext(), caller, orgParam(c))
	if err != nil {
		return err
	}
	views := make([]user.View, len(members))
	for i, ud := range members {
		views[i] = ud.ToView()
	}
	return c.JSON(views)
}

func (h *Handlers) StoreUser(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req organizationsrv.StoreUserRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidRequest().WithCause(err)
	}
	ud, err := h.service.StoreUser(c.UserContext(), caller, orgParam(c), req)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if req.Create {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(ud.ToView())
}

func (h *Handlers) AddUserToOrganization(c *fiber.Ctx) error {
	return h.withRole(c, h.service.AddUserToOrganization)
}

func (h *Handlers) AssignRole(c *fiber.Ctx) error {
	return h.withRole(c, h.service.AssignRole)
}

func (h *Handlers) RemoveUserFromOrganization(c *fiber.Ctx) error {
	return h.onMember(c, h.service.RemoveUserFromOrganization)
}

func (h *Handlers) Ban(c *fiber.Ctx) error {
	return h.onMember(c, h.service.Ban)
}

func (h *Handlers) Unban(c *fiber.Ctx) error {
	return h.onMember(c, h.service.Unban)
}

func (h *Handlers) GrantAccount(c *fiber.Ctx) error {
	return h.withAccount(c, h.service.GrantAccount)
}

func (h *Handlers) RevokeAccount(c *fiber.Ctx) error {
	return h.withAccount(c, h.service.RevokeAccount)
}

func (h *Handlers) ChangePassword(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req passwordRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidRequest().WithCause(err)
	}
	ud, err := h.service.ChangePassword(c.UserContext(), caller, orgParam(c), emailParam(c), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(ud.ToView())
}

func (h *Handlers) RefreshAPIKey(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	key, err := h.service.RefreshAPIKey(c.UserContext(), caller, orgParam(c), emailParam(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"api_key": key})
}

type memberFunc func(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email string) (user.UserData, error)

func (h *Handlers) onMember(c *fiber.Ctx, fn memberFunc) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	ud, err := fn(c.UserContext(), caller, orgParam(c), emailParam(c))
	if err != nil {
		return err
	}
	return c.JSON(ud.ToView())
}

func (h *Handlers) withRole(c *fiber.Ctx, fn func(context.Context, user.UserData, kernel.OrganizationID, string, string) (user.UserData, error)) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidRequest().WithCause(err)
	}
	ud, err := fn(c.UserContext(), caller, orgParam(c), emailParam(c), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(ud.ToView())
}

func (h *Handlers) withAccount(c *fiber.Ctx, fn func(context.Context, user.UserData, kernel.OrganizationID, string, kernel.AccountID) (user.UserData, error)) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	ud, err := fn(c.UserContext(), caller, orgParam(c), emailParam(c), accountParam(c))
	if err != nil {
		return err
	}
	return c.JSON(ud.ToView())
}

// ============================================================================
// Self service
// ============================================================================

func (h *Handlers) GenerateTFA(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	enrollment, err := h.service.GenerateTFA(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(enrollment)
}

func (h *Handlers) EnableTFA(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidRequest().WithCause(err)
	}
	ud, err := h.service.EnableTFA(c.UserContext(), caller, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(ud.ToSecureView())
}

func (h *Handlers) DisableTFA(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req codeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return auth.ErrInvalidRequest().WithCause(err)
		}
	}
	ud, err := h.service.DisableTFA(c.UserContext(), caller, emailParam(c), req.Code)
	if err != nil {
		return err
	}
	return c.JSON(ud.ToView())
}

func (h *Handlers) Confirm(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	ud, err := h.service.Confirm(c.UserContext(), caller, emailParam(c))
	if err != nil {
		return err
	}
	return c.JSON(ud.ToView())
}

func (h *Handlers) DeleteUser(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteUser(c.UserContext(), caller, emailParam(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ============================================================================
// Helpers
// ============================================================================

func callerFrom(c *fiber.Ctx) (user.UserData, error) {
	session, ok := auth.SessionFrom(c)
	if !ok {
		return user.UserData{}, iam.ErrUnauthenticated()
	}
	return session.User, nil
}

// Params alias the request buffer, which fasthttp reuses. Ids end up as
// role and account map keys, so they are copied.

func orgParam(c *fiber.Ctx) kernel.OrganizationID {
	return kernel.OrganizationID(utils.CopyString(c.Params("orgId")))
}

func accountParam(c *fiber.Ctx) kernel.AccountID {
	return kernel.AccountID(utils.CopyString(c.Params("accountId")))
}

func emailParam(c *fiber.Ctx) string {
	raw := utils.CopyString(c.Params("email"))
	if email, err := url.PathUnescape(raw); err == nil {
		return email
	}
	return raw
}
