package organizationapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/organization/organizationapi"
	"github.com/Abraxas-365/keystone/pkg/iam/organization/organizationinfra"
	"github.com/Abraxas-365/keystone/pkg/iam/organization/organizationsrv"
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user/userinfra"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct horse"

type harness struct {
	t     *testing.T
	app   *fiber.App
	authn *auth.Authenticator
	users *userinfra.StoreRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	users := userinfra.NewMemoryRepository()
	orgs := organizationinfra.NewMemoryRepository()
	roles := role.Default()

	authn := auth.NewAuthenticator(users, auth.NewJWTService("test-secret", 0, 0, ""), roles, auth.WithClock(now))
	mw := auth.NewTokenMiddleware(authn, auth.CookieConfig{})
	svc := organizationsrv.NewService(orgs, users, roles, credential.NewVerifier(bcrypt.MinCost), organizationsrv.WithClock(now))
	err := svc.Seed(context.Background(), organizationsrv.Bootstrap{
		OrganizationID:   "DEFAULT",
		OrganizationName: "Default",
		AdminEmail:       "admin@keystone.dev",
		AdminPassword:    testPassword,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status, body := errx.Response(err)
			return c.Status(status).JSON(body)
		},
	})
	organizationapi.NewHandlers(svc, authn, mw).RegisterRoutes(app)
	return &harness{t: t, app: app, authn: authn, users: users}
}

func (h *harness) login(email string) string {
	h.t.Helper()
	pair, err := h.authn.Login(context.Background(), auth.LoginRequest{Email: email, Password: testPassword})
	if err != nil {
		h.t.Fatalf("login %s: %v", email, err)
	}
	return pair.AccessToken
}

func (h *harness) call(method, path, token, body string) (int, []byte) {
	h.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func (h *harness) expect(status int, method, path, token, body string) []byte {
	h.t.Helper()
	got, raw := h.call(method, path, token, body)
	if got != status {
		h.t.Fatalf("%s %s: status %d, want %d: %s", method, path, got, status, raw)
	}
	return raw
}

func TestRegisterAndManageMembers(t *testing.T) {
	h := newHarness(t)

	raw := h.expect(http.StatusCreated, "POST", "/organizations/register", "",
		`{"organization_name":"Acme","email":"owner@acme.com","first_name":"Olive","password":"`+testPassword+`"}`)
	var reg struct {
		Organization struct {
			Organization struct {
				ID string `json:"id"`
			} `json:"organization"`
		} `json:"organization"`
		User struct {
			Roles map[string]string `json:"roles"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &reg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reg.Organization.Organization.ID != "ACME" || reg.User.Roles["ACME"] != role.OrganizationAdmin {
		t.Fatalf("unexpected registration %s", raw)
	}
	h.expect(http.StatusConflict, "POST", "/organizations/register", "",
		`{"organization_name":"Other","email":"OWNER@acme.com","password":"`+testPassword+`"}`)

	owner := h.login("owner@acme.com")

	raw = h.expect(http.StatusOK, "POST", "/organizations/ACME/accounts", owner, `{"name":"Web Shop","region":"eu"}`)
	if !strings.Contains(string(raw), `"id":"WEB_SHOP"`) || !strings.Contains(string(raw), `"region":"eu"`) {
		t.Fatalf("unexpected account %s", raw)
	}

	h.expect(http.StatusCreated, "POST", "/organizations/ACME/users", owner,
		`{"create":true,"email":"member@acme.com","password":"`+testPassword+`"}`)
	if _, err := h.authn.Login(context.Background(), auth.LoginRequest{Email: "member@acme.com", Password: testPassword}); err == nil {
		t.Fatal("unconfirmed member must not log in")
	}
	h.expect(http.StatusOK, "POST", "/users/member%40acme.com/confirm", owner, "")
	member := h.login("member@acme.com")

	raw = h.expect(http.StatusOK, "GET", "/organizations/ACME/accounts", member, "")
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Fatalf("member without grants sees %s", raw)
	}
	h.expect(http.StatusForbidden, "POST", "/organizations/ACME/accounts", member, `{"name":"Nope"}`)

	h.expect(http.StatusOK, "POST", "/organizations/ACME/users/member@acme.com/accounts/WEB_SHOP", owner, "")
	raw = h.expect(http.StatusOK, "GET", "/organizations/ACME/accounts/WEB_SHOP", member, "")
	if !strings.Contains(string(raw), `"name":"Web Shop"`) {
		t.Fatalf("unexpected account %s", raw)
	}

	h.expect(http.StatusForbidden, "GET", "/organizations/DEFAULT", owner, "")
	h.expect(http.StatusForbidden, "DELETE", "/users/member@acme.com", owner, "")

	h.expect(http.StatusOK, "POST", "/organizations/ACME/users/member@acme.com/ban", owner, "")
	h.expect(http.StatusUnauthorized, "GET", "/organizations/ACME/accounts", member, "")

	admin := h.login("admin@keystone.dev")
	h.expect(http.StatusNoContent, "DELETE", "/users/member@acme.com", admin, "")
}

func TestPathIDsOutliveTheRequest(t *testing.T) {
	h := newHarness(t)
	h.expect(http.StatusCreated, "POST", "/organizations/register", "",
		`{"organization_name":"Acme","email":"owner@acme.com","password":"`+testPassword+`"}`)
	owner := h.login("owner@acme.com")

	h.expect(http.StatusOK, "POST", "/organizations/ACME/accounts", owner, `{"name":"Web Shop"}`)
	h.expect(http.StatusCreated, "POST", "/organizations/ACME/users", owner,
		`{"create":true,"email":"member@acme.com","password":"`+testPassword+`"}`)
	h.expect(http.StatusOK, "POST", "/organizations/ACME/users/member@acme.com/accounts/WEB_SHOP", owner, "")

	// later requests reuse the same request buffers
	for _, path := range []string{"/organizations/XXXX/accounts", "/organizations/ACME/users", "/organizations/QQQQ/roles"} {
		h.call("GET", path, owner, "")
	}

	ud, err := h.users.GetByEmail(context.Background(), "member@acme.com")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if len(ud.Roles) != 1 || ud.Roles["ACME"] != role.User {
		t.Fatalf("stored roles changed after later requests: %v", ud.Roles)
	}
	if !ud.HasAccountGrant("ACME", "WEB_SHOP") {
		t.Fatalf("stored account grants changed after later requests: %v", ud.Accounts)
	}

	h.expect(http.StatusOK, "POST", "/users/member%40acme.com/confirm", owner, "")
}

func TestRolesAndSelfService(t *testing.T) {
	h := newHarness(t)
	h.expect(http.StatusCreated, "POST", "/organizations/register", "",
		`{"organization_name":"Acme","email":"owner@acme.com","password":"`+testPassword+`"}`)
	owner := h.login("owner@acme.com")

	raw := h.expect(http.StatusOK, "GET", "/organizations/ACME/roles", owner, "")
	var table map[string][]string
	if err := json.Unmarshal(raw, &table); err != nil || len(table[role.OrganizationAdmin]) == 0 {
		t.Fatalf("unexpected roles %s: %v", raw, err)
	}

	raw = h.expect(http.StatusOK, "POST", "/users/tfa", owner, "")
	var enrollment credential.TfaEnrollment
	if err := json.Unmarshal(raw, &enrollment); err != nil || !strings.HasPrefix(enrollment.URI, "otpauth://totp/") {
		t.Fatalf("unexpected enrollment %s: %v", raw, err)
	}
	h.expect(http.StatusBadRequest, "POST", "/users/tfa/enable", owner, `{"code":"x"}`)

	h.expect(http.StatusUnauthorized, "GET", "/organizations", "", "")
	raw = h.expect(http.StatusOK, "GET", "/organizations", owner, "")
	if !strings.Contains(string(raw), `"id":"ACME"`) || strings.Contains(string(raw), `"id":"DEFAULT"`) {
		t.Fatalf("unexpected organizations %s", raw)
	}
}
