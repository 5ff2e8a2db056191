package auth_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

func newTestApp(t *testing.T, f *fixture) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status, body := errx.Response(err)
			return c.Status(status).JSON(body)
		},
	})
	mw := auth.NewTokenMiddleware(f.authn, auth.CookieConfig{})
	throttle := auth.NewThrottle(time.Minute).WithClock(f.clock.Now)
	auth.NewHandlers(f.authn, mw, throttle).RegisterRoutes(app)

	app.Get("/orgs/:orgId/accounts", mw.Authenticate("orgId", role.AccountList), func(c *fiber.Ctx) error {
		ac, _ := auth.AuthContextFrom(c)
		return c.JSON(ac)
	})
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("invalid json %q: %v", raw, err)
		}
	}
	return resp, body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHTTP_LoginWhoAmILogout(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann@example.com", map[kernel.OrganizationID]string{"A": role.User})
	app := newTestApp(t, f)

	resp, body := do(t, app, jsonRequest(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"`+testPassword+`"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %v", resp.StatusCode, body)
	}
	access, _ := body["access_token"].(string)
	if access == "" || resp.Header.Get(auth.AccessHeader) != access {
		t.Fatalf("expected access token in body and header")
	}
	var sawCookie bool
	for _, c := range resp.Cookies() {
		if c.Name == auth.RefreshCookie && c.HttpOnly {
			sawCookie = true
		}
	}
	if !sawCookie {
		t.Fatalf("expected http-only refresh cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, body = do(t, app, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("whoami status %d: %v", resp.StatusCode, body)
	}
	if body["role"] != role.User || body["organization_id"] != "A" {
		t.Fatalf("unexpected whoami %v", body)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	if resp, _ = do(t, app, req); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, body = do(t, app, req)
	if resp.StatusCode != http.StatusUnauthorized || body["code"] != "IAM_STALE_TOKEN" {
		t.Fatalf("expected stale token after logout, got %d %v", resp.StatusCode, body)
	}
}

func TestHTTP_FailureMapping(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann@example.com", map[kernel.OrganizationID]string{"A": role.User})
	app := newTestApp(t, f)

	resp, body := do(t, app, jsonRequest(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"nope"}`))
	if resp.StatusCode != http.StatusUnauthorized || body["code"] != "IAM_UNAUTHENTICATED" {
		t.Fatalf("expected 401 IAM_UNAUTHENTICATED, got %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, app, jsonRequest(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"`+testPassword+`"}`))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected throttled retry, got %d %v", resp.StatusCode, body)
	}

	f.clock.Advance(time.Minute)
	_, body = do(t, app, jsonRequest(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"`+testPassword+`"}`))
	access, _ := body["access_token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/orgs/B/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, body = do(t, app, req)
	if resp.StatusCode != http.StatusForbidden || body["code"] != "IAM_WRONG_ORGANIZATION" {
		t.Fatalf("expected 403 IAM_WRONG_ORGANIZATION, got %d %v", resp.StatusCode, body)
	}

	req = httptest.NewRequest(http.MethodGet, "/orgs/A/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, body = do(t, app, req)
	if resp.StatusCode != http.StatusOK || body["email"] != "ann@example.com" {
		t.Fatalf("expected auth context, got %d %v", resp.StatusCode, body)
	}
}

func TestHTTP_ExpiredAccessCookieIsRotated(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann@example.com", map[kernel.OrganizationID]string{"A": role.User})
	app := newTestApp(t, f)

	_, body := do(t, app, jsonRequest(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"`+testPassword+`"}`))
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)

	f.clock.Advance(3 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	req.AddCookie(&http.Cookie{Name: auth.AccessCookie, Value: access})
	req.AddCookie(&http.Cookie{Name: auth.RefreshCookie, Value: refresh})
	resp, body := do(t, app, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected transparent refresh, got %d %v", resp.StatusCode, body)
	}
	if rotated := resp.Header.Get(auth.AccessHeader); rotated == "" || rotated == access {
		t.Fatalf("expected a rotated access token header")
	}
}

func TestHTTP_TfaRequiredIsDistinguishable(t *testing.T) {
	f := newFixture(t)
	ann := f.addUser(t, "ann@example.com", map[kernel.OrganizationID]string{"A": role.User})
	f.update(t, ann.ID(), func(ud *user.UserData) {
		ud.User.TfaEnabled = true
		ud.User.TfaSecret = "JBSWY3DPEHPK3PXP"
	})
	app := newTestApp(t, f)

	resp, body := do(t, app, jsonRequest(http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"`+testPassword+`"}`))
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "IAM_TFA_REQUIRED" {
		t.Fatalf("expected 400 IAM_TFA_REQUIRED, got %d %v", resp.StatusCode, body)
	}
}
