package recovery_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/recovery"
	"github.com/Abraxas-365/keystone/pkg/iam/recovery/recoveryinfra"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/keystone/pkg/notifx"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const linkBase = "https://app.example.com/reset?token="

type mailbox struct {
	mu   sync.Mutex
	sent map[string][]notifx.RecoveryEmail
}

func (m *mailbox) SendPasswordRecovery(_ context.Context, to string, data notifx.RecoveryEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[string][]notifx.RecoveryEmail{}
	}
	m.sent[to] = append(m.sent[to], data)
	return nil
}

func (m *mailbox) token(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	mails := m.sent[to]
	if len(mails) == 0 {
		t.Fatalf("no recovery mail for %s", to)
	}
	return strings.TrimPrefix(mails[len(mails)-1].Link, linkBase)
}

type fixture struct {
	users   *userinfra.StoreRepository
	store   *recoveryinfra.MemoryStore
	mail    *mailbox
	service *recovery.Service
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users: userinfra.NewMemoryRepository(),
		mail:  &mailbox{},
		now:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.store = recoveryinfra.NewMemoryStore().WithClock(func() time.Time { return f.now })
	f.service = recovery.NewService(f.users, f.store, f.mail, credential.NewVerifier(bcrypt.MinCost), linkBase, 0)

	u := user.New("ann@example.com", "Ann", "Lee")
	u.Confirmed = true
	if _, err := f.users.Create(context.Background(), user.NewData(u, nil), "test"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return f
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.RequestRecovery(ctx, "ANN@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := f.mail.token(t, "ann@example.com")
	if f.mail.sent["ann@example.com"][0].ValidFor != recovery.DefaultTTL {
		t.Fatalf("valid for = %v", f.mail.sent["ann@example.com"][0].ValidFor)
	}

	if err := f.service.ResetPassword(ctx, token, "brand new password"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	ud, err := f.users.GetByEmail(ctx, "ann@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !credential.AuthenticatePassword(ud.User, "brand new password") {
		t.Fatal("new password does not authenticate")
	}
	if ud.Counter() != 1 {
		t.Fatalf("counter = %d, want 1", ud.Counter())
	}
}

func TestResetPassword_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.service.RequestRecovery(ctx, "ann@example.com")
	token := f.mail.token(t, "ann@example.com")

	if err := f.service.ResetPassword(ctx, token, "brand new password"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	err := f.service.ResetPassword(ctx, token, "another password")
	if !errx.HasCode(err, recovery.CodeInvalidToken) {
		t.Fatalf("expected invalid token on reuse, got %v", err)
	}
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.service.RequestRecovery(ctx, "ann@example.com")
	token := f.mail.token(t, "ann@example.com")

	f.now = f.now.Add(recovery.DefaultTTL)
	err := f.service.ResetPassword(ctx, token, "brand new password")
	if !errx.HasCode(err, recovery.CodeInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestResetPassword_WeakPasswordKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.service.RequestRecovery(ctx, "ann@example.com")
	token := f.mail.token(t, "ann@example.com")

	if err := f.service.ResetPassword(ctx, token, "short"); !errx.HasCode(err, credential.CodeWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if err := f.service.ResetPassword(ctx, token, "brand new password"); err != nil {
		t.Fatalf("token should survive a rejected password: %v", err)
	}
}

func TestRequestRecovery_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	if err := f.service.RequestRecovery(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown email should be silent, got %v", err)
	}
	if len(f.mail.sent) != 0 {
		t.Fatalf("unexpected mail %v", f.mail.sent)
	}
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		status, body := errx.Response(err)
		return c.Status(status).JSON(body)
	}})
	recovery.NewHandlers(f.service).RegisterRoutes(app)

	post := func(path, body string) int {
		req := httptest.NewRequest("POST", path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		return resp.StatusCode
	}

	if code := post("/recovery/request", `{"email":"nobody@example.com"}`); code != fiber.StatusAccepted {
		t.Fatalf("unknown email status = %d", code)
	}
	if code := post("/recovery/request", `{"email":"ann@example.com"}`); code != fiber.StatusAccepted {
		t.Fatalf("request status = %d", code)
	}
	token := f.mail.token(t, "ann@example.com")

	if code := post("/recovery/reset", `{"token":"nope","password":"brand new password"}`); code != fiber.StatusBadRequest {
		t.Fatalf("bad token status = %d", code)
	}
	if code := post("/recovery/reset", `{"token":"`+token+`","password":"brand new password"}`); code != fiber.StatusNoContent {
		t.Fatalf("reset status = %d", code)
	}
}
