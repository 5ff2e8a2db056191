package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "test-secret"
	testPassword = "correct horse"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock *fakeClock
	users *userinfra.StoreRepository
	authn *auth.Authenticator
}

func newFixture(t *testing.T, opts ...auth.Option) *fixture {
	t.Helper()
	f := &fixture{clock: newClock(), users: userinfra.NewMemoryRepository()}
	opts = append([]auth.Option{auth.WithClock(f.clock.Now)}, opts...)
	f.authn = auth.NewAuthenticator(f.users, auth.NewJWTService(testSecret, 0, 0, ""), role.Default(), opts...)
	return f
}

// addUser stores a confirmed user with testPassword and the given roles
func (f *fixture) addUser(t *testing.T, email string, roles map[kernel.OrganizationID]string) user.UserData {
	t.Helper()
	hash, err := credential.NewVerifier(bcrypt.MinCost).HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := user.New(email, "Test", "User")
	u.PasswordHash = hash
	u.Confirmed = true

	ud := user.NewData(u, nil)
	for _, org := range []kernel.OrganizationID{"A", "B", kernel.SystemOrganization} {
		if r, ok := roles[org]; ok {
			ud.AddOrganization(org, r)
		}
	}
	created, err := f.users.Create(context.Background(), ud, "test")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return created
}

func (f *fixture) update(t *testing.T, id kernel.UserID, fn func(*user.UserData)) {
	t.Helper()
	_, err := f.users.Update(context.Background(), id, func(ud user.UserData) (user.UserData, error) {
		fn(&ud)
		return ud, nil
	}, "test")
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
}

func (f *fixture) login(t *testing.T, email string) auth.TokenPair {
	t.Helper()
	pair, err := f.authn.Login(context.Background(), auth.LoginRequest{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return pair
}

func (f *fixture) resolve(pair auth.TokenPair, realm kernel.OrganizationID, perms ...string) (auth.Session, error) {
	return f.authn.Resolve(context.Background(), auth.ResolveRequest{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Realm:        realm,
		Permissions:  perms,
	})
}

func accessOnly(pair auth.TokenPair) auth.TokenPair {
	return auth.TokenPair{AccessToken: pair.AccessToken}
}
