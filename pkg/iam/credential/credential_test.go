package credential_test

import (
	"testing"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthenticatePassword(t *testing.T) {
	v := credential.NewVerifier(bcrypt.MinCost)
	hash, err := v.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := user.New("ann@example.com", "Ann", "Lee")
	u.PasswordHash = hash

	if !credential.AuthenticatePassword(u, "correct horse") {
		t.Fatalf("expected match")
	}
	if credential.AuthenticatePassword(u, "wrong horse") {
		t.Fatalf("expected mismatch")
	}

	u.Banned = true
	if credential.AuthenticatePassword(u, "correct horse") {
		t.Fatalf("banned users never authenticate")
	}
}

func TestAuthenticatePassword_NoHash(t *testing.T) {
	u := user.New("oauth@example.com", "O", "Auth")
	if credential.AuthenticatePassword(u, "") {
		t.Fatalf("password-less users never match")
	}
}

func TestHashPassword_Policy(t *testing.T) {
	v := credential.NewVerifier(bcrypt.MinCost)
	if _, err := v.HashPassword("short"); !errx.HasCode(err, credential.CodeWeakPassword) {
		t.Fatalf("expected WEAK_PASSWORD, got %v", err)
	}
}

func TestAuthenticateAPIKey(t *testing.T) {
	u := user.New("ann@example.com", "Ann", "Lee")
	u.APIKey = credential.GenerateAPIKey()

	if !credential.AuthenticateAPIKey(u, user.AccessKey("ann@example.com"), u.APIKey) {
		t.Fatalf("expected match")
	}
	if credential.AuthenticateAPIKey(u, "OTHER", u.APIKey) {
		t.Fatalf("access key must match")
	}
	if credential.AuthenticateAPIKey(u, u.AccessKey, "OTHER") {
		t.Fatalf("api key must match")
	}

	u.APIKey = ""
	if credential.AuthenticateAPIKey(u, u.AccessKey, "") {
		t.Fatalf("users without an api key never match")
	}
}

func TestVerifyTfaCode_Window(t *testing.T) {
	enrollment, err := credential.NewTfaSecret("keystone", "ann@example.com")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	code, err := credential.TfaCode(enrollment.Secret, now)
	if err != nil {
		t.Fatalf("code: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"same step", now, true},
		{"one step later", now.Add(30 * time.Second), true},
		{"one step earlier", now.Add(-30 * time.Second), true},
		{"three steps later", now.Add(90 * time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := credential.VerifyTfaCode(enrollment.Secret, code, tt.at); got != tt.want {
				t.Fatalf("VerifyTfaCode = %v, want %v", got, tt.want)
			}
		})
	}

	if credential.VerifyTfaCode(enrollment.Secret, "", now) {
		t.Fatalf("empty code never verifies")
	}
}
