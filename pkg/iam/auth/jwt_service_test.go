package auth_test

import (
	"testing"
	"time"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
)

func TestJWTService_Verify(t *testing.T) {
	clock := newClock()
	codec := auth.NewJWTService(testSecret, 0, 0, "").WithClock(clock.Now)
	forger := auth.NewJWTService("another-secret", 0, 0, "").WithClock(clock.Now)

	u := user.New("ann@example.com", "Ann", "Lee")
	u.Counter = 7

	access, _, err := codec.Issue(u, "A", auth.AccessToken, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	forged, _, err := forger.Issue(u, "A", auth.AccessToken, false)
	if err != nil {
		t.Fatalf("issue forged: %v", err)
	}

	if got := codec.Verify(access, auth.AccessToken); got != auth.Valid {
		t.Fatalf("expected valid, got %s", got)
	}
	if got := codec.Verify(access, auth.RefreshToken); got != auth.Malformed {
		t.Fatalf("access token used as refresh must be malformed, got %s", got)
	}
	if got := codec.Verify(forged, auth.AccessToken); got != auth.Malformed {
		t.Fatalf("forged token must be malformed, got %s", got)
	}
	if got := codec.Verify("not.a.token", auth.AccessToken); got != auth.Malformed {
		t.Fatalf("garbage must be malformed, got %s", got)
	}

	claims, err := codec.Decode(access, auth.AccessToken)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Email != "ann@example.com" || claims.Organization != "A" || claims.Counter != 7 {
		t.Fatalf("unexpected claims %+v", claims)
	}

	clock.Advance(2 * time.Minute)
	if got := codec.Verify(access, auth.AccessToken); got != auth.Expired {
		t.Fatalf("expected expired at the expiry instant, got %s", got)
	}
	if got := codec.Verify(forged, auth.AccessToken); got != auth.Malformed {
		t.Fatalf("forged and expired must still be malformed, got %s", got)
	}
	if _, err := codec.Decode(access, auth.AccessToken); !iam.Is(err, iam.TokenExpired) {
		t.Fatalf("expected TokenExpired, got %v", err)
	}
}

func TestJWTService_IssuePairTTLs(t *testing.T) {
	clock := newClock()
	codec := auth.NewJWTService(testSecret, 5*time.Minute, 24*time.Hour, "issuer").WithClock(clock.Now)

	pair, err := codec.IssuePair(user.New("ann@example.com", "Ann", "Lee"), "", false)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if !pair.AccessExpiresAt.Equal(t0.Add(5*time.Minute)) || !pair.RefreshExpiresAt.Equal(t0.Add(24*time.Hour)) {
		t.Fatalf("unexpected expiries %v %v", pair.AccessExpiresAt, pair.RefreshExpiresAt)
	}

	other := auth.NewJWTService(testSecret, 0, 0, "other-issuer").WithClock(clock.Now)
	if got := other.Verify(pair.AccessToken, auth.AccessToken); got != auth.Malformed {
		t.Fatalf("tokens from another issuer must be malformed, got %s", got)
	}
}

func TestJWTService_ForeignIssuerStaysMalformedAfterExpiry(t *testing.T) {
	clock := newClock()
	foreign := auth.NewJWTService(testSecret, 0, 0, "other-issuer").WithClock(clock.Now)
	codec := auth.NewJWTService(testSecret, 0, 0, "").WithClock(clock.Now)

	token, _, err := foreign.Issue(user.New("ann@example.com", "Ann", "Lee"), "A", auth.AccessToken, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(time.Hour)
	if got := codec.Verify(token, auth.AccessToken); got != auth.Malformed {
		t.Fatalf("expired token from another issuer must be malformed, got %s", got)
	}
	if _, err := codec.Decode(token, auth.AccessToken); iam.Is(err, iam.TokenExpired) {
		t.Fatalf("must not report expiry for a foreign token: %v", err)
	}
}
