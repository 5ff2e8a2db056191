package authinfra

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	googleTimeout = 10 * time.Second
)

// GoogleVerifier resolves a Google access token to the identity behind it
type GoogleVerifier struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleVerifier(clientID, clientSecret string) *GoogleVerifier {
	return &GoogleVerifier{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: GoogleUserInfoURL,
	}
}

// WithUserInfoURL points the verifier at another userinfo endpoint
func (v *GoogleVerifier) WithUserInfoURL(url string) *GoogleVerifier {
	v.userInfoURL = url
	return v
}

type googleUserInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

func (v *GoogleVerifier) Verify(ctx context.Context, provider iam.OAuthProvider, token string) (auth.ExternalIdentity, error) {
	if provider != iam.OAuthProviderGoogle {
		return auth.ExternalIdentity{}, auth.ErrInvalidOAuthProvider().WithDetail("provider", provider)
	}
	if token == "" {
		return auth.ExternalIdentity{}, iam.ErrUnauthenticated()
	}

	ctx, cancel := context.WithTimeout(ctx, googleTimeout)
	defer cancel()

	client := v.config.Client(ctx, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return auth.ExternalIdentity{}, errx.Wrap(err, "failed to build userinfo request", errx.TypeInternal)
	}
	resp, err := client.Do(req)
	if err != nil {
		return auth.ExternalIdentity{}, auth.ErrOAuthAuthorizationFailed().WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return auth.ExternalIdentity{}, iam.ErrUnauthenticated()
	}
	if resp.StatusCode != http.StatusOK {
		return auth.ExternalIdentity{}, auth.ErrOAuthAuthorizationFailed().WithDetail("status", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.ExternalIdentity{}, auth.ErrOAuthAuthorizationFailed().WithCause(err)
	}
	if info.Email == "" || !info.EmailVerified {
		return auth.ExternalIdentity{}, iam.ErrUnauthenticated().WithDetail("reason", "email not verified")
	}

	return auth.ExternalIdentity{
		Email:     user.NormalizeEmail(info.Email),
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
	}, nil
}

var _ auth.ExternalVerifier = (*GoogleVerifier)(nil)
