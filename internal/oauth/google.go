package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/pkg/httpclient"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleProvider implements Provider against Google's OAuth 2.0 endpoints.
type GoogleProvider struct {
	creds Credentials
	http  *httpclient.Client
}

// NewGoogleProvider creates a Google provider, or nil when the client
// registration is absent.
func NewGoogleProvider(creds Credentials, httpClient *httpclient.Client) *GoogleProvider {
	if !creds.Configured() {
		return nil
	}
	return &GoogleProvider{creds: creds, http: httpClient}
}

// Name returns the provider's stable identifier.
func (p *GoogleProvider) Name() string {
	return domain.ProviderGoogle
}

// AuthCodeURL builds the authorization redirect URL.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.creds.ClientID)
	q.Set("redirect_uri", p.creds.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	q.Set("access_type", "online")
	return googleAuthURL + "?" + q.Encode()
}

type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// Exchange trades an authorization code for the user's Google identity.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", p.creds.ClientID)
	form.Set("client_secret", p.creds.ClientSecret)
	form.Set("redirect_uri", p.creds.RedirectURL)
	form.Set("grant_type", "authorization_code")

	resp, err := p.http.Post(ctx, googleTokenURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("google token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google token exchange: unexpected status %d", resp.StatusCode)
	}

	var token googleTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode google token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("google token exchange: empty access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create google userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	infoResp, err := p.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	defer infoResp.Body.Close()

	if infoResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo: unexpected status %d", infoResp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(infoResp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode google userinfo: %w", err)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("google userinfo: missing subject or email")
	}

	return &Identity{
		Provider:      domain.ProviderGoogle,
		ProviderID:    info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		FirstName:     info.GivenName,
		LastName:      info.FamilyName,
	}, nil
}
