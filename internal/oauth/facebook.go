package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/finsight/auth/internal/domain"
	"github.com/finsight/auth/pkg/httpclient"
)

const (
	facebookAuthURL     = "https://www.facebook.com/v18.0/dialog/oauth"
	facebookTokenURL    = "https://graph.facebook.com/v18.0/oauth/access_token"
	facebookUserInfoURL = "https://graph.facebook.com/me"
)

// FacebookProvider implements Provider against Facebook's Graph API.
type FacebookProvider struct {
	creds Credentials
	http  *httpclient.Client
}

// NewFacebookProvider creates a Facebook provider, or nil when the client
// registration is absent.
func NewFacebookProvider(creds Credentials, httpClient *httpclient.Client) *FacebookProvider {
	if !creds.Configured() {
		return nil
	}
	return &FacebookProvider{creds: creds, http: httpClient}
}

// Name returns the provider's stable identifier.
func (p *FacebookProvider) Name() string {
	return domain.ProviderFacebook
}

// AuthCodeURL builds the authorization redirect URL.
func (p *FacebookProvider) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.creds.ClientID)
	q.Set("redirect_uri", p.creds.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "email public_profile")
	q.Set("state", state)
	return facebookAuthURL + "?" + q.Encode()
}

type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type facebookUserInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Exchange trades an authorization code for the user's Facebook identity.
func (p *FacebookProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	q := url.Values{}
	q.Set("code", code)
	q.Set("client_id", p.creds.ClientID)
	q.Set("client_secret", p.creds.ClientSecret)
	q.Set("redirect_uri", p.creds.RedirectURL)

	resp, err := p.http.Get(ctx, facebookTokenURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("facebook token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facebook token exchange: unexpected status %d", resp.StatusCode)
	}

	var token facebookTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode facebook token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("facebook token exchange: empty access token")
	}

	infoQ := url.Values{}
	infoQ.Set("fields", "id,email,first_name,last_name")
	infoQ.Set("access_token", token.AccessToken)

	infoResp, err := p.http.Get(ctx, facebookUserInfoURL+"?"+infoQ.Encode())
	if err != nil {
		return nil, fmt.Errorf("facebook userinfo: %w", err)
	}
	defer infoResp.Body.Close()

	if infoResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facebook userinfo: unexpected status %d", infoResp.StatusCode)
	}

	var info facebookUserInfo
	if err := json.NewDecoder(infoResp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode facebook userinfo: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return nil, fmt.Errorf("facebook userinfo: missing id or email")
	}

	// Facebook only returns an email the user has confirmed.
	return &Identity{
		Provider:      domain.ProviderFacebook,
		ProviderID:    info.ID,
		Email:         info.Email,
		EmailVerified: true,
		FirstName:     info.FirstName,
		LastName:      info.LastName,
	}, nil
}
