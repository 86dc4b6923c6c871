// Package oauth contains the outbound clients for the supported identity
// providers. Each provider turns an authorization code into a normalized
// Identity; everything after that point is provider-agnostic.
package oauth

import (
	"context"
	"fmt"
)

// Identity is the provider-agnostic result of a completed code exchange.
type Identity struct {
	Provider      string
	ProviderID    string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
}

// Provider exchanges authorization codes with one identity provider.
type Provider interface {
	// Name returns the provider's stable identifier.
	Name() string

	// AuthCodeURL builds the authorization redirect URL carrying the given
	// anti-forgery state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for the user's identity.
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// Credentials holds one provider's client registration.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Configured reports whether the registration is usable.
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers, skipping nil
// entries.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Get returns the named provider or an error when it is not configured.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("oauth provider %q is not configured", name)
	}
	return p, nil
}

// Names returns the configured provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
