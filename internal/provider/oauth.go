package provider

import (
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/rafid/crosspost/internal/apperror"
)

// OAuthCredentials configures one redirect-based OAuth provider.
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// knownEndpoints maps the provider names the application accepts to their
// authorization endpoints. A name outside this map is ErrUnsupportedProvider
// even if credentials were supplied for it.
var knownEndpoints = map[string]oauth2.Endpoint{
	"google":    endpoints.Google,
	"facebook":  endpoints.Facebook,
	"github":    endpoints.GitHub,
	"linkedin":  endpoints.LinkedIn,
	"instagram": endpoints.Instagram,
}

// OAuthRegistry builds authorization URLs for the configured providers.
//
// It deliberately stops at the redirect: the code-for-token exchange happens
// on the provider's side of the fence (the session materializes there and is
// observed via CurrentSession after the browser returns). The registry makes
// no auth decisions.
type OAuthRegistry struct {
	configs map[string]*oauth2.Config
}

// NewOAuthRegistry builds a registry from per-provider credentials.
// callbackURL is shared: every provider redirects back to the same callback
// entry point. Unknown provider names are rejected here, at wiring time.
func NewOAuthRegistry(callbackURL string, creds map[string]OAuthCredentials) (*OAuthRegistry, error) {
	configs := make(map[string]*oauth2.Config, len(creds))
	for name, c := range creds {
		endpoint, ok := knownEndpoints[name]
		if !ok {
			return nil, fmt.Errorf("provider: unknown oauth provider %q in configuration", name)
		}
		configs[name] = &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  callbackURL,
			Scopes:       c.Scopes,
			Endpoint:     endpoint,
		}
	}
	return &OAuthRegistry{configs: configs}, nil
}

// AuthURL returns the authorization URL for the named provider. The state
// parameter is the caller's CSRF token; it round-trips through the provider
// untouched.
func (r *OAuthRegistry) AuthURL(name, state string) (string, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return "", apperror.UnsupportedProvider(name)
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Names returns the configured provider names, for diagnostics.
func (r *OAuthRegistry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}
