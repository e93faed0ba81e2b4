package powerbi

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"pbi-sync-service/internal/config"
)

// NewHTTPClient returns an HTTP client that attaches bearer tokens to admin
// API requests. Client credentials are preferred over a static access token.
func NewHTTPClient(ctx context.Context, cfg config.PowerBIConfig) *http.Client {
	var client *http.Client
	switch {
	case cfg.UsesClientCredentials():
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     TokenURL(cfg.AuthorityURL, cfg.TenantID),
			Scopes:       []string{cfg.Scope},
		}
		client = cc.Client(ctx)
	case cfg.AccessToken != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.AccessToken,
			TokenType:   "Bearer",
		}))
	default:
		client = &http.Client{}
	}
	client.Timeout = cfg.GetTimeout()
	return client
}

// TokenURL builds the v2 token endpoint for a tenant under the authority.
func TokenURL(authorityURL, tenantID string) string {
	return strings.TrimSuffix(authorityURL, "/") + "/" + tenantID + "/oauth2/v2.0/token"
}
