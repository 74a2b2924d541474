package auth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials describes an OAuth2 client credentials grant.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

func (c ClientCredentials) config() *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
}

// HTTPClient returns a client that attaches a bearer token and refreshes it
// before expiry. base, when non-nil, performs both token and API requests.
func (c ClientCredentials) HTTPClient(ctx context.Context, base *http.Client) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return c.config().Client(ctx)
}

func (c ClientCredentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	return c.config().TokenSource(ctx)
}
