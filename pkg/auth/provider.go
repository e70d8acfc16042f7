// Package auth supplies bearer tokens to the fetch client.
//
// A TokenProvider is always called through the same asynchronous-capable
// interface, whether the token is a constant or comes from an OAuth2 flow.
// An empty token means "no Authorization header".
package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider returns the bearer token for the next request, or "" when the
// request should go out unauthenticated.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static returns a provider that always yields token.
func Static(token string) TokenProvider {
	return TokenFunc(func(context.Context) (string, error) {
		return token, nil
	})
}

// None is a provider that never yields a token.
var None TokenProvider = Static("")

// FromTokenSource adapts an oauth2.TokenSource. The source is expected to
// handle refresh (wrap it in oauth2.ReuseTokenSource if it does not).
func FromTokenSource(ts oauth2.TokenSource) TokenProvider {
	return TokenFunc(func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := ts.Token()
		if err != nil {
			return "", fmt.Errorf("oauth2 token: %w", err)
		}
		if !tok.Valid() {
			return "", nil
		}
		return tok.AccessToken, nil
	})
}

// ClientCredentialsConfig configures an OAuth2 client-credentials provider.
type ClientCredentialsConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// ClientCredentials returns a provider backed by the OAuth2 client-credentials
// grant. Tokens are cached and refreshed by the oauth2 package; ctx is used
// for token endpoint calls for the lifetime of the provider.
func ClientCredentials(ctx context.Context, cfg ClientCredentialsConfig) (TokenProvider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token url is required")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return FromTokenSource(cc.TokenSource(ctx)), nil
}

// AuthorizationHeader resolves p into an Authorization header value.
// A nil provider or an empty token yields "".
func AuthorizationHeader(ctx context.Context, p TokenProvider) (string, error) {
	if p == nil {
		return "", nil
	}
	token, err := p.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}
	return "Bearer " + token, nil
}
