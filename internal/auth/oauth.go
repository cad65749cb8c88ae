// ABOUTME: Fetcher for OAuth2 client_credentials tokens.
// ABOUTME: Credentials are sent as form parameters; expires_in defaults to five minutes.

package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultOAuthTTL applies when the provider omits expires_in.
const DefaultOAuthTTL = 300 * time.Second

// OAuthCacheKey is the Manager key for a client_credentials identity.
func OAuthCacheKey(clientID, tokenURL string) string {
	return "oauth:" + clientID + "@" + tokenURL
}

// OAuthFetcher requests tokens with the client_credentials grant.
type OAuthFetcher struct {
	config *clientcredentials.Config
	client *http.Client
	now    func() time.Time
}

// NewOAuthFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewOAuthFetcher(tokenURL, clientID, clientSecret string, client *http.Client) *OAuthFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &OAuthFetcher{
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client: client,
		now:    time.Now,
	}
}

// CacheKey returns the key this identity is cached under.
func (f *OAuthFetcher) CacheKey() string {
	return OAuthCacheKey(f.config.ClientID, f.config.TokenURL)
}

// Fetch requests a fresh access token.
func (f *OAuthFetcher) Fetch(ctx context.Context) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	tok, err := f.config.Token(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("%w: oauth client_credentials for %s: %v", ErrFetchFailed, f.config.ClientID, err)
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("oauth client_credentials: %w", ErrNoToken)
	}

	ttl := DefaultOAuthTTL
	if !tok.Expiry.IsZero() {
		if remaining := tok.Expiry.Sub(f.now()); remaining > 0 {
			ttl = remaining
		}
	}
	return Token{Value: tok.AccessToken, TTL: ttl}, nil
}
