// Package auth supplies credentials for outbound calls and guards inbound ones.
//
// # Token Manager
//
// Manager caches short-lived bearer tokens by key. A cached token is reused
// until less than a fifth of its lifetime remains, then re-fetched. Fetches
// for the same key are serialized so concurrent callers trigger at most one
// request to the identity provider; different keys never wait on each other.
//
//	tok, err := manager.Token(ctx, auth.WPPCacheKey, wppFetcher)
//	// downstream answered 401
//	tok, err = manager.Refresh(ctx, auth.WPPCacheKey, wppFetcher)
//
// # Fetchers
//
//   - WPPFetcher: posts system credentials to the WPP auth service. The
//     token comes back in the x-wpp-auth-token header. JWT tokens are
//     cached until their exp claim, others for 30 minutes.
//
//   - OAuthFetcher: OAuth2 client_credentials grant with credentials sent
//     as form parameters. Tokens without expires_in are cached for 5 minutes.
//
// # Inbound API Key
//
// APIKeyMiddleware compares the X-API-Key header against the configured key
// in constant time. An empty configured key disables the check.
package auth
