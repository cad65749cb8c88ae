// ABOUTME: Fetcher for the WPP system-authentication endpoint.
// ABOUTME: The token arrives in the x-wpp-auth-token header, or in the JSON body as a fallback.

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// WPPCacheKey is the Manager key for the WPP system token.
	WPPCacheKey = "wpp"

	// WPPTokenTTL applies when the token does not carry its own expiry.
	WPPTokenTTL = 30 * time.Minute

	wppTokenHeader  = "x-wpp-auth-token"
	maxAuthBodySize = 1 << 20
)

// WPPFetcher authenticates a system identity against WPP.
type WPPFetcher struct {
	URL       string
	SystemID  string
	SecretKey string
	Client    *http.Client

	now func() time.Time
}

// NewWPPFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewWPPFetcher(url, systemID, secretKey string, client *http.Client) *WPPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &WPPFetcher{
		URL:       url,
		SystemID:  systemID,
		SecretKey: secretKey,
		Client:    client,
		now:       time.Now,
	}
}

type wppAuthRequest struct {
	SystemID  string `json:"systemId"`
	SecretKey string `json:"secretKey"`
}

type wppAuthResponse struct {
	AuthToken string `json:"authToken"`
	Token     string `json:"token"`
}

// Fetch posts the system credentials and extracts the issued token.
func (f *WPPFetcher) Fetch(ctx context.Context) (Token, error) {
	body, err := json.Marshal(wppAuthRequest{SystemID: f.SystemID, SecretKey: f.SecretKey})
	if err != nil {
		return Token{}, fmt.Errorf("encode wpp auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("build wpp auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("wpp auth: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBodySize))
	if err != nil {
		return Token{}, fmt.Errorf("read wpp auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("%w: wpp auth returned status %d", ErrFetchFailed, resp.StatusCode)
	}

	value := strings.TrimSpace(resp.Header.Get(wppTokenHeader))
	if value == "" {
		value = tokenFromBody(respBody)
	}
	if value == "" {
		return Token{}, fmt.Errorf("wpp auth: %w", ErrNoToken)
	}

	return Token{Value: value, TTL: f.ttlFor(value)}, nil
}

func tokenFromBody(body []byte) string {
	var parsed wppAuthResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if v := strings.TrimSpace(parsed.AuthToken); v != "" {
		return v
	}
	return strings.TrimSpace(parsed.Token)
}

// ttlFor reads the exp claim when the token is a JWT. The signature is not
// checked; the claim only schedules the next refresh.
func (f *WPPFetcher) ttlFor(value string) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return WPPTokenTTL
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return WPPTokenTTL
	}
	ttl := exp.Sub(f.now())
	if ttl <= 0 {
		return WPPTokenTTL
	}
	return ttl
}
