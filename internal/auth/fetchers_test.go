// ABOUTME: Tests for the WPP and OAuth2 client_credentials token fetchers.
// ABOUTME: Identity providers are stood up with httptest.

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWPPFetcher_TokenFromHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sys-1", body["systemId"])
		assert.Equal(t, "secret", body["secretKey"])

		w.Header().Set("X-WPP-AUTH-TOKEN", "header-token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tok, err := NewWPPFetcher(srv.URL, "sys-1", "secret", srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "header-token", tok.Value)
	assert.Equal(t, WPPTokenTTL, tok.TTL)
}

func TestWPPFetcher_TokenFromBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "authToken", body: `{"authToken":"body-a"}`, want: "body-a"},
		{name: "token", body: `{"token":"body-b"}`, want: "body-b"},
		{name: "authToken wins", body: `{"token":"b","authToken":"a"}`, want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tok, err := NewWPPFetcher(srv.URL, "id", "key", srv.Client()).Fetch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, tok.Value)
		})
	}
}

func TestWPPFetcher_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{name: "non-200", status: http.StatusForbidden, body: `{"authToken":"x"}`, target: ErrFetchFailed},
		{name: "no token", status: http.StatusOK, body: `{"other":"x"}`, target: ErrNoToken},
		{name: "not json", status: http.StatusOK, body: `token=x`, target: ErrNoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewWPPFetcher(srv.URL, "id", "key", srv.Client()).Fetch(context.Background())
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestWPPFetcher_JWTExpiryDrivesTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "system",
		"exp": now.Add(10 * time.Minute).Unix(),
	}).SignedString([]byte("unrelated"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("x-wpp-auth-token", signed)
	}))
	defer srv.Close()

	f := NewWPPFetcher(srv.URL, "id", "key", srv.Client())
	f.now = func() time.Time { return now }

	tok, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, tok.TTL)
}

func TestOAuthFetcher_ClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "uaxd", r.PostForm.Get("client_id"))
		assert.Equal(t, "shh", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"bearer","expires_in":120}`))
	}))
	defer srv.Close()

	f := NewOAuthFetcher(srv.URL, "uaxd", "shh", srv.Client())
	tok, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.Value)
	assert.InDelta(t, 120, tok.TTL.Seconds(), 2)
	assert.Equal(t, "oauth:uaxd@"+srv.URL, f.CacheKey())
}

func TestOAuthFetcher_DefaultTTL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","token_type":"bearer"}`))
	}))
	defer srv.Close()

	tok, err := NewOAuthFetcher(srv.URL, "id", "secret", srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultOAuthTTL, tok.TTL)
}

func TestOAuthFetcher_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	_, err := NewOAuthFetcher(srv.URL, "id", "bad", srv.Client()).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrFetchFailed)
}
