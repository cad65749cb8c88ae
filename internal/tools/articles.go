// ABOUTME: Article lookup tools backed by the UAXD dashboard, Author Services and Rex.
// ABOUTME: Each call retries once with a refreshed token when the backend answers 401.

package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/uaxd/mcp-gateway/internal/jsonwire"
)

// Tool names, also used as service names by the circuit breakers.
const (
	UAXDArticlesName = "GetUAXDArticles"
	ASArticlesName   = "GetASArticles"
	RexArticlesName  = "GetRexArticles"
)

const (
	userIDSchema = `{"type":"object","properties":{"userId":{"type":"string","description":"The user ID (UUID) to retrieve articles for"}},"required":["userId"]}`

	maxResponseSize = 10 << 20
)

// TokenSource supplies the bearer credential for a backend.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// ArticleTool fetches article cards for one user from one backend.
type ArticleTool struct {
	descriptor Descriptor
	label      string
	short      string
	buildURL   func(userID string) string
	authorize  func(req *http.Request, token string)
	tokens     TokenSource
	client     *http.Client
	logger     *slog.Logger
}

// Compile-time interface check.
var _ Tool = (*ArticleTool)(nil)

// Descriptor implements Tool.
func (t *ArticleTool) Descriptor() Descriptor { return t.descriptor }

// Call implements Tool.
func (t *ArticleTool) Call(ctx context.Context, args *jsonwire.Object) Result {
	userID, _ := args.String("userId")
	if strings.TrimSpace(userID) == "" {
		return Errorf("Error: userId parameter is required")
	}

	res, err := t.fetch(ctx, userID, false)
	if err != nil {
		t.logger.Error("article fetch failed", "error", err)
		return Errorf("Error fetching %s articles: %v", t.short, err)
	}
	return res
}

func (t *ArticleTool) fetch(ctx context.Context, userID string, retried bool) (Result, error) {
	var (
		token string
		err   error
	)
	if retried {
		token, err = t.tokens.Refresh(ctx)
	} else {
		token, err = t.tokens.Token(ctx)
	}
	if err != nil {
		return Result{}, fmt.Errorf("get token: %w", err)
	}

	target := t.buildURL(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	t.authorize(req, token)

	t.logger.Info("HTTP GET", "url", target)
	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !retried {
		t.logger.Info("got 401, refreshing token and retrying")
		return t.fetch(ctx, userID, true)
	}
	if resp.StatusCode != http.StatusOK {
		return Errorf("API returned status %d: %s", resp.StatusCode, body), nil
	}
	return Text(t.label + " Articles:\n" + string(body)), nil
}

// ArticleOptions are the collaborators shared by the article tools.
type ArticleOptions struct {
	Tokens TokenSource
	Client *http.Client
	Logger *slog.Logger
}

func (o ArticleOptions) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return NewHTTPClient()
}

func (o ArticleOptions) logger(name string) *slog.Logger {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("tool", name)
}

func wppHeader(req *http.Request, token string) {
	req.Header.Set("X-WPP-AUTH-TOKEN", token)
}

func bearerHeader(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

// NewUAXDArticles returns the UAXD dashboard tool. endpoint receives the user
// id as the userId query parameter.
func NewUAXDArticles(endpoint string, opts ArticleOptions) *ArticleTool {
	return &ArticleTool{
		descriptor: NewDescriptor(UAXDArticlesName,
			"Retrieves UAXD dashboard articles for a given user ID. Returns a list of articles associated with the user's UAXD dashboard.",
			userIDSchema),
		label: "UAXD",
		short: "UAXD",
		buildURL: func(userID string) string {
			return withQuery(endpoint, "userId", userID)
		},
		authorize: wppHeader,
		tokens:    opts.Tokens,
		client:    opts.client(),
		logger:    opts.logger(UAXDArticlesName),
	}
}

// NewASArticles returns the Author Services tool. urlTemplate takes the
// tenant id and the user id, in that order.
func NewASArticles(urlTemplate, tenantID string, opts ArticleOptions) *ArticleTool {
	return &ArticleTool{
		descriptor: NewDescriptor(ASArticlesName,
			"Retrieves Author Services (AS) articles for a given user ID. Returns article cards from the AS platform.",
			userIDSchema),
		label: "Author Services",
		short: "AS",
		buildURL: func(userID string) string {
			return fmt.Sprintf(urlTemplate, tenantID, url.PathEscape(userID))
		},
		authorize: wppHeader,
		tokens:    opts.Tokens,
		client:    opts.client(),
		logger:    opts.logger(ASArticlesName),
	}
}

// NewRexArticles returns the Rex platform tool, authorized with an OAuth bearer token.
func NewRexArticles(urlTemplate, tenantID string, opts ArticleOptions) *ArticleTool {
	return &ArticleTool{
		descriptor: NewDescriptor(RexArticlesName,
			"Retrieves Rex platform articles for a given user ID. Returns article cards from the Rex/Atypon platform.",
			userIDSchema),
		label: "Rex",
		short: "Rex",
		buildURL: func(userID string) string {
			return fmt.Sprintf(urlTemplate, tenantID, url.PathEscape(userID))
		},
		authorize: bearerHeader,
		tokens:    opts.Tokens,
		client:    opts.client(),
		logger:    opts.logger(RexArticlesName),
	}
}

func withQuery(endpoint, key, value string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint + "?" + key + "=" + url.QueryEscape(value)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
