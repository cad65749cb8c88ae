// ABOUTME: Gateway composition root that wires breakers, tokens, tools and transports
// ABOUTME: Runs the HTTP transport on TCP or a Tailscale listener, or the stdio transport

package gateway

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/tsnet"

	"github.com/uaxd/mcp-gateway/internal/auth"
	"github.com/uaxd/mcp-gateway/internal/config"
	"github.com/uaxd/mcp-gateway/internal/mcp"
	"github.com/uaxd/mcp-gateway/internal/reliability"
	"github.com/uaxd/mcp-gateway/internal/rpc"
	"github.com/uaxd/mcp-gateway/internal/tools"
)

// shutdownTimeout bounds graceful shutdown after the run context is canceled.
const shutdownTimeout = 5 * time.Second

// Gateway owns every long-lived component of the uaxd-mcp server.
type Gateway struct {
	config *config.Config
	logger *slog.Logger

	registry *reliability.Registry
	health   *reliability.HealthChecker
	tokens   *auth.Manager
	client   *http.Client

	// wpp and rex are the outbound identities shared by the article tools
	wpp *auth.WPPFetcher
	rex *auth.OAuthFetcher

	mcpServer   *mcp.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
}

// New creates a Gateway from the given configuration. Nothing is started.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := tools.NewHTTPClient()
	registry := reliability.NewRegistry(logger.With("component", "circuit-breaker"), serviceSpecs(cfg.Services))

	g := &Gateway{
		config:   cfg,
		logger:   logger.With("component", "gateway"),
		registry: registry,
		tokens:   auth.NewManager(logger.With("component", "token-manager")),
		client:   client,
		wpp:      auth.NewWPPFetcher(cfg.Auth.WPP.URL, cfg.Auth.WPP.SystemID, cfg.Auth.WPP.SecretKey, client),
		rex:      auth.NewOAuthFetcher(cfg.Auth.Rex.TokenURL, cfg.Auth.Rex.ClientID, cfg.Auth.Rex.ClientSecret, client),
	}
	g.health = reliability.NewHealthChecker(registry, healthEndpoints(cfg.Services),
		reliability.WithInterval(cfg.Health.Interval),
		reliability.WithProbeTimeout(cfg.Health.Timeout),
		reliability.WithHealthLogger(logger.With("component", "health")),
	)
	g.warnMissingCredentials()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Dispatcher: g.newDispatcher(registry),
		Status:     registry,
		APIKey:     cfg.Server.APIKey,
		Logger:     logger.With("component", "http"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	g.mcpServer = mcpServer

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mcpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

func serviceSpecs(services []config.ServiceConfig) []reliability.ServiceSpec {
	specs := make([]reliability.ServiceSpec, 0, len(services))
	for _, svc := range services {
		specs = append(specs, reliability.ServiceSpec{
			Name:             svc.Name,
			RequiresVPN:      svc.RequiresVPN,
			FailureThreshold: svc.FailureThreshold,
			OpenDuration:     svc.OpenDuration,
		})
	}
	return specs
}

func healthEndpoints(services []config.ServiceConfig) map[string]string {
	eps := make(map[string]string, len(services))
	for _, svc := range services {
		if svc.HealthURL != "" {
			eps[svc.Name] = svc.HealthURL
		}
	}
	return eps
}

// warnMissingCredentials logs identities that will fail on first use.
func (g *Gateway) warnMissingCredentials() {
	if g.config.Auth.WPP.SystemID == "" || g.config.Auth.WPP.SecretKey == "" {
		g.logger.Warn("WPP credentials not configured; UAXD and AS tools will fail",
			"hint", "set WPP_SYSTEM_ID and WPP_SECRET_KEY")
	}
	if g.config.Auth.Rex.ClientSecret == "" {
		g.logger.Warn("Rex client secret not configured; Rex tool will fail",
			"hint", "set REX_CLIENT_SECRET")
	}
}

// toolConstructors returns the article tools bound to the shared token cache.
func (g *Gateway) toolConstructors() []tools.Constructor {
	cfg := g.config.Tools
	wppTokens := g.tokens.Source(auth.WPPCacheKey, g.wpp)
	rexTokens := g.tokens.Source(g.rex.CacheKey(), g.rex)
	toolLogger := g.logger.With("component", "tools")

	return []tools.Constructor{
		func() tools.Tool {
			return tools.NewUAXDArticles(cfg.UAXDURL, tools.ArticleOptions{Tokens: wppTokens, Client: g.client, Logger: toolLogger})
		},
		func() tools.Tool {
			return tools.NewASArticles(cfg.ASURLTemplate, cfg.TenantID, tools.ArticleOptions{Tokens: wppTokens, Client: g.client, Logger: toolLogger})
		},
		func() tools.Tool {
			return tools.NewRexArticles(cfg.RexURLTemplate, cfg.TenantID, tools.ArticleOptions{Tokens: rexTokens, Client: g.client, Logger: toolLogger})
		},
	}
}

// newDispatcher wires the core and tools handlers. gate may be nil, in which
// case tool calls are never short-circuited.
func (g *Gateway) newDispatcher(gate mcp.Gate) *rpc.Dispatcher {
	logger := g.logger.With("component", "dispatcher")
	d := rpc.NewDispatcher(logger)
	d.Use(mcp.NewCoreProtocol(d.Capabilities, logger))
	d.Use(mcp.NewToolsProtocol(tools.NewCatalog(logger, g.toolConstructors()...), gate, logger))
	return d
}

// Handler returns the HTTP handler chain.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Registry returns the circuit breaker registry.
func (g *Gateway) Registry() *reliability.Registry {
	return g.registry
}

// RunStdio serves JSON-RPC over in/out until EOF or ctx is canceled. Tool
// calls go straight to the backends without circuit breaking.
func (g *Gateway) RunStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	g.logger.Info("starting stdio transport")
	srv := mcp.NewStdioServer(g.newDispatcher(nil), g.logger.With("component", "stdio"))
	return srv.Serve(ctx, in, out)
}

// Run starts the health checker and the HTTP transport and blocks until the
// context is canceled. Returns nil on graceful shutdown, or the server error.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	if err := g.health.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("starting health checker: %w", err)
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening",
			"addr", ln.Addr().String(),
			"auth_enabled", g.mcpServer.AuthEnabled(),
		)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// tailnetNode builds the tsnet node from config. The state dir defaults to
// ~/.local/share/uaxd-mcp/tailscale and the auth key falls back to TS_AUTHKEY.
func tailnetNode(tsCfg config.TailscaleConfig) (*tsnet.Server, error) {
	dir := tsCfg.StateDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("tailscale.state_dir unset and no home directory: %w", err)
		}
		dir = filepath.Join(home, ".local", "share", "uaxd-mcp", "tailscale")
	}

	key := cmp.Or(tsCfg.AuthKey, os.Getenv("TS_AUTHKEY"))
	if key == "" {
		return nil, errors.New("tailscale enabled without an auth key: set tailscale.auth_key or TS_AUTHKEY")
	}

	return &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       dir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   key,
	}, nil
}

// setupTailscaleListener joins the tailnet and listens on :80, or on :443
// through Funnel when public access is enabled.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	node, err := tailnetNode(g.config.Tailscale)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(node.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	g.tsnetServer = node

	g.logger.Info("joining tailnet", "hostname", node.Hostname, "state_dir", node.Dir, "ephemeral", node.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	if len(status.TailscaleIPs) == 0 {
		g.logger.Warn("tailnet node has no addresses")
	}
	if status.Self != nil {
		g.logger.Info("tailnet node up", "dns_name", status.Self.DNSName, "ips", status.TailscaleIPs)
	}

	var ln net.Listener
	if g.config.Tailscale.Funnel {
		g.logger.Info("serving over tailscale funnel on :443")
		ln, err = node.ListenFunnel("tcp", ":443")
	} else {
		ln, err = node.Listen("tcp", ":80")
	}
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("listening on tailnet: %w", err)
	}
	return ln, nil
}

// Shutdown stops the HTTP server, the health checker and the tailnet node.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway",
		"requests_processed", g.mcpServer.RequestsProcessed(),
	)

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := g.health.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health checker: %w", err))
	}
	if g.tsnetServer != nil {
		if err := g.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailnet node: %w", err))
		}
	}
	g.tokens.Clear()

	return errors.Join(errs...)
}
