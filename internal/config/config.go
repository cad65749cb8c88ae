// ABOUTME: Configuration loading and parsing for the uaxd-mcp gateway
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, duration parsing and env overrides

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Health    HealthConfig    `yaml:"health" toml:"health"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Services  []ServiceConfig `yaml:"services" toml:"services"`
	Tools     ToolsConfig     `yaml:"tools" toml:"tools"`
}

// ServerConfig holds the HTTP transport settings
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"UAXD_HTTP_ADDR"`
	// APIKey gates POST /mcp when set
	APIKey string `yaml:"api_key" toml:"api_key" env:"MCP_API_KEY"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key" env:"TS_AUTHKEY"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// HealthConfig holds health checker timing
type HealthConfig struct {
	Interval time.Duration `yaml:"-" toml:"-"`
	Timeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	IntervalRaw string `yaml:"interval" toml:"interval"`
	TimeoutRaw  string `yaml:"timeout" toml:"timeout"`
}

// AuthConfig holds credentials for the outbound identity providers
type AuthConfig struct {
	WPP WPPConfig   `yaml:"wpp" toml:"wpp"`
	Rex OAuthConfig `yaml:"rex" toml:"rex"`
}

// WPPConfig holds the WPP system-auth identity
type WPPConfig struct {
	URL       string `yaml:"url" toml:"url"`
	SystemID  string `yaml:"system_id" toml:"system_id" env:"WPP_SYSTEM_ID"`
	SecretKey string `yaml:"secret_key" toml:"secret_key" env:"WPP_SECRET_KEY"`
}

// OAuthConfig holds an OAuth2 client_credentials identity
type OAuthConfig struct {
	TokenURL     string `yaml:"token_url" toml:"token_url"`
	ClientID     string `yaml:"client_id" toml:"client_id" env:"REX_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret" env:"REX_CLIENT_SECRET"`
}

// ServiceConfig describes one backend guarded by a circuit breaker
type ServiceConfig struct {
	Name             string        `yaml:"name" toml:"name"`
	RequiresVPN      bool          `yaml:"requires_vpn" toml:"requires_vpn"`
	HealthURL        string        `yaml:"health_url" toml:"health_url"`
	FailureThreshold int           `yaml:"failure_threshold" toml:"failure_threshold"`
	OpenDuration     time.Duration `yaml:"-" toml:"-"`

	OpenDurationRaw string `yaml:"open_duration" toml:"open_duration"`
}

// ToolsConfig holds the article backend endpoints
type ToolsConfig struct {
	UAXDURL        string `yaml:"uaxd_url" toml:"uaxd_url"`
	ASURLTemplate  string `yaml:"as_url_template" toml:"as_url_template"`
	RexURLTemplate string `yaml:"rex_url_template" toml:"rex_url_template"`
	TenantID       string `yaml:"tenant_id" toml:"tenant_id"`
}

// DefaultHTTPPort is the port used when no address is configured.
const DefaultHTTPPort = 8478

// Default returns the built-in configuration. It carries endpoints only;
// credentials must come from a file or the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: fmt.Sprintf(":%d", DefaultHTTPPort),
		},
		Tailscale: TailscaleConfig{
			Hostname: "uaxd-mcp",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Health: HealthConfig{
			Interval:    30 * time.Second,
			Timeout:     5 * time.Second,
			IntervalRaw: "30s",
			TimeoutRaw:  "5s",
		},
		Auth: AuthConfig{
			WPP: WPPConfig{
				URL: "http://wpp-auth-svc-wqa.aws.wiley.com:8080/v1/auth/authenticate/system",
			},
			Rex: OAuthConfig{
				TokenURL: "https://auth.uat.nonprod.atyponrex.com/auth/realms/WILEY/protocol/openid-connect/token",
				ClientID: "uaxd",
			},
		},
		Services: []ServiceConfig{
			{
				Name:            "GetUAXDArticles",
				RequiresVPN:     true,
				HealthURL:       "http://host.docker.internal:8080/actuator/health",
				OpenDuration:    time.Minute,
				OpenDurationRaw: "1m",
			},
			{
				Name:            "GetASArticles",
				RequiresVPN:     true,
				HealthURL:       "http://as-app-wqa.aws.wiley.com:8080/actuator/health",
				OpenDuration:    time.Minute,
				OpenDurationRaw: "1m",
			},
			{
				Name:            "GetRexArticles",
				OpenDuration:    time.Minute,
				OpenDurationRaw: "1m",
			},
		},
		Tools: ToolsConfig{
			UAXDURL:        "http://host.docker.internal:8080/dashboard/api/v1/mcp/get-articles",
			ASURLTemplate:  "http://as-app-wqa.aws.wiley.com:8080/v1/uaxd/tenants/%s/authors/%s/article-cards",
			RexURLTemplate: "https://api.uat.nonprod.atyponrex.com/v1/uaxd/tenants/%s/authors/%s/article-cards/",
			TenantID:       "0636030c-5229-481c-a745-230521c60957",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML. Values not
// present in the file keep their defaults. Environment variables in the format
// ${VAR_NAME} are expanded, then the env overrides are applied.
// An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(path, expandEnvVars(string(data)), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decode(path, data string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(data, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(data), cfg)
}

// applyEnv overrides secrets and the listen address from the environment.
func applyEnv(cfg *Config) error {
	for _, section := range []any{&cfg.Server, &cfg.Tailscale, &cfg.Auth} {
		if err := env.Parse(section); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Health.Interval < 0 || c.Health.Timeout < 0 {
		return fmt.Errorf("health durations must not be negative")
	}

	seen := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if strings.TrimSpace(svc.Name) == "" {
			return fmt.Errorf("services[%d].name is required", i)
		}
		if seen[svc.Name] {
			return fmt.Errorf("services[%d].name %q is duplicated", i, svc.Name)
		}
		seen[svc.Name] = true
		if svc.FailureThreshold < 0 {
			return fmt.Errorf("services[%d].failure_threshold must not be negative", i)
		}
		if svc.HealthURL != "" {
			if err := validateHTTPURL(svc.HealthURL); err != nil {
				return fmt.Errorf("services[%d].health_url: %w", i, err)
			}
		}
	}

	for name, raw := range map[string]string{
		"auth.wpp.url":       c.Auth.WPP.URL,
		"auth.rex.token_url": c.Auth.Rex.TokenURL,
		"tools.uaxd_url":     c.Tools.UAXDURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Health.IntervalRaw != "" {
		cfg.Health.Interval, err = time.ParseDuration(cfg.Health.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing health.interval %q: %w", cfg.Health.IntervalRaw, err)
		}
	}

	if cfg.Health.TimeoutRaw != "" {
		cfg.Health.Timeout, err = time.ParseDuration(cfg.Health.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing health.timeout %q: %w", cfg.Health.TimeoutRaw, err)
		}
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.OpenDurationRaw == "" {
			continue
		}
		svc.OpenDuration, err = time.ParseDuration(svc.OpenDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing services[%d].open_duration %q: %w", i, svc.OpenDurationRaw, err)
		}
	}

	return nil
}

// SetPort replaces the port of the HTTP listen address, keeping its host.
func (c *Config) SetPort(port int) {
	host, _, err := net.SplitHostPort(c.Server.HTTPAddr)
	if err != nil {
		host = ""
	}
	c.Server.HTTPAddr = net.JoinHostPort(host, strconv.Itoa(port))
}
