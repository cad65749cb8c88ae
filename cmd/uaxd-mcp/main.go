// ABOUTME: Entry point for the uaxd-mcp gateway
// ABOUTME: Parses flags, loads config, sets up logging and runs the stdio or HTTP transport

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"

	"github.com/uaxd/mcp-gateway/internal/config"
	"github.com/uaxd/mcp-gateway/internal/gateway"
	"github.com/uaxd/mcp-gateway/internal/mcp"
)

// Version is set at build time.
var version = mcp.ServerVersion

// Options are the command line flags.
type Options struct {
	HTTP      bool   `long:"http" description:"serve HTTP instead of stdio"`
	Port      int    `short:"p" long:"port" description:"HTTP port, overrides server.http_addr"`
	Config    string `short:"c" long:"config" description:"path to a YAML or TOML config file" env:"UAXD_CONFIG"`
	LogLevel  string `long:"log-level" description:"log level" choice:"debug" choice:"info" choice:"warn" choice:"error"`
	LogFormat string `long:"log-format" description:"log format" choice:"text" choice:"json"`
	Version   bool   `long:"version" description:"print version and exit"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts := &Options{}
	if _, err := flags.ParseArgs(opts, args); err != nil {
		return err
	}

	if opts.Version {
		fmt.Fprintf(stdout, "uaxd-mcp %s\n", version)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, stderr)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	if !opts.HTTP {
		logger.Info("starting uaxd-mcp", "mode", "stdio", "version", version)
		return gw.RunStdio(ctx, stdin, stdout)
	}

	printStartup(stderr, cfg, opts.Config)
	logger.Info("starting uaxd-mcp",
		"mode", "http",
		"version", version,
		"http_addr", cfg.Server.HTTPAddr,
	)
	return gw.Run(ctx)
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.Port > 0 {
		cfg.SetPort(opts.Port)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	return cfg, nil
}

// printStartup writes a short summary to stderr. Never stdout, which belongs to the stdio transport.
func printStartup(w io.Writer, cfg *config.Config, configPath string) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	if configPath == "" {
		configPath = "(defaults)"
	}

	cyan.Fprintf(w, "\n    uaxd-mcp ")
	gray.Fprintf(w, "%s\n\n", version)

	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Config:    %s\n", configPath)
	green.Fprint(w, "    ▶ ")
	if cfg.Tailscale.Enabled {
		fmt.Fprintf(w, "Tailscale: ")
		cyan.Fprint(w, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			color.New(color.FgYellow).Fprint(w, " [funnel]")
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Fprint(w, "    ▶ ")
	if cfg.Server.APIKey != "" {
		fmt.Fprintln(w, "API key:   required")
	} else {
		fmt.Fprintln(w, "API key:   disabled")
	}
	fmt.Fprintln(w)
}
