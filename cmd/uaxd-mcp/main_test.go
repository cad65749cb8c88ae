// ABOUTME: Tests for flag handling, config overrides and the color log handler

package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uaxd/mcp-gateway/internal/config"
)

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--version"}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "uaxd-mcp 1.0.0\n", stdout.String())
}

func TestRun_UnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--bogus"}, strings.NewReader(""), &stdout, &stderr)
	require.Error(t, err)
}

func TestRun_StdioKeepsLogsOffStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")

	err := run(context.Background(), []string{"--log-level", "debug"}, in, &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"result":{}}`+"\n", stdout.String())
	assert.Contains(t, stderr.String(), "starting uaxd-mcp")
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	cfg, err := loadConfig(&Options{Port: 9100, LogLevel: "debug", LogFormat: "json"})
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.HTTPAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info"}, &buf)

	logger.With("component", "gateway").Info("hello", "n", 1)
	logger.Debug("hidden")
	logger.WithGroup("req").Warn("slow", "ms", 12)

	out := buf.String()
	assert.Contains(t, out, "INF hello component=gateway n=1")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN slow req.ms=12")
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger.Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
