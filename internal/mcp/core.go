// ABOUTME: Core MCP protocol handler for the initialize handshake and ping.
// ABOUTME: It advertises the capability union of every handler on the dispatcher.

package mcp

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/uaxd/mcp-gateway/internal/jsonwire"
	"github.com/uaxd/mcp-gateway/internal/rpc"
)

// Server identity reported during initialize.
const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "uaxd-mcp"
	ServerVersion   = "1.0.0"
)

// CoreProtocol answers initialize, initialized and ping.
type CoreProtocol struct {
	capabilities func() []rpc.Capability
	logger       *slog.Logger
	ready        atomic.Bool
}

// NewCoreProtocol creates the handler. capabilities is consulted on every
// initialize so handlers registered later are included.
func NewCoreProtocol(capabilities func() []rpc.Capability, logger *slog.Logger) *CoreProtocol {
	if logger == nil {
		logger = slog.Default()
	}
	if capabilities == nil {
		capabilities = func() []rpc.Capability { return nil }
	}
	return &CoreProtocol{capabilities: capabilities, logger: logger}
}

// Ready reports whether the client has sent the initialized notification.
func (p *CoreProtocol) Ready() bool { return p.ready.Load() }

// Handle implements rpc.Handler.
func (p *CoreProtocol) Handle(_ context.Context, req *rpc.Request) rpc.Outcome {
	switch req.Method {
	case "initialize":
		p.logger.Info("handling initialize request")
		return rpc.Claimed(rpc.NewResult(req.ID, p.initializeResult()))
	case "initialized", "notifications/initialized":
		p.logger.Info("client initialized notification received")
		p.ready.Store(true)
		if req.IsNotification() {
			return rpc.Claimed(nil)
		}
		return rpc.Claimed(rpc.NewResult(req.ID, jsonwire.NewObject()))
	case "ping":
		return rpc.Claimed(rpc.NewResult(req.ID, jsonwire.NewObject()))
	default:
		return rpc.NotClaimed()
	}
}

func (p *CoreProtocol) initializeResult() *jsonwire.Object {
	return jsonwire.NewObject().
		Set("protocolVersion", ProtocolVersion).
		Set("capabilities", rpc.RenderCapabilities(p.capabilities())).
		Set("serverInfo", jsonwire.NewObject().
			Set("name", ServerName).
			Set("version", ServerVersion))
}
