// ABOUTME: MCP tools handler for tools/list and tools/call.
// ABOUTME: An optional availability gate short-circuits calls to services whose circuit is open.

package mcp

import (
	"context"
	"log/slog"
	"strings"

	"github.com/uaxd/mcp-gateway/internal/jsonwire"
	"github.com/uaxd/mcp-gateway/internal/rpc"
	"github.com/uaxd/mcp-gateway/internal/tools"
)

// Messages returned instead of calling a tool whose service is unavailable.
const (
	unavailableMessage = "Service temporarily unavailable. " +
		"The service will be retried automatically when connectivity is restored."
	unavailableVPNMessage = "Service temporarily unavailable. " +
		"This tool requires VPN access to internal Wiley services. " +
		"The service will be retried automatically when connectivity is restored."
)

// Gate tracks per-service availability. Tool names are the service keys.
type Gate interface {
	IsServiceAvailable(name string) bool
	RecordSuccess(name string)
	RecordFailure(name string)
	RequiresVPN(name string) bool
}

// ToolsProtocol lists and calls the tools of a catalog.
type ToolsProtocol struct {
	catalog *tools.Catalog
	gate    Gate
	logger  *slog.Logger
}

// NewToolsProtocol creates the handler. gate may be nil.
func NewToolsProtocol(catalog *tools.Catalog, gate Gate, logger *slog.Logger) *ToolsProtocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolsProtocol{catalog: catalog, gate: gate, logger: logger}
}

// Capability implements rpc.CapabilityProvider.
func (p *ToolsProtocol) Capability() (rpc.Capability, bool) {
	return rpc.Capability{Name: "tools", ListChanged: true}, true
}

// Handle implements rpc.Handler.
func (p *ToolsProtocol) Handle(ctx context.Context, req *rpc.Request) rpc.Outcome {
	switch req.Method {
	case "tools/list":
		return rpc.Claimed(p.list(req))
	case "tools/call":
		return rpc.Claimed(p.call(ctx, req))
	default:
		return rpc.NotClaimed()
	}
}

func (p *ToolsProtocol) list(req *rpc.Request) *rpc.Response {
	p.logger.Info("handling tools/list request")

	instances := p.catalog.List()
	descriptors := make([]any, 0, len(instances))
	for _, inst := range instances {
		descriptors = append(descriptors, inst.Descriptor().Object())
	}
	return rpc.NewResult(req.ID, jsonwire.NewObject().Set("tools", descriptors))
}

func (p *ToolsProtocol) call(ctx context.Context, req *rpc.Request) *rpc.Response {
	p.logger.Info("handling tools/call request")

	if req.Params == nil {
		return rpc.InvalidParams(req.ID, "Missing params")
	}
	name, _ := req.Params.String("name")
	if strings.TrimSpace(name) == "" {
		return rpc.InvalidParams(req.ID, "Missing tool name")
	}
	args, ok := req.Params.Object("arguments")
	if !ok || args == nil {
		args = jsonwire.NewObject()
	}

	inst, ok := p.catalog.Find(name)
	if !ok {
		return rpc.NewError(req.ID, rpc.CodeMethodNotFound, "Tool not found: "+name)
	}

	if p.gate != nil && !p.gate.IsServiceAvailable(name) {
		p.logger.Warn("service unavailable, skipping tool call", "tool", name)
		msg := unavailableMessage
		if p.gate.RequiresVPN(name) {
			msg = unavailableVPNMessage
		}
		return rpc.NewResult(req.ID, tools.Result{Content: msg, IsError: true}.Object())
	}

	res := inst.Execute(ctx, args)
	if p.gate != nil {
		if res.IsError {
			p.gate.RecordFailure(name)
		} else {
			p.gate.RecordSuccess(name)
		}
	}
	return rpc.NewResult(req.ID, res.Object())
}
