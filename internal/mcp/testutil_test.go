// ABOUTME: Shared fixtures for the MCP tests: a fake tool, a fake gate and a wired dispatcher.

package mcp

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/uaxd/mcp-gateway/internal/jsonwire"
	"github.com/uaxd/mcp-gateway/internal/rpc"
	"github.com/uaxd/mcp-gateway/internal/tools"
)

// fakeTool echoes its userId argument and counts calls.
type fakeTool struct {
	name    string
	calls   atomic.Int32
	failing bool
}

func (f *fakeTool) Descriptor() tools.Descriptor {
	return tools.NewDescriptor(f.name, "Fake "+f.name,
		`{"type":"object","properties":{"userId":{"type":"string"}},"required":["userId"]}`)
}

func (f *fakeTool) Call(_ context.Context, args *jsonwire.Object) tools.Result {
	f.calls.Add(1)
	if f.failing {
		return tools.Errorf("API returned status 500: boom")
	}
	user, _ := args.String("userId")
	return tools.Text("articles for " + user)
}

// fakeGate is a minimal in-memory availability gate.
type fakeGate struct {
	mu          sync.Mutex
	unavailable map[string]bool
	vpn         map[string]bool
	successes   map[string]int
	failures    map[string]int
}

func newFakeGate() *fakeGate {
	return &fakeGate{
		unavailable: map[string]bool{},
		vpn:         map[string]bool{},
		successes:   map[string]int{},
		failures:    map[string]int{},
	}
}

func (g *fakeGate) IsServiceAvailable(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.unavailable[name]
}

func (g *fakeGate) RecordSuccess(name string) {
	g.mu.Lock()
	g.successes[name]++
	g.mu.Unlock()
}

func (g *fakeGate) RecordFailure(name string) {
	g.mu.Lock()
	g.failures[name]++
	g.mu.Unlock()
}

func (g *fakeGate) RequiresVPN(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vpn[name]
}

// newTestDispatcher wires core and tools handlers the same way the gateway does.
func newTestDispatcher(gate Gate, ts ...tools.Tool) (*rpc.Dispatcher, *CoreProtocol) {
	ctors := make([]tools.Constructor, 0, len(ts))
	for _, t := range ts {
		ctors = append(ctors, func() tools.Tool { return t })
	}
	logger := slog.Default()
	d := rpc.NewDispatcher(logger)
	core := NewCoreProtocol(d.Capabilities, logger)
	d.Use(core)
	d.Use(NewToolsProtocol(tools.NewCatalog(logger, ctors...), gate, logger))
	return d, core
}

func dispatch(d *rpc.Dispatcher, raw string) string {
	resp := d.Dispatch(context.Background(), []byte(raw))
	if resp == nil {
		return ""
	}
	out, err := resp.Encode()
	if err != nil {
		panic(err)
	}
	return string(out)
}
