// Package gateway wires the uaxd-mcp server together.
//
// # Overview
//
// New builds every long-lived component from a config.Config: the circuit
// breaker registry and its health checker, the shared token cache with the
// WPP and Rex identities, the article tool catalog, and the JSON-RPC
// dispatcher behind the HTTP transport.
//
// # Transports
//
// Run serves HTTP on a TCP listener, or on a Tailscale node when
// tailscale.enabled is set, and starts the background health checker.
// Tool calls over HTTP are gated by the breakers.
//
// RunStdio serves newline-delimited JSON-RPC on the given reader and writer.
// It builds its own dispatcher without a gate, so stdio tool calls always
// reach the backends.
//
// # Shutdown
//
// When the run context is canceled the HTTP server drains with a five second
// budget, the health checker finishes any in-flight tick and the tailnet node
// is closed.
package gateway
