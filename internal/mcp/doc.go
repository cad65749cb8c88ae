// Package mcp implements the Model Context Protocol server for the article tools.
//
// # Overview
//
// Messages are JSON-RPC 2.0 envelopes routed by an rpc.Dispatcher to two
// handlers, tried in order:
//
//   - CoreProtocol: initialize, initialized, notifications/initialized, ping
//   - ToolsProtocol: tools/list, tools/call
//
// # Transports
//
// StdioServer reads one message per line and writes one response per line.
// Logs never go to stdout in this mode.
//
// Server exposes the same dispatcher over HTTP:
//
//   - POST /mcp - one JSON-RPC request per body, 202 for notifications
//   - GET /mcp/health - fixed liveness payload
//   - GET /mcp/status - uptime, request count and circuit breaker state
//
// CORS is open to any origin. When an API key is configured, /mcp requires it
// in the X-API-Key header; health and status stay public.
//
// # Availability
//
// On HTTP the tools handler is given a Gate (the service registry). Calls to a
// tool whose circuit is open return an isError result explaining the outage
// without contacting the backend:
//
//	{"content":[{"type":"text","text":"Service temporarily unavailable. ..."}],"isError":true}
//
// # Usage
//
//	d := rpc.NewDispatcher(logger)
//	d.Use(mcp.NewCoreProtocol(d.Capabilities, logger))
//	d.Use(mcp.NewToolsProtocol(catalog, registry, logger))
//
//	srv, err := mcp.NewServer(mcp.Config{Dispatcher: d, Status: registry, APIKey: key})
//	http.ListenAndServe(":8478", srv.Handler())
package mcp
