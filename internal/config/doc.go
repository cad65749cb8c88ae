// Package config handles configuration loading for uaxd-mcp.
//
// # Overview
//
// Configuration starts from built-in defaults that point at the article
// backends and their health endpoints. A YAML or TOML file may override any
// section, and environment variables override credentials last.
//
// # Environment Variables
//
// File contents may reference environment variables as ${VAR_NAME}; unset
// variables expand to the empty string. After the file is decoded these
// variables take precedence when set:
//
//	MCP_API_KEY        server.api_key
//	UAXD_HTTP_ADDR     server.http_addr
//	WPP_SYSTEM_ID      auth.wpp.system_id
//	WPP_SECRET_KEY     auth.wpp.secret_key
//	REX_CLIENT_ID      auth.rex.client_id
//	REX_CLIENT_SECRET  auth.rex.client_secret
//	TS_AUTHKEY         tailscale.auth_key
//
// # Durations
//
// Duration fields accept Go duration strings such as "30s" or "1m".
package config
