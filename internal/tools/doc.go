// Package tools defines the MCP tool contract and the article tools.
//
// A Tool publishes a Descriptor and answers Call with a text Result. Tool-level
// failures are results with IsError set, never Go errors, so callers always
// receive a well-formed tools/call response. The Catalog builds its tools on
// first use and serves them read-only afterwards.
package tools
