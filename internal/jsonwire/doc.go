// Package jsonwire parses and serializes the JSON needed for JSON-RPC envelopes
// and tool schemas.
//
// Decoded values form a tree of nil, bool, int64, float64, string, *Object and
// []any. Objects keep insertion order so that responses and schemas are
// emitted in the order they were built. Parse never fails loudly: malformed
// input produces an empty object and callers answer with a parse error.
//
//	req := jsonwire.Parse(line)
//	if req.IsEmpty() {
//	    // -32700
//	}
//	method, _ := req.String("method")
package jsonwire
