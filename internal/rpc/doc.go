// Package rpc implements the JSON-RPC 2.0 front door shared by the stdio and
// HTTP transports.
//
// A Dispatcher validates each envelope (jsonrpc "2.0", non-blank method) and
// offers the request to its handlers in registration order. Each handler
// returns an Outcome: Claimed ends dispatch with a response, NotClaimed passes
// the request on, Failed ends dispatch with an internal error. Requests that
// nobody claims receive "method not found". Notifications never receive a
// response.
//
//	d := rpc.NewDispatcher(logger)
//	d.Use(core).Use(tools)
//	if resp := d.Dispatch(ctx, line); resp != nil {
//	    out, _ := resp.Encode()
//	}
package rpc
