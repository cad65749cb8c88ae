// ABOUTME: Protocol handler contract for the dispatcher and its Outcome sum type.
// ABOUTME: Handlers claim a request, decline it, or fail it; capabilities are optional.

package rpc

import (
	"context"
	"errors"
)

// Capability is a feature advertised during the initialize handshake.
type Capability struct {
	Name        string
	ListChanged bool
}

type outcomeKind int

const (
	notClaimed outcomeKind = iota
	claimed
	failed
)

// Outcome is the result of offering a request to a handler.
// Build one with Claimed, NotClaimed or Failed.
type Outcome struct {
	kind     outcomeKind
	response *Response
	err      error
}

// Claimed ends dispatch. resp may be nil when the request was a notification.
func Claimed(resp *Response) Outcome {
	return Outcome{kind: claimed, response: resp}
}

// NotClaimed passes the request to the next handler.
func NotClaimed() Outcome {
	return Outcome{kind: notClaimed}
}

// Failed ends dispatch with an internal error addressed to the request id.
func Failed(err error) Outcome {
	if err == nil {
		err = errors.New("handler failed")
	}
	return Outcome{kind: failed, err: err}
}

// IsClaimed reports whether the handler took ownership of the request.
func (o Outcome) IsClaimed() bool { return o.kind == claimed }

// Response returns the response of a claimed outcome.
func (o Outcome) Response() *Response { return o.response }

// Err returns the error of a failed outcome.
func (o Outcome) Err() error { return o.err }

// Handler processes the methods it understands.
type Handler interface {
	Handle(ctx context.Context, req *Request) Outcome
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) Outcome

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *Request) Outcome {
	return f(ctx, req)
}

// CapabilityProvider is implemented by handlers that own a listable feature.
type CapabilityProvider interface {
	Capability() (Capability, bool)
}
