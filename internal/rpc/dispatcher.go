// ABOUTME: Transport-agnostic front door that validates envelopes and routes them to handlers.
// ABOUTME: The first handler to claim a request wins; failures become internal errors.

package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/uaxd/mcp-gateway/internal/jsonwire"
)

// ErrHandlerPanic wraps a panic recovered from a handler.
var ErrHandlerPanic = errors.New("handler panicked")

// Dispatcher holds an ordered list of protocol handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with no handlers.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Use appends a handler. Handlers are offered requests in registration order.
func (d *Dispatcher) Use(h Handler) *Dispatcher {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
	return d
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Capabilities returns the capabilities of all handlers in registration order.
func (d *Dispatcher) Capabilities() []Capability {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var caps []Capability
	for _, h := range d.handlers {
		p, ok := h.(CapabilityProvider)
		if !ok {
			continue
		}
		if c, ok := p.Capability(); ok {
			caps = append(caps, c)
		}
	}
	return caps
}

// CapabilitiesObject renders the capability union as used by initialize:
// {name: {listChanged: true}} or {name: {}}.
func (d *Dispatcher) CapabilitiesObject() *jsonwire.Object {
	return RenderCapabilities(d.Capabilities())
}

// RenderCapabilities renders capabilities in the initialize result shape.
func RenderCapabilities(caps []Capability) *jsonwire.Object {
	obj := jsonwire.NewObject()
	for _, c := range caps {
		entry := jsonwire.NewObject()
		if c.ListChanged {
			entry.Set("listChanged", true)
		}
		obj.Set(c.Name, entry)
	}
	return obj
}

// Dispatch decodes one raw message and routes it. It returns nil when no
// response must be sent (notifications).
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) *Response {
	d.logger.Debug("rpc request", "raw", string(raw))

	req, errResp := Decode(raw)
	if errResp != nil {
		d.logger.Warn("rejected message", "code", errResp.Error.Code)
		return errResp
	}
	return d.DispatchRequest(ctx, req)
}

// Decode validates the envelope of one raw message. Exactly one of the
// returned values is non-nil.
func Decode(raw []byte) (*Request, *Response) {
	msg := jsonwire.Parse(raw)
	if msg.IsEmpty() {
		return nil, ParseError()
	}

	id, _ := msg.Get("id")
	switch id.(type) {
	case *jsonwire.Object, []any:
		return nil, InvalidRequest(nil)
	}
	if version, _ := msg.String("jsonrpc"); version != Version {
		return nil, InvalidRequest(id)
	}
	method, _ := msg.String("method")
	if strings.TrimSpace(method) == "" {
		return nil, InvalidRequest(id)
	}
	params, _ := msg.Object("params")

	return &Request{
		ID:     id,
		Method: method,
		Params: params,
		Raw:    raw,
	}, nil
}

// DispatchRequest offers an already validated request to the handlers.
func (d *Dispatcher) DispatchRequest(ctx context.Context, req *Request) *Response {
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	for _, h := range handlers {
		out := d.offer(ctx, h, req)
		switch out.kind {
		case claimed:
			if req.IsNotification() {
				return nil
			}
			return out.response
		case failed:
			d.logger.Error("handler failed",
				"method", req.Method,
				"handler", fmt.Sprintf("%T", h),
				"error", out.err,
			)
			if req.IsNotification() {
				return nil
			}
			return InternalError(req.ID, out.err.Error())
		}
	}

	if req.IsNotification() {
		d.logger.Debug("unhandled notification", "method", req.Method)
		return nil
	}
	d.logger.Warn("method not found", "method", req.Method)
	return MethodNotFound(req.ID, req.Method)
}

func (d *Dispatcher) offer(ctx context.Context, h Handler, req *Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
		}
	}()
	return h.Handle(ctx, req)
}
